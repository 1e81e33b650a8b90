package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/hookrelay/pkg/utils"
)

// Event represents one captured inbound request attributed to a Hook
type Event struct {
	ID     string `gorm:"type:varchar(16);primaryKey" json:"id"`
	HookID string `gorm:"type:varchar(12);not null;index:idx_events_hook_received,priority:1" json:"hook_id"`

	Method      string          `gorm:"type:varchar(16);not null" json:"method"`
	Headers     datatypes.JSON  `gorm:"not null" json:"headers"`
	Body        *string         `gorm:"type:text" json:"body"`
	QueryParams *datatypes.JSON `json:"query_params"`
	SourceIP    *string         `gorm:"type:varchar(64)" json:"source_ip"`

	ReceivedAt  time.Time  `gorm:"not null;index:idx_events_hook_received,priority:2;index:idx_events_received_at" json:"received_at"`
	DeliveredAt *time.Time `gorm:"index" json:"delivered_at"`

	// Relationships
	Hook *Hook `gorm:"foreignKey:HookID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsDelivered returns true once the event has been surfaced to its owner
func (e *Event) IsDelivered() bool {
	return e.DeliveredAt != nil
}

// BeforeCreate sets id, receive time and an empty header map if not already set
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		id, err := utils.NewEventID()
		if err != nil {
			return err
		}
		e.ID = id
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	if len(e.Headers) == 0 {
		e.Headers = datatypes.JSON("{}")
	}
	return nil
}

// TableName specifies the table name for Event
func (Event) TableName() string {
	return "events"
}

// MarshalJSON renders the stored body as embedded JSON when it parses as JSON,
// so a posted JSON document reads back unchanged. Other bodies become strings.
func (e Event) MarshalJSON() ([]byte, error) {
	var body json.RawMessage
	if e.Body != nil {
		if json.Valid([]byte(*e.Body)) {
			body = json.RawMessage(*e.Body)
		} else {
			quoted, err := json.Marshal(*e.Body)
			if err != nil {
				return nil, err
			}
			body = quoted
		}
	}

	headers := json.RawMessage(e.Headers)
	if len(headers) == 0 {
		headers = json.RawMessage("{}")
	}

	var query json.RawMessage
	if e.QueryParams != nil && len(*e.QueryParams) > 0 {
		query = json.RawMessage(*e.QueryParams)
	}

	return json.Marshal(struct {
		ID          string          `json:"id"`
		HookID      string          `json:"hook_id"`
		Method      string          `json:"method"`
		Headers     json.RawMessage `json:"headers"`
		Body        json.RawMessage `json:"body"`
		QueryParams json.RawMessage `json:"query_params"`
		SourceIP    *string         `json:"source_ip"`
		ReceivedAt  time.Time       `json:"received_at"`
		DeliveredAt *time.Time      `json:"delivered_at"`
	}{
		ID:          e.ID,
		HookID:      e.HookID,
		Method:      e.Method,
		Headers:     headers,
		Body:        body,
		QueryParams: query,
		SourceIP:    e.SourceIP,
		ReceivedAt:  e.ReceivedAt,
		DeliveredAt: e.DeliveredAt,
	})
}
