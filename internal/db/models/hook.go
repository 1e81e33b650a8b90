package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/hookrelay/pkg/utils"
)

// DeliveryMethod selects how captured events reach the hook owner.
type DeliveryMethod string

const (
	DeliveryPoll        DeliveryMethod = "poll"
	DeliveryPushMessage DeliveryMethod = "push-message"
	DeliveryPushEmail   DeliveryMethod = "push-email"
)

// ParseDeliveryMethod maps free-form input to a known method.
// Unknown or empty values fall back to poll.
func ParseDeliveryMethod(s string) DeliveryMethod {
	switch DeliveryMethod(s) {
	case DeliveryPushMessage:
		return DeliveryPushMessage
	case DeliveryPushEmail:
		return DeliveryPushEmail
	default:
		return DeliveryPoll
	}
}

// IsPush reports whether the method notifies the owner instead of waiting for a poll.
func (m DeliveryMethod) IsPush() bool {
	return m == DeliveryPushMessage || m == DeliveryPushEmail
}

// Hook represents a webhook endpoint owned by one credential holder
type Hook struct {
	ID string `gorm:"type:varchar(12);primaryKey" json:"id"`

	// OwnerTokenHash is the SHA-256 of the bearer token that created the hook.
	OwnerTokenHash string `gorm:"type:varchar(64);not null;index:idx_hooks_owner_created,priority:1" json:"-"`

	Name           *string         `json:"name"`
	Description    *string         `json:"description"`
	DeliveryMethod DeliveryMethod  `gorm:"type:varchar(32);not null;default:poll" json:"delivery_method"`
	DeliveryConfig *datatypes.JSON `json:"delivery_config"`

	CreatedAt       time.Time  `gorm:"index:idx_hooks_owner_created,priority:2" json:"created_at"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`
	EventCount      int64      `gorm:"not null;default:0" json:"event_count"`
}

// HasDeliveryConfig reports whether a non-empty config object is attached.
func (h *Hook) HasDeliveryConfig() bool {
	if h.DeliveryConfig == nil {
		return false
	}
	raw := string(*h.DeliveryConfig)
	return raw != "" && raw != "null" && raw != "{}"
}

// DecodeDeliveryConfig unmarshals the stored config into dst.
func (h *Hook) DecodeDeliveryConfig(dst interface{}) error {
	if h.DeliveryConfig == nil {
		return json.Unmarshal([]byte("{}"), dst)
	}
	return json.Unmarshal(*h.DeliveryConfig, dst)
}

// BeforeCreate sets the public id and default delivery method if not already set
func (h *Hook) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		id, err := utils.NewHookID()
		if err != nil {
			return err
		}
		h.ID = id
	}
	if h.DeliveryMethod == "" {
		h.DeliveryMethod = DeliveryPoll
	}
	return nil
}

// TableName specifies the table name for Hook
func (Hook) TableName() string {
	return "hooks"
}
