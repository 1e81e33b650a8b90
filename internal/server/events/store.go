package events

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pandeptwidyaop/hookrelay/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/hookrelay/pkg/errors"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100

	// DefaultRetention is how long events are kept regardless of delivery state.
	DefaultRetention = 7 * 24 * time.Hour
)

// NormalizeLimit applies the default and cap to a requested page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Store persists captured events.
type Store struct {
	db *gorm.DB

	// Now is the clock used for delivery marks and retention cutoffs.
	Now func() time.Time
}

// NewStore creates a new event store.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:  db,
		Now: func() time.Time { return time.Now().UTC() },
	}
}

// Append inserts a single event.
func (s *Store) Append(ctx context.Context, event *models.Event) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return pkgerrors.Storage("failed to store event", err)
	}
	return nil
}

// ListByHook returns up to limit events for a hook.
// Undelivered listings are oldest first so a poller drains in arrival order;
// full listings are newest first.
func (s *Store) ListByHook(ctx context.Context, hookID string, limit int, undeliveredOnly bool) ([]models.Event, error) {
	query := s.db.WithContext(ctx).Where("hook_id = ?", hookID)

	if undeliveredOnly {
		query = query.Where("delivered_at IS NULL").Order("received_at ASC")
	} else {
		query = query.Order("received_at DESC")
	}

	events := []models.Event{}
	if err := query.Limit(NormalizeLimit(limit)).Find(&events).Error; err != nil {
		return nil, pkgerrors.Storage("failed to list events", err)
	}

	return events, nil
}

// MarkDelivered stamps delivered_at on the given events that are still undelivered.
// Already delivered events keep their original timestamp. It returns the stamp used.
func (s *Store) MarkDelivered(ctx context.Context, eventIDs ...string) (time.Time, error) {
	now := s.Now()
	if len(eventIDs) == 0 {
		return now, nil
	}

	err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id IN ? AND delivered_at IS NULL", eventIDs).
		Update("delivered_at", now).Error
	if err != nil {
		return now, pkgerrors.Storage("failed to mark events delivered", err)
	}

	return now, nil
}

// DeliveredAt returns the stored delivered_at of each given event that has one.
// A concurrent poller may have stamped some of them first, so callers reporting
// delivery times read them back here instead of assuming their own stamp.
func (s *Store) DeliveredAt(ctx context.Context, eventIDs ...string) (map[string]time.Time, error) {
	stamps := make(map[string]time.Time, len(eventIDs))
	if len(eventIDs) == 0 {
		return stamps, nil
	}

	var rows []models.Event
	err := s.db.WithContext(ctx).
		Select("id", "delivered_at").
		Where("id IN ? AND delivered_at IS NOT NULL", eventIDs).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Storage("failed to read delivery times", err)
	}

	for _, row := range rows {
		stamps[row.ID] = *row.DeliveredAt
	}
	return stamps, nil
}

// PurgeOlderThan deletes every event received before now minus window.
func (s *Store) PurgeOlderThan(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := s.Now().Add(-window)

	result := s.db.WithContext(ctx).
		Where("received_at < ?", cutoff).
		Delete(&models.Event{})
	if result.Error != nil {
		return 0, pkgerrors.Storage("failed to purge events", result.Error)
	}

	return result.RowsAffected, nil
}
