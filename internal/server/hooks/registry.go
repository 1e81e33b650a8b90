package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/hookrelay/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/hookrelay/pkg/errors"
	"github.com/pandeptwidyaop/hookrelay/pkg/utils"
)

// CreateHookInput carries the optional attributes of a new hook.
type CreateHookInput struct {
	Name           *string         `json:"name"`
	Description    *string         `json:"description"`
	DeliveryMethod string          `json:"delivery_method"`
	DeliveryConfig json.RawMessage `json:"delivery_config"`
}

// Registry handles hook lifecycle operations.
type Registry struct {
	db *gorm.DB
}

// NewRegistry creates a new hook registry.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{
		db: db,
	}
}

// Create persists a new hook owned by ownerToken.
func (r *Registry) Create(ctx context.Context, ownerToken string, input CreateHookInput) (*models.Hook, error) {
	hook := &models.Hook{
		OwnerTokenHash: utils.HashToken(ownerToken),
		Name:           input.Name,
		Description:    input.Description,
		DeliveryMethod: models.ParseDeliveryMethod(input.DeliveryMethod),
		CreatedAt:      time.Now().UTC(),
	}

	if cfg := input.DeliveryConfig; len(cfg) > 0 && string(cfg) != "null" && json.Valid(cfg) {
		j := datatypes.JSON(cfg)
		hook.DeliveryConfig = &j
	}

	if err := r.db.WithContext(ctx).Create(hook).Error; err != nil {
		return nil, pkgerrors.Storage("failed to create hook", err)
	}

	return hook, nil
}

// List returns every hook owned by ownerToken, newest first.
func (r *Registry) List(ctx context.Context, ownerToken string) ([]models.Hook, error) {
	hooks := []models.Hook{}
	err := r.db.WithContext(ctx).
		Where("owner_token_hash = ?", utils.HashToken(ownerToken)).
		Order("created_at DESC").
		Find(&hooks).Error
	if err != nil {
		return nil, pkgerrors.Storage("failed to list hooks", err)
	}

	return hooks, nil
}

// Get returns a hook owned by ownerToken.
// A hook that exists under another owner yields ErrForbidden.
func (r *Registry) Get(ctx context.Context, hookID, ownerToken string) (*models.Hook, error) {
	hook, err := r.Lookup(ctx, hookID)
	if err != nil {
		return nil, err
	}

	if !utils.SecureCompareStrings(hook.OwnerTokenHash, utils.HashToken(ownerToken)) {
		return nil, pkgerrors.ErrForbidden
	}

	return hook, nil
}

// Lookup fetches a hook by id without an owner check. Ingestion only.
func (r *Registry) Lookup(ctx context.Context, hookID string) (*models.Hook, error) {
	var hook models.Hook
	err := r.db.WithContext(ctx).Where("id = ?", hookID).First(&hook).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrHookNotFound
		}
		return nil, pkgerrors.Storage("failed to get hook", err)
	}

	return &hook, nil
}

// Delete removes a hook and its events. A non-owner gets ErrHookNotFound.
func (r *Registry) Delete(ctx context.Context, hookID, ownerToken string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Where("id = ? AND owner_token_hash = ?", hookID, utils.HashToken(ownerToken)).
			Delete(&models.Hook{})
		if result.Error != nil {
			return pkgerrors.Storage("failed to delete hook", result.Error)
		}
		if result.RowsAffected == 0 {
			return pkgerrors.ErrHookNotFound
		}

		// Covers stores where the FK cascade is not enforced.
		if err := tx.Where("hook_id = ?", hookID).Delete(&models.Event{}).Error; err != nil {
			return pkgerrors.Storage("failed to delete hook events", err)
		}
		return nil
	})
}

// RecordTrigger bumps the hook's event counter and last trigger time in one statement.
func (r *Registry) RecordTrigger(ctx context.Context, hookID string, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.Hook{}).
		Where("id = ?", hookID).
		Updates(map[string]interface{}{
			"event_count":       gorm.Expr("event_count + ?", 1),
			"last_triggered_at": at,
		}).Error
	if err != nil {
		return pkgerrors.Storage("failed to update hook trigger", err)
	}
	return nil
}
