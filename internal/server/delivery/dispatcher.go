package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pandeptwidyaop/hookrelay/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/hookrelay/pkg/errors"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

// Channel pushes a captured event to the hook owner.
type Channel interface {
	Method() models.DeliveryMethod
	Deliver(ctx context.Context, hook *models.Hook, event *models.Event) error
}

// Marker records that an event reached its owner.
type Marker interface {
	MarkDelivered(ctx context.Context, eventIDs ...string) (time.Time, error)
}

// Dispatcher routes events of push hooks to the matching channel.
type Dispatcher struct {
	channels map[models.DeliveryMethod]Channel
	marker   Marker
	log      zerolog.Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(marker Marker, channels ...Channel) *Dispatcher {
	d := &Dispatcher{
		channels: make(map[models.DeliveryMethod]Channel, len(channels)),
		marker:   marker,
		log:      logger.Component("delivery"),
	}
	for _, ch := range channels {
		d.channels[ch.Method()] = ch
	}
	return d
}

// Dispatch pushes event through the hook's channel. Poll hooks and hooks
// without a delivery config are left for polling. Failures are logged only.
// The event is marked delivered once a push was attempted, whatever its outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, hook *models.Hook, event *models.Event) {
	if !hook.DeliveryMethod.IsPush() || !hook.HasDeliveryConfig() {
		return
	}

	ch, ok := d.channels[hook.DeliveryMethod]
	if !ok {
		d.log.Warn().
			Err(pkgerrors.ErrUnsupportedChannel).
			Str("hook_id", hook.ID).
			Str("method", string(hook.DeliveryMethod)).
			Msg("No channel registered")
		return
	}

	if err := ch.Deliver(ctx, hook, event); err != nil {
		d.log.Warn().
			Err(err).
			Str("hook_id", hook.ID).
			Str("event_id", event.ID).
			Str("method", string(hook.DeliveryMethod)).
			Msg("Push delivery failed")
	}

	if _, err := d.marker.MarkDelivered(ctx, event.ID); err != nil {
		d.log.Error().
			Err(err).
			Str("event_id", event.ID).
			Msg("Failed to mark pushed event delivered")
	}
}
