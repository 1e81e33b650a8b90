package delivery

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pandeptwidyaop/hookrelay/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/hookrelay/pkg/errors"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

// EmailConfig is the delivery_config shape for push-email hooks.
type EmailConfig struct {
	Address string `json:"address"`
}

// Mail is a composed notification.
type Mail struct {
	From    string
	To      string
	Subject string
	Body    string
}

// EmailChannel composes a notification mail. The transport is not wired;
// the composed mail is only logged.
type EmailChannel struct {
	from string
	log  zerolog.Logger
}

// NewEmailChannel creates a push-email channel sending as from.
func NewEmailChannel(from string) *EmailChannel {
	return &EmailChannel{
		from: from,
		log:  logger.Component("delivery.email"),
	}
}

// Method implements Channel.
func (c *EmailChannel) Method() models.DeliveryMethod {
	return models.DeliveryPushEmail
}

// Deliver implements Channel.
func (c *EmailChannel) Deliver(ctx context.Context, hook *models.Hook, event *models.Event) error {
	msg, err := c.Compose(hook, event)
	if err != nil {
		return err
	}

	c.log.Info().
		Str("hook_id", hook.ID).
		Str("event_id", event.ID).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("Push email prepared")
	return nil
}

// Compose builds the notification mail for event.
func (c *EmailChannel) Compose(hook *models.Hook, event *models.Event) (*Mail, error) {
	var cfg EmailConfig
	if err := hook.DecodeDeliveryConfig(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidDeliveryConfig, err)
	}

	to, err := mail.ParseAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: address: %v", pkgerrors.ErrInvalidDeliveryConfig, err)
	}

	label := hook.ID
	if hook.Name != nil && *hook.Name != "" {
		label = *hook.Name
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Hook:     %s\n", hook.ID)
	fmt.Fprintf(&body, "Event:    %s\n", event.ID)
	fmt.Fprintf(&body, "Method:   %s\n", event.Method)
	fmt.Fprintf(&body, "Received: %s\n", event.ReceivedAt.UTC().Format(time.RFC3339))
	if event.SourceIP != nil {
		fmt.Fprintf(&body, "Source:   %s\n", *event.SourceIP)
	}
	if event.Body != nil {
		fmt.Fprintf(&body, "Size:     %d bytes\n", len(*event.Body))
	}

	return &Mail{
		From:    c.from,
		To:      to.Address,
		Subject: fmt.Sprintf("[hookrelay] %s received on %s", event.Method, label),
		Body:    body.String(),
	}, nil
}
