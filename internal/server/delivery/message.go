package delivery

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/nacl/box"

	"github.com/pandeptwidyaop/hookrelay/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/hookrelay/pkg/errors"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

// MessageConfig is the delivery_config shape for push-message hooks.
type MessageConfig struct {
	Recipient string `json:"recipient"`
	PublicKey string `json:"public_key"` // hex encoded curve25519 key
}

// MessageClaims is the signed notification body.
type MessageClaims struct {
	HookID     string `json:"hook_id"`
	EventID    string `json:"event_id"`
	Method     string `json:"method"`
	ReceivedAt int64  `json:"received_at"`
	jwt.RegisteredClaims
}

// MessageChannel signs a notification and seals it to the recipient's key.
// The transport is not wired; the sealed envelope is only logged.
type MessageChannel struct {
	signingKey []byte
	issuer     string
	log        zerolog.Logger
}

// NewMessageChannel creates a push-message channel.
func NewMessageChannel(signingKey, issuer string) *MessageChannel {
	return &MessageChannel{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		log:        logger.Component("delivery.message"),
	}
}

// Method implements Channel.
func (c *MessageChannel) Method() models.DeliveryMethod {
	return models.DeliveryPushMessage
}

// Deliver implements Channel.
func (c *MessageChannel) Deliver(ctx context.Context, hook *models.Hook, event *models.Event) error {
	sealed, cfg, err := c.Envelope(hook, event)
	if err != nil {
		return err
	}

	c.log.Info().
		Str("hook_id", hook.ID).
		Str("event_id", event.ID).
		Str("recipient", cfg.Recipient).
		Int("envelope_bytes", len(sealed)).
		Msg("Push message prepared")
	return nil
}

// Envelope builds the signed token for event and seals it to the configured key.
func (c *MessageChannel) Envelope(hook *models.Hook, event *models.Event) ([]byte, *MessageConfig, error) {
	var cfg MessageConfig
	if err := hook.DecodeDeliveryConfig(&cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidDeliveryConfig, err)
	}
	if cfg.Recipient == "" {
		return nil, nil, fmt.Errorf("%w: recipient is required", pkgerrors.ErrInvalidDeliveryConfig)
	}

	recipientKey, err := parsePublicKey(cfg.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	token, err := c.Sign(hook, event, cfg.Recipient)
	if err != nil {
		return nil, nil, err
	}

	sealed, err := box.SealAnonymous(nil, []byte(token), recipientKey, rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seal message: %w", err)
	}

	return sealed, &cfg, nil
}

// Sign returns the HS256 token announcing event to recipient.
func (c *MessageChannel) Sign(hook *models.Hook, event *models.Event, recipient string) (string, error) {
	claims := &MessageClaims{
		HookID:     hook.ID,
		EventID:    event.ID,
		Method:     event.Method,
		ReceivedAt: event.ReceivedAt.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.issuer,
			Subject:  recipient,
			IssuedAt: jwt.NewNumericDate(time.Now()),
			ID:       event.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	return signed, nil
}

func parsePublicKey(s string) (*[32]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("%w: public_key must be 32 hex-encoded bytes", pkgerrors.ErrInvalidDeliveryConfig)
	}

	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
