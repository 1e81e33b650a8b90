package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/pandeptwidyaop/hookrelay/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/hookrelay/pkg/errors"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
	"github.com/pandeptwidyaop/hookrelay/pkg/utils"
)

const (
	DefaultMaxBodyBytes = 1 << 20 // 1 MiB
	DefaultPreviewBytes = 1000
)

// strippedHeaders never reach storage. Keys are lowercase.
var strippedHeaders = map[string]struct{}{
	"cookie":              {},
	"set-cookie":          {},
	"authorization":       {},
	"proxy-authorization": {},
	"x-forwarded-for":     {},
	"x-real-ip":           {},
	"x-client-ip":         {},
	"cf-connecting-ip":    {},
	"true-client-ip":      {},
	"forwarded":           {},
	"x-forwarded-host":    {},
	"x-forwarded-proto":   {},
}

// HookStore is the registry surface ingestion needs.
type HookStore interface {
	Lookup(ctx context.Context, hookID string) (*models.Hook, error)
	RecordTrigger(ctx context.Context, hookID string, at time.Time) error
}

// EventAppender persists captured events.
type EventAppender interface {
	Append(ctx context.Context, event *models.Event) error
}

// Dispatcher pushes events of push hooks. It must not fail the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, hook *models.Hook, event *models.Event)
}

// Receipt is the acknowledgement returned to the sender.
type Receipt struct {
	Received bool   `json:"received"`
	EventID  string `json:"event_id,omitempty"`
}

// Options tunes body handling. Zero values fall back to defaults.
type Options struct {
	MaxBodyBytes int
	PreviewBytes int
}

// Pipeline turns arbitrary inbound requests into stored events.
type Pipeline struct {
	hooks      HookStore
	events     EventAppender
	dispatcher Dispatcher
	opts       Options
	log        zerolog.Logger

	// Now stamps received_at. Tests may replace it.
	Now func() time.Time
}

// NewPipeline creates an ingestion pipeline. dispatcher may be nil.
func NewPipeline(hooks HookStore, events EventAppender, dispatcher Dispatcher, opts Options) *Pipeline {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.PreviewBytes <= 0 {
		opts.PreviewBytes = DefaultPreviewBytes
	}

	return &Pipeline{
		hooks:      hooks,
		events:     events,
		dispatcher: dispatcher,
		opts:       opts,
		log:        logger.Component("ingest"),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Ingest captures r for hookID. It never fails: every stage logs its own
// error and the sender always gets an acknowledgement. EventID is set only
// when an event was stored.
func (p *Pipeline) Ingest(ctx context.Context, hookID string, r *http.Request) Receipt {
	receipt := Receipt{Received: true}

	hook, err := p.hooks.Lookup(ctx, hookID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrHookNotFound) {
			p.log.Debug().Str("hook_id", hookID).Msg("Webhook for unknown hook ignored")
		} else {
			p.log.Error().Err(err).Str("hook_id", hookID).Msg("Hook lookup failed")
		}
		return receipt
	}

	event := &models.Event{
		HookID:      hook.ID,
		Method:      r.Method,
		Headers:     captureHeaders(r.Header),
		QueryParams: captureQuery(r.URL),
		ReceivedAt:  p.Now(),
	}
	if hasBody(r.Method) {
		event.Body = p.captureBody(r)
	}
	if ip := utils.SourceIP(r.Header); ip != "" {
		event.SourceIP = &ip
	}

	if err := p.events.Append(ctx, event); err != nil {
		p.log.Error().Err(err).Str("hook_id", hook.ID).Msg("Failed to store event")
		return receipt
	}
	receipt.EventID = event.ID

	if err := p.hooks.RecordTrigger(ctx, hook.ID, event.ReceivedAt); err != nil {
		p.log.Error().Err(err).Str("hook_id", hook.ID).Msg("Failed to update hook trigger stats")
	}

	if p.dispatcher != nil && hook.DeliveryMethod.IsPush() && hook.HasDeliveryConfig() {
		p.dispatcher.Dispatch(ctx, hook, event)
	}

	p.log.Debug().
		Str("hook_id", hook.ID).
		Str("event_id", event.ID).
		Str("method", event.Method).
		Msg("Event captured")

	return receipt
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// captureHeaders flattens headers to their first value under lowercase names,
// dropping credentials and forwarding metadata.
func captureHeaders(h http.Header) datatypes.JSON {
	flat := make(map[string]string, len(h))
	for name, values := range h {
		key := strings.ToLower(name)
		if _, skip := strippedHeaders[key]; skip || len(values) == 0 {
			continue
		}
		flat[key] = values[0]
	}

	raw, err := json.Marshal(flat)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

// captureQuery keeps the first value per key. No parameters yields nil.
func captureQuery(u *url.URL) *datatypes.JSON {
	if u == nil {
		return nil
	}

	values := u.Query()
	if len(values) == 0 {
		return nil
	}

	flat := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			flat[key] = vals[0]
		}
	}

	raw, err := json.Marshal(flat)
	if err != nil {
		return nil
	}
	j := datatypes.JSON(raw)
	return &j
}

type truncatedBody struct {
	Truncated    bool   `json:"_truncated"`
	OriginalSize int64  `json:"_original_size"`
	Preview      string `json:"_preview"`
}

// captureBody reads at most MaxBodyBytes+1 bytes into memory and counts the rest.
// Oversized bodies are replaced by a truncation marker with a preview.
func (p *Pipeline) captureBody(r *http.Request) *string {
	if r.Body == nil {
		return nil
	}

	limit := int64(p.opts.MaxBodyBytes)
	buf, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to read webhook body")
		return nil
	}

	if int64(len(buf)) <= limit {
		body := string(buf)
		return &body
	}

	rest, err := io.Copy(io.Discard, r.Body)
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to drain oversized webhook body")
	}

	marker, err := json.Marshal(truncatedBody{
		Truncated:    true,
		OriginalSize: int64(len(buf)) + rest,
		Preview:      preview(buf, p.opts.PreviewBytes),
	})
	if err != nil {
		return nil
	}

	body := string(marker)
	return &body
}

// preview returns the first n bytes of b, backing off so no rune is split.
func preview(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	cut := n
	for i := 0; i < utf8.UTFMax-1 && cut > 0 && !utf8.RuneStart(b[cut]); i++ {
		cut--
	}
	return string(b[:cut])
}
