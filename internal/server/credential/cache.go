package credential

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/pandeptwidyaop/hookrelay/pkg/errors"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
	"github.com/pandeptwidyaop/hookrelay/pkg/utils"
)

const (
	DefaultTTL  = 60 * time.Second
	DefaultSize = 10000

	usageTimeout  = 10 * time.Second
	verifyTimeout = 10 * time.Second
)

type entry struct {
	result     Result
	verifiedAt time.Time
}

// Cache fronts an Authority with a bounded TTL map of positive verifications.
type Cache struct {
	authority Authority
	entries   *expirable.LRU[string, entry]
	group     singleflight.Group
	ttl       time.Duration
	log       zerolog.Logger

	// Now is the clock used for freshness checks. Tests may replace it.
	Now func() time.Time
}

// NewCache creates a credential cache. Zero ttl or size fall back to defaults.
func NewCache(authority Authority, ttl time.Duration, size int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if size <= 0 {
		size = DefaultSize
	}

	return &Cache{
		authority: authority,
		entries:   expirable.NewLRU[string, entry](size, nil, ttl),
		ttl:       ttl,
		log:       logger.Component("credential"),
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// cacheKey keys entries by operation and token hash so raw tokens are never held as keys.
func cacheKey(token, operation string) string {
	return utils.HashToken(token) + ":" + operation
}

// Verify returns the verification result for token and operation.
// It never returns an error: an unreachable authority yields an invalid result.
func (c *Cache) Verify(ctx context.Context, token, operation string) Result {
	if token == "" {
		return Result{Valid: false, Error: pkgerrors.ErrUnauthorized.Error()}
	}

	key := cacheKey(token, operation)
	if e, ok := c.entries.Get(key); ok {
		if c.Now().Sub(e.verifiedAt) < c.ttl {
			return e.result
		}
		c.entries.Remove(key)
	}

	// The shared call outlives any single caller; each caller waits on its own ctx.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), verifyTimeout)
		defer cancel()

		res, err := c.authority.Verify(callCtx, token, operation)
		if err != nil {
			c.log.Warn().Err(err).Str("operation", operation).Msg("Credential verification failed")
			return unavailable(), nil
		}

		if res.Valid {
			c.entries.Add(key, entry{result: *res, verifiedAt: c.Now()})
		}
		return *res, nil
	})

	select {
	case r := <-ch:
		return r.Val.(Result)
	case <-ctx.Done():
		return unavailable()
	}
}

func unavailable() Result {
	return Result{Valid: false, Error: pkgerrors.ErrAuthorityUnavailable.Error()}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// ReportUsage forwards records to the authority in the background.
// Failures are logged and never reach the caller.
func (c *Cache) ReportUsage(records []UsageRecord) {
	if len(records) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), usageTimeout)
		defer cancel()

		if err := c.authority.ReportUsage(ctx, records); err != nil {
			c.log.Warn().Err(err).Int("records", len(records)).Msg("Usage report failed")
		}
	}()
}

// RecordCall reports a single usage record for an authenticated call.
func (c *Cache) RecordCall(identity, operation string) {
	c.ReportUsage([]UsageRecord{{
		ID:        uuid.New().String(),
		Identity:  identity,
		Operation: operation,
		Quantity:  1,
		Timestamp: c.Now(),
	}})
}
