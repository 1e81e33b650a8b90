package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

const (
	DefaultInterval = time.Hour
	DefaultWindow   = 7 * 24 * time.Hour
)

// Purger deletes events received before now minus window.
type Purger interface {
	PurgeOlderThan(ctx context.Context, window time.Duration) (int64, error)
}

// Reaper periodically evicts events past the retention window.
type Reaper struct {
	purger   Purger
	window   time.Duration
	interval time.Duration
	log      zerolog.Logger
}

// New creates a reaper. Non-positive durations fall back to defaults.
func New(purger Purger, window, interval time.Duration) *Reaper {
	if window <= 0 {
		window = DefaultWindow
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Reaper{
		purger:   purger,
		window:   window,
		interval: interval,
		log:      logger.Component("reaper"),
	}
}

// RunOnce performs a single purge and returns the number of removed events.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	purged, err := r.purger.PurgeOlderThan(ctx, r.window)
	if err != nil {
		r.log.Error().Err(err).Msg("Retention purge failed")
		return 0, err
	}

	if purged > 0 {
		r.log.Info().
			Int64("purged", purged).
			Dur("window", r.window).
			Msg("Purged expired events")
	}
	return purged, nil
}

// Run purges on every tick until ctx is cancelled. Failures wait for the next tick.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.interval).Dur("window", r.window).Msg("Retention reaper started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Retention reaper stopped")
			return
		case <-ticker.C:
			_, _ = r.RunOnce(ctx)
		}
	}
}
