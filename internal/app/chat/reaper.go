package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ticketchat/internal/pkg/logx"
)

// Reaper periodically evicts idle channels from a Registry.
type Reaper struct {
	registry *Registry
	interval time.Duration
	idle     time.Duration
	now      func() time.Time

	// structured logger with Reaper context.
	logger zerolog.Logger
}

// NewReaper constructs a Reaper using the interval, idle timeout and clock from opts.
func NewReaper(registry *Registry, opts Options) *Reaper {
	opts = opts.withDefaults()

	return &Reaper{
		registry: registry,
		interval: opts.ReapInterval,
		idle:     opts.IdleTimeout,
		now:      opts.Now,
		logger:   logx.Component("Reaper"),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().
		Dur("interval", r.interval).
		Dur("idle_timeout", r.idle).
		Msg("Reaper started.")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Reaper stopped.")
			return

		case <-ticker.C:
			if _, err := r.Sweep(); err != nil {
				r.logger.Error().Err(err).Msg("Channel sweep failed.")
			}
		}
	}
}

// Sweep runs one eviction pass. A panic inside the pass is recovered and returned as
// an error so the Run loop survives it.
func (r *Reaper) Sweep() (evicted int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("recovered from panic during sweep: %v", rec)
		}
	}()

	evicted = r.registry.Sweep(r.now(), r.idle)
	if evicted > 0 {
		r.logger.Info().
			Int("evicted", evicted).
			Int("remaining", r.registry.Len()).
			Msg("Idle channels swept.")
	}

	return evicted, nil
}
