package device

import (
	"context"
	"time"

	"github.com/danmuck/plantlink/internal/protocol/payload"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ReadingHandler receives each successful poll.
type ReadingHandler func(ctx context.Context, r payload.SensorReading) error

type WatchConfig struct {
	Interval time.Duration
	// Burst allows that many polls back to back before Interval applies.
	Burst    int
	Extended bool
	// Limit stops the watcher after that many readings; zero runs until the
	// context ends.
	Limit int
}

func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Interval: 30 * time.Second,
		Burst:    1,
		Extended: true,
	}
}

// Watcher polls the sensor at a fixed rate. Failed polls are logged and
// skipped; handler errors stop the watcher.
type Watcher struct {
	client  *Client
	cfg     WatchConfig
	limiter *rate.Limiter
	handle  ReadingHandler
}

func NewWatcher(client *Client, cfg WatchConfig, handle ReadingHandler) *Watcher {
	def := DefaultWatchConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	return &Watcher{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), cfg.Burst),
		handle:  handle,
	}
}

// Run blocks until ctx ends, the handler fails, or Limit readings arrive.
// It returns the number of readings delivered.
func (w *Watcher) Run(ctx context.Context) (int, error) {
	delivered := 0
	failures := 0
	for w.cfg.Limit <= 0 || delivered < w.cfg.Limit {
		// Wait fails only when ctx ends, or would end, before the next token.
		if err := w.limiter.Wait(ctx); err != nil {
			return delivered, nil
		}
		r, err := w.client.Sensor(ctx, w.cfg.Extended)
		if err != nil {
			if ctx.Err() != nil {
				return delivered, nil
			}
			failures++
			log.Warn().Err(err).Int("failures", failures).Msg("sensor poll failed")
			continue
		}
		failures = 0
		if w.handle != nil {
			if err := w.handle(ctx, r); err != nil {
				return delivered, err
			}
		}
		delivered++
	}
	return delivered, nil
}
