package session

import (
	"time"

	"github.com/danmuck/plantlink/internal/protocol/frame"
	"github.com/danmuck/plantlink/internal/protocol/payload"
)

// RetryPolicy defines attempt count and delay between attempts.
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines per-session command behavior.
type Config struct {
	CommandTimeout time.Duration
	HeaderLayout   frame.HeaderLayout
	// ProfileSchema selects the plant profile layout; zero detects it from the
	// response length.
	ProfileSchema payload.ProfileSchema
	// StrictSequence fails responses whose sequence differs from the request.
	StrictSequence bool
	Retry          RetryPolicy
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:     3,
		InitialDelay: 2 * time.Second,
		Multiplier:   1.0,
		MaxDelay:     10 * time.Second,
		Jitter:       true,
	}
}

func DefaultConfig() Config {
	return Config{
		CommandTimeout: 5 * time.Second,
		HeaderLayout:   frame.HeaderAuto,
		Retry:          DefaultRetryPolicy(),
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = def.CommandTimeout
	}
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = def.Retry.Attempts
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = def.Retry.Multiplier
	}
	return c
}
