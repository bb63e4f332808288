package transport

import (
	"context"
	"math/rand"
	"time"

	"github.com/danmuck/plantlink/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Dialer opens one link attempt.
type Dialer func(ctx context.Context) (Link, error)

// WSDialer dials the websocket bridge described by cfg.
func WSDialer(cfg WSConfig) Dialer {
	return func(ctx context.Context) (Link, error) {
		return DialWS(ctx, cfg)
	}
}

// Connector retries a Dialer under a RetryPolicy.
type Connector struct {
	dial   Dialer
	policy session.RetryPolicy
	rng    *rand.Rand
}

func NewConnector(dial Dialer, policy session.RetryPolicy) *Connector {
	return &Connector{
		dial:   dial,
		policy: policy,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Connector) Connect(ctx context.Context) (Link, error) {
	var link Link
	err := session.Retry(ctx, c.policy, c.rng, nil, func(attempt int) error {
		l, err := c.dial(ctx)
		if err != nil {
			log.Warn().Int("attempt", attempt).Int("max", c.policy.Attempts).Err(err).Msg("connect failed")
			return err
		}
		link = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}
