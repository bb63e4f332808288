// Package device wraps a session.Session with typed plant monitor operations,
// retries for transient failures and a circuit breaker around the link.
package device

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/danmuck/plantlink/internal/protocol/payload"
	"github.com/danmuck/plantlink/internal/protocol/schema"
	"github.com/danmuck/plantlink/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultMaxFailures uint32 = 5
	defaultOpenTimeout        = 30 * time.Second
)

var ErrLinkUnavailable = errors.New("device: link unavailable")

// BreakerConfig controls when the client stops talking to a failing link.
type BreakerConfig struct {
	// MaxFailures is the consecutive timeout or transport failure count that
	// opens the breaker.
	MaxFailures uint32
	OpenTimeout time.Duration
}

type Config struct {
	Name    string
	Breaker BreakerConfig
	// Retry re-sends commands that failed with a timeout or transport error.
	// System reset is never retried.
	Retry session.RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		Name: "plant-monitor",
		Breaker: BreakerConfig{
			MaxFailures: defaultMaxFailures,
			OpenTimeout: defaultOpenTimeout,
		},
		Retry: session.DefaultRetryPolicy(),
	}
}

type Client struct {
	sess    *session.Session
	cfg     Config
	breaker *gobreaker.CircuitBreaker[session.Response]
	rng     *rand.Rand
}

func NewClient(sess *session.Session, cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = def.Breaker.MaxFailures
	}
	if cfg.Breaker.OpenTimeout <= 0 {
		cfg.Breaker.OpenTimeout = def.Breaker.OpenTimeout
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 1
	}
	maxFailures := cfg.Breaker.MaxFailures
	cb := gobreaker.NewCircuitBreaker[session.Response](gobreaker.Settings{
		Name:        "device:" + cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("breaker state change")
		},
		// A device that answers with an error status is reachable.
		IsSuccessful: func(err error) bool {
			return err == nil || !session.IsRetryable(err)
		},
	})
	return &Client{
		sess:    sess,
		cfg:     cfg,
		breaker: cb,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Client) Session() *session.Session {
	return c.sess
}

func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Do sends cmd through the breaker, retrying transient failures.
func (c *Client) Do(ctx context.Context, cmd schema.CommandID, body []byte) (session.Response, error) {
	resp, err := c.breaker.Execute(func() (session.Response, error) {
		policy := c.cfg.Retry
		if cmd == schema.CmdSystemReset {
			policy.Attempts = 1
		}
		var resp session.Response
		err := session.Retry(ctx, policy, c.rng, session.IsRetryable, func(attempt int) error {
			if attempt > 1 {
				log.Debug().Str("cmd", cmd.String()).Int("attempt", attempt).Msg("retrying command")
			}
			r, err := c.sess.Send(ctx, cmd, body)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		return resp, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return session.Response{}, fmt.Errorf("%w: %s: %w", ErrLinkUnavailable, cmd, err)
	}
	return resp, err
}

func (c *Client) exec(ctx context.Context, cmd schema.CommandID, body []byte) error {
	_, err := c.Do(ctx, cmd, body)
	return err
}

func (c *Client) Info(ctx context.Context) (payload.DeviceInfo, error) {
	resp, err := c.Do(ctx, schema.CmdGetDeviceInfo, nil)
	if err != nil {
		return payload.DeviceInfo{}, err
	}
	return *resp.Info, nil
}

func (c *Client) SystemStatus(ctx context.Context) (payload.SystemStatus, error) {
	resp, err := c.Do(ctx, schema.CmdGetSystemStatus, nil)
	if err != nil {
		return payload.SystemStatus{}, err
	}
	return *resp.Status, nil
}

// Sensor reads the current sample. extended selects the v2 command, which
// adds soil probe channels.
func (c *Client) Sensor(ctx context.Context, extended bool) (payload.SensorReading, error) {
	cmd := schema.CmdGetSensorData
	if extended {
		cmd = schema.CmdGetSensorDataV2
	}
	resp, err := c.Do(ctx, cmd, nil)
	if err != nil {
		return payload.SensorReading{}, err
	}
	return *resp.Sensor, nil
}

func (c *Client) Profile(ctx context.Context) (payload.PlantProfile, error) {
	resp, err := c.Do(ctx, schema.CmdGetPlantProfile, nil)
	if err != nil {
		return payload.PlantProfile{}, err
	}
	return *resp.Profile, nil
}

// SetProfile writes p. A zero p.Schema uses the session's configured schema.
func (c *Client) SetProfile(ctx context.Context, p payload.PlantProfile) error {
	if p.Schema == 0 {
		p.Schema = c.sess.Config().ProfileSchema
	}
	body, err := payload.EncodePlantProfile(p)
	if err != nil {
		return err
	}
	return c.exec(ctx, schema.CmdSetPlantProfile, body)
}

func (c *Client) SaveProfile(ctx context.Context) error {
	return c.exec(ctx, schema.CmdSavePlantProfile, nil)
}

func (c *Client) Wifi(ctx context.Context) (payload.WifiConfig, error) {
	resp, err := c.Do(ctx, schema.CmdGetWifiConfig, nil)
	if err != nil {
		return payload.WifiConfig{}, err
	}
	return *resp.Wifi, nil
}

func (c *Client) SetWifi(ctx context.Context, ssid, password string) error {
	return c.exec(ctx, schema.CmdSetWifiConfig, payload.EncodeWifiConfig(ssid, password))
}

func (c *Client) SaveWifi(ctx context.Context) error {
	return c.exec(ctx, schema.CmdSaveWifiConfig, nil)
}

func (c *Client) ConnectWifi(ctx context.Context) error {
	return c.exec(ctx, schema.CmdWifiConnect, nil)
}

func (c *Client) DisconnectWifi(ctx context.Context) error {
	return c.exec(ctx, schema.CmdWifiDisconnect, nil)
}

func (c *Client) Timezone(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, schema.CmdGetTimezone, nil)
	if err != nil {
		return "", err
	}
	return resp.Timezone, nil
}

func (c *Client) SetTimezone(ctx context.Context, tz string) error {
	return c.exec(ctx, schema.CmdSetTimezone, payload.EncodeTimezone(tz))
}

func (c *Client) SaveTimezone(ctx context.Context) error {
	return c.exec(ctx, schema.CmdSaveTimezone, nil)
}

// SyncTime asks the device to run NTP over its own Wi-Fi link.
func (c *Client) SyncTime(ctx context.Context) error {
	return c.exec(ctx, schema.CmdSyncTime, nil)
}

// SetTime writes the device clock from the host.
func (c *Client) SetTime(ctx context.Context, t time.Time) error {
	return c.exec(ctx, schema.CmdSetTime, payload.EncodeCalendar(payload.CalendarFromTime(t.UTC())))
}

// TimeData fetches the stored sample for the minute containing at.
func (c *Client) TimeData(ctx context.Context, at time.Time) (payload.TimeData, error) {
	resp, err := c.Do(ctx, schema.CmdGetTimeData, payload.EncodeTimeDataRequest(payload.CalendarFromTime(at.UTC())))
	if err != nil {
		return payload.TimeData{}, err
	}
	return *resp.TimeData, nil
}

func (c *Client) Switch(ctx context.Context) (bool, error) {
	resp, err := c.Do(ctx, schema.CmdGetSwitchStatus, nil)
	if err != nil {
		return false, err
	}
	return resp.SwitchOn, nil
}

func (c *Client) LED(ctx context.Context, l payload.LEDControl) error {
	return c.exec(ctx, schema.CmdControlLED, payload.EncodeLEDControl(l))
}

func (c *Client) Brightness(ctx context.Context, level uint8) error {
	return c.exec(ctx, schema.CmdSetLEDBrightness, payload.EncodeLEDBrightness(level))
}

func (c *Client) Reset(ctx context.Context) error {
	return c.exec(ctx, schema.CmdSystemReset, nil)
}
