// Package config loads the TOML file shared by plantctl and plantsim. Keys
// that are absent keep their defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/plantlink/internal/device"
	"github.com/danmuck/plantlink/internal/emulator"
	"github.com/danmuck/plantlink/internal/protocol/frame"
	"github.com/danmuck/plantlink/internal/protocol/payload"
	"github.com/danmuck/plantlink/internal/protocol/session"
)

var (
	ErrNodeRequired    = errors.New("config: node required")
	ErrAddressRequired = errors.New("config: addr required")
	ErrInvalidTimeout  = errors.New("config: session timeout must be positive")
)

type Config struct {
	// Node labels logs, metrics and journal rows.
	Node             string
	Addr             string
	HandshakeTimeout time.Duration
	// Token authenticates to a bridge started with simulator.token.
	Token       string
	Session     session.Config
	Device      device.Config
	Watch       device.WatchConfig
	JournalPath string
	Simulator   emulator.Config
	Bridge      emulator.BridgeConfig
}

func Default() Config {
	bridge := emulator.DefaultBridgeConfig()
	return Config{
		Node:             "plantctl",
		Addr:             "ws://" + bridge.Listen + "/link",
		HandshakeTimeout: 5 * time.Second,
		Session:          session.DefaultConfig(),
		Device:           device.DefaultConfig(),
		Watch:            device.DefaultWatchConfig(),
		JournalPath:      "plantlink.db",
		Simulator:        emulator.DefaultConfig(),
		Bridge:           bridge,
	}
}

type fileConfig struct {
	Node             string        `toml:"node"`
	Addr             string        `toml:"addr"`
	HandshakeTimeout string        `toml:"handshake_timeout"`
	Token            string        `toml:"token"`
	Session          fileSession   `toml:"session"`
	Retry            fileRetry     `toml:"retry"`
	Breaker          fileBreaker   `toml:"breaker"`
	Watch            fileWatch     `toml:"watch"`
	Journal          fileJournal   `toml:"journal"`
	Simulator        fileSimulator `toml:"simulator"`
}

type fileSession struct {
	Timeout        string `toml:"timeout"`
	HeaderLayout   string `toml:"header_layout"`
	ProfileSchema  string `toml:"profile_schema"`
	StrictSequence bool   `toml:"strict_sequence"`
}

type fileRetry struct {
	Attempts   int     `toml:"attempts"`
	Delay      string  `toml:"delay"`
	Multiplier float64 `toml:"multiplier"`
	MaxDelay   string  `toml:"max_delay"`
	Jitter     bool    `toml:"jitter"`
}

type fileBreaker struct {
	MaxFailures int    `toml:"max_failures"`
	OpenTimeout string `toml:"open_timeout"`
}

type fileWatch struct {
	Interval string `toml:"interval"`
	Burst    int    `toml:"burst"`
	Extended bool   `toml:"extended"`
	Limit    int    `toml:"limit"`
}

type fileJournal struct {
	Path string `toml:"path"`
}

type fileSimulator struct {
	Listen        string `toml:"listen"`
	Latency       string `toml:"latency"`
	Name          string `toml:"name"`
	HeaderLayout  string `toml:"header_layout"`
	ProfileSchema string `toml:"profile_schema"`
	ClockSet      bool   `toml:"clock_set"`
	Timezone      string `toml:"timezone"`
	Token         string `toml:"token"`
}

// Load overlays the file at path onto Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("node") {
		cfg.Node = strings.TrimSpace(raw.Node)
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("token") {
		cfg.Token = strings.TrimSpace(raw.Token)
	}
	if err := setDuration(meta.IsDefined("handshake_timeout"), raw.HandshakeTimeout, "handshake_timeout", &cfg.HandshakeTimeout); err != nil {
		return Config{}, err
	}

	if err := setDuration(meta.IsDefined("session", "timeout"), raw.Session.Timeout, "session.timeout", &cfg.Session.CommandTimeout); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("session", "header_layout") {
		l, err := frame.ParseHeaderLayout(raw.Session.HeaderLayout)
		if err != nil {
			return Config{}, fmt.Errorf("parse session.header_layout: %w", err)
		}
		cfg.Session.HeaderLayout = l
	}
	if meta.IsDefined("session", "profile_schema") {
		s, err := parseProfileSchema(raw.Session.ProfileSchema)
		if err != nil {
			return Config{}, fmt.Errorf("parse session.profile_schema: %w", err)
		}
		cfg.Session.ProfileSchema = s
	}
	if meta.IsDefined("session", "strict_sequence") {
		cfg.Session.StrictSequence = raw.Session.StrictSequence
	}

	r := &cfg.Session.Retry
	if meta.IsDefined("retry", "attempts") {
		r.Attempts = raw.Retry.Attempts
	}
	if err := setDuration(meta.IsDefined("retry", "delay"), raw.Retry.Delay, "retry.delay", &r.InitialDelay); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("retry", "multiplier") {
		r.Multiplier = raw.Retry.Multiplier
	}
	if err := setDuration(meta.IsDefined("retry", "max_delay"), raw.Retry.MaxDelay, "retry.max_delay", &r.MaxDelay); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("retry", "jitter") {
		r.Jitter = raw.Retry.Jitter
	}
	cfg.Device.Retry = cfg.Session.Retry

	if meta.IsDefined("breaker", "max_failures") {
		if raw.Breaker.MaxFailures < 0 {
			return Config{}, fmt.Errorf("parse breaker.max_failures: negative")
		}
		cfg.Device.Breaker.MaxFailures = uint32(raw.Breaker.MaxFailures)
	}
	if err := setDuration(meta.IsDefined("breaker", "open_timeout"), raw.Breaker.OpenTimeout, "breaker.open_timeout", &cfg.Device.Breaker.OpenTimeout); err != nil {
		return Config{}, err
	}

	if err := setDuration(meta.IsDefined("watch", "interval"), raw.Watch.Interval, "watch.interval", &cfg.Watch.Interval); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("watch", "burst") {
		cfg.Watch.Burst = raw.Watch.Burst
	}
	if meta.IsDefined("watch", "extended") {
		cfg.Watch.Extended = raw.Watch.Extended
	}
	if meta.IsDefined("watch", "limit") {
		cfg.Watch.Limit = raw.Watch.Limit
	}

	if meta.IsDefined("journal", "path") {
		cfg.JournalPath = strings.TrimSpace(raw.Journal.Path)
	}

	sim := &cfg.Simulator
	if meta.IsDefined("simulator", "listen") {
		cfg.Bridge.Listen = strings.TrimSpace(raw.Simulator.Listen)
	}
	if err := setDuration(meta.IsDefined("simulator", "latency"), raw.Simulator.Latency, "simulator.latency", &cfg.Bridge.Latency); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("simulator", "name") {
		sim.Name = strings.TrimSpace(raw.Simulator.Name)
	}
	if meta.IsDefined("simulator", "header_layout") {
		l, err := frame.ParseHeaderLayout(raw.Simulator.HeaderLayout)
		if err != nil {
			return Config{}, fmt.Errorf("parse simulator.header_layout: %w", err)
		}
		sim.Layout = l
	}
	if meta.IsDefined("simulator", "profile_schema") {
		s, err := parseProfileSchema(raw.Simulator.ProfileSchema)
		if err != nil {
			return Config{}, fmt.Errorf("parse simulator.profile_schema: %w", err)
		}
		sim.ProfileSchema = s
	}
	if meta.IsDefined("simulator", "clock_set") {
		sim.ClockSet = raw.Simulator.ClockSet
	}
	if meta.IsDefined("simulator", "timezone") {
		sim.Timezone = strings.TrimSpace(raw.Simulator.Timezone)
	}
	if meta.IsDefined("simulator", "token") {
		cfg.Bridge.Token = strings.TrimSpace(raw.Simulator.Token)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Node) == "" {
		return ErrNodeRequired
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return ErrAddressRequired
	}
	if cfg.Session.CommandTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if cfg.Session.Retry.Attempts <= 0 {
		return fmt.Errorf("config: retry.attempts must be positive, got %d", cfg.Session.Retry.Attempts)
	}
	if cfg.Session.Retry.Multiplier < 1 {
		return fmt.Errorf("config: retry.multiplier must be >= 1, got %v", cfg.Session.Retry.Multiplier)
	}
	if cfg.Watch.Interval <= 0 {
		return fmt.Errorf("config: watch.interval must be positive")
	}
	return nil
}

func setDuration(defined bool, raw, key string, dst *time.Duration) error {
	if !defined {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

// parseProfileSchema accepts "auto" for length detection in addition to the
// explicit sizes.
func parseProfileSchema(raw string) (payload.ProfileSchema, error) {
	if strings.EqualFold(strings.TrimSpace(raw), "auto") {
		return 0, nil
	}
	return payload.ParseProfileSchema(raw)
}
