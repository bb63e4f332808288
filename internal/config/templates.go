package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/danmuck/plantlink/internal/protocol/payload"
	gotoml "github.com/pelletier/go-toml/v2"
)

const templateHeader = `# plantlink configuration
# Durations use Go syntax ("250ms", "5s"). Omitted keys keep their defaults.

`

// Render encodes cfg in the file format Load reads.
func Render(cfg Config) ([]byte, error) {
	raw := fileConfig{
		Node:             cfg.Node,
		Addr:             cfg.Addr,
		HandshakeTimeout: cfg.HandshakeTimeout.String(),
		Token:            cfg.Token,
		Session: fileSession{
			Timeout:        cfg.Session.CommandTimeout.String(),
			HeaderLayout:   cfg.Session.HeaderLayout.String(),
			ProfileSchema:  profileSchemaName(cfg.Session.ProfileSchema),
			StrictSequence: cfg.Session.StrictSequence,
		},
		Retry: fileRetry{
			Attempts:   cfg.Session.Retry.Attempts,
			Delay:      cfg.Session.Retry.InitialDelay.String(),
			Multiplier: cfg.Session.Retry.Multiplier,
			MaxDelay:   cfg.Session.Retry.MaxDelay.String(),
			Jitter:     cfg.Session.Retry.Jitter,
		},
		Breaker: fileBreaker{
			MaxFailures: int(cfg.Device.Breaker.MaxFailures),
			OpenTimeout: cfg.Device.Breaker.OpenTimeout.String(),
		},
		Watch: fileWatch{
			Interval: cfg.Watch.Interval.String(),
			Burst:    cfg.Watch.Burst,
			Extended: cfg.Watch.Extended,
			Limit:    cfg.Watch.Limit,
		},
		Journal: fileJournal{Path: cfg.JournalPath},
		Simulator: fileSimulator{
			Listen:        cfg.Bridge.Listen,
			Latency:       cfg.Bridge.Latency.String(),
			Name:          cfg.Simulator.Name,
			HeaderLayout:  cfg.Simulator.Layout.String(),
			ProfileSchema: profileSchemaName(cfg.Simulator.ProfileSchema),
			ClockSet:      cfg.Simulator.ClockSet,
			Timezone:      cfg.Simulator.Timezone,
			Token:         cfg.Bridge.Token,
		},
	}
	body, err := gotoml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(templateHeader)
	buf.Write(body)
	return buf.Bytes(), nil
}

func Template() ([]byte, error) {
	return Render(Default())
}

func WriteTemplate(path string, overwrite bool) error {
	body, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, body, 0o600)
}

func profileSchemaName(s payload.ProfileSchema) string {
	if s == 0 {
		return "auto"
	}
	return strconv.Itoa(s.Len())
}
