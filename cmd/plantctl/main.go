package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/plantlink/internal/config"
	"github.com/danmuck/plantlink/internal/device"
	"github.com/danmuck/plantlink/internal/emulator"
	"github.com/danmuck/plantlink/internal/logging"
	"github.com/danmuck/plantlink/internal/observability"
	"github.com/danmuck/plantlink/internal/protocol/frame"
	"github.com/danmuck/plantlink/internal/protocol/session"
	"github.com/danmuck/plantlink/internal/transport"
	"github.com/rs/zerolog/log"
)

var errUsage = errors.New("usage")

const usage = `usage: plantctl [flags] <command> [args]

commands:
  info                          device name, versions and uptime
  status                        system status
  sensor [-v1]                  current reading (v2 layout unless -v1)
  profile get|save
  profile set [flags]           write thresholds (see plantctl profile set -h)
  wifi get|connect|disconnect|save
  wifi set <ssid> <password>
  timezone get|save
  timezone set <posix-tz>
  time sync|set
  time data <rfc3339>           stored sample for that minute
  switch                        switch input state
  led <r> <g> <b> <brightness> [duration]
  brightness <0-100>
  reset                         restart the device
  watch [-interval d] [-limit n] poll readings into the journal
  history [-limit n]            readings from the journal
  config init [path]            write a config template

flags:
`

type options struct {
	configPath string
	addr       string
	timeout    time.Duration
	header     string
	journal    string
	sim        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "plantctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	logging.ConfigureRuntime()

	fs := flag.NewFlagSet("plantctl", flag.ContinueOnError)
	fs.SetOutput(out)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "config file (TOML)")
	fs.StringVar(&opts.addr, "addr", "", "websocket bridge address, overrides config")
	fs.DurationVar(&opts.timeout, "timeout", 0, "per-command response timeout, overrides config")
	fs.StringVar(&opts.header, "header", "", "response header layout: auto|header4|header5")
	fs.StringVar(&opts.journal, "journal", "", "journal database path, overrides config")
	fs.BoolVar(&opts.sim, "sim", false, "talk to an in-process emulated device")
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errUsage
	}

	if rest[0] == "config" {
		return runConfig(rest[1:], out)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if rest[0] == "history" {
		return runHistory(ctx, cfg, rest[1:], out)
	}

	link, err := openLink(ctx, cfg, opts.sim)
	if err != nil {
		return err
	}
	defer link.Close()

	sess, err := session.New(link, cfg.Session, session.WithObserver(observability.NewSessionMetrics(cfg.Node)))
	if err != nil {
		return err
	}
	client := device.NewClient(sess, cfg.Device)
	return dispatch(ctx, client, cfg, rest, out)
}

func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.timeout > 0 {
		cfg.Session.CommandTimeout = opts.timeout
	}
	if opts.header != "" {
		l, err := frame.ParseHeaderLayout(opts.header)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Session.HeaderLayout = l
	}
	if opts.journal != "" {
		cfg.JournalPath = opts.journal
	}
	return cfg, config.Validate(cfg)
}

func openLink(ctx context.Context, cfg config.Config, sim bool) (transport.Link, error) {
	if sim {
		dev := emulator.New(cfg.Simulator)
		log.Debug().Str("device", dev.Config().Name).Msg("using in-process emulator")
		return transport.NewPipe(dev, cfg.Bridge.Latency), nil
	}
	dial := transport.WSDialer(transport.WSConfig{
		Addr:             cfg.Addr,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Token:            cfg.Token,
	})
	connector := transport.NewConnector(dial, cfg.Session.Retry)
	return connector.Connect(ctx)
}
