package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/plantlink/internal/config"
	"github.com/danmuck/plantlink/internal/emulator"
	"github.com/danmuck/plantlink/internal/observability"
	"github.com/danmuck/plantlink/internal/protocol/frame"
)

func main() {
	configPath := flag.String("config", "", "config file (TOML)")
	listen := flag.String("listen", "", "bridge listen address, overrides config")
	header := flag.String("header", "", "response header layout: header4|header5")
	flag.Parse()

	logger := observability.InitLogger("plantsim")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "plantsim: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.Bridge.Listen = *listen
	}
	if *header != "" {
		l, err := frame.ParseHeaderLayout(*header)
		if err != nil {
			fmt.Fprintf(os.Stderr, "plantsim: %v\n", err)
			os.Exit(2)
		}
		cfg.Simulator.Layout = l
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observability.RegisterMetrics()
	dev := emulator.New(cfg.Simulator)
	bridge := emulator.NewBridge(dev, cfg.Bridge, logger)
	if err := bridge.ListenAndServe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "plantsim: %v\n", err)
		os.Exit(1)
	}
}
