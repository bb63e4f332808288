package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/danmuck/plantlink/internal/config"
	"github.com/danmuck/plantlink/internal/device"
	"github.com/danmuck/plantlink/internal/journal"
	"github.com/danmuck/plantlink/internal/protocol/payload"
	"github.com/rs/zerolog/log"
)

func dispatch(ctx context.Context, c *device.Client, cfg config.Config, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "info":
		info, err := c.Info(ctx)
		if err != nil {
			return err
		}
		printInfo(out, info)
	case "status":
		st, err := c.SystemStatus(ctx)
		if err != nil {
			return err
		}
		printStatus(out, st)
	case "sensor":
		fs := flag.NewFlagSet("sensor", flag.ContinueOnError)
		fs.SetOutput(out)
		v1 := fs.Bool("v1", false, "use the v1 reading command (0x01)")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		r, err := c.Sensor(ctx, !*v1)
		if err != nil {
			return err
		}
		printReading(out, r)
	case "profile":
		return runProfile(ctx, c, rest, out)
	case "wifi":
		return runWifi(ctx, c, rest, out)
	case "timezone":
		return runTimezone(ctx, c, rest, out)
	case "time":
		return runTime(ctx, c, rest, out)
	case "switch":
		on, err := c.Switch(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "switch: %s\n", onOff(on))
	case "led":
		return runLED(ctx, c, rest, out)
	case "brightness":
		if len(rest) != 1 {
			return fmt.Errorf("%w: brightness <0-100>", errUsage)
		}
		level, err := parseUint8(rest[0])
		if err != nil {
			return err
		}
		if err := c.Brightness(ctx, level); err != nil {
			return err
		}
		fmt.Fprintf(out, "brightness set to %d\n", level)
	case "reset":
		if err := c.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "reset requested")
	case "watch":
		return runWatch(ctx, c, cfg, rest, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	return nil
}

func runProfile(ctx context.Context, c *device.Client, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: profile get|set|save", errUsage)
	}
	switch args[0] {
	case "get":
		p, err := c.Profile(ctx)
		if err != nil {
			return err
		}
		printProfile(out, p)
	case "save":
		if err := c.SaveProfile(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "profile saved")
	case "set":
		current, err := c.Profile(ctx)
		if err != nil {
			return err
		}
		fs := flag.NewFlagSet("profile set", flag.ContinueOnError)
		fs.SetOutput(out)
		name := fs.String("name", current.Name, "plant name (max 31 bytes)")
		dry := fs.Float64("dry", float64(current.SoilDryThreshold), "soil dry threshold in mV")
		wet := fs.Float64("wet", float64(current.SoilWetThreshold), "soil wet threshold in mV")
		days := fs.Int("days", int(current.SoilDryDays), "dry days before a watering warning")
		high := fs.Float64("high", float64(current.TempHighLimit), "high temperature limit in C")
		low := fs.Float64("low", float64(current.TempLowLimit), "low temperature limit in C")
		water := fs.Float64("watering", float64(current.WateringThreshold), "watering detection threshold in mV")
		save := fs.Bool("save", false, "persist after writing")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		next := payload.PlantProfile{
			Schema:            current.Schema,
			Name:              *name,
			SoilDryThreshold:  float32(*dry),
			SoilWetThreshold:  float32(*wet),
			SoilDryDays:       int32(*days),
			TempHighLimit:     float32(*high),
			TempLowLimit:      float32(*low),
			WateringThreshold: float32(*water),
		}
		if err := c.SetProfile(ctx, next); err != nil {
			return err
		}
		if *save {
			if err := c.SaveProfile(ctx); err != nil {
				return err
			}
		}
		printProfile(out, next)
	default:
		return fmt.Errorf("%w: profile get|set|save", errUsage)
	}
	return nil
}

func runWifi(ctx context.Context, c *device.Client, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: wifi get|set|connect|disconnect|save", errUsage)
	}
	switch args[0] {
	case "get":
		w, err := c.Wifi(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "ssid:     %s\npassword: %s\n", w.SSID, w.Password)
	case "set":
		if len(args) != 3 {
			return fmt.Errorf("%w: wifi set <ssid> <password>", errUsage)
		}
		if err := c.SetWifi(ctx, args[1], args[2]); err != nil {
			return err
		}
		fmt.Fprintf(out, "wifi credentials set for %q\n", args[1])
	case "connect":
		if err := c.ConnectWifi(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "wifi connect requested")
	case "disconnect":
		if err := c.DisconnectWifi(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "wifi disconnected")
	case "save":
		if err := c.SaveWifi(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "wifi config saved")
	default:
		return fmt.Errorf("%w: wifi get|set|connect|disconnect|save", errUsage)
	}
	return nil
}

func runTimezone(ctx context.Context, c *device.Client, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "get" {
		tz, err := c.Timezone(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "timezone: %s\n", tz)
		return nil
	}
	switch args[0] {
	case "set":
		if len(args) != 2 {
			return fmt.Errorf("%w: timezone set <posix-tz>", errUsage)
		}
		if err := c.SetTimezone(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "timezone set to %s\n", args[1])
	case "save":
		if err := c.SaveTimezone(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "timezone saved")
	default:
		return fmt.Errorf("%w: timezone get|set|save", errUsage)
	}
	return nil
}

func runTime(ctx context.Context, c *device.Client, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: time sync|set|data <rfc3339>", errUsage)
	}
	switch args[0] {
	case "sync":
		if err := c.SyncTime(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "time sync requested")
	case "set":
		now := time.Now()
		if err := c.SetTime(ctx, now); err != nil {
			return err
		}
		fmt.Fprintf(out, "device clock set to %s\n", now.UTC().Format(time.RFC3339))
	case "data":
		if len(args) != 2 {
			return fmt.Errorf("%w: time data <rfc3339>", errUsage)
		}
		at, err := time.Parse(time.RFC3339, args[1])
		if err != nil {
			return err
		}
		d, err := c.TimeData(ctx, at)
		if err != nil {
			return err
		}
		printTimeData(out, d)
	default:
		return fmt.Errorf("%w: time sync|set|data <rfc3339>", errUsage)
	}
	return nil
}

func runLED(ctx context.Context, c *device.Client, args []string, out io.Writer) error {
	if len(args) != 4 && len(args) != 5 {
		return fmt.Errorf("%w: led <r> <g> <b> <brightness> [duration]", errUsage)
	}
	var vals [4]uint8
	for i := range vals {
		v, err := parseUint8(args[i])
		if err != nil {
			return err
		}
		vals[i] = v
	}
	l := payload.LEDControl{Red: vals[0], Green: vals[1], Blue: vals[2], Brightness: vals[3]}
	if len(args) == 5 {
		d, err := time.ParseDuration(args[4])
		if err != nil {
			return err
		}
		l.Duration = d
	}
	if err := c.LED(ctx, l); err != nil {
		return err
	}
	fmt.Fprintf(out, "led #%02x%02x%02x at %d%%\n", l.Red, l.Green, l.Blue, l.Brightness)
	return nil
}

func runWatch(ctx context.Context, c *device.Client, cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(out)
	wc := cfg.Watch
	fs.DurationVar(&wc.Interval, "interval", wc.Interval, "poll interval")
	fs.IntVar(&wc.Limit, "limit", wc.Limit, "stop after n readings, 0 runs until interrupted")
	fs.BoolVar(&wc.Extended, "v2", wc.Extended, "poll the v2 reading command")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	store, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer store.Close()

	w := device.NewWatcher(c, wc, func(ctx context.Context, r payload.SensorReading) error {
		if _, err := store.Append(ctx, cfg.Node, r); err != nil {
			return err
		}
		printReading(out, r)
		return nil
	})
	n, err := w.Run(ctx)
	log.Info().Int("readings", n).Str("journal", cfg.JournalPath).Msg("watch finished")
	return err
}

func runHistory(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(out)
	limit := fs.Int("limit", 20, "entries to show")
	node := fs.String("node", cfg.Node, "device name the readings were stored under")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	store, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(ctx, *node, *limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "no readings recorded")
		return nil
	}
	for _, e := range entries {
		printEntry(out, e)
	}
	return nil
}

func runConfig(args []string, out io.Writer) error {
	if len(args) == 0 || args[0] != "init" {
		return fmt.Errorf("%w: config init [path]", errUsage)
	}
	if len(args) == 1 {
		body, err := config.Template()
		if err != nil {
			return err
		}
		_, err = out.Write(body)
		return err
	}
	if err := config.WriteTemplate(args[1], false); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", args[1])
	return nil
}

func parseUint8(raw string) (uint8, error) {
	v, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte value %q", raw)
	}
	return uint8(v), nil
}
