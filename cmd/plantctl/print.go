package main

import (
	"fmt"
	"io"
	"time"

	"github.com/danmuck/plantlink/internal/journal"
	"github.com/danmuck/plantlink/internal/protocol/payload"
)

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func printInfo(out io.Writer, d payload.DeviceInfo) {
	fmt.Fprintf(out, "name:      %s\n", d.Name)
	fmt.Fprintf(out, "firmware:  %s\n", d.FirmwareVersion)
	fmt.Fprintf(out, "hardware:  %s\n", d.HardwareVersion)
	fmt.Fprintf(out, "uptime:    %s\n", d.Uptime())
	fmt.Fprintf(out, "readings:  %d\n", d.TotalReadings)
}

func printStatus(out io.Writer, s payload.SystemStatus) {
	fmt.Fprintf(out, "uptime:    %s\n", s.Uptime())
	fmt.Fprintf(out, "heap:      %d free, %d min\n", s.HeapFree, s.HeapMinFree)
	fmt.Fprintf(out, "tasks:     %d\n", s.TaskCount)
	if clock, ok := s.Clock(); ok {
		fmt.Fprintf(out, "clock:     %s\n", clock.UTC().Format(time.RFC3339))
	} else if s.HasClock {
		fmt.Fprintln(out, "clock:     not set")
	}
	fmt.Fprintf(out, "wifi:      %s\n", onOff(s.WifiConnected))
	fmt.Fprintf(out, "link:      %s\n", onOff(s.LinkConnected))
}

func printReading(out io.Writer, r payload.SensorReading) {
	fmt.Fprintf(out, "%s %s lux=%.0f temp=%.2fC hum=%.1f%% soil=%.0fmV",
		r.Time.Time(nil).Format(time.RFC3339), r.Version, r.Lux, r.Temperature, r.Humidity, r.SoilMoisture)
	if r.Soil != nil {
		fmt.Fprintf(out, " soil_temp=%.2f/%.2fC cap=%.2f/%.2f/%.2f/%.2fpF",
			r.Soil.Temperature[0], r.Soil.Temperature[1],
			r.Soil.Capacitance[0], r.Soil.Capacitance[1], r.Soil.Capacitance[2], r.Soil.Capacitance[3])
	}
	fmt.Fprintln(out)
}

func printProfile(out io.Writer, p payload.PlantProfile) {
	fmt.Fprintf(out, "name:      %s\n", p.Name)
	fmt.Fprintf(out, "soil:      dry>=%.0fmV wet<=%.0fmV after %d days\n", p.SoilDryThreshold, p.SoilWetThreshold, p.SoilDryDays)
	fmt.Fprintf(out, "temp:      %.1fC..%.1fC\n", p.TempLowLimit, p.TempHighLimit)
	if p.HasWateringThreshold() {
		fmt.Fprintf(out, "watering:  %.0fmV\n", p.WateringThreshold)
	}
}

func printTimeData(out io.Writer, d payload.TimeData) {
	fmt.Fprintf(out, "%s temp=%.2fC hum=%.1f%% lux=%.0f soil=%.0fmV\n",
		d.Time.Time(nil).Format(time.RFC3339), d.Temperature, d.Humidity, d.Lux, d.SoilMoisture)
}

func printEntry(out io.Writer, e journal.Entry) {
	fmt.Fprintf(out, "%s  ", e.ID)
	printReading(out, e.Reading)
}
