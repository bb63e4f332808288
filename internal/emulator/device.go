package emulator

import (
	"math"
	"sync"
	"time"

	"github.com/danmuck/plantlink/internal/observability"
	"github.com/danmuck/plantlink/internal/protocol/frame"
	"github.com/danmuck/plantlink/internal/protocol/payload"
	"github.com/danmuck/plantlink/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// Config seeds the emulated device.
type Config struct {
	Name            string
	FirmwareVersion string
	HardwareVersion string
	// Layout is the response header the device emits. Header4 reproduces the
	// legacy one-byte length.
	Layout        frame.HeaderLayout
	ProfileSchema payload.ProfileSchema
	// ClockSet selects the 24-byte system status layout.
	ClockSet bool
	Timezone string
	Node     string
}

func DefaultConfig() Config {
	return Config{
		Name:            "Plant Monitor",
		FirmwareVersion: "2.0.0",
		HardwareVersion: "2.0",
		Layout:          frame.Header5,
		ProfileSchema:   payload.ProfileSchema60,
		ClockSet:        true,
		Timezone:        "JST-9",
		Node:            "plantsim",
	}
}

func DefaultProfile() payload.PlantProfile {
	return payload.PlantProfile{
		Schema:            payload.ProfileSchema60,
		Name:              "Succulent Plant",
		SoilDryThreshold:  2000,
		SoilWetThreshold:  1000,
		SoilDryDays:       3,
		TempHighLimit:     30,
		TempLowLimit:      15,
		WateringThreshold: 200,
	}
}

// Fault overrides the device's answer to one command.
type Fault struct {
	// Silent suppresses the notification so the host times out.
	Silent bool
	// Status, when non-zero, replaces the status with an empty payload.
	Status schema.Status
	// Duplicate emits the notification twice.
	Duplicate bool
	// SequenceSkew is added to the echoed sequence number.
	SequenceSkew uint8
}

// Device holds the mutable state a real unit keeps in RAM and NVS. Pending
// settings become persistent only after the matching save command.
type Device struct {
	cfg   Config
	now   func() time.Time
	start time.Time

	mu            sync.Mutex
	profile       payload.PlantProfile
	savedProfile  payload.PlantProfile
	wifi          payload.WifiConfig
	savedWifi     payload.WifiConfig
	wifiConnected bool
	timezone      string
	savedTimezone string
	led           payload.LEDControl
	brightness    uint8
	switchOn      bool
	readings      uint32
	faults        map[schema.CommandID]Fault
	resets        int
	clockOffset   time.Duration
}

type Option func(*Device)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Device) {
		if now != nil {
			d.now = now
		}
	}
}

func New(cfg Config, opts ...Option) *Device {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.FirmwareVersion == "" {
		cfg.FirmwareVersion = def.FirmwareVersion
	}
	if cfg.HardwareVersion == "" {
		cfg.HardwareVersion = def.HardwareVersion
	}
	if cfg.Layout == frame.HeaderAuto {
		cfg.Layout = def.Layout
	}
	if cfg.ProfileSchema == 0 {
		cfg.ProfileSchema = def.ProfileSchema
	}
	if cfg.Node == "" {
		cfg.Node = def.Node
	}
	d := &Device{
		cfg:      cfg,
		now:      time.Now,
		timezone: cfg.Timezone,
		faults:   make(map[schema.CommandID]Fault),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.start = d.now()
	d.profile = DefaultProfile()
	d.profile.Schema = cfg.ProfileSchema
	d.savedProfile = d.profile
	d.savedTimezone = d.timezone
	return d
}

func (d *Device) Config() Config {
	return d.cfg
}

// SetFault installs f for cmd. A zero Fault clears it.
func (d *Device) SetFault(cmd schema.CommandID, f Fault) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f == (Fault{}) {
		delete(d.faults, cmd)
		return
	}
	d.faults[cmd] = f
}

func (d *Device) SetSwitch(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.switchOn = on
}

// Snapshot is the device state reported on the bridge health endpoint.
type Snapshot struct {
	Name          string               `json:"name"`
	Uptime        string               `json:"uptime"`
	Profile       payload.PlantProfile `json:"profile"`
	SSID          string               `json:"ssid"`
	WifiConnected bool                 `json:"wifi_connected"`
	Timezone      string               `json:"timezone"`
	Brightness    uint8                `json:"brightness"`
	Readings      uint32               `json:"readings"`
	Resets        int                  `json:"resets"`
}

func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		Name:          d.cfg.Name,
		Uptime:        d.now().Sub(d.start).Truncate(time.Second).String(),
		Profile:       d.profile,
		SSID:          d.wifi.SSID,
		WifiConnected: d.wifiConnected,
		Timezone:      d.timezone,
		Brightness:    d.brightness,
		Readings:      d.readings,
		Resets:        d.resets,
	}
}

// Handle answers one command frame. A frame whose declared length disagrees
// with its size gets an error status echoing whatever header bytes arrived.
func (d *Device) Handle(b []byte) [][]byte {
	cmd, err := frame.DecodeCommand(b)
	if err != nil {
		log.Warn().Int("bytes", len(b)).Err(err).Msg("emulator rejected command frame")
		out := frame.ResponseFrame{Status: schema.StatusError}
		if len(b) > 0 {
			out.Response = schema.CommandID(b[0])
		}
		if len(b) > 1 {
			out.Sequence = b[1]
		}
		return d.emit(out)
	}

	d.mu.Lock()
	fault, faulted := d.faults[cmd.Command]
	d.mu.Unlock()

	status, body := d.dispatch(cmd)
	observability.RecordDeviceCommand(d.cfg.Node, cmd.Command, status)
	log.Debug().
		Str("cmd", cmd.Command.String()).
		Uint8("seq", cmd.Sequence).
		Str("status", status.String()).
		Int("payload", len(body)).
		Msg("emulator handled command")

	out := frame.ResponseFrame{
		Response: cmd.Command,
		Status:   status,
		Sequence: cmd.Sequence,
		Payload:  body,
	}
	if faulted {
		if fault.Silent {
			return nil
		}
		if fault.Status != schema.StatusSuccess {
			out.Status = fault.Status
			out.Payload = nil
		}
		out.Sequence += fault.SequenceSkew
		msgs := d.emit(out)
		if fault.Duplicate {
			msgs = append(msgs, msgs...)
		}
		return msgs
	}
	return d.emit(out)
}

func (d *Device) emit(out frame.ResponseFrame) [][]byte {
	layout := d.cfg.Layout
	if layout == frame.Header4 && len(out.Payload) > 0xFF {
		layout = frame.Header5
	}
	b, err := frame.EncodeResponse(out, layout)
	if err != nil {
		log.Error().Err(err).Msg("emulator failed to encode response")
		return nil
	}
	return [][]byte{b}
}

func (d *Device) dispatch(cmd frame.CommandFrame) (schema.Status, []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now().Add(d.clockOffset)

	switch cmd.Command {
	case schema.CmdGetSensorData:
		d.readings++
		r := sample(now, payload.DataV1)
		b, _ := payload.EncodeSensorReading(r)
		return schema.StatusSuccess, b
	case schema.CmdGetSensorDataV2:
		d.readings++
		r := sample(now, payload.DataV2)
		b, _ := payload.EncodeSensorReading(r)
		return schema.StatusSuccess, b
	case schema.CmdGetSystemStatus:
		st := payload.SystemStatus{
			UptimeSeconds: uint32(now.Sub(d.start) / time.Second),
			HeapFree:      180 * 1024,
			HeapMinFree:   150 * 1024,
			TaskCount:     12,
			HasClock:      d.cfg.ClockSet,
			WifiConnected: d.wifiConnected,
			LinkConnected: true,
		}
		if d.cfg.ClockSet {
			st.CurrentTime = uint32(now.Unix())
		}
		return schema.StatusSuccess, payload.EncodeSystemStatus(st)
	case schema.CmdGetDeviceInfo:
		return schema.StatusSuccess, payload.EncodeDeviceInfo(payload.DeviceInfo{
			Name:            d.cfg.Name,
			FirmwareVersion: d.cfg.FirmwareVersion,
			HardwareVersion: d.cfg.HardwareVersion,
			UptimeSeconds:   uint32(now.Sub(d.start) / time.Second),
			TotalReadings:   d.readings,
		})
	case schema.CmdGetPlantProfile:
		b, err := payload.EncodePlantProfile(d.profile)
		if err != nil {
			return schema.StatusError, nil
		}
		return schema.StatusSuccess, b
	case schema.CmdSetPlantProfile:
		if len(cmd.Payload) != d.cfg.ProfileSchema.Len() {
			return schema.StatusInvalidParameter, nil
		}
		p, err := payload.DecodePlantProfile(cmd.Payload, d.cfg.ProfileSchema)
		if err != nil {
			return schema.StatusInvalidParameter, nil
		}
		d.profile = p
		return schema.StatusSuccess, nil
	case schema.CmdSavePlantProfile:
		d.savedProfile = d.profile
		return schema.StatusSuccess, nil
	case schema.CmdGetWifiConfig:
		// The password never leaves the device.
		masked := ""
		if d.wifi.Password != "" {
			masked = "********"
		}
		return schema.StatusSuccess, payload.EncodeWifiConfig(d.wifi.SSID, masked)
	case schema.CmdSetWifiConfig:
		if len(cmd.Payload) != payload.WifiConfigLen {
			return schema.StatusInvalidParameter, nil
		}
		d.wifi = payload.DecodeWifiConfig(cmd.Payload)
		d.wifiConnected = false
		return schema.StatusSuccess, nil
	case schema.CmdSaveWifiConfig:
		d.savedWifi = d.wifi
		return schema.StatusSuccess, nil
	case schema.CmdWifiConnect:
		if d.wifi.SSID == "" {
			return schema.StatusError, nil
		}
		d.wifiConnected = true
		return schema.StatusSuccess, nil
	case schema.CmdWifiDisconnect:
		d.wifiConnected = false
		return schema.StatusSuccess, nil
	case schema.CmdGetTimezone:
		return schema.StatusSuccess, payload.EncodeTimezone(d.timezone)
	case schema.CmdSetTimezone:
		if len(cmd.Payload) == 0 {
			return schema.StatusInvalidParameter, nil
		}
		d.timezone = payload.DecodeTimezone(cmd.Payload)
		return schema.StatusSuccess, nil
	case schema.CmdSaveTimezone:
		d.savedTimezone = d.timezone
		return schema.StatusSuccess, nil
	case schema.CmdSyncTime:
		if !d.wifiConnected {
			return schema.StatusError, nil
		}
		return schema.StatusSuccess, nil
	case schema.CmdGetTimeData:
		if len(cmd.Payload) != payload.CalendarLen {
			return schema.StatusInvalidParameter, nil
		}
		req, _ := payload.DecodeCalendar(cmd.Payload)
		at := req.Time(time.UTC).Truncate(time.Minute)
		if at.After(now) || at.Before(d.start.Add(-24*time.Hour)) {
			return schema.StatusError, nil
		}
		r := sample(at, payload.DataV1)
		return schema.StatusSuccess, payload.EncodeTimeData(payload.TimeData{
			Time:         payload.CalendarFromTime(at),
			Temperature:  r.Temperature,
			Humidity:     r.Humidity,
			Lux:          r.Lux,
			SoilMoisture: r.SoilMoisture,
		})
	case schema.CmdSetTime:
		c, err := payload.DecodeCalendar(cmd.Payload)
		if err != nil || len(cmd.Payload) != payload.CalendarLen {
			return schema.StatusInvalidParameter, nil
		}
		d.clockOffset = c.Time(time.UTC).Sub(d.now())
		return schema.StatusSuccess, nil
	case schema.CmdGetSwitchStatus:
		return schema.StatusSuccess, []byte{boolByte(d.switchOn)}
	case schema.CmdControlLED:
		c, err := payload.DecodeLEDControl(cmd.Payload)
		if err != nil {
			return schema.StatusInvalidParameter, nil
		}
		d.led = c
		return schema.StatusSuccess, nil
	case schema.CmdSetLEDBrightness:
		if len(cmd.Payload) != 1 {
			return schema.StatusInvalidParameter, nil
		}
		d.brightness = cmd.Payload[0]
		return schema.StatusSuccess, nil
	case schema.CmdSystemReset:
		d.resets++
		d.start = now
		d.profile = d.savedProfile
		d.wifi = d.savedWifi
		d.timezone = d.savedTimezone
		d.wifiConnected = false
		return schema.StatusSuccess, nil
	default:
		return schema.StatusInvalidCommand, nil
	}
}

// sample produces a deterministic reading for t: a diurnal light curve, a
// temperature swing and soil that dries over the day.
func sample(t time.Time, v payload.DataVersion) payload.SensorReading {
	hour := float64(t.Hour()) + float64(t.Minute())/60
	phase := (hour - 6) / 24 * 2 * math.Pi
	daylight := math.Max(0, math.Sin(phase))
	r := payload.SensorReading{
		Version:      v,
		Time:         payload.CalendarFromTime(t),
		Lux:          float32(math.Round(daylight * 20000)),
		Temperature:  float32(18 + 6*math.Sin(phase-math.Pi/6)),
		Humidity:     float32(55 - 15*daylight),
		SoilMoisture: float32(1200 + 25*hour),
	}
	if v == payload.DataV2 {
		soil := float32(16 + 3*math.Sin(phase-math.Pi/3))
		r.Soil = &payload.SoilExtension{
			Temperature: [2]float32{soil, soil - 0.5},
			Capacitance: [payload.CapacitanceChannels]float32{12.5, 13.1, 12.8, 13.4},
		}
	}
	return r
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
