package payload

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DataVersion tags the sensor record layout. New layouts get a new value here.
type DataVersion uint8

const (
	DataV1 DataVersion = 1
	DataV2 DataVersion = 2
)

const (
	// SensorV1Len: version | calendar | lux | temperature | humidity | soil_mv.
	SensorV1Len = 1 + CalendarLen + 4*4
	// SensorV2Len: version | pad[3] | calendar | 4 floats | soil_temp[2] | capacitance[4].
	SensorV2Len = 4 + CalendarLen + 4*4 + 2*4 + CapacitanceChannels*4

	CapacitanceChannels = 4
)

func (v DataVersion) String() string {
	switch v {
	case DataV1:
		return "v1"
	case DataV2:
		return "v2"
	default:
		return fmt.Sprintf("v%d", uint8(v))
	}
}

// Len is the encoded size of the layout, zero for unknown versions.
func (v DataVersion) Len() int {
	switch v {
	case DataV1:
		return SensorV1Len
	case DataV2:
		return SensorV2Len
	default:
		return 0
	}
}

// SensorReading is one sample as reported by the device.
type SensorReading struct {
	Version      DataVersion
	Time         Calendar
	Lux          float32
	Temperature  float32
	Humidity     float32
	SoilMoisture float32 // millivolts

	// Soil is set for DataV2 readings only.
	Soil *SoilExtension
}

// SoilExtension holds the probe channels added in DataV2.
type SoilExtension struct {
	Temperature [2]float32
	Capacitance [CapacitanceChannels]float32
}

// DecodeSensorReading dispatches on the leading version byte.
func DecodeSensorReading(b []byte) (SensorReading, error) {
	if len(b) == 0 {
		return SensorReading{}, ErrEmptyPayload
	}
	v := DataVersion(b[0])
	switch v {
	case DataV1:
		return decodeSensorV1(b)
	case DataV2:
		return decodeSensorV2(b)
	default:
		return SensorReading{}, &UnknownVersionError{Version: b[0]}
	}
}

func decodeSensorV1(b []byte) (SensorReading, error) {
	if len(b) < SensorV1Len {
		return SensorReading{}, truncated("sensor reading v1", SensorV1Len, len(b))
	}
	r := SensorReading{Version: DataV1, Time: decodeCalendar(b[1:])}
	readFloats(b[1+CalendarLen:], &r.Lux, &r.Temperature, &r.Humidity, &r.SoilMoisture)
	return r, nil
}

func decodeSensorV2(b []byte) (SensorReading, error) {
	if len(b) < SensorV2Len {
		return SensorReading{}, truncated("sensor reading v2", SensorV2Len, len(b))
	}
	r := SensorReading{Version: DataV2, Time: decodeCalendar(b[4:]), Soil: &SoilExtension{}}
	off := 4 + CalendarLen
	readFloats(b[off:], &r.Lux, &r.Temperature, &r.Humidity, &r.SoilMoisture)
	off += 16
	readFloats(b[off:], &r.Soil.Temperature[0], &r.Soil.Temperature[1])
	off += 8
	for i := range r.Soil.Capacitance {
		r.Soil.Capacitance[i] = getFloat(b[off+i*4:])
	}
	return r, nil
}

// EncodeSensorReading produces the layout selected by r.Version.
func EncodeSensorReading(r SensorReading) ([]byte, error) {
	switch r.Version {
	case DataV1:
		buf := make([]byte, SensorV1Len)
		buf[0] = byte(DataV1)
		putCalendar(buf[1:], r.Time)
		writeFloats(buf[1+CalendarLen:], r.Lux, r.Temperature, r.Humidity, r.SoilMoisture)
		return buf, nil
	case DataV2:
		buf := make([]byte, SensorV2Len)
		buf[0] = byte(DataV2)
		putCalendar(buf[4:], r.Time)
		off := 4 + CalendarLen
		writeFloats(buf[off:], r.Lux, r.Temperature, r.Humidity, r.SoilMoisture)
		off += 16
		var soil SoilExtension
		if r.Soil != nil {
			soil = *r.Soil
		}
		writeFloats(buf[off:], soil.Temperature[0], soil.Temperature[1])
		off += 8
		writeFloats(buf[off:], soil.Capacitance[:]...)
		return buf, nil
	default:
		return nil, &UnknownVersionError{Version: uint8(r.Version)}
	}
}

func getFloat(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func putFloat(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func readFloats(b []byte, dst ...*float32) {
	for i, p := range dst {
		*p = getFloat(b[i*4:])
	}
}

func writeFloats(b []byte, vals ...float32) {
	for i, v := range vals {
		putFloat(b[i*4:], v)
	}
}
