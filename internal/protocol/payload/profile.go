package payload

import (
	"encoding/binary"
	"fmt"
)

const profileNameLen = 32

// ProfileSchema is the on-wire size of a plant profile record. Schema60 appends
// the watering detection threshold and four reserved bytes to Schema52.
type ProfileSchema uint8

const (
	ProfileSchema52 ProfileSchema = 52
	ProfileSchema60 ProfileSchema = 60
)

func (s ProfileSchema) Len() int {
	return int(s)
}

func (s ProfileSchema) Valid() bool {
	return s == ProfileSchema52 || s == ProfileSchema60
}

func (s ProfileSchema) String() string {
	return fmt.Sprintf("profile%d", uint8(s))
}

// ParseProfileSchema accepts "52" or "60" as found in config files.
func ParseProfileSchema(raw string) (ProfileSchema, error) {
	switch raw {
	case "52":
		return ProfileSchema52, nil
	case "", "60":
		return ProfileSchema60, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSchema, raw)
	}
}

// DetectProfileSchema picks the larger schema whenever the buffer can hold it.
func DetectProfileSchema(n int) ProfileSchema {
	if n >= ProfileSchema60.Len() {
		return ProfileSchema60
	}
	return ProfileSchema52
}

// PlantProfile holds the watering and temperature thresholds the device applies.
type PlantProfile struct {
	Schema           ProfileSchema
	Name             string
	SoilDryThreshold float32 // mV at or above which soil counts as dry
	SoilWetThreshold float32 // mV at or below which soil counts as wet
	SoilDryDays      int32
	TempHighLimit    float32
	TempLowLimit     float32

	// WateringThreshold is carried by ProfileSchema60 only.
	WateringThreshold float32
}

// HasWateringThreshold reports whether the schema carries the sixth threshold.
func (p PlantProfile) HasWateringThreshold() bool {
	return p.Schema == ProfileSchema60
}

func DecodePlantProfile(b []byte, schema ProfileSchema) (PlantProfile, error) {
	if !schema.Valid() {
		return PlantProfile{}, fmt.Errorf("%w: %d", ErrUnknownSchema, uint8(schema))
	}
	if len(b) < schema.Len() {
		return PlantProfile{}, truncated(schema.String(), schema.Len(), len(b))
	}
	p := PlantProfile{
		Schema:           schema,
		Name:             cString(b[:profileNameLen]),
		SoilDryThreshold: getFloat(b[32:]),
		SoilWetThreshold: getFloat(b[36:]),
		SoilDryDays:      int32(binary.LittleEndian.Uint32(b[40:])),
		TempHighLimit:    getFloat(b[44:]),
		TempLowLimit:     getFloat(b[48:]),
	}
	if schema == ProfileSchema60 {
		p.WateringThreshold = getFloat(b[52:])
	}
	return p, nil
}

// EncodePlantProfile emits exactly p.Schema bytes. A zero schema encodes as
// ProfileSchema60, the layout current firmware expects.
func EncodePlantProfile(p PlantProfile) ([]byte, error) {
	schema := p.Schema
	if schema == 0 {
		schema = ProfileSchema60
	}
	if !schema.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSchema, uint8(schema))
	}
	buf := make([]byte, schema.Len())
	putCString(buf[:profileNameLen], p.Name)
	putFloat(buf[32:], p.SoilDryThreshold)
	putFloat(buf[36:], p.SoilWetThreshold)
	binary.LittleEndian.PutUint32(buf[40:], uint32(p.SoilDryDays))
	putFloat(buf[44:], p.TempHighLimit)
	putFloat(buf[48:], p.TempLowLimit)
	if schema == ProfileSchema60 {
		putFloat(buf[52:], p.WateringThreshold)
	}
	return buf, nil
}
