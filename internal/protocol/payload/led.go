package payload

import (
	"encoding/binary"
	"time"
)

const LEDControlLen = 6

// LEDControl drives the status LED. A zero Duration keeps the LED lit.
type LEDControl struct {
	Red, Green, Blue uint8
	Brightness       uint8
	Duration         time.Duration
}

// EncodeLEDControl packs r | g | b | brightness | duration_ms(u16). Durations are
// clamped to what sixteen bits of milliseconds can express.
func EncodeLEDControl(c LEDControl) []byte {
	ms := c.Duration.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms > 0xFFFF {
		ms = 0xFFFF
	}
	buf := make([]byte, LEDControlLen)
	buf[0], buf[1], buf[2], buf[3] = c.Red, c.Green, c.Blue, c.Brightness
	binary.LittleEndian.PutUint16(buf[4:], uint16(ms))
	return buf
}

func DecodeLEDControl(b []byte) (LEDControl, error) {
	if len(b) < LEDControlLen {
		return LEDControl{}, truncated("led control", LEDControlLen, len(b))
	}
	return LEDControl{
		Red: b[0], Green: b[1], Blue: b[2], Brightness: b[3],
		Duration: time.Duration(binary.LittleEndian.Uint16(b[4:])) * time.Millisecond,
	}, nil
}

func EncodeLEDBrightness(level uint8) []byte {
	return []byte{level}
}
