package payload

import (
	"encoding/binary"
	"time"
)

const (
	// SystemStatusLen has no clock field.
	SystemStatusLen = 4*4 + 2 + 2
	// SystemStatusClockLen adds current_time after task_count.
	SystemStatusClockLen = 5*4 + 2 + 2
)

type SystemStatus struct {
	UptimeSeconds uint32
	HeapFree      uint32
	HeapMinFree   uint32
	TaskCount     uint32

	// HasClock is false for the 20-byte layout. A zero CurrentTime with HasClock
	// set means the device clock has not been synchronised.
	HasClock    bool
	CurrentTime uint32

	WifiConnected bool
	LinkConnected bool
}

// Clock returns the device time, or false when it is absent or unset.
func (s SystemStatus) Clock() (time.Time, bool) {
	if !s.HasClock || s.CurrentTime == 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(s.CurrentTime), 0).UTC(), true
}

func (s SystemStatus) Uptime() time.Duration {
	return time.Duration(s.UptimeSeconds) * time.Second
}

// DecodeSystemStatus selects the clock layout when at least 24 bytes are present.
func DecodeSystemStatus(b []byte) (SystemStatus, error) {
	if len(b) < SystemStatusLen {
		return SystemStatus{}, truncated("system status", SystemStatusLen, len(b))
	}
	s := SystemStatus{
		UptimeSeconds: binary.LittleEndian.Uint32(b[0:]),
		HeapFree:      binary.LittleEndian.Uint32(b[4:]),
		HeapMinFree:   binary.LittleEndian.Uint32(b[8:]),
		TaskCount:     binary.LittleEndian.Uint32(b[12:]),
	}
	off := 16
	if len(b) >= SystemStatusClockLen {
		s.HasClock = true
		s.CurrentTime = binary.LittleEndian.Uint32(b[16:])
		off = 20
	}
	s.WifiConnected = b[off] != 0
	s.LinkConnected = b[off+1] != 0
	return s, nil
}

func EncodeSystemStatus(s SystemStatus) []byte {
	n := SystemStatusLen
	if s.HasClock {
		n = SystemStatusClockLen
	}
	buf := make([]byte, n)
	binary.LittleEndian.PutUint32(buf[0:], s.UptimeSeconds)
	binary.LittleEndian.PutUint32(buf[4:], s.HeapFree)
	binary.LittleEndian.PutUint32(buf[8:], s.HeapMinFree)
	binary.LittleEndian.PutUint32(buf[12:], s.TaskCount)
	off := 16
	if s.HasClock {
		binary.LittleEndian.PutUint32(buf[16:], s.CurrentTime)
		off = 20
	}
	buf[off] = boolByte(s.WifiConnected)
	buf[off+1] = boolByte(s.LinkConnected)
	return buf
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
