package payload

import (
	"encoding/binary"
	"time"
)

// CalendarLen is nine 32-bit signed fields.
const CalendarLen = 36

// Calendar mirrors the device's broken-down time record. Year counts from 1900
// and Month from 0, as on the device.
type Calendar struct {
	Sec   int32
	Min   int32
	Hour  int32
	MDay  int32
	Mon   int32
	Year  int32
	WDay  int32
	YDay  int32
	IsDST int32
}

// Time converts to a time.Time in loc (UTC when loc is nil).
func (c Calendar) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(int(c.Year)+1900, time.Month(c.Mon+1), int(c.MDay), int(c.Hour), int(c.Min), int(c.Sec), 0, loc)
}

// IsZero reports an unset device clock.
func (c Calendar) IsZero() bool {
	return c == Calendar{}
}

func CalendarFromTime(t time.Time) Calendar {
	return Calendar{
		Sec:   int32(t.Second()),
		Min:   int32(t.Minute()),
		Hour:  int32(t.Hour()),
		MDay:  int32(t.Day()),
		Mon:   int32(t.Month()) - 1,
		Year:  int32(t.Year()) - 1900,
		WDay:  int32(t.Weekday()),
		YDay:  int32(t.YearDay()) - 1,
		IsDST: 0,
	}
}

func decodeCalendar(b []byte) Calendar {
	v := func(i int) int32 { return int32(binary.LittleEndian.Uint32(b[i*4:])) }
	return Calendar{
		Sec: v(0), Min: v(1), Hour: v(2), MDay: v(3), Mon: v(4),
		Year: v(5), WDay: v(6), YDay: v(7), IsDST: v(8),
	}
}

func putCalendar(b []byte, c Calendar) {
	for i, v := range []int32{c.Sec, c.Min, c.Hour, c.MDay, c.Mon, c.Year, c.WDay, c.YDay, c.IsDST} {
		binary.LittleEndian.PutUint32(b[i*4:], uint32(v))
	}
}

// EncodeCalendar returns the 36-byte record, used as the get-time-data and
// set-time request body.
func EncodeCalendar(c Calendar) []byte {
	buf := make([]byte, CalendarLen)
	putCalendar(buf, c)
	return buf
}

func DecodeCalendar(b []byte) (Calendar, error) {
	if len(b) < CalendarLen {
		return Calendar{}, truncated("calendar", CalendarLen, len(b))
	}
	return decodeCalendar(b), nil
}
