package payload

// DecodeTimezone reads the POSIX TZ string the device reports.
func DecodeTimezone(b []byte) string {
	return cString(b)
}

// EncodeTimezone null terminates tz; the device accepts up to 63 bytes.
func EncodeTimezone(tz string) []byte {
	buf := make([]byte, 64)
	putCString(buf, tz)
	n := len(truncateUTF8(tz, 63))
	return buf[:n+1]
}

func DecodeSwitchStatus(b []byte) (bool, error) {
	if len(b) < 1 {
		return false, truncated("switch status", 1, len(b))
	}
	return b[0] != 0, nil
}
