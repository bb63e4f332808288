package payload

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// cString decodes a fixed-width string field: trailing NULs are stripped and
// invalid UTF-8 is replaced rather than rejected.
func cString(b []byte) string {
	b = bytes.TrimRight(b, "\x00")
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// putCString writes s into dst leaving room for the terminator. Truncation never
// splits a multi-byte rune.
func putCString(dst []byte, s string) {
	n := len(dst) - 1
	if n <= 0 {
		return
	}
	copy(dst, truncateUTF8(s, n))
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// field returns b[off:off+n] clipped to what is present.
func field(b []byte, off, n int) []byte {
	if off >= len(b) {
		return nil
	}
	end := off + n
	if end > len(b) {
		end = len(b)
	}
	return b[off:end]
}
