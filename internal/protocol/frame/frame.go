package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/plantlink/internal/protocol/schema"
)

const (
	// CommandHeaderLen is command_id | sequence | length(u16le).
	CommandHeaderLen = 4
	// MinResponseLen is the shortest buffer DecodeResponse accepts.
	MinResponseLen = 4

	MaxPayloadLen = 0xFFFF
)

var (
	ErrFrameTooShort   = errors.New("frame: response shorter than header")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// HeaderLayout selects how the response header is read.
//
// The firmware packs response_id | status | sequence | length(u16le), five bytes.
// Older host tooling reads a four byte header with a one byte length. HeaderAuto
// picks whichever layout makes the declared length agree with the buffer size and
// falls back to Header5 when neither does.
type HeaderLayout uint8

const (
	HeaderAuto HeaderLayout = iota
	Header4
	Header5
)

func (l HeaderLayout) String() string {
	switch l {
	case HeaderAuto:
		return "auto"
	case Header4:
		return "header4"
	case Header5:
		return "header5"
	default:
		return fmt.Sprintf("layout(%d)", uint8(l))
	}
}

// Len is the header width in bytes; zero for HeaderAuto.
func (l HeaderLayout) Len() int {
	switch l {
	case Header4:
		return 4
	case Header5:
		return 5
	default:
		return 0
	}
}

// ParseHeaderLayout accepts the names used in config files.
func ParseHeaderLayout(raw string) (HeaderLayout, error) {
	switch raw {
	case "", "auto":
		return HeaderAuto, nil
	case "4", "header4":
		return Header4, nil
	case "5", "header5":
		return Header5, nil
	default:
		return HeaderAuto, fmt.Errorf("frame: unknown header layout %q", raw)
	}
}

// CommandFrame is one host to device request.
type CommandFrame struct {
	Command  schema.CommandID
	Sequence uint8
	Payload  []byte
}

// Length is always derived from the payload.
func (f CommandFrame) Length() uint16 {
	return uint16(len(f.Payload))
}

// ResponseFrame is one decoded device notification.
type ResponseFrame struct {
	Response schema.CommandID
	Status   schema.Status
	Sequence uint8
	Length   uint16
	Payload  []byte
	Layout   HeaderLayout
}

// Truncated reports whether fewer payload bytes arrived than the header declared.
func (f ResponseFrame) Truncated() bool {
	return len(f.Payload) < int(f.Length)
}

// EncodeCommand builds command_id | sequence | length | payload.
func EncodeCommand(cmd schema.CommandID, seq uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, CommandHeaderLen+len(payload))
	buf[0] = byte(cmd)
	buf[1] = seq
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[CommandHeaderLen:], payload)
	return buf, nil
}

// Encode is EncodeCommand for a CommandFrame value.
func (f CommandFrame) Encode() ([]byte, error) {
	return EncodeCommand(f.Command, f.Sequence, f.Payload)
}

// DecodeCommand parses a command frame. Used by the device emulator; the length
// must match the bytes present exactly, as the firmware enforces.
func DecodeCommand(b []byte) (CommandFrame, error) {
	if len(b) < CommandHeaderLen {
		return CommandFrame{}, ErrFrameTooShort
	}
	length := int(binary.LittleEndian.Uint16(b[2:4]))
	if len(b)-CommandHeaderLen != length {
		return CommandFrame{}, fmt.Errorf("frame: command length mismatch: declared=%d got=%d", length, len(b)-CommandHeaderLen)
	}
	payload := make([]byte, length)
	copy(payload, b[CommandHeaderLen:])
	return CommandFrame{
		Command:  schema.CommandID(b[0]),
		Sequence: b[1],
		Payload:  payload,
	}, nil
}

// DecodeResponse parses a notification buffer. A payload shorter than the declared
// length is returned as-is rather than rejected.
func DecodeResponse(b []byte, layout HeaderLayout) (ResponseFrame, error) {
	if len(b) < MinResponseLen {
		return ResponseFrame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(b))
	}
	if layout == HeaderAuto {
		layout = DetectLayout(b)
	}

	f := ResponseFrame{
		Response: schema.CommandID(b[0]),
		Status:   schema.Status(b[1]),
		Sequence: b[2],
		Layout:   layout,
	}
	var headerLen int
	switch layout {
	case Header4:
		headerLen = 4
		f.Length = uint16(b[3])
	case Header5:
		if len(b) < 5 {
			return ResponseFrame{}, fmt.Errorf("%w: %d bytes for %s", ErrFrameTooShort, len(b), layout)
		}
		headerLen = 5
		f.Length = binary.LittleEndian.Uint16(b[3:5])
	default:
		return ResponseFrame{}, fmt.Errorf("frame: unsupported header layout %s", layout)
	}

	end := headerLen + int(f.Length)
	if end > len(b) {
		end = len(b)
	}
	f.Payload = make([]byte, end-headerLen)
	copy(f.Payload, b[headerLen:end])
	return f, nil
}

// DetectLayout applies the HeaderAuto rules to b, which must hold at least 4 bytes.
func DetectLayout(b []byte) HeaderLayout {
	if len(b) <= 4 {
		return Header4
	}
	if int(binary.LittleEndian.Uint16(b[3:5])) == len(b)-5 {
		return Header5
	}
	if int(b[3]) == len(b)-4 {
		return Header4
	}
	return Header5
}

// EncodeResponse builds a response buffer in the given layout. Header4 cannot carry
// payloads over 255 bytes.
func EncodeResponse(f ResponseFrame, layout HeaderLayout) ([]byte, error) {
	if layout == HeaderAuto {
		layout = Header5
	}
	n := len(f.Payload)
	var buf []byte
	switch layout {
	case Header4:
		if n > 0xFF {
			return nil, fmt.Errorf("%w: %d bytes for %s", ErrPayloadTooLarge, n, layout)
		}
		buf = make([]byte, 4+n)
		buf[3] = byte(n)
		copy(buf[4:], f.Payload)
	case Header5:
		if n > MaxPayloadLen {
			return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
		}
		buf = make([]byte, 5+n)
		binary.LittleEndian.PutUint16(buf[3:5], uint16(n))
		copy(buf[5:], f.Payload)
	default:
		return nil, fmt.Errorf("frame: unsupported header layout %s", layout)
	}
	buf[0] = byte(f.Response)
	buf[1] = byte(f.Status)
	buf[2] = f.Sequence
	return buf, nil
}
