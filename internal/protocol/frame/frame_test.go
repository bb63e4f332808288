package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/plantlink/internal/protocol/schema"
	"github.com/danmuck/plantlink/internal/testutil/testlog"
)

func TestEncodeCommandExactBytes(t *testing.T) {
	testlog.Start(t)
	got, err := EncodeCommand(schema.CmdGetSensorData, 1, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if want := []byte{0x01, 0x01, 0x00, 0x00}; !bytes.Equal(got, want) {
		t.Fatalf("got=% x want=% x", got, want)
	}
}

func TestEncodeCommandLengthIsLittleEndian(t *testing.T) {
	testlog.Start(t)
	payload := make([]byte, 0x0102)
	got, err := EncodeCommand(schema.CmdSetWifiConfig, 9, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got[2] != 0x02 || got[3] != 0x01 {
		t.Fatalf("length bytes: % x", got[:4])
	}
	if len(got) != CommandHeaderLen+len(payload) {
		t.Fatalf("unexpected frame size: %d", len(got))
	}
}

func TestEncodeCommandPayloadTooLarge(t *testing.T) {
	testlog.Start(t)
	_, err := EncodeCommand(schema.CmdSetConfig, 1, make([]byte, MaxPayloadLen+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := EncodeCommand(schema.CmdSetConfig, 1, make([]byte, MaxPayloadLen)); err != nil {
		t.Fatalf("max payload should encode: %v", err)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	testlog.Start(t)
	sizes := []int{0, 1, 6, 96, 255, 256, 4096, MaxPayloadLen}
	for i, n := range sizes {
		payload := make([]byte, n)
		for j := range payload {
			payload[j] = byte(j * 7)
		}
		in := CommandFrame{Command: schema.CommandID(i + 1), Sequence: uint8(250 + i), Payload: payload}
		wire, err := in.Encode()
		if err != nil {
			t.Fatalf("encode n=%d: %v", n, err)
		}
		out, err := DecodeCommand(wire)
		if err != nil {
			t.Fatalf("decode n=%d: %v", n, err)
		}
		if out.Command != in.Command || out.Sequence != in.Sequence || !bytes.Equal(out.Payload, in.Payload) {
			t.Fatalf("round trip mismatch n=%d", n)
		}
		if out.Length() != uint16(n) {
			t.Fatalf("length mismatch n=%d got=%d", n, out.Length())
		}
	}
}

func TestDecodeCommandLengthMismatch(t *testing.T) {
	testlog.Start(t)
	if _, err := DecodeCommand([]byte{0x01, 0x01, 0x02, 0x00, 0xAA}); err == nil {
		t.Fatalf("expected length mismatch error")
	}
	if _, err := DecodeCommand([]byte{0x01, 0x01}); !errors.Is(err, ErrFrameTooShort) {
		t.Fatalf("expected ErrFrameTooShort, got %v", err)
	}
}

func TestDecodeResponseMinimal(t *testing.T) {
	testlog.Start(t)
	f, err := DecodeResponse([]byte{0x01, 0x00, 0x01, 0x00}, HeaderAuto)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Response != schema.CmdGetSensorData || f.Status != schema.StatusSuccess || f.Sequence != 1 || f.Length != 0 {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if len(f.Payload) != 0 {
		t.Fatalf("expected empty payload, got % x", f.Payload)
	}
	if f.Layout != Header4 {
		t.Fatalf("expected header4, got %s", f.Layout)
	}
}

func TestDecodeResponseTooShort(t *testing.T) {
	testlog.Start(t)
	for _, b := range [][]byte{nil, {0x01}, {0x01, 0x00, 0x01}} {
		if _, err := DecodeResponse(b, HeaderAuto); !errors.Is(err, ErrFrameTooShort) {
			t.Fatalf("len=%d expected ErrFrameTooShort, got %v", len(b), err)
		}
	}
	if _, err := DecodeResponse([]byte{0x01, 0x00, 0x01, 0x00}, Header5); !errors.Is(err, ErrFrameTooShort) {
		t.Fatalf("header5 needs five bytes, got %v", err)
	}
}

func TestDecodeResponseHeader5(t *testing.T) {
	testlog.Start(t)
	wire := []byte{0x0C, 0x00, 0x07, 0x03, 0x00, 'a', 'b', 'c'}
	f, err := DecodeResponse(wire, HeaderAuto)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Layout != Header5 || f.Length != 3 || string(f.Payload) != "abc" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestDecodeResponseHeader4Detected(t *testing.T) {
	testlog.Start(t)
	wire := []byte{0x10, 0x00, 0x02, 0x03, 'U', 'T', 'C'}
	f, err := DecodeResponse(wire, HeaderAuto)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Layout != Header4 || string(f.Payload) != "UTC" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestDecodeResponseTruncatedPayloadIsTolerated(t *testing.T) {
	testlog.Start(t)
	wire := []byte{0x01, 0x00, 0x01, 0x50, 0x00, 0xAA, 0xBB}
	f, err := DecodeResponse(wire, Header5)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Length != 0x50 || !bytes.Equal(f.Payload, []byte{0xAA, 0xBB}) {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if !f.Truncated() {
		t.Fatalf("expected truncated flag")
	}
}

func TestDecodeResponseExtraBytesIgnored(t *testing.T) {
	testlog.Start(t)
	wire := []byte{0x01, 0x00, 0x01, 0x01, 0x00, 0xAA, 0xEE, 0xEE}
	f, err := DecodeResponse(wire, Header5)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(f.Payload, []byte{0xAA}) {
		t.Fatalf("unexpected payload: % x", f.Payload)
	}
}

func TestEncodeResponseRoundTrip(t *testing.T) {
	testlog.Start(t)
	for _, layout := range []HeaderLayout{Header4, Header5} {
		in := ResponseFrame{Response: schema.CmdGetTimezone, Status: schema.StatusSuccess, Sequence: 200, Payload: []byte("JST-9")}
		wire, err := EncodeResponse(in, layout)
		if err != nil {
			t.Fatalf("%s encode: %v", layout, err)
		}
		out, err := DecodeResponse(wire, HeaderAuto)
		if err != nil {
			t.Fatalf("%s decode: %v", layout, err)
		}
		if out.Layout != layout || out.Sequence != 200 || string(out.Payload) != "JST-9" {
			t.Fatalf("%s mismatch: %+v", layout, out)
		}
	}
	if _, err := EncodeResponse(ResponseFrame{Payload: make([]byte, 256)}, Header4); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestParseHeaderLayout(t *testing.T) {
	testlog.Start(t)
	for raw, want := range map[string]HeaderLayout{"": HeaderAuto, "auto": HeaderAuto, "4": Header4, "header5": Header5} {
		got, err := ParseHeaderLayout(raw)
		if err != nil || got != want {
			t.Fatalf("ParseHeaderLayout(%q) = %v,%v", raw, got, err)
		}
	}
	if _, err := ParseHeaderLayout("six"); err == nil {
		t.Fatalf("expected error")
	}
}
