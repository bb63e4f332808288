package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/plantlink/internal/protocol/frame"
	"github.com/danmuck/plantlink/internal/protocol/schema"
	"github.com/danmuck/plantlink/internal/protocol/session"
	"github.com/danmuck/plantlink/internal/testutil/testlog"
	"github.com/gorilla/websocket"
)

func ackHandler(t *testing.T) Handler {
	return HandlerFunc(func(b []byte) [][]byte {
		cmd, err := frame.DecodeCommand(b)
		if err != nil {
			t.Errorf("decode command: %v", err)
			return nil
		}
		out, err := frame.EncodeResponse(frame.ResponseFrame{
			Response: cmd.Command, Sequence: cmd.Sequence, Payload: []byte("UTC0\x00"),
		}, frame.Header5)
		if err != nil {
			t.Errorf("encode response: %v", err)
			return nil
		}
		return [][]byte{out}
	})
}

func TestPipeDrivesSession(t *testing.T) {
	testlog.Start(t)
	p := NewPipe(ackHandler(t), time.Millisecond)
	defer p.Close()

	s, err := session.New(p, session.DefaultConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	resp, err := s.Send(context.Background(), schema.CmdGetTimezone, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Timezone != "UTC0" {
		t.Fatalf("unexpected timezone: %q", resp.Timezone)
	}
}

func TestPipeWriteAfterClose(t *testing.T) {
	testlog.Start(t)
	p := NewPipe(ackHandler(t), 0)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Write(context.Background(), []byte{1, 1, 0, 0}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	s, err := session.New(p, session.DefaultConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := s.Send(context.Background(), schema.CmdGetTimezone, nil); !errors.Is(err, session.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestConnectorRetriesThenSucceeds(t *testing.T) {
	testlog.Start(t)
	var calls atomic.Int32
	dial := func(context.Context) (Link, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("refused")
		}
		return NewPipe(ackHandler(t), 0), nil
	}
	c := NewConnector(dial, session.RetryPolicy{Attempts: 3, InitialDelay: time.Millisecond})
	link, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer link.Close()
	if calls.Load() != 3 {
		t.Fatalf("dial calls=%d want 3", calls.Load())
	}
}

func TestConnectorGivesUp(t *testing.T) {
	testlog.Start(t)
	cause := errors.New("refused")
	var calls atomic.Int32
	dial := func(context.Context) (Link, error) {
		calls.Add(1)
		return nil, cause
	}
	c := NewConnector(dial, session.RetryPolicy{Attempts: 2, InitialDelay: time.Millisecond})
	if _, err := c.Connect(context.Background()); !errors.Is(err, cause) {
		t.Fatalf("expected last dial error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("dial calls=%d want 2", calls.Load())
	}
}

func TestNormalizeWSAddr(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"127.0.0.1:7020":             "ws://127.0.0.1:7020/link",
		"http://localhost:7020":      "ws://localhost:7020/link",
		"https://plant.local/bridge": "wss://plant.local/bridge",
		"ws://10.0.0.2:80/link":      "ws://10.0.0.2:80/link",
	}
	for in, want := range cases {
		got, err := NormalizeWSAddr(in)
		if err != nil {
			t.Fatalf("normalize %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("normalize %q=%q want %q", in, got, want)
		}
	}
	if _, err := NormalizeWSAddr("  "); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
	if _, err := NormalizeWSAddr("tcp://host:1"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

func TestWSLinkRoundTrip(t *testing.T) {
	testlog.Start(t)
	handler := ackHandler(t)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			for _, out := range handler.Handle(data) {
				if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
					return
				}
			}
		}
	}))
	defer srv.Close()

	addr := "ws" + strings.TrimPrefix(srv.URL, "http") + "/link"
	link, err := DialWS(context.Background(), WSConfig{Addr: addr, HandshakeTimeout: time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	s, err := session.New(link, session.DefaultConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	resp, err := s.Send(context.Background(), schema.CmdGetTimezone, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Timezone != "UTC0" {
		t.Fatalf("unexpected timezone: %q", resp.Timezone)
	}

	if err := link.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-link.Done():
	case <-time.After(time.Second):
		t.Fatalf("read loop did not stop")
	}
	if err := link.Write(context.Background(), []byte{1, 1, 0, 0}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
