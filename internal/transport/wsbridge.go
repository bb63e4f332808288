package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/plantlink/internal/auth"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSLink carries command frames and notifications as binary websocket
// messages, one frame per message.
type WSLink struct {
	conn *websocket.Conn
	addr string

	writeMu sync.Mutex

	mu     sync.RWMutex
	notify func([]byte)
	err    error

	done      chan struct{}
	closeOnce sync.Once
}

// NormalizeWSAddr accepts host:port, ws:// and http:// forms and returns a
// websocket URL. A missing path defaults to /link.
func NormalizeWSAddr(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrAddressRequired
	}
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("transport: invalid websocket address: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/link"
	}
	return u.String(), nil
}

// WSConfig addresses a websocket bridge.
type WSConfig struct {
	Addr             string
	HandshakeTimeout time.Duration
	// Token is sent as a bearer token when set.
	Token string
}

func DialWS(ctx context.Context, cfg WSConfig) (*WSLink, error) {
	target, err := NormalizeWSAddr(cfg.Addr)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, target, auth.Header(cfg.Token))
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", target, err)
	}
	l := &WSLink{
		conn: conn,
		addr: target,
		done: make(chan struct{}),
	}
	go l.readLoop()
	log.Debug().Str("addr", target).Msg("websocket link up")
	return l, nil
}

func (l *WSLink) Addr() string {
	return l.addr
}

func (l *WSLink) OnNotification(fn func([]byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
}

func (l *WSLink) Write(ctx context.Context, b []byte) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.BinaryMessage, b)
}

// Done is closed when the read side stops.
func (l *WSLink) Done() <-chan struct{} {
	return l.done
}

// Err reports why the read side stopped, if it has.
func (l *WSLink) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

func (l *WSLink) readLoop() {
	defer close(l.done)
	for {
		mt, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Str("addr", l.addr).Err(err).Msg("websocket link lost")
			}
			l.mu.Lock()
			l.err = err
			l.mu.Unlock()
			return
		}
		if mt != websocket.BinaryMessage {
			log.Debug().Int("type", mt).Msg("ignoring non-binary websocket message")
			continue
		}
		l.mu.RLock()
		fn := l.notify
		l.mu.RUnlock()
		if fn != nil {
			fn(data)
		}
	}
}

func (l *WSLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.writeMu.Lock()
		werr := l.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		l.writeMu.Unlock()
		if werr != nil {
			log.Debug().Err(werr).Msg("websocket close message not sent")
		}
		err = l.conn.Close()
		<-l.done
	})
	return err
}

var _ Link = (*WSLink)(nil)
