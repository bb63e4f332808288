package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/plantlink/internal/protocol/frame"
	"github.com/danmuck/plantlink/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// Transport is the duplex link a Session drives. Write sends one command
// frame. OnNotification registers the callback that receives each notification
// buffer; it may be invoked from any goroutine.
type Transport interface {
	Write(ctx context.Context, b []byte) error
	OnNotification(fn func([]byte))
}

// State is the command state machine position.
type State uint8

const (
	StateIdle State = iota
	StateAwaiting
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaiting:
		return "awaiting_response"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Observer receives command lifecycle callbacks. Implementations must not block.
type Observer interface {
	CommandStarted(cmd schema.CommandID, seq uint8)
	CommandFinished(cmd schema.CommandID, elapsed time.Duration, err error)
	NotificationDropped()
}

type nopObserver struct{}

func (nopObserver) CommandStarted(schema.CommandID, uint8)                 {}
func (nopObserver) CommandFinished(schema.CommandID, time.Duration, error) {}
func (nopObserver) NotificationDropped()                                   {}

// Session owns the sequence counter and the response mailbox for one link.
// mu guards every field below it; the notification callback and the caller
// meet only through it.
type Session struct {
	cfg      Config
	tr       Transport
	observer Observer

	mu      sync.Mutex
	state   State
	seq     uint8
	command schema.CommandID
	mailbox chan []byte
}

type Option func(*Session)

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// New binds a session to tr and registers its notification callback. The
// counter starts at zero and pre-increments, so the first command carries
// sequence 1.
func New(tr Transport, cfg Config, opts ...Option) (*Session, error) {
	if tr == nil {
		return nil, ErrTransportRequired
	}
	s := &Session{
		cfg:      cfg.WithDefaults(),
		tr:       tr,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	tr.OnNotification(s.deliver)
	return s, nil
}

func (s *Session) Config() Config {
	return s.cfg
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Sequence returns the value carried by the most recent command.
func (s *Session) Sequence() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Send executes cmd with the configured timeout and decodes the payload into
// the structure the command returns.
func (s *Session) Send(ctx context.Context, cmd schema.CommandID, body []byte) (Response, error) {
	return s.SendTimeout(ctx, cmd, body, s.cfg.CommandTimeout)
}

func (s *Session) SendTimeout(ctx context.Context, cmd schema.CommandID, body []byte, timeout time.Duration) (Response, error) {
	f, err := s.Exchange(ctx, cmd, body, timeout)
	if err != nil {
		return Response{}, err
	}
	return DecodeResponse(cmd, f, s.cfg.ProfileSchema)
}

// Exchange sends one frame and waits for the next notification, returning the
// decoded response frame. Non-success status is reported as *DeviceError.
func (s *Session) Exchange(ctx context.Context, cmd schema.CommandID, body []byte, timeout time.Duration) (frame.ResponseFrame, error) {
	if timeout <= 0 {
		timeout = s.cfg.CommandTimeout
	}
	start := time.Now()
	f, seq, err := s.exchange(ctx, cmd, body, timeout)
	s.observer.CommandFinished(cmd, time.Since(start), err)
	if err != nil {
		log.Debug().Str("cmd", cmd.String()).Uint8("seq", seq).Err(err).Msg("command failed")
		return frame.ResponseFrame{}, err
	}
	log.Debug().
		Str("cmd", cmd.String()).
		Uint8("seq", seq).
		Str("status", f.Status.String()).
		Str("layout", f.Layout.String()).
		Int("payload", len(f.Payload)).
		Dur("elapsed", time.Since(start)).
		Msg("command completed")
	return f, nil
}

func (s *Session) exchange(ctx context.Context, cmd schema.CommandID, body []byte, timeout time.Duration) (frame.ResponseFrame, uint8, error) {
	mailbox, seq, wire, err := s.begin(cmd, body)
	if err != nil {
		return frame.ResponseFrame{}, seq, err
	}
	s.observer.CommandStarted(cmd, seq)

	if err := s.tr.Write(ctx, wire); err != nil {
		s.reset(mailbox)
		return frame.ResponseFrame{}, seq, &TransportError{Op: "write", Err: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var raw []byte
	select {
	case raw = <-mailbox:
	case <-timer.C:
		if raw = s.abandon(mailbox); raw == nil {
			return frame.ResponseFrame{}, seq, fmt.Errorf("%w: %s seq=%d after %s", ErrTimeout, cmd, seq, timeout)
		}
	case <-ctx.Done():
		if raw = s.abandon(mailbox); raw == nil {
			return frame.ResponseFrame{}, seq, ctx.Err()
		}
	}
	s.reset(mailbox)

	f, err := frame.DecodeResponse(raw, s.cfg.HeaderLayout)
	if err != nil {
		return frame.ResponseFrame{}, seq, err
	}
	if f.Sequence != seq || f.Response != cmd {
		log.Warn().
			Str("cmd", cmd.String()).
			Uint8("seq", seq).
			Str("response", f.Response.String()).
			Uint8("response_seq", f.Sequence).
			Msg("response does not echo request")
		if s.cfg.StrictSequence {
			return frame.ResponseFrame{}, seq, fmt.Errorf("%w: sent=%d got=%d", ErrSequenceMismatch, seq, f.Sequence)
		}
	}
	if f.Status != schema.StatusSuccess {
		return f, seq, &DeviceError{Command: cmd, Status: f.Status}
	}
	return f, seq, nil
}

// begin moves Idle -> AwaitingResponse. The sequence is only consumed once the
// frame has been built.
func (s *Session) begin(cmd schema.CommandID, body []byte) (chan []byte, uint8, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return nil, s.seq, nil, ErrSessionBusy
	}
	next := s.seq + 1
	wire, err := frame.EncodeCommand(cmd, next, body)
	if err != nil {
		return nil, next, nil, err
	}
	s.seq = next
	s.command = cmd
	s.mailbox = make(chan []byte, 1)
	s.state = StateAwaiting
	return s.mailbox, next, wire, nil
}

// abandon handles timer expiry or cancellation. A notification that raced the
// timer and already completed the command is returned instead of dropped.
func (s *Session) abandon(mailbox chan []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mailbox != mailbox {
		return nil
	}
	select {
	case raw := <-mailbox:
		return raw
	default:
	}
	s.state = StateIdle
	s.mailbox = nil
	return nil
}

func (s *Session) reset(mailbox chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mailbox == mailbox {
		s.state = StateIdle
		s.mailbox = nil
	}
}

// deliver is the transport callback. Only the first notification for an
// outstanding command is accepted.
func (s *Session) deliver(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaiting {
		s.observer.NotificationDropped()
		log.Debug().Str("state", s.state.String()).Int("bytes", len(b)).Msg("notification dropped")
		return
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	s.mailbox <- buf
	s.state = StateCompleted
}
