package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/plantlink/internal/protocol/frame"
	"github.com/danmuck/plantlink/internal/protocol/payload"
	"github.com/danmuck/plantlink/internal/protocol/schema"
	"github.com/danmuck/plantlink/internal/testutil/testlog"
)

type fakeTransport struct {
	mu       sync.Mutex
	notify   func([]byte)
	writes   [][]byte
	writeErr error
	respond  func(cmd frame.CommandFrame) [][]byte
}

func (f *fakeTransport) OnNotification(fn func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notify = fn
}

func (f *fakeTransport) Write(_ context.Context, b []byte) error {
	f.mu.Lock()
	f.writes = append(f.writes, append([]byte(nil), b...))
	err := f.writeErr
	respond := f.respond
	notify := f.notify
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if respond == nil {
		return nil
	}
	cmd, derr := frame.DecodeCommand(b)
	if derr != nil {
		return derr
	}
	for _, out := range respond(cmd) {
		notify(out)
	}
	return nil
}

func (f *fakeTransport) push(b []byte) {
	f.mu.Lock()
	notify := f.notify
	f.mu.Unlock()
	notify(b)
}

func (f *fakeTransport) setRespond(fn func(cmd frame.CommandFrame) [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

func (f *fakeTransport) lastWrite() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}

func reply(t *testing.T, status schema.Status, body []byte) func(cmd frame.CommandFrame) [][]byte {
	return func(cmd frame.CommandFrame) [][]byte {
		out, err := frame.EncodeResponse(frame.ResponseFrame{
			Response: cmd.Command, Status: status, Sequence: cmd.Sequence, Payload: body,
		}, frame.Header5)
		if err != nil {
			t.Errorf("encode response: %v", err)
			return nil
		}
		return [][]byte{out}
	}
}

func newTestSession(t *testing.T, tr *fakeTransport, cfg Config) *Session {
	t.Helper()
	s, err := New(tr, cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestFirstSendWireBytes(t *testing.T) {
	testlog.Start(t)
	tr := &fakeTransport{}
	tr.setRespond(reply(t, schema.StatusSuccess, nil))
	s := newTestSession(t, tr, DefaultConfig())

	if _, err := s.Exchange(context.Background(), schema.CmdGetSensorData, nil, time.Second); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if want := []byte{0x01, 0x01, 0x00, 0x00}; !bytes.Equal(tr.lastWrite(), want) {
		t.Fatalf("wire=% x want=% x", tr.lastWrite(), want)
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle after completion, got %s", s.State())
	}
}

func TestSendDecodesByCommand(t *testing.T) {
	testlog.Start(t)
	reading, err := payload.EncodeSensorReading(payload.SensorReading{Version: payload.DataV1, Temperature: 22.5})
	if err != nil {
		t.Fatalf("encode reading: %v", err)
	}
	tr := &fakeTransport{}
	tr.setRespond(reply(t, schema.StatusSuccess, reading))
	s := newTestSession(t, tr, DefaultConfig())

	resp, err := s.Send(context.Background(), schema.CmdGetSensorData, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Kind != schema.KindSensorReading || resp.Sensor == nil || resp.Sensor.Temperature != 22.5 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	tr.setRespond(reply(t, schema.StatusSuccess, payload.EncodeWifiConfig("Home", "********")))
	resp, err = s.Send(context.Background(), schema.CmdGetWifiConfig, nil)
	if err != nil {
		t.Fatalf("send wifi: %v", err)
	}
	if resp.Kind != schema.KindWifiConfig || resp.Wifi.SSID != "Home" || resp.Sensor != nil {
		t.Fatalf("unexpected wifi response: %+v", resp)
	}
}

func TestTimeoutReturnsToIdle(t *testing.T) {
	testlog.Start(t)
	tr := &fakeTransport{}
	s := newTestSession(t, tr, DefaultConfig())

	_, err := s.SendTimeout(context.Background(), schema.CmdGetDeviceInfo, nil, 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle after timeout, got %s", s.State())
	}

	tr.setRespond(reply(t, schema.StatusSuccess, payload.EncodeDeviceInfo(payload.DeviceInfo{Name: "Plant Monitor"})))
	resp, err := s.SendTimeout(context.Background(), schema.CmdGetDeviceInfo, nil, time.Second)
	if err != nil {
		t.Fatalf("send after timeout: %v", err)
	}
	if resp.Info == nil || resp.Info.Name != "Plant Monitor" {
		t.Fatalf("unexpected info: %+v", resp)
	}
}

func TestLateNotificationAfterTimeoutIsDropped(t *testing.T) {
	testlog.Start(t)
	tr := &fakeTransport{}
	s := newTestSession(t, tr, DefaultConfig())

	if _, err := s.SendTimeout(context.Background(), schema.CmdGetTimezone, nil, 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	stale, _ := frame.EncodeResponse(frame.ResponseFrame{Response: schema.CmdGetTimezone, Sequence: 1, Payload: []byte("OLD\x00")}, frame.Header5)
	tr.push(stale)
	if s.State() != StateIdle {
		t.Fatalf("stale delivery changed state to %s", s.State())
	}

	tr.setRespond(reply(t, schema.StatusSuccess, []byte("JST-9\x00")))
	resp, err := s.Send(context.Background(), schema.CmdGetTimezone, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Timezone != "JST-9" {
		t.Fatalf("stale notification leaked into next command: %q", resp.Timezone)
	}
}

func TestDuplicateNotificationIgnored(t *testing.T) {
	testlog.Start(t)
	tr := &fakeTransport{}
	tr.setRespond(func(cmd frame.CommandFrame) [][]byte {
		first, _ := frame.EncodeResponse(frame.ResponseFrame{Response: cmd.Command, Sequence: cmd.Sequence, Payload: []byte("A\x00")}, frame.Header5)
		second, _ := frame.EncodeResponse(frame.ResponseFrame{Response: cmd.Command, Sequence: cmd.Sequence, Payload: []byte("B\x00")}, frame.Header5)
		return [][]byte{first, second}
	})
	s := newTestSession(t, tr, DefaultConfig())
	resp, err := s.Send(context.Background(), schema.CmdGetTimezone, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Timezone != "A" {
		t.Fatalf("expected first notification to win, got %q", resp.Timezone)
	}
}

func TestDeviceErrorStatus(t *testing.T) {
	testlog.Start(t)
	tr := &fakeTransport{}
	tr.setRespond(reply(t, schema.StatusError, nil))
	s := newTestSession(t, tr, DefaultConfig())

	_, err := s.Send(context.Background(), schema.CmdSetPlantProfile, make([]byte, 60))
	var derr *DeviceError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	if derr.Status != schema.StatusError || derr.Command != schema.CmdSetPlantProfile {
		t.Fatalf("unexpected device error: %+v", derr)
	}
	if !errors.Is(err, ErrDevice) || errors.Is(err, ErrTimeout) || IsRetryable(err) {
		t.Fatalf("device error classification wrong: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %s", s.State())
	}
}

func TestTransportWriteFailure(t *testing.T) {
	testlog.Start(t)
	cause := errors.New("link lost")
	tr := &fakeTransport{writeErr: cause}
	s := newTestSession(t, tr, DefaultConfig())

	_, err := s.Send(context.Background(), schema.CmdWifiConnect, nil)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, cause) {
		t.Fatalf("expected transport error wrapping cause, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("transport errors should be retryable")
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle after write failure, got %s", s.State())
	}
}

func TestSessionBusy(t *testing.T) {
	testlog.Start(t)
	tr := &fakeTransport{}
	s := newTestSession(t, tr, DefaultConfig())

	done := make(chan error, 1)
	go func() {
		_, err := s.Exchange(context.Background(), schema.CmdGetSystemStatus, nil, 5*time.Second)
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateAwaiting {
		if time.Now().After(deadline) {
			t.Fatalf("command never became outstanding")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := s.Send(context.Background(), schema.CmdGetDeviceInfo, nil); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}

	status := payload.EncodeSystemStatus(payload.SystemStatus{TaskCount: 9})
	out, _ := frame.EncodeResponse(frame.ResponseFrame{Response: schema.CmdGetSystemStatus, Sequence: 1, Payload: status}, frame.Header5)
	tr.push(out)
	if err := <-done; err != nil {
		t.Fatalf("outstanding command failed: %v", err)
	}
	if s.Sequence() != 1 {
		t.Fatalf("busy send consumed a sequence number: %d", s.Sequence())
	}
}

func TestSequenceWraps(t *testing.T) {
	testlog.Start(t)
	tr := &fakeTransport{}
	tr.setRespond(reply(t, schema.StatusSuccess, nil))
	s := newTestSession(t, tr, DefaultConfig())

	start := s.Sequence()
	for i := 1; i <= 256; i++ {
		if _, err := s.Exchange(context.Background(), schema.CmdWifiConnect, nil, time.Second); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if i == 1 && s.Sequence() != 1 {
			t.Fatalf("first send must carry sequence 1, got %d", s.Sequence())
		}
		if i == 255 && s.Sequence() != 255 {
			t.Fatalf("send 255 carried %d", s.Sequence())
		}
	}
	if s.Sequence() != start {
		t.Fatalf("after 256 sends sequence=%d want %d", s.Sequence(), start)
	}
	if got := tr.lastWrite()[1]; got != 0 {
		t.Fatalf("256th frame sequence byte=%d want 0", got)
	}
}

func TestPayloadTooLargeDoesNotConsumeSequence(t *testing.T) {
	testlog.Start(t)
	tr := &fakeTransport{}
	s := newTestSession(t, tr, DefaultConfig())
	_, err := s.Send(context.Background(), schema.CmdSetConfig, make([]byte, frame.MaxPayloadLen+1))
	if !errors.Is(err, frame.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if s.Sequence() != 0 || s.State() != StateIdle {
		t.Fatalf("unexpected state after encode failure: seq=%d state=%s", s.Sequence(), s.State())
	}
}

func TestStrictSequenceMismatch(t *testing.T) {
	testlog.Start(t)
	tr := &fakeTransport{}
	tr.setRespond(func(cmd frame.CommandFrame) [][]byte {
		out, _ := frame.EncodeResponse(frame.ResponseFrame{Response: cmd.Command, Sequence: cmd.Sequence + 7}, frame.Header5)
		return [][]byte{out}
	})
	cfg := DefaultConfig()
	s := newTestSession(t, tr, cfg)
	if _, err := s.Send(context.Background(), schema.CmdWifiConnect, nil); err != nil {
		t.Fatalf("lenient session should accept mismatched sequence: %v", err)
	}

	cfg.StrictSequence = true
	strict := newTestSession(t, tr, cfg)
	if _, err := strict.Send(context.Background(), schema.CmdWifiConnect, nil); !errors.Is(err, ErrSequenceMismatch) {
		t.Fatalf("expected ErrSequenceMismatch, got %v", err)
	}
	if strict.State() != StateIdle {
		t.Fatalf("expected idle, got %s", strict.State())
	}
}

func TestContextCancelReturnsToIdle(t *testing.T) {
	testlog.Start(t)
	tr := &fakeTransport{}
	s := newTestSession(t, tr, DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.SendTimeout(ctx, schema.CmdGetSensorData, nil, time.Minute); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %s", s.State())
	}
}

func TestDecodeErrorsSurface(t *testing.T) {
	testlog.Start(t)
	tr := &fakeTransport{}
	tr.setRespond(func(cmd frame.CommandFrame) [][]byte {
		return [][]byte{{byte(cmd.Command), 0x00}}
	})
	s := newTestSession(t, tr, DefaultConfig())
	if _, err := s.Send(context.Background(), schema.CmdGetSensorData, nil); !errors.Is(err, frame.ErrFrameTooShort) {
		t.Fatalf("expected ErrFrameTooShort, got %v", err)
	}

	bad := make([]byte, payload.SensorV2Len)
	bad[0] = 3
	tr.setRespond(reply(t, schema.StatusSuccess, bad))
	if _, err := s.Send(context.Background(), schema.CmdGetSensorDataV2, nil); !errors.Is(err, payload.ErrUnknownDataVersion) {
		t.Fatalf("expected ErrUnknownDataVersion, got %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %s", s.State())
	}
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	finished int
	failed   int
	dropped  int
}

func (o *countingObserver) CommandStarted(schema.CommandID, uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *countingObserver) CommandFinished(_ schema.CommandID, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
	if err != nil {
		o.failed++
	}
}

func (o *countingObserver) NotificationDropped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

func TestObserverCallbacks(t *testing.T) {
	testlog.Start(t)
	tr := &fakeTransport{}
	obs := &countingObserver{}
	s, err := New(tr, DefaultConfig(), WithObserver(obs))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tr.push([]byte{0x01, 0x00, 0x00, 0x00})
	if _, err := s.SendTimeout(context.Background(), schema.CmdGetSensorData, nil, 5*time.Millisecond); err == nil {
		t.Fatalf("expected timeout")
	}
	tr.setRespond(reply(t, schema.StatusSuccess, nil))
	if _, err := s.Send(context.Background(), schema.CmdWifiConnect, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.started != 2 || obs.finished != 2 || obs.failed != 1 || obs.dropped != 1 {
		t.Fatalf("unexpected observer counts: %+v", obs)
	}
}

func TestNewRequiresTransport(t *testing.T) {
	testlog.Start(t)
	if _, err := New(nil, DefaultConfig()); !errors.Is(err, ErrTransportRequired) {
		t.Fatalf("expected ErrTransportRequired, got %v", err)
	}
}
