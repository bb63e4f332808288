package transport

import (
	"context"
	"sync"
	"time"
)

// Pipe is an in-memory Link. Each write is handed to the handler on its own
// goroutine and the results are delivered as notifications after latency.
type Pipe struct {
	handler Handler
	latency time.Duration

	mu     sync.RWMutex
	notify func([]byte)
	closed bool
	wg     sync.WaitGroup
}

func NewPipe(h Handler, latency time.Duration) *Pipe {
	return &Pipe{handler: h, latency: latency}
}

func (p *Pipe) OnNotification(fn func([]byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notify = fn
}

func (p *Pipe) Write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	in := append([]byte(nil), b...)
	go func() {
		defer p.wg.Done()
		if p.latency > 0 {
			time.Sleep(p.latency)
		}
		for _, out := range p.handler.Handle(in) {
			p.deliver(out)
		}
	}()
	return nil
}

func (p *Pipe) deliver(b []byte) {
	p.mu.RLock()
	fn := p.notify
	closed := p.closed
	p.mu.RUnlock()
	if fn == nil || closed {
		return
	}
	fn(b)
}

// Inject delivers b as if the device had sent it unprompted.
func (p *Pipe) Inject(b []byte) {
	p.deliver(b)
}

// Close stops delivery and waits for in-flight handlers.
func (p *Pipe) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

var _ Link = (*Pipe)(nil)
