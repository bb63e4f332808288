// Package transport provides the duplex links a session.Session drives: an
// in-process pipe to a Handler and a websocket bridge to a remote device.
package transport

import (
	"errors"

	"github.com/danmuck/plantlink/internal/protocol/session"
)

var (
	ErrClosed          = errors.New("transport: link closed")
	ErrAddressRequired = errors.New("transport: address required")
)

// Link is a session transport with an owned lifetime.
type Link interface {
	session.Transport
	Close() error
}

// Handler consumes one command frame and returns the notifications the device
// emits for it. Returning none models a device that stays silent.
type Handler interface {
	Handle(frame []byte) [][]byte
}

type HandlerFunc func(frame []byte) [][]byte

func (f HandlerFunc) Handle(frame []byte) [][]byte {
	return f(frame)
}
