package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/plantlink/internal/protocol/schema"
)

var (
	ErrSessionBusy       = errors.New("session: command already outstanding")
	ErrTimeout           = errors.New("session: response timeout")
	ErrTransport         = errors.New("session: transport error")
	ErrDevice            = errors.New("session: device reported failure")
	ErrSequenceMismatch  = errors.New("session: response sequence mismatch")
	ErrTransportRequired = errors.New("session: transport required")
)

// DeviceError is a well-formed response whose status is not success.
type DeviceError struct {
	Command schema.CommandID
	Status  schema.Status
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("session: %s failed on device: status=%s", e.Command, e.Status)
}

func (e *DeviceError) Is(target error) bool {
	return target == ErrDevice
}

// TransportError wraps a failure returned by the transport. Its cause is opaque
// to the session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// IsRetryable reports errors a caller may retry by re-sending the command.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport)
}
