package payload

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPayload       = errors.New("payload: empty")
	ErrTruncatedPayload   = errors.New("payload: truncated")
	ErrUnknownDataVersion = errors.New("payload: unknown data version")
	ErrUnknownSchema      = errors.New("payload: unknown profile schema")
)

// UnknownVersionError carries the version byte that selected no layout.
type UnknownVersionError struct {
	Version uint8
}

func (e *UnknownVersionError) Error() string {
	return fmt.Sprintf("payload: unknown data version %d", e.Version)
}

func (e *UnknownVersionError) Is(target error) bool {
	return target == ErrUnknownDataVersion
}

func truncated(record string, need, got int) error {
	return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrTruncatedPayload, record, need, got)
}
