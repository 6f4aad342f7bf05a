package transport

import (
	"context"
	"errors"
)

// Transport carries the newline-delimited text protocol spoken by the
// device. Implementations must keep Close idempotent: reader and sender
// may race to close the same link on failure.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	ReadLine(ctx context.Context) ([]byte, error)
	// ReadRaw returns the next available bytes without line framing,
	// draining anything already buffered first. The greeting exchange
	// uses it: the device is not required to newline-terminate its
	// first message.
	ReadRaw(ctx context.Context) ([]byte, error)
	WriteLine(ctx context.Context, payload []byte) error
}

// ErrNoData reports that the poll window elapsed before a complete line
// arrived. Callers treat it as "try again", not as a link failure.
var ErrNoData = errors.New("no data within poll window")

// ErrNotConnected reports an operation on a transport without a live link.
var ErrNotConnected = errors.New("transport is not connected")

type StatusTargetResolver interface {
	StatusTarget() string
}
