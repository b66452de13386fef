package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// Common errors for the framed channel
var (
	// ErrConnectionClosed indicates the peer closed the stream or the
	// network connection was severed
	ErrConnectionClosed = errors.New("connection closed")

	// ErrFrameTooLarge indicates a text frame exceeds MaxTextFrame
	ErrFrameTooLarge = errors.New("frame too large")
)

// ChannelError represents a channel failure with the operation that caused it
type ChannelError struct {
	Op  string // operation that caused the error
	Err error  // underlying error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("wire %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// wrapErr normalizes stream errors into a ChannelError. End-of-stream and
// closed-network conditions collapse into ErrConnectionClosed so callers can
// classify them with errors.Is.
func wrapErr(op string, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return &ChannelError{Op: op, Err: ErrConnectionClosed}
	}
	return &ChannelError{Op: op, Err: err}
}
