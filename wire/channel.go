package wire

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"
)

// MaxTextFrame is the largest text frame either peer accepts (1 MiB).
// An inbound length prefix above this limit is treated as a malformed
// frame and terminates the connection.
const MaxTextFrame = 1 << 20

// textLenSize is the width of the text frame length prefix in bytes.
const textLenSize = 4

// numericSize is the width of a numeric frame in bytes.
const numericSize = 8

// Channel frames text and numeric values over a bidirectional byte
// stream. Both peers of a connection speak exclusively through a Channel.
type Channel struct {
	r *bufio.Reader
	w *bufio.Writer

	closer    io.Closer
	closeOnce sync.Once
	closeErr  error
}

// NewChannel wraps a bidirectional stream, typically a net.Conn, in a
// framed channel with buffering in both directions.
func NewChannel(rwc io.ReadWriteCloser) *Channel {
	return &Channel{
		r:      bufio.NewReader(rwc),
		w:      bufio.NewWriter(rwc),
		closer: rwc,
	}
}

// WriteText writes one length-prefixed UTF-8 text frame. The frame is
// buffered; call Flush before expecting the peer to observe it.
func (c *Channel) WriteText(s string) error {
	if len(s) > MaxTextFrame {
		return &ChannelError{Op: "write text", Err: ErrFrameTooLarge}
	}

	var prefix [textLenSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(s)))
	if _, err := c.w.Write(prefix[:]); err != nil {
		return wrapErr("write text", err)
	}
	if _, err := c.w.WriteString(s); err != nil {
		return wrapErr("write text", err)
	}
	return nil
}

// ReadText reads one text frame, blocking until the whole frame is
// available. It fails with ErrConnectionClosed when the peer closes the
// stream and ErrFrameTooLarge when the announced length is malformed.
func (c *Channel) ReadText() (string, error) {
	var prefix [textLenSize]byte
	if _, err := io.ReadFull(c.r, prefix[:]); err != nil {
		return "", wrapErr("read text", err)
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length > MaxTextFrame {
		return "", &ChannelError{Op: "read text", Err: ErrFrameTooLarge}
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return "", wrapErr("read text", err)
	}
	return string(buf), nil
}

// WriteUint64 writes one fixed 8-byte big-endian numeric frame.
func (c *Channel) WriteUint64(v uint64) error {
	var buf [numericSize]byte
	binary.BigEndian.PutUint64(buf[:], v)
	if _, err := c.w.Write(buf[:]); err != nil {
		return wrapErr("write uint64", err)
	}
	return nil
}

// ReadUint64 reads one fixed 8-byte big-endian numeric frame.
func (c *Channel) ReadUint64() (uint64, error) {
	var buf [numericSize]byte
	if _, err := io.ReadFull(c.r, buf[:]); err != nil {
		return 0, wrapErr("read uint64", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteBytes writes raw payload bytes with no framing. The byte count is
// agreed out of band via a preceding numeric frame.
func (c *Channel) WriteBytes(p []byte) error {
	if _, err := c.w.Write(p); err != nil {
		return wrapErr("write bytes", err)
	}
	return nil
}

// ReadFull reads exactly len(p) raw payload bytes, blocking until they
// arrive or the peer closes the stream.
func (c *Channel) ReadFull(p []byte) error {
	if _, err := io.ReadFull(c.r, p); err != nil {
		return wrapErr("read bytes", err)
	}
	return nil
}

// Discard reads and throws away exactly n payload bytes. It is used to
// keep the stream synchronized when a command's payload must be consumed
// without being stored.
func (c *Channel) Discard(n uint64) error {
	if _, err := io.CopyN(io.Discard, c.r, int64(n)); err != nil {
		return wrapErr("discard", err)
	}
	return nil
}

// Flush forces buffered outbound frames onto the underlying stream.
func (c *Channel) Flush() error {
	if err := c.w.Flush(); err != nil {
		return wrapErr("flush", err)
	}
	return nil
}

// Close closes the underlying stream. It is idempotent and safe to call
// from any exit path; only the first call reaches the stream.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.closer.Close()
	})
	return c.closeErr
}
