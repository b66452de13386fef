// Package transfer streams file contents across a framed channel in
// fixed-size chunks, tracking bytes moved, computing throughput, and
// reporting progress to an observer callback.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fileshare/wire"
)

// ChunkSize is the size of each transfer chunk in bytes.
const ChunkSize = 4096

// ErrStreamTruncated indicates the channel closed before the declared
// byte count was received.
var ErrStreamTruncated = errors.New("stream truncated before declared size")

// ErrLocalIO indicates a local filesystem failure during a transfer,
// such as a source deleted mid-send or a full disk on receive.
var ErrLocalIO = errors.New("local i/o failure")

// ErrDirectionMismatch indicates a descriptor was passed to the wrong
// engine operation.
var ErrDirectionMismatch = errors.New("transfer direction mismatch")

// Direction indicates whether a transfer moves bytes into or out of the
// local process.
type Direction uint8

const (
	// Inbound represents a file being received.
	Inbound Direction = iota
	// Outbound represents a file being sent.
	Outbound
)

// String returns a human-readable direction name.
func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// Descriptor describes one transfer. It is created when a transfer
// command is accepted, consumed entirely by the engine, and discarded
// when the transfer completes or fails.
type Descriptor struct {
	Name       string
	TotalBytes uint64
	Direction  Direction
}

// Progress is a snapshot of a running transfer, delivered to the
// observer after every chunk.
type Progress struct {
	Transferred uint64
	Total       uint64
	Elapsed     time.Duration
	Speed       float64 // bytes per second, exponential moving average
}

// Percent returns completion as a percentage.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0.0
	}
	return float64(p.Transferred) / float64(p.Total) * 100.0
}

// ProgressFunc observes transfer progress. It is advisory only: the
// engine invokes it inline after each chunk and expects it not to block.
type ProgressFunc func(Progress)

// Clock abstracts time operations for deterministic testing.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// systemClock uses the standard library time functions.
type systemClock struct{}

func (systemClock) Now() time.Time                  { return time.Now() }
func (systemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// Engine moves file bytes across framed channels chunk by chunk.
type Engine struct {
	clock Clock
}

// NewEngine creates a transfer engine backed by the system clock.
func NewEngine() *Engine {
	return &Engine{clock: systemClock{}}
}

// SetClock replaces the engine clock, for deterministic tests.
func (e *Engine) SetClock(c Clock) {
	e.clock = c
}

// SendFile streams the file at path over the channel, exactly
// desc.TotalBytes bytes in ChunkSize chunks, flushing once the final
// chunk is written. A source that becomes unreadable or shrinks
// mid-transfer fails with ErrLocalIO: the peer receives a truncated
// stream and detects it via byte-count mismatch, since the protocol
// carries no abort signal.
func (e *Engine) SendFile(ch *wire.Channel, desc Descriptor, path string, fn ProgressFunc) error {
	if desc.Direction != Outbound {
		return ErrDirectionMismatch
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrLocalIO, path, err)
	}
	defer f.Close()

	logrus.WithFields(logrus.Fields{
		"file_name":   desc.Name,
		"total_bytes": desc.TotalBytes,
		"direction":   desc.Direction.String(),
	}).Debug("Starting outbound transfer")

	tr := newTracker(e.clock, desc.TotalBytes, fn)
	buf := make([]byte, ChunkSize)
	remaining := desc.TotalBytes

	for remaining > 0 {
		chunk := buf
		if remaining < ChunkSize {
			chunk = buf[:remaining]
		}

		n, err := io.ReadFull(f, chunk)
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrLocalIO, path, err)
		}

		if err := ch.WriteBytes(chunk[:n]); err != nil {
			return err
		}

		remaining -= uint64(n)
		tr.advance(uint64(n))
	}

	return ch.Flush()
}

// ReceiveFile reads exactly desc.TotalBytes bytes from the channel into
// destPath, created fresh for exclusive writing. The channel closing
// early fails with ErrStreamTruncated. A local failure, whether the
// destination cannot be created or a write fails mid-stream, still
// consumes the declared byte count from the channel before returning
// ErrLocalIO, so the channel stays aligned on the next frame. On any
// failure the partially written destination is removed before
// returning: a transfer either fully succeeds or leaves no artifact.
func (e *Engine) ReceiveFile(ch *wire.Channel, desc Descriptor, destPath string, fn ProgressFunc) error {
	if desc.Direction != Inbound {
		return ErrDirectionMismatch
	}

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		if derr := ch.Discard(desc.TotalBytes); derr != nil {
			return derr
		}
		return fmt.Errorf("%w: create %s: %v", ErrLocalIO, destPath, err)
	}

	logrus.WithFields(logrus.Fields{
		"file_name":   desc.Name,
		"total_bytes": desc.TotalBytes,
		"direction":   desc.Direction.String(),
	}).Debug("Starting inbound transfer")

	if err := e.receiveChunks(ch, desc.TotalBytes, f, fn); err != nil {
		f.Close()
		e.discardPartial(destPath, desc.Name)
		return err
	}

	if err := f.Close(); err != nil {
		e.discardPartial(destPath, desc.Name)
		return fmt.Errorf("%w: close %s: %v", ErrLocalIO, destPath, err)
	}
	return nil
}

// receiveChunks copies the declared byte count from the channel into the
// destination file.
func (e *Engine) receiveChunks(ch *wire.Channel, total uint64, f *os.File, fn ProgressFunc) error {
	tr := newTracker(e.clock, total, fn)
	buf := make([]byte, ChunkSize)
	remaining := total

	for remaining > 0 {
		chunk := buf
		if remaining < ChunkSize {
			chunk = buf[:remaining]
		}

		if err := ch.ReadFull(chunk); err != nil {
			if errors.Is(err, wire.ErrConnectionClosed) {
				return ErrStreamTruncated
			}
			return err
		}

		if _, err := f.Write(chunk); err != nil {
			// The current chunk is already off the wire; only the bytes
			// after it remain to be consumed.
			if derr := ch.Discard(remaining - uint64(len(chunk))); derr != nil {
				return derr
			}
			return fmt.Errorf("%w: write %s: %v", ErrLocalIO, f.Name(), err)
		}

		remaining -= uint64(len(chunk))
		tr.advance(uint64(len(chunk)))
	}

	return nil
}

// discardPartial removes a partially written destination file.
func (e *Engine) discardPartial(destPath, name string) {
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		logrus.WithFields(logrus.Fields{
			"file_name": name,
			"dest_path": destPath,
			"error":     err.Error(),
		}).Warn("Failed to remove partial transfer artifact")
	}
}

// tracker accumulates transferred bytes and throughput between chunks.
type tracker struct {
	clock       Clock
	fn          ProgressFunc
	start       time.Time
	lastChunk   time.Time
	speed       float64
	transferred uint64
	total       uint64
}

func newTracker(clock Clock, total uint64, fn ProgressFunc) *tracker {
	now := clock.Now()
	return &tracker{clock: clock, fn: fn, start: now, lastChunk: now, total: total}
}

// advance records one delivered chunk and notifies the observer.
func (t *tracker) advance(n uint64) {
	t.transferred += n
	t.updateSpeed(n)

	if t.fn != nil {
		t.fn(Progress{
			Transferred: t.transferred,
			Total:       t.total,
			Elapsed:     t.clock.Since(t.start),
			Speed:       t.speed,
		})
	}
}

// updateSpeed folds the latest chunk into an exponential moving average
// with alpha = 0.3.
func (t *tracker) updateSpeed(n uint64) {
	now := t.clock.Now()
	duration := t.clock.Since(t.lastChunk).Seconds()

	if duration > 0 {
		instant := float64(n) / duration
		if t.speed == 0 {
			t.speed = instant
		} else {
			t.speed = 0.7*t.speed + 0.3*instant
		}
	}

	t.lastChunk = now
}
