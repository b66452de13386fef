package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fileshare/protocol"
	"github.com/opd-ai/fileshare/store"
	"github.com/opd-ai/fileshare/transfer"
	"github.com/opd-ai/fileshare/wire"
)

// SessionState represents the lifecycle of one connection session.
type SessionState uint8

const (
	// SessionActive indicates the session is serving commands.
	SessionActive SessionState = iota
	// SessionClosing indicates the session finishes its current command
	// and then terminates, used during graceful shutdown.
	SessionClosing
	// SessionClosed indicates the session has released its resources.
	SessionClosed
)

// progressLogInterval throttles transfer progress logging per session.
const progressLogInterval = time.Second

// Session owns one framed channel for the lifetime of one client
// connection and drives the read-command/dispatch/respond loop until
// QUIT or an I/O failure. State is single-writer: only the session's own
// goroutine touches it, so no synchronization is needed around it.
type Session struct {
	id     string
	conn   net.Conn
	ch     *wire.Channel
	store  *store.Store
	engine *transfer.Engine

	state       SessionState
	readTimeout time.Duration

	log       *logrus.Entry
	closeOnce sync.Once
}

// NewSession wraps an accepted connection in a session over the given
// shared store. readTimeout, when non-zero, bounds each command read as
// a deployment safeguard; it does not change protocol semantics.
func NewSession(conn net.Conn, st *store.Store, readTimeout time.Duration) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		conn:        conn,
		ch:          wire.NewChannel(conn),
		store:       st,
		engine:      transfer.NewEngine(),
		state:       SessionActive,
		readTimeout: readTimeout,
		log: logrus.WithFields(logrus.Fields{
			"session_id":  id,
			"remote_addr": conn.RemoteAddr().String(),
		}),
	}
}

// ID returns the session's correlation id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current session state. Meaningful only from the
// session's own goroutine, or after Run has returned.
func (s *Session) State() SessionState {
	return s.state
}

// Run drives the session loop: read a command, dispatch it, send the
// response, repeat. The command read is the loop's only suspension
// point; each iteration is strictly sequential, with no pipelining. Run
// returns once the session reaches SessionClosed, with the channel and
// connection released exactly once regardless of exit path.
func (s *Session) Run(ctx context.Context) {
	defer s.close()

	s.log.Info("Session started")

	for s.state == SessionActive {
		if ctx.Err() != nil {
			// Shutdown requested between commands.
			s.state = SessionClosing
			break
		}

		if s.readTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
				s.log.WithError(err).Warn("Failed to arm read deadline")
			}
		}

		cmd, err := protocol.ReadCommand(s.ch)
		if err != nil {
			if errors.Is(err, wire.ErrConnectionClosed) {
				s.log.Info("Client disconnected")
			} else {
				s.log.WithError(err).Warn("Failed to read command")
			}
			break
		}

		if s.readTimeout > 0 {
			// The timeout bounds the command read only; payload reads
			// during a transfer may legitimately take longer.
			if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
				s.log.WithError(err).Warn("Failed to clear read deadline")
			}
		}

		if err := s.dispatch(cmd); err != nil {
			if !errors.Is(err, wire.ErrConnectionClosed) {
				s.log.WithError(err).Warn("Session terminated by command failure")
			}
			break
		}
	}

	s.state = SessionClosed
	s.log.Info("Session closed")
}

// dispatch executes one command and writes its response. A returned
// error is connection-level and terminates the session; command-level
// failures are reported to the peer as ERROR replies and return nil.
func (s *Session) dispatch(cmd protocol.Command) error {
	log := s.log.WithField("command", cmd.Kind.String())
	if cmd.Name != "" {
		log = log.WithField("file_name", cmd.Name)
	}
	log.Info("Command received")

	switch cmd.Kind {
	case protocol.KindList:
		return s.handleList(log)
	case protocol.KindUpload:
		return s.handleUpload(log, cmd)
	case protocol.KindDownload:
		return s.handleDownload(log, cmd)
	case protocol.KindDelete:
		return s.handleDelete(log, cmd)
	case protocol.KindQuit:
		return s.handleQuit(log)
	default:
		log.WithField("raw", cmd.Raw).Warn("Unknown command")
		return s.reply(protocol.ErrMessage(protocol.UsageHint))
	}
}

// handleList sends the store listing as one text frame. Enumeration may
// race with a concurrent upload or delete; the listing is allowed to be
// stale.
func (s *Session) handleList(log *logrus.Entry) error {
	entries, err := s.store.List()
	if err != nil {
		log.WithError(err).Error("Failed to list shared store")
		return s.reply(protocol.ErrMessage("could not list files"))
	}

	log.WithField("file_count", len(entries)).Info("Listed shared store")
	return s.reply(protocol.FormatListing(entries))
}

// handleUpload receives a declared number of payload bytes into the
// shared store. An invalid name still consumes the declared payload so
// the stream stays synchronized for subsequent commands.
func (s *Session) handleUpload(log *logrus.Entry, cmd protocol.Command) error {
	destPath, err := s.store.Path(cmd.Name)
	if err != nil {
		log.WithField("declared_size", cmd.Size).Warn("Rejected upload with invalid name")
		if err := s.ch.Discard(cmd.Size); err != nil {
			return err
		}
		return s.reply(protocol.ErrMessage("invalid filename"))
	}

	desc := transfer.Descriptor{Name: cmd.Name, TotalBytes: cmd.Size, Direction: transfer.Inbound}
	if err := s.engine.ReceiveFile(s.ch, desc, destPath, s.progressLogger(log)); err != nil {
		if errors.Is(err, transfer.ErrStreamTruncated) || errors.Is(err, wire.ErrConnectionClosed) {
			// The peer is gone; there is nobody left to answer.
			log.WithError(err).Warn("Upload stream truncated")
			return err
		}
		// The engine consumed the declared payload even on local failure,
		// so the reply lands on a synchronized stream.
		log.WithError(err).Error("Upload failed")
		return s.reply(protocol.ErrMessage("upload failed: " + err.Error()))
	}

	log.WithField("size", cmd.Size).Info("Upload completed")
	return s.reply(protocol.OkMessage("uploaded: " + cmd.Name))
}

// handleDownload answers with a status frame, then on success a size
// frame followed by the raw byte stream.
func (s *Session) handleDownload(log *logrus.Entry, cmd protocol.Command) error {
	entry, err := s.store.Stat(cmd.Name)
	if err != nil {
		log.WithError(err).Warn("Download rejected")
		reason := "file not found: " + cmd.Name
		if errors.Is(err, store.ErrInvalidName) {
			reason = "invalid filename"
		}
		if err := s.ch.WriteText(protocol.StatusError); err != nil {
			return err
		}
		if err := s.ch.WriteText(reason); err != nil {
			return err
		}
		return s.ch.Flush()
	}

	if err := s.ch.WriteText(protocol.StatusSuccess); err != nil {
		return err
	}
	if err := s.ch.WriteUint64(entry.Size); err != nil {
		return err
	}
	if err := s.ch.Flush(); err != nil {
		return err
	}

	path, _ := s.store.Path(cmd.Name)
	desc := transfer.Descriptor{Name: cmd.Name, TotalBytes: entry.Size, Direction: transfer.Outbound}
	if err := s.engine.SendFile(s.ch, desc, path, s.progressLogger(log)); err != nil {
		// The size frame is already on the wire. Closing the connection
		// is the only way the peer can observe the truncation.
		log.WithError(err).Error("Download failed mid-stream")
		return err
	}

	log.WithField("size", entry.Size).Info("Download completed")
	return nil
}

// handleDelete removes the named entry from the shared store.
func (s *Session) handleDelete(log *logrus.Entry, cmd protocol.Command) error {
	if err := s.store.Remove(cmd.Name); err != nil {
		log.WithError(err).Warn("Delete rejected")
		switch {
		case errors.Is(err, store.ErrInvalidName):
			return s.reply(protocol.ErrMessage("invalid filename"))
		case errors.Is(err, store.ErrNotFound):
			return s.reply(protocol.ErrMessage("file not found: " + cmd.Name))
		default:
			return s.reply(protocol.ErrMessage("could not delete: " + cmd.Name))
		}
	}

	log.Info("Delete completed")
	return s.reply(protocol.OkMessage("deleted: " + cmd.Name))
}

// handleQuit sends the farewell and moves the session to its terminal
// state.
func (s *Session) handleQuit(log *logrus.Entry) error {
	if err := s.reply("goodbye, connection closed"); err != nil {
		return err
	}
	log.Info("Client quit")
	s.state = SessionClosing
	return nil
}

// reply writes one text frame response and flushes it.
func (s *Session) reply(msg string) error {
	if err := s.ch.WriteText(msg); err != nil {
		return err
	}
	return s.ch.Flush()
}

// progressLogger logs transfer progress at most once per
// progressLogInterval.
func (s *Session) progressLogger(log *logrus.Entry) transfer.ProgressFunc {
	var last time.Time
	return func(p transfer.Progress) {
		now := time.Now()
		if now.Sub(last) < progressLogInterval && p.Transferred < p.Total {
			return
		}
		last = now
		log.WithFields(logrus.Fields{
			"transferred": p.Transferred,
			"total":       p.Total,
			"percent":     int(p.Percent()),
		}).Debug("Transfer progress")
	}
}

// close releases the channel and connection. Safe on every exit path;
// only the first call has effect.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		if err := s.ch.Close(); err != nil {
			s.log.WithError(err).Warn("Failed to close channel")
		}
	})
}
