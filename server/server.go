// Package server accepts client connections and serves the file
// exchange protocol over them, one session per connection, drawn from a
// fixed-size worker pool.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fileshare/store"
)

// DefaultMaxSessions is the default worker pool capacity.
const DefaultMaxSessions = 10

// Options configures a Server.
type Options struct {
	// Addr is the TCP listen address, e.g. ":8080".
	Addr string
	// Dir is the shared store directory, created if missing.
	Dir string
	// MaxSessions is the worker pool capacity. Zero means
	// DefaultMaxSessions. When all workers are busy, new connections
	// wait for a free worker instead of being rejected.
	MaxSessions int
	// ReadTimeout, when non-zero, bounds each command read. Off by
	// default: a stalled peer holding a worker is accepted behavior.
	ReadTimeout time.Duration
}

// Server listens for client connections and dispatches each to a
// bounded pool of session workers.
type Server struct {
	opts     Options
	store    *store.Store
	listener net.Listener

	conns chan net.Conn

	sessions map[string]*Session
	mu       sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *logrus.Entry
}

// New creates a server over the shared store at opts.Dir. The listener
// is not opened until Start.
func New(opts Options) (*Server, error) {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}

	st, err := store.New(opts.Dir)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:     opts,
		store:    st,
		conns:    make(chan net.Conn),
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
		log:      logrus.WithField("component", "server"),
	}, nil
}

// Store returns the server's shared store.
func (s *Server) Store() *store.Store {
	return s.store
}

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listener and launches the worker pool and accept
// loop. It returns once the server is accepting connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	s.listener = listener

	s.log.WithFields(logrus.Fields{
		"addr":         listener.Addr().String(),
		"shared_dir":   s.store.Dir(),
		"max_sessions": s.opts.MaxSessions,
	}).Info("Server started")

	for i := 0; i < s.opts.MaxSessions; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// acceptLoop hands accepted connections to the worker pool. When the
// pool is saturated the hand-off blocks, so new connections queue for a
// worker rather than being rejected.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	defer close(s.conns)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.WithError(err).Warn("Failed to accept connection")
			continue
		}

		s.log.WithField("remote_addr", conn.RemoteAddr().String()).Info("Client connected")

		select {
		case s.conns <- conn:
		case <-s.ctx.Done():
			conn.Close()
			return
		}
	}
}

// worker serves connections one at a time until shutdown.
func (s *Server) worker() {
	defer s.wg.Done()

	for conn := range s.conns {
		if s.ctx.Err() != nil {
			conn.Close()
			continue
		}
		s.serve(conn)
	}
}

// serve runs one session over an accepted connection. A session failure
// never affects other sessions or the process.
func (s *Server) serve(conn net.Conn) {
	session := NewSession(conn, s.store, s.opts.ReadTimeout)

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, session.ID())
		s.mu.Unlock()
	}()

	session.Run(s.ctx)
}

// ActiveSessions returns the number of sessions currently being served.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops accepting new connections, lets outstanding sessions
// finish their current command, and waits up to gracePeriod before
// force-closing whatever remains.
func (s *Server) Shutdown(gracePeriod time.Duration) error {
	s.log.WithField("grace_period", gracePeriod).Info("Shutting down")

	s.cancel()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.WithError(err).Warn("Failed to close listener")
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Shutdown complete")
		return nil
	case <-time.After(gracePeriod):
	}

	// Grace period expired: sever remaining connections so blocked
	// workers unwind.
	s.mu.Lock()
	forced := len(s.sessions)
	for _, session := range s.sessions {
		session.conn.Close()
	}
	s.mu.Unlock()

	s.log.WithField("forced_sessions", forced).Warn("Grace period expired, forcing session termination")

	<-done
	return fmt.Errorf("shutdown forced %d session(s) after %s", forced, gracePeriod)
}
