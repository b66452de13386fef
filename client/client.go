// Package client implements the client side of the file exchange
// protocol: connect, list, upload, download, delete, quit. Server ERROR
// replies are surfaced verbatim; the caller decides whether to retry.
//
// A Client drives one connection sequentially and is not safe for
// concurrent use.
package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fileshare/protocol"
	"github.com/opd-ai/fileshare/transfer"
	"github.com/opd-ai/fileshare/wire"
)

// Common errors for client-side upload policy checks
var (
	// ErrNotConnected indicates the client has no live connection
	ErrNotConnected = errors.New("not connected")

	// ErrEmptyFile indicates an upload of a zero-byte file, rejected
	// client-side before any frame is sent
	ErrEmptyFile = errors.New("cannot upload empty file")

	// ErrNotRegularFile indicates the upload path is not a regular file
	ErrNotRegularFile = errors.New("not a regular file")
)

// ServerError is an ERROR reply from the server, carried verbatim.
type ServerError struct {
	Reason string
}

func (e *ServerError) Error() string {
	return e.Reason
}

// Client is one connection to a file exchange server.
type Client struct {
	conn      net.Conn
	ch        *wire.Channel
	engine    *transfer.Engine
	connected bool
	log       *logrus.Entry
}

// Dial connects to a server.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	log := logrus.WithFields(logrus.Fields{
		"component":   "client",
		"server_addr": addr,
	})
	log.Info("Connected to server")

	return &Client{
		conn:      conn,
		ch:        wire.NewChannel(conn),
		engine:    transfer.NewEngine(),
		connected: true,
		log:       log,
	}, nil
}

// Connected reports whether the client still considers its connection
// usable. A connection-level failure clears it; there is no automatic
// reconnect.
func (c *Client) Connected() bool {
	return c.connected
}

// List requests the shared store listing and returns it as one
// formatted text block.
func (c *Client) List() (string, error) {
	if !c.connected {
		return "", ErrNotConnected
	}

	if err := protocol.WriteCommand(c.ch, protocol.Command{Kind: protocol.KindList}); err != nil {
		return "", c.fail(err)
	}
	if err := c.ch.Flush(); err != nil {
		return "", c.fail(err)
	}

	return c.readReply()
}

// Upload sends the local file at path into the shared store under its
// base name and returns the server's reply. Zero-byte files are
// rejected client-side; the protocol itself permits them.
func (c *Client) Upload(path string, fn transfer.ProgressFunc) (string, error) {
	if !c.connected {
		return "", ErrNotConnected
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}
	if info.Size() == 0 {
		return "", ErrEmptyFile
	}

	name := filepath.Base(path)
	size := uint64(info.Size())

	cmd := protocol.Command{Kind: protocol.KindUpload, Name: name, Size: size}
	if err := protocol.WriteCommand(c.ch, cmd); err != nil {
		return "", c.fail(err)
	}

	c.log.WithFields(logrus.Fields{
		"file_name": name,
		"size":      size,
	}).Info("Uploading file")

	desc := transfer.Descriptor{Name: name, TotalBytes: size, Direction: transfer.Outbound}
	if err := c.engine.SendFile(c.ch, desc, path, fn); err != nil {
		if errors.Is(err, wire.ErrConnectionClosed) {
			return "", c.fail(err)
		}
		return "", err
	}

	return c.readReply()
}

// Download fetches a named file from the shared store into destDir,
// creating the directory if needed, and returns the local path written.
// A server-side rejection is returned as a *ServerError with the reason
// verbatim, and no size or payload is read.
func (c *Client) Download(name, destDir string, fn transfer.ProgressFunc) (string, error) {
	if !c.connected {
		return "", ErrNotConnected
	}

	cmd := protocol.Command{Kind: protocol.KindDownload, Name: name}
	if err := protocol.WriteCommand(c.ch, cmd); err != nil {
		return "", c.fail(err)
	}
	if err := c.ch.Flush(); err != nil {
		return "", c.fail(err)
	}

	status, err := c.ch.ReadText()
	if err != nil {
		return "", c.fail(err)
	}

	if status != protocol.StatusSuccess {
		reason, err := c.ch.ReadText()
		if err != nil {
			return "", c.fail(err)
		}
		return "", &ServerError{Reason: reason}
	}

	size, err := c.ch.ReadUint64()
	if err != nil {
		return "", c.fail(err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		// The payload is already committed to the wire; consume it so the
		// connection stays aligned on the next reply.
		if derr := c.ch.Discard(size); derr != nil {
			return "", c.fail(derr)
		}
		return "", fmt.Errorf("create download directory %s: %w", destDir, err)
	}

	destPath := filepath.Join(destDir, name)
	c.log.WithFields(logrus.Fields{
		"file_name": name,
		"size":      size,
		"dest_path": destPath,
	}).Info("Downloading file")

	desc := transfer.Descriptor{Name: name, TotalBytes: size, Direction: transfer.Inbound}
	if err := c.engine.ReceiveFile(c.ch, desc, destPath, fn); err != nil {
		if errors.Is(err, transfer.ErrStreamTruncated) || errors.Is(err, wire.ErrConnectionClosed) {
			return "", c.fail(err)
		}
		return "", err
	}

	return destPath, nil
}

// Delete removes a named file from the shared store and returns the
// server's reply.
func (c *Client) Delete(name string) (string, error) {
	if !c.connected {
		return "", ErrNotConnected
	}

	cmd := protocol.Command{Kind: protocol.KindDelete, Name: name}
	if err := protocol.WriteCommand(c.ch, cmd); err != nil {
		return "", c.fail(err)
	}
	if err := c.ch.Flush(); err != nil {
		return "", c.fail(err)
	}

	return c.readReply()
}

// Quit performs the QUIT round trip, returns the server's farewell, and
// closes the connection.
func (c *Client) Quit() (string, error) {
	if !c.connected {
		return "", ErrNotConnected
	}

	if err := protocol.WriteCommand(c.ch, protocol.Command{Kind: protocol.KindQuit}); err != nil {
		return "", c.fail(err)
	}
	if err := c.ch.Flush(); err != nil {
		return "", c.fail(err)
	}

	farewell, err := c.ch.ReadText()
	if err != nil {
		return "", c.fail(err)
	}

	c.connected = false
	return farewell, c.ch.Close()
}

// Close releases the connection without the QUIT round trip.
func (c *Client) Close() error {
	c.connected = false
	return c.ch.Close()
}

// readReply reads one text frame reply. An ERROR reply becomes a
// *ServerError carrying the message verbatim.
func (c *Client) readReply() (string, error) {
	reply, err := c.ch.ReadText()
	if err != nil {
		return "", c.fail(err)
	}
	if protocol.IsError(reply) {
		return "", &ServerError{Reason: reply}
	}
	return reply, nil
}

// fail marks the connection unusable after a connection-level error.
func (c *Client) fail(err error) error {
	if errors.Is(err, wire.ErrConnectionClosed) {
		c.log.Warn("Connection to server lost")
	} else {
		c.log.WithError(err).Warn("Connection failure")
	}
	c.connected = false
	c.ch.Close()
	return err
}
