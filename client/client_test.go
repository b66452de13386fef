package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/fileshare/server"
	"github.com/opd-ai/fileshare/transfer"
)

// startServer runs a server on an ephemeral loopback port.
func startServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.New(server.Options{
		Addr: "127.0.0.1:0",
		Dir:  filepath.Join(t.TempDir(), "shared_files"),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	t.Cleanup(func() { srv.Shutdown(2 * time.Second) })
	return srv
}

func dial(t *testing.T, srv *server.Server) *Client {
	t.Helper()

	c, err := Dial(srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestUploadPolicyChecks(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	t.Run("empty_file_rejected_before_any_frame", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.txt")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		_, err := c.Upload(path, nil)
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("directory_rejected", func(t *testing.T) {
		_, err := c.Upload(t.TempDir(), nil)
		assert.ErrorIs(t, err, ErrNotRegularFile)
	})

	t.Run("missing_path_rejected", func(t *testing.T) {
		_, err := c.Upload(filepath.Join(t.TempDir(), "nope.txt"), nil)
		assert.Error(t, err)
	})

	// None of the rejected uploads touched the connection.
	assert.True(t, c.Connected())
	listing, err := c.List()
	require.NoError(t, err)
	assert.Equal(t, "no files available on the server", listing)
}

func TestServerErrorSurfacedVerbatim(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	_, err := c.Delete("ghost.txt")
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "ERROR: file not found: ghost.txt", serverErr.Reason)
	assert.Equal(t, serverErr.Reason, serverErr.Error())

	// Command-level errors never disconnect the client.
	assert.True(t, c.Connected())
}

func TestQuitEndsTheConnection(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	farewell, err := c.Quit()
	require.NoError(t, err)
	assert.Contains(t, farewell, "goodbye")
	assert.False(t, c.Connected())

	_, err = c.List()
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = c.Upload("anything", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = c.Download("anything", t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = c.Delete("anything")
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = c.Quit()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDownloadCreatesDestinationDirectory(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	content := []byte("small but real payload")
	local := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(local, content, 0o644))

	_, err := c.Upload(local, nil)
	require.NoError(t, err)

	destDir := filepath.Join(t.TempDir(), "downloads", "nested")
	path, err := c.Download("note.txt", destDir, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "note.txt"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadLocalFailureKeepsClientUsable(t *testing.T) {
	srv := startServer(t)
	c := dial(t, srv)

	content := []byte("payload that must be consumed on failure")
	local := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(local, content, 0o644))
	_, err := c.Upload(local, nil)
	require.NoError(t, err)

	t.Run("destination_occupied_by_directory", func(t *testing.T) {
		destDir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(destDir, "data.bin"), 0o755))

		_, err := c.Download("data.bin", destDir, nil)
		assert.ErrorIs(t, err, transfer.ErrLocalIO)
	})

	t.Run("destination_directory_uncreatable", func(t *testing.T) {
		// A regular file blocks the directory path.
		blocker := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

		_, err := c.Download("data.bin", filepath.Join(blocker, "sub"), nil)
		assert.Error(t, err)
	})

	// Each failed download consumed its payload, so the connection is
	// still aligned and usable.
	assert.True(t, c.Connected())
	listing, err := c.List()
	require.NoError(t, err)
	assert.Contains(t, listing, "data.bin")
}

func TestDialFailure(t *testing.T) {
	// A port nobody listens on.
	_, err := Dial("127.0.0.1:1")
	assert.Error(t, err)
}
