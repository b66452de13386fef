package wire

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// channelPair returns two channels joined by an in-memory pipe.
func channelPair() (*Channel, *Channel) {
	a, b := net.Pipe()
	return NewChannel(a), NewChannel(b)
}

func TestTextFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "plain_command", text: "LIST"},
		{name: "multi_line_listing", text: "report.pdf 10000\nnotes.txt 42\ntotal: 2 files"},
		{name: "unicode", text: "resumé-draft (final) ✓.txt"},
		{name: "embedded_nul", text: "a\x00b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, receiver := channelPair()
			defer sender.Close()
			defer receiver.Close()

			errCh := make(chan error, 1)
			go func() {
				if err := sender.WriteText(tt.text); err != nil {
					errCh <- err
					return
				}
				errCh <- sender.Flush()
			}()

			got, err := receiver.ReadText()
			require.NoError(t, err)
			require.NoError(t, <-errCh)
			assert.Equal(t, tt.text, got)
		})
	}
}

func TestUint64RoundTrip(t *testing.T) {
	sender, receiver := channelPair()
	defer sender.Close()
	defer receiver.Close()

	values := []uint64{0, 1, 4096, 10000, 1<<32 + 7, ^uint64(0)}

	go func() {
		for _, v := range values {
			if err := sender.WriteUint64(v); err != nil {
				return
			}
		}
		sender.Flush()
	}()

	for _, want := range values {
		got, err := receiver.ReadUint64()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	sender, receiver := channelPair()
	defer sender.Close()
	defer receiver.Close()

	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	go func() {
		if err := sender.WriteUint64(uint64(len(payload))); err != nil {
			return
		}
		if err := sender.WriteBytes(payload); err != nil {
			return
		}
		sender.Flush()
	}()

	size, err := receiver.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(len(payload)), size)

	got := make([]byte, size)
	require.NoError(t, receiver.ReadFull(got))
	assert.Equal(t, payload, got)
}

func TestDiscardKeepsStreamSynchronized(t *testing.T) {
	sender, receiver := channelPair()
	defer sender.Close()
	defer receiver.Close()

	go func() {
		sender.WriteBytes(make([]byte, 9000)) // payload that will be discarded
		sender.WriteText("next command")
		sender.Flush()
	}()

	require.NoError(t, receiver.Discard(9000))

	got, err := receiver.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "next command", got)
}

func TestReadFailsWithConnectionClosed(t *testing.T) {
	sender, receiver := channelPair()
	defer receiver.Close()

	require.NoError(t, sender.Close())

	_, err := receiver.ReadText()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	_, err = receiver.ReadUint64()
	assert.ErrorIs(t, err, ErrConnectionClosed)

	err = receiver.ReadFull(make([]byte, 8))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReadTextPartialFrameIsConnectionClosed(t *testing.T) {
	a, b := net.Pipe()
	receiver := NewChannel(b)
	defer receiver.Close()

	go func() {
		// Announce 100 bytes but deliver only 10, then close.
		var prefix [4]byte
		binary.BigEndian.PutUint32(prefix[:], 100)
		a.Write(prefix[:])
		a.Write(make([]byte, 10))
		a.Close()
	}()

	_, err := receiver.ReadText()
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReadTextRejectsOversizedFrame(t *testing.T) {
	a, b := net.Pipe()
	receiver := NewChannel(b)
	defer receiver.Close()

	go func() {
		var prefix [4]byte
		binary.BigEndian.PutUint32(prefix[:], MaxTextFrame+1)
		a.Write(prefix[:])
		a.Close()
	}()

	_, err := receiver.ReadText()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWriteTextRejectsOversizedFrame(t *testing.T) {
	sender, _ := channelPair()
	defer sender.Close()

	err := sender.WriteText(string(make([]byte, MaxTextFrame+1)))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestCloseIsIdempotent(t *testing.T) {
	sender, receiver := channelPair()
	defer receiver.Close()

	first := sender.Close()
	second := sender.Close()
	assert.Equal(t, first, second)
}

func TestChannelErrorUnwrap(t *testing.T) {
	err := &ChannelError{Op: "read text", Err: ErrConnectionClosed}
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Contains(t, err.Error(), "read text")
}
