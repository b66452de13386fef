// Package protocol defines the five commands of the file exchange
// protocol, their request and response shapes on the wire, and the
// framing helpers both peers share.
//
// Every command is a single round trip except QUIT, which terminates the
// session. A command is one text frame carrying the command word,
// followed by its argument frames:
//
//	LIST
//	UPLOAD   | name text frame | size numeric frame | payload bytes
//	DOWNLOAD | name text frame
//	DELETE   | name text frame
//	QUIT
//
// The server answers with one text frame, except for DOWNLOAD, which
// starts with a status text frame ("SUCCESS" or "ERROR") so the client
// can branch before reading a size or payload.
package protocol

import (
	"fmt"
	"strings"

	"github.com/opd-ai/fileshare/store"
	"github.com/opd-ai/fileshare/wire"
)

// Command words sent by the client.
const (
	WordList     = "LIST"
	WordUpload   = "UPLOAD"
	WordDownload = "DOWNLOAD"
	WordDelete   = "DELETE"
	WordQuit     = "QUIT"
)

// Download status tags, sent before any size or payload frame.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// UsageHint lists the valid commands, returned for unrecognized input.
const UsageHint = "unknown command, available: LIST, UPLOAD, DOWNLOAD, DELETE, QUIT"

// Kind tags the parsed command variant.
type Kind uint8

const (
	// KindUnknown represents an unrecognized command word.
	KindUnknown Kind = iota
	// KindList requests the shared store listing.
	KindList
	// KindUpload announces an inbound file of a declared size.
	KindUpload
	// KindDownload requests a named file's bytes.
	KindDownload
	// KindDelete removes a named file.
	KindDelete
	// KindQuit ends the session.
	KindQuit
)

// Command is one parsed client request. It is parsed once per round
// trip and never mutated.
type Command struct {
	Kind Kind
	Name string // UPLOAD, DOWNLOAD, DELETE
	Size uint64 // UPLOAD
	Raw  string // original command word, kept for unknown commands
}

// ParseWord maps a command word to its kind. Matching is
// case-insensitive with surrounding whitespace ignored.
func ParseWord(raw string) Kind {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case WordList:
		return KindList
	case WordUpload:
		return KindUpload
	case WordDownload:
		return KindDownload
	case WordDelete:
		return KindDelete
	case WordQuit:
		return KindQuit
	default:
		return KindUnknown
	}
}

// String returns the command word, or "UNKNOWN" for unrecognized input.
func (k Kind) String() string {
	if w := k.word(); w != "" {
		return w
	}
	return "UNKNOWN"
}

// word returns the wire word for a known command kind.
func (k Kind) word() string {
	switch k {
	case KindList:
		return WordList
	case KindUpload:
		return WordUpload
	case KindDownload:
		return WordDownload
	case KindDelete:
		return WordDelete
	case KindQuit:
		return WordQuit
	default:
		return ""
	}
}

// ReadCommand reads one command and its argument frames from the channel.
// The UPLOAD payload itself is not consumed; it follows on the stream and
// is the caller's responsibility.
func ReadCommand(ch *wire.Channel) (Command, error) {
	raw, err := ch.ReadText()
	if err != nil {
		return Command{}, err
	}

	cmd := Command{Kind: ParseWord(raw), Raw: raw}

	switch cmd.Kind {
	case KindUpload:
		if cmd.Name, err = ch.ReadText(); err != nil {
			return Command{}, err
		}
		if cmd.Size, err = ch.ReadUint64(); err != nil {
			return Command{}, err
		}
	case KindDownload, KindDelete:
		if cmd.Name, err = ch.ReadText(); err != nil {
			return Command{}, err
		}
	}

	return cmd, nil
}

// WriteCommand writes one command and its argument frames to the
// channel without flushing; the UPLOAD payload, when present, follows
// separately.
func WriteCommand(ch *wire.Channel, cmd Command) error {
	word := cmd.Kind.word()
	if word == "" {
		word = cmd.Raw
	}
	if err := ch.WriteText(word); err != nil {
		return err
	}

	switch cmd.Kind {
	case KindUpload:
		if err := ch.WriteText(cmd.Name); err != nil {
			return err
		}
		if err := ch.WriteUint64(cmd.Size); err != nil {
			return err
		}
	case KindDownload, KindDelete:
		if err := ch.WriteText(cmd.Name); err != nil {
			return err
		}
	}

	return nil
}

// OkMessage renders a success reply frame.
func OkMessage(msg string) string {
	return StatusSuccess + ": " + msg
}

// ErrMessage renders an error reply frame.
func ErrMessage(msg string) string {
	return StatusError + ": " + msg
}

// IsError reports whether a single-frame reply carries an error.
func IsError(reply string) bool {
	return strings.HasPrefix(reply, StatusError)
}

// FormatListing renders the LIST response: one row per file with a
// human-readable size, then a count and total-size footer.
func FormatListing(entries []store.Entry) string {
	if len(entries) == 0 {
		return "no files available on the server"
	}

	rule := strings.Repeat("=", 40)

	var b strings.Builder
	b.WriteString("files available on server:\n")
	b.WriteString(rule)
	b.WriteByte('\n')

	var total uint64
	for _, e := range entries {
		fmt.Fprintf(&b, "%-30s %10s\n", e.Name, store.FormatSize(e.Size))
		total += e.Size
	}

	b.WriteString(rule)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "total: %d files, %s", len(entries), store.FormatSize(total))
	return b.String()
}
