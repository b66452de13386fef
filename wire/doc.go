// Package wire implements the framed channel both peers use to talk to
// each other: length-prefixed UTF-8 text frames, fixed-width big-endian
// numeric frames, and raw payload streaming over a single bidirectional
// byte stream.
//
// Frame layout:
//
//	text frame:    4-byte big-endian length | UTF-8 payload
//	numeric frame: 8-byte big-endian uint64
//	payload:       raw bytes, bounded by a preceding numeric frame
//
// A Channel is not safe for concurrent use; each connection is owned by
// exactly one session.
package wire
