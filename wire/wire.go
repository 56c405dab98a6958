// Package wire implements the on-the-wire encodings spec §4.5 names: fixed
// 4-byte big-endian integers for vid/num_members/node_id, and a compact
// self-delimiting encoding for variable-length fields (the address
// strings) — grounded on dedis-tlc's lib/fs/verst, which mixes
// the same two styles: fixed-size header fields alongside
// github.com/bford/cofo/cbe-encoded variable-length chunks.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bford/cofo/cbe"
)

// PutUint32 writes v as 4 bytes, big-endian, per spec §4.5 steps 1-3.
func PutUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadUint32 reads 4 big-endian bytes.
func ReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// PutByte writes a single byte (spec §4.5 step 5, the failed flag).
func PutByte(w io.Writer, v byte) error {
	_, err := w.Write([]byte{v})
	return err
}

// ReadByte reads a single byte.
func ReadByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// PutString writes s as a cbe-encoded chunk, itself wrapped in a 4-byte
// big-endian frame length. cbe.Decode needs the whole chunk in memory to
// self-delimit it, so over a streaming connection we frame it the same
// way raft/raftpb's message codec frames a separately-encoded payload
// (length prefix around an opaque encoded body) rather than guess at
// reading cbe's own internal header incrementally off the wire.
func PutString(w io.Writer, s string) error {
	b := cbe.Encode(nil, []byte(s))
	if err := PutUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadString reads one PutString frame.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	chunk, _, err := cbe.Decode(buf)
	if err != nil {
		return "", fmt.Errorf("wire: decode string: %w", err)
	}
	return string(chunk), nil
}
