// Package ipc defines the local editor protocol and a client for it.
//
// A session is one request per connection:
//
//	server -> client   version string (1 byte length + UTF-8)
//	client -> server   version string, must match byte for byte
//	client -> server   1 byte request code
//	RequestInputs      server -> client: uint32 count, then count frame records
//	SetInputs          client -> server: uint32 count, then count frame records
//
// All integers are little-endian.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// Version is the protocol version spoken by this build.
const Version = "1.1"

// PipeName is the well-known endpoint name.
const PipeName = "RWTasTool"

// DefaultNetwork and DefaultAddress locate the well-known endpoint.
const DefaultNetwork = "unix"

// DefaultAddress returns the socket path used when none is configured.
func DefaultAddress() string {
	return filepath.Join(os.TempDir(), PipeName+".sock")
}

// RequestCode identifies what the client wants after the handshake.
type RequestCode byte

const (
	RequestInputs RequestCode = 0
	SetInputs     RequestCode = 1
)

func (c RequestCode) String() string {
	switch c {
	case RequestInputs:
		return "RequestInputs"
	case SetInputs:
		return "SetInputs"
	}
	return fmt.Sprintf("RequestCode(%d)", byte(c))
}

// MaxStringLen is the longest string the length byte can frame.
const MaxStringLen = 254

var (
	ErrVersionMismatch = errors.New("ipc: protocol version mismatch")
	ErrUnknownRequest  = errors.New("ipc: unknown request code")
	ErrStringTooLong   = errors.New("ipc: string must be shorter than 255 bytes")
	ErrNegativeCount   = errors.New("ipc: negative frame count")
)

// WriteString writes a length-prefixed UTF-8 string.
func WriteString(w io.Writer, s string) error {
	if len(s) > MaxStringLen {
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
	}
	buf := make([]byte, 0, len(s)+1)
	buf = append(buf, byte(len(s)))
	buf = append(buf, s...)
	_, err := w.Write(buf)
	return err
}

// ReadString reads a length-prefixed UTF-8 string.
func ReadString(r io.Reader) (string, error) {
	var n [1]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", fmt.Errorf("reading string length: %w", noEOF(err))
	}
	buf := make([]byte, n[0])
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("reading string data: %w", noEOF(err))
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("ipc: string is not valid UTF-8")
	}
	return string(buf), nil
}

// WriteCount writes a frame count.
func WriteCount(w io.Writer, n int) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(int32(n)))
	_, err := w.Write(b[:])
	return err
}

// ReadCount reads a frame count. Counts are signed on the wire; negative values
// are rejected.
func ReadCount(r io.Reader) (int, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("reading frame count: %w", noEOF(err))
	}
	n := int32(binary.LittleEndian.Uint32(b[:]))
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeCount, n)
	}
	return int(n), nil
}

// noEOF turns a bare io.EOF into io.ErrUnexpectedEOF: every field read by
// these helpers was promised by the other side.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
