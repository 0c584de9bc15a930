package frame

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/rwtastool/rwtas/pkg/core"
)

// Optional file header. Bare files have no header at all; a header starts with
// Magic, whose first two bytes read as flags 0x5752, which always carries bits
// outside KnownFlags. A bare file can therefore never be mistaken for a
// headered one.
var Magic = []byte("RWTI")

// FormatVersion is the header version written by this package.
const FormatVersion byte = 1

// HeaderSize is the length of Magic plus the version byte.
const HeaderSize = 5

// ErrUnsupportedVersion is returned for headered files from a newer format.
var ErrUnsupportedVersion = errors.New("frame: unsupported file format version")

// WriteHeader writes Magic and FormatVersion.
func WriteHeader(w io.Writer) error {
	hdr := append(append(make([]byte, 0, HeaderSize), Magic...), FormatVersion)
	_, err := w.Write(hdr)
	return err
}

// SkipHeader inspects the start of r and consumes a header if there is one.
// It returns a reader positioned at the first record and the header version,
// or 0 for a bare file.
func SkipHeader(r io.Reader) (io.Reader, byte, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	peek, err := br.Peek(len(Magic))
	if err != nil || !bytes.Equal(peek, Magic) {
		// short or bare: let the decoder sort out what is there
		return br, 0, nil
	}
	if _, err := br.Discard(len(Magic)); err != nil {
		return nil, 0, err
	}
	version, err := br.ReadByte()
	if err != nil {
		return nil, 0, fmt.Errorf("reading header version: %w", ErrTruncated)
	}
	if version == 0 || version > FormatVersion {
		return nil, version, fmt.Errorf("header version %d: %w", version, ErrUnsupportedVersion)
	}
	return br, version, nil
}

// ReadFile decodes every record of a file body, accepting both bare and
// headered layouts.
func ReadFile(r io.Reader, report Reporter) ([]core.RecordedInput, error) {
	body, _, err := SkipHeader(r)
	if err != nil {
		return nil, err
	}
	return NewDecoder(body, report).DecodeAll()
}

// WriteFile encodes records as a file body, optionally headered.
func WriteFile(w io.Writer, records []core.RecordedInput, header bool) error {
	fw := NewWriter(w)
	if header {
		if err := WriteHeader(fw.w); err != nil {
			return err
		}
	}
	if err := fw.WriteAll(records); err != nil {
		return err
	}
	return fw.Flush()
}
