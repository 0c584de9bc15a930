package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rwtastool/rwtas/pkg/core"
)

// ErrTruncated is returned when the stream ends inside a record. A stream that
// ends exactly on a record boundary yields io.EOF instead.
var ErrTruncated = errors.New("frame: stream truncated mid-record")

// CorruptionKind classifies a non-fatal decoding problem.
type CorruptionKind int

const (
	UnknownFlags CorruptionKind = iota + 1
	AnalogOutOfRange
	ZeroRepeat
)

func (k CorruptionKind) String() string {
	switch k {
	case UnknownFlags:
		return "unknown flags"
	case AnalogOutOfRange:
		return "analog out of range"
	case ZeroRepeat:
		return "zero repeat count"
	}
	return "unknown"
}

// FormatError describes data that decoded but looks corrupt or was written by a
// newer version. Decoding continues after one is reported.
type FormatError struct {
	Kind   CorruptionKind
	Record int
	Detail string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("frame: record %d: %s (%s); the input file may be corrupted or written by a newer version", e.Record, e.Kind, e.Detail)
}

// Reporter receives corruption reports.
type Reporter func(*FormatError)

// Decoder reads records from a stream. Corruption is reported at most once per
// Decoder.
type Decoder struct {
	r        io.Reader
	report   Reporter
	reported bool
	count    int
	buf      [4]byte
}

// NewDecoder returns a decoder reading from r. report may be nil.
func NewDecoder(r io.Reader, report Reporter) *Decoder {
	return &Decoder{r: r, report: report}
}

// Count returns the number of records decoded so far.
func (d *Decoder) Count() int {
	return d.count
}

// Decode reads the next record. It returns io.EOF when the stream ends cleanly
// between records and an error wrapping ErrTruncated when it ends inside one.
func (d *Decoder) Decode() (core.RecordedInput, error) {
	if _, err := io.ReadFull(d.r, d.buf[:2]); err != nil {
		if errors.Is(err, io.EOF) {
			return core.RecordedInput{}, io.EOF
		}
		return core.RecordedInput{}, d.truncated("flags", err)
	}
	raw := Flags(binary.LittleEndian.Uint16(d.buf[:2]))
	f := raw & KnownFlags
	if f != raw {
		d.corrupt(UnknownFlags, fmt.Sprintf("mask %#04x", uint16(raw&^KnownFlags)))
	}

	var analog core.Vec2
	if f.Has(FlagAnalog) {
		x, err := d.float32()
		if err != nil {
			return core.RecordedInput{}, d.truncated("analog x", err)
		}
		y, err := d.float32()
		if err != nil {
			return core.RecordedInput{}, d.truncated("analog y", err)
		}
		analog = core.Vec2{X: x, Y: y}
		if !finite(x) || !finite(y) || analog.SqrMagnitude() > MaxAnalogSqrMagnitude {
			d.corrupt(AnalogOutOfRange, fmt.Sprintf("(%g, %g)", x, y))
		}
	}

	var reps uint16
	if f.Has(FlagRepeat) {
		if _, err := io.ReadFull(d.r, d.buf[:2]); err != nil {
			return core.RecordedInput{}, d.truncated("repetitions", err)
		}
		reps = binary.LittleEndian.Uint16(d.buf[:2])
		if reps == 0 {
			d.corrupt(ZeroRepeat, "repeat flag set with count 0")
		}
	}

	d.count++
	return toInput(f, analog, reps), nil
}

// DecodeAll reads records until the stream ends cleanly.
func (d *Decoder) DecodeAll() ([]core.RecordedInput, error) {
	var out []core.RecordedInput
	for {
		r, err := d.Decode()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
}

// DecodeN reads exactly n records. Hitting the end of the stream early is
// reported as truncation.
func (d *Decoder) DecodeN(n int) ([]core.RecordedInput, error) {
	out := make([]core.RecordedInput, 0, min(n, 4096))
	for i := 0; i < n; i++ {
		r, err := d.Decode()
		if errors.Is(err, io.EOF) {
			return out, fmt.Errorf("expected %d records, got %d: %w", n, i, ErrTruncated)
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (d *Decoder) float32() (float32, error) {
	if _, err := io.ReadFull(d.r, d.buf[:4]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(d.buf[:4])), nil
}

func (d *Decoder) truncated(field string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("record %d %s: %w", d.count, field, ErrTruncated)
	}
	return fmt.Errorf("record %d %s: %w", d.count, field, err)
}

func (d *Decoder) corrupt(kind CorruptionKind, detail string) {
	if d.reported {
		return
	}
	d.reported = true
	if d.report != nil {
		d.report(&FormatError{Kind: kind, Record: d.count, Detail: detail})
	}
}

// Writer encodes records to a stream.
type Writer struct {
	w   *bufio.Writer
	buf []byte
}

// NewWriter returns a buffered record writer. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), buf: make([]byte, 0, MaxRecordSize)}
}

// Write encodes one record.
func (w *Writer) Write(r core.RecordedInput) error {
	w.buf = AppendRecord(w.buf[:0], r)
	_, err := w.w.Write(w.buf)
	return err
}

// WriteAll encodes every record in order.
func (w *Writer) WriteAll(records []core.RecordedInput) error {
	for _, r := range records {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered data to the underlying stream.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
