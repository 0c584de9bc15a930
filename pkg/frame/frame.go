// Package frame implements the compact binary layout used for recorded input
// frames, both in .rwi files and on the editor IPC channel.
//
// Each record is little-endian:
//
//	uint16 flags
//	float32 x, float32 y   (only when FlagAnalog is set)
//	uint16 repetitions     (only when FlagRepeat is set)
package frame

import (
	"encoding/binary"
	"math"

	"github.com/rwtastool/rwtas/pkg/core"
)

// Flags is the per-record bitmask.
type Flags uint16

const (
	FlagUp     Flags = 0x0001
	FlagDown   Flags = 0x0002
	FlagRight  Flags = 0x0004
	FlagLeft   Flags = 0x0008
	FlagGrab   Flags = 0x0010
	FlagThrow  Flags = 0x0020
	FlagJump   Flags = 0x0040
	FlagMap    Flags = 0x0080
	FlagAnalog Flags = 0x0100
	FlagRepeat Flags = 0x0200

	// KnownFlags is every bit this version understands.
	KnownFlags = FlagUp | FlagDown | FlagRight | FlagLeft | FlagGrab | FlagThrow |
		FlagJump | FlagMap | FlagAnalog | FlagRepeat
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// MaxAnalogSqrMagnitude is the squared stick length above which a decoded
// vector is reported as suspicious.
const MaxAnalogSqrMagnitude = 1.01

// MaxRecordSize is the encoded size of a record with every optional field.
const MaxRecordSize = 2 + 4 + 4 + 2

// FlagsOf returns the bitmask that Encode writes for r.
func FlagsOf(r core.RecordedInput) Flags {
	in := r.Input
	var f Flags
	switch in.Y {
	case 1:
		f |= FlagUp
	case -1:
		f |= FlagDown
	}
	switch in.X {
	case 1:
		f |= FlagRight
	case -1:
		f |= FlagLeft
	}
	if in.Pickup {
		f |= FlagGrab
	}
	if in.Throw {
		f |= FlagThrow
	}
	if in.Jump {
		f |= FlagJump
	}
	if in.Map {
		f |= FlagMap
	}
	if !in.Analog.IsZero() {
		f |= FlagAnalog
	}
	if r.Repetitions > 0 {
		f |= FlagRepeat
	}
	return f
}

// AppendRecord appends the encoding of r to dst and returns the extended slice.
func AppendRecord(dst []byte, r core.RecordedInput) []byte {
	f := FlagsOf(r)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(f))
	if f.Has(FlagAnalog) {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(r.Input.Analog.X))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(r.Input.Analog.Y))
	}
	if f.Has(FlagRepeat) {
		dst = binary.LittleEndian.AppendUint16(dst, r.Repetitions)
	}
	return dst
}

// Encode returns the encoding of a single record.
func Encode(r core.RecordedInput) []byte {
	return AppendRecord(make([]byte, 0, MaxRecordSize), r)
}

// toInput rebuilds a normalized recorded input from decoded fields. Unknown
// bits must already be stripped from f.
func toInput(f Flags, analog core.Vec2, reps uint16) core.RecordedInput {
	in := core.InputPackage{
		GamePad: f.Has(FlagAnalog),
		Analog:  analog,
		Jump:    f.Has(FlagJump),
		Throw:   f.Has(FlagThrow),
		Pickup:  f.Has(FlagGrab),
		Map:     f.Has(FlagMap),
	}
	switch {
	case f.Has(FlagRight):
		in.X = 1
	case f.Has(FlagLeft):
		in.X = -1
	}
	switch {
	case f.Has(FlagUp):
		in.Y = 1
	case f.Has(FlagDown):
		in.Y = -1
	}
	return core.RecordedInput{Input: core.Normalize(in), Repetitions: reps}
}
