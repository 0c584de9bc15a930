// pkg/core/input.go
package core

import (
	"math"
	"strconv"
	"strings"
)

// MaxRepetitions is the largest repeat count a single recorded frame can hold.
const MaxRepetitions = math.MaxUint16

// Analog thresholds used when deriving digital axes from the stick vector.
const (
	CardinalThreshold = 0.5
	DiagonalThreshold = 0.05
)

// Vec2 is a raw analog stick vector.
type Vec2 struct {
	X float32
	Y float32
}

// SqrMagnitude returns the squared length of v.
func (v Vec2) SqrMagnitude() float64 {
	x, y := float64(v.X), float64(v.Y)
	return x*x + y*y
}

// IsZero reports whether both components are exactly zero.
func (v Vec2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// ClampUnit scales v down to unit length if it is longer than that.
// The result always satisfies SqrMagnitude() <= 1, so clamping twice is a no-op.
func (v Vec2) ClampUnit() Vec2 {
	sqr := v.SqrMagnitude()
	if sqr <= 1 {
		return v
	}
	mag := math.Sqrt(sqr)
	out := Vec2{X: float32(float64(v.X) / mag), Y: float32(float64(v.Y) / mag)}
	for out.SqrMagnitude() > 1 {
		out.X = math.Nextafter32(out.X, 0)
		out.Y = math.Nextafter32(out.Y, 0)
	}
	return out
}

// InputPackage is one frame of player input as the host consumes it.
type InputPackage struct {
	// X is -1 (left), 0 or 1 (right). Y is -1 (down), 0 or 1 (up).
	X int8
	Y int8

	Jump   bool
	Throw  bool
	Pickup bool
	Map    bool

	// GamePad is set when Analog carries the authoritative direction.
	GamePad bool
	Analog  Vec2

	// DownDiagonal is the horizontal sign of a downward diagonal, or 0.
	DownDiagonal int8
}

// Normalize derives the canonical form of in. Digital axes are re-derived from
// the analog vector when one is present, so analog and digital renditions of the
// same gesture compare equal after normalization.
func Normalize(in InputPackage) InputPackage {
	in.X = clampAxis(in.X)
	in.Y = clampAxis(in.Y)
	in.DownDiagonal = 0

	if in.Analog.IsZero() {
		in.GamePad = false
		in.Analog = Vec2{}
		if in.Y < 0 {
			in.DownDiagonal = in.X
		}
		return in
	}

	in.GamePad = true
	in.Analog = in.Analog.ClampUnit()

	a := in.Analog
	if a.X < -CardinalThreshold {
		in.X = -1
	}
	if a.X > CardinalThreshold {
		in.X = 1
	}
	if a.Y < -CardinalThreshold {
		in.Y = -1
	}
	if a.Y > CardinalThreshold {
		in.Y = 1
	}
	if a.Y < -DiagonalThreshold {
		if a.X < -DiagonalThreshold {
			in.DownDiagonal = -1
		} else if a.X > DiagonalThreshold {
			in.DownDiagonal = 1
		}
	}
	return in
}

func clampAxis(v int8) int8 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Equal reports whether a and b describe the same input once normalized.
func Equal(a, b InputPackage) bool {
	return Normalize(a) == Normalize(b)
}

// Merge blends live input into a recorded frame. The recorded frame wins on
// every digital axis it uses; live input fills the rest, buttons are OR'd and
// the longer analog vector is kept.
func Merge(recorded, live InputPackage) InputPackage {
	out := recorded
	if live.Analog.SqrMagnitude() > out.Analog.SqrMagnitude() {
		out.Analog = live.Analog
	}
	if out.X == 0 {
		out.X = live.X
	}
	if out.Y == 0 {
		out.Y = live.Y
	}
	out.Jump = out.Jump || live.Jump
	out.Map = out.Map || live.Map
	out.Pickup = out.Pickup || live.Pickup
	out.Throw = out.Throw || live.Throw
	if out.Analog.SqrMagnitude() > 0 {
		out.GamePad = true
	}
	return out
}

// RecordedInput is one queue entry: an input held for Repetitions+1 frames.
type RecordedInput struct {
	Input       InputPackage
	Repetitions uint16
}

// NewRecordedInput normalizes in and wraps it with no repeats.
func NewRecordedInput(in InputPackage) RecordedInput {
	return RecordedInput{Input: Normalize(in)}
}

// Frames returns how many simulation frames this entry covers.
func (r RecordedInput) Frames() int {
	return int(r.Repetitions) + 1
}

// String returns the compact glyph summary shown in frame lists, e.g. "UR G x3".
func (r RecordedInput) String() string {
	var b strings.Builder
	in := r.Input
	if in.X != 0 || in.Y != 0 {
		if in.Y != 0 {
			b.WriteString(pick(in.Y > 0, "U", "D"))
		}
		if in.X != 0 {
			b.WriteString(pick(in.X > 0, "R", "L"))
		}
		b.WriteByte(' ')
	}
	if in.Pickup {
		b.WriteByte('G')
	}
	if in.Throw {
		b.WriteByte('T')
	}
	if in.Jump {
		b.WriteByte('J')
	}
	if in.Map {
		b.WriteByte('M')
	}
	if !in.Analog.IsZero() {
		b.WriteString(" A")
	}
	if r.Repetitions > 0 {
		b.WriteString(" x")
		b.WriteString(strconv.Itoa(r.Frames()))
	}
	return b.String()
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}
