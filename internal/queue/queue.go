// Package queue holds the recorded input sequence and its playback cursor.
//
// One sync.RWMutex guards the entries, the cursor and the mode flags. Every
// exported method takes the lock for the duration of one bounded operation;
// compound edits go through Update (writer) or View (reader).
package queue

import (
	"sync"

	"github.com/rwtastool/rwtas/pkg/core"
)

// Mode is the record/playback state derived from the mode flags.
type Mode int

const (
	Idle Mode = iota
	Recording
	Playing
	Looping
	Merging
)

func (m Mode) String() string {
	switch m {
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	case Looping:
		return "looping"
	case Merging:
		return "merging"
	}
	return "idle"
}

// Cursor identifies the frame being played or edited and how many of its
// repeats have been consumed.
type Cursor struct {
	Index  int
	Repeat int
}

// InputQueue is the ordered sequence of recorded frames plus cursor state.
// Invariants: 0 <= Index <= len(entries); Repeat <= entries[Index].Repetitions
// whenever Index addresses an entry, else Repeat == 0.
type InputQueue struct {
	mu      sync.RWMutex
	entries []core.RecordedInput
	cursor  Cursor

	loop      bool
	play      bool
	record    bool
	addInputs bool
}

// New creates an empty queue. Looping defaults to on.
func New() *InputQueue {
	return &InputQueue{
		entries: make([]core.RecordedInput, 0),
		loop:    true,
	}
}

// Update runs fn with the writer lock held. The lock is released when fn
// returns, including on error or panic.
func (q *InputQueue) Update(fn func(tx *Tx) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return fn(&Tx{q: q})
}

// View runs fn with a reader lock held. fn must not retain the slice.
func (q *InputQueue) View(fn func(entries []core.RecordedInput, c Cursor)) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	fn(q.entries, q.cursor)
}

// Len returns the number of entries.
func (q *InputQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// Cursor returns the current cursor.
func (q *InputQueue) Cursor() Cursor {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.cursor
}

// Snapshot returns a copy of every entry.
func (q *InputQueue) Snapshot() []core.RecordedInput {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]core.RecordedInput, len(q.entries))
	copy(out, q.entries)
	return out
}

// TotalFrames returns how many simulation frames the whole queue plays for.
func (q *InputQueue) TotalFrames() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, e := range q.entries {
		n += e.Frames()
	}
	return n
}

// Next consumes one frame of playback and returns the input of the frame the
// cursor was on before advancing. An empty queue yields a neutral input.
// Reaching the end wraps to the start; without looping it also clears the
// play flag.
func (q *InputQueue) Next() core.InputPackage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.next()
}

func (q *InputQueue) next() core.InputPackage {
	if len(q.entries) == 0 {
		q.cursor = Cursor{}
		return core.InputPackage{}
	}
	if q.cursor.Index < 0 || q.cursor.Index >= len(q.entries) {
		q.cursor.Index = 0
	}
	if q.cursor.Repeat < 0 {
		q.cursor.Repeat = 0
	}

	e := q.entries[q.cursor.Index]
	consumed := q.cursor.Repeat
	q.cursor.Repeat++
	if consumed >= int(e.Repetitions) {
		q.cursor.Repeat = 0
		q.cursor.Index++
		if q.cursor.Index >= len(q.entries) {
			if !q.loop {
				q.play = false
			}
			q.cursor.Index = 0
		}
	}
	return e.Input
}

// StepResult reports what one Step did.
type StepResult struct {
	Input    core.InputPackage
	Played   bool
	Recorded bool
	// Finished is set when this frame consumed the last entry of a play-once
	// run and cleared the play flag.
	Finished bool
}

// Step runs one simulation frame. The mode flags are sampled once and the
// frame is played, merged or recorded under the same writer lock, so a mode
// change from another goroutine lands on a frame boundary.
func (q *InputQueue) Step(live core.InputPackage) StepResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.play:
		in := q.next()
		if q.addInputs {
			in = core.Merge(in, live)
		}
		return StepResult{Input: core.Normalize(in), Played: true, Finished: !q.play}
	case q.record:
		q.recordLocked(live)
		return StepResult{Input: live, Recorded: true}
	}
	return StepResult{Input: live}
}

// Record appends live input. Input equal to the last entry extends that
// entry's repeat count while it has headroom; anything else starts a new
// entry holding live as given, analog vector unclamped. The cursor follows
// the recording.
func (q *InputQueue) Record(live core.InputPackage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recordLocked(live)
}

func (q *InputQueue) recordLocked(live core.InputPackage) {
	if n := len(q.entries); n > 0 {
		last := &q.entries[n-1]
		if core.Equal(last.Input, live) && last.Repetitions < core.MaxRepetitions {
			last.Repetitions++
			q.cursor = Cursor{Index: n - 1, Repeat: int(last.Repetitions) - 1}
			return
		}
	}
	q.entries = append(q.entries, core.RecordedInput{Input: live})
	q.cursor = Cursor{Index: len(q.entries) - 1}
}

// Seek sets both cursor fields as given. Out of range targets are corrected
// the next time the cursor is used.
func (q *InputQueue) Seek(index, repeat int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cursor = Cursor{Index: index, Repeat: repeat}
}

// Replace discards every entry, installs records and resets the cursor.
func (q *InputQueue) Replace(records []core.RecordedInput) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.replaceLocked(records)
}

func (q *InputQueue) replaceLocked(records []core.RecordedInput) {
	q.entries = append(make([]core.RecordedInput, 0, len(records)), records...)
	q.cursor = Cursor{}
}

// Clear empties the queue and resets the cursor.
func (q *InputQueue) Clear() {
	q.Replace(nil)
}

// Mode returns the state derived from the mode flags.
func (q *InputQueue) Mode() Mode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	switch {
	case q.play && q.addInputs:
		return Merging
	case q.play && q.loop:
		return Looping
	case q.play:
		return Playing
	case q.record:
		return Recording
	}
	return Idle
}

// Playing reports the play flag.
func (q *InputQueue) Playing() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.play
}

// Recording reports the record flag.
func (q *InputQueue) Recording() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.record
}

// AddInputs reports whether live input is merged into playback.
func (q *InputQueue) AddInputs() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.addInputs
}

// Loop reports the loop flag.
func (q *InputQueue) Loop() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.loop
}

// SetPlaying sets the play and loop flags together.
func (q *InputQueue) SetPlaying(play, loop bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.play = play
	q.loop = loop
}

// SetRecording sets the record flag.
func (q *InputQueue) SetRecording(on bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.record = on
}

// SetAddInputs sets the merge flag.
func (q *InputQueue) SetAddInputs(on bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.addInputs = on
}
