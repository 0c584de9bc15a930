package queue

import "github.com/rwtastool/rwtas/pkg/core"

// Tx is the writer view of an InputQueue handed to Update callbacks. It is
// only valid inside the callback.
type Tx struct {
	q *InputQueue
}

// Len returns the number of entries.
func (tx *Tx) Len() int {
	return len(tx.q.entries)
}

// At returns the entry at i.
func (tx *Tx) At(i int) (core.RecordedInput, bool) {
	if i < 0 || i >= len(tx.q.entries) {
		return core.RecordedInput{}, false
	}
	return tx.q.entries[i], true
}

// Cursor returns the current cursor.
func (tx *Tx) Cursor() Cursor {
	return tx.q.cursor
}

// Next consumes one frame of playback. See InputQueue.Next.
func (tx *Tx) Next() core.InputPackage {
	return tx.q.next()
}

// Record appends live input. See InputQueue.Record.
func (tx *Tx) Record(live core.InputPackage) {
	tx.q.recordLocked(live)
}

// Seek sets the cursor without validation.
func (tx *Tx) Seek(index, repeat int) {
	tx.q.cursor = Cursor{Index: index, Repeat: repeat}
}

// Replace discards every entry, installs records and resets the cursor.
func (tx *Tx) Replace(records []core.RecordedInput) {
	tx.q.replaceLocked(records)
}

// Append adds r at the end. The cursor does not move.
func (tx *Tx) Append(r core.RecordedInput) {
	tx.q.entries = append(tx.q.entries, r)
	tx.fix()
}

// InsertAfter inserts r right after the cursor entry.
func (tx *Tx) InsertAfter(r core.RecordedInput) {
	tx.InsertRange(tx.q.cursor.Index+1, r)
}

// InsertBefore inserts r at the cursor; the cursor keeps pointing at the entry
// it was on, which moves one place down.
func (tx *Tx) InsertBefore(r core.RecordedInput) {
	tx.InsertRange(tx.q.cursor.Index, r)
}

// InsertRange splices records in at index, clamped to [0, Len]. When the splice
// lands at or before the cursor, the cursor shifts so it still addresses the
// same entry.
func (tx *Tx) InsertRange(index int, records ...core.RecordedInput) {
	if len(records) == 0 {
		return
	}
	q := tx.q
	index = clamp(index, 0, len(q.entries))

	grown := make([]core.RecordedInput, 0, len(q.entries)+len(records))
	grown = append(grown, q.entries[:index]...)
	grown = append(grown, records...)
	grown = append(grown, q.entries[index:]...)
	q.entries = grown

	if index <= q.cursor.Index {
		q.cursor.Index += len(records)
	}
	tx.fix()
}

// DeleteAtCursor removes the cursor entry and steps the cursor back one entry,
// stopping at 0. It reports whether anything was removed.
func (tx *Tx) DeleteAtCursor() bool {
	q := tx.q
	i := q.cursor.Index
	if i < 0 || i >= len(q.entries) {
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	q.cursor = Cursor{Index: max(i-1, 0)}
	tx.fix()
	return true
}

// BumpRepetitions adds one repeat to the cursor entry, up to MaxRepetitions.
func (tx *Tx) BumpRepetitions() bool {
	q := tx.q
	i := q.cursor.Index
	if i < 0 || i >= len(q.entries) {
		return false
	}
	if q.entries[i].Repetitions < core.MaxRepetitions {
		q.entries[i].Repetitions++
	}
	return true
}

// DropRepetitions removes one repeat from the cursor entry, down to 0.
func (tx *Tx) DropRepetitions() bool {
	q := tx.q
	i := q.cursor.Index
	if i < 0 || i >= len(q.entries) {
		return false
	}
	if q.entries[i].Repetitions > 0 {
		q.entries[i].Repetitions--
	}
	tx.fix()
	return true
}

// Select moves the cursor to index, clamped to the last entry, and restarts
// its repeat count.
func (tx *Tx) Select(index int) {
	q := tx.q
	q.cursor = Cursor{Index: clamp(index, 0, max(len(q.entries)-1, 0))}
}

// fix pulls the cursor back inside the invariant bounds.
func (tx *Tx) fix() {
	q := tx.q
	q.cursor.Index = clamp(q.cursor.Index, 0, len(q.entries))
	if q.cursor.Index == len(q.entries) {
		q.cursor.Repeat = 0
		return
	}
	q.cursor.Repeat = clamp(q.cursor.Repeat, 0, int(q.entries[q.cursor.Index].Repetitions))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
