package queue

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	right = core.InputPackage{X: 1}
	left  = core.InputPackage{X: -1}
	jump  = core.InputPackage{Jump: true}
)

func rec(in core.InputPackage, reps uint16) core.RecordedInput {
	return core.RecordedInput{Input: core.Normalize(in), Repetitions: reps}
}

func checkInvariants(t *testing.T, q *InputQueue) {
	t.Helper()
	q.View(func(entries []core.RecordedInput, c Cursor) {
		require.GreaterOrEqual(t, c.Index, 0)
		require.LessOrEqual(t, c.Index, len(entries))
		require.GreaterOrEqual(t, c.Repeat, 0)
		if c.Index < len(entries) {
			require.LessOrEqual(t, c.Repeat, int(entries[c.Index].Repetitions))
		} else {
			require.Equal(t, 0, c.Repeat)
		}
	})
}

func TestNew(t *testing.T) {
	q := New()
	require.NotNil(t, q)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, Cursor{}, q.Cursor())
	assert.True(t, q.Loop())
	assert.Equal(t, Idle, q.Mode())
}

func TestNext_EmptyQueueIsNeutral(t *testing.T) {
	q := New()
	q.SetPlaying(true, false)
	assert.Equal(t, core.InputPackage{}, q.Next())
	assert.Equal(t, Cursor{}, q.Cursor())
}

func TestNext_Scenario(t *testing.T) {
	q := New()
	q.Replace([]core.RecordedInput{rec(right, 0), rec(right, 2), rec(jump, 0)})
	q.SetPlaying(true, false)

	want := []core.InputPackage{right, right, right, right, jump}
	for i, w := range want {
		assert.Equal(t, core.Normalize(w), q.Next(), "call %d", i+1)
		if i < len(want)-1 {
			assert.True(t, q.Playing(), "still playing after call %d", i+1)
		}
	}
	assert.False(t, q.Playing())
	assert.Equal(t, 0, q.Cursor().Index)

	assert.Equal(t, core.Normalize(right), q.Next())
	checkInvariants(t, q)
}

func TestNext_Looping(t *testing.T) {
	q := New()
	q.Replace([]core.RecordedInput{rec(right, 0), rec(left, 0), rec(jump, 0)})
	q.SetPlaying(true, true)

	first := q.Next()
	q.Next()
	q.Next()
	assert.Equal(t, 0, q.Cursor().Index)
	assert.Equal(t, first, q.Next())
	assert.True(t, q.Playing())
	assert.Equal(t, Looping, q.Mode())
}

func TestNext_ClearsPlayOnce(t *testing.T) {
	q := New()
	q.Replace([]core.RecordedInput{rec(right, 1), rec(jump, 0)})
	q.SetPlaying(true, false)

	transitions := 0
	prev := q.Playing()
	for i := 0; i < 3; i++ {
		q.Next()
		if prev && !q.Playing() {
			transitions++
		}
		prev = q.Playing()
	}
	assert.Equal(t, 1, transitions)
}

func TestNext_WrapsOutOfRangeCursor(t *testing.T) {
	q := New()
	q.Replace([]core.RecordedInput{rec(right, 0), rec(jump, 0)})
	q.Seek(7, 3)
	assert.Equal(t, core.Normalize(right), q.Next())
	assert.Equal(t, Cursor{Index: 1}, q.Cursor())

	q.Seek(-4, -1)
	assert.Equal(t, core.Normalize(right), q.Next())
	checkInvariants(t, q)
}

func TestRecord_RunLengthCompression(t *testing.T) {
	q := New()
	for i := 0; i < 10; i++ {
		q.Record(right)
	}
	require.Equal(t, 1, q.Len())
	assert.Equal(t, uint16(9), q.Snapshot()[0].Repetitions)
	assert.Equal(t, Cursor{Index: 0, Repeat: 8}, q.Cursor())

	q.Record(jump)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, Cursor{Index: 1}, q.Cursor())
	checkInvariants(t, q)
}

func TestRecord_EqualityUsesNormalizedInput(t *testing.T) {
	q := New()
	q.Record(core.InputPackage{X: 1, Y: -1})
	q.Record(core.InputPackage{X: 1, Y: -1, GamePad: true, DownDiagonal: -1})
	assert.Equal(t, 1, q.Len())
}

func TestRecord_KeepsRawAnalogVector(t *testing.T) {
	q := New()
	stick := core.InputPackage{Analog: core.Vec2{X: 3, Y: 4}}
	q.Record(stick)
	require.Equal(t, 1, q.Len())
	assert.Equal(t, stick, q.Snapshot()[0].Input)

	// playback clamps what recording stored as is
	q.SetPlaying(true, true)
	got := q.Step(core.InputPackage{})
	assert.InDelta(t, 0.6, got.Input.Analog.X, 1e-6)
	assert.InDelta(t, 0.8, got.Input.Analog.Y, 1e-6)
	assert.True(t, got.Input.GamePad)
}

func TestStep(t *testing.T) {
	q := New()
	got := q.Step(right)
	assert.Equal(t, StepResult{Input: right}, got)
	assert.Equal(t, 0, q.Len())

	q.SetRecording(true)
	got = q.Step(right)
	assert.Equal(t, StepResult{Input: right, Recorded: true}, got)
	assert.Equal(t, 1, q.Len())

	q.Replace([]core.RecordedInput{rec(left, 0), rec(jump, 0)})
	q.SetPlaying(true, false)
	got = q.Step(right)
	assert.Equal(t, StepResult{Input: core.Normalize(left), Played: true}, got)
	got = q.Step(right)
	assert.Equal(t, StepResult{Input: core.Normalize(jump), Played: true, Finished: true}, got)
	assert.False(t, q.Playing())
	assert.Equal(t, 2, q.Len(), "record flag waits for the next frame")

	q.SetPlaying(true, true)
	q.SetAddInputs(true)
	got = q.Step(core.InputPackage{Y: 1, Throw: true})
	assert.Equal(t, core.Normalize(core.InputPackage{X: -1, Y: 1, Throw: true}), got.Input)
}

func TestStep_StoppedPlaybackKeepsCursor(t *testing.T) {
	q := New()
	q.Replace([]core.RecordedInput{rec(right, 0), rec(jump, 0)})
	q.SetPlaying(true, true)
	q.Step(core.InputPackage{})
	before := q.Cursor()

	q.SetPlaying(false, true)
	got := q.Step(left)
	assert.Equal(t, StepResult{Input: left}, got)
	assert.Equal(t, before, q.Cursor())
}

func TestRecord_CapStartsNewEntry(t *testing.T) {
	q := New()
	q.Replace([]core.RecordedInput{rec(right, core.MaxRepetitions-1)})

	q.Record(right)
	require.Equal(t, 1, q.Len())
	assert.Equal(t, uint16(core.MaxRepetitions), q.Snapshot()[0].Repetitions)

	q.Record(right)
	require.Equal(t, 2, q.Len())
	assert.Equal(t, uint16(0), q.Snapshot()[1].Repetitions)
	checkInvariants(t, q)
}

func TestTx_Inserts(t *testing.T) {
	q := New()
	require.NoError(t, q.Update(func(tx *Tx) error {
		tx.Append(rec(right, 0))
		tx.Append(rec(left, 0))
		tx.Select(1)
		tx.InsertAfter(rec(jump, 0))
		return nil
	}))
	got := q.Snapshot()
	assert.Equal(t, []core.RecordedInput{rec(right, 0), rec(left, 0), rec(jump, 0)}, got)
	assert.Equal(t, 1, q.Cursor().Index)

	require.NoError(t, q.Update(func(tx *Tx) error {
		tx.InsertBefore(rec(jump, 3))
		return nil
	}))
	got = q.Snapshot()
	assert.Equal(t, rec(jump, 3), got[1])
	assert.Equal(t, 2, q.Cursor().Index, "cursor follows the entry it was on")
	assert.Equal(t, rec(left, 0), got[q.Cursor().Index])
	checkInvariants(t, q)
}

func TestTx_InsertIntoEmptyQueue(t *testing.T) {
	q := New()
	require.NoError(t, q.Update(func(tx *Tx) error {
		tx.InsertBefore(rec(right, 0))
		return nil
	}))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, q.Cursor().Index)
	checkInvariants(t, q)
}

func TestTx_DeleteAtCursor(t *testing.T) {
	q := New()
	q.Replace([]core.RecordedInput{rec(right, 0), rec(left, 4), rec(jump, 0)})
	q.Seek(1, 3)

	var deleted bool
	require.NoError(t, q.Update(func(tx *Tx) error {
		deleted = tx.DeleteAtCursor()
		return nil
	}))
	assert.True(t, deleted)
	assert.Equal(t, []core.RecordedInput{rec(right, 0), rec(jump, 0)}, q.Snapshot())
	assert.Equal(t, Cursor{Index: 0}, q.Cursor())

	require.NoError(t, q.Update(func(tx *Tx) error {
		tx.DeleteAtCursor()
		tx.DeleteAtCursor()
		deleted = tx.DeleteAtCursor()
		return nil
	}))
	assert.False(t, deleted)
	assert.Equal(t, 0, q.Len())
	checkInvariants(t, q)
}

func TestTx_Repetitions(t *testing.T) {
	q := New()
	q.Replace([]core.RecordedInput{rec(right, 2)})
	q.Seek(0, 2)

	require.NoError(t, q.Update(func(tx *Tx) error {
		tx.DropRepetitions()
		return nil
	}))
	assert.Equal(t, uint16(1), q.Snapshot()[0].Repetitions)
	assert.Equal(t, 1, q.Cursor().Repeat, "repeat index clamped to the new count")

	require.NoError(t, q.Update(func(tx *Tx) error {
		for i := 0; i < 5; i++ {
			tx.DropRepetitions()
		}
		return nil
	}))
	assert.Equal(t, uint16(0), q.Snapshot()[0].Repetitions)

	q.Replace([]core.RecordedInput{rec(right, core.MaxRepetitions)})
	require.NoError(t, q.Update(func(tx *Tx) error {
		assert.True(t, tx.BumpRepetitions())
		return nil
	}))
	assert.Equal(t, uint16(core.MaxRepetitions), q.Snapshot()[0].Repetitions)
}

func TestUpdate_ReleasesLockOnError(t *testing.T) {
	q := New()
	boom := errors.New("boom")
	err := q.Update(func(tx *Tx) error {
		tx.Append(rec(right, 0))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// would deadlock if the writer lock were still held
	assert.Equal(t, 1, q.Len())
}

func TestUpdate_ReleasesLockOnPanic(t *testing.T) {
	q := New()
	assert.Panics(t, func() {
		_ = q.Update(func(tx *Tx) error { panic("boom") })
	})
	assert.Equal(t, 0, q.Len())
}

func TestSelect(t *testing.T) {
	q := New()
	q.Replace([]core.RecordedInput{rec(right, 2), rec(left, 0)})
	q.Seek(0, 2)
	require.NoError(t, q.Update(func(tx *Tx) error {
		tx.Select(9)
		return nil
	}))
	assert.Equal(t, Cursor{Index: 1}, q.Cursor())
}

func TestMode(t *testing.T) {
	q := New()
	q.SetRecording(true)
	assert.Equal(t, Recording, q.Mode())
	q.SetPlaying(true, false)
	assert.Equal(t, Playing, q.Mode())
	q.SetAddInputs(true)
	assert.Equal(t, Merging, q.Mode())
	assert.Equal(t, "merging", Merging.String())
}

func TestInvariants_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	inputs := []core.InputPackage{right, left, jump, {}}
	q := New()
	q.SetPlaying(true, rng.Intn(2) == 0)

	for i := 0; i < 5000; i++ {
		in := inputs[rng.Intn(len(inputs))]
		switch rng.Intn(8) {
		case 0:
			q.Next()
		case 1:
			q.Record(in)
		case 2:
			_ = q.Update(func(tx *Tx) error { tx.InsertAfter(rec(in, uint16(rng.Intn(3)))); return nil })
		case 3:
			_ = q.Update(func(tx *Tx) error { tx.InsertBefore(rec(in, 0)); return nil })
		case 4:
			_ = q.Update(func(tx *Tx) error { tx.DeleteAtCursor(); return nil })
		case 5:
			_ = q.Update(func(tx *Tx) error { tx.DropRepetitions(); return nil })
		case 6:
			_ = q.Update(func(tx *Tx) error { tx.Append(rec(in, 0)); return nil })
		case 7:
			_ = q.Update(func(tx *Tx) error { tx.Select(rng.Intn(tx.Len() + 2)); return nil })
		}
		checkInvariants(t, q)
	}
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	q := New()
	q.SetPlaying(true, true)
	q.Replace([]core.RecordedInput{rec(right, 3), rec(jump, 0)})

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			q.Next()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = q.Snapshot()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			q.Replace([]core.RecordedInput{rec(left, 1)})
		}
	}()
	wg.Wait()
	checkInvariants(t, q)
}
