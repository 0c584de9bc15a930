// Package engine is the context object the host drives once per frame. It owns
// the input queue, the sequence library and the change feed consumed by UI
// collaborators.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/rwtastool/rwtas/internal/channel"
	"github.com/rwtastool/rwtas/internal/queue"
	"github.com/rwtastool/rwtas/internal/storage"
	"github.com/rwtastool/rwtas/pkg/core"
)

// ErrNoSelection is returned by edits that need the cursor on an entry.
var ErrNoSelection = errors.New("engine: no entry selected")

// DefaultChangeBuffer is the change feed capacity used when none is set.
const DefaultChangeBuffer = 64

// ChangeKind says what a Change is about.
type ChangeKind int

const (
	QueueChanged ChangeKind = iota
	CursorMoved
	ModeChanged
	FilesChanged
)

func (k ChangeKind) String() string {
	switch k {
	case QueueChanged:
		return "queue"
	case CursorMoved:
		return "cursor"
	case ModeChanged:
		return "mode"
	case FilesChanged:
		return "files"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// Change tells listeners which labels to redraw.
type Change struct {
	Kind ChangeKind
}

// Placement is where Submit puts a new entry.
type Placement int

const (
	Append Placement = iota
	InsertAfter
	InsertBefore
)

// LoadMode is what Load does with the current queue.
type LoadMode int

const (
	LoadReplace LoadMode = iota
	LoadInsertAfter
	LoadInsertBefore
)

// Row is one line of a frame list.
type Row struct {
	Index   int
	Glyph   string
	Current bool
}

// Status is a point-in-time summary of the engine.
type Status struct {
	Session     string
	Mode        queue.Mode
	Entries     int
	TotalFrames int
	Cursor      queue.Cursor
}

// Options configures an Engine. Queue and Store default to an empty queue and
// no library.
type Options struct {
	Queue        *queue.InputQueue
	Store        storage.Backend
	Logger       *slog.Logger
	SessionID    string
	ChangeBuffer int
}

// Engine is safe for use from the simulation thread, the IPC server and UI
// goroutines at the same time.
type Engine struct {
	queue   *queue.InputQueue
	store   storage.Backend
	logger  *slog.Logger
	changes channel.Channel[Change]
	session string
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.Queue == nil {
		opts.Queue = queue.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.ChangeBuffer <= 0 {
		opts.ChangeBuffer = DefaultChangeBuffer
	}
	return &Engine{
		queue:   opts.Queue,
		store:   opts.Store,
		logger:  opts.Logger.With("component", "engine", "session", opts.SessionID),
		changes: channel.New[Change](opts.ChangeBuffer),
		session: opts.SessionID,
	}
}

// Session returns the session ID.
func (e *Engine) Session() string {
	return e.session
}

// Queue returns the underlying queue.
func (e *Engine) Queue() *queue.InputQueue {
	return e.queue
}

// Changes returns the change feed. Changes are dropped when nobody keeps up.
func (e *Engine) Changes() channel.Receiver[Change] {
	return e.changes
}

// Close ends the change feed.
func (e *Engine) Close() {
	e.changes.Close()
}

func (e *Engine) publish(kind ChangeKind) {
	e.changes.TrySend(Change{Kind: kind})
}

// PlayerInput is called once per frame with a source of live input. While
// playing it returns the queued frame, merged with live input when AddInputs
// is set. While recording it stores live input and returns it unchanged.
// Otherwise live input passes through. live is sampled before the queue lock
// is taken, every frame.
func (e *Engine) PlayerInput(live func() core.InputPackage) core.InputPackage {
	res := e.queue.Step(live())
	switch {
	case res.Played:
		e.publish(CursorMoved)
		if res.Finished {
			e.logger.Debug("playback finished")
			e.publish(ModeChanged)
		}
	case res.Recorded:
		e.publish(QueueChanged)
	}
	return res.Input
}

// Mode returns the current record/playback state.
func (e *Engine) Mode() queue.Mode {
	return e.queue.Mode()
}

// SetPlaying starts or stops playback.
func (e *Engine) SetPlaying(play, loop bool) {
	e.queue.SetPlaying(play, loop)
	e.logger.Debug("playback toggled", "play", play, "loop", loop)
	e.publish(ModeChanged)
}

// SetRecording starts or stops recording.
func (e *Engine) SetRecording(on bool) {
	e.queue.SetRecording(on)
	e.logger.Debug("recording toggled", "record", on)
	e.publish(ModeChanged)
}

// SetAddInputs sets whether live input is merged into playback.
func (e *Engine) SetAddInputs(on bool) {
	e.queue.SetAddInputs(on)
	e.publish(ModeChanged)
}

// Submit adds r relative to the cursor.
func (e *Engine) Submit(r core.RecordedInput, p Placement) {
	r.Input = core.Normalize(r.Input)
	_ = e.queue.Update(func(tx *queue.Tx) error {
		switch p {
		case InsertAfter:
			tx.InsertAfter(r)
		case InsertBefore:
			tx.InsertBefore(r)
		default:
			tx.Append(r)
		}
		return nil
	})
	e.publish(QueueChanged)
}

// Select moves the cursor to index, clamped to the last entry.
func (e *Engine) Select(index int) error {
	err := e.queue.Update(func(tx *queue.Tx) error {
		if tx.Len() == 0 {
			return ErrNoSelection
		}
		tx.Select(index)
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(CursorMoved)
	return nil
}

// SelectOrDelete behaves like a click on a frame list row: clicking the
// current row deletes it, clicking any other row selects it. It reports
// whether an entry was deleted.
func (e *Engine) SelectOrDelete(index int) (bool, error) {
	var deleted bool
	err := e.queue.Update(func(tx *queue.Tx) error {
		if tx.Len() == 0 {
			return ErrNoSelection
		}
		if index == tx.Cursor().Index {
			deleted = tx.DeleteAtCursor()
			return nil
		}
		tx.Select(index)
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		e.publish(QueueChanged)
	} else {
		e.publish(CursorMoved)
	}
	return deleted, nil
}

// BumpRepetitions adds one repeat to the selected entry.
func (e *Engine) BumpRepetitions() error {
	return e.editSelected(func(tx *queue.Tx) bool { return tx.BumpRepetitions() })
}

// DropRepetitions removes one repeat from the selected entry.
func (e *Engine) DropRepetitions() error {
	return e.editSelected(func(tx *queue.Tx) bool { return tx.DropRepetitions() })
}

func (e *Engine) editSelected(fn func(tx *queue.Tx) bool) error {
	err := e.queue.Update(func(tx *queue.Tx) error {
		if !fn(tx) {
			return ErrNoSelection
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(QueueChanged)
	return nil
}

// Clear drops every entry and resets the cursor.
func (e *Engine) Clear() {
	e.queue.Clear()
	e.publish(QueueChanged)
}

// Rows returns up to limit rows starting at offset.
func (e *Engine) Rows(offset, limit int) []Row {
	var rows []Row
	e.queue.View(func(entries []core.RecordedInput, c queue.Cursor) {
		if offset < 0 {
			offset = 0
		}
		end := min(offset+max(limit, 0), len(entries))
		if offset >= end {
			return
		}
		rows = make([]Row, 0, end-offset)
		for i := offset; i < end; i++ {
			rows = append(rows, Row{Index: i, Glyph: entries[i].String(), Current: i == c.Index})
		}
	})
	return rows
}

// Page returns the frame list page holding the cursor.
func (e *Engine) Page(framesPerPage int) int {
	if framesPerPage <= 0 {
		return 0
	}
	return e.queue.Cursor().Index / framesPerPage
}

// Status summarises the engine.
func (e *Engine) Status() Status {
	s := Status{Session: e.session, Mode: e.queue.Mode()}
	e.queue.View(func(entries []core.RecordedInput, c queue.Cursor) {
		s.Entries = len(entries)
		s.Cursor = c
		for _, r := range entries {
			s.TotalFrames += r.Frames()
		}
	})
	return s
}

// LogAttrs returns the attributes stamped on every log record.
func (e *Engine) LogAttrs() []slog.Attr {
	c := e.queue.Cursor()
	return []slog.Attr{
		slog.String("mode", e.queue.Mode().String()),
		slog.Int("cursor", c.Index),
	}
}

// Snapshot returns a copy of the queue.
func (e *Engine) Snapshot() []core.RecordedInput {
	return e.queue.Snapshot()
}

// Replace installs records as the whole queue.
func (e *Engine) Replace(records []core.RecordedInput) {
	e.queue.Replace(records)
	e.logger.Info("queue replaced", "entries", len(records))
	e.publish(QueueChanged)
}
