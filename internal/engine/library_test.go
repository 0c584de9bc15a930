package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rwtastool/rwtas/internal/storage"
	"github.com/rwtastool/rwtas/internal/storage/file"
	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/rwtastool/rwtas/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	e := newEngine(t)
	e.Replace([]core.RecordedInput{rec(right, 1), rec(jump, 0)})

	name, err := e.Save("inputs")
	require.NoError(t, err)
	assert.Equal(t, "inputs", name)

	name, err = e.Save("inputs")
	require.NoError(t, err)
	assert.Equal(t, "inputs 1", name)
	assert.Contains(t, drain(e), FilesChanged)

	files, err := e.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"inputs", "inputs 1"}, files)

	e.Clear()
	require.NoError(t, e.Load("inputs", LoadReplace))
	assert.Equal(t, []core.RecordedInput{rec(right, 1), rec(jump, 0)}, e.Snapshot())
}

func TestSaveOverwrite(t *testing.T) {
	e := newEngine(t)
	e.Replace([]core.RecordedInput{rec(right, 0)})
	require.NoError(t, e.SaveOverwrite("a"))
	e.Replace([]core.RecordedInput{rec(left, 0)})
	require.NoError(t, e.SaveOverwrite("a"))

	files, err := e.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, files)

	require.NoError(t, e.Load("a", LoadReplace))
	assert.Equal(t, []core.RecordedInput{rec(left, 0)}, e.Snapshot())
}

func TestLoad_Splices(t *testing.T) {
	e := newEngine(t)
	e.Replace([]core.RecordedInput{rec(jump, 0)})
	_, err := e.Save("j")
	require.NoError(t, err)

	e.Replace([]core.RecordedInput{rec(right, 0), rec(left, 0)})
	require.NoError(t, e.Load("j", LoadInsertAfter))
	assert.Equal(t, []core.RecordedInput{rec(right, 0), rec(jump, 0), rec(left, 0)}, e.Snapshot())

	require.NoError(t, e.Load("j", LoadInsertBefore))
	assert.Equal(t, []core.RecordedInput{rec(jump, 0), rec(right, 0), rec(jump, 0), rec(left, 0)}, e.Snapshot())
	assert.Equal(t, 1, e.Queue().Cursor().Index)
}

func TestLoad_MissingKeepsQueue(t *testing.T) {
	e := newEngine(t)
	e.Replace([]core.RecordedInput{rec(right, 0)})
	err := e.Load("nope", LoadReplace)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, []core.RecordedInput{rec(right, 0)}, e.Snapshot())
}

func TestLoad_TruncatedFileKeepsQueue(t *testing.T) {
	dir := t.TempDir()
	store := file.New(file.Config{Dir: dir}, nil)
	require.NoError(t, store.Init())
	e := New(Options{Store: store})
	defer e.Close()

	body := frame.Encode(rec(right, 0))
	body = append(body, frame.Encode(rec(jump, 4))...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cut"+file.DefaultExt), body[:len(body)-1], 0644))

	e.Replace([]core.RecordedInput{rec(left, 0)})
	err := e.Load("cut", LoadReplace)
	assert.ErrorIs(t, err, frame.ErrTruncated)
	assert.Equal(t, []core.RecordedInput{rec(left, 0)}, e.Snapshot())
}

func TestNoLibrary(t *testing.T) {
	e := New(Options{})
	defer e.Close()
	_, err := e.Save("x")
	assert.ErrorIs(t, err, ErrNoLibrary)
	assert.ErrorIs(t, e.Load("x", LoadReplace), ErrNoLibrary)
	_, err = e.Files()
	assert.ErrorIs(t, err, ErrNoLibrary)
	assert.NoError(t, e.Watch(context.Background()))
}

func TestWatch_PublishesFilesChanged(t *testing.T) {
	dir := t.TempDir()
	store := file.New(file.Config{Dir: dir}, nil)
	require.NoError(t, store.Init())
	e := New(Options{Store: store})
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Watch(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "external"+file.DefaultExt), nil, 0644))

	deadline := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case c := <-e.Changes().Receive():
			seen = c.Kind == FilesChanged
		case <-deadline:
			t.Fatal("no FilesChanged after external write")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
