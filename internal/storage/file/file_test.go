package file

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rwtastool/rwtas/internal/storage"
	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/rwtastool/rwtas/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Watcher = (*Backend)(nil)
)

func records() []core.RecordedInput {
	return []core.RecordedInput{
		core.NewRecordedInput(core.InputPackage{X: 1}),
		{Input: core.Normalize(core.InputPackage{Jump: true, Analog: core.Vec2{X: -0.25, Y: 0.5}}), Repetitions: 9},
	}
}

func newBackend(t *testing.T, cfg Config) *Backend {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(t.TempDir(), "inputs")
	}
	b := New(cfg, nil)
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSaveLoad(t *testing.T) {
	b := newBackend(t, Config{})
	name, err := b.Save("New Replay", records(), false)
	require.NoError(t, err)
	assert.Equal(t, "New Replay", name)
	assert.FileExists(t, filepath.Join(b.cfg.Dir, "New Replay.rwi"))

	got, err := b.Load(name)
	require.NoError(t, err)
	assert.Equal(t, records(), got)
}

func TestSave_BareByDefault(t *testing.T) {
	b := newBackend(t, Config{})
	_, err := b.Save("run", records(), false)
	require.NoError(t, err)

	data, err := os.ReadFile(b.Path("run"))
	require.NoError(t, err)
	assert.Equal(t, frame.Encode(records()[0]), data[:2])
}

func TestSave_Header(t *testing.T) {
	b := newBackend(t, Config{Header: true})
	_, err := b.Save("run", records(), false)
	require.NoError(t, err)

	data, err := os.ReadFile(b.Path("run"))
	require.NoError(t, err)
	assert.Equal(t, frame.Magic, data[:4])

	got, err := b.Load("run")
	require.NoError(t, err)
	assert.Equal(t, records(), got)
}

func TestSave_AutoNumbersAndOverwrites(t *testing.T) {
	b := newBackend(t, Config{})
	for _, want := range []string{"run", "run 1", "run 2"} {
		name, err := b.Save("run", records(), false)
		require.NoError(t, err)
		assert.Equal(t, want, name)
	}

	name, err := b.Save("run 1", records()[:1], true)
	require.NoError(t, err)
	assert.Equal(t, "run 1", name)
	got, err := b.Load("run 1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	names, err := b.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"run", "run 1", "run 2"}, names)
}

func TestList_IgnoresOtherFiles(t *testing.T) {
	b := newBackend(t, Config{Ext: "tas"})
	_, err := b.Save("a", records(), false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(b.cfg.Dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(b.cfg.Dir, "sub.tas"), 0o755))

	names, err := b.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
}

func TestLoad_Truncated(t *testing.T) {
	b := newBackend(t, Config{})
	_, err := b.Save("run", records(), false)
	require.NoError(t, err)

	data, err := os.ReadFile(b.Path("run"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(b.Path("run"), data[:len(data)-1], 0o644))

	_, err = b.Load("run")
	assert.ErrorIs(t, err, frame.ErrTruncated)
}

func TestLoadDelete_NotFound(t *testing.T) {
	b := newBackend(t, Config{})
	_, err := b.Load("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, b.Delete("missing"), storage.ErrNotFound)

	_, err = b.Save("run", records(), false)
	require.NoError(t, err)
	require.NoError(t, b.Delete("run"))
	assert.NoFileExists(t, b.Path("run"))
}

func TestWatch(t *testing.T) {
	b := newBackend(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	done := make(chan error, 1)
	go func() { done <- b.Watch(ctx, func() { changes.Add(1) }) }()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(b.Path("external"), frame.Encode(records()[0]), 0o644))

	require.Eventually(t, func() bool { return changes.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop")
	}
}
