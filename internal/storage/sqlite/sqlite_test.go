package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rwtastool/rwtas/internal/database"
	"github.com/rwtastool/rwtas/internal/storage"
	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

func records() []core.RecordedInput {
	return []core.RecordedInput{
		core.NewRecordedInput(core.InputPackage{X: 1}),
		{Input: core.Normalize(core.InputPackage{Throw: true}), Repetitions: 4},
	}
}

func TestInMemoryDumpLoop(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "library.db")
	b, err := New(Config{DumpInterval: 20 * time.Millisecond, DumpPath: dump}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	_, err = b.Save("run", records(), false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := os.Stat(dump)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "close is idempotent")

	// the dump is a complete library
	disk, err := New(Config{Path: dump}, nil)
	require.NoError(t, err)
	require.NoError(t, disk.Init())
	defer disk.Close()

	got, err := disk.Load("run")
	require.NoError(t, err)
	assert.Equal(t, records(), got)
}

func TestFileLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	b, err := New(Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	_, err = b.Save("run", records(), false)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	reopened, err := database.GetSqliteDB(path)
	require.NoError(t, err)
	var count int64
	require.NoError(t, reopened.Table("sequences").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
