package storage_test

import (
	"errors"
	"testing"

	"github.com/rwtastool/rwtas/internal/storage"
	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/rwtastool/rwtas/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"inputs", "New Replay 2", "any%run"} {
		assert.NoError(t, storage.ValidateName(ok), ok)
	}
	for _, bad := range []string{"", "  ", "a/b", `a\b`, "..", "."} {
		assert.ErrorIs(t, storage.ValidateName(bad), storage.ErrInvalidName, bad)
	}
}

func TestFreeName(t *testing.T) {
	taken := map[string]bool{"run": true, "run 1": true, "run 3": true}
	name, err := storage.FreeName("run", func(n string) (bool, error) { return taken[n], nil })
	require.NoError(t, err)
	assert.Equal(t, "run 2", name)

	name, err = storage.FreeName("fresh", func(n string) (bool, error) { return taken[n], nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", name)

	boom := errors.New("boom")
	_, err = storage.FreeName("run", func(string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestEncodeDecode(t *testing.T) {
	records := []core.RecordedInput{
		core.NewRecordedInput(core.InputPackage{X: 1}),
		{Input: core.Normalize(core.InputPackage{Jump: true}), Repetitions: 12},
	}
	for _, header := range []bool{false, true} {
		data, err := storage.Encode(records, header)
		require.NoError(t, err)
		assert.Equal(t, header, len(data) >= frame.HeaderSize && string(data[:4]) == string(frame.Magic))

		got, err := storage.Decode(data, nil)
		require.NoError(t, err)
		assert.Equal(t, records, got)
	}
}

func TestDecode_Truncated(t *testing.T) {
	data, err := storage.Encode([]core.RecordedInput{{Input: core.Normalize(core.InputPackage{Jump: true}), Repetitions: 3}}, false)
	require.NoError(t, err)

	_, err = storage.Decode(data[:len(data)-1], nil)
	assert.ErrorIs(t, err, frame.ErrTruncated)
}
