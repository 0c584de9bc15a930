// Package storage defines how saved input sequences are persisted. Every
// backend stores the exact Frame Codec byte stream, so a sequence saved to one
// backend can be exported to a .rwi file unchanged.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/rwtastool/rwtas/pkg/frame"
)

var (
	ErrNotFound    = errors.New("storage: sequence not found")
	ErrExists      = errors.New("storage: sequence already exists")
	ErrInvalidName = errors.New("storage: invalid sequence name")
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Save stores records under name. Without overwrite, a taken name is
	// replaced by the first free "name N". The name actually used is returned.
	Save(name string, records []core.RecordedInput, overwrite bool) (string, error)
	Load(name string) ([]core.RecordedInput, error)
	List() ([]string, error)
	Delete(name string) error
}

// Watcher is an optional interface for backends that can notice sequences
// being added or removed behind the engine's back.
type Watcher interface {
	// Watch calls onChange after every external change until ctx is done.
	Watch(ctx context.Context, onChange func()) error
}

// ValidateName rejects names that cannot be stored portably.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// FreeName returns base if it is not taken, otherwise the first of "base 1",
// "base 2", ... that is free.
func FreeName(base string, taken func(name string) (bool, error)) (string, error) {
	for i := 0; ; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s %d", base, i)
		}
		used, err := taken(name)
		if err != nil {
			return "", err
		}
		if !used {
			return name, nil
		}
	}
}

// Encode renders records as a sequence file body.
func Encode(records []core.RecordedInput, header bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(records) * frame.MaxRecordSize)
	if err := frame.WriteFile(&buf, records, header); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a sequence file body, headered or bare.
func Decode(data []byte, report frame.Reporter) ([]core.RecordedInput, error) {
	return frame.ReadFile(bytes.NewReader(data), report)
}
