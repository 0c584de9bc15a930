// Package memory keeps saved sequences in process memory. Used by tests and
// throwaway sessions.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rwtastool/rwtas/internal/storage"
	"github.com/rwtastool/rwtas/pkg/core"
)

// Backend stores encoded sequences keyed by name
type Backend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{data: make(map[string][]byte)}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// Save stores records under name, or under the first free numbered variant
// when overwrite is false.
func (b *Backend) Save(name string, records []core.RecordedInput, overwrite bool) (string, error) {
	if err := storage.ValidateName(name); err != nil {
		return "", err
	}
	data, err := storage.Encode(records, false)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !overwrite {
		name, _ = storage.FreeName(name, func(n string) (bool, error) {
			_, ok := b.data[n]
			return ok, nil
		})
	}
	b.data[name] = data
	return name, nil
}

// Load decodes the sequence stored under name.
func (b *Backend) Load(name string) ([]core.RecordedInput, error) {
	b.mu.RLock()
	data, ok := b.data[name]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	return storage.Decode(data, nil)
}

// List returns stored names in lexical order.
func (b *Backend) List() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.data))
	for n := range b.data {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes name.
func (b *Backend) Delete(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[name]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	delete(b.data, name)
	return nil
}
