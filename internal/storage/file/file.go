// Package file stores sequences as .rwi files in one directory, the format
// external editors and earlier tool versions exchange.
package file

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rwtastool/rwtas/internal/storage"
	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/rwtastool/rwtas/pkg/frame"
)

// DefaultExt is the conventional sequence file suffix.
const DefaultExt = ".rwi"

// Config holds configuration for the file backend.
type Config struct {
	Dir    string
	Ext    string
	Header bool // write the RWTI header on save
}

// Backend keeps one file per sequence.
type Backend struct {
	cfg    Config
	logger *slog.Logger

	// serializes name resolution with the write that claims the name
	mu sync.Mutex
}

// New creates a file backend rooted at cfg.Dir.
func New(cfg Config, logger *slog.Logger) *Backend {
	if cfg.Ext == "" {
		cfg.Ext = DefaultExt
	}
	if !strings.HasPrefix(cfg.Ext, ".") {
		cfg.Ext = "." + cfg.Ext
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{cfg: cfg, logger: logger.With("component", "storage", "backend", "file")}
}

// Init creates the sequence directory.
func (b *Backend) Init() error {
	if err := os.MkdirAll(b.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating sequence directory: %w", err)
	}
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// Path returns the file that holds name.
func (b *Backend) Path(name string) string {
	return filepath.Join(b.cfg.Dir, name+b.cfg.Ext)
}

// Save writes records to name's file. The file is written to a temporary
// name first and renamed into place, so readers never see a partial file.
func (b *Backend) Save(name string, records []core.RecordedInput, overwrite bool) (string, error) {
	if err := storage.ValidateName(name); err != nil {
		return "", err
	}
	data, err := storage.Encode(records, b.cfg.Header)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !overwrite {
		name, err = storage.FreeName(name, b.exists)
		if err != nil {
			return "", err
		}
	}

	tmp, err := os.CreateTemp(b.cfg.Dir, ".save-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), b.Path(name)); err != nil {
		return "", fmt.Errorf("saving %s: %w", name, err)
	}

	b.logger.Debug("saved sequence", "name", name, "frames", len(records), "bytes", len(data))
	return name, nil
}

func (b *Backend) exists(name string) (bool, error) {
	_, err := os.Stat(b.Path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Load reads name's file. Corrupt but complete records are reported and kept;
// a file cut off mid-record fails with frame.ErrTruncated.
func (b *Backend) Load(name string) ([]core.RecordedInput, error) {
	f, err := os.Open(b.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := frame.ReadFile(bufio.NewReader(f), func(fe *frame.FormatError) {
		b.logger.Warn("corrupt sequence file", "name", name, "error", fe)
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	return records, nil
}

// List returns the names of every sequence file, sorted.
func (b *Backend) List() ([]string, error) {
	entries, err := os.ReadDir(b.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", b.cfg.Dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), b.cfg.Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), b.cfg.Ext))
	}
	return names, nil
}

// Delete removes name's file.
func (b *Backend) Delete(name string) error {
	err := os.Remove(b.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	return err
}

// watchSettle coalesces bursts of events, like an editor writing a temp file
// and renaming it.
const watchSettle = 50 * time.Millisecond

// Watch calls onChange whenever a sequence file appears, disappears or is
// rewritten, until ctx is done.
func (b *Backend) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(b.cfg.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", b.cfg.Dir, err)
	}

	timer := time.NewTimer(watchSettle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, b.cfg.Ext) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Write) {
				timer.Reset(watchSettle)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			b.logger.Warn("sequence directory watch error", "error", err)
		case <-timer.C:
			onChange()
		}
	}
}
