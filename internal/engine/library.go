package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rwtastool/rwtas/internal/queue"
	"github.com/rwtastool/rwtas/internal/storage"
)

// ErrNoLibrary is returned by persistence calls on an engine built without a
// storage backend.
var ErrNoLibrary = errors.New("engine: no sequence library configured")

// Save stores the queue under the first free name among name, "name 1",
// "name 2", ... and returns the name used.
func (e *Engine) Save(name string) (string, error) {
	return e.save(name, false)
}

// SaveOverwrite stores the queue under name, replacing any sequence there.
func (e *Engine) SaveOverwrite(name string) error {
	_, err := e.save(name, true)
	return err
}

func (e *Engine) save(name string, overwrite bool) (string, error) {
	if e.store == nil {
		return "", ErrNoLibrary
	}
	records := e.queue.Snapshot()
	resolved, err := e.store.Save(name, records, overwrite)
	if err != nil {
		return "", fmt.Errorf("saving %q: %w", name, err)
	}
	e.logger.Info("sequence saved", "name", resolved, "entries", len(records), "overwrite", overwrite)
	e.publish(FilesChanged)
	return resolved, nil
}

// Load reads a saved sequence into the queue. Any read error, a truncated
// sequence included, leaves the queue as it was.
func (e *Engine) Load(name string, mode LoadMode) error {
	if e.store == nil {
		return ErrNoLibrary
	}
	records, err := e.store.Load(name)
	if err != nil {
		e.logger.Warn("sequence not loaded", "name", name, "error", err)
		return fmt.Errorf("loading %q: %w", name, err)
	}

	_ = e.queue.Update(func(tx *queue.Tx) error {
		switch mode {
		case LoadInsertAfter:
			tx.InsertRange(tx.Cursor().Index+1, records...)
		case LoadInsertBefore:
			tx.InsertRange(tx.Cursor().Index, records...)
		default:
			tx.Replace(records)
		}
		return nil
	})
	e.logger.Info("sequence loaded", "name", name, "entries", len(records))
	e.publish(QueueChanged)
	return nil
}

// Files lists saved sequences.
func (e *Engine) Files() ([]string, error) {
	if e.store == nil {
		return nil, ErrNoLibrary
	}
	return e.store.List()
}

// Delete removes a saved sequence.
func (e *Engine) Delete(name string) error {
	if e.store == nil {
		return ErrNoLibrary
	}
	if err := e.store.Delete(name); err != nil {
		return fmt.Errorf("deleting %q: %w", name, err)
	}
	e.publish(FilesChanged)
	return nil
}

// Watch publishes FilesChanged whenever the library changes outside the
// engine, until ctx is done. Backends that cannot be watched return at once.
func (e *Engine) Watch(ctx context.Context) error {
	w, ok := e.store.(storage.Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, func() {
		e.logger.Debug("library changed on disk")
		e.publish(FilesChanged)
	})
}
