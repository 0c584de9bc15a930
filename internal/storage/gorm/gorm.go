// Package gormstorage implements storage.Backend on any GORM database. The
// sqlite and postgres backends embed it and add only connection handling.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rwtastool/rwtas/internal/database"
	"github.com/rwtastool/rwtas/internal/model"
	"github.com/rwtastool/rwtas/internal/storage"
	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/rwtastool/rwtas/pkg/frame"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB      *gorm.DB
	Logger  *slog.Logger
	Session string
}

// Backend stores each sequence as one row of the sequences table.
type Backend struct {
	db      *gorm.DB
	log     *slog.Logger
	session string

	// serializes name resolution with the insert that claims the name
	mu sync.Mutex
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		db:      deps.DB,
		log:     logger.With("component", "storage", "backend", deps.DB.Dialector.Name()),
		session: deps.Session,
	}
}

// DB exposes the connection for dumps and tests.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Init migrates the schema.
func (b *Backend) Init() error {
	return database.Migrate(b.db)
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
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

	total := 0
	for _, r := range records {
		total += r.Frames()
	}
	seq := model.Sequence{
		Entries:     len(records),
		TotalFrames: total,
		Data:        data,
		Meta: datatypes.JSONMap{
			"format":  "rwi",
			"version": frame.FormatVersion,
			"session": b.session,
		},
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !overwrite {
		name, err = storage.FreeName(name, b.exists)
		if err != nil {
			return "", err
		}
		seq.Name = name
		if err := b.db.Create(&seq).Error; err != nil {
			return "", fmt.Errorf("saving %s: %w", name, err)
		}
		return name, nil
	}

	seq.Name = name
	err = b.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"entries", "total_frames", "data", "meta", "updated_at"}),
	}).Create(&seq).Error
	if err != nil {
		return "", fmt.Errorf("saving %s: %w", name, err)
	}
	return name, nil
}

func (b *Backend) exists(name string) (bool, error) {
	var count int64
	if err := b.db.Model(&model.Sequence{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Load decodes the sequence stored under name.
func (b *Backend) Load(name string) ([]core.RecordedInput, error) {
	var seq model.Sequence
	err := b.db.Where("name = ?", name).First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	records, err := storage.Decode(seq.Data, func(fe *frame.FormatError) {
		b.log.Warn("corrupt stored sequence", "name", name, "error", fe)
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	return records, nil
}

// List returns stored names in lexical order.
func (b *Backend) List() ([]string, error) {
	var names []string
	if err := b.db.Model(&model.Sequence{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("listing sequences: %w", err)
	}
	return names, nil
}

// Delete removes name.
func (b *Backend) Delete(name string) error {
	res := b.db.Where("name = ?", name).Delete(&model.Sequence{})
	if res.Error != nil {
		return fmt.Errorf("deleting %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	return nil
}

// RecordStatus stores one engine status sample.
func (b *Backend) RecordStatus(s *model.StatusSample) error {
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	if s.Session == "" {
		s.Session = b.session
	}
	return b.db.Create(s).Error
}
