// Package postgres implements the storage.Backend interface on a shared
// PostgreSQL library, for teams exchanging sequences through one server.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"
	"github.com/rwtastool/rwtas/internal/database"
	gormstorage "github.com/rwtastool/rwtas/internal/storage/gorm"
)

// Config holds configuration for the Postgres storage backend.
type Config struct {
	Session string
	// FallbackPath receives a dump of the in-memory library used when
	// Postgres is unreachable.
	FallbackPath string
}

// Backend wraps the GORM backend with a connection built from the db.*
// settings.
type Backend struct {
	*gormstorage.Backend
	manager *database.Manager
	log     *slog.Logger
}

// New connects to Postgres. When Postgres cannot be reached the library falls
// back to in-memory SQLite and is dumped to cfg.FallbackPath on Close.
func New(cfg Config, logger *slog.Logger, dbLog zerolog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := database.NewManager(dbLog)
	if err := m.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	m.SqliteFilePath = cfg.FallbackPath
	if m.ShouldSaveLocal {
		logger.Warn("Postgres unavailable, using in-memory library", "fallback", cfg.FallbackPath)
	}

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:      m.DB,
			Logger:  logger,
			Session: cfg.Session,
		}),
		manager: m,
		log:     logger,
	}, nil
}

// Local reports whether the backend fell back to SQLite.
func (b *Backend) Local() bool {
	return b.manager.ShouldSaveLocal
}

// Close dumps a fallback library to disk and closes the connection.
func (b *Backend) Close() error {
	if b.manager.ShouldSaveLocal && b.manager.SqliteFilePath != "" {
		if err := b.manager.DumpMemoryToDisk(); err != nil {
			b.log.Error("failed to dump fallback library", "error", err)
		}
	}
	return b.manager.Close()
}
