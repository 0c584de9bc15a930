package main

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"
	"github.com/rwtastool/rwtas/internal/config"
	"github.com/rwtastool/rwtas/internal/storage"
	"github.com/rwtastool/rwtas/internal/storage/file"
	"github.com/rwtastool/rwtas/internal/storage/memory"
	pgstorage "github.com/rwtastool/rwtas/internal/storage/postgres"
	redisstorage "github.com/rwtastool/rwtas/internal/storage/redis"
	sqlitestorage "github.com/rwtastool/rwtas/internal/storage/sqlite"
)

func createStorageBackend(storageCfg config.StorageConfig, session string, logger *slog.Logger, dbLog zerolog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "file", "":
		logger.Info("File storage backend initialized", "dir", storageCfg.File.Dir)
		return file.New(file.Config{
			Dir:    storageCfg.File.Dir,
			Ext:    storageCfg.File.Ext,
			Header: storageCfg.File.Header,
		}, logger), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:         storageCfg.SQLite.Path,
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.DumpPath,
			Session:      session,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "path", storageCfg.SQLite.Path, "dump", storageCfg.SQLite.DumpPath)
		return backend, nil

	case "postgres":
		backend, err := pgstorage.New(pgstorage.Config{
			Session:      session,
			FallbackPath: storageCfg.SQLite.DumpPath,
		}, logger, dbLog)
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres backend: %w", err)
		}
		logger.Info("Postgres storage backend initialized", "local", backend.Local())
		return backend, nil

	case "redis":
		backend, err := redisstorage.New(redisstorage.Config{
			Addr:     storageCfg.Redis.Addr,
			Password: storageCfg.Redis.Password,
			DB:       storageCfg.Redis.DB,
			Prefix:   storageCfg.Redis.Prefix,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis backend: %w", err)
		}
		logger.Info("Redis storage backend initialized", "addr", storageCfg.Redis.Addr)
		return backend, nil

	case "memory":
		logger.Info("Memory storage backend initialized")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
}
