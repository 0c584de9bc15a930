// Package redisstorage keeps the sequence library in Redis so several
// machines' editors can share it.
package redisstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rwtastool/rwtas/internal/storage"
	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/rwtastool/rwtas/pkg/frame"
)

const (
	defaultPoolSize    = 4
	defaultMaxRetries  = 3
	defaultDialTimeout = 5 * time.Second
	defaultOpTimeout   = 5 * time.Second

	// DefaultPrefix namespaces every key this backend writes.
	DefaultPrefix = "rwtas:seq:"
)

// Config holds configuration for the Redis storage backend.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Cluster      bool
	ClusterNodes []string
	Prefix       string

	PoolSize    int
	MaxRetries  int
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

// Backend stores each sequence's Frame Codec bytes under <prefix>data:<name>
// and keeps the set of names in <prefix>names.
type Backend struct {
	client redis.UniversalClient
	cfg    Config
	log    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New constructs a Redis backend. The connection is checked by Init.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	conf, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		client: newClient(conf),
		cfg:    conf,
		log:    logger.With("component", "storage", "backend", "redis"),
	}, nil
}

// Init pings the server, retrying with backoff.
func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), 4*b.cfg.OpTimeout)
	defer cancel()
	if err := b.pingWithRetry(ctx, b.cfg.MaxRetries); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases Redis resources. It is idempotent.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.client.Close()
	})
	return b.closeErr
}

func (b *Backend) dataKey(name string) string {
	return b.cfg.Prefix + "data:" + name
}

func (b *Backend) namesKey() string {
	return b.cfg.Prefix + "names"
}

func (b *Backend) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.cfg.OpTimeout)
}

// Save stores records under name. Without overwrite each candidate name is
// claimed with SETNX, so concurrent savers never share a name.
func (b *Backend) Save(name string, records []core.RecordedInput, overwrite bool) (string, error) {
	if err := storage.ValidateName(name); err != nil {
		return "", err
	}
	data, err := storage.Encode(records, false)
	if err != nil {
		return "", err
	}
	ctx, cancel := b.ctx()
	defer cancel()

	if overwrite {
		_, err := b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, b.dataKey(name), data, 0)
			p.SAdd(ctx, b.namesKey(), name)
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("saving %s: %w", name, err)
		}
		return name, nil
	}

	resolved, err := storage.FreeName(name, func(candidate string) (bool, error) {
		ok, err := b.client.SetNX(ctx, b.dataKey(candidate), data, 0).Result()
		return !ok, err
	})
	if err != nil {
		return "", fmt.Errorf("saving %s: %w", name, err)
	}
	if err := b.client.SAdd(ctx, b.namesKey(), resolved).Err(); err != nil {
		return "", fmt.Errorf("indexing %s: %w", resolved, err)
	}
	return resolved, nil
}

// Load decodes the sequence stored under name.
func (b *Backend) Load(name string) ([]core.RecordedInput, error) {
	ctx, cancel := b.ctx()
	defer cancel()

	data, err := b.client.Get(ctx, b.dataKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	records, err := storage.Decode(data, func(fe *frame.FormatError) {
		b.log.Warn("corrupt stored sequence", "name", name, "error", fe)
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	return records, nil
}

// List returns stored names in lexical order.
func (b *Backend) List() ([]string, error) {
	ctx, cancel := b.ctx()
	defer cancel()

	names, err := b.client.SMembers(ctx, b.namesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing sequences: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes name.
func (b *Backend) Delete(name string) error {
	ctx, cancel := b.ctx()
	defer cancel()

	var del *redis.IntCmd
	_, err := b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, b.dataKey(name))
		p.SRem(ctx, b.namesKey(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	return nil
}

func (b *Backend) pingWithRetry(ctx context.Context, maxRetries int) error {
	attempts := maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	backoff := 100 * time.Millisecond
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := b.client.Ping(ctx).Err(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
	}

	if lastErr == nil {
		lastErr = errors.New("ping failed with unknown error")
	}
	return lastErr
}

func normalizeConfig(cfg Config) (Config, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}

	if cfg.Cluster {
		if len(cfg.ClusterNodes) == 0 {
			return cfg, fmt.Errorf("redis cluster nodes are required when cluster=true")
		}
	} else if cfg.Addr == "" {
		return cfg, fmt.Errorf("redis addr is required when cluster=false")
	}
	return cfg, nil
}

func newClient(cfg Config) redis.UniversalClient {
	if cfg.Cluster {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:       cfg.ClusterNodes,
			Password:    cfg.Password,
			PoolSize:    cfg.PoolSize,
			MaxRetries:  cfg.MaxRetries,
			DialTimeout: cfg.DialTimeout,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	})
}
