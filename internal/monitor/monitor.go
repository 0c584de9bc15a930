// Package monitor periodically samples engine status and forwards it to the
// log, InfluxDB, the SQL library and a plain status file.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rwtastool/rwtas/internal/engine"
	"github.com/rwtastool/rwtas/internal/influx"
	"github.com/rwtastool/rwtas/internal/model"
	"github.com/rwtastool/rwtas/internal/server"
)

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = 10 * time.Second

// StatusSource reports engine status.
type StatusSource interface {
	Status() engine.Status
}

// StatsSource reports IPC server counters.
type StatsSource interface {
	Stats() server.Stats
}

// PointWriter receives status points.
type PointWriter interface {
	WriteStatus(s influx.Status) error
}

// Recorder keeps status samples in a database.
type Recorder interface {
	RecordStatus(s *model.StatusSample) error
}

// Dependencies holds all dependencies for the monitor service. Only Engine is
// required.
type Dependencies struct {
	Engine     StatusSource
	Server     StatsSource
	Influx     PointWriter
	Recorder   Recorder
	Logger     *slog.Logger
	StatusFile string
	Interval   time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	logger    *slog.Logger
	isRunning bool
	mu        sync.RWMutex
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		deps:   deps,
		logger: logger.With("component", "monitor"),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample takes one status reading.
func (s *Service) Sample() influx.Status {
	st := s.deps.Engine.Status()
	out := influx.Status{
		Time:        time.Now(),
		Session:     st.Session,
		Mode:        st.Mode.String(),
		Entries:     st.Entries,
		TotalFrames: st.TotalFrames,
		CursorIndex: st.Cursor.Index,
		CursorRep:   st.Cursor.Repeat,
	}
	if s.deps.Server != nil {
		stats := s.deps.Server.Stats()
		out.Served = stats.Served
		out.Failed = stats.Failed
	}
	return out
}

// Run samples every interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	s.logger.Debug("Starting status monitor", "interval", s.deps.Interval)
	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.report(s.Sample())
		}
	}
}

func (s *Service) report(st influx.Status) {
	s.logger.Debug("status",
		"mode", st.Mode,
		"entries", st.Entries,
		"frames", st.TotalFrames,
		"cursor", st.CursorIndex,
		"repeat", st.CursorRep,
		"served", st.Served,
		"failed", st.Failed,
	)

	if s.deps.Influx != nil {
		if err := s.deps.Influx.WriteStatus(st); err != nil {
			s.logger.Error("Error writing status point", "error", err)
		}
	}

	if s.deps.Recorder != nil {
		err := s.deps.Recorder.RecordStatus(&model.StatusSample{
			Time:        st.Time,
			Session:     st.Session,
			Mode:        st.Mode,
			Entries:     st.Entries,
			TotalFrames: st.TotalFrames,
			CursorIndex: st.CursorIndex,
			CursorRep:   st.CursorRep,
		})
		if err != nil {
			s.logger.Error("Error recording status sample", "error", err)
		}
	}

	if s.deps.StatusFile != "" {
		if err := writeStatusFile(s.deps.StatusFile, st); err != nil {
			s.logger.Error("Error writing status file", "error", err)
		}
	}
}

// writeStatusFile replaces path with the indented JSON of st.
func writeStatusFile(path string, st influx.Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
