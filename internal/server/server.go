// Package server runs the local IPC endpoint external editors use to read and
// replace the input queue while the simulation keeps running.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rwtastool/rwtas/internal/dispatcher"
	"github.com/rwtastool/rwtas/pkg/ipc"
)

// Config holds listener configuration.
type Config struct {
	Network string
	Address string
	Version string

	// ReadTimeout bounds each connection's handshake and request. Zero
	// disables the deadline.
	ReadTimeout time.Duration
}

// Stats counts connections since the server started.
type Stats struct {
	Accepted   uint64
	Served     uint64
	Failed     uint64
	Mismatched uint64
}

// Server accepts one editor connection at a time and serves one request on
// it before accepting the next.
type Server struct {
	cfg    Config
	d      *dispatcher.Dispatcher
	logger *slog.Logger

	mu sync.Mutex
	ln net.Listener

	accepted   atomic.Uint64
	served     atomic.Uint64
	failed     atomic.Uint64
	mismatched atomic.Uint64
}

// New creates a server that routes requests for the queue q.
func New(cfg Config, q Queue, logger *slog.Logger) (*Server, error) {
	if cfg.Network == "" {
		cfg.Network = ipc.DefaultNetwork
	}
	if cfg.Address == "" {
		cfg.Address = ipc.DefaultAddress()
	}
	if cfg.Version == "" {
		cfg.Version = ipc.Version
	}
	if len(cfg.Version) > ipc.MaxStringLen {
		return nil, fmt.Errorf("%w: version %q", ipc.ErrStringTooLong, cfg.Version)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ipc")

	d, err := dispatcher.New(logger)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	h := &handlers{queue: q, logger: logger}
	h.register(d)

	return &Server{cfg: cfg, d: d, logger: logger}, nil
}

// Listen binds the configured endpoint. A leftover unix socket file from an
// earlier run is removed first. Serve calls Listen when it has not been called.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	if s.cfg.Network == "unix" {
		removeStaleSocket(s.cfg.Address)
	}
	ln, err := net.Listen(s.cfg.Network, s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listening on %s %s: %w", s.cfg.Network, s.cfg.Address, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stats returns connection counters.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted:   s.accepted.Load(),
		Served:     s.served.Load(),
		Failed:     s.failed.Load(),
		Mismatched: s.mismatched.Load(),
	}
}

// Serve accepts connections until ctx is cancelled. Cancellation closes the
// listener and any connection in flight; Serve then returns nil. Other accept
// failures are logged and retried with a growing delay.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	var current atomic.Pointer[net.Conn]
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		if c := current.Load(); c != nil {
			(*c).Close()
		}
	})
	defer stop()
	defer func() {
		ln.Close()
		s.mu.Lock()
		s.ln = nil
		s.mu.Unlock()
	}()

	s.logger.Info("ipc server listening", "network", s.cfg.Network, "address", ln.Addr().String(), "version", s.cfg.Version)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("ipc server stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accepting connection: %w", err)
			}
			backoff = nextBackoff(backoff)
			s.failed.Add(1)
			s.logger.Error("accept failed, retrying", "error", err, "retryIn", backoff)
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				s.logger.Info("ipc server stopped")
				return nil
			case <-t.C:
			}
			continue
		}
		backoff = 0
		s.accepted.Add(1)

		current.Store(&conn)
		if ctx.Err() != nil {
			conn.Close()
			continue
		}
		s.ServeConn(ctx, conn)
		current.Store(nil)
	}
}

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// nextBackoff doubles d from minAcceptBackoff up to maxAcceptBackoff.
func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	return min(d*2, maxAcceptBackoff)
}

// ServeConn runs one session on conn and closes it. Failures are logged and
// never propagate past the connection.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := remoteName(conn)
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			s.logger.Error("panic while serving connection", "remote", remote, "panic", r)
		}
	}()

	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}

	err := s.session(ctx, conn, remote)
	switch {
	case err == nil:
		s.served.Add(1)
	case errors.Is(err, errNoRequest):
		s.logger.Debug("client hung up after handshake", "remote", remote)
		s.served.Add(1)
	case errors.Is(err, ipc.ErrVersionMismatch):
		s.mismatched.Add(1)
		s.logger.Warn("protocol mismatch, dropping connection", "remote", remote, "error", err)
	default:
		s.failed.Add(1)
		s.logger.Error("connection failed", "remote", remote, "error", err)
	}
}

var errNoRequest = errors.New("no request after handshake")

func (s *Server) session(ctx context.Context, conn net.Conn, remote string) error {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	if err := ipc.WriteString(w, s.cfg.Version); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}
	client, err := ipc.ReadString(r)
	if err != nil {
		return fmt.Errorf("reading client version: %w", err)
	}
	if client != s.cfg.Version {
		return fmt.Errorf("%w: client %q, server %q", ipc.ErrVersionMismatch, client, s.cfg.Version)
	}

	code, err := r.ReadByte()
	if err == io.EOF {
		return errNoRequest
	}
	if err != nil {
		return fmt.Errorf("reading request code: %w", err)
	}

	req := &dispatcher.Request{Code: ipc.RequestCode(code), Remote: remote, R: r, W: w}
	if err := s.d.Dispatch(ctx, req); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing reply: %w", err)
	}
	return nil
}

func remoteName(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil && a.String() != "" {
		return a.String()
	}
	return "local"
}

// removeStaleSocket deletes path if it is a socket nobody is listening on.
func removeStaleSocket(path string) {
	fi, err := os.Lstat(path)
	if err != nil || fi.Mode()&os.ModeSocket == 0 {
		return
	}
	if c, err := net.DialTimeout("unix", path, 200*time.Millisecond); err == nil {
		c.Close()
		return
	}
	_ = os.Remove(path)
}
