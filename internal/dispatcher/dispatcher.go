// Package dispatcher routes editor requests to their handlers by request code.
package dispatcher

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/rwtastool/rwtas/pkg/ipc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Request is one editor request after a successful handshake. R and W are the
// connection's buffered streams; the server flushes W once the handler returns.
type Request struct {
	Code   ipc.RequestCode
	Remote string
	R      *bufio.Reader
	W      *bufio.Writer
}

// HandlerFunc serves one request.
type HandlerFunc func(ctx context.Context, req *Request) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes requests to registered handlers. Handlers are registered
// before serving starts; the table is read-only afterwards.
type Dispatcher struct {
	handlers map[ipc.RequestCode]HandlerFunc
	logger   Logger

	// OTEL metrics
	processed metric.Int64Counter
	failed    metric.Int64Counter
	duration  metric.Float64Histogram
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[ipc.RequestCode]HandlerFunc),
		logger:   logger,
	}

	m := meter()

	var err error

	d.processed, err = m.Int64Counter(
		"ipc.requests.processed",
		metric.WithDescription("Total editor requests served"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"ipc.requests.failed",
		metric.WithDescription("Total editor requests that returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	d.duration, err = m.Float64Histogram(
		"ipc.requests.duration",
		metric.WithDescription("Time spent serving a request"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given request code with optional configuration.
func (d *Dispatcher) Register(code ipc.RequestCode, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := d.withMetrics(code, h)

	if cfg.logged {
		handler = d.withLogging(code, handler)
	}

	d.handlers[code] = handler
}

// Dispatch routes a request to its registered handler.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) error {
	h, ok := d.handlers[req.Code]
	if !ok {
		return fmt.Errorf("%w: %d", ipc.ErrUnknownRequest, byte(req.Code))
	}
	return h(ctx, req)
}

// HasHandler returns true if a handler is registered for the code.
func (d *Dispatcher) HasHandler(code ipc.RequestCode) bool {
	_, ok := d.handlers[code]
	return ok
}

func (d *Dispatcher) withMetrics(code ipc.RequestCode, h HandlerFunc) HandlerFunc {
	codeAttr := metric.WithAttributes(attribute.String("request", code.String()))
	return func(ctx context.Context, req *Request) error {
		start := time.Now()
		err := h(ctx, req)
		d.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, codeAttr)
		if err != nil {
			d.failed.Add(ctx, 1, codeAttr)
			return err
		}
		d.processed.Add(ctx, 1, codeAttr)
		return nil
	}
}

func (d *Dispatcher) withLogging(code ipc.RequestCode, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		start := time.Now()
		d.logger.Debug("handling request", "request", code.String(), "remote", req.Remote)

		err := h(ctx, req)

		if err != nil {
			d.logger.Error("request failed", "request", code.String(), "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("request complete", "request", code.String(), "duration", time.Since(start))
		}

		return err
	}
}
