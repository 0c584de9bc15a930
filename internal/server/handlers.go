package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rwtastool/rwtas/internal/dispatcher"
	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/rwtastool/rwtas/pkg/frame"
	"github.com/rwtastool/rwtas/pkg/ipc"
)

// Queue is the part of the engine the server reads and replaces.
type Queue interface {
	Snapshot() []core.RecordedInput
	Replace(records []core.RecordedInput)
}

type handlers struct {
	queue  Queue
	logger *slog.Logger
}

func (h *handlers) register(d *dispatcher.Dispatcher) {
	d.Register(ipc.RequestInputs, h.requestInputs, dispatcher.Logged())
	d.Register(ipc.SetInputs, h.setInputs, dispatcher.Logged())
}

// requestInputs copies the queue under the read lock and encodes the copy
// after the lock is released.
func (h *handlers) requestInputs(ctx context.Context, req *dispatcher.Request) error {
	records := h.queue.Snapshot()
	if err := ipc.WriteCount(req.W, len(records)); err != nil {
		return fmt.Errorf("writing frame count: %w", err)
	}
	fw := frame.NewWriter(req.W)
	if err := fw.WriteAll(records); err != nil {
		return fmt.Errorf("writing frames: %w", err)
	}
	if err := fw.Flush(); err != nil {
		return fmt.Errorf("writing frames: %w", err)
	}
	h.logger.Info("sent inputs", "remote", req.Remote, "frames", len(records))
	return nil
}

// setInputs decodes the whole payload first. The queue is only replaced once
// every promised frame has arrived, so a truncated request changes nothing.
func (h *handlers) setInputs(ctx context.Context, req *dispatcher.Request) error {
	n, err := ipc.ReadCount(req.R)
	if err != nil {
		return err
	}
	dec := frame.NewDecoder(req.R, func(fe *frame.FormatError) {
		h.logger.Warn("corrupt frame data from editor", "remote", req.Remote, "error", fe)
	})
	records, err := dec.DecodeN(n)
	if err != nil {
		return fmt.Errorf("reading %d frames: %w", n, err)
	}
	h.queue.Replace(records)
	h.logger.Info("replaced inputs", "remote", req.Remote, "frames", len(records))
	return nil
}
