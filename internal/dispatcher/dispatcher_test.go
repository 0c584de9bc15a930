package dispatcher

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rwtastool/rwtas/pkg/ipc"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func newRequest(code ipc.RequestCode, in string, out *bytes.Buffer) *Request {
	return &Request{
		Code:   code,
		Remote: "test",
		R:      bufio.NewReader(strings.NewReader(in)),
		W:      bufio.NewWriter(out),
	}
}

func TestDispatcher_Handler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	called := false
	d.Register(ipc.RequestInputs, func(ctx context.Context, req *Request) error {
		called = true
		_, err := req.W.WriteString("reply")
		return err
	})

	var out bytes.Buffer
	req := newRequest(ipc.RequestInputs, "", &out)
	if err := d.Dispatch(context.Background(), req); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
	req.W.Flush()
	if out.String() != "reply" {
		t.Errorf("expected 'reply', got %q", out.String())
	}
}

func TestDispatcher_HandlerReadsPayload(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got string
	d.Register(ipc.SetInputs, func(ctx context.Context, req *Request) error {
		line, err := req.R.ReadString('\n')
		got = line
		return err
	})

	var out bytes.Buffer
	if err := d.Dispatch(context.Background(), newRequest(ipc.SetInputs, "payload\n", &out)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "payload\n" {
		t.Errorf("expected payload, got %q", got)
	}
}

func TestDispatcher_UnknownCode(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var out bytes.Buffer
	err := d.Dispatch(context.Background(), newRequest(ipc.RequestCode(7), "", &out))

	if !errors.Is(err, ipc.ErrUnknownRequest) {
		t.Errorf("expected ErrUnknownRequest, got %v", err)
	}
}

func TestDispatcher_HandlerError(t *testing.T) {
	d, _ := newTestDispatcher(t)

	boom := errors.New("boom")
	d.Register(ipc.SetInputs, func(ctx context.Context, req *Request) error {
		return boom
	})

	var out bytes.Buffer
	err := d.Dispatch(context.Background(), newRequest(ipc.SetInputs, "", &out))
	if !errors.Is(err, boom) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(ipc.RequestInputs, func(ctx context.Context, req *Request) error {
		return nil
	}, Logged())

	var out bytes.Buffer
	if err := d.Dispatch(context.Background(), newRequest(ipc.RequestInputs, "", &out)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) != 2 {
		t.Errorf("expected 2 log messages, got %d: %v", len(logger.messages), logger.messages)
	}
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(ipc.SetInputs, func(ctx context.Context, req *Request) error {
		return errors.New("test error")
	}, Logged())

	var out bytes.Buffer
	_ = d.Dispatch(context.Background(), newRequest(ipc.SetInputs, "", &out))

	logger.mu.Lock()
	defer logger.mu.Unlock()

	hasError := false
	for _, msg := range logger.messages {
		if strings.HasPrefix(msg, "ERROR:") {
			hasError = true
		}
	}
	if !hasError {
		t.Errorf("expected an error log, got %v", logger.messages)
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(ipc.RequestInputs, func(ctx context.Context, req *Request) error { return nil })

	if !d.HasHandler(ipc.RequestInputs) {
		t.Error("expected HasHandler to return true for RequestInputs")
	}
	if d.HasHandler(ipc.SetInputs) {
		t.Error("expected HasHandler to return false for SetInputs")
	}
}
