package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/rwtastool/rwtas/pkg/frame"
)

// Client talks to a running engine from an external editor. Each call opens
// its own connection, as the server handles one request per connection.
type Client struct {
	Network string
	Address string
	Version string
	Timeout time.Duration

	// Report receives corruption reports while decoding RequestInputs replies.
	Report frame.Reporter
}

// NewClient returns a client for the well-known endpoint.
func NewClient() *Client {
	return &Client{
		Network: DefaultNetwork,
		Address: DefaultAddress(),
		Version: Version,
		Timeout: 10 * time.Second,
	}
}

// session is an open, handshaken connection.
type session struct {
	conn net.Conn
	r    *bufio.Reader
}

func (c *Client) open(ctx context.Context) (*session, error) {
	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, c.Network, c.Address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s %s: %w", c.Network, c.Address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if c.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.Timeout))
	}

	s := &session{conn: conn, r: bufio.NewReader(conn)}
	server, err := ReadString(s.r)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading server version: %w", err)
	}
	if server != c.Version {
		conn.Close()
		return nil, fmt.Errorf("%w: server %q, client %q", ErrVersionMismatch, server, c.Version)
	}
	if err := WriteString(conn, c.Version); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing client version: %w", err)
	}
	return s, nil
}

// Ping performs the handshake and hangs up without a request. It returns the
// server's version.
func (c *Client) Ping(ctx context.Context) (string, error) {
	s, err := c.open(ctx)
	if err != nil {
		return "", err
	}
	defer s.conn.Close()
	return c.Version, nil
}

// GetInputs fetches the engine's whole input queue.
func (c *Client) GetInputs(ctx context.Context) ([]core.RecordedInput, error) {
	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.conn.Close()

	if _, err := s.conn.Write([]byte{byte(RequestInputs)}); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	n, err := ReadCount(s.r)
	if err != nil {
		return nil, err
	}
	records, err := frame.NewDecoder(s.r, c.Report).DecodeN(n)
	if err != nil {
		return nil, fmt.Errorf("reading inputs: %w", err)
	}
	return records, nil
}

// SetInputs replaces the engine's whole input queue.
func (c *Client) SetInputs(ctx context.Context, records []core.RecordedInput) error {
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer s.conn.Close()

	w := bufio.NewWriter(s.conn)
	if err := w.WriteByte(byte(SetInputs)); err != nil {
		return err
	}
	if err := WriteCount(w, len(records)); err != nil {
		return err
	}
	fw := frame.NewWriter(w)
	if err := fw.WriteAll(records); err != nil {
		return fmt.Errorf("encoding inputs: %w", err)
	}
	if err := fw.Flush(); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("sending inputs: %w", err)
	}
	return nil
}
