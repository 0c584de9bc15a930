package logging

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readGelf reads one datagram and undoes whatever compression the writer used.
func readGelf(t *testing.T, conn net.PacketConn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 65536)
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	pkt := buf[:n]

	var r io.Reader = bytes.NewReader(pkt)
	switch {
	case len(pkt) > 1 && pkt[0] == 0x1f && pkt[1] == 0x8b:
		r, err = gzip.NewReader(r)
		require.NoError(t, err)
	case len(pkt) > 0 && pkt[0] == 0x78:
		r, err = zlib.NewReader(r)
		require.NoError(t, err)
	}
	body, err := io.ReadAll(r)
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(body, &msg))
	return msg
}

func TestGelfHandler_SendsMessage(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	h, w, err := NewGelfHandler(conn.LocalAddr().String(), "info")
	require.NoError(t, err)
	defer w.Close()

	logger := slog.New(h).With("component", "ipc").WithGroup("req")
	logger.Warn("protocol mismatch", "frames", 3, "ok", false)

	msg := readGelf(t, conn)
	assert.Equal(t, "protocol mismatch", msg["short_message"])
	assert.Equal(t, float64(4), msg["level"])
	assert.Equal(t, "ipc", msg["_component"])
	assert.Equal(t, float64(3), msg["_req.frames"])
	assert.Equal(t, false, msg["_req.ok"])
}

func TestGelfHandler_Level(t *testing.T) {
	h := &GelfHandler{level: slog.LevelWarn}
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestSyslogLevel(t *testing.T) {
	assert.Equal(t, int32(7), syslogLevel(slog.LevelDebug))
	assert.Equal(t, int32(6), syslogLevel(slog.LevelInfo))
	assert.Equal(t, int32(4), syslogLevel(slog.LevelWarn))
	assert.Equal(t, int32(3), syslogLevel(slog.LevelError))
}

func TestAddGelfField_FlattensGroups(t *testing.T) {
	dst := map[string]any{}
	addGelfField(dst, "", slog.Group("cursor", slog.Int("index", 2), slog.Int("repeat", 1)))
	addGelfField(dst, "", slog.Duration("took", time.Second))
	assert.Equal(t, int64(2), dst["_cursor.index"])
	assert.Equal(t, int64(1), dst["_cursor.repeat"])
	assert.Equal(t, "1s", dst["_took"])
}

func TestNewZerolog(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(&buf, "WARN")
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "database")
}
