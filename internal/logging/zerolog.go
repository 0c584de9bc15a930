package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewZerolog builds the logger handed to the database layer. It writes
// human-readable lines to file, or to stdout when file is nil.
func NewZerolog(file io.Writer, level string) zerolog.Logger {
	var out io.Writer = zerolog.ConsoleWriter{Out: osStdout, TimeFormat: time.RFC3339}
	if file != nil {
		out = zerolog.ConsoleWriter{Out: file, NoColor: true, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("component", "database").Logger()
}
