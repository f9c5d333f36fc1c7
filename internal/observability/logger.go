package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger creates the run logger and sets it as the slog default.
// level is debug, info, warn or error; format "text" selects the text
// handler, anything else JSON. When file is set, records are written to
// stdout and appended to file; the returned Closer closes the file.
func NewLogger(level, format, file string) (*slog.Logger, io.Closer, error) {
	if file == "" {
		return sharedobs.NewLogger(level, format), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger := slog.New(newHandler(io.MultiWriter(os.Stdout, f), level, format))
	slog.SetDefault(logger)
	return logger, f, nil
}

func newHandler(w io.Writer, level, format string) slog.Handler {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
