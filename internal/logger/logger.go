// Package logger provides the process-wide leveled logger. Everything goes
// through one slog text handler writing to a swappable destination, so the
// CLI can redirect the stream to a file after startup.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type swappableWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *swappableWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *swappableWriter) swap(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

var (
	level  slog.LevelVar
	output = &swappableWriter{w: os.Stdout}
	std    = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: &level}))
)

// SetOutput redirects all subsequent log lines, typically to a MultiWriter
// over stdout and the log file.
func SetOutput(w io.Writer) {
	output.swap(w)
}

// SetLevel maps a config string to a slog level. Unknown values fall back
// to info.
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

func Debugf(format string, args ...any) { std.Debug(fmt.Sprintf(format, args...)) }

func Infof(format string, args ...any) { std.Info(fmt.Sprintf(format, args...)) }

func Warnf(format string, args ...any) { std.Warn(fmt.Sprintf(format, args...)) }

func Errorf(format string, args ...any) { std.Error(fmt.Sprintf(format, args...)) }
