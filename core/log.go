package core

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger sets the logger shared by every package of the engine. The
// engine is silent until this is called. Passing nil restores the silent
// default.
//
// Levels in use:
//   - Debug: per activation details such as pool creation and pipeline rebuilds
//   - Info: lifecycle events such as swapchain creation and loop start/stop
//   - Warn: reported no-ops and degraded sync groups
//   - Error: submission or presentation failures that end a loop activation
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger. Safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// NewLogger builds a text or JSON logger writing to w.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, errors.Errorf("unknown log format %q", cfg.Format)
}
