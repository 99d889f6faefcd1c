// Package logging builds the process-wide slog logger and lets it be
// reconfigured while the importer is running.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sydlexius/releasewire/internal/config"
)

// swapHandler delegates to a handler that can be replaced at runtime.
// Child handlers created via WithAttrs/WithGroup share the swap point, so
// loggers derived before a reconfigure pick up the new output.
type swapHandler struct {
	root  *atomic.Pointer[slog.Handler]
	attrs []slog.Attr
	group string
}

func (s *swapHandler) current() slog.Handler {
	h := *s.root.Load()
	if s.group != "" {
		h = h.WithGroup(s.group)
	}
	if len(s.attrs) > 0 {
		h = h.WithAttrs(s.attrs)
	}
	return h
}

func (s *swapHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*s.root.Load()).Enabled(ctx, level)
}

func (s *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.current().Handle(ctx, r)
}

func (s *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(s.attrs)+len(attrs))
	merged = append(merged, s.attrs...)
	merged = append(merged, attrs...)
	return &swapHandler{root: s.root, attrs: merged, group: s.group}
}

func (s *swapHandler) WithGroup(name string) slog.Handler {
	if s.group != "" {
		name = s.group + "." + name
	}
	return &swapHandler{root: s.root, attrs: s.attrs, group: name}
}

// Manager owns the logger lifecycle.
type Manager struct {
	mu       sync.Mutex
	levelVar *slog.LevelVar
	root     *atomic.Pointer[slog.Handler]
	stdout   io.Writer
	cfg      config.LoggingConfig
	closer   io.Closer
}

// NewManager creates a Manager writing to stdout (plus the rotating file when
// configured) and returns the logger to hand to every component.
func NewManager(cfg config.LoggingConfig) (*Manager, *slog.Logger) {
	return newManager(cfg, os.Stdout)
}

func newManager(cfg config.LoggingConfig, stdout io.Writer) (*Manager, *slog.Logger) {
	m := &Manager{
		levelVar: &slog.LevelVar{},
		root:     &atomic.Pointer[slog.Handler]{},
		stdout:   stdout,
	}
	m.levelVar.Set(ParseLevel(cfg.Level))
	m.install(cfg)
	return m, slog.New(&swapHandler{root: m.root})
}

// Reconfigure applies a new configuration. A level change takes effect
// immediately; format or file changes rebuild the handler.
func (m *Manager) Reconfigure(cfg config.LoggingConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levelVar.Set(ParseLevel(cfg.Level))
	if cfg.Format == m.cfg.Format &&
		cfg.FilePath == m.cfg.FilePath &&
		cfg.FileMaxSizeMB == m.cfg.FileMaxSizeMB &&
		cfg.FileMaxFiles == m.cfg.FileMaxFiles &&
		cfg.FileMaxAgeDays == m.cfg.FileMaxAgeDays {
		m.cfg = cfg
		return
	}

	if m.closer != nil {
		_ = m.closer.Close()
		m.closer = nil
	}
	m.install(cfg)
}

func (m *Manager) install(cfg config.LoggingConfig) {
	w := m.stdout
	if cfg.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.FileMaxSizeMB, 100),
			MaxBackups: orDefault(cfg.FileMaxFiles, 3),
			MaxAge:     orDefault(cfg.FileMaxAgeDays, 30),
		}
		w = io.MultiWriter(m.stdout, lj)
		m.closer = lj
	}

	opts := &slog.HandlerOptions{Level: m.levelVar}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	m.root.Store(&h)
	m.cfg = cfg
}

// Config returns the active configuration.
func (m *Manager) Config() config.LoggingConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Close releases the log file, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closer == nil {
		return nil
	}
	err := m.closer.Close()
	m.closer = nil
	return err
}

// ParseLevel converts a level name to slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
