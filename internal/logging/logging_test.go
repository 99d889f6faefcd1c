package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sydlexius/releasewire/internal/config"
)

func TestManager_LevelSwap(t *testing.T) {
	var buf bytes.Buffer
	mgr, logger := newManager(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	defer mgr.Close() //nolint:errcheck

	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug to be disabled")
	}

	mgr.Reconfigure(config.LoggingConfig{Level: "debug", Format: "json"})
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug to be enabled after reconfigure")
	}

	mgr.Reconfigure(config.LoggingConfig{Level: "error", Format: "json"})
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled when level is error")
	}
}

func TestManager_FormatSwapReachesDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	mgr, logger := newManager(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	defer mgr.Close() //nolint:errcheck

	child := logger.With(slog.String("component", "importer"))
	child.Info("first")
	if !strings.Contains(buf.String(), `"component":"importer"`) {
		t.Fatalf("expected json output with component attr, got %q", buf.String())
	}

	buf.Reset()
	mgr.Reconfigure(config.LoggingConfig{Level: "info", Format: "text"})
	child.Info("second")
	out := buf.String()
	if !strings.Contains(out, "component=importer") || !strings.Contains(out, "msg=second") {
		t.Errorf("expected text output after swap, got %q", out)
	}
	if mgr.Config().Format != "text" {
		t.Errorf("Config().Format = %q, want text", mgr.Config().Format)
	}
}

func TestManager_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "releasewire.log")
	var buf bytes.Buffer
	mgr, logger := newManager(config.LoggingConfig{
		Level:         "info",
		Format:        "json",
		FilePath:      logFile,
		FileMaxSizeMB: 1,
	}, &buf)

	logger.Info("to file", slog.String("run_id", "r1"))
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
