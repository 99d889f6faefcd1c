package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sydlexius/releasewire/internal/backup"
	"github.com/sydlexius/releasewire/internal/config"
	"github.com/sydlexius/releasewire/internal/importer"
	"github.com/sydlexius/releasewire/internal/maintenance"
	"github.com/sydlexius/releasewire/internal/provider"
	"github.com/sydlexius/releasewire/internal/provider/spotify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRenderSummary(t *testing.T) {
	out := renderSummary(&importer.Summary{
		RunID:         "run-1",
		Created:       1,
		Skipped:       1,
		Errors:        1,
		CreatedItems:  []string{"M83 - Hurry Up, We're Dreaming"},
		SkippedItems:  []string{"Beach House - Bloom"},
		ErrorMessages: []string{"https://open.spotify.com/album/x: not found"},
	})
	for _, want := range []string{"run-1", "M83 - Hurry Up", "Beach House - Bloom", "not found", "1 created, 1 skipped, 1 errors"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary table missing %q:\n%s", want, out)
		}
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	l := progressPrinter(&buf)
	l.OnProgress(importer.Snapshot{Stage: importer.StageImporting, Current: 2, Total: 5, CurrentLabel: "M83 - Junk"})
	if !strings.Contains(buf.String(), "[2/5] M83 - Junk") {
		t.Errorf("progress line = %q", buf.String())
	}
}

func TestIsTerminal_NonFile(t *testing.T) {
	if isTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}

func TestBuildSources(t *testing.T) {
	svc := spotify.New(nil, provider.NewRateLimiter(nil, provider.WindowLimit{}), testLogger())
	cfg := config.Default().Sources

	if got := buildSources(cfg, svc, testLogger()); len(got) != 0 {
		t.Errorf("defaults enable %d sources, want 0", len(got))
	}

	cfg.Forum.Enabled = true
	cfg.Chart.Enabled = true
	cfg.Chart.URL = "https://charts.example.com/albums"
	cfg.Playlists.Enabled = true
	cfg.Playlists.IDs = []string{"37i9dQZF1DX4JAvHpjipBk"}
	got := buildSources(cfg, svc, testLogger())
	if len(got) != 3 {
		t.Fatalf("got %d sources, want 3", len(got))
	}
	if got[0].Name() != "forum:indieheads" || got[1].Name() != "chart" || got[2].Name() != "playlist" {
		t.Errorf("source order = %s, %s, %s", got[0].Name(), got[1].Name(), got[2].Name())
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "releasewire ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestWebhooksFromConfig(t *testing.T) {
	hooks := webhooksFromConfig([]config.WebhookConfig{
		{Name: "ops", URL: "http://hook", Type: "slack", Events: []string{"import.failed"}},
	})
	if len(hooks) != 1 || hooks[0].Type != "slack" || hooks[0].Events[0] != "import.failed" {
		t.Errorf("hooks = %+v", hooks)
	}
}

func TestRenderDBStatus(t *testing.T) {
	out := renderDBStatus(&maintenance.Status{Releases: 12, Artists: 7, PageCount: 10, PageSize: 4096})
	for _, want := range []string{"Releases", "12", "10 x 4096", "never"} {
		if !strings.Contains(out, want) {
			t.Errorf("status table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSnapshots(t *testing.T) {
	out := renderSnapshots([]backup.Snapshot{
		{Filename: "releasewire-20260301-120000.db", Size: 8192, CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	})
	if !strings.Contains(out, "releasewire-20260301-120000.db") || !strings.Contains(out, "2026-03-01T12:00:00Z") {
		t.Errorf("snapshot table:\n%s", out)
	}
}

// writeTestConfig points the catalog and backups at a temp dir.
func writeTestConfig(t *testing.T) (cfgPath, backupDir string) {
	t.Helper()
	dir := t.TempDir()
	backupDir = filepath.Join(dir, "backups")
	cfgPath = filepath.Join(dir, "config.yaml")
	body := "database:\n" +
		"  path: " + filepath.Join(dir, "catalog.db") + "\n" +
		"  backup_dir: " + backupDir + "\n" +
		"  backup_retention: 1\n" +
		"logging:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, backupDir
}

func TestDBCommands(t *testing.T) {
	cfgPath, backupDir := writeTestConfig(t)

	run := func(args ...string) string {
		t.Helper()
		cmd := newRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
		if err := cmd.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out.String()
	}

	var st maintenance.Status
	if err := json.Unmarshal([]byte(run("db", "status", "--json")), &st); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if st.Releases != 0 || st.PageSize == 0 {
		t.Errorf("status = %+v", st)
	}

	if out := run("db", "optimize"); !strings.Contains(out, "optimized") {
		t.Errorf("optimize output = %q", out)
	}
	if out := run("db", "backup"); !strings.Contains(out, "releasewire-") {
		t.Errorf("backup output = %q", out)
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("backup dir has %d entries, want 1", len(entries))
	}
}
