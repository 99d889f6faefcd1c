package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const stampLayout = "20060102-150405"

// backupPattern matches snapshot filenames: releasewire-YYYYMMDD-HHMMSS.db
var backupPattern = regexp.MustCompile(`^releasewire-\d{8}-\d{6}\.db$`)

// Snapshot describes one catalog backup file.
type Snapshot struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Service writes point-in-time copies of the sqlite catalog and keeps the
// newest Retention of them.
type Service struct {
	db        *sql.DB
	dir       string
	retention int
	now       func() time.Time
	logger    *slog.Logger
}

// NewService creates a backup service. A retention of 0 keeps every snapshot.
func NewService(db *sql.DB, dir string, retention int, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		dir:       dir,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "backup")),
	}
}

// Backup writes a consistent snapshot of the catalog using VACUUM INTO.
func (s *Service) Backup(ctx context.Context) (*Snapshot, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := s.now().Truncate(time.Second)
	filename := "releasewire-" + now.Format(stampLayout) + ".db"
	dest := filepath.Join(s.dir, filename)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("backup %s already exists", filename)
	}

	s.logger.Info("starting backup", slog.String("dest", dest))
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("VACUUM INTO: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat backup file: %w", err)
	}
	s.logger.Info("backup complete",
		slog.String("filename", filename),
		slog.Int64("size", info.Size()))

	return &Snapshot{Filename: filename, Size: info.Size(), CreatedAt: now}, nil
}

// List returns all snapshots, newest first.
func (s *Service) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var out []Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !backupPattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "releasewire-"), ".db")
		ts, err := time.Parse(stampLayout, stamp)
		if err != nil {
			ts = info.ModTime()
		}
		out = append(out, Snapshot{Filename: entry.Name(), Size: info.Size(), CreatedAt: ts})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Prune deletes snapshots beyond the retention count and returns how many
// were removed.
func (s *Service) Prune() (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	snaps, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(snaps) <= s.retention {
		return 0, nil
	}

	removed := 0
	for _, b := range snaps[s.retention:] {
		if err := os.Remove(filepath.Join(s.dir, b.Filename)); err != nil {
			s.logger.Warn("failed to remove old backup",
				slog.String("filename", b.Filename),
				slog.String("error", err.Error()))
			continue
		}
		removed++
		s.logger.Info("pruned old backup", slog.String("filename", b.Filename))
	}
	return removed, nil
}

// Dir returns the backup directory.
func (s *Service) Dir() string {
	return s.dir
}

// StartScheduler backs up and prunes on a fixed interval until the context
// is canceled.
func (s *Service) StartScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.logger.Info("backup scheduler started",
		slog.String("interval", interval.String()),
		slog.Int("retention", s.retention))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("backup scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Backup(ctx); err != nil {
				s.logger.Error("scheduled backup failed", slog.String("error", err.Error()))
				continue
			}
			if _, err := s.Prune(); err != nil {
				s.logger.Error("backup prune failed", slog.String("error", err.Error()))
			}
		}
	}
}
