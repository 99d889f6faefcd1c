package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Status describes the size and contents of the sqlite catalog.
type Status struct {
	DBFileSize     int64     `json:"db_file_size"`
	WALFileSize    int64     `json:"wal_file_size"`
	PageCount      int64     `json:"page_count"`
	PageSize       int64     `json:"page_size"`
	FreePages      int64     `json:"free_pages"`
	Releases       int64     `json:"releases"`
	Artists        int64     `json:"artists"`
	Tracks         int64     `json:"tracks"`
	LastOptimizeAt time.Time `json:"last_optimize_at,omitzero"`
}

// Service runs housekeeping on a sqlite catalog.
type Service struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger

	mu           sync.Mutex
	lastOptimize time.Time
}

// NewService creates a maintenance service.
func NewService(db *sql.DB, dbPath string, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		dbPath: dbPath,
		logger: logger.With(slog.String("component", "maintenance")),
	}
}

// Status returns file sizes, page statistics and row counts.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	for _, p := range []struct {
		pragma string
		dst    *int64
	}{
		{"page_count", &st.PageCount},
		{"page_size", &st.PageSize},
		{"freelist_count", &st.FreePages},
	} {
		if err := s.db.QueryRowContext(ctx, "PRAGMA "+p.pragma).Scan(p.dst); err != nil {
			s.logger.Warn("reading pragma", slog.String("pragma", p.pragma), slog.String("error", err.Error()))
		}
	}

	counts := []struct {
		query string
		dst   *int64
	}{
		{"SELECT COUNT(*) FROM releases", &st.Releases},
		{"SELECT COUNT(*) FROM artists", &st.Artists},
		{"SELECT COUNT(*) FROM tracks", &st.Tracks},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("counting catalog rows: %w", err)
		}
	}

	s.mu.Lock()
	st.LastOptimizeAt = s.lastOptimize
	s.mu.Unlock()
	return st, nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	s.logger.Info("running PRAGMA optimize")
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}

	s.logger.Info("running WAL checkpoint")
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}

	s.mu.Lock()
	s.lastOptimize = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Info("optimize complete")
	return nil
}

// Vacuum rebuilds the database file, reclaiming free pages.
func (s *Service) Vacuum(ctx context.Context) error {
	s.logger.Info("running VACUUM")
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	s.logger.Info("vacuum complete")
	return nil
}

// StartScheduler runs Optimize on a fixed interval until the context is canceled.
func (s *Service) StartScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.logger.Info("maintenance scheduler started", slog.String("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Optimize(ctx); err != nil {
				s.logger.Error("scheduled optimize failed", slog.String("error", err.Error()))
			}
		}
	}
}
