// Package watcher reloads settings when the config file changes on disk.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc is called after the watched file settles.
type ReloadFunc func(ctx context.Context) error

// Service watches a single file and calls a ReloadFunc once writes to it
// have been quiet for the debounce interval.
type Service struct {
	path     string
	reload   ReloadFunc
	logger   *slog.Logger
	debounce time.Duration
}

// NewService creates a watcher for path.
func NewService(path string, reload ReloadFunc, logger *slog.Logger) *Service {
	return &Service{
		path:     filepath.Clean(path),
		reload:   reload,
		logger:   logger.With(slog.String("component", "config-watcher")),
		debounce: 500 * time.Millisecond,
	}
}

// SetDebounce overrides the default debounce interval (for testing).
func (s *Service) SetDebounce(d time.Duration) {
	s.debounce = d
}

// Start blocks until ctx is canceled. The parent directory is watched
// rather than the file itself so that editors that save by rename are
// still picked up.
func (s *Service) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}
	s.logger.Info("config watcher starting", slog.String("path", s.path))

	// Starts stopped; reset on each relevant event.
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("config watcher stopping")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !s.relevant(ev) {
				continue
			}
			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(s.debounce)
			pending = true

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("fsnotify error", slog.String("error", err.Error()))

		case <-debounceTimer.C:
			if !pending {
				continue
			}
			pending = false
			if err := s.reload(ctx); err != nil {
				s.logger.Error("config reload failed", slog.String("error", err.Error()))
				continue
			}
			s.logger.Info("config reloaded", slog.String("path", s.path))
		}
	}
}

func (s *Service) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != s.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}
