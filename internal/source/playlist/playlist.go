// Package playlist discovers candidates from curated playlists on the
// metadata service.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sydlexius/releasewire/internal/source"
)

// Reader lists the album links referenced by a playlist.
type Reader interface {
	PlaylistAlbumURLs(ctx context.Context, playlistID string, maxPages int) ([]string, error)
}

// Source reads a fixed set of playlists.
type Source struct {
	reader   Reader
	ids      []string
	maxPages int
	match    source.Matcher
	logger   *slog.Logger
}

// New creates a playlist source.
func New(reader Reader, ids []string, maxPages int, match source.Matcher, logger *slog.Logger) *Source {
	return &Source{
		reader:   reader,
		ids:      ids,
		maxPages: maxPages,
		match:    match,
		logger:   logger.With(slog.String("source", "playlist")),
	}
}

// Name returns the source label.
func (s *Source) Name() string { return "playlist" }

// Discover reads every playlist. A failing playlist is logged and skipped;
// the source fails only when all of them do.
func (s *Source) Discover(ctx context.Context) ([]source.Candidate, error) {
	if len(s.ids) == 0 {
		return nil, errors.New("no playlists configured")
	}

	var links []string
	var errs []error
	for _, id := range s.ids {
		urls, err := s.reader.PlaylistAlbumURLs(ctx, id, s.maxPages)
		if err != nil {
			s.logger.Warn("reading playlist failed", slog.String("playlist_id", id), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("playlist %s: %w", id, err))
			continue
		}
		links = append(links, urls...)
	}
	if len(errs) == len(s.ids) {
		return nil, errors.Join(errs...)
	}
	return source.ToCandidates(links, s.match, s.Name()), nil
}
