// Package resolver turns candidate links into canonical release records by
// querying the metadata service, retrying transient failures.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sydlexius/releasewire/internal/provider"
	"github.com/sydlexius/releasewire/internal/release"
	"github.com/sydlexius/releasewire/internal/source"
)

// Resolver resolves candidates against one metadata service.
type Resolver struct {
	svc    provider.MetadataService
	policy Policy
	logger *slog.Logger
}

// New creates a Resolver.
func New(svc provider.MetadataService, policy Policy, logger *slog.Logger) *Resolver {
	return &Resolver{
		svc:    svc,
		policy: policy.normalized(),
		logger: logger.With(slog.String("component", "resolver")),
	}
}

// Resolve fetches the album behind c and maps it to a release. Errors are
// *provider.ErrNotFound, *provider.ErrUnavailable once retries are
// exhausted, *provider.ErrAuth, or *release.ErrValidation.
func (r *Resolver) Resolve(ctx context.Context, c source.Candidate) (*release.Release, error) {
	id, ok := r.svc.ParseAlbumURL(c.SourceURL)
	if !ok {
		return nil, &release.ErrValidation{Field: "source_url", Reason: fmt.Sprintf("%q is not an album link", c.SourceURL)}
	}

	var album *provider.AlbumMetadata
	err := r.do(ctx, "album", id, func(ctx context.Context) error {
		var err error
		album, err = r.svc.GetAlbum(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	rel := &release.Release{
		Name:        album.Name,
		CoverURL:    album.CoverURL,
		RecordLabel: album.Label,
		ReleaseDate: album.ReleaseDate,
		TrackCount:  album.TotalTracks,
		ExternalURL: album.ExternalURL,
	}
	if rel.ExternalURL == "" {
		rel.ExternalURL = c.SourceURL
	}
	if rel.TrackCount == 0 {
		rel.TrackCount = len(album.Tracks)
	}
	rel.Type = InferReleaseType(explicitType(album.AlbumType), rel.TrackCount)

	for _, a := range album.Artists {
		rel.Artists = append(rel.Artists, release.ArtistCredit{Name: a.Name, ExternalID: a.ID})
	}
	for _, t := range album.Tracks {
		rel.Tracks = append(rel.Tracks, release.Track{
			Name:        t.Name,
			TrackNumber: t.TrackNumber,
			DurationMs:  t.DurationMs,
			PreviewURL:  t.PreviewURL,
		})
	}

	genres := album.Genres
	if len(genres) == 0 {
		genres = r.artistGenres(ctx, album.Artists)
	}
	rel.Genres = release.CleanGenres(genres)

	if err := rel.Validate(); err != nil {
		return nil, err
	}
	return rel, nil
}

// artistGenres falls back to the first credited artist that has an ID.
// Lookup failures are logged and yield no genres.
func (r *Resolver) artistGenres(ctx context.Context, artists []provider.ArtistRef) []string {
	for _, a := range artists {
		if a.ID == "" {
			continue
		}
		var meta *provider.ArtistMetadata
		err := r.do(ctx, "artist", a.ID, func(ctx context.Context) error {
			var err error
			meta, err = r.svc.GetArtist(ctx, a.ID)
			return err
		})
		if err != nil {
			r.logger.Warn("artist genre lookup failed",
				slog.String("artist_id", a.ID),
				slog.String("error", err.Error()))
			return nil
		}
		return meta.Genres
	}
	return nil
}

func (r *Resolver) do(ctx context.Context, kind, id string, fn func(ctx context.Context) error) error {
	attempt := 0
	return Do(ctx, r.policy, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && provider.IsTransient(err) && attempt < r.policy.MaxAttempts {
			r.logger.Warn("transient metadata failure, retrying",
				slog.String("kind", kind),
				slog.String("id", id),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
		return err
	})
}

// explicitType picks out the album_type values that carry real information.
// The service files EPs under "single" and most LPs under "album", so those
// two fall through to track-count inference.
func explicitType(albumType string) release.Type {
	switch t := release.ParseType(albumType); t {
	case release.TypeCompilation, release.TypeEP:
		return t
	default:
		return ""
	}
}

// InferReleaseType applies an explicit type when one is given, otherwise
// classifies by track count: up to 2 is a single, 3 to 5 an EP, 6 or more
// an LP. An explicit compilation always wins.
func InferReleaseType(explicit release.Type, trackCount int) release.Type {
	if explicit.Valid() {
		return explicit
	}
	switch {
	case trackCount <= 2:
		return release.TypeSingle
	case trackCount <= 5:
		return release.TypeEP
	default:
		return release.TypeLP
	}
}
