package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Name identifies a metadata provider.
type Name string

// NameSpotify is the Spotify Web API adapter.
const NameSpotify Name = "spotify"

// Rate limiter keys, one per endpoint category of the metadata service.
const (
	KeyAlbums    = "albums"
	KeyArtists   = "artists"
	KeyPlaylists = "playlists"
)

// ArtistRef is an artist credit as reported on an album.
type ArtistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TrackMetadata is one track of an album.
type TrackMetadata struct {
	Name        string `json:"name"`
	TrackNumber int    `json:"track_number"`
	DurationMs  int    `json:"duration_ms"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

// AlbumMetadata is the provider-neutral album record returned by GetAlbum.
type AlbumMetadata struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	AlbumType   string          `json:"album_type"`
	CoverURL    string          `json:"cover_url,omitempty"`
	Genres      []string        `json:"genres"`
	Label       string          `json:"label,omitempty"`
	ReleaseDate time.Time       `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
	Artists     []ArtistRef     `json:"artists"`
	Tracks      []TrackMetadata `json:"tracks"`
	ExternalURL string          `json:"external_url"`
}

// ArtistMetadata is the subset of artist data the resolver needs.
type ArtistMetadata struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
}

// MetadataService resolves album and artist identifiers to metadata.
type MetadataService interface {
	Name() Name
	// ParseAlbumURL extracts the album ID from a URL or URI the service
	// understands.
	ParseAlbumURL(raw string) (id string, ok bool)
	GetAlbum(ctx context.Context, id string) (*AlbumMetadata, error)
	GetArtist(ctx context.Context, id string) (*ArtistMetadata, error)
}

// ErrUnavailable indicates a transient failure (rate-limited, timeout, server error).
type ErrUnavailable struct {
	Provider   Name
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Cause)
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// ErrNotFound indicates the provider has no data for the requested ID.
type ErrNotFound struct {
	Provider Name
	Kind     string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider %s: %s %s not found", e.Provider, e.Kind, e.ID)
}

// ErrAuth indicates the provider rejected our credentials.
type ErrAuth struct {
	Provider Name
	Cause    error
}

func (e *ErrAuth) Error() string {
	return fmt.Sprintf("provider %s: authentication failed: %v", e.Provider, e.Cause)
}

func (e *ErrAuth) Unwrap() error { return e.Cause }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var u *ErrUnavailable
	return errors.As(err, &u)
}
