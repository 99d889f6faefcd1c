package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sydlexius/releasewire/internal/provider"
	"github.com/sydlexius/releasewire/internal/version"
)

const (
	defaultBaseURL = "https://api.spotify.com/v1"
	albumURLPrefix = "https://open.spotify.com/album/"
	maxBodyBytes   = 2 * 1024 * 1024
)

var (
	albumURLPattern = regexp.MustCompile(`^https?://open\.spotify\.com/(?:intl-[a-z]{2}(?:-[a-z]{2})?/)?album/([A-Za-z0-9]+)`)
	albumURIPattern = regexp.MustCompile(`^spotify:album:([A-Za-z0-9]+)$`)
)

// TokenSource supplies bearer tokens and accepts notice that one was rejected.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Adapter implements provider.MetadataService against the Spotify Web API.
type Adapter struct {
	client  *http.Client
	tokens  TokenSource
	limiter *provider.RateLimiter
	logger  *slog.Logger
	baseURL string
}

var _ provider.MetadataService = (*Adapter)(nil)

// New creates a Spotify adapter with the default base URL.
func New(tokens TokenSource, limiter *provider.RateLimiter, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(tokens, limiter, logger, defaultBaseURL)
}

// NewWithBaseURL creates a Spotify adapter with a custom base URL (for testing).
func NewWithBaseURL(tokens TokenSource, limiter *provider.RateLimiter, logger *slog.Logger, baseURL string) *Adapter {
	return &Adapter{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		tokens:  tokens,
		limiter: limiter,
		logger:  logger.With(slog.String("provider", string(provider.NameSpotify))),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// WithTimeout sets the per-request HTTP timeout.
func (a *Adapter) WithTimeout(d time.Duration) *Adapter {
	if d > 0 {
		a.client.Timeout = d
	}
	return a
}

// Name returns the provider name.
func (a *Adapter) Name() provider.Name { return provider.NameSpotify }

// ParseAlbumURL extracts the album ID from an open.spotify.com album link or
// a spotify:album: URI.
func (a *Adapter) ParseAlbumURL(raw string) (string, bool) {
	return ParseAlbumURL(raw)
}

// ParseAlbumURL extracts the album ID from an open.spotify.com album link or
// a spotify:album: URI.
func ParseAlbumURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if m := albumURLPattern.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	if m := albumURIPattern.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	return "", false
}

// AlbumURL returns the canonical web link for an album ID.
func AlbumURL(id string) string {
	return albumURLPrefix + id
}

// CanonicalAlbumURL rewrites any recognized album reference to its canonical
// web link. Unrecognized input is returned unchanged with ok=false.
func CanonicalAlbumURL(raw string) (string, bool) {
	id, ok := ParseAlbumURL(raw)
	if !ok {
		return raw, false
	}
	return AlbumURL(id), true
}

// GetAlbum fetches an album and all of its tracks.
func (a *Adapter) GetAlbum(ctx context.Context, id string) (*provider.AlbumMetadata, error) {
	body, err := a.get(ctx, provider.KeyAlbums, a.baseURL+"/albums/"+url.PathEscape(id), "album", id)
	if err != nil {
		return nil, err
	}
	var resp albumResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing album response: %w", err)
	}

	tracks := resp.Tracks.Items
	next := resp.Tracks.Next
	for next != "" {
		body, err := a.get(ctx, provider.KeyAlbums, next, "album", id)
		if err != nil {
			return nil, fmt.Errorf("fetching album tracks: %w", err)
		}
		var page trackPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parsing album tracks: %w", err)
		}
		tracks = append(tracks, page.Items...)
		next = page.Next
	}

	return a.mapAlbum(&resp, tracks), nil
}

// GetArtist fetches an artist.
func (a *Adapter) GetArtist(ctx context.Context, id string) (*provider.ArtistMetadata, error) {
	body, err := a.get(ctx, provider.KeyArtists, a.baseURL+"/artists/"+url.PathEscape(id), "artist", id)
	if err != nil {
		return nil, err
	}
	var resp artistResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing artist response: %w", err)
	}
	return &provider.ArtistMetadata{ID: resp.ID, Name: resp.Name, Genres: resp.Genres}, nil
}

// PlaylistAlbumURLs lists the canonical album links of every track in a
// playlist, following the next cursor for at most maxPages pages
// (maxPages <= 0 means no cap). Order is preserved and duplicates removed.
func (a *Adapter) PlaylistAlbumURLs(ctx context.Context, playlistID string, maxPages int) ([]string, error) {
	params := url.Values{
		"limit":  {"100"},
		"fields": {"items(track(album(id,external_urls))),next"},
	}
	next := a.baseURL + "/playlists/" + url.PathEscape(playlistID) + "/tracks?" + params.Encode()

	seen := make(map[string]struct{})
	var out []string
	for page := 0; next != "" && (maxPages <= 0 || page < maxPages); page++ {
		body, err := a.get(ctx, provider.KeyPlaylists, next, "playlist", playlistID)
		if err != nil {
			return out, err
		}
		var resp playlistTracksResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return out, fmt.Errorf("parsing playlist tracks: %w", err)
		}
		for _, item := range resp.Items {
			if item.Track == nil || item.Track.Album.ID == "" {
				continue
			}
			u := AlbumURL(item.Track.Album.ID)
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
		next = resp.Next
	}
	return out, nil
}

// get performs one authenticated GET. A 401 invalidates the cached token
// and the request is retried once with a fresh one.
func (a *Adapter) get(ctx context.Context, key, reqURL, kind, id string) ([]byte, error) {
	body, err := a.doRequest(ctx, key, reqURL, kind, id)
	if errors.Is(err, errUnauthorized) {
		a.logger.Info("access token rejected, refreshing", slog.String("url", reqURL))
		a.tokens.Invalidate()
		body, err = a.doRequest(ctx, key, reqURL, kind, id)
	}
	if errors.Is(err, errUnauthorized) {
		return nil, &provider.ErrAuth{Provider: provider.NameSpotify, Cause: err}
	}
	return body, err
}

var errUnauthorized = errors.New("HTTP 401")

// tokenError classifies a credential failure. Only a 4xx answer from the
// token endpoint is a rejection; transport failures and 5xx are transient.
func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
		return &provider.ErrAuth{Provider: provider.NameSpotify, Cause: err}
	}
	return &provider.ErrUnavailable{Provider: provider.NameSpotify, Cause: fmt.Errorf("acquiring token: %w", err)}
}

func (a *Adapter) doRequest(ctx context.Context, key, reqURL, kind, id string) ([]byte, error) {
	if err := a.limiter.Acquire(ctx, key); err != nil {
		return nil, &provider.ErrUnavailable{
			Provider: provider.NameSpotify,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	token, err := a.tokens.Token(ctx)
	if err != nil {
		return nil, tokenError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := a.client.Do(req) //nolint:gosec // URL built from configured base or the API's own next cursor
	if err != nil {
		return nil, &provider.ErrUnavailable{Provider: provider.NameSpotify, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
		return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	case resp.StatusCode == http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errUnauthorized
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrNotFound{Provider: provider.NameSpotify, Kind: kind, ID: id}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrUnavailable{
			Provider:   provider.NameSpotify,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected HTTP %d from %s", resp.StatusCode, provider.NameSpotify)
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// mapAlbum converts an API album to the provider-neutral type.
func (a *Adapter) mapAlbum(resp *albumResponse, tracks []simpleTrack) *provider.AlbumMetadata {
	meta := &provider.AlbumMetadata{
		ID:          resp.ID,
		Name:        resp.Name,
		AlbumType:   resp.AlbumType,
		Genres:      resp.Genres,
		Label:       resp.Label,
		TotalTracks: resp.TotalTracks,
		ExternalURL: resp.ExternalURLs.Spotify,
	}
	if meta.ExternalURL == "" && resp.ID != "" {
		meta.ExternalURL = AlbumURL(resp.ID)
	}
	if len(resp.Images) > 0 {
		meta.CoverURL = largestImage(resp.Images)
	}

	d, err := parseReleaseDate(resp.ReleaseDate, resp.ReleaseDatePrecision)
	if err != nil {
		a.logger.Warn("unparseable release date",
			slog.String("album_id", resp.ID),
			slog.String("release_date", resp.ReleaseDate),
			slog.String("error", err.Error()))
	}
	meta.ReleaseDate = d

	for _, ar := range resp.Artists {
		meta.Artists = append(meta.Artists, provider.ArtistRef{ID: ar.ID, Name: ar.Name})
	}
	// Track numbers restart on each disc; number multi-disc albums by position.
	multiDisc := false
	for _, t := range tracks {
		if t.DiscNumber > 1 {
			multiDisc = true
			break
		}
	}
	for i, t := range tracks {
		n := t.TrackNumber
		if multiDisc || n <= 0 {
			n = i + 1
		}
		meta.Tracks = append(meta.Tracks, provider.TrackMetadata{
			Name:        t.Name,
			TrackNumber: n,
			DurationMs:  t.DurationMs,
			PreviewURL:  t.PreviewURL,
		})
	}
	if meta.TotalTracks == 0 {
		meta.TotalTracks = len(meta.Tracks)
	}
	return meta
}

func largestImage(images []image) string {
	best := images[0]
	for _, img := range images[1:] {
		if img.Width*img.Height > best.Width*best.Height {
			best = img
		}
	}
	return best.URL
}

// parseReleaseDate handles the year, month and day precisions. Partial
// dates are padded to the first day of the period.
func parseReleaseDate(s, precision string) (time.Time, error) {
	switch precision {
	case "year":
		return time.Parse("2006", s)
	case "month":
		return time.Parse("2006-01", s)
	case "day", "":
		for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	default:
		return time.Time{}, fmt.Errorf("unknown precision %q", precision)
	}
}
