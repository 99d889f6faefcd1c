package release

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/releasewire/internal/dedup"
)

// Store is the catalog contract shared by the SQLite and PostgreSQL
// implementations. It covers the persistence writer and the read side the
// dedup engine needs.
type Store interface {
	dedup.Catalog
	FindOrCreateArtist(ctx context.Context, name, externalID string) (string, error)
	UpsertRelease(ctx context.Context, r *Release, artistIDs []string) (string, error)
	GetByID(ctx context.Context, id string) (*Release, error)
	Count(ctx context.Context) (int, error)
}

// releaseColumns is the ordered list of columns for SELECT queries.
const releaseColumns = `id, name, release_type, cover_url, record_label, release_date,
	track_count, genres, external_url, imported_by, created_at, updated_at`

// Service is the SQLite-backed release catalog.
type Service struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*Service)(nil)

// NewService creates a release service.
func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger.With(slog.String("component", "release-store"))}
}

// FindOrCreateArtist returns the ID of the artist whose normalized name
// matches, creating the artist when none exists. A known external ID is
// backfilled onto an existing row that lacks one.
func (s *Service) FindOrCreateArtist(ctx context.Context, name, externalID string) (string, error) {
	key := dedup.NormalizeName(name)
	if key == "" {
		return "", &ErrValidation{Field: "artist.name", Reason: "is required"}
	}

	id, err := s.artistIDByKey(ctx, key)
	if err != nil {
		return "", err
	}
	if id != "" {
		if externalID != "" {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE artists SET external_id = ? WHERE id = ? AND external_id = ''`, externalID, id); err != nil {
				s.logger.Warn("backfilling artist external id", slog.String("artist_id", id), slog.String("error", err.Error()))
			}
		}
		return id, nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artists (id, name, name_key, external_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name_key) DO NOTHING`,
		uuid.New().String(), strings.TrimSpace(name), key, externalID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("creating artist: %w", err)
	}

	// Re-read so a concurrent insert of the same name resolves to one row.
	id, err = s.artistIDByKey(ctx, key)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("artist %q missing after insert", name)
	}
	return id, nil
}

func (s *Service) artistIDByKey(ctx context.Context, key string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM artists WHERE name_key = ?`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up artist: %w", err)
	}
	return id, nil
}

// UpsertRelease stores a new release and links it to artistIDs in order.
// It returns ErrDuplicateConflict when the normalized external URL is
// already stored. Credit and track rows are written after the release row
// commits; if any of them fail the release stays stored and an
// *ErrPartialWrite carrying the new ID is returned.
func (s *Service) UpsertRelease(ctx context.Context, r *Release, artistIDs []string) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO releases (
			id, name, release_type, cover_url, record_label, release_date,
			track_count, genres, external_url, url_key, imported_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_key) DO NOTHING`,
		r.ID, r.Name, string(r.Type), r.CoverURL, r.RecordLabel, r.ReleaseDate.Format(DateLayout),
		r.TrackCount, MarshalStringSlice(r.Genres), r.ExternalURL, dedup.NormalizeURL(r.ExternalURL),
		r.ImportedBy, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("inserting release: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("inserting release: %w", err)
	}
	if n == 0 {
		r.ID = ""
		return "", ErrDuplicateConflict
	}

	var errs []error
	for pos, artistID := range artistIDs {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO release_artists (release_id, artist_id, position) VALUES (?, ?, ?)
			ON CONFLICT(release_id, artist_id) DO NOTHING`,
			r.ID, artistID, pos); err != nil {
			errs = append(errs, fmt.Errorf("linking artist %s: %w", artistID, err))
		}
	}
	for _, t := range r.Tracks {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO tracks (id, release_id, name, track_number, duration_ms, preview_url)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), r.ID, t.Name, t.TrackNumber, t.DurationMs, t.PreviewURL); err != nil {
			errs = append(errs, fmt.Errorf("track %d: %w", t.TrackNumber, err))
		}
	}
	if len(errs) > 0 {
		return r.ID, &ErrPartialWrite{ReleaseID: r.ID, Cause: errors.Join(errs...)}
	}
	return r.ID, nil
}

// HasExternalURL reports whether a release with the normalized URL key exists.
func (s *Service) HasExternalURL(ctx context.Context, urlKey string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM releases WHERE url_key = ?`, urlKey).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking url key: %w", err)
	}
	return true, nil
}

// ListFingerprints returns the name, artists and date of every release
// dated on the calendar day of day.
func (s *Service) ListFingerprints(ctx context.Context, day time.Time) ([]dedup.Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.release_date, COALESCE(a.name, '')
		FROM releases r
		LEFT JOIN release_artists ra ON ra.release_id = r.id
		LEFT JOIN artists a ON a.id = ra.artist_id
		WHERE r.release_date = ?
		ORDER BY r.id, ra.position`,
		day.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("listing fingerprints: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []dedup.Fingerprint
	for rows.Next() {
		var id, name, date, artist string
		if err := rows.Scan(&id, &name, &date, &artist); err != nil {
			return nil, fmt.Errorf("scanning fingerprint: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ReleaseID != id {
			d, _ := time.Parse(DateLayout, date)
			out = append(out, dedup.Fingerprint{ReleaseID: id, Name: name, ReleaseDate: d})
		}
		if artist != "" {
			last := &out[len(out)-1]
			last.Artists = append(last.Artists, artist)
		}
	}
	return out, rows.Err()
}

// GetByID loads a release with its artists and tracks.
func (s *Service) GetByID(ctx context.Context, id string) (*Release, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+releaseColumns+` FROM releases WHERE id = ?`, id)
	r, err := scanRelease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting release by id: %w", err)
	}

	// Each child query is drained and closed before the next one opens; the
	// SQLite pool holds a single connection.
	if r.Artists, err = s.loadCredits(ctx, id); err != nil {
		return nil, err
	}
	if r.Tracks, err = s.loadTracks(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) loadCredits(ctx context.Context, releaseID string) ([]ArtistCredit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.name, a.external_id FROM release_artists ra
		JOIN artists a ON a.id = ra.artist_id
		WHERE ra.release_id = ? ORDER BY ra.position`, releaseID)
	if err != nil {
		return nil, fmt.Errorf("loading release artists: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []ArtistCredit
	for rows.Next() {
		var c ArtistCredit
		if err := rows.Scan(&c.Name, &c.ExternalID); err != nil {
			return nil, fmt.Errorf("scanning artist credit: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Service) loadTracks(ctx context.Context, releaseID string) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, track_number, duration_ms, preview_url FROM tracks
		WHERE release_id = ? ORDER BY track_number`, releaseID)
	if err != nil {
		return nil, fmt.Errorf("loading tracks: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.Name, &t.TrackNumber, &t.DurationMs, &t.PreviewURL); err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Count returns the number of stored releases.
func (s *Service) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM releases`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting releases: %w", err)
	}
	return n, nil
}

func scanRelease(row *sql.Row) (*Release, error) {
	var r Release
	var typ, date, genres, createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.Name, &typ, &r.CoverURL, &r.RecordLabel, &date,
		&r.TrackCount, &genres, &r.ExternalURL, &r.ImportedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.Type = Type(typ)
	r.ReleaseDate, _ = time.Parse(DateLayout, date)
	r.Genres = UnmarshalStringSlice(genres)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}
