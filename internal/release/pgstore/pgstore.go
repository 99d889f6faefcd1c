// Package pgstore is the PostgreSQL implementation of the release catalog,
// used when database.driver is "postgres".
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/sydlexius/releasewire/internal/database"
	"github.com/sydlexius/releasewire/internal/dedup"
	"github.com/sydlexius/releasewire/internal/release"
)

// Store is a pgx-backed release catalog.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ release.Store = (*Store)(nil)

// Open connects a pool to dsn. maxConns <= 0 defaults to 4.
func Open(ctx context.Context, dsn string, maxConns int, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = int32(maxConns) //nolint:gosec // G115: bounded by config
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Store{pool: pool, logger: logger.With(slog.String("component", "release-pgstore"))}, nil
}

// Migrate applies the postgres catalog migrations through a database/sql
// handle borrowed from the pool.
func (s *Store) Migrate() error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close() //nolint:errcheck
	return database.Migrate(db, database.DialectPostgres)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// FindOrCreateArtist returns the artist ID for the normalized name, creating
// the artist when needed.
func (s *Store) FindOrCreateArtist(ctx context.Context, name, externalID string) (string, error) {
	key := dedup.NormalizeName(name)
	if key == "" {
		return "", &release.ErrValidation{Field: "artist.name", Reason: "is required"}
	}

	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO artists (id, name, name_key, external_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name_key) DO UPDATE
			SET external_id = CASE WHEN artists.external_id = '' THEN EXCLUDED.external_id ELSE artists.external_id END
		RETURNING id::text`,
		uuid.New().String(), strings.TrimSpace(name), key, externalID,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("finding or creating artist: %w", err)
	}
	return id, nil
}

// UpsertRelease inserts the release row, then queues credit and track rows
// in one batch. A failed batch leaves the release stored and returns
// *release.ErrPartialWrite.
func (s *Store) UpsertRelease(ctx context.Context, r *release.Release, artistIDs []string) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	genres := r.Genres
	if genres == nil {
		genres = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO releases (
			id, name, release_type, cover_url, record_label, release_date,
			track_count, genres, external_url, url_key, imported_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (url_key) DO NOTHING`,
		r.ID, r.Name, string(r.Type), r.CoverURL, r.RecordLabel, r.ReleaseDate.Format(release.DateLayout),
		r.TrackCount, genres, r.ExternalURL, dedup.NormalizeURL(r.ExternalURL), r.ImportedBy, now,
	)
	if err != nil {
		return "", fmt.Errorf("inserting release: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.ID = ""
		return "", release.ErrDuplicateConflict
	}

	b := &pgx.Batch{}
	for pos, artistID := range artistIDs {
		b.Queue(`INSERT INTO release_artists (release_id, artist_id, position) VALUES ($1, $2, $3)
			ON CONFLICT (release_id, artist_id) DO NOTHING`, r.ID, artistID, pos)
	}
	for _, t := range r.Tracks {
		b.Queue(`INSERT INTO tracks (id, release_id, name, track_number, duration_ms, preview_url)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(), r.ID, t.Name, t.TrackNumber, t.DurationMs, t.PreviewURL)
	}
	if b.Len() == 0 {
		return r.ID, nil
	}

	br := s.pool.SendBatch(ctx, b)
	var errs []error
	for range b.Len() {
		if _, err := br.Exec(); err != nil {
			errs = append(errs, err)
			break
		}
	}
	if err := br.Close(); err != nil && len(errs) == 0 {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return r.ID, &release.ErrPartialWrite{ReleaseID: r.ID, Cause: errors.Join(errs...)}
	}
	return r.ID, nil
}

// HasExternalURL reports whether the normalized URL key is stored.
func (s *Store) HasExternalURL(ctx context.Context, urlKey string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM releases WHERE url_key = $1)`, urlKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking url key: %w", err)
	}
	return exists, nil
}

// ListFingerprints returns releases dated on the calendar day of day.
func (s *Store) ListFingerprints(ctx context.Context, day time.Time) ([]dedup.Fingerprint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id::text, r.name, r.release_date,
			COALESCE(array_agg(a.name ORDER BY ra.position) FILTER (WHERE a.name IS NOT NULL), '{}')
		FROM releases r
		LEFT JOIN release_artists ra ON ra.release_id = r.id
		LEFT JOIN artists a ON a.id = ra.artist_id
		WHERE r.release_date = $1
		GROUP BY r.id, r.name, r.release_date`,
		day.Format(release.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("listing fingerprints: %w", err)
	}
	defer rows.Close()

	var out []dedup.Fingerprint
	for rows.Next() {
		var fp dedup.Fingerprint
		if err := rows.Scan(&fp.ReleaseID, &fp.Name, &fp.ReleaseDate, &fp.Artists); err != nil {
			return nil, fmt.Errorf("scanning fingerprint: %w", err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// GetByID loads a release with its artists and tracks.
func (s *Store) GetByID(ctx context.Context, id string) (*release.Release, error) {
	var r release.Release
	var typ string
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, name, release_type, cover_url, record_label, release_date,
			track_count, genres, external_url, imported_by, created_at, updated_at
		FROM releases WHERE id::text = $1`, id,
	).Scan(&r.ID, &r.Name, &typ, &r.CoverURL, &r.RecordLabel, &r.ReleaseDate,
		&r.TrackCount, &r.Genres, &r.ExternalURL, &r.ImportedBy, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, release.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting release by id: %w", err)
	}
	r.Type = release.Type(typ)

	rows, err := s.pool.Query(ctx, `
		SELECT a.name, a.external_id FROM release_artists ra
		JOIN artists a ON a.id = ra.artist_id
		WHERE ra.release_id = $1 ORDER BY ra.position`, r.ID)
	if err != nil {
		return nil, fmt.Errorf("loading release artists: %w", err)
	}
	r.Artists, err = pgx.CollectRows(rows, pgx.RowToStructByPos[release.ArtistCredit])
	if err != nil {
		return nil, fmt.Errorf("scanning artist credits: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT name, track_number, duration_ms, preview_url FROM tracks
		WHERE release_id = $1 ORDER BY track_number`, r.ID)
	if err != nil {
		return nil, fmt.Errorf("loading tracks: %w", err)
	}
	r.Tracks, err = pgx.CollectRows(rows, pgx.RowToStructByPos[release.Track])
	if err != nil {
		return nil, fmt.Errorf("scanning tracks: %w", err)
	}
	return &r, nil
}

// Count returns the number of stored releases.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM releases`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting releases: %w", err)
	}
	return n, nil
}
