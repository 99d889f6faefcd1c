// Package dedup decides whether a candidate release already exists in the
// catalog. The exact tier compares normalized external URLs; the fuzzy tier
// compares normalized names, artist sets and release day.
package dedup

import (
	"context"
	"fmt"
	"time"
)

// Reason names the tier that flagged a duplicate.
type Reason string

const (
	ReasonNone  Reason = ""
	ReasonURL   Reason = "external_url"
	ReasonFuzzy Reason = "fuzzy_name"
)

// Fingerprint is the slice of a stored release the fuzzy tier looks at.
type Fingerprint struct {
	ReleaseID   string
	Name        string
	Artists     []string
	ReleaseDate time.Time
}

// Subject is a resolved candidate to test against the catalog.
type Subject struct {
	Name        string
	ExternalURL string
	Artists     []string
	ReleaseDate time.Time
}

// Catalog is the read side of release storage the engine needs.
type Catalog interface {
	// HasExternalURL reports whether a release with the given normalized
	// URL key is stored.
	HasExternalURL(ctx context.Context, urlKey string) (bool, error)
	// ListFingerprints returns releases dated on the same calendar day.
	ListFingerprints(ctx context.Context, day time.Time) ([]Fingerprint, error)
}

// Decision is the outcome of a duplicate check.
type Decision struct {
	Duplicate bool
	Reason    Reason
	MatchedID string
}

// Engine runs both dedup tiers against a Catalog.
type Engine struct {
	catalog    Catalog
	thresholds Thresholds
}

// NewEngine creates an Engine. Zero thresholds fall back to DefaultThresholds.
func NewEngine(catalog Catalog, th Thresholds) *Engine {
	if th.MaxDistance <= 0 && th.Ratio <= 0 {
		th = DefaultThresholds()
	}
	return &Engine{catalog: catalog, thresholds: th}
}

// IsKnownURL runs only the exact tier. An empty URL is never known.
func (e *Engine) IsKnownURL(ctx context.Context, rawURL string) (bool, error) {
	key := NormalizeURL(rawURL)
	if key == "" {
		return false, nil
	}
	found, err := e.catalog.HasExternalURL(ctx, key)
	if err != nil {
		return false, fmt.Errorf("checking external url: %w", err)
	}
	return found, nil
}

// IsDuplicate runs the exact tier and, when that misses, the fuzzy tier.
// A fuzzy match needs a close name, the same artist set and the same
// release day.
func (e *Engine) IsDuplicate(ctx context.Context, s Subject) (Decision, error) {
	known, err := e.IsKnownURL(ctx, s.ExternalURL)
	if err != nil {
		return Decision{}, err
	}
	if known {
		return Decision{Duplicate: true, Reason: ReasonURL}, nil
	}

	if s.Name == "" || s.ReleaseDate.IsZero() {
		return Decision{}, nil
	}

	prints, err := e.catalog.ListFingerprints(ctx, s.ReleaseDate)
	if err != nil {
		return Decision{}, fmt.Errorf("listing fingerprints: %w", err)
	}
	for _, fp := range prints {
		if !sameDay(fp.ReleaseDate, s.ReleaseDate) {
			continue
		}
		if !e.thresholds.NamesMatch(fp.Name, s.Name) {
			continue
		}
		if !ArtistSetsEqual(fp.Artists, s.Artists) {
			continue
		}
		return Decision{Duplicate: true, Reason: ReasonFuzzy, MatchedID: fp.ReleaseID}, nil
	}
	return Decision{}, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
