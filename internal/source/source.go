// Package source defines discovery adapters: producers of candidate release
// links from forums, chart pages, curated playlists or a single user link.
package source

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/sydlexius/releasewire/internal/dedup"
)

// Candidate is an unresolved reference to a possible release.
type Candidate struct {
	SourceURL   string `json:"source_url"`
	SourceLabel string `json:"source_label"`
}

// Source discovers candidates. Implementations return each URL at most once.
type Source interface {
	Name() string
	Discover(ctx context.Context) ([]Candidate, error)
}

// Matcher reports whether a link refers to a release the metadata service
// can resolve, returning its canonical form.
type Matcher func(raw string) (canonical string, ok bool)

// Pacer spaces out page requests to one source. The first Wait returns
// immediately.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer allows one request per delay. A non-positive delay disables pacing.
func NewPacer(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next page may be requested or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// PageFunc fetches one page. page counts from 1; cursor is the value the
// previous page returned as next ("" for the first page). An empty next
// ends pagination.
type PageFunc func(ctx context.Context, page int, cursor string) (links []string, next string, err error)

// Paginate follows the continuation cursor until a page yields no new
// release links, the cursor runs out or maxPages pages were read (maxPages
// <= 0 means no cap). Links that match rejects (navigation, artist pages) do
// not count as progress; a nil match accepts every link. Accepted links are
// returned in canonical form, once each, in first-seen order. When a page
// fails, the links gathered so far are returned along with the error.
func Paginate(ctx context.Context, pacer *Pacer, maxPages int, match Matcher, fetch PageFunc) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	cursor := ""
	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		if err := pacer.Wait(ctx); err != nil {
			return out, err
		}
		links, next, err := fetch(ctx, page, cursor)
		if err != nil {
			return out, err
		}
		added := 0
		for _, l := range links {
			key := l
			if match != nil {
				canonical, ok := match(l)
				if !ok {
					continue
				}
				l, key = canonical, dedup.NormalizeURL(canonical)
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, l)
			added++
		}
		if added == 0 || next == "" {
			break
		}
		cursor = next
	}
	return out, nil
}

// ToCandidates canonicalizes links with match, drops those it rejects and
// removes duplicates.
func ToCandidates(links []string, match Matcher, label string) []Candidate {
	seen := make(map[string]struct{}, len(links))
	out := make([]Candidate, 0, len(links))
	for _, l := range links {
		canonical, ok := match(l)
		if !ok {
			continue
		}
		key := dedup.NormalizeURL(canonical)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Candidate{SourceURL: canonical, SourceLabel: label})
	}
	return out
}

// Merge concatenates candidate lists, keeping the first occurrence of each
// normalized URL.
func Merge(lists ...[]Candidate) []Candidate {
	seen := make(map[string]struct{})
	var out []Candidate
	for _, list := range lists {
		for _, c := range list {
			key := dedup.NormalizeURL(c.SourceURL)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
