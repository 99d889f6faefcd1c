// Package link wraps a single user-supplied release link as a source.
package link

import (
	"context"
	"fmt"

	"github.com/sydlexius/releasewire/internal/source"
)

// Source yields exactly one candidate.
type Source struct {
	raw   string
	match source.Matcher
}

// New creates a link source.
func New(raw string, match source.Matcher) *Source {
	return &Source{raw: raw, match: match}
}

// Name returns the source label.
func (s *Source) Name() string { return "link" }

// Discover returns the canonical form of the link, or an error when the
// metadata service cannot resolve links of that shape.
func (s *Source) Discover(context.Context) ([]source.Candidate, error) {
	canonical, ok := s.match(s.raw)
	if !ok {
		return nil, fmt.Errorf("unsupported release link %q", s.raw)
	}
	return []source.Candidate{{SourceURL: canonical, SourceLabel: s.Name()}}, nil
}
