package release

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sydlexius/releasewire/internal/dedup"
)

// DateLayout is the storage and wire format for release dates.
const DateLayout = "2006-01-02"

// Type classifies a release.
type Type string

const (
	TypeSingle      Type = "single"
	TypeEP          Type = "ep"
	TypeLP          Type = "lp"
	TypeCompilation Type = "compilation"
)

// ParseType maps a source-supplied tag onto a Type. Unknown tags return "".
func ParseType(s string) Type {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return TypeSingle
	case "ep":
		return TypeEP
	case "lp", "album":
		return TypeLP
	case "compilation":
		return TypeCompilation
	default:
		return ""
	}
}

// Valid reports whether t is one of the known release types.
func (t Type) Valid() bool {
	switch t {
	case TypeSingle, TypeEP, TypeLP, TypeCompilation:
		return true
	}
	return false
}

// ArtistCredit is one credited artist, in billing order.
type ArtistCredit struct {
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
}

// Track is one track of a release.
type Track struct {
	Name        string `json:"name"`
	TrackNumber int    `json:"track_number"`
	DurationMs  int    `json:"duration_ms"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

// Release is the canonical record of a resolved release.
type Release struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        Type           `json:"release_type"`
	CoverURL    string         `json:"cover_url,omitempty"`
	Genres      []string       `json:"genres"`
	RecordLabel string         `json:"record_label,omitempty"`
	ReleaseDate time.Time      `json:"release_date"`
	TrackCount  int            `json:"track_count"`
	Artists     []ArtistCredit `json:"artists"`
	Tracks      []Track        `json:"tracks"`
	ExternalURL string         `json:"external_url"`
	ImportedBy  string         `json:"imported_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Label is the human-readable "Artist - Name" form used in progress reports.
func (r *Release) Label() string {
	names := r.ArtistNames()
	if len(names) == 0 {
		return r.Name
	}
	return strings.Join(names, ", ") + " - " + r.Name
}

// ArtistNames returns the credited artist names in order.
func (r *Release) ArtistNames() []string {
	names := make([]string, 0, len(r.Artists))
	for _, a := range r.Artists {
		names = append(names, a.Name)
	}
	return names
}

// Subject adapts the release for a duplicate check.
func (r *Release) Subject() dedup.Subject {
	return dedup.Subject{
		Name:        r.Name,
		ExternalURL: r.ExternalURL,
		Artists:     r.ArtistNames(),
		ReleaseDate: r.ReleaseDate,
	}
}

// Validate checks the fields the catalog requires.
func (r *Release) Validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return &ErrValidation{Field: "name", Reason: "is required"}
	case dedup.NormalizeURL(r.ExternalURL) == "":
		return &ErrValidation{Field: "external_url", Reason: "is required"}
	case !r.Type.Valid():
		return &ErrValidation{Field: "release_type", Reason: fmt.Sprintf("unknown type %q", r.Type)}
	case r.ReleaseDate.IsZero():
		return &ErrValidation{Field: "release_date", Reason: "is required"}
	case len(r.Artists) == 0:
		return &ErrValidation{Field: "artists", Reason: "at least one artist is required"}
	case r.TrackCount < 0:
		return &ErrValidation{Field: "track_count", Reason: "must not be negative"}
	}
	for i, a := range r.Artists {
		if strings.TrimSpace(a.Name) == "" {
			return &ErrValidation{Field: fmt.Sprintf("artists[%d].name", i), Reason: "is required"}
		}
	}
	for i, t := range r.Tracks {
		if t.TrackNumber <= 0 {
			return &ErrValidation{Field: fmt.Sprintf("tracks[%d].track_number", i), Reason: "must be positive"}
		}
	}
	return nil
}

// CleanGenres trims, title-cases and de-duplicates genre names, keeping the
// first spelling seen.
func CleanGenres(in []string) []string {
	caser := cases.Title(language.English)
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, g := range in {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		key := strings.ToLower(g)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, caser.String(g))
	}
	return out
}

// MarshalStringSlice encodes a string slice as a JSON array string.
func MarshalStringSlice(s []string) string {
	if s == nil {
		return "[]"
	}
	data, _ := json.Marshal(s)
	return string(data)
}

// UnmarshalStringSlice decodes a JSON array string into a string slice.
func UnmarshalStringSlice(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var s []string
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil
	}
	return s
}
