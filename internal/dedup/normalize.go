package dedup

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// punctuation matches anything that is not a letter, digit or space.
var punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// multiSpace collapses runs of whitespace.
var multiSpace = regexp.MustCompile(`\s+`)

// foldMarks builds a fresh transformer per call; transform.Chain is stateful
// and not safe for concurrent use.
func foldMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// NormalizeName lowercases, strips diacritics and punctuation, and collapses
// whitespace so "Sigur Rós – Ágætis byrjun!" and "sigur ros  agaetis byrjun"
// compare closely. Names made only of punctuation ("!!!") keep it, so they
// stay distinct from each other and non-empty.
func NormalizeName(name string) string {
	s := strings.ToLower(name)
	if folded, _, err := transform.String(foldMarks(), s); err == nil {
		s = folded
	}
	if stripped := collapse(punctuation.ReplaceAllString(s, "")); stripped != "" {
		return stripped
	}
	return collapse(s)
}

func collapse(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimFunc(s, unicode.IsSpace)
}

// NormalizeURL strips the query string, fragment and trailing slashes from an
// external URL. The result is the catalog's exact-match key.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, "/")
}

// Thresholds tune the fuzzy name comparison. Two normalized names match when
// they are identical or their edit distance is at most
// min(MaxDistance, floor(Ratio * max(len1, len2))).
type Thresholds struct {
	MaxDistance int
	Ratio       float64
}

// DefaultThresholds returns the stock fuzzy threshold: min(2, 20% of the longer name).
func DefaultThresholds() Thresholds {
	return Thresholds{MaxDistance: 2, Ratio: 0.2}
}

// Allowed returns the edit distance tolerated between names of the given
// rune lengths.
func (t Thresholds) Allowed(len1, len2 int) int {
	longest := max(len1, len2)
	return min(t.MaxDistance, int(t.Ratio*float64(longest)))
}

// NamesMatch reports whether two release names are a fuzzy match.
func (t Thresholds) NamesMatch(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	allowed := t.Allowed(len([]rune(na)), len([]rune(nb)))
	return levenshtein.ComputeDistance(na, nb) <= allowed
}

// ArtistSetsEqual compares artist credits ignoring order, case and diacritics.
func ArtistSetsEqual(a, b []string) bool {
	sa, sb := artistSet(a), artistSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for name := range sa {
		if _, ok := sb[name]; !ok {
			return false
		}
	}
	return true
}

func artistSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if key := NormalizeName(n); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}
