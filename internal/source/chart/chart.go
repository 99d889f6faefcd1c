// Package chart discovers candidates by scraping album links from a public
// chart page. Pages are addressed with a "page" query parameter.
package chart

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/html"

	"github.com/sydlexius/releasewire/internal/source"
	"github.com/sydlexius/releasewire/internal/version"
)

// Config configures a chart source.
type Config struct {
	URL       string
	MaxPages  int
	PageDelay time.Duration
}

// Source scrapes a paginated chart.
type Source struct {
	cfg    Config
	match  source.Matcher
	client *http.Client
	pacer  *source.Pacer
	logger *slog.Logger
}

// New creates a chart source.
func New(cfg Config, match source.Matcher, logger *slog.Logger) *Source {
	return &Source{
		cfg:    cfg,
		match:  match,
		client: &http.Client{Timeout: 15 * time.Second},
		pacer:  source.NewPacer(cfg.PageDelay),
		logger: logger.With(slog.String("source", "chart")),
	}
}

// Name returns the source label.
func (s *Source) Name() string { return "chart" }

// Discover walks chart pages until one adds no new album links. Navigation
// and other non-album anchors never keep pagination going.
func (s *Source) Discover(ctx context.Context) ([]source.Candidate, error) {
	base, err := url.Parse(s.cfg.URL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid chart url %q", s.cfg.URL)
	}

	links, err := source.Paginate(ctx, s.pacer, s.cfg.MaxPages, s.match,
		func(ctx context.Context, page int, _ string) ([]string, string, error) {
			links, err := s.fetchPage(ctx, base, page)
			if err != nil {
				return nil, "", err
			}
			return links, strconv.Itoa(page + 1), nil
		})
	if err != nil {
		if len(links) == 0 {
			return nil, err
		}
		s.logger.Warn("chart pagination stopped early", slog.Int("links", len(links)), slog.String("error", err.Error()))
	}
	cands := source.ToCandidates(links, s.match, s.Name())
	s.logger.Info("chart discovery finished", slog.Int("candidates", len(cands)))
	return cands, nil
}

func (s *Source) fetchPage(ctx context.Context, base *url.URL, page int) ([]string, error) {
	pageURL := *base
	if page > 1 {
		q := pageURL.Query()
		q.Set("page", strconv.Itoa(page))
		pageURL.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req) //nolint:gosec // URL from operator config
	if err != nil {
		return nil, fmt.Errorf("fetching chart page %d: %w", page, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("chart page %d: unexpected HTTP %d", page, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("parsing chart page %d: %w", page, err)
	}
	return extractLinks(doc, &pageURL), nil
}

// extractLinks returns every anchor href, resolved against base.
func extractLinks(doc *html.Node, base *url.URL) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if ref, err := url.Parse(attr.Val); err == nil {
					out = append(out, base.ResolveReference(ref).String())
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}
