// Package forum discovers candidates from a forum search feed that pages
// with an "after" cursor (the reddit listing format).
package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sydlexius/releasewire/internal/source"
	"github.com/sydlexius/releasewire/internal/version"
)

const pageSize = 100

// linkPattern finds links embedded in post bodies.
var linkPattern = regexp.MustCompile(`https?://[^\s)\]>"']+`)

// Config configures a forum source.
type Config struct {
	BaseURL   string
	Community string
	Query     string
	MaxPages  int
	PageDelay time.Duration
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	SelfText string `json:"selftext"`
}

// Source searches one community and collects album links from matching
// posts.
type Source struct {
	cfg    Config
	match  source.Matcher
	client *http.Client
	pacer  *source.Pacer
	logger *slog.Logger
}

// New creates a forum source.
func New(cfg Config, match source.Matcher, logger *slog.Logger) *Source {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Source{
		cfg:    cfg,
		match:  match,
		client: &http.Client{Timeout: 15 * time.Second},
		pacer:  source.NewPacer(cfg.PageDelay),
		logger: logger.With(slog.String("source", "forum"), slog.String("community", cfg.Community)),
	}
}

// Name returns the source label.
func (s *Source) Name() string { return "forum:" + s.cfg.Community }

// Discover pages through the search feed. A page failure after at least one
// good page is logged and the links found so far are kept.
func (s *Source) Discover(ctx context.Context) ([]source.Candidate, error) {
	links, err := source.Paginate(ctx, s.pacer, s.cfg.MaxPages, s.match, s.fetchPage)
	if err != nil {
		if len(links) == 0 {
			return nil, err
		}
		s.logger.Warn("forum pagination stopped early", slog.Int("links", len(links)), slog.String("error", err.Error()))
	}
	cands := source.ToCandidates(links, s.match, s.Name())
	s.logger.Info("forum discovery finished", slog.Int("candidates", len(cands)))
	return cands, nil
}

func (s *Source) fetchPage(ctx context.Context, page int, after string) ([]string, string, error) {
	params := url.Values{
		"q":           {s.cfg.Query},
		"restrict_sr": {"1"},
		"sort":        {"new"},
		"limit":       {strconv.Itoa(pageSize)},
	}
	if after != "" {
		params.Set("after", after)
	}
	reqURL := s.cfg.BaseURL + "/r/" + url.PathEscape(s.cfg.Community) + "/search.json?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")

	s.logger.Debug("fetching page", slog.Int("page", page), slog.String("url", reqURL))

	resp, err := s.client.Do(req) //nolint:gosec // URL built from configured base
	if err != nil {
		return nil, "", fmt.Errorf("fetching forum page %d: %w", page, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, "", fmt.Errorf("forum page %d: unexpected HTTP %d", page, resp.StatusCode)
	}

	var l listing
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4*1024*1024)).Decode(&l); err != nil {
		return nil, "", fmt.Errorf("parsing forum page %d: %w", page, err)
	}

	var links []string
	for _, child := range l.Data.Children {
		links = append(links, postLinks(child.Data)...)
	}
	return links, l.Data.After, nil
}

func postLinks(p post) []string {
	var out []string
	if p.URL != "" {
		out = append(out, p.URL)
	}
	out = append(out, linkPattern.FindAllString(p.SelfText, -1)...)
	return out
}
