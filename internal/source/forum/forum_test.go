package forum

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func albumMatcher(raw string) (string, bool) {
	const prefix = "https://open.spotify.com/album/"
	if !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	return raw, true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const page1 = `{"data":{"after":"t3_b","children":[
 {"data":{"title":"[FRESH ALBUM] M83","url":"https://open.spotify.com/album/aaa?si=x","selftext":""}},
 {"data":{"title":"discussion","url":"https://www.reddit.com/r/indieheads/comments/1","selftext":"also https://open.spotify.com/album/bbb and https://youtu.be/xyz"}}
]}}`

const page2 = `{"data":{"after":"t3_c","children":[
 {"data":{"title":"repost","url":"https://open.spotify.com/album/aaa","selftext":""}},
 {"data":{"title":"[FRESH ALBUM] new","url":"https://open.spotify.com/album/ccc","selftext":""}}
]}}`

const page3 = `{"data":{"after":null,"children":[]}}`

func TestDiscover(t *testing.T) {
	var afters []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/indieheads/search.json" || r.URL.Query().Get("restrict_sr") != "1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("User-Agent") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		after := r.URL.Query().Get("after")
		afters = append(afters, after)
		switch after {
		case "":
			_, _ = w.Write([]byte(page1))
		case "t3_b":
			_, _ = w.Write([]byte(page2))
		default:
			_, _ = w.Write([]byte(page3))
		}
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, Community: "indieheads", Query: "flair:FRESH", MaxPages: 5}, albumMatcher, testLogger())
	cands, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var got []string
	for _, c := range cands {
		got = append(got, c.SourceURL)
		if c.SourceLabel != "forum:indieheads" {
			t.Errorf("SourceLabel = %q", c.SourceLabel)
		}
	}
	want := "https://open.spotify.com/album/aaa,https://open.spotify.com/album/bbb,https://open.spotify.com/album/ccc"
	if strings.Join(got, ",") != want {
		t.Errorf("candidates = %v", got)
	}
	if len(afters) != 3 {
		t.Errorf("fetched %d pages (%v), want 3", len(afters), afters)
	}
}

func TestDiscover_FirstPageFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, Community: "indieheads", MaxPages: 3}, albumMatcher, testLogger())
	if _, err := s.Discover(context.Background()); err == nil {
		t.Fatal("expected error when the first page fails")
	}
}

func TestDiscover_LaterPageFailureKeepsLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") != "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(page1))
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, Community: "indieheads", MaxPages: 3}, albumMatcher, testLogger())
	cands, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(cands) != 2 {
		t.Errorf("expected 2 candidates from the first page, got %+v", cands)
	}
}
