package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sydlexius/releasewire/internal/source"
	"github.com/sydlexius/releasewire/internal/source/link"
)

// ErrRunActive is returned when an import is requested while another one
// is still running.
var ErrRunActive = errors.New("an import is already running")

// ErrUnsupportedLink is returned for a link the metadata service cannot
// resolve.
var ErrUnsupportedLink = errors.New("unsupported release link")

// Status describes the most recent run.
type Status struct {
	Active   bool      `json:"active"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Summary  *Summary  `json:"summary,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Runner allows one import at a time and remembers the latest progress so
// it can be polled. The CLI, the HTTP API and the scheduler all go through
// a Runner.
type Runner struct {
	orch   *Orchestrator
	match  source.Matcher
	logger *slog.Logger

	mu      sync.Mutex
	active  bool
	latest  *Snapshot
	summary *Summary
	lastErr error
}

// NewRunner creates a runner. match canonicalizes single-link imports.
func NewRunner(orch *Orchestrator, match source.Matcher, logger *slog.Logger) *Runner {
	return &Runner{
		orch:   orch,
		match:  match,
		logger: logger.With(slog.String("component", "import-runner")),
	}
}

// Run imports synchronously. An empty link runs the configured sources.
// extra, when non-nil, also receives every snapshot.
func (r *Runner) Run(ctx context.Context, principalID, rawLink string, extra Listener) (*Summary, error) {
	sources, err := r.sourcesFor(rawLink)
	if err != nil {
		return nil, err
	}
	if !r.acquire() {
		return nil, ErrRunActive
	}
	return r.run(ctx, principalID, sources, extra, nil)
}

// Start launches an import in the background and returns its run ID once
// the run has begun. ctx bounds the run itself, not the call.
func (r *Runner) Start(ctx context.Context, principalID, rawLink string) (string, error) {
	sources, err := r.sourcesFor(rawLink)
	if err != nil {
		return "", err
	}
	if !r.acquire() {
		return "", ErrRunActive
	}

	started := make(chan string, 1)
	go func() {
		if _, err := r.run(ctx, principalID, sources, nil, started); err != nil {
			r.logger.Warn("background import failed", slog.String("error", err.Error()))
		}
	}()
	return <-started, nil
}

// Status returns the state of the current or most recent run.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{Active: r.active, Snapshot: r.latest, Summary: r.summary}
	if r.lastErr != nil {
		st.Error = r.lastErr.Error()
	}
	return st
}

func (r *Runner) sourcesFor(rawLink string) ([]source.Source, error) {
	if rawLink == "" {
		return r.orch.deps.Sources, nil
	}
	if _, ok := r.match(rawLink); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLink, rawLink)
	}
	return []source.Source{link.New(rawLink, r.match)}, nil
}

func (r *Runner) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return false
	}
	r.active = true
	r.latest = nil
	r.summary = nil
	r.lastErr = nil
	return true
}

func (r *Runner) run(ctx context.Context, principalID string, sources []source.Source, extra Listener, started chan<- string) (*Summary, error) {
	var once sync.Once
	l := ListenerFunc(func(s Snapshot) {
		r.mu.Lock()
		r.latest = &s
		r.mu.Unlock()
		if started != nil {
			once.Do(func() { started <- s.RunID })
		}
		if extra != nil {
			extra.OnProgress(s)
		}
	})

	sum, err := r.orch.ImportSources(ctx, principalID, sources, l)

	r.mu.Lock()
	r.active = false
	r.summary = sum
	r.lastErr = err
	r.mu.Unlock()
	return sum, err
}
