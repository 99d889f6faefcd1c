package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/releasewire/internal/dedup"
	"github.com/sydlexius/releasewire/internal/event"
	"github.com/sydlexius/releasewire/internal/provider"
	"github.com/sydlexius/releasewire/internal/release"
	"github.com/sydlexius/releasewire/internal/source"
)

// Resolver turns a candidate into a validated release.
type Resolver interface {
	Resolve(ctx context.Context, c source.Candidate) (*release.Release, error)
}

// Deduper answers whether a candidate or release is already in the catalog.
type Deduper interface {
	IsKnownURL(ctx context.Context, rawURL string) (bool, error)
	IsDuplicate(ctx context.Context, s dedup.Subject) (dedup.Decision, error)
}

// Writer persists artists and releases.
type Writer interface {
	FindOrCreateArtist(ctx context.Context, name, externalID string) (string, error)
	UpsertRelease(ctx context.Context, r *release.Release, artistIDs []string) (string, error)
}

// TokenSource is checked once before discovery so a bad credential fails
// the run up front instead of once per candidate.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ErrSystemic aborts a run before any candidate is imported.
type ErrSystemic struct {
	Reason string
	Cause  error
}

func (e *ErrSystemic) Error() string {
	if e.Cause == nil {
		return "import aborted: " + e.Reason
	}
	return fmt.Sprintf("import aborted: %s: %v", e.Reason, e.Cause)
}

func (e *ErrSystemic) Unwrap() error { return e.Cause }

// Summary is the result of a completed run.
type Summary struct {
	RunID         string   `json:"run_id"`
	Created       int      `json:"created"`
	Skipped       int      `json:"skipped"`
	Errors        int      `json:"errors"`
	CreatedItems  []string `json:"created_items"`
	SkippedItems  []string `json:"skipped_items"`
	ErrorMessages []string `json:"error_messages"`
}

// Options controls batch pacing.
type Options struct {
	BatchSize  int
	Stagger    time.Duration
	BatchDelay time.Duration
}

// DefaultOptions returns the pacing used when none is configured.
func DefaultOptions() Options {
	return Options{BatchSize: 4, Stagger: 250 * time.Millisecond, BatchDelay: time.Second}
}

// Deps are the collaborators of an Orchestrator. Tokens and Bus are optional.
type Deps struct {
	Sources  []source.Source
	Resolver Resolver
	Dedup    Deduper
	Writer   Writer
	Tokens   TokenSource
	Bus      *event.Bus
}

// Orchestrator drives candidates from discovery through resolution,
// deduplication and persistence in bounded batches.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator.
func New(deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger.With(slog.String("component", "importer")),
		sleep:  sleepCtx,
	}
}

// ImportFromSource runs one import over the configured sources.
func (o *Orchestrator) ImportFromSource(ctx context.Context, principalID string, l Listener) (*Summary, error) {
	return o.ImportSources(ctx, principalID, o.deps.Sources, l)
}

// ImportSources runs one import over the given sources instead of the
// configured ones. It returns *ErrSystemic when credentials cannot be
// obtained or discovery finds nothing, and *provider.ErrAuth when the
// metadata service rejects the credential mid-run. Per-candidate failures
// are reported in the Summary, never as an error.
func (o *Orchestrator) ImportSources(ctx context.Context, principalID string, sources []source.Source, l Listener) (*Summary, error) {
	runID := uuid.New().String()
	logger := o.logger.With(slog.String("run_id", runID), slog.String("principal", principalID))
	p := newProgress(runID, l)

	o.publish(event.ImportStarted, runID, principalID, map[string]any{"sources": len(sources)})
	logger.Info("import started", slog.Int("sources", len(sources)))
	p.start()

	if o.deps.Tokens != nil {
		if _, err := o.deps.Tokens.Token(ctx); err != nil {
			return nil, o.fail(logger, runID, principalID, &ErrSystemic{Reason: "acquiring credentials", Cause: err})
		}
	}

	candidates := o.discover(ctx, sources, logger)
	if len(candidates) == 0 {
		return nil, o.fail(logger, runID, principalID, &ErrSystemic{Reason: "no candidates discovered", Cause: ctx.Err()})
	}

	p.beginImport(len(candidates))
	logger.Info("discovery finished", slog.Int("candidates", len(candidates)))

	if err := o.process(ctx, principalID, candidates, p, logger); err != nil {
		return nil, o.fail(logger, runID, principalID, err)
	}

	final := p.complete()
	sum := &Summary{
		RunID:         runID,
		Created:       len(final.Created),
		Skipped:       len(final.Skipped),
		Errors:        len(final.Errors),
		CreatedItems:  final.Created,
		SkippedItems:  final.Skipped,
		ErrorMessages: final.Errors,
	}

	o.publish(event.ImportCompleted, runID, principalID, map[string]any{
		"created": sum.Created,
		"skipped": sum.Skipped,
		"errors":  sum.Errors,
	})
	logger.Info("import completed",
		slog.Int("created", sum.Created),
		slog.Int("skipped", sum.Skipped),
		slog.Int("errors", sum.Errors))
	return sum, nil
}

// discover queries every source concurrently. A failing source is logged
// and contributes nothing; results are merged in source order so the first
// source to report a URL keeps its label.
func (o *Orchestrator) discover(ctx context.Context, sources []source.Source, logger *slog.Logger) []source.Candidate {
	lists := make([][]source.Candidate, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			cands, err := src.Discover(ctx)
			if err != nil {
				logger.Warn("source discovery failed",
					slog.String("source", src.Name()),
					slog.String("error", err.Error()))
				return nil
			}
			logger.Debug("source discovery finished",
				slog.String("source", src.Name()),
				slog.Int("candidates", len(cands)))
			lists[i] = cands
			return nil
		})
	}
	_ = g.Wait()
	return source.Merge(lists...)
}

// process imports candidates batch by batch. Items in a batch start
// Stagger apart and the whole batch finishes before the next one begins.
// Only fatal errors (auth rejection, cancellation) are returned.
func (o *Orchestrator) process(ctx context.Context, principalID string, candidates []source.Candidate, p *progress, logger *slog.Logger) error {
	size := o.opts.BatchSize
	for start := 0; start < len(candidates); start += size {
		end := min(start+size, len(candidates))

		g, gctx := errgroup.WithContext(ctx)
		for i, c := range candidates[start:end] {
			if i > 0 && o.opts.Stagger > 0 {
				if err := o.sleep(gctx, o.opts.Stagger); err != nil {
					break
				}
			}
			g.Go(func() error {
				return o.importOne(gctx, principalID, c, p, logger)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if end < len(candidates) && o.opts.BatchDelay > 0 {
			if err := o.sleep(ctx, o.opts.BatchDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) importOne(ctx context.Context, principalID string, c source.Candidate, p *progress, logger *slog.Logger) error {
	label := c.SourceURL
	fail := func(err error) error {
		var authErr *provider.ErrAuth
		if errors.As(err, &authErr) {
			return err
		}
		logger.Warn("candidate failed", slog.String("url", c.SourceURL), slog.String("error", err.Error()))
		p.record(outcomeError, label, fmt.Sprintf("%s: %v", label, err))
		return nil
	}
	skip := func(reason string) error {
		logger.Debug("candidate skipped", slog.String("label", label), slog.String("reason", reason))
		p.record(outcomeSkipped, label, label)
		return nil
	}

	known, err := o.deps.Dedup.IsKnownURL(ctx, c.SourceURL)
	if err != nil {
		return fail(fmt.Errorf("checking catalog: %w", err))
	}
	if known {
		return skip(string(dedup.ReasonURL))
	}

	rel, err := o.deps.Resolver.Resolve(ctx, c)
	if err != nil {
		return fail(err)
	}
	label = rel.Label()
	rel.ImportedBy = principalID

	dec, err := o.deps.Dedup.IsDuplicate(ctx, rel.Subject())
	if err != nil {
		return fail(fmt.Errorf("checking duplicates: %w", err))
	}
	if dec.Duplicate {
		return skip(string(dec.Reason))
	}

	artistIDs := make([]string, 0, len(rel.Artists))
	for _, a := range rel.Artists {
		id, err := o.deps.Writer.FindOrCreateArtist(ctx, a.Name, a.ExternalID)
		if err != nil {
			return fail(fmt.Errorf("storing artist %q: %w", a.Name, err))
		}
		artistIDs = append(artistIDs, id)
	}

	id, err := o.deps.Writer.UpsertRelease(ctx, rel, artistIDs)
	var partial *release.ErrPartialWrite
	switch {
	case errors.Is(err, release.ErrDuplicateConflict):
		return skip("conflict")
	case errors.As(err, &partial):
		logger.Warn("release stored with incomplete details",
			slog.String("release_id", partial.ReleaseID),
			slog.String("error", err.Error()))
		id = partial.ReleaseID
	case err != nil:
		return fail(fmt.Errorf("storing release: %w", err))
	}

	logger.Info("release imported", slog.String("release_id", id), slog.String("label", label))
	p.record(outcomeCreated, label, label)
	return nil
}

func (o *Orchestrator) fail(logger *slog.Logger, runID, principalID string, err error) error {
	logger.Error("import failed", slog.String("error", err.Error()))
	o.publish(event.ImportFailed, runID, principalID, map[string]any{"error": err.Error()})
	return err
}

func (o *Orchestrator) publish(t event.Type, runID, principalID string, data map[string]any) {
	if o.deps.Bus == nil {
		return
	}
	o.deps.Bus.Publish(event.Event{Type: t, RunID: runID, PrincipalID: principalID, Data: data})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
