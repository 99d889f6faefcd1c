package importer

import "sync"

// Stage is the phase of an import run. Runs move fetching -> importing ->
// complete and never go back.
type Stage string

const (
	StageFetching  Stage = "fetching"
	StageImporting Stage = "importing"
	StageComplete  Stage = "complete"
)

// Snapshot is an immutable copy of a run's progress. The slices are owned by
// the snapshot; the orchestrator never writes to them after handing it out.
type Snapshot struct {
	RunID        string   `json:"run_id"`
	Stage        Stage    `json:"stage"`
	Current      int      `json:"current"`
	Total        int      `json:"total"`
	CurrentLabel string   `json:"current_label,omitempty"`
	Created      []string `json:"created"`
	Skipped      []string `json:"skipped"`
	Errors       []string `json:"errors"`
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeSkipped
	outcomeError
)

// progress is the live aggregate for one run. All mutation goes through its
// methods, which also deliver the resulting snapshot to the listener while
// still holding the lock so listeners observe snapshots in order.
type progress struct {
	mu       sync.Mutex
	snap     Snapshot
	listener Listener
}

func newProgress(runID string, l Listener) *progress {
	return &progress{
		snap: Snapshot{
			RunID:   runID,
			Stage:   StageFetching,
			Created: []string{},
			Skipped: []string{},
			Errors:  []string{},
		},
		listener: l,
	}
}

// start emits the initial fetching snapshot.
func (p *progress) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitLocked()
}

// beginImport fixes total and moves to the importing stage.
func (p *progress) beginImport(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Stage = StageImporting
	p.snap.Total = total
	p.emitLocked()
}

// record appends one candidate outcome and advances current.
func (p *progress) record(o outcome, label, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch o {
	case outcomeCreated:
		p.snap.Created = append(p.snap.Created, message)
	case outcomeSkipped:
		p.snap.Skipped = append(p.snap.Skipped, message)
	default:
		p.snap.Errors = append(p.snap.Errors, message)
	}
	p.snap.Current++
	p.snap.CurrentLabel = label
	p.emitLocked()
}

func (p *progress) complete() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Stage = StageComplete
	p.snap.CurrentLabel = ""
	p.emitLocked()
	return p.copyLocked()
}

func (p *progress) emitLocked() {
	if p.listener == nil {
		return
	}
	p.listener.OnProgress(p.copyLocked())
}

func (p *progress) copyLocked() Snapshot {
	s := p.snap
	s.Created = append([]string(nil), p.snap.Created...)
	s.Skipped = append([]string(nil), p.snap.Skipped...)
	s.Errors = append([]string(nil), p.snap.Errors...)
	if s.Created == nil {
		s.Created = []string{}
	}
	if s.Skipped == nil {
		s.Skipped = []string{}
	}
	if s.Errors == nil {
		s.Errors = []string{}
	}
	return s
}
