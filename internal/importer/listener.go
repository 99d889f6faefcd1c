package importer

import (
	"log/slog"
	"sync"
)

// Listener receives progress snapshots. OnProgress is called synchronously
// from the orchestrator and must return quickly.
type Listener interface {
	OnProgress(Snapshot)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Snapshot)

// OnProgress calls f(s).
func (f ListenerFunc) OnProgress(s Snapshot) { f(s) }

// ChannelListener forwards snapshots to a bounded channel. Sends never
// block; a snapshot that does not fit is dropped and logged.
type ChannelListener struct {
	ch     chan Snapshot
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// NewChannelListener creates a listener with the given buffer size.
func NewChannelListener(size int, logger *slog.Logger) *ChannelListener {
	if size <= 0 {
		size = 16
	}
	return &ChannelListener{
		ch:     make(chan Snapshot, size),
		logger: logger.With(slog.String("component", "progress-listener")),
	}
}

// C returns the receive side of the channel.
func (l *ChannelListener) C() <-chan Snapshot { return l.ch }

// OnProgress implements Listener.
func (l *ChannelListener) OnProgress(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- s:
	default:
		l.logger.Warn("progress channel full, dropping snapshot",
			slog.String("run_id", s.RunID),
			slog.Int("current", s.Current))
	}
}

// Close closes the channel. Snapshots delivered afterwards are ignored.
func (l *ChannelListener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
}
