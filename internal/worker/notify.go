// Package worker runs the background pipeline: the ingestion worker drains
// the task queue and the enrichment workers fill in tags, summaries and
// embeddings for stored bookmarks.
package worker

// Signal is a single-slot wake-up channel between pipeline stages. Notify
// never blocks; a notification sent while one is already pending is dropped.
// That is safe because a signal carries no data, only liveness: one pending
// wake-up is enough to make the receiver drain everything available. The
// periodic tick in every worker loop covers lost wake-ups.
type Signal struct {
	ch chan struct{}
}

// NewSignal creates an empty signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Notify wakes the receiver if it is not already pending a wake-up.
func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait returns the channel to select on for wake-ups.
func (s *Signal) Wait() <-chan struct{} {
	return s.ch
}

// Notifier is the sending side of a wake-up channel.
type Notifier interface {
	Notify()
}

// Fanout relays one notification to several downstream signals. Each
// enrichment worker owns its own Signal; a shared channel would wake only
// one of them.
type Fanout struct {
	signals []*Signal
}

// NewFanout creates a fan-out over the given signals.
func NewFanout(signals ...*Signal) *Fanout {
	return &Fanout{signals: signals}
}

// Notify wakes every downstream signal. Never blocks.
func (f *Fanout) Notify() {
	for _, s := range f.signals {
		s.Notify()
	}
}
