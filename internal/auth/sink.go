package auth

import "sync/atomic"

// Sink receives every published State in the order it was published.
// OnStateChanged runs on the goroutine that made the change and must not call
// back into the Authenticator or Session mutators synchronously.
type Sink interface {
	OnStateChanged(State)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(State)

func (f SinkFunc) OnStateChanged(s State) { f(s) }

// SnapshotSink keeps only the latest state, for readers that poll
// (HTTP handlers) instead of reacting to pushes.
type SnapshotSink struct {
	latest atomic.Pointer[State]
}

func (s *SnapshotSink) OnStateChanged(st State) {
	s.latest.Store(&st)
}

// Latest returns the most recent state, or false if none was published yet.
func (s *SnapshotSink) Latest() (State, bool) {
	st := s.latest.Load()
	if st == nil {
		return State{}, false
	}
	return *st, true
}
