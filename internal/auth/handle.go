package auth

import (
	"context"
	"sync/atomic"
)

// LoginHandle controls one login attempt started by StartLogin.
type LoginHandle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	final  atomic.Pointer[State]
}

// ID returns the attempt identifier carried in State.AttemptID.
func (h *LoginHandle) ID() string {
	return h.id
}

// Done is closed when the attempt's goroutine has exited.
func (h *LoginHandle) Done() <-chan struct{} {
	return h.done
}

// Cancel asks the attempt to stop at its next wake-up. No credential is
// written by a cancelled attempt.
func (h *LoginHandle) Cancel() {
	h.cancel()
}

// Wait blocks until the attempt exits or ctx is done and returns the
// attempt's final state.
func (h *LoginHandle) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.done:
		return h.Result(), nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Result returns the final state, or the zero State while the attempt runs.
func (h *LoginHandle) Result() State {
	if st := h.final.Load(); st != nil {
		return *st
	}
	return State{}
}
