package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/waabox/ghlogin/internal/credstore"
	"github.com/waabox/ghlogin/internal/domain"
	"github.com/waabox/ghlogin/internal/metrics"
)

const (
	defaultSlowDownStep = 5 * time.Second
	defaultMaxInterval  = 60 * time.Second
)

// Status texts shown while an attempt is running.
const (
	statusRequestingCode = "Requesting a device code from GitHub..."
	statusWaiting        = "Waiting for authentication..."
	statusPending        = "Waiting for you to authorize in the browser..."
	statusSlowDown       = "Polling slowed down, please wait..."
	statusRetrying       = "Connection error, retrying..."
	statusGranted        = "Authorization granted, fetching your profile..."
)

// Options configures an Authenticator.
type Options struct {
	ClientID     string
	Scope        string
	SlowDownStep time.Duration // added to the interval on slow_down; default 5s
	MaxInterval  time.Duration // cap for slow_down growth; default 60s
	Logger       zerolog.Logger
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithClock replaces the wall clock and the interval sleep. Tests use it to
// run the poll loop without waiting.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Authenticator) {
		a.now = now
		a.sleep = sleep
	}
}

// WithSink subscribes s from construction on.
func WithSink(s Sink) Option {
	return func(a *Authenticator) {
		a.sinks = append(a.sinks, sinkEntry{id: a.nextSinkID, sink: s})
		a.nextSinkID++
	}
}

type sinkEntry struct {
	id   int
	sink Sink
}

// Authenticator drives the GitHub device flow. It owns the authentication
// state and the in-memory credential; both change only through its methods
// and the goroutine of the active attempt.
type Authenticator struct {
	client IdentityClient
	store  credstore.Store
	opts   Options
	log    zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	// mu serializes state changes. deliverMu is taken before mu is released
	// so sinks observe states in publication order.
	mu         sync.Mutex
	deliverMu  sync.Mutex
	sinks      []sinkEntry
	nextSinkID int
	active     *LoginHandle

	state      atomic.Pointer[State]
	credential atomic.Pointer[domain.Credential]
}

// NewAuthenticator creates an Authenticator in the logged out state.
func NewAuthenticator(client IdentityClient, store credstore.Store, opts Options, options ...Option) *Authenticator {
	if opts.SlowDownStep <= 0 {
		opts.SlowDownStep = defaultSlowDownStep
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = defaultMaxInterval
	}
	a := &Authenticator{
		client: client,
		store:  store,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "authenticator").Logger(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, o := range options {
		o(a)
	}
	a.state.Store(&State{Kind: StateLoggedOut, At: a.now()})
	return a
}

// State returns the current state.
func (a *Authenticator) State() State {
	return *a.state.Load()
}

// Credential returns the credential held in memory, if any.
func (a *Authenticator) Credential() (domain.Credential, bool) {
	c := a.credential.Load()
	if c == nil {
		return domain.Credential{}, false
	}
	return *c, true
}

// Subscribe adds s to the sinks notified on every state change.
// The returned function removes it.
func (a *Authenticator) Subscribe(s Sink) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextSinkID
	a.nextSinkID++
	sinks := make([]sinkEntry, 0, len(a.sinks)+1)
	sinks = append(sinks, a.sinks...)
	a.sinks = append(sinks, sinkEntry{id: id, sink: s})
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		kept := make([]sinkEntry, 0, len(a.sinks))
		for _, e := range a.sinks {
			if e.id != id {
				kept = append(kept, e)
			}
		}
		a.sinks = kept
	}
}

// StartLogin begins a device flow attempt and returns without waiting for it.
// The attempt runs on its own goroutine, detached from ctx's cancellation;
// use the returned handle to cancel or await it. Starting a login drops the
// in-memory credential. Returns domain.ErrAlreadyInProgress while another
// attempt is running.
func (a *Authenticator) StartLogin(ctx context.Context) (*LoginHandle, error) {
	a.mu.Lock()
	if a.active != nil {
		a.mu.Unlock()
		return nil, domain.ErrAlreadyInProgress
	}
	attemptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &LoginHandle{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	a.active = h
	a.credential.Store(nil)
	metrics.LoginAttempts.Inc()
	a.log.Info().Str("attempt", h.id).Msg("starting device flow login")
	a.commitAndUnlock(State{Kind: StateAwaitingDeviceCode, AttemptID: h.id, StatusText: statusRequestingCode})

	go a.run(attemptCtx, h)
	return h, nil
}

// CancelLogin signals the active attempt to stop at its next wake-up.
// It reports whether an attempt was running.
func (a *Authenticator) CancelLogin() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return false
	}
	a.active.cancel()
	return true
}

// Active returns the handle of the running attempt, or nil.
func (a *Authenticator) Active() *LoginHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Reset abandons any running attempt, forgets the credential, clears the
// store and publishes StateLoggedOut. Calling it repeatedly is safe.
func (a *Authenticator) Reset() error {
	a.mu.Lock()
	loggedOut := State{Kind: StateLoggedOut}
	if h := a.active; h != nil {
		h.cancel()
		h.final.Store(&loggedOut)
		a.active = nil
	}
	a.credential.Store(nil)
	err := a.store.Clear()
	if err != nil {
		metrics.StoreErrors.WithLabelValues("clear").Inc()
		a.log.Error().Err(err).Msg("clearing stored credential")
		loggedOut.StoreErr = err.Error()
	}
	a.commitAndUnlock(loggedOut)
	return err
}

// adopt installs a credential validated outside a login attempt (startup
// restore or a later re-validation) and publishes StateAuthenticated.
// It does nothing while an attempt is running.
func (a *Authenticator) adopt(cred domain.Credential, identity domain.Identity) bool {
	a.mu.Lock()
	if a.active != nil {
		a.mu.Unlock()
		return false
	}
	if cur := a.credential.Load(); cur != nil && cur.AccessToken != cred.AccessToken {
		// replaced while the caller was validating
		a.mu.Unlock()
		return false
	}
	prev := a.state.Load()
	if prev.Kind == StateAuthenticated && prev.Identity != nil && prev.Identity.Username == identity.Username {
		a.credential.Store(&cred)
		a.mu.Unlock()
		return true
	}
	a.credential.Store(&cred)
	a.commitAndUnlock(State{Kind: StateAuthenticated, Identity: &identity, StatusText: "Logged in as " + identity.Username})
	return true
}

// invalidate drops the in-memory credential if it still carries token and
// publishes StateLoggedOut. The store is left alone.
func (a *Authenticator) invalidate(token string, detail string) {
	a.mu.Lock()
	cur := a.credential.Load()
	if a.active != nil || cur == nil || cur.AccessToken != token {
		a.mu.Unlock()
		return
	}
	a.credential.Store(nil)
	a.commitAndUnlock(State{Kind: StateLoggedOut, StatusText: "GitHub no longer accepts the saved token.", Detail: detail})
}

// commitAndUnlock publishes next and notifies sinks. It must be called with
// a.mu held and returns with a.mu released.
func (a *Authenticator) commitAndUnlock(next State) {
	prev := a.state.Load()
	next.Seq = prev.Seq + 1
	if next.At.IsZero() {
		next.At = a.now()
	}
	a.state.Store(&next)
	sinks := a.sinks

	a.deliverMu.Lock()
	a.mu.Unlock()
	defer a.deliverMu.Unlock()
	for _, e := range sinks {
		e.sink.OnStateChanged(next)
	}
}

// update publishes next for h if h is still the active attempt.
func (a *Authenticator) update(h *LoginHandle, next State) bool {
	a.mu.Lock()
	if a.active != h {
		a.mu.Unlock()
		return false
	}
	next.AttemptID = h.id
	a.commitAndUnlock(next)
	return true
}

// status republishes the current state of h with a new status text.
func (a *Authenticator) status(h *LoginHandle, text string) {
	a.mu.Lock()
	cur := a.state.Load()
	if a.active != h || cur.StatusText == text {
		a.mu.Unlock()
		return
	}
	next := *cur
	next.StatusText = text
	next.At = time.Time{}
	a.commitAndUnlock(next)
}

// finish publishes the terminal state of h and releases the attempt slot.
func (a *Authenticator) finish(h *LoginHandle, next State) {
	a.mu.Lock()
	if a.active != h {
		a.mu.Unlock()
		return
	}
	a.active = nil
	next.AttemptID = h.id
	h.final.Store(&next)
	metrics.LoginOutcomes.WithLabelValues(outcomeLabel(next)).Inc()
	ev := a.log.Info().Str("attempt", h.id).Str("state", string(next.Kind))
	if next.Reason != "" {
		ev = ev.Str("reason", string(next.Reason)).Str("detail", next.Detail)
	}
	ev.Msg("device flow login finished")
	a.commitAndUnlock(next)
}

func outcomeLabel(s State) string {
	switch s.Kind {
	case StateFailed:
		return string(s.Reason)
	case StateLoggedOut:
		return "cancelled"
	default:
		return string(s.Kind)
	}
}

func cancelledState() State {
	return State{Kind: StateLoggedOut, StatusText: "Login cancelled."}
}

// run is the body of one login attempt.
func (a *Authenticator) run(ctx context.Context, h *LoginHandle) {
	defer close(h.done)
	defer h.cancel()

	requested := a.now()
	authz, err := a.client.RequestDeviceCode(ctx, a.opts.ClientID, a.opts.Scope)
	if err != nil {
		if ctx.Err() != nil {
			a.finish(h, cancelledState())
			return
		}
		reason := ReasonNetwork
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			reason = ReasonProtocol
		}
		a.finish(h, State{
			Kind:       StateFailed,
			Reason:     reason,
			Detail:     err.Error(),
			StatusText: "Failed to start the authentication process.",
		})
		return
	}

	if !a.update(h, State{Kind: StateAwaitingUserAuthorization, Authorization: &authz, StatusText: statusWaiting}) {
		return
	}
	a.poll(ctx, h, authz, requested.Add(authz.Lifetime()))
}

// poll runs the token loop until a terminal outcome, the deadline, or cancellation.
func (a *Authenticator) poll(ctx context.Context, h *LoginHandle, authz domain.DeviceAuthorization, deadline time.Time) {
	interval := authz.PollInterval()
	if interval <= 0 {
		interval = defaultInterval * time.Second
	}
	ceiling := a.opts.MaxInterval
	if interval > ceiling {
		ceiling = interval
	}

	for {
		if err := a.sleep(ctx, interval); err != nil || ctx.Err() != nil {
			a.finish(h, cancelledState())
			return
		}
		if !a.now().Before(deadline) {
			a.finish(h, State{Kind: StateFailed, Reason: ReasonExpired, Detail: "device code expired", StatusText: "Authentication timed out. Please try again."})
			return
		}

		// An in-flight poll is not interrupted by cancellation; its result is discarded.
		res, err := a.client.PollToken(context.WithoutCancel(ctx), a.opts.ClientID, authz.DeviceCode)
		if ctx.Err() != nil {
			a.finish(h, cancelledState())
			return
		}
		if err != nil {
			var transient *TransientError
			if !errors.As(err, &transient) {
				metrics.TokenPolls.WithLabelValues("error").Inc()
				a.finish(h, State{Kind: StateFailed, Reason: ReasonPollError, Detail: err.Error(), StatusText: "Error: " + err.Error()})
				return
			}
			metrics.TokenPolls.WithLabelValues("transient").Inc()
			a.log.Warn().Err(err).Str("attempt", h.id).Msg("token poll failed, retrying")
			a.status(h, statusRetrying)
			continue
		}
		metrics.TokenPolls.WithLabelValues(res.Kind.String()).Inc()

		switch res.Kind {
		case PollPending:
			a.status(h, statusPending)
		case PollSlowDown:
			// never poll faster than GitHub asked for
			if server := time.Duration(res.Interval) * time.Second; server > ceiling {
				ceiling = server
			}
			interval = a.slowDown(interval, res.Interval, ceiling)
			a.log.Debug().Str("attempt", h.id).Dur("interval", interval).Msg("slowing down token polling")
			a.status(h, statusSlowDown)
		case PollGranted:
			a.complete(ctx, h, res.AccessToken)
			return
		case PollExpired:
			a.finish(h, State{Kind: StateFailed, Reason: ReasonExpired, Detail: "device code expired", StatusText: "Code expired. Please try again."})
			return
		case PollDenied:
			a.finish(h, State{Kind: StateFailed, Reason: ReasonDenied, Detail: "authorization denied by user", StatusText: "Authorization denied. Please try again."})
			return
		default:
			a.finish(h, State{Kind: StateFailed, Reason: ReasonPollError, Detail: res.Detail, StatusText: "Error: " + res.Detail})
			return
		}
	}
}

// slowDown grows the interval after a slow_down answer. It never shrinks.
func (a *Authenticator) slowDown(cur time.Duration, serverSeconds int, ceiling time.Duration) time.Duration {
	next := cur + a.opts.SlowDownStep
	if server := time.Duration(serverSeconds) * time.Second; server > next {
		next = server
	}
	if next > ceiling {
		next = ceiling
	}
	if next < cur {
		next = cur
	}
	return next
}

// complete persists a granted token, resolves the identity and finishes h.
func (a *Authenticator) complete(ctx context.Context, h *LoginHandle, token string) {
	a.mu.Lock()
	if a.active != h || ctx.Err() != nil {
		a.mu.Unlock()
		a.finish(h, cancelledState())
		return
	}
	cred := domain.Credential{AccessToken: token, ObtainedAt: a.now()}
	var storeErr string
	if err := a.store.Save(cred); err != nil {
		metrics.StoreErrors.WithLabelValues("save").Inc()
		a.log.Error().Err(err).Msg("saving credential; the login will not survive a restart")
		storeErr = err.Error()
	}
	a.credential.Store(&cred)
	next := *a.state.Load()
	next.StatusText = statusGranted
	next.StoreErr = storeErr
	next.At = time.Time{}
	a.commitAndUnlock(next)

	identity, err := a.client.FetchUser(context.WithoutCancel(ctx), token)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			metrics.IdentityChecks.WithLabelValues("rejected").Inc()
			a.mu.Lock()
			if a.active == h {
				a.credential.Store(nil)
				if clearErr := a.store.Clear(); clearErr != nil {
					metrics.StoreErrors.WithLabelValues("clear").Inc()
					a.log.Error().Err(clearErr).Msg("clearing rejected credential")
				}
			}
			a.mu.Unlock()
			a.finish(h, State{Kind: StateFailed, Reason: ReasonUnauthorized, Detail: err.Error(), StatusText: "GitHub rejected the new token.", StoreErr: storeErr})
			return
		}
		metrics.IdentityChecks.WithLabelValues("error").Inc()
		a.finish(h, State{Kind: StateFailed, Reason: ReasonIdentity, Detail: err.Error(), StatusText: "Could not fetch your GitHub profile.", StoreErr: storeErr})
		return
	}
	metrics.IdentityChecks.WithLabelValues("ok").Inc()
	a.finish(h, State{
		Kind:       StateAuthenticated,
		Identity:   &identity,
		StatusText: fmt.Sprintf("Authentication successful! Welcome, %s.", identity.Username),
		StoreErr:   storeErr,
	})
}

// Shutdown cancels the running attempt, if any, and waits for it to exit.
func (a *Authenticator) Shutdown(ctx context.Context) error {
	h := a.Active()
	if h == nil {
		return nil
	}
	h.Cancel()
	_, err := h.Wait(ctx)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
