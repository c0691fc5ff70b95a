package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/waabox/ghlogin/internal/auth"
	"github.com/waabox/ghlogin/internal/domain"
)

var testAuthorization = domain.DeviceAuthorization{
	DeviceCode:      "d1",
	UserCode:        "WXYZ-1234",
	VerificationURI: "https://github.com/login/device",
	ExpiresIn:       900,
	Interval:        5,
}

type pollStep struct {
	res auth.PollResult
	err error
}

// fakeClient replays scripted GitHub answers. Once the script runs out every
// poll answers authorization_pending.
type fakeClient struct {
	mu         sync.Mutex
	authz      domain.DeviceAuthorization
	deviceErr  error
	polls      []pollStep
	pollCalls  int
	userCalls  int
	fetchUser  func(token string) (domain.Identity, error)
	userTokens []string
}

func newFakeClient(polls ...pollStep) *fakeClient {
	return &fakeClient{authz: testAuthorization, polls: polls}
}

func (c *fakeClient) RequestDeviceCode(ctx context.Context, clientID, scope string) (domain.DeviceAuthorization, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deviceErr != nil {
		return domain.DeviceAuthorization{}, c.deviceErr
	}
	return c.authz, nil
}

func (c *fakeClient) PollToken(ctx context.Context, clientID, deviceCode string) (auth.PollResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pollCalls++
	if len(c.polls) == 0 {
		return auth.PollResult{Kind: auth.PollPending}, nil
	}
	step := c.polls[0]
	c.polls = c.polls[1:]
	return step.res, step.err
}

func (c *fakeClient) FetchUser(ctx context.Context, token string) (domain.Identity, error) {
	c.mu.Lock()
	c.userCalls++
	c.userTokens = append(c.userTokens, token)
	fn := c.fetchUser
	c.mu.Unlock()
	if fn != nil {
		return fn(token)
	}
	return domain.Identity{Username: "alice", RawProfile: map[string]any{"login": "alice"}}, nil
}

func (c *fakeClient) setFetchUser(fn func(token string) (domain.Identity, error)) {
	c.mu.Lock()
	c.fetchUser = fn
	c.mu.Unlock()
}

func (c *fakeClient) counts() (polls, users int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollCalls, c.userCalls
}

func pending() pollStep  { return pollStep{res: auth.PollResult{Kind: auth.PollPending}} }
func slowDown() pollStep { return pollStep{res: auth.PollResult{Kind: auth.PollSlowDown}} }
func granted(token string) pollStep {
	return pollStep{res: auth.PollResult{Kind: auth.PollGranted, AccessToken: token}}
}

// memStore is an in-memory credstore.Store with error injection.
type memStore struct {
	mu       sync.Mutex
	cred     *domain.Credential
	saveErr  error
	clearErr error
	saves    int
	clears   int
}

func (s *memStore) Load() (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil, nil
	}
	c := *s.cred
	return &c, nil
}

func (s *memStore) Save(cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.cred = &cred
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	if s.clearErr != nil {
		return s.clearErr
	}
	s.cred = nil
	return nil
}

func (s *memStore) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return ""
	}
	return s.cred.AccessToken
}

// fakeClock advances instantly on Sleep and records every requested interval.
// onSleep runs before the sleep returns, with the 1-based call number.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(ctx context.Context, n int)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)
	hook := c.onSleep
	c.mu.Unlock()

	if hook != nil {
		hook(ctx, n)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// blockOnSleep parks the poll loop until the attempt is cancelled.
func blockOnSleep(ctx context.Context, _ int) {
	<-ctx.Done()
}

// recorder keeps every published state.
type recorder struct {
	mu     sync.Mutex
	states []auth.State
}

func (r *recorder) OnStateChanged(s auth.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) all() []auth.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auth.State(nil), r.states...)
}

// entered counts how often kind was entered from a different kind.
func (r *recorder) entered(kind auth.StateKind) int {
	n := 0
	prev := auth.StateKind("")
	for _, s := range r.all() {
		if s.Kind == kind && prev != kind {
			n++
		}
		prev = s.Kind
	}
	return n
}

func newTestAuthenticator(client auth.IdentityClient, store *memStore, clock *fakeClock, opts auth.Options) (*auth.Authenticator, *recorder) {
	rec := &recorder{}
	if opts.ClientID == "" {
		opts.ClientID = "Iv1.test"
	}
	opts.Logger = zerolog.Nop()
	a := auth.NewAuthenticator(client, store, opts, auth.WithClock(clock.Now, clock.Sleep), auth.WithSink(rec))
	return a, rec
}

func waitFinal(t *testing.T, h *auth.LoginHandle) auth.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := h.Wait(ctx)
	require.NoError(t, err, "login attempt did not finish")
	return st
}
