package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/waabox/ghlogin/internal/credstore"
	"github.com/waabox/ghlogin/internal/domain"
	"github.com/waabox/ghlogin/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// ErrAlreadyAuthenticated is returned by Session.Login when the current
// credential is still accepted by GitHub.
var ErrAlreadyAuthenticated = errors.New("already authenticated")

// SessionOptions configures a Session.
type SessionOptions struct {
	// ValidationTTL caches a successful IsAuthenticated answer for this long.
	// Zero asks GitHub on every call.
	ValidationTTL time.Duration
	Logger        zerolog.Logger
}

// Session is the process-wide authentication handle shared by the terminal
// dialog, the CLI and the HTTP server. Construct it once at startup, call
// Restore, and Close it at shutdown.
type Session struct {
	authn  *Authenticator
	client IdentityClient
	store  credstore.Store
	ttl    time.Duration
	log    zerolog.Logger
	group  singleflight.Group

	mu          sync.Mutex
	validToken  string
	validatedAt time.Time
}

// NewSession wraps authn. client and store must be the ones authn uses.
func NewSession(authn *Authenticator, opts SessionOptions) *Session {
	return &Session{
		authn:  authn,
		client: authn.client,
		store:  authn.store,
		ttl:    opts.ValidationTTL,
		log:    opts.Logger.With().Str("component", "session").Logger(),
	}
}

// Authenticator returns the underlying authenticator.
func (s *Session) Authenticator() *Authenticator {
	return s.authn
}

// Restore loads the cached credential and validates it once against GitHub.
// A missing, unreadable or rejected credential leaves the session logged out
// without error.
func (s *Session) Restore(ctx context.Context) {
	cred, err := s.store.Load()
	if err != nil {
		metrics.StoreErrors.WithLabelValues("load").Inc()
		s.log.Warn().Err(err).Msg("could not read cached credential")
		return
	}
	if cred == nil {
		s.log.Debug().Msg("no cached credential")
		return
	}
	identity, err := s.client.FetchUser(ctx, cred.AccessToken)
	if err != nil {
		metrics.IdentityChecks.WithLabelValues(checkLabel(err)).Inc()
		s.log.Info().Err(err).Msg("cached credential is not usable, staying logged out")
		return
	}
	metrics.IdentityChecks.WithLabelValues("ok").Inc()
	if s.authn.adopt(*cred, identity) {
		s.markValid(cred.AccessToken)
		s.log.Info().Str("user", identity.Username).Msg("loaded cached GitHub token")
	}
}

// Login starts a device flow attempt and returns immediately.
// It returns ErrAlreadyAuthenticated if the session is authenticated and
// GitHub still accepts the token, and domain.ErrAlreadyInProgress while
// another attempt runs.
func (s *Session) Login(ctx context.Context) (*LoginHandle, error) {
	if s.authn.State().Kind == StateAuthenticated && s.IsAuthenticated(ctx) {
		return nil, ErrAlreadyAuthenticated
	}
	s.forgetValidation()
	return s.authn.StartLogin(ctx)
}

// CancelLogin stops the running attempt at its next wake-up.
func (s *Session) CancelLogin() bool {
	return s.authn.CancelLogin()
}

// IsAuthenticated reports whether a credential is held and GitHub accepts it.
// Concurrent callers share one request. A rejected token logs the session
// out in memory; the stored record stays until Logout or a new login.
func (s *Session) IsAuthenticated(ctx context.Context) bool {
	cred, ok := s.authn.Credential()
	if !ok {
		return false
	}
	if s.recentlyValidated(cred.AccessToken) {
		return true
	}

	v, err, _ := s.group.Do(cred.AccessToken, func() (any, error) {
		return s.client.FetchUser(ctx, cred.AccessToken)
	})
	if err != nil {
		metrics.IdentityChecks.WithLabelValues(checkLabel(err)).Inc()
		var authErr *AuthError
		if errors.As(err, &authErr) {
			s.log.Info().Int("status", authErr.Status).Msg("GitHub rejected the token, logging out")
			s.forgetValidation()
			s.authn.invalidate(cred.AccessToken, err.Error())
			return false
		}
		s.log.Warn().Err(err).Msg("could not validate token")
		return false
	}
	metrics.IdentityChecks.WithLabelValues("ok").Inc()
	identity := v.(domain.Identity)
	if s.authn.adopt(cred, identity) {
		s.markValid(cred.AccessToken)
	}
	return true
}

// CurrentIdentity returns the cached identity of an authenticated session.
func (s *Session) CurrentIdentity() (domain.Identity, bool) {
	st := s.authn.State()
	if st.Kind != StateAuthenticated || st.Identity == nil {
		return domain.Identity{}, false
	}
	return *st.Identity, true
}

// State returns the current state.
func (s *Session) State() State {
	return s.authn.State()
}

// Snapshot returns the user-facing view of the current state.
func (s *Session) Snapshot() Snapshot {
	return s.authn.State().Snapshot()
}

// Subscribe registers a sink for state changes.
func (s *Session) Subscribe(sink Sink) (unsubscribe func()) {
	return s.authn.Subscribe(sink)
}

// Logout abandons any running attempt, clears the stored credential and
// returns to StateLoggedOut. It is idempotent; the returned error is a
// *credstore.StoreError when the record could not be removed.
func (s *Session) Logout() error {
	s.forgetValidation()
	if err := s.authn.Reset(); err != nil {
		return err
	}
	s.log.Info().Msg("logged out")
	return nil
}

// Close cancels a running attempt and waits for it to exit.
func (s *Session) Close(ctx context.Context) error {
	return s.authn.Shutdown(ctx)
}

func (s *Session) recentlyValidated(token string) bool {
	if s.ttl <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validToken == token && s.authn.now().Sub(s.validatedAt) < s.ttl
}

func (s *Session) markValid(token string) {
	s.mu.Lock()
	s.validToken = token
	s.validatedAt = s.authn.now()
	s.mu.Unlock()
}

func (s *Session) forgetValidation() {
	s.mu.Lock()
	s.validToken = ""
	s.validatedAt = time.Time{}
	s.mu.Unlock()
}

func checkLabel(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return "rejected"
	}
	return "error"
}
