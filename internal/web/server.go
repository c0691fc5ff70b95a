// Package web exposes the authentication session over a small local HTTP API.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/waabox/ghlogin/internal/auth"
	"github.com/waabox/ghlogin/internal/domain"
	"github.com/waabox/ghlogin/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Server serves the auth API for one Session.
type Server struct {
	gin         *gin.Engine
	session     *auth.Session
	latest      *auth.SnapshotSink
	unsubscribe func()
	log         zerolog.Logger
}

// NewServer builds the router. Close must be called to detach from the session.
func NewServer(session *auth.Session, log zerolog.Logger, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(requestLogger(log), recovery(log))

	latest := &auth.SnapshotSink{}
	s := &Server{
		gin:         engine,
		session:     session,
		latest:      latest,
		unsubscribe: session.Subscribe(latest),
		log:         log.With().Str("component", "web").Logger(),
	}

	engine.GET("healthz", s.healthz)
	engine.GET("metrics", gin.WrapH(metrics.Handler()))

	api := engine.Group("api/auth")
	api.GET("status", s.status)
	api.POST("login", s.login)
	api.POST("cancel", s.cancel)
	api.POST("logout", s.logout)
	api.GET("identity", s.identity)

	return s
}

// Handler returns the router, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Close detaches the server from the session.
func (s *Server) Close() {
	s.unsubscribe()
}

// Listen serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type errorResponse struct {
	Error string         `json:"error"`
	State *auth.Snapshot `json:"state,omitempty"`
}

type loginResponse struct {
	AttemptID string        `json:"attempt_id"`
	State     auth.Snapshot `json:"state"`
}

type identityResponse struct {
	Username string         `json:"username"`
	Profile  map[string]any `json:"profile,omitempty"`
}

// snapshot prefers the pushed state and falls back to reading the session.
func (s *Server) snapshot() auth.Snapshot {
	if st, ok := s.latest.Latest(); ok && st.Seq >= s.session.State().Seq {
		return st.Snapshot()
	}
	return s.session.Snapshot()
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.snapshot())
}

func (s *Server) login(c *gin.Context) {
	h, err := s.session.Login(c.Request.Context())
	switch {
	case errors.Is(err, domain.ErrAlreadyInProgress):
		snap := s.snapshot()
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), State: &snap})
		return
	case errors.Is(err, auth.ErrAlreadyAuthenticated):
		c.JSON(http.StatusOK, s.snapshot())
		return
	case err != nil:
		s.log.Error().Err(err).Msg("starting login")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, loginResponse{AttemptID: h.ID(), State: s.snapshot()})
}

func (s *Server) cancel(c *gin.Context) {
	if !s.session.CancelLogin() {
		c.JSON(http.StatusConflict, errorResponse{Error: "no login in progress"})
		return
	}
	c.JSON(http.StatusAccepted, s.snapshot())
}

func (s *Server) logout(c *gin.Context) {
	if err := s.session.Logout(); err != nil {
		snap := s.snapshot()
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error(), State: &snap})
		return
	}
	c.JSON(http.StatusOK, s.snapshot())
}

func (s *Server) identity(c *gin.Context) {
	if !s.session.IsAuthenticated(c.Request.Context()) {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}
	id, ok := s.session.CurrentIdentity()
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, identityResponse{Username: id.Username, Profile: id.RawProfile})
}
