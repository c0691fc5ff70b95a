package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/waabox/ghlogin/internal/auth"
	"github.com/waabox/ghlogin/internal/config"
	"github.com/waabox/ghlogin/internal/credstore"
)

// app holds what every command needs: config, logger and the session.
type app struct {
	cfg        config.Config
	configPath string
	log        zerolog.Logger
	store      credstore.Store
	session    *auth.Session
	logFile    io.Closer
}

// newApp loads configuration and wires the session. When quietConsole is set
// the log goes to a file so it does not draw over the terminal dialog.
func newApp(opts *rootOptions, stderr io.Writer, quietConsole bool) (*app, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	a := &app{cfg: cfg, configPath: opts.configPath}
	if err := a.setupLogger(stderr, quietConsole); err != nil {
		return nil, err
	}

	store, err := credstore.Open(cfg.Store.BackendOrDefault(), cfg.Store.PathOrDefault(), a.log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	client := auth.NewGitHubClient(cfg.GitHub.BaseURL, cfg.GitHub.APIURL)
	authn := auth.NewAuthenticator(client, store, auth.Options{
		ClientID:     cfg.GitHub.ClientID,
		Scope:        cfg.GitHub.ScopeOrDefault(),
		SlowDownStep: cfg.Poll.SlowDownStepOrDefault(),
		MaxInterval:  cfg.Poll.MaxIntervalOrDefault(),
		Logger:       a.log,
	})
	a.session = auth.NewSession(authn, auth.SessionOptions{
		ValidationTTL: cfg.Server.ValidationTTLDuration(),
		Logger:        a.log,
	})
	return a, nil
}

func (a *app) setupLogger(stderr io.Writer, quietConsole bool) error {
	level, err := zerolog.ParseLevel(a.cfg.Log.LevelOrDefault())
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: stderr}
	path := a.cfg.Log.File
	if quietConsole && path == "" {
		path = filepath.Join(config.Dir(), "ghlogin.log")
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		a.logFile = f
		fileWriter := zerolog.ConsoleWriter{Out: f, NoColor: true}
		if quietConsole {
			out = fileWriter
		} else {
			out = io.MultiWriter(out, fileWriter)
		}
	}
	a.log = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return nil
}

// requireClientID reports a missing OAuth App client ID.
func (a *app) requireClientID() error {
	if a.cfg.GitHub.ClientID == "" {
		return fmt.Errorf("github.client_id is not set: export GHLOGIN_CLIENT_ID or add it to %s", a.configPath)
	}
	return nil
}

func (a *app) Close() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}
