package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// GitHubConfig holds the OAuth App settings used for the device flow.
type GitHubConfig struct {
	ClientID string `toml:"client_id"`
	Scope    string `toml:"scope"`
	BaseURL  string `toml:"base_url"`
	APIURL   string `toml:"api_url"`
}

// StoreConfig selects where the credential is kept.
type StoreConfig struct {
	Backend string `toml:"backend"` // "file" or "keyring"
	Path    string `toml:"path"`
}

// PollConfig tunes the token polling loop. Values are in seconds.
type PollConfig struct {
	MaxInterval  int `toml:"max_interval"`
	SlowDownStep int `toml:"slow_down_step"`
}

// ServerConfig holds settings for `ghlogin serve`.
type ServerConfig struct {
	Listen        string `toml:"listen"`
	ValidationTTL int    `toml:"validation_ttl"` // seconds; 0 re-validates on every check
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Config holds all ghlogin configuration.
type Config struct {
	GitHub GitHubConfig `toml:"github"`
	Store  StoreConfig  `toml:"store"`
	Poll   PollConfig   `toml:"poll"`
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
}

const (
	BackendFile    = "file"
	BackendKeyring = "keyring"

	defaultScope        = "public_repo"
	defaultMaxInterval  = 60
	defaultSlowDownStep = 5
	defaultListen       = "127.0.0.1:8765"
	defaultLogLevel     = "info"
)

// ScopeOrDefault returns Scope if set, otherwise public_repo.
func (c GitHubConfig) ScopeOrDefault() string {
	if c.Scope != "" {
		return c.Scope
	}
	return defaultScope
}

// BackendOrDefault returns Backend if set, otherwise the file backend.
func (c StoreConfig) BackendOrDefault() string {
	if c.Backend != "" {
		return c.Backend
	}
	return BackendFile
}

// PathOrDefault returns Path if set, otherwise credential.toml next to the config file.
func (c StoreConfig) PathOrDefault() string {
	if c.Path != "" {
		return c.Path
	}
	return filepath.Join(Dir(), "credential.toml")
}

// MaxIntervalOrDefault returns the polling interval cap.
func (c PollConfig) MaxIntervalOrDefault() time.Duration {
	if c.MaxInterval > 0 {
		return time.Duration(c.MaxInterval) * time.Second
	}
	return defaultMaxInterval * time.Second
}

// SlowDownStepOrDefault returns the increment applied on slow_down.
func (c PollConfig) SlowDownStepOrDefault() time.Duration {
	if c.SlowDownStep > 0 {
		return time.Duration(c.SlowDownStep) * time.Second
	}
	return defaultSlowDownStep * time.Second
}

// ListenOrDefault returns the HTTP listen address.
func (c ServerConfig) ListenOrDefault() string {
	if c.Listen != "" {
		return c.Listen
	}
	return defaultListen
}

// ValidationTTLDuration returns ValidationTTL as a duration.
func (c ServerConfig) ValidationTTLDuration() time.Duration {
	if c.ValidationTTL <= 0 {
		return 0
	}
	return time.Duration(c.ValidationTTL) * time.Second
}

// LevelOrDefault returns Level if set, otherwise info.
func (c LogConfig) LevelOrDefault() string {
	if c.Level != "" {
		return c.Level
	}
	return defaultLogLevel
}

// LoadFrom reads configuration from the given TOML file path.
// If the file does not exist, it returns an empty config without error.
// Environment variables always take precedence over file values:
//   - GHLOGIN_CLIENT_ID     overrides github.client_id
//   - GHLOGIN_SCOPE         overrides github.scope
//   - GHLOGIN_GITHUB_URL    overrides github.base_url
//   - GHLOGIN_API_URL       overrides github.api_url
//   - GHLOGIN_STORE_BACKEND overrides store.backend
//   - GHLOGIN_TOKEN_PATH    overrides store.path
//   - GHLOGIN_LISTEN        overrides server.listen
//   - GHLOGIN_LOG_LEVEL     overrides log.level
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decoding %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads the dotenv file at path if it exists. A missing file is
// not an error. Variables already present in the environment are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Store.BackendOrDefault() {
	case BackendFile, BackendKeyring:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendFile, BackendKeyring, c.Store.Backend)
	}
	if c.Poll.MaxInterval < 0 || c.Poll.SlowDownStep < 0 {
		return fmt.Errorf("poll intervals must not be negative")
	}
	return nil
}

// Dir returns the user-scoped directory holding ghlogin's files.
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ghlogin")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ghlogin")
}

// DefaultConfigPath returns the default path for the ghlogin config file.
func DefaultConfigPath() string {
	return filepath.Join(Dir(), "config.toml")
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"GHLOGIN_CLIENT_ID", &cfg.GitHub.ClientID},
		{"GHLOGIN_SCOPE", &cfg.GitHub.Scope},
		{"GHLOGIN_GITHUB_URL", &cfg.GitHub.BaseURL},
		{"GHLOGIN_API_URL", &cfg.GitHub.APIURL},
		{"GHLOGIN_STORE_BACKEND", &cfg.Store.Backend},
		{"GHLOGIN_TOKEN_PATH", &cfg.Store.Path},
		{"GHLOGIN_LISTEN", &cfg.Server.Listen},
		{"GHLOGIN_LOG_LEVEL", &cfg.Log.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}
