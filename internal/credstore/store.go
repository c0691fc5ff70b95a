// Package credstore persists the GitHub credential between runs.
//
// A store holds exactly one record. A missing or unreadable record is not an
// error: Load returns nil and the caller re-authenticates.
package credstore

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"github.com/waabox/ghlogin/internal/domain"
)

// Store loads, saves and clears the single persisted credential.
type Store interface {
	Load() (*domain.Credential, error)
	Save(cred domain.Credential) error
	Clear() error
}

// ErrEmptyCredential is returned by Save when the credential has no token.
var ErrEmptyCredential = errors.New("credential has no access token")

// StoreError indicates a credential storage failure.
type StoreError struct {
	Op       string // "load", "save", "clear"
	Location string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s credential at %s: %v", e.Op, e.Location, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// record is the persisted layout. Unknown keys are ignored on decode.
type record struct {
	AccessToken string    `toml:"access_token"`
	ObtainedAt  time.Time `toml:"obtained_at"`
}

func encode(cred domain.Credential) ([]byte, error) {
	if !cred.Valid() {
		return nil, ErrEmptyCredential
	}
	if cred.ObtainedAt.IsZero() {
		cred.ObtainedAt = time.Now()
	}
	var buf bytes.Buffer
	rec := record{AccessToken: cred.AccessToken, ObtainedAt: cred.ObtainedAt.UTC()}
	if err := toml.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encoding credential: %w", err)
	}
	return buf.Bytes(), nil
}

// decode returns false for anything that is not a usable record.
func decode(data []byte) (*domain.Credential, bool) {
	var rec record
	if _, err := toml.Decode(string(data), &rec); err != nil {
		return nil, false
	}
	if rec.AccessToken == "" {
		return nil, false
	}
	return &domain.Credential{AccessToken: rec.AccessToken, ObtainedAt: rec.ObtainedAt}, true
}

// Location describes where s keeps the credential, for messages to the user.
func Location(s Store) string {
	if l, ok := s.(interface{ Location() string }); ok {
		return l.Location()
	}
	return "the credential store"
}

// Open returns the store for the given backend name ("file" or "keyring").
// path is only used by the file backend.
func Open(backend string, path string, log zerolog.Logger) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(path, log), nil
	case "keyring":
		return NewKeyringStore("", "", log), nil
	default:
		return nil, fmt.Errorf("unknown credential store backend %q", backend)
	}
}
