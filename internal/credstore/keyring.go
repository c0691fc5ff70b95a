package credstore

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/waabox/ghlogin/internal/domain"
	"github.com/zalando/go-keyring"
)

const (
	defaultKeyringService = "ghlogin"
	defaultKeyringUser    = "github"
)

// KeyringStore keeps the credential in the OS keyring
// (Keychain, Secret Service or Windows Credential Manager).
type KeyringStore struct {
	service string
	user    string
	log     zerolog.Logger
}

var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore. Empty service or user fall back to
// "ghlogin" and "github".
func NewKeyringStore(service, user string, log zerolog.Logger) *KeyringStore {
	if service == "" {
		service = defaultKeyringService
	}
	if user == "" {
		user = defaultKeyringUser
	}
	return &KeyringStore{
		service: service,
		user:    user,
		log:     log.With().Str("component", "credstore").Str("keyring", service).Logger(),
	}
}

// Location names the keyring item.
func (s *KeyringStore) Location() string {
	return "keyring:" + s.service + "/" + s.user
}

// Load reads the credential. A missing or corrupt item yields nil without error.
func (s *KeyringStore) Load() (*domain.Credential, error) {
	secret, err := keyring.Get(s.service, s.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, &StoreError{Op: "load", Location: s.Location(), Err: err}
	}
	cred, ok := decode([]byte(secret))
	if !ok {
		s.log.Warn().Msg("ignoring unreadable keyring item")
		return nil, nil
	}
	return cred, nil
}

// Save overwrites the keyring item with cred.
func (s *KeyringStore) Save(cred domain.Credential) error {
	data, err := encode(cred)
	if err != nil {
		return err
	}
	if err := keyring.Set(s.service, s.user, string(data)); err != nil {
		return &StoreError{Op: "save", Location: s.Location(), Err: err}
	}
	return nil
}

// Clear deletes the keyring item. A missing item is not an error.
func (s *KeyringStore) Clear() error {
	if err := keyring.Delete(s.service, s.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return &StoreError{Op: "clear", Location: s.Location(), Err: err}
	}
	return nil
}
