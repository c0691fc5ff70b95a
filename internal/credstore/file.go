package credstore

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/waabox/ghlogin/internal/domain"
)

// FileStore keeps the credential in a TOML file with 0600 permissions.
type FileStore struct {
	path string
	log  zerolog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string, log zerolog.Logger) *FileStore {
	return &FileStore{
		path: path,
		log:  log.With().Str("component", "credstore").Str("path", path).Logger(),
	}
}

// Location returns the file path.
func (s *FileStore) Location() string {
	return s.path
}

// Load reads the credential. A missing or corrupt file yields nil without error.
func (s *FileStore) Load() (*domain.Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &StoreError{Op: "load", Location: s.path, Err: err}
	}
	cred, ok := decode(data)
	if !ok {
		s.log.Warn().Msg("ignoring unreadable credential file")
		return nil, nil
	}
	return cred, nil
}

// Save replaces the file with cred, creating the parent directory as needed.
// The record is written to a temporary file and renamed into place.
func (s *FileStore) Save(cred domain.Credential) error {
	data, err := encode(cred)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return &StoreError{Op: "save", Location: s.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return &StoreError{Op: "save", Location: s.path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StoreError{Op: "save", Location: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "save", Location: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "save", Location: s.path, Err: err}
	}
	s.log.Debug().Msg("credential saved")
	return nil
}

// Clear removes the file. A missing file is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StoreError{Op: "clear", Location: s.path, Err: err}
	}
	return nil
}
