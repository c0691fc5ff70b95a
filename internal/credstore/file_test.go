package credstore_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waabox/ghlogin/internal/credstore"
	"github.com/waabox/ghlogin/internal/domain"
)

func newFileStore(t *testing.T) (*credstore.FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ghlogin", "credential.toml")
	return credstore.NewFileStore(path, zerolog.Nop()), path
}

func TestFileStore_SaveThenLoadRoundTrips(t *testing.T) {
	store, _ := newFileStore(t)
	obtained := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	require.NoError(t, store.Save(domain.Credential{AccessToken: "ghu_xyz", ObtainedAt: obtained}))

	cred, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "ghu_xyz", cred.AccessToken)
	assert.True(t, cred.ObtainedAt.Equal(obtained), "obtained_at: want %s, got %s", obtained, cred.ObtainedAt)
}

func TestFileStore_SaveCreatesParentDirectory(t *testing.T) {
	store, path := newFileStore(t)

	require.NoError(t, store.Save(domain.Credential{AccessToken: "ghu_a"}))
	// second save into the now-existing directory must also succeed
	require.NoError(t, store.Save(domain.Credential{AccessToken: "ghu_b"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cred, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "ghu_b", cred.AccessToken)
}

func TestFileStore_SaveFillsObtainedAt(t *testing.T) {
	store, _ := newFileStore(t)
	before := time.Now().Add(-time.Second)

	require.NoError(t, store.Save(domain.Credential{AccessToken: "ghu_now"}))

	cred, err := store.Load()
	require.NoError(t, err)
	assert.True(t, cred.ObtainedAt.After(before))
}

func TestFileStore_LoadMissingFileReturnsNil(t *testing.T) {
	store, _ := newFileStore(t)

	cred, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFileStore_LoadGarbageReturnsNil(t *testing.T) {
	store, path := newFileStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte("\x00\xff{{ not = toml = at all"), 0600))

	cred, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFileStore_LoadRecordWithoutTokenReturnsNil(t *testing.T) {
	store, path := newFileStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(`obtained_at = 2026-01-02T03:04:05Z`+"\n"), 0600))

	cred, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFileStore_LoadIgnoresUnknownFields(t *testing.T) {
	store, path := newFileStore(t)
	content := "access_token = \"ghu_future\"\nrefresh_token = \"ghr_later\"\n\n[extra]\nscopes = [\"repo\"]\n"
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cred, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "ghu_future", cred.AccessToken)
}

func TestFileStore_SaveRejectsEmptyCredential(t *testing.T) {
	store, path := newFileStore(t)

	err := store.Save(domain.Credential{})
	assert.ErrorIs(t, err, credstore.ErrEmptyCredential)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no file should be written")
}

func TestFileStore_SaveToUnwritablePathReturnsStoreError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))
	store := credstore.NewFileStore(filepath.Join(blocker, "credential.toml"), zerolog.Nop())

	err := store.Save(domain.Credential{AccessToken: "ghu_x"})

	var storeErr *credstore.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "save", storeErr.Op)
}

func TestFileStore_ClearIsIdempotent(t *testing.T) {
	store, path := newFileStore(t)
	require.NoError(t, store.Save(domain.Credential{AccessToken: "ghu_x"}))

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestOpen_SelectsBackend(t *testing.T) {
	fileStore, err := credstore.Open("file", filepath.Join(t.TempDir(), "c.toml"), zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &credstore.FileStore{}, fileStore)

	keyringStore, err := credstore.Open("keyring", "", zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &credstore.KeyringStore{}, keyringStore)

	_, err = credstore.Open("etcd", "", zerolog.Nop())
	assert.Error(t, err)
}

func TestLocation_NamesTheBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.toml")
	assert.Equal(t, path, credstore.Location(credstore.NewFileStore(path, zerolog.Nop())))
	assert.Equal(t, "keyring:ghlogin/github", credstore.Location(credstore.NewKeyringStore("", "", zerolog.Nop())))
}
