package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func testAccount() *Account {
	return &Account{
		Name:      "main",
		Cookies:   "xq_a_token=abcdef0123456789; u=1234567890",
		UserAgent: "TestAgent/1.0",
	}
}

func TestManagerRoundTrip(t *testing.T) {
	manager, store := NewMockManager()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return fixed }

	require.NoError(t, manager.Store(testAccount()))

	got, err := manager.Retrieve("main")
	require.NoError(t, err)
	assert.Equal(t, "xq_a_token=abcdef0123456789; u=1234567890", got.Cookies)
	assert.Equal(t, fixed, got.LastModified)

	accounts, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, manager.Delete("main"))
	assert.Equal(t, 0, store.Count())

	_, err = manager.Retrieve("main")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerStoreValidation(t *testing.T) {
	manager, _ := NewMockManager()

	assert.Error(t, manager.Store(nil))
	assert.Error(t, manager.Store(&Account{Name: " ", Cookies: "a=b"}))
	assert.Error(t, manager.Store(&Account{Name: "main", Cookies: "not a cookie"}))
}

func TestManagerFallsThroughFailingStore(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keychain locked")
	working := NewMockStore()
	manager := NewManagerWithStores(broken, working)

	require.NoError(t, manager.Store(testAccount()))
	assert.Equal(t, 0, broken.Count())
	assert.Equal(t, 1, working.Count())
}

func TestManagerListPrefersNewest(t *testing.T) {
	older := NewMockStore()
	newer := NewMockStore()
	old := testAccount()
	old.LastModified = time.Unix(100, 0)
	fresh := testAccount()
	fresh.Cookies = "xq_a_token=fresh; u=1"
	fresh.LastModified = time.Unix(200, 0)
	require.NoError(t, older.Store(old))
	require.NoError(t, newer.Store(fresh))

	accounts, err := NewManagerWithStores(older, newer).List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "xq_a_token=fresh; u=1", accounts[0].Cookies)
}

func TestSanitizeAccount(t *testing.T) {
	sanitized := SanitizeAccount(testAccount())

	assert.Equal(t, "main", sanitized.Name)
	assert.Equal(t, "xq_a_token=abcd...6789; u=1234...7890", sanitized.Cookies)
	assert.Nil(t, SanitizeAccount(nil))
	assert.Equal(t, "********", maskString("short"))
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(passphraseEnv, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(testAccount()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "abcdef0123456789")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// a second store in the same directory reuses the generated passphrase
	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Retrieve("main")
	require.NoError(t, err)
	assert.Equal(t, testAccount().Cookies, got.Cookies)
	assert.True(t, reopened.Exists("main"))

	require.NoError(t, reopened.Delete("main"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, reopened.Delete("main"), ErrCredentialsNotFound)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.enc")

	t.Setenv(passphraseEnv, "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(testAccount()))

	t.Setenv(passphraseEnv, "second")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("main")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Setenv(envCookies, "")
	_, err := store.Retrieve("main")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.False(t, store.Exists("main"))

	t.Setenv(envCookies, "xq_a_token=t; u=1")
	t.Setenv(envUserAgent, "EnvAgent")
	got, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "default", got.Name)
	assert.Equal(t, "EnvAgent", got.UserAgent)

	assert.ErrorIs(t, store.Store(testAccount()), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("main"), ErrStoreUnavailable)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(testAccount()))
	assert.True(t, store.Exists("main"))

	got, err := store.Retrieve("main")
	require.NoError(t, err)
	assert.Equal(t, "TestAgent/1.0", got.UserAgent)

	require.NoError(t, store.Delete("main"))
	assert.ErrorIs(t, store.Delete("main"), ErrCredentialsNotFound)
	_, err = store.Retrieve("main")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}
