package auth

import (
	"os"
	"time"
)

const (
	envCookies   = "XQCRAWLER_COOKIES"
	envUserAgent = "XQCRAWLER_USER_AGENT"
)

// EnvironmentStore is a read-only store over XQCRAWLER_COOKIES. It answers
// for any account name.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve builds an account from the environment
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	cookies := os.Getenv(envCookies)
	if cookies == "" {
		return nil, ErrCredentialsNotFound
	}

	if name == "" {
		name = "default"
	}

	return &Account{
		Name:         name,
		Cookies:      cookies,
		UserAgent:    os.Getenv(envUserAgent),
		LastModified: time.Now(),
	}, nil
}

// List returns the environment account when one is set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists reports whether XQCRAWLER_COOKIES is set
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(envCookies) != ""
}
