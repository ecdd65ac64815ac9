package foxy

import (
	"context"
	"sync"
	"time"
)

// Credentials holds the OAuth client pair plus the current token state for
// one provider store integration.
type Credentials struct {
	ClientID             string
	ClientSecret         string
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	StoreSecret          string
	WebhookSignature     string
	IsTest               bool
}

// CredentialStore loads credentials and persists refreshed access tokens.
type CredentialStore interface {
	Load(ctx context.Context) (Credentials, error)
	SaveAccessToken(ctx context.Context, token string, expiresAt time.Time) error
}

// MemoryCredentialStore keeps credentials in memory. Used by tests and by
// deployments that configure tokens purely through the environment.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	creds Credentials
}

func NewMemoryCredentialStore(c Credentials) *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: c}
}

func (s *MemoryCredentialStore) Load(ctx context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, nil
}

func (s *MemoryCredentialStore) SaveAccessToken(ctx context.Context, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.AccessToken = token
	s.creds.AccessTokenExpiresAt = expiresAt
	return nil
}
