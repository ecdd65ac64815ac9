package foxy

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGCredentialStore persists a single credential row so refreshed access
// tokens survive restarts. Config-owned fields are reseeded on boot;
// the refreshed access token is preserved across seeds.
type PGCredentialStore struct {
	Pool *pgxpool.Pool
}

// Seed upserts the config-owned fields. An access token already stored from a
// previous refresh wins over the (possibly stale) configured one.
func (s *PGCredentialStore) Seed(ctx context.Context, c Credentials) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO foxy_credentials (
			id, client_id, client_secret, refresh_token, access_token,
			access_token_expires_at, store_secret, webhook_signature, is_test, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			refresh_token = EXCLUDED.refresh_token,
			store_secret = EXCLUDED.store_secret,
			webhook_signature = EXCLUDED.webhook_signature,
			is_test = EXCLUDED.is_test,
			updated_at = now()`,
		c.ClientID, c.ClientSecret, c.RefreshToken, c.AccessToken,
		c.AccessTokenExpiresAt, c.StoreSecret, c.WebhookSignature, c.IsTest,
	)
	return err
}

func (s *PGCredentialStore) Load(ctx context.Context) (Credentials, error) {
	var c Credentials
	var expiresAt *time.Time
	err := s.Pool.QueryRow(ctx, `
		SELECT client_id, client_secret, refresh_token, access_token,
			access_token_expires_at, store_secret, webhook_signature, is_test
		FROM foxy_credentials WHERE id = 1`).
		Scan(&c.ClientID, &c.ClientSecret, &c.RefreshToken, &c.AccessToken,
			&expiresAt, &c.StoreSecret, &c.WebhookSignature, &c.IsTest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, errors.New("foxy: credentials not seeded")
		}
		return Credentials{}, err
	}
	if expiresAt != nil {
		c.AccessTokenExpiresAt = *expiresAt
	}
	return c, nil
}

func (s *PGCredentialStore) SaveAccessToken(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE foxy_credentials
		SET access_token = $1, access_token_expires_at = $2, updated_at = now()
		WHERE id = 1`, token, expiresAt)
	return err
}
