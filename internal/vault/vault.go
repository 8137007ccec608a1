// Package vault stores per-user, per-provider OAuth tokens encrypted at
// rest and answers expiry checks. Tokens are sealed with a server-held
// symmetric key; a legacy base64 read path remains for rows written before
// encryption landed.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/strideworks/trainsync/internal/domain"
	"github.com/strideworks/trainsync/internal/repository"
)

// ErrNotFound is returned when no connection exists for a (user, provider)
// pair. The caller must prompt the user to connect the provider.
var ErrNotFound = errors.New("no provider connection")

// TokenSet is the plaintext token material returned by a provider's OAuth
// exchange, before it enters the vault.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
}

// Vault encrypts, stores and decrypts provider connections.
type Vault struct {
	conns repository.ConnectionRepository
	key   [32]byte
}

// New creates a vault over the connection store. The key must be 32 bytes.
func New(conns repository.ConnectionRepository, key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(key))
	}

	v := &Vault{conns: conns}
	copy(v.key[:], key)
	return v, nil
}

// Get returns the stored connection for a (user, provider) pair, tokens
// still in their encrypted form.
func (v *Vault) Get(ctx context.Context, userID, provider string) (*domain.Connection, error) {
	conn, err := v.conns.Get(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("user %s has no %s connection: %w", userID, provider, ErrNotFound)
		}
		return nil, err
	}

	if conn.Status == domain.ConnectionRevoked {
		return nil, fmt.Errorf("user %s revoked the %s connection: %w", userID, provider, ErrNotFound)
	}

	return conn, nil
}

// IsExpired reports whether the connection's access token expiry has passed.
func (v *Vault) IsExpired(conn *domain.Connection, now time.Time) bool {
	return conn.IsExpired(now)
}

// Store encrypts the token set and upserts the connection row. Always writes
// the modern envelope format, so legacy rows disappear on the next refresh.
func (v *Vault) Store(ctx context.Context, userID, provider, providerUserID string, tokens TokenSet) (*domain.Connection, error) {
	access, err := seal(&v.key, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to seal access token: %w", err)
	}

	refresh := ""
	if tokens.RefreshToken != "" {
		refresh, err = seal(&v.key, tokens.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to seal refresh token: %w", err)
		}
	}

	conn := &domain.Connection{
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: providerUserID,
		AccessToken:    access,
		RefreshToken:   refresh,
		ExpiresAt:      tokens.ExpiresAt,
		Scopes:         tokens.Scopes,
		Status:         domain.ConnectionActive,
	}

	if err := v.conns.Upsert(ctx, conn); err != nil {
		return nil, err
	}

	return conn, nil
}

// Decrypt returns the plaintext access and refresh tokens for a connection,
// reading both the modern envelope and the legacy encoding.
func (v *Vault) Decrypt(conn *domain.Connection) (access, refresh string, err error) {
	access, err = open(&v.key, conn.AccessToken)
	if err != nil {
		return "", "", fmt.Errorf("access token for %s/%s: %w", conn.UserID, conn.Provider, err)
	}

	refresh, err = open(&v.key, conn.RefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("refresh token for %s/%s: %w", conn.UserID, conn.Provider, err)
	}

	return access, refresh, nil
}
