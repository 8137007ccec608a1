package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/strideworks/trainsync/internal/domain"
	"github.com/strideworks/trainsync/internal/provider"
	"github.com/strideworks/trainsync/internal/repository"
	"github.com/strideworks/trainsync/internal/utils"
	"github.com/strideworks/trainsync/internal/vault"
)

var (
	// ErrInvalidState means the callback state token failed validation or
	// its nonce was already consumed.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrConnectionNotFound means the user has no connection for the
	// requested provider.
	ErrConnectionNotFound = errors.New("connection not found")
)

// oauthService implements OAuthService interface
type oauthService struct {
	registry   *provider.Registry
	vault      *vault.Vault
	conns      repository.ConnectionRepository
	jwtManager *utils.JWTManager
	states     *OAuthStateStore
}

// NewOAuthService creates a new OAuth service
func NewOAuthService(
	registry *provider.Registry,
	v *vault.Vault,
	conns repository.ConnectionRepository,
	jwtManager *utils.JWTManager,
	states *OAuthStateStore,
) OAuthService {
	return &oauthService{
		registry:   registry,
		vault:      v,
		conns:      conns,
		jwtManager: jwtManager,
		states:     states,
	}
}

// AuthorizeURL mints a state token and builds the provider consent URL
func (s *oauthService) AuthorizeURL(ctx context.Context, userID, provider string) (string, error) {
	client, err := s.registry.Get(utils.SanitizeProvider(provider))
	if err != nil {
		return "", err
	}

	state, nonce, err := s.jwtManager.GenerateStateToken(userID, client.Name())
	if err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	if err := s.states.Put(ctx, nonce); err != nil {
		return "", err
	}

	return client.AuthorizeURL(state), nil
}

// HandleCallback validates the state, exchanges the code, and stores the
// credential. State validation failures are ErrInvalidState; everything
// after that is a provider or persistence error.
func (s *oauthService) HandleCallback(ctx context.Context, state, code, verifier string) (*domain.Connection, error) {
	claims, err := s.jwtManager.ValidateStateToken(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	// Single use: a replayed callback fails here even with a valid signature.
	if err := s.states.Consume(ctx, claims.Nonce); err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil, fmt.Errorf("%w: state already used or expired", ErrInvalidState)
		}
		return nil, err
	}

	client, err := s.registry.Get(claims.Provider)
	if err != nil {
		return nil, err
	}

	tokens, err := client.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("code exchange with %s failed: %w", client.Name(), err)
	}

	providerUserID := tokens.ProviderUserID
	if providerUserID == "" {
		profile, err := client.Profile(ctx, tokens.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s profile: %w", client.Name(), err)
		}
		providerUserID = profile.ProviderUserID
	}

	conn, err := s.vault.Store(ctx, claims.UserID, client.Name(), providerUserID, vault.TokenSet{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		Scopes:       tokens.Scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store connection: %w", err)
	}

	return conn, nil
}

// Refresh rotates the stored tokens. A provider rejection marks the
// connection expired so the client knows reconnection is required.
func (s *oauthService) Refresh(ctx context.Context, userID, providerName string) error {
	client, err := s.registry.Get(utils.SanitizeProvider(providerName))
	if err != nil {
		return err
	}

	conn, err := s.vault.Get(ctx, userID, client.Name())
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return ErrConnectionNotFound
		}
		return err
	}

	_, refreshToken, err := s.vault.Decrypt(conn)
	if err != nil {
		return fmt.Errorf("failed to decrypt stored credential: %w", err)
	}

	tokens, err := client.RefreshTokens(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, provider.ErrAuthRejected) {
			if uerr := s.conns.UpdateStatus(ctx, userID, client.Name(), domain.ConnectionExpired); uerr != nil {
				return fmt.Errorf("refresh rejected and status update failed: %w", uerr)
			}
		}
		return fmt.Errorf("token refresh with %s failed: %w", client.Name(), err)
	}

	if _, err := s.vault.Store(ctx, userID, client.Name(), conn.ProviderUserID, vault.TokenSet{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		Scopes:       tokens.Scopes,
	}); err != nil {
		return fmt.Errorf("failed to store refreshed tokens: %w", err)
	}

	return nil
}

// Connections lists the user's provider connections
func (s *oauthService) Connections(ctx context.Context, userID string) ([]*domain.Connection, error) {
	conns, err := s.conns.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	// Stored expiry may have passed since the row was written.
	now := time.Now()
	for _, c := range conns {
		if c.Status == domain.ConnectionActive && c.IsExpired(now) {
			c.Status = domain.ConnectionExpired
		}
	}
	return conns, nil
}

// Disconnect revokes a connection and wipes its stored tokens
func (s *oauthService) Disconnect(ctx context.Context, userID, providerName string) error {
	name := utils.SanitizeProvider(providerName)
	err := s.conns.UpdateStatus(ctx, userID, name, domain.ConnectionRevoked)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrConnectionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to revoke connection: %w", err)
	}
	return nil
}
