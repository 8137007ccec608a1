package service

import (
	"context"

	"github.com/strideworks/trainsync/internal/domain"
)

// OAuthService manages the provider connection lifecycle: consent, callback,
// refresh, and revocation.
type OAuthService interface {
	// AuthorizeURL mints a state token and returns the provider consent URL.
	AuthorizeURL(ctx context.Context, userID, provider string) (string, error)

	// HandleCallback consumes the state, exchanges the code, and stores the
	// resulting credential.
	HandleCallback(ctx context.Context, state, code, verifier string) (*domain.Connection, error)

	// Refresh rotates the stored tokens using the refresh token.
	Refresh(ctx context.Context, userID, provider string) error

	// Connections lists the user's provider connections.
	Connections(ctx context.Context, userID string) ([]*domain.Connection, error)

	// Disconnect revokes a connection and wipes its stored tokens.
	Disconnect(ctx context.Context, userID, provider string) error
}

// SyncService runs batch reconciliation passes against one provider.
type SyncService interface {
	// Push exports planned workouts to the provider calendar.
	Push(ctx context.Context, userID, provider string, workoutIDs []string) (*domain.SyncSummary, error)

	// Pull imports completed provider activities onto planned workouts.
	Pull(ctx context.Context, userID, provider string, items []domain.PullItem) (*domain.SyncSummary, error)
}
