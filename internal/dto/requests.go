package dto

import "github.com/strideworks/trainsync/internal/domain"

// SyncPushRequest asks the engine to push planned workouts onto a provider
// calendar.
type SyncPushRequest struct {
	WorkoutIDs []string `json:"workout_ids" binding:"required"`
}

// SyncPullRequest asks the engine to import completed provider activities.
// Each item may pin an explicit workout; otherwise the matcher chooses.
type SyncPullRequest struct {
	Items []domain.PullItem `json:"items" binding:"required"`
}

// AuthorizeResponse carries the provider consent URL the client redirects to.
type AuthorizeResponse struct {
	URL string `json:"url"`
}

// ConnectionResponse is the API projection of a provider connection.
// Token material never leaves the vault.
type ConnectionResponse struct {
	Provider   string   `json:"provider"`
	Status     string   `json:"status"`
	Scopes     []string `json:"scopes,omitempty"`
	ExpiresAt  string   `json:"expires_at"`
	LastSyncAt *string  `json:"last_sync_at,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message,omitempty"`
	ReconnectRequired bool   `json:"reconnect_required,omitempty"`
}

// MessageResponse represents a simple message response
type MessageResponse struct {
	Message string `json:"message"`
}
