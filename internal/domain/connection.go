package domain

import "time"

// ConnectionStatus is the lifecycle state of a provider connection.
type ConnectionStatus string

const (
	ConnectionActive  ConnectionStatus = "active"
	ConnectionExpired ConnectionStatus = "expired"
	ConnectionRevoked ConnectionStatus = "revoked"
)

// Connection links one user to one external fitness provider. Token fields
// hold the stored (encrypted) form, never plaintext; the vault owns
// encoding and decoding. At most one connection exists per (user, provider).
type Connection struct {
	ID             string           `json:"id" db:"id"`
	UserID         string           `json:"user_id" db:"user_id"`
	Provider       string           `json:"provider" db:"provider"` // strava, garmin
	ProviderUserID string           `json:"provider_user_id" db:"provider_user_id"`
	AccessToken    string           `json:"-" db:"access_token"`
	RefreshToken   string           `json:"-" db:"refresh_token"`
	ExpiresAt      time.Time        `json:"expires_at" db:"expires_at"`
	Scopes         []string         `json:"scopes" db:"scopes"`
	Status         ConnectionStatus `json:"status" db:"status"`
	LastSyncAt     *time.Time       `json:"last_sync_at" db:"last_sync_at"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// IsExpired reports whether the access token expiry has passed. Strict
// comparison, no clock-skew grace.
func (c *Connection) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
