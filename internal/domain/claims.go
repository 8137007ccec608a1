package domain

import "time"

// SessionClaims carries the identity asserted by the external auth system's
// access token. The engine validates these tokens but never issues them.
type SessionClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
}

// IsExpired checks if the session token is expired.
func (c SessionClaims) IsExpired() bool {
	return time.Now().Unix() > c.Exp
}
