package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/strideworks/trainsync/internal/domain"
)

// JWTManager validates session tokens issued by the identity service and
// mints the short-lived state tokens used during the OAuth callback dance.
type JWTManager struct {
	secret   []byte
	stateTTL time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, stateTTL time.Duration) *JWTManager {
	return &JWTManager{
		secret:   []byte(secret),
		stateTTL: stateTTL,
	}
}

// ValidateSessionToken validates a session JWT and returns its claims
func (j *JWTManager) ValidateSessionToken(tokenString string) (*domain.SessionClaims, error) {
	claims, err := j.parse(tokenString)
	if err != nil {
		return nil, err
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid user_id in token")
	}

	email, _ := claims["email"].(string)

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid exp in token")
	}

	iat, ok := claims["iat"].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid iat in token")
	}

	sessionClaims := &domain.SessionClaims{
		UserID: userID,
		Email:  email,
		Exp:    int64(exp),
		Iat:    int64(iat),
	}

	if sessionClaims.IsExpired() {
		return nil, fmt.Errorf("token has expired")
	}

	return sessionClaims, nil
}

// StateClaims is the payload carried through the provider's redirect.
type StateClaims struct {
	UserID   string
	Provider string
	Nonce    string
}

// GenerateStateToken mints a signed OAuth state token. The nonce is stored
// server-side and consumed exactly once on callback.
func (j *JWTManager) GenerateStateToken(userID, provider string) (token, nonce string, err error) {
	nonce = uuid.New().String()

	claims := jwt.MapClaims{
		"user_id":  userID,
		"provider": provider,
		"nonce":    nonce,
		"exp":      time.Now().Add(j.stateTTL).Unix(),
		"iat":      time.Now().Unix(),
		"type":     "oauth_state",
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err = t.SignedString(j.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign state token: %w", err)
	}

	return token, nonce, nil
}

// ValidateStateToken validates a state token and returns its claims
func (j *JWTManager) ValidateStateToken(tokenString string) (*StateClaims, error) {
	claims, err := j.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if typ, _ := claims["type"].(string); typ != "oauth_state" {
		return nil, fmt.Errorf("not a state token")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid user_id in token")
	}

	provider, ok := claims["provider"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid provider in token")
	}

	nonce, ok := claims["nonce"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid nonce in token")
	}

	return &StateClaims{UserID: userID, Provider: provider, Nonce: nonce}, nil
}

func (j *JWTManager) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
