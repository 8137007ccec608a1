// Package provider holds the capability interface for external fitness
// providers and one HTTP adapter per provider. Adapters perform single
// network calls with bounded timeouts and no local retries; retry policy
// belongs to the sync orchestrator.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrAuthRejected means the provider answered 401/403. The remote is
	// authoritative: the stored credential is invalid regardless of its
	// local expiry, and the user must reconnect.
	ErrAuthRejected = errors.New("provider rejected credentials")

	// ErrUnavailable covers timeouts and 5xx responses. Transient; the item
	// is failed for this pass and eligible for a later retry pass.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrUnknownProvider is returned by the registry for names it does not
	// hold an adapter for.
	ErrUnknownProvider = errors.New("unknown provider")
)

// TokenSet is the result of an OAuth code exchange or refresh.
type TokenSet struct {
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
	Scopes         []string
	ProviderUserID string
}

// RemoteProfile identifies the provider-side account.
type RemoteProfile struct {
	ProviderUserID string
	Name           string
}

// RawActivity is a provider activity mapped onto a tagged intermediate
// shape. Fields the provider did not report are nil; the normalizer turns
// this into a CanonicalActivity and rejects structurally invalid payloads.
type RawActivity struct {
	Provider   string
	ID         string
	Name       string
	Type       string
	StartTime  time.Time
	ElapsedSec *int
	DistanceM  *float64
}

// WorkoutPayload is the outbound shape pushed onto a provider's calendar.
type WorkoutPayload struct {
	Name          string
	Type          string
	ScheduledDate time.Time
	DistanceM     *float64
	DurationS     *int
}

// Client is the per-provider capability adapter. Every method is a single
// network call; 401/403 surfaces as ErrAuthRejected so the orchestrator can
// tell "needs reconnection" from transient failure.
type Client interface {
	Name() string
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code, verifier string) (*TokenSet, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*TokenSet, error)
	Profile(ctx context.Context, accessToken string) (*RemoteProfile, error)
	ListActivities(ctx context.Context, accessToken string, offset, limit int) ([]RawActivity, error)
	GetActivity(ctx context.Context, accessToken, id string) (*RawActivity, error)
	CreateWorkout(ctx context.Context, accessToken string, payload WorkoutPayload) (string, error)
	UpdateWorkout(ctx context.Context, accessToken, remoteID string, payload WorkoutPayload) error
}

// Registry holds the configured provider adapters by name.
type Registry struct {
	clients map[string]Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds an adapter under its name.
func (r *Registry) Register(c Client) {
	r.clients[c.Name()] = c
}

// Get returns the adapter for a provider name.
func (r *Registry) Get(name string) (Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, ErrUnknownProvider)
	}
	return c, nil
}

// Names lists registered providers in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
