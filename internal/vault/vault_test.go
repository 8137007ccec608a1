package vault

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/strideworks/trainsync/internal/domain"
	"github.com/strideworks/trainsync/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnRepo struct {
	conns map[string]*domain.Connection
}

func newFakeConnRepo() *fakeConnRepo {
	return &fakeConnRepo{conns: make(map[string]*domain.Connection)}
}

func (f *fakeConnRepo) key(userID, provider string) string { return userID + "/" + provider }

func (f *fakeConnRepo) Get(_ context.Context, userID, provider string) (*domain.Connection, error) {
	conn, ok := f.conns[f.key(userID, provider)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *conn
	return &cp, nil
}

func (f *fakeConnRepo) ListByUserID(_ context.Context, userID string) ([]*domain.Connection, error) {
	var out []*domain.Connection
	for _, c := range f.conns {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeConnRepo) Upsert(_ context.Context, conn *domain.Connection) error {
	cp := *conn
	f.conns[f.key(conn.UserID, conn.Provider)] = &cp
	return nil
}

func (f *fakeConnRepo) UpdateStatus(_ context.Context, userID, provider string, status domain.ConnectionStatus) error {
	conn, ok := f.conns[f.key(userID, provider)]
	if !ok {
		return repository.ErrNotFound
	}
	conn.Status = status
	return nil
}

func (f *fakeConnRepo) TouchLastSync(_ context.Context, userID, provider string, at time.Time) error {
	conn, ok := f.conns[f.key(userID, provider)]
	if !ok {
		return repository.ErrNotFound
	}
	conn.LastSyncAt = &at
	return nil
}

func newTestVault(t *testing.T, repo repository.ConnectionRepository) *Vault {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := New(repo, key)
	require.NoError(t, err)
	return v
}

func TestVault_StoreAndDecrypt(t *testing.T) {
	repo := newFakeConnRepo()
	v := newTestVault(t, repo)
	ctx := context.Background()

	expiry := time.Now().Add(6 * time.Hour)
	conn, err := v.Store(ctx, "user-1", "strava", "athlete-9", TokenSet{
		AccessToken:  "plain-access",
		RefreshToken: "plain-refresh",
		ExpiresAt:    expiry,
		Scopes:       []string{"activity:read", "activity:write"},
	})
	require.NoError(t, err)

	// stored form is never plaintext
	assert.NotEqual(t, "plain-access", conn.AccessToken)
	assert.NotEqual(t, "plain-refresh", conn.RefreshToken)

	got, err := v.Get(ctx, "user-1", "strava")
	require.NoError(t, err)

	access, refresh, err := v.Decrypt(got)
	require.NoError(t, err)
	assert.Equal(t, "plain-access", access)
	assert.Equal(t, "plain-refresh", refresh)
	assert.Equal(t, domain.ConnectionActive, got.Status)
}

func TestVault_GetNotFound(t *testing.T) {
	v := newTestVault(t, newFakeConnRepo())

	_, err := v.Get(context.Background(), "user-1", "garmin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVault_RevokedIsNotFound(t *testing.T) {
	repo := newFakeConnRepo()
	v := newTestVault(t, repo)
	ctx := context.Background()

	_, err := v.Store(ctx, "user-1", "strava", "a", TokenSet{AccessToken: "x", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, "user-1", "strava", domain.ConnectionRevoked))

	_, err = v.Get(ctx, "user-1", "strava")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVault_IsExpired(t *testing.T) {
	v := newTestVault(t, newFakeConnRepo())
	now := time.Date(2025, 1, 12, 8, 0, 0, 0, time.UTC)

	conn := &domain.Connection{ExpiresAt: now.Add(-time.Second)}
	assert.True(t, v.IsExpired(conn, now))

	conn.ExpiresAt = now
	assert.False(t, v.IsExpired(conn, now), "expiry is strict, not inclusive")

	conn.ExpiresAt = now.Add(time.Second)
	assert.False(t, v.IsExpired(conn, now))
}

func TestVault_DecryptLegacyRow(t *testing.T) {
	repo := newFakeConnRepo()
	v := newTestVault(t, repo)
	ctx := context.Background()

	// Simulate a row written before encryption-at-rest landed.
	require.NoError(t, repo.Upsert(ctx, &domain.Connection{
		UserID:      "user-1",
		Provider:    "strava",
		AccessToken: base64.StdEncoding.EncodeToString([]byte("legacy-access")),
		ExpiresAt:   time.Now().Add(time.Hour),
		Status:      domain.ConnectionActive,
	}))

	conn, err := v.Get(ctx, "user-1", "strava")
	require.NoError(t, err)

	access, refresh, err := v.Decrypt(conn)
	require.NoError(t, err)
	assert.Equal(t, "legacy-access", access)
	assert.Empty(t, refresh)
}

func TestVault_DecryptCorrupt(t *testing.T) {
	repo := newFakeConnRepo()
	v := newTestVault(t, repo)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &domain.Connection{
		UserID:      "user-1",
		Provider:    "strava",
		AccessToken: encPrefix + "garbage",
		ExpiresAt:   time.Now().Add(time.Hour),
		Status:      domain.ConnectionActive,
	}))

	conn, err := v.Get(ctx, "user-1", "strava")
	require.NoError(t, err)

	_, _, err = v.Decrypt(conn)
	assert.ErrorIs(t, err, ErrDecrypt)
}
