package acceptance

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/strideworks/trainsync/internal/domain"
	"github.com/strideworks/trainsync/internal/vault"
)

var scheduled = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func (s *Suite) request(method, path string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, s.BaseURL+path, &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.sessionToken(testUserID))

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *Suite) decode(resp *http.Response, out any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
}

func (s *Suite) seedConnection(expiresAt time.Time) {
	_, err := s.Vault.Store(context.Background(), testUserID, "strava", "77", vault.TokenSet{
		AccessToken:  "stub-access",
		RefreshToken: "stub-refresh",
		ExpiresAt:    expiresAt,
		Scopes:       []string{"activity:read_all"},
	})
	s.Require().NoError(err)
}

func (s *Suite) seedWorkout(id string, sched time.Time, plannedType string) {
	_, err := s.Postgres.DB.Exec(`
		INSERT INTO workouts (id, plan_id, user_id, scheduled_date, planned_type,
			planned_distance_m, planned_duration_s, status)
		VALUES ($1, 'plan-1', $2, $3, $4, 10000, 3600, 'planned')
	`, id, testUserID, sched, plannedType)
	s.Require().NoError(err)
}

func (s *Suite) TestPushCreatesThenUpdates() {
	s.seedConnection(time.Now().Add(time.Hour))
	s.seedWorkout("w1", scheduled, "run")

	var summary domain.SyncSummary
	resp := s.request(http.MethodPost, "/api/v1/sync/strava/push", map[string]any{"workout_ids": []string{"w1"}})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &summary)

	s.Equal(1, summary.Synced)
	s.Equal(0, summary.Failed)
	s.Require().Len(summary.Results, 1)
	s.NotEmpty(summary.Results[0].RemoteID)

	resp = s.request(http.MethodPost, "/api/v1/sync/strava/push", map[string]any{"workout_ids": []string{"w1"}})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &summary)
	s.Equal(1, summary.Synced)

	creates, updates, _ := s.Strava.Calls()
	s.Equal(1, creates, "second push must update the existing remote workout")
	s.Equal(1, updates)

	var status, remoteID string
	err := s.Postgres.DB.QueryRow(`
		SELECT status, remote_id FROM sync_records
		WHERE workout_id = 'w1' AND direction = 'to_provider'
	`).Scan(&status, &remoteID)
	s.Require().NoError(err)
	s.Equal("synced", status)
	s.NotEmpty(remoteID)
}

func (s *Suite) TestPushPartialFailure() {
	s.seedConnection(time.Now().Add(time.Hour))
	s.seedWorkout("w1", scheduled, "run")
	s.seedWorkout("w3", scheduled, "run")

	var summary domain.SyncSummary
	resp := s.request(http.MethodPost, "/api/v1/sync/strava/push",
		map[string]any{"workout_ids": []string{"w1", "missing", "w3"}})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &summary)

	s.Equal(2, summary.Synced)
	s.Equal(1, summary.Failed)
	s.Equal(domain.ItemFailed, summary.Results[1].State)
	s.Equal(domain.ReasonValidation, summary.Results[1].Reason)
	s.False(summary.ReconnectRequired)
}

func (s *Suite) TestPushExpiredCredential() {
	s.seedConnection(time.Now().Add(-time.Minute))
	s.seedWorkout("w1", scheduled, "run")

	var summary domain.SyncSummary
	resp := s.request(http.MethodPost, "/api/v1/sync/strava/push", map[string]any{"workout_ids": []string{"w1"}})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &summary)

	s.Equal(0, summary.Synced)
	s.Equal(1, summary.Failed)
	s.True(summary.ReconnectRequired)
	s.Equal(domain.ReasonCredentialExpired, summary.Results[0].Reason)

	creates, updates, gets := s.Strava.Calls()
	s.Zero(creates+updates+gets, "expired credential must not reach the provider")
}

func (s *Suite) TestPushAuthRejected() {
	s.seedConnection(time.Now().Add(time.Hour))
	s.seedWorkout("w1", scheduled, "run")
	s.Strava.RejectAuth(true)

	var summary domain.SyncSummary
	resp := s.request(http.MethodPost, "/api/v1/sync/strava/push", map[string]any{"workout_ids": []string{"w1"}})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &summary)

	s.Equal(1, summary.Failed)
	s.True(summary.ReconnectRequired)
	s.Equal(domain.ReasonProviderAuthRejected, summary.Results[0].Reason)
}

func (s *Suite) TestPushValidation() {
	s.seedConnection(time.Now().Add(time.Hour))

	resp := s.request(http.MethodPost, "/api/v1/sync/strava/push", map[string]any{"workout_ids": []string{}})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = s.request(http.MethodPost, "/api/v1/sync/polar/push", map[string]any{"workout_ids": []string{"w1"}})
	s.Equal(http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func (s *Suite) TestSyncRequiresSession() {
	req, err := http.NewRequest(http.MethodPost, s.BaseURL+"/api/v1/sync/strava/push", bytes.NewBufferString("{}"))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestPullExplicitWorkout() {
	s.seedConnection(time.Now().Add(time.Hour))
	s.seedWorkout("w1", scheduled, "run")
	s.Strava.AddActivity(stubActivity{
		ID:          501,
		Name:        "Morning Run",
		SportType:   "Run",
		StartDate:   scheduled.Add(7 * time.Hour).Format(time.RFC3339),
		ElapsedTime: 3500,
		Distance:    10200,
	})

	var summary domain.SyncSummary
	resp := s.request(http.MethodPost, "/api/v1/sync/strava/pull", map[string]any{
		"items": []map[string]any{{"activity_id": "501", "workout_id": "w1"}},
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &summary)

	s.Equal(1, summary.Synced)
	s.Equal("w1", summary.Results[0].WorkoutID)

	var status, actualType string
	var distance float64
	var duration int
	err := s.Postgres.DB.QueryRow(`
		SELECT status, actual_type, actual_distance_m, actual_duration_s
		FROM workouts WHERE id = 'w1'
	`).Scan(&status, &actualType, &distance, &duration)
	s.Require().NoError(err)
	s.Equal("completed", status)
	s.Equal("run", actualType)
	s.Equal(10200.0, distance)
	s.Equal(3500, duration)
}

func (s *Suite) TestPullAutoMatch() {
	s.seedConnection(time.Now().Add(time.Hour))
	s.seedWorkout("w1", scheduled, "run")
	s.seedWorkout("w2", scheduled.Add(10*24*time.Hour), "run")
	s.Strava.AddActivity(stubActivity{
		ID:          502,
		Name:        "Morning Run",
		SportType:   "Run",
		StartDate:   scheduled.Add(7 * time.Hour).Format(time.RFC3339),
		ElapsedTime: 3600,
		Distance:    10000,
	})

	var summary domain.SyncSummary
	resp := s.request(http.MethodPost, "/api/v1/sync/strava/pull", map[string]any{
		"items": []map[string]any{{"activity_id": "502"}},
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &summary)

	s.Equal(1, summary.Synced)
	s.Equal("w1", summary.Results[0].WorkoutID)
}

func (s *Suite) TestPullNoMatch() {
	s.seedConnection(time.Now().Add(time.Hour))
	s.seedWorkout("w1", scheduled.Add(10*24*time.Hour), "run")
	s.Strava.AddActivity(stubActivity{
		ID:          503,
		SportType:   "Run",
		StartDate:   scheduled.Format(time.RFC3339),
		ElapsedTime: 3600,
		Distance:    10000,
	})

	var summary domain.SyncSummary
	resp := s.request(http.MethodPost, "/api/v1/sync/strava/pull", map[string]any{
		"items": []map[string]any{{"activity_id": "503"}},
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &summary)

	s.Equal(1, summary.Failed)
	s.Equal(domain.ReasonNoMatchFound, summary.Results[0].Reason)
}

func (s *Suite) TestMissingConnection() {
	s.seedWorkout("w1", scheduled, "run")

	var summary domain.SyncSummary
	resp := s.request(http.MethodPost, "/api/v1/sync/strava/push", map[string]any{"workout_ids": []string{"w1"}})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &summary)

	s.Equal(1, summary.Failed)
	s.Equal(domain.ReasonCredentialMissing, summary.Results[0].Reason)
	s.True(summary.ReconnectRequired)
}

func (s *Suite) TestTokensStoredEncrypted() {
	s.seedConnection(time.Now().Add(time.Hour))

	var access string
	err := s.Postgres.DB.QueryRow(`
		SELECT access_token FROM provider_connections
		WHERE user_id = $1 AND provider = 'strava'
	`, testUserID).Scan(&access)
	s.Require().NoError(err)

	s.NotEqual("stub-access", access, "plaintext token must never hit the database")
	s.Contains(access, "enc1:")
}

func (s *Suite) TestLastSyncTimestamp() {
	s.seedConnection(time.Now().Add(time.Hour))
	s.seedWorkout("w1", scheduled, "run")

	resp := s.request(http.MethodPost, "/api/v1/sync/strava/push", map[string]any{"workout_ids": []string{"w1"}})
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var conns []map[string]any
	resp = s.request(http.MethodGet, "/api/v1/providers", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &conns)

	s.Require().Len(conns, 1)
	s.Equal("strava", conns[0]["provider"])
	s.NotNil(conns[0]["last_sync_at"])
}

func (s *Suite) TestDisconnectWipesTokens() {
	s.seedConnection(time.Now().Add(time.Hour))

	resp := s.request(http.MethodDelete, "/api/v1/providers/strava", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var status, access string
	err := s.Postgres.DB.QueryRow(`
		SELECT status, access_token FROM provider_connections
		WHERE user_id = $1 AND provider = 'strava'
	`, testUserID).Scan(&status, &access)
	s.Require().NoError(err)
	s.Equal("revoked", status)
	s.Empty(access)

	// A revoked connection gates the next sync pass.
	s.seedWorkout("w1", scheduled, "run")
	var summary domain.SyncSummary
	resp = s.request(http.MethodPost, "/api/v1/sync/strava/push", map[string]any{"workout_ids": []string{"w1"}})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &summary)
	s.Equal(domain.ReasonCredentialMissing, summary.Results[0].Reason)
}

func (s *Suite) TestAuthorizeAndCallback() {
	var authorize struct {
		URL string `json:"url"`
	}
	resp := s.request(http.MethodGet, "/api/v1/providers/strava/connect", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &authorize)
	s.Contains(authorize.URL, "state=")

	state := queryParam(s, authorize.URL, "state")

	callback := fmt.Sprintf("/api/v1/providers/callback?state=%s&code=test-code", state)
	resp = s.request(http.MethodGet, callback, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	conn, err := s.Repos.Connection.Get(context.Background(), testUserID, "strava")
	s.Require().NoError(err)
	s.Equal(domain.ConnectionActive, conn.Status)
	s.Equal("77", conn.ProviderUserID)

	// Replay: the nonce was consumed on the first callback.
	resp = s.request(http.MethodGet, callback, nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func (s *Suite) TestCorruptTokenRequiresReconnect() {
	// Ciphertext that carries the modern marker but cannot be opened.
	_, err := s.Postgres.DB.Exec(`
		INSERT INTO provider_connections
			(user_id, provider, provider_user_id, access_token, refresh_token, expires_at, status)
		VALUES ($1, 'strava', '77', 'enc1:AAAA', '', $2, 'active')
	`, testUserID, time.Now().Add(time.Hour))
	s.Require().NoError(err)

	s.seedWorkout("w1", scheduled, "run")

	var summary domain.SyncSummary
	resp := s.request(http.MethodPost, "/api/v1/sync/strava/push", map[string]any{"workout_ids": []string{"w1"}})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &summary)

	s.Equal(1, summary.Failed)
	s.Equal(domain.ReasonCredentialMissing, summary.Results[0].Reason)
	s.True(summary.ReconnectRequired, "an undecryptable token must prompt a reconnect")

	creates, updates, gets := s.Strava.Calls()
	s.Zero(creates+updates+gets)
}

func (s *Suite) TestCallbackRateLimited() {
	resp := s.request(http.MethodGet, "/api/v1/providers/callback?state=bogus&code=x", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// The limiter keys the unauthenticated callback on client address.
	last := resp.StatusCode
	for i := 0; i < 100; i++ {
		resp = s.request(http.MethodGet, "/api/v1/providers/callback?state=bogus&code=x", nil)
		last = resp.StatusCode
		resp.Body.Close()
	}
	s.Equal(http.StatusTooManyRequests, last)
}

func (s *Suite) TestLegacyTokenRowStillWorks() {
	// Rows written before encryption at rest hold bare base64 tokens.
	legacyAccess := base64.StdEncoding.EncodeToString([]byte("stub-access"))
	legacyRefresh := base64.StdEncoding.EncodeToString([]byte("stub-refresh"))

	_, err := s.Postgres.DB.Exec(`
		INSERT INTO provider_connections
			(user_id, provider, provider_user_id, access_token, refresh_token, expires_at, status)
		VALUES ($1, 'strava', '77', $2, $3, $4, 'active')
	`, testUserID, legacyAccess, legacyRefresh, time.Now().Add(time.Hour))
	s.Require().NoError(err)

	s.seedWorkout("w1", scheduled, "run")

	var summary domain.SyncSummary
	resp := s.request(http.MethodPost, "/api/v1/sync/strava/push", map[string]any{"workout_ids": []string{"w1"}})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.decode(resp, &summary)

	s.Equal(1, summary.Synced, "legacy token rows must keep decrypting")
}

func queryParam(s *Suite, rawURL, name string) string {
	u, err := url.Parse(rawURL)
	s.Require().NoError(err)
	return url.QueryEscape(u.Query().Get(name))
}
