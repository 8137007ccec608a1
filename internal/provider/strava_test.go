package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStrava(t *testing.T, handler http.Handler) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewStrava(Options{
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      srv.URL,
		AuthURL:      srv.URL + "/oauth/authorize",
		RedirectURL:  "https://app.example.com/callback",
		Timeout:      2 * time.Second,
	})
}

func TestStravaListActivities(t *testing.T) {
	client := newTestStrava(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/athlete/activities", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 101, "name": "Morning Run", "sport_type": "Run",
			 "start_date": "2026-03-14T07:30:00Z", "elapsed_time": 3600, "distance": 10000.0},
			{"id": 102, "name": "Spin", "type": "Ride",
			 "start_date": "2026-03-15T18:00:00Z", "elapsed_time": 2400, "distance": 20000.0}
		]`))
	}))

	activities, err := client.ListActivities(context.Background(), "token-123", 0, 30)
	require.NoError(t, err)
	require.Len(t, activities, 2)

	assert.Equal(t, "101", activities[0].ID)
	assert.Equal(t, "strava", activities[0].Provider)
	assert.Equal(t, "Run", activities[0].Type)
	require.NotNil(t, activities[0].ElapsedSec)
	assert.Equal(t, 3600, *activities[0].ElapsedSec)

	// sport_type missing falls back to type
	assert.Equal(t, "Ride", activities[1].Type)
}

func TestStravaGetActivity(t *testing.T) {
	client := newTestStrava(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/activities/101", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 101, "name": "Morning Run", "sport_type": "Run",
			"start_date": "2026-03-14T07:30:00Z", "elapsed_time": 3600, "distance": 10000.0}`))
	}))

	act, err := client.GetActivity(context.Background(), "token-123", "101")
	require.NoError(t, err)
	assert.Equal(t, "101", act.ID)
	assert.Equal(t, time.Date(2026, 3, 14, 7, 30, 0, 0, time.UTC), act.StartTime)
}

func TestStravaAuthRejected(t *testing.T) {
	client := newTestStrava(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.ListActivities(context.Background(), "stale", 0, 30)
	assert.True(t, errors.Is(err, ErrAuthRejected))
}

func TestStravaServerErrorIsUnavailable(t *testing.T) {
	client := newTestStrava(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.ListActivities(context.Background(), "token", 0, 30)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestStravaTransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewStrava(Options{BaseURL: srv.URL, Timeout: time.Second})

	_, err := client.ListActivities(context.Background(), "token", 0, 30)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestStravaCreateWorkout(t *testing.T) {
	client := newTestStrava(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/workouts", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 555}`))
	}))

	distance := 16000.0
	remoteID, err := client.CreateWorkout(context.Background(), "token-123", WorkoutPayload{
		Name:          "Long Run",
		Type:          "long_run",
		ScheduledDate: time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		DistanceM:     &distance,
	})
	require.NoError(t, err)
	assert.Equal(t, "555", remoteID)
}

func TestStravaExchangeCode(t *testing.T) {
	client := newTestStrava(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "new-access", "refresh_token": "new-refresh",
			"expires_at": 4102444800, "scope": "read,activity:read_all",
			"athlete": {"id": 77}}`))
	}))

	ts, err := client.ExchangeCode(context.Background(), "auth-code", "")
	require.NoError(t, err)
	assert.Equal(t, "new-access", ts.AccessToken)
	assert.Equal(t, "77", ts.ProviderUserID)
	assert.Equal(t, []string{"read", "activity:read_all"}, ts.Scopes)
	assert.True(t, ts.ExpiresAt.After(time.Now()))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewStrava(Options{}))
	reg.Register(NewGarmin(Options{}))

	assert.Equal(t, []string{"garmin", "strava"}, reg.Names())

	c, err := reg.Get("strava")
	require.NoError(t, err)
	assert.Equal(t, "strava", c.Name())

	_, err = reg.Get("polar")
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}
