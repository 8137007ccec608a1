package acceptance

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// stubActivity mirrors the provider's activity summary shape.
type stubActivity struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	SportType   string  `json:"sport_type"`
	StartDate   string  `json:"start_date"`
	ElapsedTime int     `json:"elapsed_time"`
	Distance    float64 `json:"distance"`
}

// stravaStub simulates the provider API for acceptance runs: token exchange,
// athlete profile, activity reads and workout writes.
type stravaStub struct {
	server *httptest.Server

	mu           sync.Mutex
	activities   map[int64]stubActivity
	creates      int
	updates      int
	gets         int
	nextRemoteID int64
	rejectAuth   bool
}

func newStravaStub() *stravaStub {
	s := &stravaStub{}
	s.Reset()
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *stravaStub) URL() string { return s.server.URL }
func (s *stravaStub) Close()      { s.server.Close() }

func (s *stravaStub) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = make(map[int64]stubActivity)
	s.creates = 0
	s.updates = 0
	s.gets = 0
	s.nextRemoteID = 1000
	s.rejectAuth = false
}

func (s *stravaStub) AddActivity(a stubActivity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[a.ID] = a
}

func (s *stravaStub) RejectAuth(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectAuth = reject
}

func (s *stravaStub) Calls() (creates, updates, gets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.updates, s.gets
}

func (s *stravaStub) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path

	// Token endpoints do not carry a bearer token.
	if path == "/oauth/token" {
		s.writeJSON(w, map[string]any{
			"access_token":  "stub-access",
			"refresh_token": "stub-refresh",
			"expires_at":    time.Now().Add(6 * time.Hour).Unix(),
			"scope":         "read,activity:read_all",
			"athlete":       map[string]any{"id": 77},
		})
		return
	}

	if s.rejectAuth {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case path == "/api/v3/athlete":
		s.writeJSON(w, map[string]any{"id": 77, "firstname": "Test", "lastname": "Runner"})

	case strings.HasPrefix(path, "/api/v3/activities/"):
		s.gets++
		var id int64
		fmt.Sscanf(strings.TrimPrefix(path, "/api/v3/activities/"), "%d", &id)
		a, ok := s.activities[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.writeJSON(w, a)

	case path == "/api/v3/workouts" && r.Method == http.MethodPost:
		s.creates++
		s.nextRemoteID++
		s.writeJSON(w, map[string]any{"id": s.nextRemoteID})

	case strings.HasPrefix(path, "/api/v3/workouts/") && r.Method == http.MethodPut:
		s.updates++
		s.writeJSON(w, map[string]any{})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *stravaStub) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
