package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	stravaDefaultBaseURL = "https://www.strava.com"
	stravaDefaultAuthURL = "https://www.strava.com/oauth/authorize"
)

// Options configures one provider adapter.
type Options struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	AuthURL      string
	RedirectURL  string
	Timeout      time.Duration
}

// stravaClient talks to the Strava v3 API.
type stravaClient struct {
	opts Options
	http *http.Client
}

// NewStrava creates the Strava adapter.
func NewStrava(opts Options) Client {
	if opts.BaseURL == "" {
		opts.BaseURL = stravaDefaultBaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = stravaDefaultAuthURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &stravaClient{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
	}
}

func (s *stravaClient) Name() string { return "strava" }

func (s *stravaClient) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", s.opts.ClientID)
	q.Set("redirect_uri", s.opts.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "read,activity:read_all,activity:write")
	q.Set("state", state)
	return s.opts.AuthURL + "?" + q.Encode()
}

// stravaTokenResponse is the token endpoint payload.
type stravaTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds
	Scope        string `json:"scope"`
	Athlete      struct {
		ID int64 `json:"id"`
	} `json:"athlete"`
}

func (s *stravaClient) ExchangeCode(ctx context.Context, code, verifier string) (*TokenSet, error) {
	form := map[string]string{
		"client_id":     s.opts.ClientID,
		"client_secret": s.opts.ClientSecret,
		"code":          code,
		"grant_type":    "authorization_code",
	}
	if verifier != "" {
		form["code_verifier"] = verifier
	}

	var resp stravaTokenResponse
	if err := doJSON(ctx, s.http, s.Name(), http.MethodPost, s.opts.BaseURL+"/oauth/token", "", form, &resp); err != nil {
		return nil, err
	}

	return s.tokenSet(resp), nil
}

func (s *stravaClient) RefreshTokens(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := map[string]string{
		"client_id":     s.opts.ClientID,
		"client_secret": s.opts.ClientSecret,
		"refresh_token": refreshToken,
		"grant_type":    "refresh_token",
	}

	var resp stravaTokenResponse
	if err := doJSON(ctx, s.http, s.Name(), http.MethodPost, s.opts.BaseURL+"/oauth/token", "", form, &resp); err != nil {
		return nil, err
	}

	return s.tokenSet(resp), nil
}

func (s *stravaClient) tokenSet(resp stravaTokenResponse) *TokenSet {
	ts := &TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Unix(resp.ExpiresAt, 0).UTC(),
	}
	if resp.Scope != "" {
		ts.Scopes = strings.Split(resp.Scope, ",")
	}
	if resp.Athlete.ID != 0 {
		ts.ProviderUserID = strconv.FormatInt(resp.Athlete.ID, 10)
	}
	return ts
}

func (s *stravaClient) Profile(ctx context.Context, accessToken string) (*RemoteProfile, error) {
	var athlete struct {
		ID        int64  `json:"id"`
		Firstname string `json:"firstname"`
		Lastname  string `json:"lastname"`
	}
	if err := doJSON(ctx, s.http, s.Name(), http.MethodGet, s.opts.BaseURL+"/api/v3/athlete", accessToken, nil, &athlete); err != nil {
		return nil, err
	}

	return &RemoteProfile{
		ProviderUserID: strconv.FormatInt(athlete.ID, 10),
		Name:           strings.TrimSpace(athlete.Firstname + " " + athlete.Lastname),
	}, nil
}

// stravaActivity is the subset of the activity payload the engine consumes.
type stravaActivity struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	SportType   string    `json:"sport_type"`
	Type        string    `json:"type"`
	StartDate   time.Time `json:"start_date"`
	ElapsedTime int       `json:"elapsed_time"` // seconds
	Distance    float64   `json:"distance"`     // meters
}

func (s *stravaClient) ListActivities(ctx context.Context, accessToken string, offset, limit int) ([]RawActivity, error) {
	if limit <= 0 {
		limit = 30
	}
	page := offset/limit + 1

	endpoint := fmt.Sprintf("%s/api/v3/athlete/activities?page=%d&per_page=%d", s.opts.BaseURL, page, limit)

	var activities []stravaActivity
	if err := doJSON(ctx, s.http, s.Name(), http.MethodGet, endpoint, accessToken, nil, &activities); err != nil {
		return nil, err
	}

	raw := make([]RawActivity, 0, len(activities))
	for _, a := range activities {
		raw = append(raw, s.rawActivity(a))
	}
	return raw, nil
}

func (s *stravaClient) GetActivity(ctx context.Context, accessToken, id string) (*RawActivity, error) {
	var a stravaActivity
	endpoint := fmt.Sprintf("%s/api/v3/activities/%s", s.opts.BaseURL, url.PathEscape(id))
	if err := doJSON(ctx, s.http, s.Name(), http.MethodGet, endpoint, accessToken, nil, &a); err != nil {
		return nil, err
	}

	raw := s.rawActivity(a)
	return &raw, nil
}

func (s *stravaClient) rawActivity(a stravaActivity) RawActivity {
	raw := RawActivity{
		Provider:  s.Name(),
		ID:        strconv.FormatInt(a.ID, 10),
		Name:      a.Name,
		StartTime: a.StartDate,
	}

	// sport_type superseded type in the v3 API; older payloads only carry type.
	raw.Type = a.SportType
	if raw.Type == "" {
		raw.Type = a.Type
	}

	if a.ElapsedTime > 0 {
		elapsed := a.ElapsedTime
		raw.ElapsedSec = &elapsed
	}
	if a.Distance > 0 {
		distance := a.Distance
		raw.DistanceM = &distance
	}
	return raw
}

// stravaWorkout is the outbound planned-workout shape.
type stravaWorkout struct {
	Name      string   `json:"name"`
	SportType string   `json:"sport_type"`
	Date      string   `json:"date"` // YYYY-MM-DD
	Distance  *float64 `json:"distance,omitempty"`
	Duration  *int     `json:"duration,omitempty"`
}

func (s *stravaClient) CreateWorkout(ctx context.Context, accessToken string, payload WorkoutPayload) (string, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := doJSON(ctx, s.http, s.Name(), http.MethodPost, s.opts.BaseURL+"/api/v3/workouts", accessToken, s.workout(payload), &resp); err != nil {
		return "", err
	}
	return strconv.FormatInt(resp.ID, 10), nil
}

func (s *stravaClient) UpdateWorkout(ctx context.Context, accessToken, remoteID string, payload WorkoutPayload) error {
	endpoint := fmt.Sprintf("%s/api/v3/workouts/%s", s.opts.BaseURL, url.PathEscape(remoteID))
	return doJSON(ctx, s.http, s.Name(), http.MethodPut, endpoint, accessToken, s.workout(payload), nil)
}

func (s *stravaClient) workout(p WorkoutPayload) stravaWorkout {
	return stravaWorkout{
		Name:      p.Name,
		SportType: p.Type,
		Date:      p.ScheduledDate.Format("2006-01-02"),
		Distance:  p.DistanceM,
		Duration:  p.DurationS,
	}
}
