package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	garminDefaultBaseURL = "https://apis.garmin.com"
	garminDefaultAuthURL = "https://connect.garmin.com/oauth2Confirm"
)

// garminClient talks to the Garmin Connect API. Garmin uses PKCE, so the
// code verifier is mandatory on exchange.
type garminClient struct {
	opts Options
	http *http.Client
}

// NewGarmin creates the Garmin adapter.
func NewGarmin(opts Options) Client {
	if opts.BaseURL == "" {
		opts.BaseURL = garminDefaultBaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = garminDefaultAuthURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &garminClient{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
	}
}

func (g *garminClient) Name() string { return "garmin" }

func (g *garminClient) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", g.opts.ClientID)
	q.Set("redirect_uri", g.opts.RedirectURL)
	q.Set("response_type", "code")
	q.Set("state", state)
	return g.opts.AuthURL + "?" + q.Encode()
}

type garminTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // seconds from now
	Scope        string `json:"scope"`
}

func (g *garminClient) ExchangeCode(ctx context.Context, code, verifier string) (*TokenSet, error) {
	if verifier == "" {
		return nil, fmt.Errorf("garmin requires a code verifier")
	}

	form := map[string]string{
		"client_id":     g.opts.ClientID,
		"client_secret": g.opts.ClientSecret,
		"code":          code,
		"code_verifier": verifier,
		"grant_type":    "authorization_code",
	}

	var resp garminTokenResponse
	if err := doJSON(ctx, g.http, g.Name(), http.MethodPost, g.opts.BaseURL+"/di-oauth2-service/oauth/token", "", form, &resp); err != nil {
		return nil, err
	}

	return g.tokenSet(resp), nil
}

func (g *garminClient) RefreshTokens(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := map[string]string{
		"client_id":     g.opts.ClientID,
		"client_secret": g.opts.ClientSecret,
		"refresh_token": refreshToken,
		"grant_type":    "refresh_token",
	}

	var resp garminTokenResponse
	if err := doJSON(ctx, g.http, g.Name(), http.MethodPost, g.opts.BaseURL+"/di-oauth2-service/oauth/token", "", form, &resp); err != nil {
		return nil, err
	}

	return g.tokenSet(resp), nil
}

func (g *garminClient) tokenSet(resp garminTokenResponse) *TokenSet {
	ts := &TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC(),
	}
	if resp.Scope != "" {
		ts.Scopes = []string{resp.Scope}
	}
	return ts
}

func (g *garminClient) Profile(ctx context.Context, accessToken string) (*RemoteProfile, error) {
	var user struct {
		UserID string `json:"userId"`
	}
	if err := doJSON(ctx, g.http, g.Name(), http.MethodGet, g.opts.BaseURL+"/wellness-api/rest/user/id", accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &RemoteProfile{ProviderUserID: user.UserID}, nil
}

// garminActivity is the subset of the activity summary the engine consumes.
type garminActivity struct {
	ActivityID      int64   `json:"activityId"`
	ActivityName    string  `json:"activityName"`
	ActivityType    string  `json:"activityType"`
	StartTimeInSecs int64   `json:"startTimeInSeconds"`
	DurationInSecs  float64 `json:"durationInSeconds"`
	DistanceInM     float64 `json:"distanceInMeters"`
}

func (g *garminClient) ListActivities(ctx context.Context, accessToken string, offset, limit int) ([]RawActivity, error) {
	if limit <= 0 {
		limit = 30
	}

	endpoint := fmt.Sprintf("%s/wellness-api/rest/activities?start=%d&limit=%d", g.opts.BaseURL, offset, limit)

	var activities []garminActivity
	if err := doJSON(ctx, g.http, g.Name(), http.MethodGet, endpoint, accessToken, nil, &activities); err != nil {
		return nil, err
	}

	raw := make([]RawActivity, 0, len(activities))
	for _, a := range activities {
		raw = append(raw, g.rawActivity(a))
	}
	return raw, nil
}

func (g *garminClient) GetActivity(ctx context.Context, accessToken, id string) (*RawActivity, error) {
	var a garminActivity
	endpoint := fmt.Sprintf("%s/wellness-api/rest/activities/%s", g.opts.BaseURL, url.PathEscape(id))
	if err := doJSON(ctx, g.http, g.Name(), http.MethodGet, endpoint, accessToken, nil, &a); err != nil {
		return nil, err
	}

	raw := g.rawActivity(a)
	return &raw, nil
}

func (g *garminClient) rawActivity(a garminActivity) RawActivity {
	raw := RawActivity{
		Provider: g.Name(),
		Name:     a.ActivityName,
		Type:     a.ActivityType,
	}
	if a.ActivityID != 0 {
		raw.ID = fmt.Sprintf("%d", a.ActivityID)
	}
	if a.StartTimeInSecs != 0 {
		raw.StartTime = time.Unix(a.StartTimeInSecs, 0).UTC()
	}
	if a.DurationInSecs > 0 {
		elapsed := int(a.DurationInSecs)
		raw.ElapsedSec = &elapsed
	}
	if a.DistanceInM > 0 {
		distance := a.DistanceInM
		raw.DistanceM = &distance
	}
	return raw
}

type garminWorkout struct {
	WorkoutName   string   `json:"workoutName"`
	SportType     string   `json:"sportType"`
	ScheduledDate string   `json:"scheduledDate"` // YYYY-MM-DD
	DistanceInM   *float64 `json:"distanceInMeters,omitempty"`
	DurationInS   *int     `json:"durationInSeconds,omitempty"`
}

func (g *garminClient) CreateWorkout(ctx context.Context, accessToken string, payload WorkoutPayload) (string, error) {
	var resp struct {
		WorkoutID int64 `json:"workoutId"`
	}
	if err := doJSON(ctx, g.http, g.Name(), http.MethodPost, g.opts.BaseURL+"/workout-service/workout", accessToken, g.workout(payload), &resp); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", resp.WorkoutID), nil
}

func (g *garminClient) UpdateWorkout(ctx context.Context, accessToken, remoteID string, payload WorkoutPayload) error {
	endpoint := fmt.Sprintf("%s/workout-service/workout/%s", g.opts.BaseURL, url.PathEscape(remoteID))
	return doJSON(ctx, g.http, g.Name(), http.MethodPut, endpoint, accessToken, g.workout(payload), nil)
}

func (g *garminClient) workout(p WorkoutPayload) garminWorkout {
	return garminWorkout{
		WorkoutName:   p.Name,
		SportType:     p.Type,
		ScheduledDate: p.ScheduledDate.Format("2006-01-02"),
		DistanceInM:   p.DistanceM,
		DurationInS:   p.DurationS,
	}
}
