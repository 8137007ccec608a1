// Package matching scores completed provider activities against planned
// workouts. The matcher is pure: it takes a snapshot of candidates and a
// policy and returns deterministic, ordered scores, so two runs over the
// same inputs always agree.
package matching

import (
	"math"
	"sort"
	"time"

	"github.com/strideworks/trainsync/internal/domain"
)

// MatchClass describes how confident the engine is in a pairing.
type MatchClass string

const (
	// ClassExact is safe to apply automatically.
	ClassExact MatchClass = "exact"
	// ClassProbable is safe to apply automatically but flagged for review.
	ClassProbable MatchClass = "probable"
	// ClassPossible is surfaced to the user, never auto-applied.
	ClassPossible MatchClass = "possible"
	// ClassConflict means the workout already carries a different remote
	// activity for this direction.
	ClassConflict MatchClass = "conflict"
)

// Policy holds the scoring knobs. Zero thresholds are invalid; use
// DefaultPolicy or populate from config.
type Policy struct {
	// Window bounds the scheduled-date search radius. Activities whose
	// day-truncated delta exceeds the window are excluded outright.
	Window time.Duration

	// Floor is the minimum composite score that yields any match at all.
	Floor float64

	// Classification thresholds, each inclusive.
	Possible float64
	Probable float64
	Exact    float64
}

// DefaultPolicy mirrors the engine's shipped configuration.
func DefaultPolicy() Policy {
	return Policy{
		Window:   24 * time.Hour,
		Floor:    0.40,
		Possible: 0.40,
		Probable: 0.65,
		Exact:    0.85,
	}
}

// Candidate pairs a planned workout with the remote activity id already
// recorded for the relevant direction, if any. A non-nil ExistingRemoteID
// that differs from the scored activity forces ClassConflict.
type Candidate struct {
	Workout          domain.Workout
	ExistingRemoteID *string
}

// ScoredMatch is one candidate's result, already classified.
type ScoredMatch struct {
	WorkoutID string
	Score     float64
	Class     MatchClass
}

// Component weights. Type dominates because cross-type pairings are almost
// never what the athlete meant.
const (
	weightType     = 0.40
	weightDistance = 0.25
	weightDuration = 0.20
	weightDate     = 0.15
)

// typeGroups clusters canonical types whose pairings are plausible but not
// exact, e.g. a planned long_run completed as a plain run.
var typeGroups = map[string]string{
	"run":       "run",
	"long_run":  "run",
	"trail_run": "run",
	"ride":      "ride",
	"swim":      "swim",
	"walk":      "foot",
	"hike":      "foot",
}

// Match scores an activity against every candidate and returns matches at
// or above the policy floor, best first. Ties break on WorkoutID so the
// ordering is stable across runs.
func Match(activity domain.CanonicalActivity, candidates []Candidate, policy Policy) []ScoredMatch {
	matches := make([]ScoredMatch, 0, len(candidates))

	for _, cand := range candidates {
		score, ok := score(activity, cand.Workout, policy)
		if !ok || score < policy.Floor {
			continue
		}

		class := classify(score, policy)
		if cand.ExistingRemoteID != nil && *cand.ExistingRemoteID != activity.ProviderActivityID {
			class = ClassConflict
		}

		matches = append(matches, ScoredMatch{
			WorkoutID: cand.Workout.ID,
			Score:     score,
			Class:     class,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].WorkoutID < matches[j].WorkoutID
	})

	return matches
}

// Best returns the top non-conflict match, or nil when nothing qualifies.
func Best(matches []ScoredMatch) *ScoredMatch {
	for i := range matches {
		if matches[i].Class != ClassConflict {
			return &matches[i]
		}
	}
	return nil
}

func score(activity domain.CanonicalActivity, workout domain.Workout, policy Policy) (float64, bool) {
	ts, ok := typeScore(activity.Type, workout.PlannedType)
	if !ok {
		return 0, false
	}

	ds, ok := dateScore(activity.StartTime, workout.ScheduledDate, policy.Window)
	if !ok {
		return 0, false
	}

	dist := proximityScore(workout.PlannedDistance, activity.Distance)
	durActual := floatPtr(activity.Duration)
	durPlanned := floatPtr(workout.PlannedDuration)
	dur := proximityScore(durPlanned, durActual)

	total := weightType*ts + weightDistance*dist + weightDuration*dur + weightDate*ds
	return total, true
}

// typeScore is 1.0 for an exact type match, 0.5 for types in the same
// group, and excludes the candidate otherwise.
func typeScore(activityType, workoutType string) (float64, bool) {
	if activityType == workoutType {
		return 1.0, true
	}
	ag, aok := typeGroups[activityType]
	wg, wok := typeGroups[workoutType]
	if aok && wok && ag == wg {
		return 0.5, true
	}
	return 0, false
}

// dateScore compares day-truncated dates. A delta beyond the window
// excludes the candidate; inside it the score decays linearly and reaches
// 0.5 at the window edge, so a one-day slip is penalized without sinking
// an otherwise strong pairing.
func dateScore(start, scheduled time.Time, window time.Duration) (float64, bool) {
	a := start.UTC().Truncate(24 * time.Hour)
	b := scheduled.UTC().Truncate(24 * time.Hour)

	delta := a.Sub(b)
	if delta < 0 {
		delta = -delta
	}
	if delta > window {
		return 0, false
	}

	s := 1.0 - float64(delta)/float64(2*window)
	if s < 0 {
		s = 0
	}
	return s, true
}

// proximityScore compares a planned magnitude against an actual one with
// exponential decay on the relative delta. Either side missing scores a
// neutral 0.5 so absent data neither helps nor hurts.
func proximityScore(planned, actual *float64) float64 {
	if planned == nil || actual == nil {
		return 0.5
	}
	max := math.Max(*planned, *actual)
	if max == 0 {
		return 1.0
	}
	rel := math.Abs(*planned-*actual) / max
	return math.Exp(-2 * rel)
}

func classify(score float64, policy Policy) MatchClass {
	switch {
	case score >= policy.Exact:
		return ClassExact
	case score >= policy.Probable:
		return ClassProbable
	default:
		return ClassPossible
	}
}

func floatPtr(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
