package provider

import (
	"fmt"
	"strings"

	"github.com/strideworks/trainsync/internal/domain"
)

// canonicalTypes maps provider sport labels onto the engine's canonical
// activity types. Provider labels are matched case-insensitively after
// stripping spaces and underscores, so "TrailRun", "trail_run" and
// "Trail Run" all land on trail_run.
var canonicalTypes = map[string]string{
	"run":            "run",
	"running":        "run",
	"trailrun":       "trail_run",
	"virtualrun":     "run",
	"treadmill":      "run",
	"longrun":        "long_run",
	"ride":           "ride",
	"cycling":        "ride",
	"virtualride":    "ride",
	"mountainbike":   "ride",
	"gravelride":     "ride",
	"swim":           "swim",
	"swimming":       "swim",
	"openwaterswim":  "swim",
	"lapswimming":    "swim",
	"walk":           "walk",
	"walking":        "walk",
	"hike":           "hike",
	"hiking":         "hike",
	"workout":        "strength",
	"weighttraining": "strength",
	"strength":       "strength",
	"yoga":           "yoga",
	"rowing":         "row",
	"row":            "row",
}

// Normalize converts a provider activity into the canonical shape. Missing
// identity or start time is a validation failure; unknown types and absent
// optional fields pass through untouched so downstream scoring can treat
// them as unknowns.
func Normalize(raw RawActivity) (domain.CanonicalActivity, error) {
	if raw.ID == "" {
		return domain.CanonicalActivity{}, fmt.Errorf("activity from %s has no id", raw.Provider)
	}
	if raw.StartTime.IsZero() {
		return domain.CanonicalActivity{}, fmt.Errorf("activity %s from %s has no start time", raw.ID, raw.Provider)
	}

	act := domain.CanonicalActivity{
		ProviderActivityID: raw.ID,
		StartTime:          raw.StartTime.UTC(),
		Type:               CanonicalType(raw.Type),
		Duration:           raw.ElapsedSec,
		Distance:           raw.DistanceM,
	}
	if raw.Name != "" {
		name := raw.Name
		act.Name = &name
	}
	return act, nil
}

// CanonicalType lowers a provider sport label to the canonical vocabulary.
// Labels with no mapping are returned lowercased with spaces folded to
// underscores rather than dropped, so new provider types still match each
// other across providers.
func CanonicalType(label string) string {
	folded := strings.ToLower(label)
	key := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(folded)
	if canonical, ok := canonicalTypes[key]; ok {
		return canonical
	}
	return strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimSpace(folded))
}
