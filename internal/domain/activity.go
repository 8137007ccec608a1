package domain

import "time"

// CanonicalActivity is the provider-agnostic projection of one completed
// remote activity. It is a value object scoped to a single reconciliation
// pass and is never persisted. Optional fields a provider did not report are
// nil, never zero, so downstream matching math is not corrupted.
type CanonicalActivity struct {
	ProviderActivityID string
	StartTime          time.Time
	Duration           *int     // elapsed seconds
	Distance           *float64 // meters
	Type               string   // canonical activity-type tag, e.g. "run"
	Name               *string
}
