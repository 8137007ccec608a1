package domain

import "time"

// SyncDirection tags which way a workout/activity pair was synchronized.
type SyncDirection string

const (
	DirectionToProvider   SyncDirection = "to_provider"
	DirectionFromProvider SyncDirection = "from_provider"
)

// SyncStatus is the last known outcome recorded in the ledger.
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
	SyncStatusPending SyncStatus = "pending"
)

// SyncRecord is the durable ledger entry linking one workout to one remote
// record for a direction. At most one record exists per (workout, direction);
// re-sync updates it in place, which is what makes retries idempotent.
type SyncRecord struct {
	ID           string        `json:"id" db:"id"`
	WorkoutID    string        `json:"workout_id" db:"workout_id"`
	UserID       string        `json:"user_id" db:"user_id"`
	Direction    SyncDirection `json:"direction" db:"direction"`
	RemoteID     string        `json:"remote_id" db:"remote_id"`
	Status       SyncStatus    `json:"status" db:"status"`
	Error        *string       `json:"error" db:"error"`
	LastSyncedAt time.Time     `json:"last_synced_at" db:"last_synced_at"`
}

// FailureReason classifies why a single batch item failed.
type FailureReason string

const (
	ReasonCredentialMissing    FailureReason = "credential_missing"
	ReasonCredentialExpired    FailureReason = "credential_expired"
	ReasonProviderAuthRejected FailureReason = "provider_auth_rejected"
	ReasonProviderUnavailable  FailureReason = "provider_unavailable"
	ReasonValidation           FailureReason = "validation"
	ReasonNoMatchFound         FailureReason = "no_match_found"
	ReasonPersistence          FailureReason = "persistence"
	ReasonCancelled            FailureReason = "cancelled"
)

// ItemState is the terminal state of one batch item.
type ItemState string

const (
	ItemSucceeded ItemState = "succeeded"
	ItemFailed    ItemState = "failed"
)

// PullItem is one requested import: a remote activity id, optionally pinned
// to an explicit workout. Without a workout id the matcher selects one.
type PullItem struct {
	ActivityID string  `json:"activity_id"`
	WorkoutID  *string `json:"workout_id,omitempty"`
}

// SyncItemResult is the per-item outcome of one orchestration pass.
type SyncItemResult struct {
	WorkoutID  string        `json:"workout_id,omitempty"`
	ActivityID string        `json:"activity_id,omitempty"`
	State      ItemState     `json:"state"`
	RemoteID   string        `json:"remote_id,omitempty"`
	Reason     FailureReason `json:"reason,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// SyncSummary aggregates a whole batch. The batch never throws past its
// boundary; callers always receive a summary with per-item results and a
// capped error list.
type SyncSummary struct {
	Provider          string           `json:"provider"`
	Direction         SyncDirection    `json:"direction"`
	Synced            int              `json:"synced"`
	Failed            int              `json:"failed"`
	Results           []SyncItemResult `json:"results"`
	Errors            []string         `json:"errors,omitempty"`
	ReconnectRequired bool             `json:"reconnect_required"`
}
