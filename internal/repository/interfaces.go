package repository

import (
	"context"
	"time"

	"github.com/strideworks/trainsync/internal/domain"
)

// ConnectionRepository defines storage for provider connections. At most one
// row exists per (user, provider); Upsert replaces tokens in place.
type ConnectionRepository interface {
	Get(ctx context.Context, userID, provider string) (*domain.Connection, error)
	ListByUserID(ctx context.Context, userID string) ([]*domain.Connection, error)
	Upsert(ctx context.Context, conn *domain.Connection) error
	UpdateStatus(ctx context.Context, userID, provider string, status domain.ConnectionStatus) error
	TouchLastSync(ctx context.Context, userID, provider string, at time.Time) error
}

// WorkoutRepository defines read/update access to planned workouts. The
// engine never creates workouts; they are owned by the training plan system.
type WorkoutRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Workout, error)
	ListInWindow(ctx context.Context, userID string, from, to time.Time) ([]*domain.Workout, error)
	UpdateActuals(ctx context.Context, id string, actualType string, distance *float64, duration *int) error
}

// SyncRecordRepository is the sync ledger. Upsert is idempotent: the
// (workout, direction) key is unique and a repeat call updates in place.
type SyncRecordRepository interface {
	Get(ctx context.Context, workoutID string, direction domain.SyncDirection) (*domain.SyncRecord, error)
	ListByWorkoutIDs(ctx context.Context, workoutIDs []string, direction domain.SyncDirection) ([]*domain.SyncRecord, error)
	Upsert(ctx context.Context, rec *domain.SyncRecord) error
}
