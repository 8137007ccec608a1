package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/strideworks/trainsync/internal/domain"
	"github.com/strideworks/trainsync/pkg/database"
)

// syncRecordRepository implements SyncRecordRepository interface
type syncRecordRepository struct {
	db *database.Postgres
}

// NewSyncRecordRepository creates a new sync record repository
func NewSyncRecordRepository(db *database.Postgres) SyncRecordRepository {
	return &syncRecordRepository{db: db}
}

const syncRecordColumns = `
	id, workout_id, user_id, direction, remote_id, status, error, last_synced_at
`

// Get retrieves the ledger entry for a (workout, direction) key
func (r *syncRecordRepository) Get(ctx context.Context, workoutID string, direction domain.SyncDirection) (*domain.SyncRecord, error) {
	query := `
		SELECT ` + syncRecordColumns + `
		FROM sync_records
		WHERE workout_id = $1 AND direction = $2
	`

	row := r.db.DB.QueryRowContext(ctx, query, workoutID, direction)
	rec, err := scanSyncRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sync record for workout %s direction %s not found: %w", workoutID, direction, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get sync record: %w", err)
	}

	return rec, nil
}

// ListByWorkoutIDs retrieves ledger entries for a set of workouts in one
// direction, used by the pull path to detect conflicting candidates.
func (r *syncRecordRepository) ListByWorkoutIDs(ctx context.Context, workoutIDs []string, direction domain.SyncDirection) ([]*domain.SyncRecord, error) {
	if len(workoutIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + syncRecordColumns + `
		FROM sync_records
		WHERE workout_id = ANY($1) AND direction = $2
	`

	rows, err := r.db.DB.QueryContext(ctx, query, pq.Array(workoutIDs), direction)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync records: %w", err)
	}
	defer rows.Close()

	var records []*domain.SyncRecord
	for rows.Next() {
		rec, err := scanSyncRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync records: %w", err)
	}

	return records, nil
}

// Upsert records the outcome of a sync attempt. The (workout_id, direction)
// unique key turns every retry into an update, so the ledger never grows a
// duplicate row and never triggers remote side effects itself.
func (r *syncRecordRepository) Upsert(ctx context.Context, rec *domain.SyncRecord) error {
	query := `
		INSERT INTO sync_records (` + syncRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (workout_id, direction) DO UPDATE SET
			remote_id = EXCLUDED.remote_id,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			last_synced_at = EXCLUDED.last_synced_at
	`

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.LastSyncedAt.IsZero() {
		rec.LastSyncedAt = time.Now()
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		rec.ID,
		rec.WorkoutID,
		rec.UserID,
		rec.Direction,
		rec.RemoteID,
		rec.Status,
		rec.Error,
		rec.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync record: %w", err)
	}

	return nil
}

func scanSyncRecord(row rowScanner) (*domain.SyncRecord, error) {
	rec := &domain.SyncRecord{}
	var errText sql.NullString

	err := row.Scan(
		&rec.ID,
		&rec.WorkoutID,
		&rec.UserID,
		&rec.Direction,
		&rec.RemoteID,
		&rec.Status,
		&errText,
		&rec.LastSyncedAt,
	)
	if err != nil {
		return nil, err
	}

	if errText.Valid {
		rec.Error = &errText.String
	}

	return rec, nil
}
