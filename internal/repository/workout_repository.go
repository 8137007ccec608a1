package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/strideworks/trainsync/internal/domain"
	"github.com/strideworks/trainsync/pkg/database"
)

// workoutRepository implements WorkoutRepository interface
type workoutRepository struct {
	db *database.Postgres
}

// NewWorkoutRepository creates a new workout repository
func NewWorkoutRepository(db *database.Postgres) WorkoutRepository {
	return &workoutRepository{db: db}
}

const workoutColumns = `
	id, plan_id, user_id, scheduled_date, planned_type, planned_distance_m,
	planned_duration_s, actual_type, actual_distance_m, actual_duration_s,
	status, created_at, updated_at
`

// GetByID retrieves a workout by id
func (r *workoutRepository) GetByID(ctx context.Context, id string) (*domain.Workout, error) {
	query := `
		SELECT ` + workoutColumns + `
		FROM workouts
		WHERE id = $1
	`

	row := r.db.DB.QueryRowContext(ctx, query, id)
	w, err := scanWorkout(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workout %s not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get workout: %w", err)
	}

	return w, nil
}

// ListInWindow retrieves a user's workouts scheduled inside [from, to],
// the candidate set handed to the matcher during a pull pass.
func (r *workoutRepository) ListInWindow(ctx context.Context, userID string, from, to time.Time) ([]*domain.Workout, error) {
	query := `
		SELECT ` + workoutColumns + `
		FROM workouts
		WHERE user_id = $1 AND scheduled_date >= $2 AND scheduled_date <= $3
		ORDER BY scheduled_date ASC, id ASC
	`

	rows, err := r.db.DB.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list workouts in window: %w", err)
	}
	defer rows.Close()

	var workouts []*domain.Workout
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workout: %w", err)
		}
		workouts = append(workouts, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workouts: %w", err)
	}

	return workouts, nil
}

// UpdateActuals records the imported activity's measurements on the workout
// and marks it completed.
func (r *workoutRepository) UpdateActuals(ctx context.Context, id string, actualType string, distance *float64, duration *int) error {
	query := `
		UPDATE workouts
		SET actual_type = $2, actual_distance_m = $3, actual_duration_s = $4,
		    status = 'completed', updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query, id, actualType, distance, duration)
	if err != nil {
		return fmt.Errorf("failed to update workout actuals: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("workout %s not found: %w", id, ErrNotFound)
	}

	return nil
}

func scanWorkout(row rowScanner) (*domain.Workout, error) {
	w := &domain.Workout{}
	var plannedDistance, actualDistance sql.NullFloat64
	var plannedDuration, actualDuration sql.NullInt64
	var actualType sql.NullString

	err := row.Scan(
		&w.ID,
		&w.PlanID,
		&w.UserID,
		&w.ScheduledDate,
		&w.PlannedType,
		&plannedDistance,
		&plannedDuration,
		&actualType,
		&actualDistance,
		&actualDuration,
		&w.Status,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if plannedDistance.Valid {
		w.PlannedDistance = &plannedDistance.Float64
	}
	if plannedDuration.Valid {
		d := int(plannedDuration.Int64)
		w.PlannedDuration = &d
	}
	if actualType.Valid {
		w.ActualType = &actualType.String
	}
	if actualDistance.Valid {
		w.ActualDistance = &actualDistance.Float64
	}
	if actualDuration.Valid {
		d := int(actualDuration.Int64)
		w.ActualDuration = &d
	}

	return w, nil
}
