package domain

import "time"

// WorkoutStatus is the completion state of a planned workout.
type WorkoutStatus string

const (
	WorkoutPlanned   WorkoutStatus = "planned"
	WorkoutCompleted WorkoutStatus = "completed"
	WorkoutSkipped   WorkoutStatus = "skipped"
)

// Workout is an internal training entry owned by a training plan. Planned
// fields are what the plan prescribes; actual fields stay nil until a
// completed provider activity is imported against it.
type Workout struct {
	ID              string        `json:"id" db:"id"`
	PlanID          string        `json:"plan_id" db:"plan_id"`
	UserID          string        `json:"user_id" db:"user_id"`
	ScheduledDate   time.Time     `json:"scheduled_date" db:"scheduled_date"`
	PlannedType     string        `json:"planned_type" db:"planned_type"`
	PlannedDistance *float64      `json:"planned_distance_m" db:"planned_distance_m"` // meters
	PlannedDuration *int          `json:"planned_duration_s" db:"planned_duration_s"` // seconds
	ActualType      *string       `json:"actual_type" db:"actual_type"`
	ActualDistance  *float64      `json:"actual_distance_m" db:"actual_distance_m"`
	ActualDuration  *int          `json:"actual_duration_s" db:"actual_duration_s"`
	Status          WorkoutStatus `json:"status" db:"status"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}
