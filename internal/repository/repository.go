package repository

import (
	"github.com/strideworks/trainsync/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	Connection ConnectionRepository
	Workout    WorkoutRepository
	SyncRecord SyncRecordRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres) *Repositories {
	return &Repositories{
		Connection: NewConnectionRepository(db),
		Workout:    NewWorkoutRepository(db),
		SyncRecord: NewSyncRecordRepository(db),
	}
}
