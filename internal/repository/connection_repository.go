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

// connectionRepository implements ConnectionRepository interface
type connectionRepository struct {
	db *database.Postgres
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *database.Postgres) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `
	id, user_id, provider, provider_user_id, access_token, refresh_token,
	expires_at, scopes, status, last_sync_at, created_at, updated_at
`

// Get retrieves the connection for a (user, provider) pair
func (r *connectionRepository) Get(ctx context.Context, userID, provider string) (*domain.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM provider_connections
		WHERE user_id = $1 AND provider = $2
	`

	row := r.db.DB.QueryRowContext(ctx, query, userID, provider)
	conn, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("connection for user %s provider %s not found: %w", userID, provider, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	return conn, nil
}

// ListByUserID retrieves all provider connections for a user
func (r *connectionRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM provider_connections
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*domain.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connections: %w", err)
	}

	return conns, nil
}

// Upsert creates the connection for a (user, provider) pair or replaces its
// tokens, scopes and status in place. Re-authorization is an update, never a
// second row.
func (r *connectionRepository) Upsert(ctx context.Context, conn *domain.Connection) error {
	query := `
		INSERT INTO provider_connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			provider_user_id = EXCLUDED.provider_user_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scopes = EXCLUDED.scopes,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}

	now := time.Now()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	_, err := r.db.DB.ExecContext(ctx, query,
		conn.ID,
		conn.UserID,
		conn.Provider,
		conn.ProviderUserID,
		conn.AccessToken,
		conn.RefreshToken,
		conn.ExpiresAt,
		pq.Array(conn.Scopes),
		conn.Status,
		conn.LastSyncAt,
		conn.CreatedAt,
		conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}

	return nil
}

// UpdateStatus sets the connection status. Revocation also wipes both tokens.
func (r *connectionRepository) UpdateStatus(ctx context.Context, userID, provider string, status domain.ConnectionStatus) error {
	query := `
		UPDATE provider_connections
		SET status = $3,
		    access_token = CASE WHEN $3 = 'revoked' THEN '' ELSE access_token END,
		    refresh_token = CASE WHEN $3 = 'revoked' THEN '' ELSE refresh_token END,
		    updated_at = NOW()
		WHERE user_id = $1 AND provider = $2
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, provider, status)
	if err != nil {
		return fmt.Errorf("failed to update connection status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("connection for user %s provider %s not found: %w", userID, provider, ErrNotFound)
	}

	return nil
}

// TouchLastSync records the end of a sync pass on the connection row
func (r *connectionRepository) TouchLastSync(ctx context.Context, userID, provider string, at time.Time) error {
	query := `
		UPDATE provider_connections
		SET last_sync_at = $3, updated_at = NOW()
		WHERE user_id = $1 AND provider = $2
	`

	if _, err := r.db.DB.ExecContext(ctx, query, userID, provider, at); err != nil {
		return fmt.Errorf("failed to update last sync timestamp: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*domain.Connection, error) {
	conn := &domain.Connection{}
	var lastSync sql.NullTime
	var scopes pq.StringArray

	err := row.Scan(
		&conn.ID,
		&conn.UserID,
		&conn.Provider,
		&conn.ProviderUserID,
		&conn.AccessToken,
		&conn.RefreshToken,
		&conn.ExpiresAt,
		&scopes,
		&conn.Status,
		&lastSync,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conn.Scopes = scopes
	if lastSync.Valid {
		conn.LastSyncAt = &lastSync.Time
	}

	return conn, nil
}
