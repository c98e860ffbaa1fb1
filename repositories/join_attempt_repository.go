package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ohshane/p3bl-sub002/models"
)

// JoinAttemptRepository is an append-only log of join code redemptions.
type JoinAttemptRepository interface {
	Create(ctx context.Context, attempt *models.JoinAttempt) error
	// CountRecentFailures counts failed attempts since the given time made by
	// the user or, when ip is not empty, from the same IP address.
	CountRecentFailures(ctx context.Context, userID, ip string, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type postgresJoinAttemptRepository struct {
	db *sql.DB
}

func NewPostgresJoinAttemptRepository(db *sql.DB) JoinAttemptRepository {
	return &postgresJoinAttemptRepository{db: db}
}

func (r *postgresJoinAttemptRepository) Create(ctx context.Context, attempt *models.JoinAttempt) error {
	query := `
		INSERT INTO join_attempts (user_id, ip_address, code, success)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		attempt.UserID,
		nullString(attempt.IPAddress),
		attempt.Code,
		attempt.Success,
	).Scan(&attempt.ID, &attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record join attempt: %w", err)
	}
	return nil
}

func (r *postgresJoinAttemptRepository) CountRecentFailures(ctx context.Context, userID, ip string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM join_attempts
		WHERE (user_id = $1 OR ($2 <> '' AND ip_address = $2))
		  AND success = false
		  AND created_at >= $3`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, ip, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count join attempts: %w", err)
	}
	return count, nil
}

func (r *postgresJoinAttemptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM join_attempts WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune join attempts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return n, nil
}
