package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ohshane/p3bl-sub002/models"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
}

type postgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

func (r *postgresNotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, type, title, message, project_id, team_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		nullString(n.ProjectID),
		nullString(n.TeamID),
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *postgresNotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, type, title, message, project_id, team_id, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Notification, 0)
	for rows.Next() {
		var (
			n         models.Notification
			projectID sql.NullString
			teamID    sql.NullString
		)
		if scanErr := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &projectID, &teamID, &n.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", scanErr)
		}
		n.ProjectID = stringPtr(projectID)
		n.TeamID = stringPtr(teamID)
		result = append(result, &n)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
