package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ohshane/p3bl-sub002/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository is a read model over project sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	// FirstByProject returns the session with the lowest position.
	FirstByProject(ctx context.Context, projectID string) (*models.Session, error)
}

type postgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(db *sql.DB) SessionRepository {
	return &postgresSessionRepository{db: db}
}

func (r *postgresSessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (project_id, position, title)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, session.ProjectID, session.Position, session.Title).
		Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *postgresSessionRepository) FirstByProject(ctx context.Context, projectID string) (*models.Session, error) {
	query := `
		SELECT id, project_id, position, title, created_at
		FROM sessions
		WHERE project_id = $1
		ORDER BY position ASC, created_at ASC
		LIMIT 1`

	var s models.Session
	err := r.db.QueryRowContext(ctx, query, projectID).Scan(&s.ID, &s.ProjectID, &s.Position, &s.Title, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidInput(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get first session: %w", err)
	}
	return &s, nil
}
