package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ohshane/p3bl-sub002/models"
)

var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrJoinCodeConflict    = errors.New("join code already in use")
	ErrProjectCreatorEmpty = errors.New("project creator is required")
)

// ProjectRepository reads projects by id and join code and rotates join codes.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	// GetByJoinCode expects an already normalized code.
	GetByJoinCode(ctx context.Context, code string) (*models.Project, error)
	UpdateJoinCode(ctx context.Context, id, code string, expiresAt *time.Time) error
	// ListOpenWithWaitlist returns projects that are open at now and still have
	// accepted invitations without a team.
	ListOpenWithWaitlist(ctx context.Context, now time.Time) ([]*models.Project, error)
}

type postgresProjectRepository struct {
	db *sql.DB
}

func NewPostgresProjectRepository(db *sql.DB) ProjectRepository {
	return &postgresProjectRepository{db: db}
}

const projectColumns = `id, title, creator_id, join_code, join_code_expires_at,
	start_date, end_date, team_size, max_participants, created_at`

func scanProject(s rowScanner) (*models.Project, error) {
	var (
		p               models.Project
		expiresAt       sql.NullTime
		startDate       sql.NullTime
		endDate         sql.NullTime
		maxParticipants sql.NullInt64
	)
	err := s.Scan(
		&p.ID,
		&p.Title,
		&p.CreatorID,
		&p.JoinCode,
		&expiresAt,
		&startDate,
		&endDate,
		&p.TeamSize,
		&maxParticipants,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.JoinCodeExpiresAt = timePtr(expiresAt)
	p.StartDate = timePtr(startDate)
	p.EndDate = timePtr(endDate)
	if maxParticipants.Valid {
		v := int(maxParticipants.Int64)
		p.MaxParticipants = &v
	}
	return &p, nil
}

func (r *postgresProjectRepository) Create(ctx context.Context, project *models.Project) error {
	if project.CreatorID == "" {
		return ErrProjectCreatorEmpty
	}
	query := `
		INSERT INTO projects (title, creator_id, join_code, join_code_expires_at,
			start_date, end_date, team_size, max_participants)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		project.Title,
		project.CreatorID,
		project.JoinCode,
		project.JoinCodeExpiresAt,
		project.StartDate,
		project.EndDate,
		project.TeamSize,
		project.MaxParticipants,
	).Scan(&project.ID, &project.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "projects_join_code_key") {
			return ErrJoinCodeConflict
		}
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *postgresProjectRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidInput(err) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	return p, nil
}

func (r *postgresProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *postgresProjectRepository) GetByJoinCode(ctx context.Context, code string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE join_code = $1`
	return r.findOne(ctx, query, code)
}

func (r *postgresProjectRepository) UpdateJoinCode(ctx context.Context, id, code string, expiresAt *time.Time) error {
	query := `UPDATE projects SET join_code = $1, join_code_expires_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, code, expiresAt, id)
	if err != nil {
		if isUniqueViolation(err, "projects_join_code_key") {
			return ErrJoinCodeConflict
		}
		return fmt.Errorf("failed to update join code: %w", err)
	}
	return checkAffectedRows(result, ErrProjectNotFound)
}

func (r *postgresProjectRepository) ListOpenWithWaitlist(ctx context.Context, now time.Time) ([]*models.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects p
		WHERE (p.start_date IS NULL OR p.start_date <= $1)
		  AND (p.end_date IS NULL OR p.end_date > $1)
		  AND EXISTS (
			SELECT 1 FROM invitations i
			WHERE i.project_id = p.id AND i.status = 'accepted' AND i.team_id IS NULL
		  )
		ORDER BY p.start_date ASC NULLS FIRST, p.created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects with waitlist: %w", err)
	}
	defer rows.Close()

	projects := make([]*models.Project, 0)
	for rows.Next() {
		p, scanErr := scanProject(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan project: %w", scanErr)
		}
		projects = append(projects, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return projects, nil
}
