package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ohshane/p3bl-sub002/models"
)

var (
	ErrTeamNotFound       = errors.New("team not found")
	ErrTeamProjectInvalid = errors.New("team project conflict or invalid")
	ErrTeamFull           = errors.New("team has no spare capacity")
	ErrMembershipNotFound = errors.New("team membership not found")
	// ErrMembershipConflict: пользователь уже состоит в команде этого проекта.
	ErrMembershipConflict = errors.New("user already belongs to a team in this project")
)

type TeamRepository interface {
	Create(ctx context.Context, team *models.Team) error
	GetByID(ctx context.Context, id string) (*models.Team, error)
	// ListByProject returns teams ordered by creation time (id breaks ties),
	// each with MemberCount filled in.
	ListByProject(ctx context.Context, projectID string) ([]*models.Team, error)
	// AddMember inserts the membership only while the team has fewer than
	// capacity members. capacity <= 0 disables the check.
	AddMember(ctx context.Context, m *models.TeamMembership, capacity int) error
	GetMembership(ctx context.Context, projectID, userID string) (*models.TeamMembership, error)
	ListMembers(ctx context.Context, teamID string) ([]*models.TeamMembership, error)
	CountMembersByProject(ctx context.Context, projectID string) (int, error)
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) Create(ctx context.Context, team *models.Team) error {
	query := `
		INSERT INTO teams (project_id, name)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, team.ProjectID, team.Name).Scan(&team.ID, &team.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrTeamProjectInvalid
		}
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, id string) (*models.Team, error) {
	query := `
		SELECT t.id, t.project_id, t.name, t.created_at,
			(SELECT COUNT(*) FROM team_members m WHERE m.team_id = t.id)
		FROM teams t
		WHERE t.id = $1`

	var team models.Team
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&team.ID,
		&team.ProjectID,
		&team.Name,
		&team.CreatedAt,
		&team.MemberCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidInput(err) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

func (r *postgresTeamRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Team, error) {
	query := `
		SELECT t.id, t.project_id, t.name, t.created_at, COUNT(m.user_id)
		FROM teams t
		LEFT JOIN team_members m ON m.team_id = t.id
		WHERE t.project_id = $1
		GROUP BY t.id
		ORDER BY t.created_at ASC, t.id ASC`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]*models.Team, 0)
	for rows.Next() {
		var team models.Team
		if scanErr := rows.Scan(
			&team.ID,
			&team.ProjectID,
			&team.Name,
			&team.CreatedAt,
			&team.MemberCount,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan team: %w", scanErr)
		}
		teams = append(teams, &team)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return teams, nil
}

func (r *postgresTeamRepository) AddMember(ctx context.Context, m *models.TeamMembership, capacity int) error {
	// Вставка выполняется только если в команде ещё есть место. Под READ COMMITTED
	// два параллельных запроса всё ещё могут оба пройти проверку.
	query := `
		INSERT INTO team_members (team_id, project_id, user_id, current_session_id)
		SELECT $1::uuid, $2::uuid, $3::text, $4::uuid
		WHERE $5::int <= 0 OR (SELECT COUNT(*) FROM team_members WHERE team_id = $1::uuid) < $5::int
		RETURNING joined_at`

	err := r.db.QueryRowContext(ctx, query,
		m.TeamID,
		m.ProjectID,
		m.UserID,
		nullString(m.CurrentSessionID),
		capacity,
	).Scan(&m.JoinedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrTeamFull
		case isUniqueViolation(err):
			return ErrMembershipConflict
		case isForeignKeyViolation(err):
			return ErrTeamNotFound
		}
		return fmt.Errorf("failed to add team member: %w", err)
	}
	return nil
}

func scanMembership(s rowScanner) (*models.TeamMembership, error) {
	var (
		m         models.TeamMembership
		sessionID sql.NullString
	)
	if err := s.Scan(&m.TeamID, &m.ProjectID, &m.UserID, &sessionID, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.CurrentSessionID = stringPtr(sessionID)
	return &m, nil
}

func (r *postgresTeamRepository) GetMembership(ctx context.Context, projectID, userID string) (*models.TeamMembership, error) {
	query := `
		SELECT team_id, project_id, user_id, current_session_id, joined_at
		FROM team_members
		WHERE project_id = $1 AND user_id = $2`

	m, err := scanMembership(r.db.QueryRowContext(ctx, query, projectID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidInput(err) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get team membership: %w", err)
	}
	return m, nil
}

func (r *postgresTeamRepository) ListMembers(ctx context.Context, teamID string) ([]*models.TeamMembership, error) {
	query := `
		SELECT team_id, project_id, user_id, current_session_id, joined_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY joined_at ASC`

	rows, err := r.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	members := make([]*models.TeamMembership, 0)
	for rows.Next() {
		m, scanErr := scanMembership(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", scanErr)
		}
		members = append(members, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *postgresTeamRepository) CountMembersByProject(ctx context.Context, projectID string) (int, error) {
	query := `SELECT COUNT(*) FROM team_members WHERE project_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, projectID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count project members: %w", err)
	}
	return count, nil
}
