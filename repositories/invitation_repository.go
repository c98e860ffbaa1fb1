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
	ErrInvitationNotFound = errors.New("invitation not found")
	// ErrInvitationConflict is returned when an accepted invitation already
	// exists for the same project and user.
	ErrInvitationConflict = errors.New("invitation already exists for this project and user")
	// ErrInvitationStale means the row was not in the expected state when the
	// conditional update ran.
	ErrInvitationStale   = errors.New("invitation state changed concurrently")
	ErrInvitationInvalid = errors.New("invitation project or team invalid")
)

type InvitationRepository interface {
	Create(ctx context.Context, inv *models.Invitation) error
	GetByID(ctx context.Context, id string) (*models.Invitation, error)
	// FindByUserAndProject returns the most recent invitation with the given status.
	FindByUserAndProject(ctx context.Context, userID, projectID string, status models.InvitationStatus) (*models.Invitation, error)
	// UpdateStatus moves the invitation from one status to another only if the
	// stored status still equals from.
	UpdateStatus(ctx context.Context, id string, from, to models.InvitationStatus, respondedAt time.Time) error
	// SetTeam stamps a team on an invitation that has none yet.
	SetTeam(ctx context.Context, id, teamID string) error
	ListWaiting(ctx context.Context, projectID string) ([]*models.Invitation, error)
	CountWaiting(ctx context.Context, projectID string) (int, error)
	ListPendingByUser(ctx context.Context, userID string) ([]*models.PendingInvitation, error)
}

type postgresInvitationRepository struct {
	db *sql.DB
}

func NewPostgresInvitationRepository(db *sql.DB) InvitationRepository {
	return &postgresInvitationRepository{db: db}
}

const invitationColumns = `id, project_id, user_id, status, team_id, created_at, responded_at`

func scanInvitation(s rowScanner, extra ...interface{}) (*models.Invitation, error) {
	var (
		inv         models.Invitation
		teamID      sql.NullString
		respondedAt sql.NullTime
	)
	dest := []interface{}{
		&inv.ID,
		&inv.ProjectID,
		&inv.UserID,
		&inv.Status,
		&teamID,
		&inv.CreatedAt,
		&respondedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	inv.TeamID = stringPtr(teamID)
	inv.RespondedAt = timePtr(respondedAt)
	return &inv, nil
}

func (r *postgresInvitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	query := `
		INSERT INTO invitations (project_id, user_id, status, team_id, responded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		inv.ProjectID,
		inv.UserID,
		inv.Status,
		nullString(inv.TeamID),
		inv.RespondedAt,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err, "invitations_accepted_project_user_key"):
			return ErrInvitationConflict
		case isForeignKeyViolation(err):
			return ErrInvitationInvalid
		}
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

func (r *postgresInvitationRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidInput(err) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to find invitation: %w", err)
	}
	return inv, nil
}

func (r *postgresInvitationRepository) GetByID(ctx context.Context, id string) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *postgresInvitationRepository) FindByUserAndProject(ctx context.Context, userID, projectID string, status models.InvitationStatus) (*models.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE user_id = $1 AND project_id = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1`
	return r.findOne(ctx, query, userID, projectID, status)
}

func (r *postgresInvitationRepository) UpdateStatus(ctx context.Context, id string, from, to models.InvitationStatus, respondedAt time.Time) error {
	query := `UPDATE invitations SET status = $1, responded_at = $2 WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, to, respondedAt, id, from)
	if err != nil {
		if isUniqueViolation(err, "invitations_accepted_project_user_key") {
			return ErrInvitationConflict
		}
		return fmt.Errorf("failed to update invitation status: %w", err)
	}
	return checkAffectedRows(result, ErrInvitationStale)
}

func (r *postgresInvitationRepository) SetTeam(ctx context.Context, id, teamID string) error {
	query := `UPDATE invitations SET team_id = $1 WHERE id = $2 AND team_id IS NULL`
	result, err := r.db.ExecContext(ctx, query, teamID, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInvitationInvalid
		}
		return fmt.Errorf("failed to set invitation team: %w", err)
	}
	return checkAffectedRows(result, ErrInvitationStale)
}

func (r *postgresInvitationRepository) ListWaiting(ctx context.Context, projectID string) ([]*models.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE project_id = $1 AND status = 'accepted' AND team_id IS NULL
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting invitations: %w", err)
	}
	defer rows.Close()

	invitations := make([]*models.Invitation, 0)
	for rows.Next() {
		inv, scanErr := scanInvitation(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", scanErr)
		}
		invitations = append(invitations, inv)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return invitations, nil
}

func (r *postgresInvitationRepository) CountWaiting(ctx context.Context, projectID string) (int, error) {
	query := `SELECT COUNT(*) FROM invitations WHERE project_id = $1 AND status = 'accepted' AND team_id IS NULL`
	var count int
	if err := r.db.QueryRowContext(ctx, query, projectID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count waiting invitations: %w", err)
	}
	return count, nil
}

func (r *postgresInvitationRepository) ListPendingByUser(ctx context.Context, userID string) ([]*models.PendingInvitation, error) {
	query := `
		SELECT i.id, i.project_id, i.user_id, i.status, i.team_id, i.created_at, i.responded_at, p.title
		FROM invitations i
		JOIN projects p ON p.id = i.project_id
		WHERE i.user_id = $1 AND i.status = 'pending'
		ORDER BY i.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invitations: %w", err)
	}
	defer rows.Close()

	result := make([]*models.PendingInvitation, 0)
	for rows.Next() {
		var title string
		inv, scanErr := scanInvitation(rows, &title)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan pending invitation: %w", scanErr)
		}
		result = append(result, &models.PendingInvitation{Invitation: *inv, ProjectTitle: title})
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
