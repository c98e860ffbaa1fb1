package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ohshane/p3bl-sub002/models"
)

type ChannelRepository interface {
	// InsertIfAbsent inserts the channel with its precomputed id. created is
	// false when a row with that id already existed.
	InsertIfAbsent(ctx context.Context, channel *models.Channel) (created bool, err error)
	// ListByTeam returns every channel row of the team, oldest first.
	ListByTeam(ctx context.Context, projectID, teamID string) ([]*models.Channel, error)
	AddMemberIfAbsent(ctx context.Context, m *models.ChannelMembership) (added bool, err error)
	ListMembers(ctx context.Context, channelID string) ([]*models.ChannelMembership, error)
}

type postgresChannelRepository struct {
	db *sql.DB
}

func NewPostgresChannelRepository(db *sql.DB) ChannelRepository {
	return &postgresChannelRepository{db: db}
}

func (r *postgresChannelRepository) InsertIfAbsent(ctx context.Context, channel *models.Channel) (bool, error) {
	query := `
		INSERT INTO channels (id, project_id, team_id, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, channel.ID, channel.ProjectID, channel.TeamID, channel.Name)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, ErrTeamNotFound
		}
		return false, fmt.Errorf("failed to insert channel: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *postgresChannelRepository) ListByTeam(ctx context.Context, projectID, teamID string) ([]*models.Channel, error) {
	query := `
		SELECT id, project_id, team_id, name, created_at
		FROM channels
		WHERE project_id = $1 AND team_id = $2
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, projectID, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	channels := make([]*models.Channel, 0, 1)
	for rows.Next() {
		var c models.Channel
		if scanErr := rows.Scan(&c.ID, &c.ProjectID, &c.TeamID, &c.Name, &c.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", scanErr)
		}
		channels = append(channels, &c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return channels, nil
}

func (r *postgresChannelRepository) AddMemberIfAbsent(ctx context.Context, m *models.ChannelMembership) (bool, error) {
	query := `
		INSERT INTO channel_members (channel_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (channel_id, user_id) DO NOTHING
		RETURNING joined_at`

	err := r.db.QueryRowContext(ctx, query, m.ChannelID, m.UserID).Scan(&m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if isForeignKeyViolation(err) {
			return false, ErrTeamNotFound
		}
		return false, fmt.Errorf("failed to add channel member: %w", err)
	}
	return true, nil
}

func (r *postgresChannelRepository) ListMembers(ctx context.Context, channelID string) ([]*models.ChannelMembership, error) {
	query := `
		SELECT channel_id, user_id, joined_at
		FROM channel_members
		WHERE channel_id = $1
		ORDER BY joined_at ASC`

	rows, err := r.db.QueryContext(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel members: %w", err)
	}
	defer rows.Close()

	members := make([]*models.ChannelMembership, 0)
	for rows.Next() {
		var m models.ChannelMembership
		if scanErr := rows.Scan(&m.ChannelID, &m.UserID, &m.JoinedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan channel member: %w", scanErr)
		}
		members = append(members, &m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}
