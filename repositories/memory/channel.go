package memory

import (
	"context"
	"time"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

type channelRepository struct {
	db *DB
}

func NewChannelRepository(db *DB) repositories.ChannelRepository {
	return &channelRepository{db: db}
}

func (r *channelRepository) InsertIfAbsent(_ context.Context, channel *models.Channel) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, c := range r.db.channels {
		if c.ID == channel.ID {
			return false, nil
		}
	}
	if r.db.team(channel.TeamID) == nil {
		return false, repositories.ErrTeamNotFound
	}
	channel.CreatedAt = r.db.stamp(channel.CreatedAt)
	c := *channel
	r.db.channels = append(r.db.channels, &c)
	return true, nil
}

func (r *channelRepository) ListByTeam(_ context.Context, projectID, teamID string) ([]*models.Channel, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	list := make([]*models.Channel, 0, 1)
	for _, c := range r.db.channels {
		if c.ProjectID == projectID && c.TeamID == teamID {
			cp := *c
			list = append(list, &cp)
		}
	}
	sortByCreated(list, func(c *models.Channel) time.Time { return c.CreatedAt })
	return list, nil
}

func (r *channelRepository) AddMemberIfAbsent(_ context.Context, m *models.ChannelMembership) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.channelMembers {
		if existing.ChannelID == m.ChannelID && existing.UserID == m.UserID {
			return false, nil
		}
	}
	m.JoinedAt = r.db.stamp(m.JoinedAt)
	c := *m
	r.db.channelMembers = append(r.db.channelMembers, &c)
	return true, nil
}

func (r *channelRepository) ListMembers(_ context.Context, channelID string) ([]*models.ChannelMembership, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	list := make([]*models.ChannelMembership, 0)
	for _, m := range r.db.channelMembers {
		if m.ChannelID == channelID {
			c := *m
			list = append(list, &c)
		}
	}
	return list, nil
}
