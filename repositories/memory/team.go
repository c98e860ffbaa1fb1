package memory

import (
	"context"
	"time"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

type teamRepository struct {
	db *DB
}

func NewTeamRepository(db *DB) repositories.TeamRepository {
	return &teamRepository{db: db}
}

func (r *teamRepository) withCount(t *models.Team) *models.Team {
	c := *t
	c.MemberCount = r.db.memberCount(t.ID)
	return &c
}

func copyMembership(m *models.TeamMembership) *models.TeamMembership {
	c := *m
	c.CurrentSessionID = cloneString(m.CurrentSessionID)
	return &c
}

func (r *teamRepository) Create(_ context.Context, team *models.Team) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.project(team.ProjectID) == nil {
		return repositories.ErrTeamProjectInvalid
	}
	team.ID = newID(team.ID)
	team.CreatedAt = r.db.stamp(team.CreatedAt)
	c := *team
	c.MemberCount = 0
	r.db.teams = append(r.db.teams, &c)
	return nil
}

func (r *teamRepository) GetByID(_ context.Context, id string) (*models.Team, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if t := r.db.team(id); t != nil {
		return r.withCount(t), nil
	}
	return nil, repositories.ErrTeamNotFound
}

func (r *teamRepository) ListByProject(_ context.Context, projectID string) ([]*models.Team, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	teams := make([]*models.Team, 0)
	for _, t := range r.db.teams {
		if t.ProjectID == projectID {
			teams = append(teams, r.withCount(t))
		}
	}
	sortByCreated(teams, func(t *models.Team) time.Time { return t.CreatedAt })
	return teams, nil
}

// AddMember checks capacity under the write lock, so unlike the SQL
// implementation it never overfills a team.
func (r *teamRepository) AddMember(_ context.Context, m *models.TeamMembership, capacity int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.team(m.TeamID) == nil {
		return repositories.ErrTeamNotFound
	}
	for _, existing := range r.db.members {
		if existing.UserID != m.UserID {
			continue
		}
		if existing.TeamID == m.TeamID || existing.ProjectID == m.ProjectID {
			return repositories.ErrMembershipConflict
		}
	}
	if capacity > 0 && r.db.memberCount(m.TeamID) >= capacity {
		return repositories.ErrTeamFull
	}
	m.JoinedAt = r.db.stamp(m.JoinedAt)
	r.db.members = append(r.db.members, copyMembership(m))
	return nil
}

func (r *teamRepository) GetMembership(_ context.Context, projectID, userID string) (*models.TeamMembership, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, m := range r.db.members {
		if m.ProjectID == projectID && m.UserID == userID {
			return copyMembership(m), nil
		}
	}
	return nil, repositories.ErrMembershipNotFound
}

func (r *teamRepository) ListMembers(_ context.Context, teamID string) ([]*models.TeamMembership, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	members := make([]*models.TeamMembership, 0)
	for _, m := range r.db.members {
		if m.TeamID == teamID {
			members = append(members, copyMembership(m))
		}
	}
	sortByCreated(members, func(m *models.TeamMembership) time.Time { return m.JoinedAt })
	return members, nil
}

func (r *teamRepository) CountMembersByProject(_ context.Context, projectID string) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	n := 0
	for _, m := range r.db.members {
		if m.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}
