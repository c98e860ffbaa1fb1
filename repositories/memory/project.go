package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

type projectRepository struct {
	db *DB
}

func NewProjectRepository(db *DB) repositories.ProjectRepository {
	return &projectRepository{db: db}
}

func copyProject(p *models.Project) *models.Project {
	c := *p
	c.JoinCodeExpiresAt = cloneTime(p.JoinCodeExpiresAt)
	c.StartDate = cloneTime(p.StartDate)
	c.EndDate = cloneTime(p.EndDate)
	if p.MaxParticipants != nil {
		v := *p.MaxParticipants
		c.MaxParticipants = &v
	}
	return &c
}

func (r *projectRepository) codeTaken(code, exceptID string) bool {
	for _, p := range r.db.projects {
		if p.JoinCode == code && p.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *projectRepository) Create(_ context.Context, project *models.Project) error {
	if project.CreatorID == "" {
		return repositories.ErrProjectCreatorEmpty
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.codeTaken(project.JoinCode, "") {
		return repositories.ErrJoinCodeConflict
	}
	project.ID = newID(project.ID)
	project.CreatedAt = r.db.stamp(project.CreatedAt)
	r.db.projects = append(r.db.projects, copyProject(project))
	return nil
}

func (r *projectRepository) GetByID(_ context.Context, id string) (*models.Project, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if p := r.db.project(id); p != nil {
		return copyProject(p), nil
	}
	return nil, repositories.ErrProjectNotFound
}

func (r *projectRepository) GetByJoinCode(_ context.Context, code string) (*models.Project, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, p := range r.db.projects {
		if p.JoinCode == code {
			return copyProject(p), nil
		}
	}
	return nil, repositories.ErrProjectNotFound
}

func (r *projectRepository) UpdateJoinCode(_ context.Context, id, code string, expiresAt *time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p := r.db.project(id)
	if p == nil {
		return repositories.ErrProjectNotFound
	}
	if r.codeTaken(code, id) {
		return repositories.ErrJoinCodeConflict
	}
	p.JoinCode = code
	p.JoinCodeExpiresAt = cloneTime(expiresAt)
	return nil
}

func (r *projectRepository) ListOpenWithWaitlist(_ context.Context, now time.Time) ([]*models.Project, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	result := make([]*models.Project, 0)
	for _, p := range r.db.projects {
		if p.StartDate != nil && p.StartDate.After(now) {
			continue
		}
		if p.EndDate != nil && !p.EndDate.After(now) {
			continue
		}
		for _, inv := range r.db.invitations {
			if inv.ProjectID == p.ID && inv.Waiting() {
				result = append(result, copyProject(p))
				break
			}
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i].StartDate, result[j].StartDate
		switch {
		case a == nil && b == nil:
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		case a == nil:
			return true
		case b == nil:
			return false
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
