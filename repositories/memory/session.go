package memory

import (
	"context"
	"sort"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

type sessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) repositories.SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(_ context.Context, session *models.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.project(session.ProjectID) == nil {
		return repositories.ErrProjectNotFound
	}
	session.ID = newID(session.ID)
	session.CreatedAt = r.db.stamp(session.CreatedAt)
	c := *session
	r.db.sessions = append(r.db.sessions, &c)
	return nil
}

func (r *sessionRepository) FirstByProject(_ context.Context, projectID string) (*models.Session, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var list []*models.Session
	for _, s := range r.db.sessions {
		if s.ProjectID == projectID {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		return nil, repositories.ErrSessionNotFound
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Position != list[j].Position {
			return list[i].Position < list[j].Position
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	c := *list[0]
	return &c, nil
}
