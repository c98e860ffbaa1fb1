package memory

import (
	"context"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

type notificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) repositories.NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(_ context.Context, n *models.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	n.ID = newID(n.ID)
	n.CreatedAt = r.db.stamp(n.CreatedAt)
	c := *n
	c.ProjectID = cloneString(n.ProjectID)
	c.TeamID = cloneString(n.TeamID)
	r.db.notifications = append(r.db.notifications, &c)
	return nil
}

// ListByUser returns the newest notifications first.
func (r *notificationRepository) ListByUser(_ context.Context, userID string, limit int) ([]*models.Notification, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	list := make([]*models.Notification, 0)
	for i := len(r.db.notifications) - 1; i >= 0 && len(list) < limit; i-- {
		if n := r.db.notifications[i]; n.UserID == userID {
			c := *n
			list = append(list, &c)
		}
	}
	return list, nil
}
