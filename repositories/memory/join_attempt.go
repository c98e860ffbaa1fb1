package memory

import (
	"context"
	"time"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

type joinAttemptRepository struct {
	db *DB
}

func NewJoinAttemptRepository(db *DB) repositories.JoinAttemptRepository {
	return &joinAttemptRepository{db: db}
}

func (r *joinAttemptRepository) Create(_ context.Context, attempt *models.JoinAttempt) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	attempt.ID = newID(attempt.ID)
	attempt.CreatedAt = r.db.stamp(attempt.CreatedAt)
	c := *attempt
	c.IPAddress = cloneString(attempt.IPAddress)
	r.db.attempts = append(r.db.attempts, &c)
	return nil
}

func (r *joinAttemptRepository) CountRecentFailures(_ context.Context, userID, ip string, since time.Time) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	n := 0
	for _, a := range r.db.attempts {
		if a.Success || a.CreatedAt.Before(since) {
			continue
		}
		sameIP := ip != "" && a.IPAddress != nil && *a.IPAddress == ip
		if a.UserID == userID || sameIP {
			n++
		}
	}
	return n, nil
}

func (r *joinAttemptRepository) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	kept := r.db.attempts[:0]
	var removed int64
	for _, a := range r.db.attempts {
		if a.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	r.db.attempts = kept
	return removed, nil
}

// Attempts returns a snapshot of the attempt log.
func (db *DB) Attempts() []models.JoinAttempt {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]models.JoinAttempt, 0, len(db.attempts))
	for _, a := range db.attempts {
		out = append(out, *a)
	}
	return out
}
