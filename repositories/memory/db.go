// Package memory implements the repositories on top of in-process slices.
// It is used by tests and by the development server when DATABASE_URL is empty.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

// DB holds every table behind one lock, so checks that span tables
// (capacity, uniqueness) are atomic here.
type DB struct {
	mu  sync.RWMutex
	now func() time.Time

	projects       []*models.Project
	sessions       []*models.Session
	invitations    []*models.Invitation
	teams          []*models.Team
	members        []*models.TeamMembership
	attempts       []*models.JoinAttempt
	channels       []*models.Channel
	channelMembers []*models.ChannelMembership
	notifications  []*models.Notification
}

type Option func(*DB)

// WithClock replaces time.Now for the created_at/joined_at defaults.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

func New(opts ...Option) *DB {
	db := &DB{now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// project and team expect the caller to hold db.mu.
func (db *DB) project(id string) *models.Project {
	for _, p := range db.projects {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (db *DB) team(id string) *models.Team {
	for _, t := range db.teams {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (db *DB) memberCount(teamID string) int {
	n := 0
	for _, m := range db.members {
		if m.TeamID == teamID {
			n++
		}
	}
	return n
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (db *DB) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return db.now().UTC()
	}
	return t
}

// sortByCreated sorts stably, so rows created at the same instant keep
// insertion order.
func sortByCreated[T any](rows []T, createdAt func(T) time.Time) {
	sort.SliceStable(rows, func(i, j int) bool {
		return createdAt(rows[i]).Before(createdAt(rows[j]))
	})
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Repositories returns a repository set backed by db.
func (db *DB) Repositories() *repositories.Set {
	return &repositories.Set{
		Projects:      NewProjectRepository(db),
		Sessions:      NewSessionRepository(db),
		Invitations:   NewInvitationRepository(db),
		Teams:         NewTeamRepository(db),
		JoinAttempts:  NewJoinAttemptRepository(db),
		Channels:      NewChannelRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}
