package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
	"github.com/ohshane/p3bl-sub002/repositories/memory"
	"github.com/ohshane/p3bl-sub002/storage"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	db      *memory.DB
	repos   *repositories.Set
	svc     *Services
	clock   *testClock
	reports *storage.MemoryStore
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	db := memory.New(memory.WithClock(clock.Now))
	repos := db.Repositories()
	reports := storage.NewMemoryStore("https://reports.example.com")

	svc := New(Dependencies{
		Repos:             repos,
		Reports:           reports,
		Logger:            discardLogger(),
		Policy:            DefaultAdmissionPolicy(),
		JoinCodeTTL:       24 * time.Hour,
		NotifyConcurrency: 4,
	})
	svc.Admission.now = clock.Now
	svc.Waitlist.now = clock.Now
	svc.Allocator.now = clock.Now
	svc.Projects.now = clock.Now
	// без перемешивания: порядок листа ожидания сохраняется
	svc.Allocator.shuffle = func(int, func(i, j int)) {}

	return &fixture{db: db, repos: repos, svc: svc, clock: clock, reports: reports}
}

type projectOption func(*models.Project)

func startsIn(d time.Duration) projectOption {
	return func(p *models.Project) {
		t := p.CreatedAt.Add(d)
		p.StartDate = &t
	}
}

func endsIn(d time.Duration) projectOption {
	return func(p *models.Project) {
		t := p.CreatedAt.Add(d)
		p.EndDate = &t
	}
}

func codeExpiresIn(d time.Duration) projectOption {
	return func(p *models.Project) {
		t := p.CreatedAt.Add(d)
		p.JoinCodeExpiresAt = &t
	}
}

func maxParticipants(n int) projectOption {
	return func(p *models.Project) { p.MaxParticipants = &n }
}

func (f *fixture) newProject(t *testing.T, code string, teamSize int, opts ...projectOption) *models.Project {
	t.Helper()
	p := &models.Project{
		Title:     "Project " + code,
		CreatorID: "creator",
		JoinCode:  code,
		TeamSize:  teamSize,
		CreatedAt: f.clock.Now(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := f.repos.Projects.Create(context.Background(), p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (f *fixture) redeem(t *testing.T, userID, code string) *Outcome {
	t.Helper()
	out, err := f.svc.Admission.Redeem(context.Background(), RedeemInput{UserID: userID, Code: code, IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Redeem(%s, %s) error = %v", userID, code, err)
	}
	return out
}

func (f *fixture) teamName(t *testing.T, teamID string) string {
	t.Helper()
	team, err := f.repos.Teams.GetByID(context.Background(), teamID)
	if err != nil {
		t.Fatalf("get team %s: %v", teamID, err)
	}
	return team.Name
}

func (f *fixture) notificationTypes(t *testing.T, userID string) []models.NotificationType {
	t.Helper()
	list, err := f.repos.Notifications.ListByUser(context.Background(), userID, 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	types := make([]models.NotificationType, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		types = append(types, list[i].Type)
	}
	return types
}

type failingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *failingNotifier) Emit(context.Context, *models.Notification) error {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
	return io.ErrUnexpectedEOF
}
