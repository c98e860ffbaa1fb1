package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

func TestChannelIDDeterministic(t *testing.T) {
	a := ChannelID("p1", "t1")
	if a != ChannelID("p1", "t1") {
		t.Error("ChannelID() differs for the same pair")
	}
	if a == ChannelID("p2", "t1") || a == ChannelID("p1", "t2") {
		t.Error("ChannelID() collides for different pairs")
	}
	if len(a) != 36 {
		t.Errorf("ChannelID() = %q, want a UUID string", a)
	}
}

func (f *fixture) joinedTeam(t *testing.T, code string, users ...string) (*models.Project, string) {
	t.Helper()
	p := f.newProject(t, code, 4)
	var teamID string
	for _, u := range users {
		teamID = f.redeem(t, u, code).TeamID
	}
	return p, teamID
}

func TestGetOrCreateIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, teamID := f.joinedTeam(t, "CHN001", "u1", "u2")

	var ids []string
	for _, u := range []string{"u1", "u1", "u2"} {
		ch, err := f.svc.Channels.GetOrCreate(ctx, ChannelInput{ProjectID: p.ID, TeamID: teamID, UserID: u})
		if err != nil {
			t.Fatalf("GetOrCreate(%s) error = %v", u, err)
		}
		ids = append(ids, ch.ID)
		if ch.Name != "Team 1" {
			t.Errorf("default name = %q, want team name", ch.Name)
		}
	}
	want := ChannelID(p.ID, teamID)
	for _, id := range ids {
		if id != want {
			t.Errorf("channel id = %s, want %s", id, want)
		}
	}

	rows, _ := f.repos.Channels.ListByTeam(ctx, p.ID, teamID)
	if len(rows) != 1 {
		t.Errorf("channel rows = %d, want 1", len(rows))
	}
	members, _ := f.repos.Channels.ListMembers(ctx, want)
	if len(members) != 2 {
		t.Errorf("channel members = %d, want 2", len(members))
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, teamID := f.joinedTeam(t, "CHN002", "u1", "u2")

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		// отдельный сервис на каждого вызывающего, как в разных процессах
		svc := NewChannelService(f.repos.Channels, f.repos.Teams, discardLogger())
		user := []string{"u1", "u2"}[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.GetOrCreate(ctx, ChannelInput{ProjectID: p.ID, TeamID: teamID, UserID: user}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("GetOrCreate() error = %v", err)
	}

	rows, _ := f.repos.Channels.ListByTeam(ctx, p.ID, teamID)
	if len(rows) != 1 {
		t.Errorf("channel rows = %d, want 1", len(rows))
	}
	members, _ := f.repos.Channels.ListMembers(ctx, rows[0].ID)
	if len(members) != 2 {
		t.Errorf("channel members = %d, want 2", len(members))
	}
}

func TestGetOrCreatePrefersOldestLegacyChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, teamID := f.joinedTeam(t, "CHN003", "u1")

	older := &models.Channel{ID: "11111111-1111-1111-1111-111111111111", ProjectID: p.ID, TeamID: teamID, Name: "general", CreatedAt: f.clock.Now().Add(-2 * time.Hour)}
	newer := &models.Channel{ID: "22222222-2222-2222-2222-222222222222", ProjectID: p.ID, TeamID: teamID, Name: "general-2", CreatedAt: f.clock.Now().Add(-time.Hour)}
	for _, c := range []*models.Channel{newer, older} {
		if _, err := f.repos.Channels.InsertIfAbsent(ctx, c); err != nil {
			t.Fatalf("insert legacy channel: %v", err)
		}
	}

	ch, err := f.svc.Channels.GetOrCreate(ctx, ChannelInput{ProjectID: p.ID, TeamID: teamID, UserID: "u1"})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if ch.ID != older.ID || ch.Name != "general" {
		t.Errorf("GetOrCreate() = %+v, want oldest legacy channel", ch)
	}
	rows, _ := f.repos.Channels.ListByTeam(ctx, p.ID, teamID)
	if len(rows) != 2 {
		t.Errorf("channel rows = %d, want legacy rows left untouched", len(rows))
	}
}

func TestGetOrCreateAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, teamID := f.joinedTeam(t, "CHN004", "u1")
	other, otherTeam := f.joinedTeam(t, "CHN005", "u2")

	tests := []struct {
		name    string
		in      ChannelInput
		wantErr error
	}{
		{"not a member", ChannelInput{ProjectID: p.ID, TeamID: teamID, UserID: "u2"}, ErrNotAuthorized},
		{"team of another project", ChannelInput{ProjectID: p.ID, TeamID: otherTeam, UserID: "u1"}, ErrTeamNotFound},
		{"unknown team", ChannelInput{ProjectID: other.ID, TeamID: "missing", UserID: "u2"}, ErrTeamNotFound},
		{"missing user", ChannelInput{ProjectID: p.ID, TeamID: teamID}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Channels.GetOrCreate(ctx, tt.in); !errors.Is(err, tt.wantErr) {
				t.Errorf("GetOrCreate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetOrCreateCustomName(t *testing.T) {
	f := newFixture(t)
	p, teamID := f.joinedTeam(t, "CHN006", "u1")

	ch, err := f.svc.Channels.GetOrCreate(context.Background(), ChannelInput{ProjectID: p.ID, TeamID: teamID, UserID: "u1", Name: "  Builders  "})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if ch.Name != "Builders" {
		t.Errorf("name = %q, want Builders", ch.Name)
	}
}

// gatedChannels holds the first ListByTeam call until gate is closed and
// records whether its context was cancelled by then.
type gatedChannels struct {
	repositories.ChannelRepository
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
	ctxErr  error
}

func (r *gatedChannels) ListByTeam(ctx context.Context, projectID, teamID string) ([]*models.Channel, error) {
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.entered)
		<-r.gate
		r.ctxErr = ctx.Err()
	}
	return r.ChannelRepository.ListByTeam(ctx, projectID, teamID)
}

func TestGetOrCreateSurvivesCancelledInitiator(t *testing.T) {
	f := newFixture(t)
	p, teamID := f.joinedTeam(t, "CHN006", "u1", "u2")
	gated := &gatedChannels{
		ChannelRepository: f.repos.Channels,
		entered:           make(chan struct{}),
		gate:              make(chan struct{}),
	}
	svc := NewChannelService(gated, f.repos.Teams, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.GetOrCreate(ctx, ChannelInput{ProjectID: p.ID, TeamID: teamID, UserID: "u1"})
		first <- err
	}()
	<-gated.entered

	second := make(chan error, 1)
	go func() {
		_, err := svc.GetOrCreate(context.Background(), ChannelInput{ProjectID: p.ID, TeamID: teamID, UserID: "u2"})
		second <- err
	}()

	cancel()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled GetOrCreate() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled GetOrCreate() did not return")
	}

	close(gated.gate)
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("GetOrCreate() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("GetOrCreate() did not return")
	}
	if gated.ctxErr != nil {
		t.Errorf("shared ensure saw ctx error %v", gated.ctxErr)
	}

	rows, err := f.repos.Channels.ListByTeam(context.Background(), p.ID, teamID)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != ChannelID(p.ID, teamID) {
		t.Errorf("channels = %+v, want the deterministic one", rows)
	}
}
