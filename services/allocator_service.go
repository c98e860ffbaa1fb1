package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
	"github.com/ohshane/p3bl-sub002/storage"
)

const (
	maxPlaceAttempts         = 3
	defaultNotifyConcurrency = 8
	noParticipantsMessage    = "no participants to allocate"
)

// Placement is the result of PlaceOne.
type Placement struct {
	Membership *models.TeamMembership
	TeamName   string
	// Existing is true when the user already had a team in the project.
	Existing bool
}

type AllocationResult struct {
	AllocatedCount int    `json:"allocated_count"`
	TeamsCreated   int    `json:"teams_created"`
	Message        string `json:"message,omitempty"`
	ReportURL      string `json:"report_url,omitempty"`
}

type ProjectAllocation struct {
	ProjectID string            `json:"project_id"`
	Result    *AllocationResult `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type rosterReport struct {
	ProjectID   string              `json:"project_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	Teams       []rosterReportEntry `json:"teams"`
}

type rosterReportEntry struct {
	TeamID  string   `json:"team_id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// AllocatorService places participants into teams limited by project.TeamSize.
type AllocatorService struct {
	projects    repositories.ProjectRepository
	teams       repositories.TeamRepository
	sessions    repositories.SessionRepository
	invitations repositories.InvitationRepository
	notifier    Notifier
	reports     storage.ObjectStore
	logger      *slog.Logger

	notifyConcurrency int
	now               func() time.Time
	shuffle           func(n int, swap func(i, j int))
}

// NewAllocatorService: reports may be nil, then no roster report is written.
func NewAllocatorService(
	repos *repositories.Set,
	notifier Notifier,
	reports storage.ObjectStore,
	logger *slog.Logger,
	notifyConcurrency int,
) *AllocatorService {
	if notifyConcurrency <= 0 {
		notifyConcurrency = defaultNotifyConcurrency
	}
	return &AllocatorService{
		projects:          repos.Projects,
		teams:             repos.Teams,
		sessions:          repos.Sessions,
		invitations:       repos.Invitations,
		notifier:          notifier,
		reports:           reports,
		logger:            logger,
		notifyConcurrency: notifyConcurrency,
		now:               time.Now,
		shuffle:           rand.Shuffle,
	}
}

func (s *AllocatorService) firstSessionID(ctx context.Context, projectID string) (*string, error) {
	session, err := s.sessions.FirstByProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, persistenceError("load project sessions", err)
	}
	return &session.ID, nil
}

func teamName(n int) string {
	return fmt.Sprintf("Team %d", n)
}

// PlaceOne puts the user on the oldest team with spare capacity, creating
// "Team N" when every team is full.
func (s *AllocatorService) PlaceOne(ctx context.Context, project *models.Project, userID string) (*Placement, error) {
	if project.TeamSize <= 0 {
		return nil, newValidationError("team_size", "must be positive")
	}
	sessionID, err := s.firstSessionID(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxPlaceAttempts; attempt++ {
		teams, err := s.teams.ListByProject(ctx, project.ID)
		if err != nil {
			return nil, persistenceError("list teams", err)
		}

		var target *models.Team
		for _, t := range teams {
			if t.MemberCount < project.TeamSize {
				target = t
				break
			}
		}
		if target == nil {
			target = &models.Team{ProjectID: project.ID, Name: teamName(len(teams) + 1)}
			if err := s.teams.Create(ctx, target); err != nil {
				if errors.Is(err, repositories.ErrTeamProjectInvalid) {
					return nil, ErrProjectNotFound
				}
				return nil, persistenceError("create team", err)
			}
		}

		m := &models.TeamMembership{
			TeamID:           target.ID,
			ProjectID:        project.ID,
			UserID:           userID,
			CurrentSessionID: sessionID,
		}
		err = s.teams.AddMember(ctx, m, project.TeamSize)
		switch {
		case err == nil:
			return &Placement{Membership: m, TeamName: target.Name}, nil
		case errors.Is(err, repositories.ErrMembershipConflict):
			return s.existingPlacement(ctx, project.ID, userID)
		case errors.Is(err, repositories.ErrTeamFull), errors.Is(err, repositories.ErrTeamNotFound):
			// команду заполнили или удалили параллельно, пересканируем
			s.logger.DebugContext(ctx, "team changed during placement, retrying",
				slog.String("project_id", project.ID),
				slog.String("team_id", target.ID),
				slog.Int("attempt", attempt+1),
			)
			continue
		default:
			return nil, persistenceError("add team member", err)
		}
	}
	return nil, persistenceError("place participant", fmt.Errorf("no team accepted the member after %d attempts", maxPlaceAttempts))
}

func (s *AllocatorService) existingPlacement(ctx context.Context, projectID, userID string) (*Placement, error) {
	m, err := s.teams.GetMembership(ctx, projectID, userID)
	if err != nil {
		return nil, persistenceError("load team membership", err)
	}
	p := &Placement{Membership: m, Existing: true}
	if team, err := s.teams.GetByID(ctx, m.TeamID); err == nil {
		p.TeamName = team.Name
	}
	return p, nil
}

// AllocateAll splits the waiting pool of a project into new teams. Progress
// made before a failure is kept; calling it again handles the remainder.
func (s *AllocatorService) AllocateAll(ctx context.Context, projectID string) (*AllocationResult, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repositories.ErrProjectNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, persistenceError("load project", err)
	}
	if project.TeamSize <= 0 {
		return nil, newValidationError("team_size", "must be positive")
	}

	waitingList, err := s.invitations.ListWaiting(ctx, projectID)
	if err != nil {
		return nil, persistenceError("list waiting participants", err)
	}
	pool, err := s.excludePlaced(ctx, waitingList)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return &AllocationResult{Message: noParticipantsMessage}, nil
	}

	s.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	sessionID, err := s.firstSessionID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	existing, err := s.teams.ListByProject(ctx, projectID)
	if err != nil {
		return nil, persistenceError("list teams", err)
	}

	result := &AllocationResult{}
	report := rosterReport{ProjectID: projectID, GeneratedAt: s.now().UTC()}
	var pending []*models.Notification
	defer func() { s.emitAll(ctx, pending) }()

	// пустые команды остаются после прерванного распределения, их занимаем первыми
	var empty []*models.Team
	for _, t := range existing {
		if t.MemberCount == 0 {
			empty = append(empty, t)
		}
	}

	for start := 0; start < len(pool); start += project.TeamSize {
		end := min(start+project.TeamSize, len(pool))

		var team *models.Team
		if len(empty) > 0 {
			team, empty = empty[0], empty[1:]
		} else {
			team = &models.Team{ProjectID: projectID, Name: teamName(len(existing) + result.TeamsCreated + 1)}
			if err := s.teams.Create(ctx, team); err != nil {
				return result, persistenceError("create team", err)
			}
			result.TeamsCreated++
		}
		entry := rosterReportEntry{TeamID: team.ID, Name: team.Name}

		for _, inv := range pool[start:end] {
			placed, err := s.placeInvitation(ctx, project, team, inv, sessionID)
			if err != nil {
				return result, err
			}
			if !placed {
				continue
			}
			result.AllocatedCount++
			entry.Members = append(entry.Members, inv.UserID)
			pending = append(pending, teamAssignedNotification(inv.UserID, projectID, team.ID, team.Name))
		}
		report.Teams = append(report.Teams, entry)
	}

	s.logger.InfoContext(ctx, "participants allocated",
		slog.String("project_id", projectID),
		slog.Int("allocated", result.AllocatedCount),
		slog.Int("teams_created", result.TeamsCreated),
	)
	result.ReportURL = s.writeReport(ctx, report)
	return result, nil
}

// excludePlaced stamps invitations of users who already have a team and
// returns the rest.
func (s *AllocatorService) excludePlaced(ctx context.Context, list []*models.Invitation) ([]*models.Invitation, error) {
	pool := make([]*models.Invitation, 0, len(list))
	for _, inv := range list {
		m, err := s.teams.GetMembership(ctx, inv.ProjectID, inv.UserID)
		if err != nil {
			if errors.Is(err, repositories.ErrMembershipNotFound) {
				pool = append(pool, inv)
				continue
			}
			return nil, persistenceError("load team membership", err)
		}
		if err := s.invitations.SetTeam(ctx, inv.ID, m.TeamID); err != nil && !errors.Is(err, repositories.ErrInvitationStale) {
			return nil, persistenceError("update invitation team", err)
		}
	}
	return pool, nil
}

// placeInvitation reports false when the user was placed elsewhere in the
// meantime; the invitation is then stamped with that team.
func (s *AllocatorService) placeInvitation(ctx context.Context, project *models.Project, team *models.Team, inv *models.Invitation, sessionID *string) (bool, error) {
	m := &models.TeamMembership{
		TeamID:           team.ID,
		ProjectID:        project.ID,
		UserID:           inv.UserID,
		CurrentSessionID: sessionID,
	}
	teamID := team.ID
	placed := true
	if err := s.teams.AddMember(ctx, m, project.TeamSize); err != nil {
		if !errors.Is(err, repositories.ErrMembershipConflict) {
			return false, persistenceError("add team member", err)
		}
		other, getErr := s.teams.GetMembership(ctx, project.ID, inv.UserID)
		if getErr != nil {
			return false, persistenceError("load team membership", getErr)
		}
		teamID, placed = other.TeamID, false
	}
	if err := s.invitations.SetTeam(ctx, inv.ID, teamID); err != nil && !errors.Is(err, repositories.ErrInvitationStale) {
		return placed, persistenceError("update invitation team", err)
	}
	return placed, nil
}

// emitAll fans notifications out with bounded concurrency. notify never
// fails, so the group never cancels.
func (s *AllocatorService) emitAll(ctx context.Context, list []*models.Notification) {
	if len(list) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.notifyConcurrency)
	for _, n := range list {
		n := n
		g.Go(func() error {
			notify(gctx, s.logger, s.notifier, n)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *AllocatorService) writeReport(ctx context.Context, report rosterReport) string {
	if s.reports == nil {
		return ""
	}
	body, err := json.Marshal(report)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode roster report", slog.Any("error", err))
		return ""
	}
	key := fmt.Sprintf("allocations/%s/%s.json", report.ProjectID, report.GeneratedAt.Format("20060102T150405Z"))
	res, err := s.reports.Put(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to store roster report",
			slog.String("project_id", report.ProjectID),
			slog.String("key", key),
			slog.Any("error", err),
		)
		return ""
	}
	return res.Location
}

// AllocateStarted runs AllocateAll for every opened project that still has
// waiting participants. A failing project does not stop the others.
func (s *AllocatorService) AllocateStarted(ctx context.Context) ([]ProjectAllocation, error) {
	projects, err := s.projects.ListOpenWithWaitlist(ctx, s.now())
	if err != nil {
		return nil, persistenceError("list projects to allocate", err)
	}
	out := make([]ProjectAllocation, 0, len(projects))
	var errs []error
	for _, p := range projects {
		res, err := s.AllocateAll(ctx, p.ID)
		pa := ProjectAllocation{ProjectID: p.ID, Result: res}
		if err != nil {
			pa.Error = err.Error()
			errs = append(errs, fmt.Errorf("project %s: %w", p.ID, err))
			s.logger.ErrorContext(ctx, "automatic allocation failed", slog.String("project_id", p.ID), slog.Any("error", err))
		}
		out = append(out, pa)
	}
	return out, errors.Join(errs...)
}
