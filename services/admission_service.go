package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

const maxLoggedCodeLength = 32

type RedeemInput struct {
	UserID    string `json:"user_id" validate:"required,max=128"`
	Code      string `json:"code" validate:"required,joincode"`
	IPAddress string `json:"ip_address" validate:"max=64"`
}

// AdmissionPolicy limits failed redemptions per user or IP address.
type AdmissionPolicy struct {
	MaxFailures int
	Window      time.Duration
}

func DefaultAdmissionPolicy() AdmissionPolicy {
	return AdmissionPolicy{MaxFailures: 5, Window: 5 * time.Minute}
}

// AdmissionService redeems join codes: it rate limits, checks the project's
// enrollment window, then waitlists or places the user.
type AdmissionService struct {
	projects    repositories.ProjectRepository
	teams       repositories.TeamRepository
	invitations repositories.InvitationRepository
	attempts    repositories.JoinAttemptRepository
	allocator   *AllocatorService
	notifier    Notifier
	policy      AdmissionPolicy
	logger      *slog.Logger
	now         func() time.Time
}

func NewAdmissionService(
	repos *repositories.Set,
	allocator *AllocatorService,
	notifier Notifier,
	policy AdmissionPolicy,
	logger *slog.Logger,
) *AdmissionService {
	if policy.MaxFailures <= 0 || policy.Window <= 0 {
		policy = DefaultAdmissionPolicy()
	}
	return &AdmissionService{
		projects:    repos.Projects,
		teams:       repos.Teams,
		invitations: repos.Invitations,
		attempts:    repos.JoinAttempts,
		allocator:   allocator,
		notifier:    notifier,
		policy:      policy,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *AdmissionService) recordAttempt(ctx context.Context, in RedeemInput, success bool) error {
	attempt := &models.JoinAttempt{
		UserID:  in.UserID,
		Code:    in.Code,
		Success: success,
	}
	if in.IPAddress != "" {
		ip := in.IPAddress
		attempt.IPAddress = &ip
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return persistenceError("record join attempt", err)
	}
	return nil
}

// recordMalformed logs a failed attempt for a code that did not pass
// validation, so malformed guesses count towards the rate limit too.
func (s *AdmissionService) recordMalformed(ctx context.Context, in RedeemInput) {
	if len(in.Code) > maxLoggedCodeLength {
		in.Code = in.Code[:maxLoggedCodeLength]
	}
	if err := s.recordAttempt(ctx, in, false); err != nil {
		s.logger.WarnContext(ctx, "failed to record malformed join attempt",
			slog.String("user_id", in.UserID),
			slog.Any("error", err),
		)
	}
}

// Redeem never returns an error for a rejected code; the reason is in the
// outcome. Errors are validation or persistence failures.
func (s *AdmissionService) Redeem(ctx context.Context, in RedeemInput) (*Outcome, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Code = NormalizeJoinCode(in.Code)
	in.IPAddress = strings.TrimSpace(in.IPAddress)
	if err := validateStruct(in); err != nil {
		if onlyFieldInvalid(err, "code") {
			s.recordMalformed(ctx, in)
		}
		return nil, err
	}
	now := s.now().UTC()

	failures, err := s.attempts.CountRecentFailures(ctx, in.UserID, in.IPAddress, now.Add(-s.policy.Window))
	if err != nil {
		return nil, persistenceError("check join attempts", err)
	}
	if failures >= s.policy.MaxFailures {
		if err := s.recordAttempt(ctx, in, false); err != nil {
			return nil, err
		}
		cooldownEnd := now.Add(s.policy.Window)
		s.logger.WarnContext(ctx, "join code redemption rate limited",
			slog.String("user_id", in.UserID),
			slog.String("ip", in.IPAddress),
			slog.Int("failures", failures),
		)
		return &Outcome{Kind: OutcomeRejected, Reason: RejectRateLimited, CooldownEnd: &cooldownEnd}, nil
	}

	project, err := s.projects.GetByJoinCode(ctx, in.Code)
	if err != nil && !errors.Is(err, repositories.ErrProjectNotFound) {
		return nil, persistenceError("look up project", err)
	}

	var (
		state    TimeState
		expired  bool
		joinable bool
	)
	if project != nil {
		state = TimeStateAt(project.StartDate, project.EndDate, now)
		expired = project.JoinCodeExpired(now)
		joinable = !expired && state != TimeStateClosed
	}
	if err := s.recordAttempt(ctx, in, joinable); err != nil {
		return nil, err
	}

	switch {
	case project == nil:
		return rejected("", RejectNotFound), nil
	case expired:
		return rejected(project.ID, RejectExpired), nil
	case state == TimeStateClosed:
		return rejected(project.ID, RejectClosed), nil
	}

	m, err := s.teams.GetMembership(ctx, project.ID, in.UserID)
	if err == nil {
		return alreadyMember(project.ID, m.TeamID), nil
	}
	if !errors.Is(err, repositories.ErrMembershipNotFound) {
		return nil, persistenceError("load team membership", err)
	}

	_, err = s.invitations.FindByUserAndProject(ctx, in.UserID, project.ID, models.InvitationAccepted)
	if err == nil {
		return waiting(project.ID, project.StartDate), nil
	}
	if !errors.Is(err, repositories.ErrInvitationNotFound) {
		return nil, persistenceError("load invitation", err)
	}

	if full, err := s.projectFull(ctx, project); err != nil {
		return nil, err
	} else if full {
		return rejected(project.ID, RejectFull), nil
	}

	if state == TimeStateScheduled {
		return s.waitlist(ctx, project, in.UserID, now)
	}

	placement, err := s.allocator.PlaceOne(ctx, project, in.UserID)
	if err != nil {
		return nil, err
	}
	if placement.Existing {
		return alreadyMember(project.ID, placement.Membership.TeamID), nil
	}
	s.settlePending(ctx, project.ID, in.UserID, placement.Membership.TeamID, now)
	notify(ctx, s.logger, s.notifier,
		teamAssignedNotification(in.UserID, project.ID, placement.Membership.TeamID, placement.TeamName))
	return joined(project.ID, placement.Membership.TeamID), nil
}

// settlePending accepts a pending invitation of a user who has just joined
// by code and stamps the team on it. The membership is already committed, so
// failures are only logged.
func (s *AdmissionService) settlePending(ctx context.Context, projectID, userID, teamID string, now time.Time) {
	pending, err := s.invitations.FindByUserAndProject(ctx, userID, projectID, models.InvitationPending)
	if errors.Is(err, repositories.ErrInvitationNotFound) {
		return
	}
	if err == nil {
		err = s.invitations.UpdateStatus(ctx, pending.ID, models.InvitationPending, models.InvitationAccepted, now)
	}
	if err == nil {
		err = s.invitations.SetTeam(ctx, pending.ID, teamID)
	}
	if err != nil && !errors.Is(err, repositories.ErrInvitationStale) {
		s.logger.WarnContext(ctx, "failed to settle pending invitation after join",
			slog.String("project_id", projectID),
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

func (s *AdmissionService) projectFull(ctx context.Context, project *models.Project) (bool, error) {
	if project.MaxParticipants == nil {
		return false, nil
	}
	members, err := s.teams.CountMembersByProject(ctx, project.ID)
	if err != nil {
		return false, persistenceError("count project members", err)
	}
	queued, err := s.invitations.CountWaiting(ctx, project.ID)
	if err != nil {
		return false, persistenceError("count waiting participants", err)
	}
	return members+queued >= *project.MaxParticipants, nil
}

// waitlist records an accepted invitation without a team. A pending
// invitation of the user is accepted instead of creating a second row.
func (s *AdmissionService) waitlist(ctx context.Context, project *models.Project, userID string, now time.Time) (*Outcome, error) {
	created := false
	pending, err := s.invitations.FindByUserAndProject(ctx, userID, project.ID, models.InvitationPending)
	switch {
	case err == nil:
		err = s.invitations.UpdateStatus(ctx, pending.ID, models.InvitationPending, models.InvitationAccepted, now)
		created = err == nil
		if errors.Is(err, repositories.ErrInvitationStale) {
			err = nil
		}
	case errors.Is(err, repositories.ErrInvitationNotFound):
		inv := &models.Invitation{
			ProjectID:   project.ID,
			UserID:      userID,
			Status:      models.InvitationAccepted,
			RespondedAt: &now,
		}
		err = s.invitations.Create(ctx, inv)
		created = err == nil
	}
	// параллельный запрос уже поставил пользователя в лист ожидания
	if errors.Is(err, repositories.ErrInvitationConflict) {
		err = nil
	}
	if err != nil {
		return nil, persistenceError("add to waitlist", err)
	}
	if created {
		notify(ctx, s.logger, s.notifier, waitlistedNotification(userID, project))
	}
	return waiting(project.ID, project.StartDate), nil
}
