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

type InviteInput struct {
	ProjectID string `json:"project_id" validate:"required"`
	ActorID   string `json:"actor_id" validate:"required"`
	UserID    string `json:"user_id" validate:"required,max=128"`
}

// WaitlistService answers invitations and lists waiting participants.
type WaitlistService struct {
	projects    repositories.ProjectRepository
	teams       repositories.TeamRepository
	invitations repositories.InvitationRepository
	allocator   *AllocatorService
	notifier    Notifier
	logger      *slog.Logger
	now         func() time.Time
}

func NewWaitlistService(repos *repositories.Set, allocator *AllocatorService, notifier Notifier, logger *slog.Logger) *WaitlistService {
	return &WaitlistService{
		projects:    repos.Projects,
		teams:       repos.Teams,
		invitations: repos.Invitations,
		allocator:   allocator,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *WaitlistService) loadInvitation(ctx context.Context, id string) (*models.Invitation, error) {
	inv, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrInvitationNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, persistenceError("load invitation", err)
	}
	return inv, nil
}

func (s *WaitlistService) loadProject(ctx context.Context, id string) (*models.Project, error) {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrProjectNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, persistenceError("load project", err)
	}
	return project, nil
}

// Respond records the user's answer to an invitation. Repeating an answer is
// idempotent; the opposite answer fails with ErrInvitationState.
func (s *WaitlistService) Respond(ctx context.Context, invitationID, userID string, accept bool) (*Outcome, error) {
	inv, err := s.loadInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.UserID != userID {
		return nil, ErrNotAuthorized
	}
	if !accept {
		return s.dismiss(ctx, inv)
	}

	switch {
	case inv.Status == models.InvitationDismissed:
		return nil, ErrInvitationState
	case inv.Status == models.InvitationAccepted && inv.TeamID != nil:
		return joined(inv.ProjectID, *inv.TeamID), nil
	}

	project, err := s.loadProject(ctx, inv.ProjectID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	switch TimeStateAt(project.StartDate, project.EndDate, now) {
	case TimeStateClosed:
		return nil, ErrProjectClosed
	case TimeStateScheduled:
		if err := s.accept(ctx, inv, now); err != nil {
			return nil, err
		}
		if inv.Status == models.InvitationPending {
			notify(ctx, s.logger, s.notifier, waitlistedNotification(userID, project))
		}
		return waiting(project.ID, project.StartDate), nil
	}

	placement, err := s.allocator.PlaceOne(ctx, project, userID)
	if err != nil {
		return nil, err
	}
	teamID := placement.Membership.TeamID
	if err := s.accept(ctx, inv, now); err != nil {
		return nil, err
	}
	if err := s.invitations.SetTeam(ctx, inv.ID, teamID); err != nil && !errors.Is(err, repositories.ErrInvitationStale) {
		return nil, persistenceError("update invitation team", err)
	}
	if !placement.Existing {
		notify(ctx, s.logger, s.notifier, teamAssignedNotification(userID, project.ID, teamID, placement.TeamName))
	}
	return joined(project.ID, teamID), nil
}

// accept moves a pending invitation to accepted. An invitation that is
// already accepted is left as is.
func (s *WaitlistService) accept(ctx context.Context, inv *models.Invitation, now time.Time) error {
	if inv.Status != models.InvitationPending {
		return nil
	}
	err := s.invitations.UpdateStatus(ctx, inv.ID, models.InvitationPending, models.InvitationAccepted, now)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrInvitationConflict):
		// пользователь уже в листе ожидания по другой записи (например, по коду)
		s.logger.InfoContext(ctx, "user already has an accepted invitation",
			slog.String("invitation_id", inv.ID),
			slog.String("project_id", inv.ProjectID),
		)
		return nil
	case errors.Is(err, repositories.ErrInvitationStale):
		current, getErr := s.loadInvitation(ctx, inv.ID)
		if getErr != nil {
			return getErr
		}
		if current.Status != models.InvitationAccepted {
			return ErrInvitationState
		}
		return nil
	}
	return persistenceError("accept invitation", err)
}

func (s *WaitlistService) dismiss(ctx context.Context, inv *models.Invitation) (*Outcome, error) {
	dismissed := &Outcome{Kind: OutcomeDismissed, ProjectID: inv.ProjectID}
	switch inv.Status {
	case models.InvitationDismissed:
		return dismissed, nil
	case models.InvitationAccepted:
		return nil, ErrInvitationState
	}

	err := s.invitations.UpdateStatus(ctx, inv.ID, models.InvitationPending, models.InvitationDismissed, s.now().UTC())
	if errors.Is(err, repositories.ErrInvitationStale) {
		current, getErr := s.loadInvitation(ctx, inv.ID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status != models.InvitationDismissed {
			return nil, ErrInvitationState
		}
		return dismissed, nil
	}
	if err != nil {
		return nil, persistenceError("dismiss invitation", err)
	}
	return dismissed, nil
}

// ListWaiting returns accepted invitations without a team, oldest first.
func (s *WaitlistService) ListWaiting(ctx context.Context, projectID string) ([]*models.Invitation, error) {
	if _, err := s.loadProject(ctx, projectID); err != nil {
		return nil, err
	}
	list, err := s.invitations.ListWaiting(ctx, projectID)
	if err != nil {
		return nil, persistenceError("list waiting participants", err)
	}
	return list, nil
}

func (s *WaitlistService) ListPending(ctx context.Context, userID string) ([]*models.PendingInvitation, error) {
	list, err := s.invitations.ListPendingByUser(ctx, userID)
	if err != nil {
		return nil, persistenceError("list pending invitations", err)
	}
	return list, nil
}

// Invite creates a pending invitation on behalf of the project creator. An
// existing pending invitation for the user is returned unchanged; team
// members and waiting users get ErrInvitationState.
func (s *WaitlistService) Invite(ctx context.Context, in InviteInput) (*models.Invitation, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	project, err := s.loadProject(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.CreatorID != in.ActorID {
		return nil, ErrNotAuthorized
	}
	if TimeStateAt(project.StartDate, project.EndDate, s.now().UTC()) == TimeStateClosed {
		return nil, ErrProjectClosed
	}

	if _, err := s.teams.GetMembership(ctx, project.ID, in.UserID); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, repositories.ErrMembershipNotFound) {
		return nil, persistenceError("load team membership", err)
	}

	existing, err := s.invitations.FindByUserAndProject(ctx, in.UserID, project.ID, models.InvitationPending)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrInvitationNotFound) {
		return nil, persistenceError("load invitation", err)
	}
	if _, err := s.invitations.FindByUserAndProject(ctx, in.UserID, project.ID, models.InvitationAccepted); err == nil {
		return nil, ErrInvitationState
	} else if !errors.Is(err, repositories.ErrInvitationNotFound) {
		return nil, persistenceError("load invitation", err)
	}

	inv := &models.Invitation{ProjectID: project.ID, UserID: in.UserID, Status: models.InvitationPending}
	if err := s.invitations.Create(ctx, inv); err != nil {
		if errors.Is(err, repositories.ErrInvitationInvalid) {
			return nil, ErrProjectNotFound
		}
		return nil, persistenceError("create invitation", err)
	}
	notify(ctx, s.logger, s.notifier, invitationNotification(in.UserID, project))
	return inv, nil
}
