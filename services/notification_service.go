package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

// Notifier delivers a notification to a user. Delivery is best effort.
type Notifier interface {
	Emit(ctx context.Context, n *models.Notification) error
}

// Publisher pushes a message to a user's live connections.
type Publisher interface {
	PublishToUser(userID, messageType string, payload interface{})
}

type NotificationService struct {
	repo      repositories.NotificationRepository
	publisher Publisher
}

func NewNotificationService(repo repositories.NotificationRepository, publisher Publisher) *NotificationService {
	return &NotificationService{repo: repo, publisher: publisher}
}

// Emit stores the notification, then pushes it to connected clients.
func (s *NotificationService) Emit(ctx context.Context, n *models.Notification) error {
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	if s.publisher != nil {
		s.publisher.PublishToUser(n.UserID, "notification", n)
	}
	return nil
}

func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	list, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, persistenceError("list notifications", err)
	}
	return list, nil
}

// notify emits n and only logs a failure.
func notify(ctx context.Context, logger *slog.Logger, notifier Notifier, n *models.Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Emit(ctx, n); err != nil {
		logger.WarnContext(ctx, "failed to emit notification",
			slog.String("user_id", n.UserID),
			slog.String("type", string(n.Type)),
			slog.Any("error", err),
		)
	}
}

func teamAssignedNotification(userID, projectID, teamID, teamName string) *models.Notification {
	return &models.Notification{
		UserID:    userID,
		Type:      models.NotificationTeamAssigned,
		Title:     "Team assigned",
		Message:   fmt.Sprintf("You have been placed on %s.", teamName),
		ProjectID: &projectID,
		TeamID:    &teamID,
	}
}

func waitlistedNotification(userID string, project *models.Project) *models.Notification {
	msg := fmt.Sprintf("You are on the waitlist for %q. Teams are formed when the project opens.", project.Title)
	if project.StartDate != nil {
		msg = fmt.Sprintf("You are on the waitlist for %q. Teams are formed after %s.",
			project.Title, project.StartDate.UTC().Format("2006-01-02 15:04 MST"))
	}
	projectID := project.ID
	return &models.Notification{
		UserID:    userID,
		Type:      models.NotificationWaitlisted,
		Title:     "Waitlisted",
		Message:   msg,
		ProjectID: &projectID,
	}
}

func invitationNotification(userID string, project *models.Project) *models.Notification {
	projectID := project.ID
	return &models.Notification{
		UserID:    userID,
		Type:      models.NotificationProjectInvitation,
		Title:     "Project invitation",
		Message:   fmt.Sprintf("You have been invited to join %q.", project.Title),
		ProjectID: &projectID,
	}
}
