package services

import (
	"log/slog"
	"time"

	"github.com/ohshane/p3bl-sub002/repositories"
	"github.com/ohshane/p3bl-sub002/storage"
)

// Dependencies of New. Publisher, Reports and Notifier are optional.
type Dependencies struct {
	Repos     *repositories.Set
	Publisher Publisher
	Reports   storage.ObjectStore
	// Notifier replaces the store-and-push NotificationService when set.
	Notifier Notifier
	Logger   *slog.Logger

	Policy            AdmissionPolicy
	JoinCodeTTL       time.Duration
	NotifyConcurrency int
}

type Services struct {
	Admission     *AdmissionService
	Waitlist      *WaitlistService
	Allocator     *AllocatorService
	Channels      *ChannelService
	Projects      *ProjectService
	Notifications *NotificationService
}

func New(deps Dependencies) *Services {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifications := NewNotificationService(deps.Repos.Notifications, deps.Publisher)
	var notifier Notifier = notifications
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}

	allocator := NewAllocatorService(deps.Repos, notifier, deps.Reports, logger.With(slog.String("component", "allocator")), deps.NotifyConcurrency)
	return &Services{
		Admission:     NewAdmissionService(deps.Repos, allocator, notifier, deps.Policy, logger.With(slog.String("component", "admission"))),
		Waitlist:      NewWaitlistService(deps.Repos, allocator, notifier, logger.With(slog.String("component", "waitlist"))),
		Allocator:     allocator,
		Channels:      NewChannelService(deps.Repos.Channels, deps.Repos.Teams, logger.With(slog.String("component", "channels"))),
		Projects:      NewProjectService(deps.Repos.Projects, deps.JoinCodeTTL, logger.With(slog.String("component", "projects"))),
		Notifications: notifications,
	}
}
