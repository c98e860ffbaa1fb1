package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

// channelNamespace is fixed forever: changing it changes every channel id.
var channelNamespace = uuid.MustParse("6f1c2a9e-3b7d-4e58-9a41-0c8d5f2e7b13")

// ChannelID derives the channel id of a team. The same pair always yields
// the same id.
func ChannelID(projectID, teamID string) string {
	return uuid.NewSHA1(channelNamespace, []byte(projectID+"/"+teamID)).String()
}

type ChannelInput struct {
	ProjectID string `json:"project_id" validate:"required"`
	TeamID    string `json:"team_id" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
	Name      string `json:"name" validate:"max=100"`
}

// ChannelService provisions one channel per team without locking: the id is
// deterministic and both inserts are no-ops on conflict.
type ChannelService struct {
	channels repositories.ChannelRepository
	teams    repositories.TeamRepository
	logger   *slog.Logger
	group    singleflight.Group
}

func NewChannelService(channels repositories.ChannelRepository, teams repositories.TeamRepository, logger *slog.Logger) *ChannelService {
	return &ChannelService{channels: channels, teams: teams, logger: logger}
}

func (s *ChannelService) GetOrCreate(ctx context.Context, in ChannelInput) (*models.Channel, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	team, err := s.teams.GetByID(ctx, in.TeamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, persistenceError("load team", err)
	}
	if team.ProjectID != in.ProjectID {
		return nil, ErrTeamNotFound
	}
	m, err := s.teams.GetMembership(ctx, in.ProjectID, in.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrMembershipNotFound) {
			return nil, ErrNotAuthorized
		}
		return nil, persistenceError("load team membership", err)
	}
	if m.TeamID != team.ID {
		return nil, ErrNotAuthorized
	}

	name := in.Name
	if name == "" {
		name = team.Name
	}
	id := ChannelID(in.ProjectID, in.TeamID)
	// общий вызов не должен отменяться вместе с запросом, который его начал
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(id, func() (interface{}, error) {
		return s.ensure(shared, &models.Channel{ID: id, ProjectID: in.ProjectID, TeamID: in.TeamID, Name: name})
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	canonical := *res.Val.(*models.Channel)

	_, err = s.channels.AddMemberIfAbsent(ctx, &models.ChannelMembership{ChannelID: canonical.ID, UserID: in.UserID})
	if err != nil {
		return nil, persistenceError("add channel member", err)
	}
	return &canonical, nil
}

// ensure returns the canonical channel of the team, inserting the
// deterministic row when the team has none.
func (s *ChannelService) ensure(ctx context.Context, want *models.Channel) (*models.Channel, error) {
	existing, err := s.channels.ListByTeam(ctx, want.ProjectID, want.TeamID)
	if err != nil {
		return nil, persistenceError("load channel", err)
	}
	if len(existing) == 0 {
		if _, err := s.channels.InsertIfAbsent(ctx, want); err != nil {
			if errors.Is(err, repositories.ErrTeamNotFound) {
				return nil, ErrTeamNotFound
			}
			return nil, persistenceError("create channel", err)
		}
		existing, err = s.channels.ListByTeam(ctx, want.ProjectID, want.TeamID)
		if err != nil {
			return nil, persistenceError("load channel", err)
		}
		if len(existing) == 0 {
			return nil, persistenceError("load channel", errors.New("channel missing after insert"))
		}
	}
	if len(existing) > 1 {
		ids := make([]string, 0, len(existing))
		for _, c := range existing {
			ids = append(ids, c.ID)
		}
		s.logger.WarnContext(ctx, "multiple channels for one team, using the oldest",
			slog.String("project_id", want.ProjectID),
			slog.String("team_id", want.TeamID),
			slog.Any("channel_ids", ids),
		)
	}
	return existing[0], nil
}
