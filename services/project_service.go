package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

const (
	joinCodeLength = 6
	// без 0/O и 1/I/L, чтобы код было легко продиктовать
	joinCodeAlphabet   = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	maxJoinCodeRetries = 3
)

type ProjectService struct {
	projects    repositories.ProjectRepository
	joinCodeTTL time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewProjectService: joinCodeTTL 0 issues codes that never expire.
func NewProjectService(projects repositories.ProjectRepository, joinCodeTTL time.Duration, logger *slog.Logger) *ProjectService {
	return &ProjectService{projects: projects, joinCodeTTL: joinCodeTTL, logger: logger, now: time.Now}
}

func generateJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// 256 % 31 != 0 даёт небольшой перекос, для кода вступления это допустимо
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}

func (s *ProjectService) GetByID(ctx context.Context, projectID string) (*models.Project, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repositories.ErrProjectNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, persistenceError("load project", err)
	}
	return project, nil
}

// AuthorizeCreator returns the project when actorID created it.
func (s *ProjectService) AuthorizeCreator(ctx context.Context, projectID, actorID string) (*models.Project, error) {
	project, err := s.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if actorID == "" || project.CreatorID != actorID {
		return nil, ErrNotAuthorized
	}
	return project, nil
}

// ResetJoinCode issues a new join code for the project. Only the creator may
// rotate it.
func (s *ProjectService) ResetJoinCode(ctx context.Context, projectID, actorID string) (*models.Project, error) {
	project, err := s.AuthorizeCreator(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if s.joinCodeTTL > 0 {
		t := s.now().UTC().Add(s.joinCodeTTL)
		expiresAt = &t
	}

	for attempt := 0; attempt < maxJoinCodeRetries; attempt++ {
		code, err := generateJoinCode()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrJoinCodeGeneration, err)
		}
		err = s.projects.UpdateJoinCode(ctx, project.ID, code, expiresAt)
		if err == nil {
			project.JoinCode = code
			project.JoinCodeExpiresAt = expiresAt
			s.logger.InfoContext(ctx, "join code rotated", slog.String("project_id", project.ID))
			return project, nil
		}
		if errors.Is(err, repositories.ErrProjectNotFound) {
			return nil, ErrProjectNotFound
		}
		if !errors.Is(err, repositories.ErrJoinCodeConflict) {
			return nil, persistenceError("reset join code", err)
		}
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrJoinCodeGeneration, maxJoinCodeRetries)
}
