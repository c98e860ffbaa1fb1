package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/repositories"
)

type invitationRepository struct {
	db *DB
}

func NewInvitationRepository(db *DB) repositories.InvitationRepository {
	return &invitationRepository{db: db}
}

func copyInvitation(inv *models.Invitation) *models.Invitation {
	c := *inv
	c.TeamID = cloneString(inv.TeamID)
	c.RespondedAt = cloneTime(inv.RespondedAt)
	return &c
}

func (r *invitationRepository) find(id string) *models.Invitation {
	for _, inv := range r.db.invitations {
		if inv.ID == id {
			return inv
		}
	}
	return nil
}

// acceptedExists mirrors the partial unique index on accepted invitations.
func (r *invitationRepository) acceptedExists(projectID, userID, exceptID string) bool {
	for _, inv := range r.db.invitations {
		if inv.ProjectID == projectID && inv.UserID == userID &&
			inv.Status == models.InvitationAccepted && inv.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *invitationRepository) Create(_ context.Context, inv *models.Invitation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.project(inv.ProjectID) == nil {
		return repositories.ErrInvitationInvalid
	}
	if inv.TeamID != nil && r.db.team(*inv.TeamID) == nil {
		return repositories.ErrInvitationInvalid
	}
	if inv.Status == models.InvitationAccepted && r.acceptedExists(inv.ProjectID, inv.UserID, "") {
		return repositories.ErrInvitationConflict
	}
	inv.ID = newID(inv.ID)
	inv.CreatedAt = r.db.stamp(inv.CreatedAt)
	r.db.invitations = append(r.db.invitations, copyInvitation(inv))
	return nil
}

func (r *invitationRepository) GetByID(_ context.Context, id string) (*models.Invitation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if inv := r.find(id); inv != nil {
		return copyInvitation(inv), nil
	}
	return nil, repositories.ErrInvitationNotFound
}

func (r *invitationRepository) FindByUserAndProject(_ context.Context, userID, projectID string, status models.InvitationStatus) (*models.Invitation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var latest *models.Invitation
	for _, inv := range r.db.invitations {
		if inv.UserID != userID || inv.ProjectID != projectID || inv.Status != status {
			continue
		}
		if latest == nil || !inv.CreatedAt.Before(latest.CreatedAt) {
			latest = inv
		}
	}
	if latest == nil {
		return nil, repositories.ErrInvitationNotFound
	}
	return copyInvitation(latest), nil
}

func (r *invitationRepository) UpdateStatus(_ context.Context, id string, from, to models.InvitationStatus, respondedAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	inv := r.find(id)
	if inv == nil || inv.Status != from {
		return repositories.ErrInvitationStale
	}
	if to == models.InvitationAccepted && r.acceptedExists(inv.ProjectID, inv.UserID, inv.ID) {
		return repositories.ErrInvitationConflict
	}
	inv.Status = to
	inv.RespondedAt = &respondedAt
	return nil
}

func (r *invitationRepository) SetTeam(_ context.Context, id, teamID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	inv := r.find(id)
	if inv == nil || inv.TeamID != nil {
		return repositories.ErrInvitationStale
	}
	if r.db.team(teamID) == nil {
		return repositories.ErrInvitationInvalid
	}
	inv.TeamID = &teamID
	return nil
}

func (r *invitationRepository) waiting(projectID string) []*models.Invitation {
	list := make([]*models.Invitation, 0)
	for _, inv := range r.db.invitations {
		if inv.ProjectID == projectID && inv.Waiting() {
			list = append(list, copyInvitation(inv))
		}
	}
	return list
}

func (r *invitationRepository) ListWaiting(_ context.Context, projectID string) ([]*models.Invitation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	list := r.waiting(projectID)
	sortByCreated(list, func(inv *models.Invitation) time.Time { return inv.CreatedAt })
	return list, nil
}

func (r *invitationRepository) CountWaiting(_ context.Context, projectID string) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return len(r.waiting(projectID)), nil
}

func (r *invitationRepository) ListPendingByUser(_ context.Context, userID string) ([]*models.PendingInvitation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	result := make([]*models.PendingInvitation, 0)
	for _, inv := range r.db.invitations {
		if inv.UserID != userID || inv.Status != models.InvitationPending {
			continue
		}
		var title string
		if p := r.db.project(inv.ProjectID); p != nil {
			title = p.Title
		}
		result = append(result, &models.PendingInvitation{Invitation: *copyInvitation(inv), ProjectTitle: title})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
