package models

import "time"

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDismissed InvitationStatus = "dismissed"
)

// Invitation - запись листа ожидания. Принятое приглашение без TeamID ждёт распределения.
type Invitation struct {
	ID          string           `json:"id" db:"id"`
	ProjectID   string           `json:"project_id" db:"project_id"`
	UserID      string           `json:"user_id" db:"user_id"`
	Status      InvitationStatus `json:"status" db:"status"`
	TeamID      *string          `json:"team_id,omitempty" db:"team_id"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty" db:"responded_at"`
}

// Waiting reports whether the invitation is accepted but not yet placed on a team.
func (i *Invitation) Waiting() bool {
	return i.Status == InvitationAccepted && i.TeamID == nil
}

// CanTransition allows only pending → accepted|dismissed.
func (s InvitationStatus) CanTransition(next InvitationStatus) bool {
	if s != InvitationPending {
		return false
	}
	return next == InvitationAccepted || next == InvitationDismissed
}

// PendingInvitation is a pending invitation together with its project title.
type PendingInvitation struct {
	Invitation
	ProjectTitle string `json:"project_title" db:"project_title"`
}
