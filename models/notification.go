package models

import "time"

type NotificationType string

const (
	NotificationTeamAssigned      NotificationType = "team_assigned"
	NotificationWaitlisted        NotificationType = "waitlisted"
	NotificationProjectInvitation NotificationType = "project_invitation"
)

type Notification struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	ProjectID *string          `json:"project_id,omitempty" db:"project_id"`
	TeamID    *string          `json:"team_id,omitempty" db:"team_id"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
