package models

import "time"

type Team struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"project_id" db:"project_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Заполняется репозиторием при выборке списка команд проекта.
	MemberCount int `json:"member_count" db:"-"`
}

type TeamMembership struct {
	TeamID           string    `json:"team_id" db:"team_id"`
	ProjectID        string    `json:"project_id" db:"project_id"`
	UserID           string    `json:"user_id" db:"user_id"`
	CurrentSessionID *string   `json:"current_session_id,omitempty" db:"current_session_id"`
	JoinedAt         time.Time `json:"joined_at" db:"joined_at"`
}
