package models

import "time"

// Project - учебный проект, в который участники вступают по коду.
type Project struct {
	ID                string     `json:"id" db:"id"`
	Title             string     `json:"title" db:"title"`
	CreatorID         string     `json:"creator_id" db:"creator_id"`
	JoinCode          string     `json:"join_code,omitempty" db:"join_code"`
	JoinCodeExpiresAt *time.Time `json:"join_code_expires_at,omitempty" db:"join_code_expires_at"`
	StartDate         *time.Time `json:"start_date,omitempty" db:"start_date"`
	EndDate           *time.Time `json:"end_date,omitempty" db:"end_date"`
	TeamSize          int        `json:"team_size" db:"team_size"`
	MaxParticipants   *int       `json:"max_participants,omitempty" db:"max_participants"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// JoinCodeExpired reports whether the join code stopped being valid at now.
func (p *Project) JoinCodeExpired(now time.Time) bool {
	return p.JoinCodeExpiresAt != nil && !p.JoinCodeExpiresAt.After(now)
}

// Session is a scheduled session of a project, ordered by Position.
type Session struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"project_id" db:"project_id"`
	Position  int       `json:"position" db:"position"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
