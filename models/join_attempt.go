package models

import "time"

// JoinAttempt - строка журнала попыток вступления, используется для rate limiting.
type JoinAttempt struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	IPAddress *string   `json:"ip_address,omitempty" db:"ip_address"`
	Code      string    `json:"code" db:"code"`
	Success   bool      `json:"success" db:"success"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
