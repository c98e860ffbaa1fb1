package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Коды ошибок PostgreSQL, которые мы различаем.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqInvalidTextRepr     = "22P02"
)

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError
	}
	return nil
}

// pqErrorCode returns the SQLSTATE code and constraint name of a *pq.Error.
func pqErrorCode(err error) (code, constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}

func isUniqueViolation(err error, constraints ...string) bool {
	code, constraint, ok := pqErrorCode(err)
	if !ok || code != pqUniqueViolation {
		return false
	}
	if len(constraints) == 0 {
		return true
	}
	for _, c := range constraints {
		if c == constraint {
			return true
		}
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	code, _, ok := pqErrorCode(err)
	return ok && code == pqForeignKeyViolation
}

// isInvalidInput reports a malformed literal, e.g. a non-UUID string compared
// against a uuid column. Lookups treat it as "not found".
func isInvalidInput(err error) bool {
	code, _, ok := pqErrorCode(err)
	return ok && code == pqInvalidTextRepr
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// Set bundles every repository the services depend on.
type Set struct {
	Projects      ProjectRepository
	Sessions      SessionRepository
	Invitations   InvitationRepository
	Teams         TeamRepository
	JoinAttempts  JoinAttemptRepository
	Channels      ChannelRepository
	Notifications NotificationRepository
}

func NewPostgresSet(db *sql.DB) *Set {
	return &Set{
		Projects:      NewPostgresProjectRepository(db),
		Sessions:      NewPostgresSessionRepository(db),
		Invitations:   NewPostgresInvitationRepository(db),
		Teams:         NewPostgresTeamRepository(db),
		JoinAttempts:  NewPostgresJoinAttemptRepository(db),
		Channels:      NewPostgresChannelRepository(db),
		Notifications: NewPostgresNotificationRepository(db),
	}
}
