package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	ErrValidation = errors.New("validation failed")

	// Ресурс не найден
	ErrProjectNotFound    = errors.New("project not found")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrTeamNotFound       = errors.New("team not found")

	// Отказы при вступлении по коду
	ErrJoinCodeExpired = errors.New("join code has expired")
	ErrProjectClosed   = errors.New("project is closed")
	ErrRateLimited     = errors.New("too many failed join attempts")
	ErrProjectFull     = errors.New("project has reached its participant limit")

	ErrNotAuthorized   = errors.New("operation not allowed for the current user")
	ErrInvitationState = errors.New("invitation has already been answered")
	// ErrAlreadyMember: пользователь уже состоит в команде проекта.
	ErrAlreadyMember = fmt.Errorf("%w: user already belongs to a team in this project", ErrInvitationState)

	ErrPersistence        = errors.New("persistence failure")
	ErrJoinCodeGeneration = errors.New("failed to generate unique join code")
)

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrInvitationNotFound) ||
		errors.Is(err, ErrTeamNotFound)
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists the offending input fields.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// onlyFieldInvalid reports whether err is a validation error for field alone.
func onlyFieldInvalid(err error, field string) bool {
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) == 0 {
		return false
	}
	for _, f := range verr.Fields {
		if f.Field != field {
			return false
		}
	}
	return true
}

func newValidationError(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

type RateLimitedError struct {
	CooldownEnd time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.CooldownEnd.Format(time.RFC3339))
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// PersistenceError hides store failures behind a generic "failed to <op>" message.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "failed to " + e.Op }

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

func persistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
