package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ohshane/p3bl-sub002/services" // Импортируем для маппинга ошибок сервисов
)

type jsonResponse map[string]interface{}

const maxBodyBytes = 1_048_576 // 1MB

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBodyBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBodyBytes)
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

// readOptionalJSON decodes the body only when the client sent one.
func readOptionalJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return readJSON(w, r, dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	env := jsonResponse{"error": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.ErrorContext(r.Context(), "failed to write error response", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	message := "the server encountered a problem and could not process your request"
	errorResponse(w, r, http.StatusInternalServerError, message)
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func failedValidationResponse(w http.ResponseWriter, r *http.Request, fields []services.FieldError) {
	writeErr := writeJSON(w, http.StatusBadRequest, jsonResponse{"error": services.ErrValidation.Error(), "fields": fields}, nil)
	if writeErr != nil {
		serverErrorResponse(w, r, writeErr)
	}
}

func notFoundResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusNotFound, err.Error())
}

func conflictResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusConflict, message)
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, message)
}

func forbiddenResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusForbidden, message)
}

// retryAfter returns whole seconds until t, at least 1.
func retryAfter(t, now time.Time) string {
	secs := int(math.Ceil(t.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// mapServiceErrorToHTTP преобразует ошибки сервисного слоя в HTTP-ответы
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *services.ValidationError
		rateLimitErr  *services.RateLimitedError
	)
	switch {
	// PersistenceError также разворачивается в исходную ошибку хранилища,
	// поэтому проверяется первой.
	case errors.Is(err, services.ErrPersistence),
		errors.Is(err, services.ErrJoinCodeGeneration):
		serverErrorResponse(w, r, err)

	case errors.As(err, &validationErr):
		failedValidationResponse(w, r, validationErr.Fields)
	case errors.Is(err, services.ErrValidation):
		badRequestResponse(w, r, err)

	case services.IsNotFound(err):
		notFoundResponse(w, r, err)

	case errors.As(err, &rateLimitErr):
		w.Header().Set("Retry-After", retryAfter(rateLimitErr.CooldownEnd, time.Now()))
		errorResponse(w, r, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, services.ErrJoinCodeExpired):
		errorResponse(w, r, http.StatusGone, err.Error())

	case errors.Is(err, services.ErrNotAuthorized):
		forbiddenResponse(w, r, err.Error())

	case errors.Is(err, services.ErrInvitationState),
		errors.Is(err, services.ErrProjectClosed),
		errors.Is(err, services.ErrProjectFull):
		conflictResponse(w, r, err.Error())

	default:
		serverErrorResponse(w, r, err)
	}
}

// outcomeStatus maps a rejected outcome to its HTTP status; other kinds are 200.
func outcomeStatus(o *services.Outcome) int {
	if o.Kind != services.OutcomeRejected {
		return http.StatusOK
	}
	switch o.Reason {
	case services.RejectNotFound:
		return http.StatusNotFound
	case services.RejectExpired:
		return http.StatusGone
	case services.RejectRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusConflict
	}
}

func writeOutcome(w http.ResponseWriter, r *http.Request, o *services.Outcome) {
	var headers http.Header
	if o.Reason == services.RejectRateLimited && o.CooldownEnd != nil {
		headers = http.Header{"Retry-After": []string{retryAfter(*o.CooldownEnd, time.Now())}}
	}
	if err := writeJSON(w, outcomeStatus(o), o, headers); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func getIDFromURL(r *http.Request, paramName string) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, paramName))
	if id == "" {
		return "", fmt.Errorf("missing %s in URL path", paramName)
	}
	return id, nil
}

// clientIP returns the host part of RemoteAddr. chi's RealIP middleware has
// already replaced it with the forwarded address when one was sent.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
