package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Имена claims. sub используется, если user_id отсутствует.
const (
	jwtClaimUserID  = "user_id"
	jwtClaimSubject = "sub"
)

var ErrNoUserInContext = errors.New("user claims not found in context or invalid type")

func GetUserIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return "", ErrNoUserInContext
	}
	return userIDFromClaims(claims)
}

// WithUserID stores claims for userID in ctx. Used by callers that
// authenticate outside of HTTP, e.g. tests and the admin CLI.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey, jwt.MapClaims{jwtClaimUserID: userID})
}

func userIDFromClaims(claims jwt.MapClaims) (string, error) {
	for _, name := range []string{jwtClaimUserID, jwtClaimSubject} {
		raw, ok := claims[name]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if id := strings.TrimSpace(v); id != "" {
				return id, nil
			}
			return "", fmt.Errorf("empty '%s' claim in token", name)
		case float64:
			// JSON numbers decode as float64
			if v != float64(int64(v)) || v <= 0 {
				return "", fmt.Errorf("invalid user ID value in '%s' claim: %v", name, v)
			}
			return strconv.FormatInt(int64(v), 10), nil
		default:
			return "", fmt.Errorf("invalid type for '%s' claim: expected string or number, got %T", name, raw)
		}
	}
	return "", fmt.Errorf("missing '%s' claim in token", jwtClaimUserID)
}
