package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestAuthenticate(t *testing.T) {
	auth := NewAuthenticator(testSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var gotUser string
	handler := auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := GetUserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("GetUserIDFromContext() error = %v", err)
		}
		gotUser = id
		w.WriteHeader(http.StatusNoContent)
	}))

	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name     string
		header   string
		query    string
		wantCode int
		wantUser string
	}{
		{
			name:     "user_id claim",
			header:   "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": "u1", "exp": exp}),
			wantCode: http.StatusNoContent,
			wantUser: "u1",
		},
		{
			name:     "sub claim",
			header:   "bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u2", "exp": exp}),
			wantCode: http.StatusNoContent,
			wantUser: "u2",
		},
		{
			name:     "numeric id",
			header:   "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": 42}),
			wantCode: http.StatusNoContent,
			wantUser: "42",
		},
		{
			name:     "query token",
			query:    "?token=" + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": "u3"}),
			wantCode: http.StatusNoContent,
			wantUser: "u3",
		},
		{
			name:     "missing token",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong secret",
			header:   "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": "u1"}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong algorithm",
			header:   "Bearer " + sign(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"user_id": "u1"}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "expired",
			header:   "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "no user claim",
			header:   "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"role": "student"}),
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""
			req := httptest.NewRequest(http.MethodGet, "/api/notifications"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if gotUser != tt.wantUser {
				t.Errorf("user = %q, want %q", gotUser, tt.wantUser)
			}
		})
	}
}
