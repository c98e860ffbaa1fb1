package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"

	"github.com/ohshane/p3bl-sub002/handlers"
	"github.com/ohshane/p3bl-sub002/middleware"
	"github.com/ohshane/p3bl-sub002/models"
	"github.com/ohshane/p3bl-sub002/realtime"
	"github.com/ohshane/p3bl-sub002/repositories"
	"github.com/ohshane/p3bl-sub002/repositories/memory"
	"github.com/ohshane/p3bl-sub002/routes"
	"github.com/ohshane/p3bl-sub002/services"
)

const testSecret = "handlers-test-secret"

type testServer struct {
	router http.Handler
	repos  *repositories.Set
	hub    *realtime.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repos := memory.New().Repositories()
	hub := realtime.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	svc := services.New(services.Dependencies{
		Repos:             repos,
		Publisher:         hub,
		Logger:            logger,
		Policy:            services.DefaultAdmissionPolicy(),
		JoinCodeTTL:       time.Hour,
		NotifyConcurrency: 2,
	})

	router := chi.NewRouter()
	routes.SetupRoutes(router, routes.Options{
		Logger:         logger,
		Auth:           middleware.NewAuthenticator(testSecret, logger),
		AllowedOrigins: []string{"*"},
		RequestTimeout: 5 * time.Second,
	}, routes.Handlers{
		Enrollment:    handlers.NewEnrollmentHandler(svc.Admission),
		Invitations:   handlers.NewInvitationHandler(svc.Waitlist),
		Projects:      handlers.NewProjectHandler(svc.Projects, svc.Waitlist, svc.Allocator),
		Channels:      handlers.NewChannelHandler(svc.Channels),
		Notifications: handlers.NewNotificationHandler(svc.Notifications),
		WebSocket:     handlers.NewWebSocketHandler(hub, []string{"*"}, logger),
	})
	return &testServer{router: router, repos: repos, hub: hub}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:5123"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func (s *testServer) project(t *testing.T, code string, teamSize int, start *time.Time) *models.Project {
	t.Helper()
	p := &models.Project{Title: "Project " + code, CreatorID: "creator", JoinCode: code, TeamSize: teamSize, StartDate: start}
	if err := s.repos.Projects.Create(context.Background(), p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestJoin(t *testing.T) {
	s := newTestServer(t)
	p := s.project(t, "JOIN23", 2, nil)

	tests := []struct {
		name       string
		user       string
		body       interface{}
		wantStatus int
		wantKind   services.OutcomeKind
		wantReason services.RejectReason
	}{
		{"joins an open project", "u1", map[string]string{"code": " join23 "}, http.StatusOK, services.OutcomeJoined, ""},
		{"second redeem is idempotent", "u1", map[string]string{"code": "JOIN23"}, http.StatusOK, services.OutcomeAlreadyMember, ""},
		{"unknown code", "u2", map[string]string{"code": "NOPE99"}, http.StatusNotFound, services.OutcomeRejected, services.RejectNotFound},
		{"malformed code", "u2", map[string]string{"code": "ab"}, http.StatusBadRequest, "", ""},
		{"unknown body key", "u2", map[string]string{"join_code": "JOIN23"}, http.StatusBadRequest, "", ""},
		{"no token", "", map[string]string{"code": "JOIN23"}, http.StatusUnauthorized, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/join", tt.user, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantKind == "" {
				return
			}
			var out services.Outcome
			decode(t, rec, &out)
			if out.Kind != tt.wantKind || out.Reason != tt.wantReason {
				t.Errorf("outcome = %+v, want kind %s reason %q", out, tt.wantKind, tt.wantReason)
			}
			if tt.wantKind == services.OutcomeJoined && (out.ProjectID != p.ID || out.TeamID == "") {
				t.Errorf("outcome = %+v, want project %s and a team", out, p.ID)
			}
		})
	}
}

func TestJoinRateLimited(t *testing.T) {
	s := newTestServer(t)
	s.project(t, "RATE42", 2, nil)

	for i := 0; i < 5; i++ {
		if rec := s.do(t, http.MethodPost, "/api/join", "u1", map[string]string{"code": "WRONG1"}); rec.Code != http.StatusNotFound {
			t.Fatalf("attempt %d: status = %d, want 404", i, rec.Code)
		}
	}
	rec := s.do(t, http.MethodPost, "/api/join", "u1", map[string]string{"code": "RATE42"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (body %s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	var out services.Outcome
	decode(t, rec, &out)
	if out.Reason != services.RejectRateLimited || out.CooldownEnd == nil {
		t.Errorf("outcome = %+v, want rate_limited with cooldown", out)
	}
}

func TestScheduledProjectWaitlistAndAllocate(t *testing.T) {
	s := newTestServer(t)
	start := time.Now().Add(48 * time.Hour)
	p := s.project(t, "LATER7", 2, &start)

	for _, u := range []string{"u1", "u2", "u3"} {
		rec := s.do(t, http.MethodPost, "/api/join", u, map[string]string{"code": "LATER7"})
		var out services.Outcome
		decode(t, rec, &out)
		if rec.Code != http.StatusOK || out.Kind != services.OutcomeWaiting {
			t.Fatalf("join %s: %d %+v, want waiting", u, rec.Code, out)
		}
	}

	waitlist := "/api/projects/" + p.ID + "/waitlist"
	if rec := s.do(t, http.MethodGet, waitlist, "u1", nil); rec.Code != http.StatusForbidden {
		t.Errorf("waitlist by participant: status = %d, want 403", rec.Code)
	}
	rec := s.do(t, http.MethodGet, waitlist, "creator", nil)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	if rec.Code != http.StatusOK || list.Count != 3 {
		t.Fatalf("waitlist: %d count %d, want 200 and 3", rec.Code, list.Count)
	}

	allocate := "/api/projects/" + p.ID + "/allocate"
	if rec := s.do(t, http.MethodPost, allocate, "u1", nil); rec.Code != http.StatusForbidden {
		t.Errorf("allocate by participant: status = %d, want 403", rec.Code)
	}
	rec = s.do(t, http.MethodPost, allocate, "creator", nil)
	var result services.AllocationResult
	decode(t, rec, &result)
	if rec.Code != http.StatusOK || result.AllocatedCount != 3 || result.TeamsCreated != 2 {
		t.Errorf("allocate: %d %+v, want 3 allocated into 2 teams", rec.Code, result)
	}

	rec = s.do(t, http.MethodPost, allocate, "creator", nil)
	decode(t, rec, &result)
	if result.AllocatedCount != 0 || result.Message == "" {
		t.Errorf("second allocate = %+v, want nothing allocated with a message", result)
	}

	if rec := s.do(t, http.MethodPost, "/api/projects/missing/allocate", "creator", nil); rec.Code != http.StatusNotFound {
		t.Errorf("allocate unknown project: status = %d, want 404", rec.Code)
	}
}

func TestInvitations(t *testing.T) {
	s := newTestServer(t)
	p := s.project(t, "INVT55", 3, nil)
	invitePath := "/api/projects/" + p.ID + "/invitations"

	if rec := s.do(t, http.MethodPost, invitePath, "u9", map[string]string{"user_id": "u2"}); rec.Code != http.StatusForbidden {
		t.Errorf("invite by non-creator: status = %d, want 403", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, invitePath, "creator", map[string]string{"user_id": ""}); rec.Code != http.StatusBadRequest {
		t.Errorf("invite without user: status = %d, want 400", rec.Code)
	}

	for _, u := range []string{"u2", "u3"} {
		if rec := s.do(t, http.MethodPost, invitePath, "creator", map[string]string{"user_id": u}); rec.Code != http.StatusCreated {
			t.Fatalf("invite %s: status = %d, want 201 (body %s)", u, rec.Code, rec.Body.String())
		}
	}

	rec := s.do(t, http.MethodGet, "/api/invitations/pending", "u2", nil)
	var pending struct {
		Invitations []models.PendingInvitation `json:"invitations"`
	}
	decode(t, rec, &pending)
	if len(pending.Invitations) != 1 || pending.Invitations[0].ProjectTitle != p.Title {
		t.Fatalf("pending = %+v, want one invitation for %s", pending.Invitations, p.Title)
	}
	respond := "/api/invitations/" + pending.Invitations[0].ID + "/respond"

	if rec := s.do(t, http.MethodPost, respond, "u3", map[string]bool{"accept": true}); rec.Code != http.StatusForbidden {
		t.Errorf("respond to someone else's invitation: status = %d, want 403", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, respond, "u2", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("respond without accept: status = %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodPost, respond, "u2", map[string]bool{"accept": false})
	var out services.Outcome
	decode(t, rec, &out)
	if rec.Code != http.StatusOK || out.Kind != services.OutcomeDismissed {
		t.Fatalf("dismiss: %d %+v, want dismissed", rec.Code, out)
	}
	if rec := s.do(t, http.MethodPost, respond, "u2", map[string]bool{"accept": true}); rec.Code != http.StatusConflict {
		t.Errorf("accept after dismiss: status = %d, want 409", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/invitations/pending", "u3", nil)
	decode(t, rec, &pending)
	rec = s.do(t, http.MethodPost, "/api/invitations/"+pending.Invitations[0].ID+"/respond", "u3", map[string]bool{"accept": true})
	decode(t, rec, &out)
	if out.Kind != services.OutcomeJoined || out.TeamID == "" {
		t.Errorf("accept on open project = %+v, want joined", out)
	}
	if rec := s.do(t, http.MethodPost, "/api/invitations/missing/respond", "u3", map[string]bool{"accept": true}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown invitation: status = %d, want 404", rec.Code)
	}
}

func TestTeamChannel(t *testing.T) {
	s := newTestServer(t)
	p := s.project(t, "CHAT88", 3, nil)

	rec := s.do(t, http.MethodPost, "/api/join", "u1", map[string]string{"code": "CHAT88"})
	var out services.Outcome
	decode(t, rec, &out)
	path := "/api/projects/" + p.ID + "/teams/" + out.TeamID + "/channel"

	var first, second models.Channel
	rec = s.do(t, http.MethodPost, path, "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("channel: status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	decode(t, rec, &first)
	if first.Name != "Team 1" || first.ID != services.ChannelID(p.ID, out.TeamID) {
		t.Errorf("channel = %+v, want the deterministic team channel", first)
	}

	rec = s.do(t, http.MethodPost, path, "u1", map[string]string{"name": "renamed"})
	decode(t, rec, &second)
	if second.ID != first.ID || second.Name != first.Name {
		t.Errorf("second call = %+v, want the existing channel %+v", second, first)
	}

	if rec := s.do(t, http.MethodPost, path, "outsider", nil); rec.Code != http.StatusForbidden {
		t.Errorf("non-member: status = %d, want 403", rec.Code)
	}
	other := s.project(t, "OTHR11", 3, nil)
	if rec := s.do(t, http.MethodPost, "/api/projects/"+other.ID+"/teams/"+out.TeamID+"/channel", "u1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("team of another project: status = %d, want 404", rec.Code)
	}
}

func TestResetJoinCode(t *testing.T) {
	s := newTestServer(t)
	p := s.project(t, "RSET33", 3, nil)
	path := "/api/projects/" + p.ID + "/join-code/reset"

	if rec := s.do(t, http.MethodPost, path, "u1", nil); rec.Code != http.StatusForbidden {
		t.Errorf("reset by non-creator: status = %d, want 403", rec.Code)
	}
	rec := s.do(t, http.MethodPost, path, "creator", nil)
	var body struct {
		JoinCode  string     `json:"join_code"`
		ExpiresAt *time.Time `json:"join_code_expires_at"`
	}
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body.JoinCode == p.JoinCode || len(body.JoinCode) != 6 || body.ExpiresAt == nil {
		t.Fatalf("reset: %d %+v, want a new code with expiry", rec.Code, body)
	}

	if rec := s.do(t, http.MethodPost, "/api/join", "u1", map[string]string{"code": p.JoinCode}); rec.Code != http.StatusNotFound {
		t.Errorf("old code: status = %d, want 404", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/join", "u1", map[string]string{"code": body.JoinCode}); rec.Code != http.StatusOK {
		t.Errorf("new code: status = %d, want 200", rec.Code)
	}
}

func TestNotifications(t *testing.T) {
	s := newTestServer(t)
	s.project(t, "NOTE44", 3, nil)
	s.do(t, http.MethodPost, "/api/join", "u1", map[string]string{"code": "NOTE44"})

	rec := s.do(t, http.MethodGet, "/api/notifications?limit=10", "u1", nil)
	var body struct {
		Notifications []models.Notification `json:"notifications"`
	}
	decode(t, rec, &body)
	if len(body.Notifications) != 1 || body.Notifications[0].Type != models.NotificationTeamAssigned {
		t.Errorf("notifications = %+v, want one team_assigned", body.Notifications)
	}

	if rec := s.do(t, http.MethodGet, "/api/notifications?limit=-1", "u1", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit: status = %d, want 400", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/notifications", "u2", nil)
	decode(t, rec, &body)
	if len(body.Notifications) != 0 {
		t.Errorf("other user sees %d notifications, want 0", len(body.Notifications))
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("healthz = %d %s, want 200 ok", rec.Code, rec.Body.String())
	}
}
