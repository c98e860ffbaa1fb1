package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/ohshane/p3bl-sub002/docs"
	"github.com/ohshane/p3bl-sub002/handlers"
	"github.com/ohshane/p3bl-sub002/middleware"
)

// Pinger is satisfied by *sql.DB. nil means the in-memory store is used.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Options struct {
	Logger         *slog.Logger
	Auth           *middleware.Authenticator
	AllowedOrigins []string
	RequestTimeout time.Duration
	DB             Pinger
}

type Handlers struct {
	Enrollment    *handlers.EnrollmentHandler
	Invitations   *handlers.InvitationHandler
	Projects      *handlers.ProjectHandler
	Channels      *handlers.ChannelHandler
	Notifications *handlers.NotificationHandler
	WebSocket     *handlers.WebSocketHandler
}

func SetupRoutes(router chi.Router, opts Options, h Handlers) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestLogger(opts.Logger))
	router.Use(chiMiddleware.Recoverer)
	router.Use(corsHandler(opts.AllowedOrigins))

	router.Get("/healthz", healthz(opts.DB))
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// WebSocket живёт дольше таймаута запроса
	router.With(opts.Auth.Authenticate).Get("/ws/notifications", h.WebSocket.ServeWs)

	router.Route("/api", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(chiMiddleware.Timeout(opts.RequestTimeout))
		}
		r.Use(opts.Auth.Authenticate)

		r.Post("/join", h.Enrollment.Join)
		r.Get("/notifications", h.Notifications.List)

		r.Route("/invitations", func(r chi.Router) {
			r.Get("/pending", h.Invitations.ListPending)
			r.Post("/{invitationID}/respond", h.Invitations.Respond)
		})

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Post("/invitations", h.Projects.Invite)
			r.Get("/waitlist", h.Projects.Waitlist)
			r.Post("/allocate", h.Projects.Allocate)
			r.Post("/join-code/reset", h.Projects.ResetJoinCode)
			r.Post("/teams/{teamID}/channel", h.Channels.GetOrCreate)
		})
	})
}

func corsHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	// при "*" credentials запрещены
	for _, o := range allowedOrigins {
		if o == "*" {
			opts.AllowCredentials = false
			break
		}
	}
	return cors.Handler(opts)
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				slog.WarnContext(r.Context(), "health check failed", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}` + "\n"))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
	}
}
