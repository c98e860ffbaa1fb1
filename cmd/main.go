package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ohshane/p3bl-sub002/config"
	"github.com/ohshane/p3bl-sub002/db"
	"github.com/ohshane/p3bl-sub002/handlers"
	"github.com/ohshane/p3bl-sub002/middleware"
	"github.com/ohshane/p3bl-sub002/realtime"
	"github.com/ohshane/p3bl-sub002/repositories"
	"github.com/ohshane/p3bl-sub002/repositories/memory"
	api "github.com/ohshane/p3bl-sub002/routes"
	"github.com/ohshane/p3bl-sub002/services"
	"github.com/ohshane/p3bl-sub002/storage"
)

// @title Project Enrollment API
// @version 1.0
// @description Join codes, waitlists, team allocation and team channels.
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort), slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Хранилище: Postgres или in-memory для разработки
	var (
		repos  *repositories.Set
		pinger api.Pinger
	)
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(cfg.DatabaseURL, cfg.DatabaseTimeout)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer closeDB(logger, dbConn)
		logger.Info("database connection established")

		if err := db.EnsureSchema(ctx, dbConn); err != nil {
			logger.Error("failed to apply database schema", slog.Any("error", err))
			os.Exit(1)
		}
		repos = repositories.NewPostgresSet(dbConn)
		pinger = dbConn
	} else {
		logger.Warn("DATABASE_URL is empty, using in-memory store; data is lost on restart")
		repos = memory.New().Repositories()
	}

	// Отчёты о распределении (Cloudflare R2), опционально
	var reports storage.ObjectStore
	if cfg.R2.Enabled() {
		reports, err = storage.NewR2Store(ctx, storage.R2Config{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			BucketName:      cfg.R2.BucketName,
			PublicBaseURL:   cfg.R2.PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 store", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 store initialized", slog.String("bucket", cfg.R2.BucketName))
	}

	// Инициализация WebSocket Hub
	hub := realtime.NewHub(logger.With(slog.String("component", "hub")))
	go hub.Run(ctx)
	logger.Info("WebSocket Hub started")

	svc := services.New(services.Dependencies{
		Repos:     repos,
		Publisher: hub,
		Reports:   reports,
		Logger:    logger,
		Policy: services.AdmissionPolicy{
			MaxFailures: cfg.RateLimitMaxFailures,
			Window:      cfg.RateLimitWindow,
		},
		JoinCodeTTL:       cfg.JoinCodeTTL,
		NotifyConcurrency: cfg.NotifyConcurrency,
	})
	logger.Info("services initialized")

	if cfg.AutoAllocateInterval > 0 {
		go runAutoAllocate(ctx, logger, svc.Allocator, cfg.AutoAllocateInterval)
	}

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Options{
		Logger:         logger,
		Auth:           middleware.NewAuthenticator(cfg.JWTSecretKey, logger),
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
		DB:             pinger,
	}, api.Handlers{
		Enrollment:    handlers.NewEnrollmentHandler(svc.Admission),
		Invitations:   handlers.NewInvitationHandler(svc.Waitlist),
		Projects:      handlers.NewProjectHandler(svc.Projects, svc.Waitlist, svc.Allocator),
		Channels:      handlers.NewChannelHandler(svc.Channels),
		Notifications: handlers.NewNotificationHandler(svc.Notifications),
		WebSocket:     handlers.NewWebSocketHandler(hub, cfg.AllowedOrigins, logger),
	})
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", cfg.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func closeDB(logger *slog.Logger, dbConn *sql.DB) {
	if err := dbConn.Close(); err != nil {
		logger.Error("failed to close database connection", slog.Any("error", err))
		return
	}
	logger.Info("database connection closed")
}

// runAutoAllocate periodically distributes the waiting pool of projects that
// have already started.
func runAutoAllocate(ctx context.Context, logger *slog.Logger, allocator *services.AllocatorService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("auto allocation scheduler started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := allocator.AllocateStarted(ctx)
			if err != nil {
				logger.Error("auto allocation failed", slog.Any("error", err))
			}
			for _, r := range results {
				if r.Result != nil && r.Result.AllocatedCount > 0 {
					logger.Info("auto allocation",
						slog.String("project_id", r.ProjectID),
						slog.Int("allocated", r.Result.AllocatedCount),
						slog.Int("teams_created", r.Result.TeamsCreated),
					)
				}
			}
		}
	}
}
