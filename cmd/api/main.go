package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/propertyhub/internal/auth"
	"github.com/BradenHooton/propertyhub/internal/background"
	"github.com/BradenHooton/propertyhub/internal/cache"
	"github.com/BradenHooton/propertyhub/internal/config"
	"github.com/BradenHooton/propertyhub/internal/database"
	"github.com/BradenHooton/propertyhub/internal/handlers"
	middlewareCustom "github.com/BradenHooton/propertyhub/internal/middleware"
	"github.com/BradenHooton/propertyhub/internal/repositories"
	"github.com/BradenHooton/propertyhub/internal/routes"
	"github.com/BradenHooton/propertyhub/internal/services"
	"github.com/BradenHooton/propertyhub/internal/storage"
	pkghttp "github.com/BradenHooton/propertyhub/pkg/http"
	pkglogger "github.com/BradenHooton/propertyhub/pkg/logger"
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(startupCtx, database.MigrateUp); err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db.Pool)
	revokeRepo := repositories.NewTokenRevocationRepository(db.Pool)
	emailVerificationRepo := repositories.NewEmailVerificationRepository(db.Pool)
	listingRepo := repositories.NewListingRepository(db.Pool)
	imageRepo := repositories.NewListingImageRepository(db.Pool)

	// Image storage and upload tickets
	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize object storage", slog.Any("error", err))
		os.Exit(1)
	}
	if err := objectStore.EnsureBucket(startupCtx); err != nil {
		logger.Error("failed to ensure storage bucket", slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := cache.NewRedisClient(startupCtx, cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()
	ticketStore := cache.NewUploadTicketStore(rdb)

	// Email delivery
	var mailer services.Mailer
	if cfg.Email.Enabled {
		sesMailer, err := services.NewAWSSESMailer(startupCtx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		mailer = sesMailer
	} else {
		logger.Warn("email delivery disabled, messages will be logged")
		mailer = services.NewLogMailer(logger)
	}
	dispatcher := services.NewNotificationDispatcher(mailer, userRepo, cfg.Email.AdminNotifyEmail, cfg.Email.AppBaseURL, logger)

	// Token manager signs with the per-user token key
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, userRepo)
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize services
	emailVerificationService := services.NewEmailVerificationService(
		emailVerificationRepo,
		userRepo,
		dispatcher,
		logger,
		cfg.Email.AppBaseURL,
		time.Duration(cfg.Email.TokenExpiryHours)*time.Hour,
	)
	authService := services.NewAuthService(userRepo, tokenManager, revokeRepo, emailVerificationService, logger, auditLogger)
	listingService := services.NewListingService(
		listingRepo,
		imageRepo,
		objectStore,
		dispatcher,
		services.NewSlugGenerator(cfg.Listings.SlugMaxAttempts),
		auditLogger,
		logger,
		cfg.Listings.MaxPageSize,
	)
	uploadService := services.NewUploadService(listingService, objectStore, ticketStore, cfg.Storage.UploadURLExpiry, logger)
	adminService := services.NewAdminService(userRepo, listingRepo, logger, auditLogger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, emailVerificationService, ipConfig, logger)
	listingHandler := handlers.NewListingHandler(listingService, uploadService, logger, cfg.Listings.DefaultPageSize, cfg.Listings.MaxPageSize)
	adminHandler := handlers.NewAdminHandler(adminService, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, listingHandler, adminHandler, tokenManager, revokeRepo, logger)

	router.Get("/health", healthHandler(db, rdb))

	// Start cleanup task
	cleanupManager, err := background.NewCleanupManager(revokeRepo, emailVerificationRepo, logger, cfg.Auth.CleanupInterval)
	if err != nil {
		logger.Error("failed to create cleanup scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	if err := cleanupManager.Start(cleanupCtx); err != nil {
		logger.Error("failed to start cleanup scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	exitCode := 0
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		exitCode = 1
	}

	cleanupCancel()
	if err := cleanupManager.Stop(); err != nil {
		logger.Error("cleanup scheduler shutdown error", slog.Any("error", err))
	}

	// Let queued notification emails go out before the process exits.
	dispatcher.Wait()

	logger.Info("server stopped gracefully")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func healthHandler(db *database.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "healthy", "database": "up", "redis": "up"}
		code := http.StatusOK

		if err := db.HealthCheck(ctx); err != nil {
			status["database"] = "down"
			status["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			status["redis"] = "down"
			status["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		pkghttp.WriteJSON(w, code, status)
	}
}
