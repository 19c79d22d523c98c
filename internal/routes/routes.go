package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/propertyhub/internal/auth"
	"github.com/BradenHooton/propertyhub/internal/handlers"
	"github.com/BradenHooton/propertyhub/internal/middleware"
	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/workflow"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	listingHandler *handlers.ListingHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	revocations auth.TokenRevocationChecker,
	logger *slog.Logger,
) {
	authLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())
	writeLimit := middleware.RateLimitByUser(middleware.DefaultWriteRateLimit())
	authenticate := auth.Authenticate(tokenManager, revocations, logger)
	optionalAuth := auth.OptionalAuthenticate(tokenManager, revocations, logger)
	adminOnly := auth.RequireRole(models.RoleAdmin)
	verified := auth.RequireVerifiedEmail()

	// Public routes - no authentication required
	router.With(authLimit).Post("/auth/register", authHandler.Register)
	router.With(authLimit).Post("/auth/login", authHandler.Login)
	router.With(authLimit).Post("/auth/verify-email", authHandler.VerifyEmail)

	router.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Get("/auth/me", authHandler.Me)
		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/logout-all", authHandler.LogoutAll)
		r.With(authLimit).Post("/auth/request-email-verify", authHandler.RequestEmailVerification)
	})

	router.Route("/listings", func(r chi.Router) {
		r.With(optionalAuth).Get("/", listingHandler.List)

		// Static segments are matched before /{slug}.
		r.With(authenticate).Get("/mine", listingHandler.ListMine)
		r.With(authenticate, adminOnly).Get("/_admin", listingHandler.ListAll)
		r.With(authenticate, adminOnly).Get("/_admin/stats", adminHandler.GetModerationStats)

		r.With(optionalAuth).Get("/{slug}", listingHandler.GetBySlug)

		r.Group(func(r chi.Router) {
			r.Use(authenticate, writeLimit)

			r.Post("/", listingHandler.Create)
			r.Put("/{id}", listingHandler.Update)
			r.Get("/{id}/history", listingHandler.History)

			// Owner actions. The workflow checks ownership before the verified-email gate.
			r.Post("/{id}/submit", listingHandler.Transition(workflow.Submit))

			// Image uploads need a verified email; admins are exempt.
			r.With(verified).Post("/{id}/images/upload-url", listingHandler.RequestUploadURL)
			r.With(verified).Post("/{id}/images", listingHandler.ConfirmImage)
			r.Put("/{id}/images/order", listingHandler.ReorderImages)
			r.Delete("/{id}/images/{imageId}", listingHandler.DeleteImage)

			// Admin moderation
			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/{id}/approve", listingHandler.Transition(workflow.Approve))
				r.Post("/{id}/reject", listingHandler.Transition(workflow.Reject))
				r.Post("/{id}/close", listingHandler.Transition(workflow.Close))
				r.Post("/{id}/reopen", listingHandler.Transition(workflow.Reopen))
			})
		})
	})
}
