package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/propertyhub/internal/models"
	pkghttp "github.com/BradenHooton/propertyhub/pkg/http"
)

// writeServiceError maps a service error onto the API error taxonomy.
// Anything unrecognised is logged and reported as a server error without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *models.ValidationError
	var terr *models.TransitionError

	switch {
	case errors.As(err, &verr):
		pkghttp.WriteValidationError(w, verr.Error())
	case errors.Is(err, models.ErrValidation):
		pkghttp.WriteValidationError(w, err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthenticated(w, "authentication required")
	case errors.Is(err, models.ErrEmailNotVerified):
		pkghttp.WriteEmailNotVerified(w, "verify your email address first")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteUnauthorized(w, "you are not allowed to perform this action")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "resource not found")
	case errors.As(err, &terr):
		pkghttp.WriteConflict(w, terr.Error())
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, err.Error())
	default:
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		pkghttp.WriteServerError(w, "an unexpected error occurred")
	}
}
