package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/propertyhub/internal/services"
	pkghttp "github.com/BradenHooton/propertyhub/pkg/http"
)

// AdminServiceInterface defines the moderation dashboard contract.
type AdminServiceInterface interface {
	GetModerationStats(ctx context.Context) (*services.ModerationStatsResponse, error)
}

// AdminHandler handles admin dashboard HTTP requests.
type AdminHandler struct {
	service AdminServiceInterface
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminServiceInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger}
}

// GetModerationStats handles GET /listings/_admin/stats
func (h *AdminHandler) GetModerationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetModerationStats(r.Context())
	if err != nil {
		h.logger.Error("failed to load moderation stats", slog.Any("error", err))
		pkghttp.WriteServerError(w, "failed to retrieve moderation stats")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, stats)
}
