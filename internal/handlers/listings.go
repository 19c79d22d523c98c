package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/propertyhub/internal/auth"
	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/services"
	"github.com/BradenHooton/propertyhub/internal/workflow"
	pkghttp "github.com/BradenHooton/propertyhub/pkg/http"
)

// ListingServiceInterface defines the listing business logic used over HTTP.
type ListingServiceInterface interface {
	Create(ctx context.Context, actor workflow.Actor, content models.ListingContent) (*models.Listing, error)
	Update(ctx context.Context, actor workflow.Actor, id int64, content models.ListingContent) (*models.Listing, error)
	GetBySlug(ctx context.Context, actor workflow.Actor, slug string) (*models.Listing, error)
	ListPublished(ctx context.Context, f models.ListingFilter) (*services.ListingPage, error)
	ListMine(ctx context.Context, actor workflow.Actor, f models.ListingFilter) (*services.ListingPage, error)
	ListAll(ctx context.Context, actor workflow.Actor, f models.ListingFilter) (*services.ListingPage, error)
	Transition(ctx context.Context, actor workflow.Actor, id int64, event workflow.Event, in workflow.Input) (*models.Listing, error)
	History(ctx context.Context, actor workflow.Actor, id int64) ([]models.ListingEvent, error)
	RemoveImage(ctx context.Context, actor workflow.Actor, listingID, imageID int64) error
	ReorderImages(ctx context.Context, actor workflow.Actor, listingID int64, imageIDs []int64) ([]models.ListingImage, error)
}

// UploadServiceInterface defines the signed-upload handshake.
type UploadServiceInterface interface {
	RequestUpload(ctx context.Context, actor workflow.Actor, listingID int64, contentType string) (*services.UploadGrant, error)
	ConfirmUpload(ctx context.Context, actor workflow.Actor, listingID int64, objectKey, altText string, position *int) (*models.ListingImage, error)
}

// ListingHandler handles listing HTTP requests
type ListingHandler struct {
	service         ListingServiceInterface
	uploads         UploadServiceInterface
	logger          *slog.Logger
	defaultPageSize int
	maxPageSize     int
}

// NewListingHandler creates a new ListingHandler
func NewListingHandler(service ListingServiceInterface, uploads UploadServiceInterface, logger *slog.Logger, defaultPageSize, maxPageSize int) *ListingHandler {
	return &ListingHandler{
		service:         service,
		uploads:         uploads,
		logger:          logger,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

func actorFrom(r *http.Request) workflow.Actor {
	return auth.PrincipalFromContext(r.Context()).Actor()
}

func int64Param(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

// parseFilter reads the browse filters shared by every list endpoint.
func (h *ListingHandler) parseFilter(r *http.Request) (models.ListingFilter, error) {
	q := r.URL.Query()
	f := models.ListingFilter{
		City:         strings.TrimSpace(q.Get("city")),
		Region:       strings.TrimSpace(q.Get("region")),
		PropertyType: strings.ToLower(strings.TrimSpace(q.Get("type"))),
		Query:        strings.TrimSpace(q.Get("q")),
	}
	f.Limit, f.Offset = pkghttp.Pagination(r, h.defaultPageSize, h.maxPageSize)

	var err error
	if f.MinPrice, err = floatQuery(q.Get("min_price"), "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = floatQuery(q.Get("max_price"), "max_price"); err != nil {
		return f, err
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return f, models.NewValidationError("min_price", "must not exceed max_price")
	}
	if raw := q.Get("min_bedrooms"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, models.NewValidationError("min_bedrooms", "must be a non-negative integer")
		}
		f.MinBedrooms = &n
	}
	return f, nil
}

func floatQuery(raw, field string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return nil, models.NewValidationError(field, "must be a non-negative number")
	}
	return &v, nil
}

// parseStatuses reads ?status=SUBMITTED,PUBLISHED.
func parseStatuses(raw string) ([]models.ListingStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var statuses []models.ListingStatus
	for _, part := range strings.Split(raw, ",") {
		s, ok := models.ParseListingStatus(part)
		if !ok {
			return nil, models.NewValidationError("status", fmt.Sprintf("unknown status %q", strings.TrimSpace(part)))
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

// Create handles POST /listings
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ListingRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	actor := actorFrom(r)
	listing, err := h.service.Create(r.Context(), actor, req.toContent())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, newListingResponse(listing, actor))
}

// Update handles PUT /listings/{id}
func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req ListingRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	actor := actorFrom(r)
	listing, err := h.service.Update(r.Context(), actor, id, req.toContent())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, newListingResponse(listing, actor))
}

// List handles GET /listings, the public browse endpoint.
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	page, err := h.service.ListPublished(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, newListingListResponse(page, actorFrom(r)))
}

// ListMine handles GET /listings/mine
func (h *ListingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if f.Statuses, err = parseStatuses(r.URL.Query().Get("status")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	actor := actorFrom(r)
	page, err := h.service.ListMine(r.Context(), actor, f)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, newListingListResponse(page, actor))
}

// ListAll handles GET /listings/_admin, the moderation queue.
func (h *ListingHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if f.Statuses, err = parseStatuses(r.URL.Query().Get("status")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	f.OwnerID = strings.TrimSpace(r.URL.Query().Get("owner_id"))

	actor := actorFrom(r)
	page, err := h.service.ListAll(r.Context(), actor, f)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, newListingListResponse(page, actor))
}

// GetBySlug handles GET /listings/{slug}
func (h *ListingHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	listing, err := h.service.GetBySlug(r.Context(), actor, chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, newListingResponse(listing, actor))
}

// History handles GET /listings/{id}/history
func (h *ListingHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	events, err := h.service.History(r.Context(), actorFrom(r), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"events": newListingEventResponses(events)})
}

// Transition returns the handler for POST /listings/{id}/{event}. The body
// is optional; reject reads "reason" and close reads "outcome".
func (h *ListingHandler) Transition(event workflow.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := int64Param(r, "id")
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}

		var req TransitionRequest
		if r.ContentLength != 0 {
			if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
				pkghttp.WriteValidationError(w, err.Error())
				return
			}
		}

		actor := actorFrom(r)
		listing, err := h.service.Transition(r.Context(), actor, id, event, workflow.Input{
			Reason:  req.Reason,
			Outcome: req.Outcome,
		})
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}

		pkghttp.WriteJSON(w, http.StatusOK, newListingResponse(listing, actor))
	}
}

// RequestUploadURL handles POST /listings/{id}/images/upload-url
func (h *ListingHandler) RequestUploadURL(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req UploadURLRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}
	req.ContentType = strings.ToLower(strings.TrimSpace(req.ContentType))
	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	grant, err := h.uploads.RequestUpload(r.Context(), actorFrom(r), id, req.ContentType)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, grant)
}

// ConfirmImage handles POST /listings/{id}/images
func (h *ListingHandler) ConfirmImage(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req ConfirmImageRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	img, err := h.uploads.ConfirmUpload(r.Context(), actorFrom(r), id, req.ObjectKey, strings.TrimSpace(req.AltText), req.Position)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, newImageResponse(*img))
}

// DeleteImage handles DELETE /listings/{id}/images/{imageId}
func (h *ListingHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	imageID, err := int64Param(r, "imageId")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := h.service.RemoveImage(r.Context(), actorFrom(r), id, imageID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReorderImages handles PUT /listings/{id}/images/order
func (h *ListingHandler) ReorderImages(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req ReorderImagesRequest
	if err := pkghttp.DecodeJSON(w, r, &req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}
	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	images, err := h.service.ReorderImages(r.Context(), actorFrom(r), id, req.ImageIDs)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := make([]ImageResponse, 0, len(images))
	for _, img := range images {
		out = append(out, newImageResponse(img))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"images": out})
}
