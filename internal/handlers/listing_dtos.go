package handlers

import (
	"time"

	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/services"
	"github.com/BradenHooton/propertyhub/internal/workflow"
)

// AddressRequest is the postal address of a listing.
type AddressRequest struct {
	Street     string `json:"street" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	Region     string `json:"region" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
	Country    string `json:"country" validate:"max=100"`
}

// ListingRequest is the body of create and update.
type ListingRequest struct {
	Title        string         `json:"title" validate:"required,max=200"`
	Description  string         `json:"description" validate:"max=10000"`
	Price        float64        `json:"price" validate:"gte=0.01,lt=1e12"`
	Address      AddressRequest `json:"address"`
	Latitude     *float64       `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude    *float64       `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Bedrooms     int            `json:"bedrooms" validate:"gte=0,lte=100"`
	Bathrooms    int            `json:"bathrooms" validate:"gte=0,lte=100"`
	PropertyType string         `json:"property_type" validate:"max=50"`
	EnergyRating string         `json:"energy_rating" validate:"max=10"`
	Features     []string       `json:"features" validate:"max=50,dive,max=100"`
}

func (req ListingRequest) toContent() models.ListingContent {
	return models.ListingContent{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Address: models.Address{
			Street:     req.Address.Street,
			City:       req.Address.City,
			Region:     req.Address.Region,
			PostalCode: req.Address.PostalCode,
			Country:    req.Address.Country,
		},
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Bedrooms:     req.Bedrooms,
		Bathrooms:    req.Bathrooms,
		PropertyType: req.PropertyType,
		EnergyRating: req.EnergyRating,
		Features:     req.Features,
	}
}

// TransitionRequest carries the optional payload of a workflow event.
// Emptiness and allowed values are checked by the workflow after authorization.
type TransitionRequest struct {
	Reason  string `json:"reason"`
	Outcome string `json:"outcome"`
}

// UploadURLRequest asks for a presigned image upload.
type UploadURLRequest struct {
	ContentType string `json:"content_type" validate:"required,oneof=image/jpeg image/png image/webp"`
}

// ConfirmImageRequest records an uploaded image on a listing.
type ConfirmImageRequest struct {
	ObjectKey string `json:"object_key" validate:"required,max=300"`
	AltText   string `json:"alt_text" validate:"max=300"`
	Position  *int   `json:"position" validate:"omitempty,gte=0"`
}

// ReorderImagesRequest lists every image id of a listing in the new order.
type ReorderImagesRequest struct {
	ImageIDs []int64 `json:"image_ids" validate:"required,min=1"`
}

type ImageResponse struct {
	ID       int64  `json:"id"`
	URL      string `json:"url"`
	Position int    `json:"position"`
	AltText  string `json:"alt_text,omitempty"`
}

// ListingResponse is the JSON view of a listing. Moderation metadata and
// available actions are only filled in for the owner and admins.
type ListingResponse struct {
	ID           int64                `json:"id"`
	Slug         string               `json:"slug,omitempty"`
	OwnerID      string               `json:"owner_id"`
	Status       models.ListingStatus `json:"status"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	Price        float64              `json:"price"`
	Address      models.Address       `json:"address"`
	Latitude     *float64             `json:"latitude,omitempty"`
	Longitude    *float64             `json:"longitude,omitempty"`
	Bedrooms     int                  `json:"bedrooms"`
	Bathrooms    int                  `json:"bathrooms"`
	PropertyType string               `json:"property_type,omitempty"`
	EnergyRating string               `json:"energy_rating,omitempty"`
	Features     []string             `json:"features"`
	Images       []ImageResponse      `json:"images"`

	SubmittedAt    *time.Time           `json:"submitted_at,omitempty"`
	PublishedAt    *time.Time           `json:"published_at,omitempty"`
	ApprovedAt     *time.Time           `json:"approved_at,omitempty"`
	ApprovedByID   *string              `json:"approved_by_id,omitempty"`
	RejectedAt     *time.Time           `json:"rejected_at,omitempty"`
	RejectedByID   *string              `json:"rejected_by_id,omitempty"`
	RejectedReason *string              `json:"rejected_reason,omitempty"`
	ArchivedAt     *time.Time           `json:"archived_at,omitempty"`
	MarketStatus   *models.MarketStatus `json:"market_status,omitempty"`

	AvailableActions []workflow.Event `json:"available_actions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newImageResponse(img models.ListingImage) ImageResponse {
	return ImageResponse{ID: img.ID, URL: img.URL, Position: img.Position, AltText: img.AltText}
}

func newListingResponse(l *models.Listing, viewer workflow.Actor) ListingResponse {
	images := make([]ImageResponse, 0, len(l.Images))
	for _, img := range l.Images {
		images = append(images, newImageResponse(img))
	}
	features := l.Features
	if features == nil {
		features = []string{}
	}

	resp := ListingResponse{
		ID:           l.ID,
		Slug:         l.Slug,
		OwnerID:      l.OwnerID,
		Status:       l.Status,
		Title:        l.Title,
		Description:  l.Description,
		Price:        l.Price,
		Address:      l.Address,
		Latitude:     l.Latitude,
		Longitude:    l.Longitude,
		Bedrooms:     l.Bedrooms,
		Bathrooms:    l.Bathrooms,
		PropertyType: l.PropertyType,
		EnergyRating: l.EnergyRating,
		Features:     features,
		Images:       images,
		PublishedAt:  l.PublishedAt,
		ArchivedAt:   l.ArchivedAt,
		MarketStatus: l.MarketStatus,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}

	if l.IsOwnedBy(viewer.ID) || viewer.IsAdmin() {
		resp.SubmittedAt = l.SubmittedAt
		resp.ApprovedAt = l.ApprovedAt
		resp.ApprovedByID = l.ApprovedByID
		resp.RejectedAt = l.RejectedAt
		resp.RejectedByID = l.RejectedByID
		resp.RejectedReason = l.RejectedReason
		resp.AvailableActions = workflow.Available(l, viewer)
	}
	return resp
}

// ListingListResponse is one page of listings.
type ListingListResponse struct {
	Listings []ListingResponse `json:"listings"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func newListingListResponse(page *services.ListingPage, viewer workflow.Actor) ListingListResponse {
	out := ListingListResponse{
		Listings: make([]ListingResponse, 0, len(page.Listings)),
		Total:    page.Total,
		Limit:    page.Limit,
		Offset:   page.Offset,
	}
	for _, l := range page.Listings {
		out.Listings = append(out.Listings, newListingResponse(l, viewer))
	}
	return out
}

// ListingEventResponse is one entry of a listing's workflow history.
type ListingEventResponse struct {
	Event      string               `json:"event"`
	FromStatus models.ListingStatus `json:"from_status"`
	ToStatus   models.ListingStatus `json:"to_status"`
	ActorID    string               `json:"actor_id"`
	Note       string               `json:"note,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

func newListingEventResponses(events []models.ListingEvent) []ListingEventResponse {
	out := make([]ListingEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, ListingEventResponse{
			Event:      e.Event,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			ActorID:    e.ActorID,
			Note:       e.Note,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
