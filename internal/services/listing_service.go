package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/repositories"
	"github.com/BradenHooton/propertyhub/internal/workflow"
	pkglogger "github.com/BradenHooton/propertyhub/pkg/logger"
)

const (
	MaxImagesPerListing = 30
	maxFeatures         = 50
	maxTitleLen         = 200
	maxDescriptionLen   = 10000

	// Prices are stored as NUMERIC(14,2).
	minPrice = 0.01
	maxPrice = 1e12
)

// ListingRepository defines the listing store operations.
type ListingRepository interface {
	Create(ctx context.Context, l *models.Listing) (*models.Listing, error)
	GetByID(ctx context.Context, id int64) (*models.Listing, error)
	GetBySlug(ctx context.Context, slug string) (*models.Listing, error)
	List(ctx context.Context, f models.ListingFilter) ([]*models.Listing, error)
	Count(ctx context.Context, f models.ListingFilter) (int, error)
	UpdateContent(ctx context.Context, id int64, ownerID string, c models.ListingContent) (*models.Listing, error)
	ApplyTransition(ctx context.Context, id int64, c *workflow.Change) (*models.Listing, error)
	ListEvents(ctx context.Context, listingID int64) ([]models.ListingEvent, error)
}

// ListingImageRepository defines the listing image store operations.
type ListingImageRepository interface {
	Add(ctx context.Context, img *models.ListingImage, position *int) (*models.ListingImage, error)
	ListByListing(ctx context.Context, listingID int64) ([]models.ListingImage, error)
	ListByListings(ctx context.Context, listingIDs []int64) (map[int64][]models.ListingImage, error)
	Count(ctx context.Context, listingID int64) (int, error)
	Delete(ctx context.Context, listingID, imageID int64) (*models.ListingImage, error)
	Reorder(ctx context.Context, listingID int64, imageIDs []int64) error
}

// TransitionNotifier is told about every committed transition.
type TransitionNotifier interface {
	ListingTransitioned(l models.Listing, c workflow.Change)
}

// ObjectRemover deletes stored image objects.
type ObjectRemover interface {
	Remove(ctx context.Context, key string) error
}

// ListingPage is one page of a listing query.
type ListingPage struct {
	Listings []*models.Listing
	Total    int
	Limit    int
	Offset   int
}

type ListingService struct {
	listings    ListingRepository
	images      ListingImageRepository
	objects     ObjectRemover
	notifier    TransitionNotifier
	slugs       *SlugGenerator
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
	maxPageSize int
	now         func() time.Time
}

func NewListingService(
	listings ListingRepository,
	images ListingImageRepository,
	objects ObjectRemover,
	notifier TransitionNotifier,
	slugs *SlugGenerator,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
	maxPageSize int,
) *ListingService {
	return &ListingService{
		listings:    listings,
		images:      images,
		objects:     objects,
		notifier:    notifier,
		slugs:       slugs,
		auditLogger: auditLogger,
		logger:      logger,
		maxPageSize: maxPageSize,
		now:         time.Now,
	}
}

// canView reports whether actor may see l. Anything not PUBLISHED is
// visible to its owner and admins only.
func canView(l *models.Listing, actor workflow.Actor) bool {
	return l.Status == models.StatusPublished || l.IsOwnedBy(actor.ID) || actor.IsAdmin()
}

func normalizeContent(c *models.ListingContent) error {
	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	c.PropertyType = strings.ToLower(strings.TrimSpace(c.PropertyType))
	c.EnergyRating = strings.ToUpper(strings.TrimSpace(c.EnergyRating))
	c.Address.Street = strings.TrimSpace(c.Address.Street)
	c.Address.City = strings.TrimSpace(c.Address.City)
	c.Address.Region = strings.TrimSpace(c.Address.Region)
	c.Address.PostalCode = strings.TrimSpace(c.Address.PostalCode)
	c.Address.Country = strings.TrimSpace(c.Address.Country)

	switch {
	case c.Title == "":
		return models.NewValidationError("title", "title is required")
	case len(c.Title) > maxTitleLen:
		return models.NewValidationError("title", fmt.Sprintf("title must be at most %d characters", maxTitleLen))
	case len(c.Description) > maxDescriptionLen:
		return models.NewValidationError("description", fmt.Sprintf("description must be at most %d characters", maxDescriptionLen))
	case math.IsNaN(c.Price) || math.IsInf(c.Price, 0) || c.Price < minPrice || c.Price >= maxPrice:
		return models.NewValidationError("price", "price must be at least 0.01 and below 1000000000000")
	case c.Address.City == "":
		return models.NewValidationError("address.city", "city is required")
	case c.Bedrooms < 0:
		return models.NewValidationError("bedrooms", "bedrooms cannot be negative")
	case c.Bathrooms < 0:
		return models.NewValidationError("bathrooms", "bathrooms cannot be negative")
	case c.Latitude != nil && (math.IsNaN(*c.Latitude) || *c.Latitude < -90 || *c.Latitude > 90):
		return models.NewValidationError("latitude", "latitude must be between -90 and 90")
	case c.Longitude != nil && (math.IsNaN(*c.Longitude) || *c.Longitude < -180 || *c.Longitude > 180):
		return models.NewValidationError("longitude", "longitude must be between -180 and 180")
	}

	features := make([]string, 0, len(c.Features))
	for _, f := range c.Features {
		if f = strings.TrimSpace(f); f != "" {
			features = append(features, f)
		}
	}
	if len(features) > maxFeatures {
		return models.NewValidationError("features", fmt.Sprintf("at most %d features are allowed", maxFeatures))
	}
	c.Features = features

	return nil
}

// Create stores a new DRAFT listing owned by actor with a freshly
// allocated slug.
func (s *ListingService) Create(ctx context.Context, actor workflow.Actor, content models.ListingContent) (*models.Listing, error) {
	if actor.ID == "" {
		return nil, models.ErrUnauthorized
	}
	if err := normalizeContent(&content); err != nil {
		return nil, err
	}

	l := &models.Listing{
		OwnerID:      actor.ID,
		Status:       models.StatusDraft,
		Title:        content.Title,
		Description:  content.Description,
		Price:        content.Price,
		Address:      content.Address,
		Latitude:     content.Latitude,
		Longitude:    content.Longitude,
		Bedrooms:     content.Bedrooms,
		Bathrooms:    content.Bathrooms,
		PropertyType: content.PropertyType,
		EnergyRating: content.EnergyRating,
		Features:     content.Features,
	}

	base := s.slugs.Base(content.Title, content.Address.City)
	for attempt := 0; ; attempt++ {
		candidate, ok, err := s.slugs.Candidate(base, attempt)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: could not allocate a unique slug", models.ErrConflict)
		}

		l.Slug = candidate
		created, err := s.listings.Create(ctx, l)
		if errors.Is(err, repositories.ErrSlugTaken) {
			s.logger.Debug("slug taken, retrying", slog.String("slug", candidate), slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}

		created.Images = []models.ListingImage{}
		s.logger.Info("listing created",
			slog.Int64("listing_id", created.ID),
			slog.String("owner_id", created.OwnerID),
			slog.String("slug", created.Slug))
		return created, nil
	}
}

// Update replaces the content of the owner's DRAFT or REJECTED listing.
func (s *ListingService) Update(ctx context.Context, actor workflow.Actor, id int64, content models.ListingContent) (*models.Listing, error) {
	if actor.ID == "" {
		return nil, models.ErrUnauthorized
	}
	if err := normalizeContent(&content); err != nil {
		return nil, err
	}

	updated, err := s.listings.UpdateContent(ctx, id, actor.ID, content)
	if err != nil {
		return nil, err
	}
	return s.withImages(ctx, updated)
}

// Get returns a listing by id if actor may see it.
func (s *ListingService) Get(ctx context.Context, actor workflow.Actor, id int64) (*models.Listing, error) {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(l, actor) {
		return nil, models.ErrNotFound
	}
	return s.withImages(ctx, l)
}

// GetBySlug returns a listing by slug if actor may see it. Hidden listings
// are reported as not found.
func (s *ListingService) GetBySlug(ctx context.Context, actor workflow.Actor, slug string) (*models.Listing, error) {
	l, err := s.listings.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, err
	}
	if !canView(l, actor) {
		return nil, models.ErrNotFound
	}
	return s.withImages(ctx, l)
}

// ListPublished is the public browse query.
func (s *ListingService) ListPublished(ctx context.Context, f models.ListingFilter) (*ListingPage, error) {
	f.Statuses = []models.ListingStatus{models.StatusPublished}
	f.OwnerID = ""
	return s.list(ctx, f)
}

// ListMine returns actor's own listings in any status.
func (s *ListingService) ListMine(ctx context.Context, actor workflow.Actor, f models.ListingFilter) (*ListingPage, error) {
	if actor.ID == "" {
		return nil, models.ErrUnauthorized
	}
	f.OwnerID = actor.ID
	return s.list(ctx, f)
}

// ListAll returns every listing, optionally filtered by status. Admin only.
func (s *ListingService) ListAll(ctx context.Context, actor workflow.Actor, f models.ListingFilter) (*ListingPage, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: listing all listings requires the admin role", models.ErrForbidden)
	}
	return s.list(ctx, f)
}

func (s *ListingService) list(ctx context.Context, f models.ListingFilter) (*ListingPage, error) {
	if f.Limit <= 0 || (s.maxPageSize > 0 && f.Limit > s.maxPageSize) {
		f.Limit = s.maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	listings, err := s.listings.List(ctx, f)
	if err != nil {
		return nil, err
	}
	total, err := s.listings.Count(ctx, f)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(listings))
	for i, l := range listings {
		ids[i] = l.ID
	}
	images, err := s.images.ListByListings(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, l := range listings {
		l.Images = images[l.ID]
		if l.Images == nil {
			l.Images = []models.ListingImage{}
		}
	}

	return &ListingPage{Listings: listings, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Transition fires event on listing id as actor. Authorization, state and
// input are checked before anything is written. On success exactly one
// notification is dispatched.
func (s *ListingService) Transition(ctx context.Context, actor workflow.Actor, id int64, event workflow.Event, in workflow.Input) (*models.Listing, error) {
	if err := workflow.ValidateInput(event, in); err != nil {
		return nil, err
	}

	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if event == workflow.Submit {
		n, err := s.images.Count(ctx, id)
		if err != nil {
			return nil, err
		}
		in.ImageCount = n
	}

	change, err := workflow.Plan(l, event, actor, in, s.now())
	if err != nil {
		s.logger.Info("transition refused",
			slog.Int64("listing_id", id),
			slog.String("event", string(event)),
			slog.String("actor_id", actor.ID),
			slog.String("reason", err.Error()))
		return nil, err
	}

	updated, err := s.applyTransition(ctx, l, change)
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogModeration(pkglogger.ModerationEvent{
		Event:     string(change.Event),
		ListingID: updated.ID,
		ActorID:   change.ActorID,
		From:      string(change.From),
		To:        string(change.To),
		Note:      change.Note,
	})
	s.notifier.ListingTransitioned(*updated, *change)

	// The transition is committed; a failed image read only degrades the response.
	withImages, err := s.withImages(ctx, updated)
	if err != nil {
		s.logger.Warn("failed to load images after transition",
			slog.Int64("listing_id", updated.ID),
			slog.String("event", string(change.Event)),
			slog.Any("error", err))
		updated.Images = []models.ListingImage{}
		return updated, nil
	}
	return withImages, nil
}

// applyTransition persists change, allocating a slug on approval when the
// listing has none and retrying while candidates collide.
func (s *ListingService) applyTransition(ctx context.Context, l *models.Listing, change *workflow.Change) (*models.Listing, error) {
	needsSlug := change.Event == workflow.Approve && l.Slug == ""
	if !needsSlug {
		return s.listings.ApplyTransition(ctx, l.ID, change)
	}

	base := s.slugs.Base(l.Title, l.Address.City)
	for attempt := 0; ; attempt++ {
		candidate, ok, err := s.slugs.Candidate(base, attempt)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: could not allocate a unique slug", models.ErrConflict)
		}

		change.Slug = candidate
		updated, err := s.listings.ApplyTransition(ctx, l.ID, change)
		if errors.Is(err, repositories.ErrSlugTaken) {
			continue
		}
		return updated, err
	}
}

// History returns the recorded transitions of a listing. Owner or admin.
func (s *ListingService) History(ctx context.Context, actor workflow.Actor, id int64) ([]models.ListingEvent, error) {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.IsOwnedBy(actor.ID) && !actor.IsAdmin() {
		if canView(l, actor) {
			return nil, fmt.Errorf("%w: only the owner or an admin may view history", models.ErrForbidden)
		}
		return nil, models.ErrNotFound
	}
	return s.listings.ListEvents(ctx, id)
}

// EditableListing loads a listing the actor owns and may still change.
func (s *ListingService) EditableListing(ctx context.Context, actor workflow.Actor, id int64) (*models.Listing, error) {
	if actor.ID == "" {
		return nil, models.ErrUnauthorized
	}

	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.IsOwnedBy(actor.ID) {
		if canView(l, actor) {
			return nil, fmt.Errorf("%w: only the owner may change this listing", models.ErrForbidden)
		}
		return nil, models.ErrNotFound
	}
	if !l.IsEditable() {
		return nil, fmt.Errorf("%w: listing is %s and can no longer be edited", models.ErrConflict, l.Status)
	}
	return l, nil
}

// AddImage records an uploaded image on an editable listing. A nil
// position appends.
func (s *ListingService) AddImage(ctx context.Context, actor workflow.Actor, listingID int64, img models.ListingImage, position *int) (*models.ListingImage, error) {
	if _, err := s.EditableListing(ctx, actor, listingID); err != nil {
		return nil, err
	}
	if position != nil && *position < 0 {
		return nil, models.NewValidationError("position", "position cannot be negative")
	}

	n, err := s.images.Count(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if n >= MaxImagesPerListing {
		return nil, models.NewValidationError("images", fmt.Sprintf("a listing can have at most %d images", MaxImagesPerListing))
	}

	img.ListingID = listingID
	img.AltText = strings.TrimSpace(img.AltText)
	added, err := s.images.Add(ctx, &img, position)
	if err != nil {
		return nil, err
	}

	s.logger.Info("listing image added",
		slog.Int64("listing_id", listingID),
		slog.Int64("image_id", added.ID),
		slog.Int("position", added.Position))
	return added, nil
}

// RemoveImage deletes an image from an editable listing. The stored object
// is removed afterwards; a failure there is only logged.
func (s *ListingService) RemoveImage(ctx context.Context, actor workflow.Actor, listingID, imageID int64) error {
	if _, err := s.EditableListing(ctx, actor, listingID); err != nil {
		return err
	}

	removed, err := s.images.Delete(ctx, listingID, imageID)
	if err != nil {
		return err
	}

	if s.objects != nil && removed.ObjectKey != "" {
		if err := s.objects.Remove(ctx, removed.ObjectKey); err != nil {
			s.logger.Warn("failed to remove image object",
				slog.String("object_key", removed.ObjectKey),
				slog.Any("error", err))
		}
	}
	return nil
}

// ReorderImages sets the display order of an editable listing's images.
func (s *ListingService) ReorderImages(ctx context.Context, actor workflow.Actor, listingID int64, imageIDs []int64) ([]models.ListingImage, error) {
	if _, err := s.EditableListing(ctx, actor, listingID); err != nil {
		return nil, err
	}
	if err := s.images.Reorder(ctx, listingID, imageIDs); err != nil {
		return nil, err
	}
	return s.images.ListByListing(ctx, listingID)
}

func (s *ListingService) withImages(ctx context.Context, l *models.Listing) (*models.Listing, error) {
	images, err := s.images.ListByListing(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	l.Images = images
	return l, nil
}
