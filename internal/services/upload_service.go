package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/BradenHooton/propertyhub/internal/cache"
	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/storage"
	"github.com/BradenHooton/propertyhub/internal/workflow"
)

// MaxImageBytes caps the size of one uploaded image.
const MaxImageBytes = 10 << 20

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ObjectStorage is the image host as seen by the upload handshake.
type ObjectStorage interface {
	PresignUpload(ctx context.Context, key string, expiry time.Duration) (string, error)
	Stat(ctx context.Context, key string) (*storage.ObjectInfo, error)
	PublicURL(key string) string
	ObjectRemover
}

// TicketStore holds issued upload tickets until they are confirmed.
type TicketStore interface {
	Put(ctx context.Context, t cache.UploadTicket, ttl time.Duration) error
	Take(ctx context.Context, objectKey string) (*cache.UploadTicket, error)
}

// UploadGrant is what a client needs to upload one image directly to storage.
type UploadGrant struct {
	UploadURL string    `json:"upload_url"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UploadService runs the signed-upload handshake: issue a presigned URL,
// let the client upload, then record the image once the object exists.
type UploadService struct {
	listings *ListingService
	store    ObjectStorage
	tickets  TicketStore
	expiry   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewUploadService(listings *ListingService, store ObjectStorage, tickets TicketStore, expiry time.Duration, logger *slog.Logger) *UploadService {
	return &UploadService{
		listings: listings,
		store:    store,
		tickets:  tickets,
		expiry:   expiry,
		logger:   logger,
		now:      time.Now,
	}
}

// RequestUpload issues a presigned upload URL for an editable listing the
// actor owns.
func (s *UploadService) RequestUpload(ctx context.Context, actor workflow.Actor, listingID int64, contentType string) (*UploadGrant, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := imageExtensions[contentType]
	if !ok {
		return nil, models.NewValidationError("content_type", "content_type must be image/jpeg, image/png or image/webp")
	}

	if _, err := s.listings.EditableListing(ctx, actor, listingID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("listings/%d/%s%s", listingID, ksuid.New().String(), ext)
	uploadURL, err := s.store.PresignUpload(ctx, key, s.expiry)
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(s.expiry).UTC()
	ticket := cache.UploadTicket{
		ListingID:   listingID,
		OwnerID:     actor.ID,
		ObjectKey:   key,
		ContentType: contentType,
		ExpiresAt:   expiresAt,
	}
	if err := s.tickets.Put(ctx, ticket, s.expiry); err != nil {
		return nil, err
	}

	s.logger.Info("upload url issued",
		slog.Int64("listing_id", listingID),
		slog.String("object_key", key))

	return &UploadGrant{UploadURL: uploadURL, ObjectKey: key, ExpiresAt: expiresAt}, nil
}

// ConfirmUpload consumes the ticket for objectKey and records the uploaded
// object as an image of the listing. The ticket is put back when the confirm
// fails after it was taken, so the client can retry until it expires.
func (s *UploadService) ConfirmUpload(ctx context.Context, actor workflow.Actor, listingID int64, objectKey, altText string, position *int) (*models.ListingImage, error) {
	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" {
		return nil, models.NewValidationError("object_key", "object_key is required")
	}

	ticket, err := s.tickets.Take(ctx, objectKey)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewValidationError("object_key", "upload is unknown or has expired")
		}
		return nil, err
	}

	img, err := s.confirmTicket(ctx, actor, listingID, ticket, altText, position)
	if err != nil {
		s.restoreTicket(ctx, ticket)
		return nil, err
	}
	return img, nil
}

func (s *UploadService) confirmTicket(ctx context.Context, actor workflow.Actor, listingID int64, ticket *cache.UploadTicket, altText string, position *int) (*models.ListingImage, error) {
	if ticket.ListingID != listingID || ticket.OwnerID != actor.ID {
		return nil, models.NewValidationError("object_key", "upload was issued for a different listing")
	}

	info, err := s.store.Stat(ctx, ticket.ObjectKey)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewValidationError("object_key", "no object was uploaded for this key")
		}
		return nil, err
	}
	if info.Size > MaxImageBytes {
		if err := s.store.Remove(ctx, ticket.ObjectKey); err != nil {
			s.logger.Warn("failed to remove oversized upload",
				slog.String("object_key", ticket.ObjectKey),
				slog.Any("error", err))
		}
		return nil, models.NewValidationError("object_key", fmt.Sprintf("image exceeds %d bytes", MaxImageBytes))
	}

	return s.listings.AddImage(ctx, actor, listingID, models.ListingImage{
		ObjectKey: ticket.ObjectKey,
		URL:       s.store.PublicURL(ticket.ObjectKey),
		AltText:   altText,
	}, position)
}

// restoreTicket puts a taken ticket back for whatever remains of its lifetime.
func (s *UploadService) restoreTicket(ctx context.Context, ticket *cache.UploadTicket) {
	ttl := ticket.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.tickets.Put(context.WithoutCancel(ctx), *ticket, ttl); err != nil {
		s.logger.Warn("failed to restore upload ticket",
			slog.String("object_key", ticket.ObjectKey),
			slog.Any("error", err))
	}
}
