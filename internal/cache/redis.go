package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/propertyhub/internal/config"
	"github.com/BradenHooton/propertyhub/internal/models"
)

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// UploadTicket binds a presigned object key to the listing and owner it was issued for.
type UploadTicket struct {
	ListingID   int64     `json:"listing_id"`
	OwnerID     string    `json:"owner_id"`
	ObjectKey   string    `json:"object_key"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

const uploadTicketPrefix = "upload-ticket:"

// UploadTicketStore keeps tickets in Redis until they are consumed or expire.
type UploadTicketStore struct {
	rdb *redis.Client
}

func NewUploadTicketStore(rdb *redis.Client) *UploadTicketStore {
	return &UploadTicketStore{rdb: rdb}
}

func (s *UploadTicketStore) Put(ctx context.Context, t UploadTicket, ttl time.Duration) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode upload ticket: %w", err)
	}
	if err := s.rdb.Set(ctx, uploadTicketPrefix+t.ObjectKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store upload ticket: %w", err)
	}
	return nil
}

// Take removes and returns the ticket for objectKey. A ticket can be taken
// once; an unknown or expired key yields models.ErrNotFound.
func (s *UploadTicketStore) Take(ctx context.Context, objectKey string) (*UploadTicket, error) {
	payload, err := s.rdb.GetDel(ctx, uploadTicketPrefix+objectKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: upload ticket", models.ErrNotFound)
		}
		return nil, fmt.Errorf("load upload ticket: %w", err)
	}

	var t UploadTicket
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("decode upload ticket: %w", err)
	}
	return &t, nil
}
