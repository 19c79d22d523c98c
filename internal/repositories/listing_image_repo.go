package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/BradenHooton/propertyhub/internal/database"
	"github.com/BradenHooton/propertyhub/internal/models"
)

const imagePositionConstraint = "listing_images_listing_id_position_key"

var ErrPositionTaken = fmt.Errorf("%w: image position already used", models.ErrConflict)

const imageColumns = `id, listing_id, object_key, url, position, alt_text, created_at`

type ListingImageRepository struct {
	db database.Querier
}

func NewListingImageRepository(db database.Querier) *ListingImageRepository {
	return &ListingImageRepository{db: db}
}

func scanImageRow(row rowScanner) (*models.ListingImage, error) {
	var img models.ListingImage
	err := row.Scan(&img.ID, &img.ListingID, &img.ObjectKey, &img.URL, &img.Position, &img.AltText, &img.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &img, nil
}

func scanImageRows(rows pgx.Rows) ([]models.ListingImage, error) {
	defer rows.Close()

	images := make([]models.ListingImage, 0)
	for rows.Next() {
		img, err := scanImageRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing image: %w", err)
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listing images: %w", err)
	}
	return images, nil
}

// Add records an uploaded image. A nil position appends after the current last one.
func (r *ListingImageRepository) Add(ctx context.Context, img *models.ListingImage, position *int) (*models.ListingImage, error) {
	query := `
		INSERT INTO listing_images (listing_id, object_key, url, position, alt_text)
		VALUES ($1, $2, $3,
			COALESCE($4, (SELECT COALESCE(MAX(position) + 1, 0) FROM listing_images WHERE listing_id = $1)),
			$5)
		RETURNING ` + imageColumns

	created, err := scanImageRow(r.db.QueryRow(ctx, query, img.ListingID, img.ObjectKey, img.URL, position, img.AltText))
	if err != nil {
		if database.IsUniqueViolation(err, imagePositionConstraint) {
			return nil, ErrPositionTaken
		}
		return nil, fmt.Errorf("failed to add listing image: %w", err)
	}
	return created, nil
}

// ListByListing returns images in display order.
func (r *ListingImageRepository) ListByListing(ctx context.Context, listingID int64) ([]models.ListingImage, error) {
	rows, err := r.db.Query(ctx, `SELECT `+imageColumns+` FROM listing_images WHERE listing_id = $1 ORDER BY position, id`, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query listing images: %w", err)
	}
	return scanImageRows(rows)
}

// ListByListings groups the images of several listings by listing id.
func (r *ListingImageRepository) ListByListings(ctx context.Context, listingIDs []int64) (map[int64][]models.ListingImage, error) {
	grouped := make(map[int64][]models.ListingImage, len(listingIDs))
	if len(listingIDs) == 0 {
		return grouped, nil
	}

	rows, err := r.db.Query(ctx, `SELECT `+imageColumns+` FROM listing_images WHERE listing_id = ANY($1) ORDER BY listing_id, position, id`, listingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query listing images: %w", err)
	}

	images, err := scanImageRows(rows)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		grouped[img.ListingID] = append(grouped[img.ListingID], img)
	}
	return grouped, nil
}

func (r *ListingImageRepository) Count(ctx context.Context, listingID int64) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM listing_images WHERE listing_id = $1`, listingID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count listing images: %w", err)
	}
	return n, nil
}

// Delete removes one image and returns it so the stored object can be cleaned up.
func (r *ListingImageRepository) Delete(ctx context.Context, listingID, imageID int64) (*models.ListingImage, error) {
	query := `DELETE FROM listing_images WHERE listing_id = $1 AND id = $2 RETURNING ` + imageColumns
	return scanImageRow(r.db.QueryRow(ctx, query, listingID, imageID))
}

// Reorder assigns positions 0..n-1 in the given order. imageIDs must name
// every image of the listing exactly once.
func (r *ListingImageRepository) Reorder(ctx context.Context, listingID int64, imageIDs []int64) error {
	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		var n int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM listing_images WHERE listing_id = $1`, listingID).Scan(&n); err != nil {
			return fmt.Errorf("failed to count listing images: %w", err)
		}
		if n != len(imageIDs) {
			return models.NewValidationError("image_ids", fmt.Sprintf("expected %d image ids, got %d", n, len(imageIDs)))
		}

		// Park every row on a negative position first so the unique index
		// never sees two rows on the same slot mid-update.
		if _, err := tx.Exec(ctx, `UPDATE listing_images SET position = -position - 1 WHERE listing_id = $1`, listingID); err != nil {
			return database.MapPostgresError(err)
		}

		for pos, id := range imageIDs {
			result, err := tx.Exec(ctx, `UPDATE listing_images SET position = $3 WHERE listing_id = $1 AND id = $2 AND position < 0`, listingID, id, pos)
			if err != nil {
				return database.MapPostgresError(err)
			}
			if result.RowsAffected() == 0 {
				return models.NewValidationError("image_ids", fmt.Sprintf("image %d is not part of this listing or is listed twice", id))
			}
		}
		return nil
	})
}
