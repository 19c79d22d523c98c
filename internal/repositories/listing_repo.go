package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/BradenHooton/propertyhub/internal/database"
	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/workflow"
)

const listingSlugConstraint = "listings_slug_key"

// ErrSlugTaken is returned when an insert or slug assignment hits the unique slug index.
var ErrSlugTaken = fmt.Errorf("%w: slug already taken", models.ErrConflict)

// errStatusChanged signals the conditional update matched no row.
var errStatusChanged = errors.New("listing status changed concurrently")

const listingColumns = `id, slug, owner_id, status, title, description, price,
	street, city, region, postal_code, country, latitude, longitude,
	bedrooms, bathrooms, property_type, energy_rating, features,
	submitted_at, published_at, approved_at, approved_by_id,
	rejected_at, rejected_by_id, rejected_reason, archived_at, market_status,
	created_at, updated_at`

type ListingRepository struct {
	db database.Querier
}

func NewListingRepository(db database.Querier) *ListingRepository {
	return &ListingRepository{db: db}
}

func scanListingRow(scanner rowScanner) (*models.Listing, error) {
	var l models.Listing
	var slug, marketStatus *string
	var status string

	err := scanner.Scan(
		&l.ID, &slug, &l.OwnerID, &status, &l.Title, &l.Description, &l.Price,
		&l.Address.Street, &l.Address.City, &l.Address.Region, &l.Address.PostalCode, &l.Address.Country,
		&l.Latitude, &l.Longitude,
		&l.Bedrooms, &l.Bathrooms, &l.PropertyType, &l.EnergyRating, pq.Array(&l.Features),
		&l.SubmittedAt, &l.PublishedAt, &l.ApprovedAt, &l.ApprovedByID,
		&l.RejectedAt, &l.RejectedByID, &l.RejectedReason, &l.ArchivedAt, &marketStatus,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	l.Status = models.ListingStatus(status)
	if slug != nil {
		l.Slug = *slug
	}
	if marketStatus != nil {
		ms := models.MarketStatus(*marketStatus)
		l.MarketStatus = &ms
	}
	if l.Features == nil {
		l.Features = []string{}
	}

	return &l, nil
}

func scanListingRows(rows pgx.Rows) ([]*models.Listing, error) {
	defer rows.Close()

	listings := make([]*models.Listing, 0)
	for rows.Next() {
		l, err := scanListingRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listing rows: %w", err)
	}

	return listings, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func features(f []string) []string {
	if f == nil {
		return []string{}
	}
	return f
}

// Create inserts a DRAFT listing. A slug collision yields ErrSlugTaken and
// leaves the existing row untouched.
func (r *ListingRepository) Create(ctx context.Context, l *models.Listing) (*models.Listing, error) {
	query := `
		INSERT INTO listings (slug, owner_id, status, title, description, price,
			street, city, region, postal_code, country, latitude, longitude,
			bedrooms, bathrooms, property_type, energy_rating, features)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING ` + listingColumns

	created, err := scanListingRow(r.db.QueryRow(ctx, query,
		nullString(l.Slug), l.OwnerID, models.StatusDraft, l.Title, l.Description, l.Price,
		l.Address.Street, l.Address.City, l.Address.Region, l.Address.PostalCode, l.Address.Country,
		l.Latitude, l.Longitude,
		l.Bedrooms, l.Bathrooms, l.PropertyType, l.EnergyRating, pq.Array(features(l.Features)),
	))
	if err != nil {
		if database.IsUniqueViolation(err, listingSlugConstraint) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	return created, nil
}

func (r *ListingRepository) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	return scanListingRow(r.db.QueryRow(ctx, query, id))
}

func (r *ListingRepository) GetBySlug(ctx context.Context, slug string) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE slug = $1`
	return scanListingRow(r.db.QueryRow(ctx, query, slug))
}

func (r *ListingRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM listings WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

// escapeLike neutralises LIKE wildcards in user-supplied search text.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// buildListingWhere renders the filter as a WHERE clause with positional args.
func buildListingWhere(f models.ListingFilter) (string, []any) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		conds = append(conds, "status = ANY("+arg(statuses)+")")
	}
	if f.OwnerID != "" {
		conds = append(conds, "owner_id = "+arg(f.OwnerID))
	}
	if f.City != "" {
		conds = append(conds, "lower(city) = lower("+arg(f.City)+")")
	}
	if f.Region != "" {
		conds = append(conds, "lower(region) = lower("+arg(f.Region)+")")
	}
	if f.PropertyType != "" {
		conds = append(conds, "property_type = "+arg(f.PropertyType))
	}
	if f.MinPrice != nil {
		conds = append(conds, "price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		conds = append(conds, "price <= "+arg(*f.MaxPrice))
	}
	if f.MinBedrooms != nil {
		conds = append(conds, "bedrooms >= "+arg(*f.MinBedrooms))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg("%" + escapeLike(q) + "%")
		conds = append(conds, fmt.Sprintf(
			"(title ILIKE %[1]s OR street ILIKE %[1]s OR city ILIKE %[1]s OR region ILIKE %[1]s OR postal_code ILIKE %[1]s OR country ILIKE %[1]s)", p))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns listings matching the filter, most recently published first.
func (r *ListingRepository) List(ctx context.Context, f models.ListingFilter) ([]*models.Listing, error) {
	where, args := buildListingWhere(f)

	query := `SELECT ` + listingColumns + ` FROM listings` + where +
		` ORDER BY COALESCE(published_at, created_at) DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}

	return scanListingRows(rows)
}

func (r *ListingRepository) Count(ctx context.Context, f models.ListingFilter) (int, error) {
	where, args := buildListingWhere(f)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM listings`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return total, nil
}

// CountByStatus returns the number of listings in each status. Statuses
// with no listings are absent from the map.
func (r *ListingRepository) CountByStatus(ctx context.Context) (map[models.ListingStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM listings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count listings by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ListingStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[models.ListingStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	return counts, nil
}

// OldestSubmittedAt returns when the longest-waiting submission was made,
// or nil when the review queue is empty.
func (r *ListingRepository) OldestSubmittedAt(ctx context.Context) (*time.Time, error) {
	var oldest *time.Time
	err := r.db.QueryRow(ctx, `SELECT MIN(submitted_at) FROM listings WHERE status = $1`, string(models.StatusSubmitted)).Scan(&oldest)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return oldest, nil
}

// UpdateContent replaces the owner-editable fields. The update only matches
// while the listing belongs to ownerID and is DRAFT or REJECTED.
func (r *ListingRepository) UpdateContent(ctx context.Context, id int64, ownerID string, c models.ListingContent) (*models.Listing, error) {
	query := `
		UPDATE listings SET
			title = $3, description = $4, price = $5,
			street = $6, city = $7, region = $8, postal_code = $9, country = $10,
			latitude = $11, longitude = $12, bedrooms = $13, bathrooms = $14,
			property_type = $15, energy_rating = $16, features = $17,
			updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND status IN ('DRAFT', 'REJECTED')
		RETURNING ` + listingColumns

	updated, err := scanListingRow(r.db.QueryRow(ctx, query,
		id, ownerID, c.Title, c.Description, c.Price,
		c.Address.Street, c.Address.City, c.Address.Region, c.Address.PostalCode, c.Address.Country,
		c.Latitude, c.Longitude, c.Bedrooms, c.Bathrooms,
		c.PropertyType, c.EnergyRating, pq.Array(features(c.Features)),
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: listing belongs to another user", models.ErrForbidden)
	}
	return nil, fmt.Errorf("%w: a %s listing can no longer be edited", models.ErrConflict, current.Status)
}

// transitionAssignments renders the SET list for a change. $1 is the id and
// $2 the expected status; $3 is the target status and $4 the transition time.
func transitionAssignments(c *workflow.Change) ([]string, []any) {
	args := []any{string(c.To), c.At}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args)+2)
	}

	sets := []string{"status = $3", "updated_at = $4"}
	if c.Slug != "" {
		sets = append(sets, "slug = COALESCE(slug, "+arg(c.Slug)+")")
	}
	if c.SetSubmittedAt {
		sets = append(sets, "submitted_at = $4")
	}
	if c.PublishIfUnset {
		sets = append(sets, "published_at = COALESCE(published_at, $4)")
	}
	if c.Approve {
		sets = append(sets,
			"approved_at = $4",
			"approved_by_id = "+arg(c.ActorID),
			"rejected_at = NULL",
			"rejected_by_id = NULL",
			"rejected_reason = NULL",
		)
	}
	if c.RejectReason != nil {
		sets = append(sets,
			"rejected_at = $4",
			"rejected_by_id = "+arg(c.ActorID),
			"rejected_reason = "+arg(*c.RejectReason),
		)
	}
	if c.Archive != nil {
		sets = append(sets, "archived_at = $4", "market_status = "+arg(string(*c.Archive)))
	}
	if c.Unarchive {
		sets = append(sets, "archived_at = NULL", "market_status = NULL")
	}

	return sets, args
}

// ApplyTransition persists a planned change with a single conditional update
// and records it in listing_events, both in one transaction. If the listing
// is no longer in c.From the listing is re-read and a TransitionError naming
// its current status is returned, or models.ErrNotFound if it is gone.
func (r *ListingRepository) ApplyTransition(ctx context.Context, id int64, c *workflow.Change) (*models.Listing, error) {
	sets, setArgs := transitionAssignments(c)
	update := `UPDATE listings SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND status = $2 RETURNING ` + listingColumns
	args := append([]any{id, string(c.From)}, setArgs...)

	var updated *models.Listing
	err := database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		l, err := scanListingRow(tx.QueryRow(ctx, update, args...))
		if errors.Is(err, models.ErrNotFound) {
			return errStatusChanged
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO listing_events (listing_id, event, from_status, to_status, actor_id, note, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, string(c.Event), string(c.From), string(c.To), c.ActorID, c.Note, c.At)
		if err != nil {
			return database.MapPostgresError(err)
		}

		updated = l
		return nil
	})

	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, errStatusChanged):
		current, gerr := r.GetByID(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, &models.TransitionError{Event: string(c.Event), Current: current.Status}
	case database.IsUniqueViolation(err, listingSlugConstraint):
		return nil, ErrSlugTaken
	default:
		return nil, fmt.Errorf("failed to apply %s: %w", c.Event, err)
	}
}

// AssignSlug sets the slug only if the listing has none. It reports whether
// the slug was written.
func (r *ListingRepository) AssignSlug(ctx context.Context, id int64, slug string) (bool, error) {
	result, err := r.db.Exec(ctx, `UPDATE listings SET slug = $2, updated_at = NOW() WHERE id = $1 AND slug IS NULL`, id, slug)
	if err != nil {
		if database.IsUniqueViolation(err, listingSlugConstraint) {
			return false, ErrSlugTaken
		}
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *ListingRepository) ListEvents(ctx context.Context, listingID int64) ([]models.ListingEvent, error) {
	query := `
		SELECT id, listing_id, event, from_status, to_status, actor_id, note, created_at
		FROM listing_events
		WHERE listing_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query listing events: %w", err)
	}
	defer rows.Close()

	events := make([]models.ListingEvent, 0)
	for rows.Next() {
		var e models.ListingEvent
		var from, to string
		if err := rows.Scan(&e.ID, &e.ListingID, &e.Event, &from, &to, &e.ActorID, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan listing event: %w", err)
		}
		e.FromStatus = models.ListingStatus(from)
		e.ToStatus = models.ListingStatus(to)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listing events: %w", err)
	}
	return events, nil
}
