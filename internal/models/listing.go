package models

import (
	"strings"
	"time"
)

// ListingStatus is the single canonical moderation status of a listing.
type ListingStatus string

const (
	StatusDraft     ListingStatus = "DRAFT"
	StatusSubmitted ListingStatus = "SUBMITTED"
	StatusPublished ListingStatus = "PUBLISHED"
	StatusRejected  ListingStatus = "REJECTED"
	StatusClosed    ListingStatus = "CLOSED"
)

var listingStatuses = []ListingStatus{StatusDraft, StatusSubmitted, StatusPublished, StatusRejected, StatusClosed}

// ListingStatuses returns every status in workflow order.
func ListingStatuses() []ListingStatus {
	out := make([]ListingStatus, len(listingStatuses))
	copy(out, listingStatuses)
	return out
}

func (s ListingStatus) Valid() bool {
	for _, v := range listingStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseListingStatus accepts any casing and surrounding whitespace.
func ParseListingStatus(raw string) (ListingStatus, bool) {
	s := ListingStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// MarketStatus records why a listing left the market.
type MarketStatus string

const (
	MarketSold      MarketStatus = "SOLD"
	MarketRented    MarketStatus = "RENTED"
	MarketCancelled MarketStatus = "CANCELLED"
	MarketOther     MarketStatus = "OTHER"
)

func (m MarketStatus) Valid() bool {
	switch m {
	case MarketSold, MarketRented, MarketCancelled, MarketOther:
		return true
	}
	return false
}

func ParseMarketStatus(raw string) (MarketStatus, bool) {
	m := MarketStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return m, m.Valid()
}

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Listing is one property offered for sale or rent.
type Listing struct {
	ID      int64
	Slug    string // empty until assigned
	OwnerID string
	Status  ListingStatus

	Title        string
	Description  string
	Price        float64
	Address      Address
	Latitude     *float64
	Longitude    *float64
	Bedrooms     int
	Bathrooms    int
	PropertyType string
	EnergyRating string
	Features     []string
	Images       []ListingImage

	SubmittedAt    *time.Time
	PublishedAt    *time.Time
	ApprovedAt     *time.Time
	ApprovedByID   *string
	RejectedAt     *time.Time
	RejectedByID   *string
	RejectedReason *string
	ArchivedAt     *time.Time
	MarketStatus   *MarketStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsEditable reports whether the owner may still change content.
func (l *Listing) IsEditable() bool {
	return l.Status == StatusDraft || l.Status == StatusRejected
}

func (l *Listing) IsOwnedBy(userID string) bool {
	return userID != "" && l.OwnerID == userID
}

// ListingContent is the owner-editable part of a listing.
type ListingContent struct {
	Title        string
	Description  string
	Price        float64
	Address      Address
	Latitude     *float64
	Longitude    *float64
	Bedrooms     int
	Bathrooms    int
	PropertyType string
	EnergyRating string
	Features     []string
}

type ListingImage struct {
	ID        int64
	ListingID int64
	ObjectKey string
	URL       string
	Position  int
	AltText   string
	CreatedAt time.Time
}

// ListingEvent is one recorded workflow transition.
type ListingEvent struct {
	ID         int64
	ListingID  int64
	Event      string
	FromStatus ListingStatus
	ToStatus   ListingStatus
	ActorID    string
	Note       string
	CreatedAt  time.Time
}

// ListingFilter narrows listing queries. Zero values mean "no constraint".
type ListingFilter struct {
	Statuses     []ListingStatus
	OwnerID      string
	City         string
	Region       string
	PropertyType string
	MinPrice     *float64
	MaxPrice     *float64
	MinBedrooms  *int
	Query        string
	Limit        int
	Offset       int
}
