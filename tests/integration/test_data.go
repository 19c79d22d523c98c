package integration

import (
	"fmt"
	"net/url"
	"time"
)

// TestUser generates unique test user credentials using timestamp
func TestUser(suffix string) (email, password string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "TestPassword123!"
	return
}

// TokenFromLink extracts the verification token from an emailed link.
func TokenFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}

// SampleListing is a valid create/update body.
func SampleListing(title string) map[string]any {
	return map[string]any{
		"title":         title,
		"description":   "Bright two bedroom flat close to the river.",
		"price":         325000,
		"address":       map[string]any{"street": "12 Quay Street", "city": "Bristol", "country": "UK"},
		"bedrooms":      2,
		"bathrooms":     1,
		"property_type": "apartment",
		"features":      []string{"balcony", "parking"},
	}
}
