package services

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

const (
	maxSlugBaseLen   = 80
	slugSuffixLen    = 4
	slugSuffixLetter = "abcdefghijkmnpqrstuvwxyz23456789"
)

// SlugGenerator yields the candidate slugs tried, in order, when a listing
// needs one: the bare base, then up to maxAttempts random suffixes, then a
// timestamp suffix.
type SlugGenerator struct {
	maxAttempts int
	random      func() (string, error)
	now         func() time.Time
}

func NewSlugGenerator(maxAttempts int) *SlugGenerator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &SlugGenerator{
		maxAttempts: maxAttempts,
		random:      randomSlugSuffix,
		now:         time.Now,
	}
}

// Base derives the unsuffixed slug from a title and city.
func (g *SlugGenerator) Base(title, city string) string {
	base := slug.Make(strings.TrimSpace(title + " " + city))
	if len(base) > maxSlugBaseLen {
		base = base[:maxSlugBaseLen]
		if i := strings.LastIndexByte(base, '-'); i > 0 {
			base = base[:i]
		}
		base = strings.Trim(base, "-")
	}
	if base == "" {
		return "listing"
	}
	return base
}

// Candidate returns the slug to try on the given zero-based attempt. It
// reports false once every candidate has been used.
func (g *SlugGenerator) Candidate(base string, attempt int) (string, bool, error) {
	switch {
	case attempt == 0:
		return base, true, nil
	case attempt <= g.maxAttempts:
		suffix, err := g.random()
		if err != nil {
			return "", false, err
		}
		return base + "-" + suffix, true, nil
	case attempt == g.maxAttempts+1:
		return fmt.Sprintf("%s-%d", base, g.now().UnixNano()), true, nil
	default:
		return "", false, nil
	}
}

func randomSlugSuffix() (string, error) {
	b := make([]byte, slugSuffixLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate slug suffix: %w", err)
	}
	for i := range b {
		b[i] = slugSuffixLetter[int(b[i])%len(slugSuffixLetter)]
	}
	return string(b), nil
}
