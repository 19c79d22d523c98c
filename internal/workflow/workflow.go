// Package workflow holds the listing status state machine. It performs no I/O:
// callers plan a change against an in-memory listing, persist it with a
// conditional update, then apply it to the listing they return.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/propertyhub/internal/models"
)

type Event string

const (
	Submit  Event = "SUBMIT"
	Approve Event = "APPROVE"
	Reject  Event = "REJECT"
	Close   Event = "CLOSE"
	Reopen  Event = "REOPEN"
)

func ParseEvent(raw string) (Event, bool) {
	e := Event(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := Lookup(e)
	return e, ok
}

// Rule describes one edge of the state machine and who may fire it.
type Rule struct {
	Event                 Event
	From                  []models.ListingStatus
	To                    models.ListingStatus
	AdminOnly             bool
	OwnerOnly             bool
	RequiresVerifiedEmail bool
}

func (r Rule) AllowsFrom(s models.ListingStatus) bool {
	for _, from := range r.From {
		if from == s {
			return true
		}
	}
	return false
}

var rules = []Rule{
	{
		Event:                 Submit,
		From:                  []models.ListingStatus{models.StatusDraft, models.StatusRejected},
		To:                    models.StatusSubmitted,
		OwnerOnly:             true,
		RequiresVerifiedEmail: true,
	},
	{
		Event:     Approve,
		From:      []models.ListingStatus{models.StatusSubmitted},
		To:        models.StatusPublished,
		AdminOnly: true,
	},
	{
		Event:     Reject,
		From:      []models.ListingStatus{models.StatusSubmitted},
		To:        models.StatusRejected,
		AdminOnly: true,
	},
	{
		Event:     Close,
		From:      []models.ListingStatus{models.StatusPublished},
		To:        models.StatusClosed,
		AdminOnly: true,
	},
	{
		Event:     Reopen,
		From:      []models.ListingStatus{models.StatusClosed},
		To:        models.StatusPublished,
		AdminOnly: true,
	},
}

// Rules returns a copy of the transition table.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

func Lookup(e Event) (Rule, bool) {
	for _, r := range rules {
		if r.Event == e {
			return r, true
		}
	}
	return Rule{}, false
}

// Allowed lists the events whose source states include s, in table order.
func Allowed(s models.ListingStatus) []Event {
	var events []Event
	for _, r := range rules {
		if r.AllowsFrom(s) {
			events = append(events, r.Event)
		}
	}
	return events
}

// Actor is the caller firing an event.
type Actor struct {
	ID            string
	Role          string
	EmailVerified bool
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// Available lists the events the actor could fire on l right now, ignoring input.
func Available(l *models.Listing, a Actor) []Event {
	var events []Event
	for _, e := range Allowed(l.Status) {
		r, _ := Lookup(e)
		if authorize(r, l, a) == nil {
			events = append(events, e)
		}
	}
	return events
}

// Input carries the event-specific payload.
type Input struct {
	Reason     string
	Outcome    string
	ImageCount int
}

// Change is a validated transition. It is the single description of what a
// transition mutates, consumed both by the repository update and by Apply.
type Change struct {
	Event   Event
	From    models.ListingStatus
	To      models.ListingStatus
	ActorID string
	At      time.Time
	Note    string

	// Slug is assigned only when the listing has none.
	Slug string

	SetSubmittedAt bool
	PublishIfUnset bool
	Approve        bool
	RejectReason   *string
	Archive        *models.MarketStatus
	Unarchive      bool
}

// ValidateInput checks the event-specific input that does not depend on the
// listing: a rejection reason and a closing outcome. It needs no load, so
// callers run it before fetching the listing.
func ValidateInput(e Event, in Input) error {
	switch e {
	case Reject:
		if strings.TrimSpace(in.Reason) == "" {
			return models.NewValidationError("reason", "a rejection reason is required")
		}
	case Close:
		if _, ok := models.ParseMarketStatus(in.Outcome); !ok {
			return models.NewValidationError("outcome", "outcome must be one of SOLD, RENTED, CANCELLED, OTHER")
		}
	}
	return nil
}

// Plan validates firing e on l by actor and returns the resulting change.
// Checks run in order: event input, authorization, source state, then the
// image count for SUBMIT.
func Plan(l *models.Listing, e Event, actor Actor, in Input, now time.Time) (*Change, error) {
	rule, ok := Lookup(e)
	if !ok {
		return nil, models.NewValidationError("event", fmt.Sprintf("unknown event %q", e))
	}

	if err := ValidateInput(e, in); err != nil {
		return nil, err
	}

	if err := authorize(rule, l, actor); err != nil {
		return nil, err
	}

	if !rule.AllowsFrom(l.Status) {
		return nil, &models.TransitionError{Event: string(e), Current: l.Status}
	}

	c := &Change{
		Event:   e,
		From:    l.Status,
		To:      rule.To,
		ActorID: actor.ID,
		At:      now.UTC(),
	}

	switch e {
	case Submit:
		if in.ImageCount < 1 {
			return nil, models.NewValidationError("images", "at least one image is required before submitting")
		}
		c.SetSubmittedAt = true
	case Approve:
		c.PublishIfUnset = true
		c.Approve = true
	case Reject:
		reason := strings.TrimSpace(in.Reason)
		c.RejectReason = &reason
		c.Note = reason
	case Close:
		outcome, _ := models.ParseMarketStatus(in.Outcome)
		c.Archive = &outcome
		c.Note = string(outcome)
	case Reopen:
		c.Unarchive = true
		c.PublishIfUnset = true
	}

	return c, nil
}

func authorize(r Rule, l *models.Listing, a Actor) error {
	if a.ID == "" {
		return models.ErrUnauthorized
	}
	if r.AdminOnly && !a.IsAdmin() {
		return fmt.Errorf("%w: %s requires the admin role", models.ErrForbidden, r.Event)
	}
	if r.OwnerOnly && !l.IsOwnedBy(a.ID) {
		return fmt.Errorf("%w: only the owner may %s this listing", models.ErrForbidden, r.Event)
	}
	if r.RequiresVerifiedEmail && !a.EmailVerified && !a.IsAdmin() {
		return models.ErrEmailNotVerified
	}
	return nil
}

// Apply mutates l exactly as the persisted update does.
func (c *Change) Apply(l *models.Listing) {
	at := c.At
	l.Status = c.To
	l.UpdatedAt = at

	if c.Slug != "" && l.Slug == "" {
		l.Slug = c.Slug
	}
	if c.SetSubmittedAt {
		l.SubmittedAt = &at
	}
	if c.PublishIfUnset && l.PublishedAt == nil {
		l.PublishedAt = &at
	}
	if c.Approve {
		actor := c.ActorID
		l.ApprovedAt = &at
		l.ApprovedByID = &actor
		l.RejectedAt = nil
		l.RejectedByID = nil
		l.RejectedReason = nil
	}
	if c.RejectReason != nil {
		actor := c.ActorID
		reason := *c.RejectReason
		l.RejectedAt = &at
		l.RejectedByID = &actor
		l.RejectedReason = &reason
	}
	if c.Archive != nil {
		outcome := *c.Archive
		l.ArchivedAt = &at
		l.MarketStatus = &outcome
	}
	if c.Unarchive {
		l.ArchivedAt = nil
		l.MarketStatus = nil
	}
}
