package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/workflow"
	"github.com/BradenHooton/propertyhub/pkg/logger"
)

const defaultNotificationTimeout = 30 * time.Second

// Notification is one email queued for background delivery. When Recipient
// is empty the address of RecipientUserID is looked up at send time, or,
// with RecipientRole set, every user holding that role is mailed.
type Notification struct {
	Kind            TemplateKind
	Recipient       string
	RecipientUserID string
	RecipientRole   string
	Data            map[string]any
}

// RecipientLookup resolves users to their current email addresses.
type RecipientLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	ListEmailsByRole(ctx context.Context, role string) ([]string, error)
}

// NotificationDispatcher sends notifications off the request path. Delivery
// failures are logged and never reach the caller.
type NotificationDispatcher struct {
	mailer     Mailer
	users      RecipientLookup
	adminEmail string
	baseURL    string
	timeout    time.Duration
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewNotificationDispatcher(mailer Mailer, users RecipientLookup, adminEmail, baseURL string, logger *slog.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		mailer:     mailer,
		users:      users,
		adminEmail: adminEmail,
		baseURL:    baseURL,
		timeout:    defaultNotificationTimeout,
		logger:     logger,
	}
}

// Dispatch hands n to a background goroutine and returns immediately.
func (d *NotificationDispatcher) Dispatch(n Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("notification panicked",
					slog.String("template", string(n.Kind)),
					slog.Any("panic", r),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.deliver(ctx, n); err != nil {
			d.logger.Warn("notification not delivered",
				slog.String("template", string(n.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (d *NotificationDispatcher) deliver(ctx context.Context, n Notification) error {
	recipients, err := d.recipients(ctx, n)
	if err != nil {
		return err
	}

	var errs []error
	for _, recipient := range recipients {
		if err := d.mailer.Send(ctx, recipient, n.Kind, n.Data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", logger.SanitizedEmail(recipient), err))
			continue
		}
		d.logger.Debug("notification delivered",
			slog.String("template", string(n.Kind)),
			slog.String("recipient", logger.SanitizedEmail(recipient)),
		)
	}
	return errors.Join(errs...)
}

func (d *NotificationDispatcher) recipients(ctx context.Context, n Notification) ([]string, error) {
	switch {
	case n.Recipient != "":
		return []string{n.Recipient}, nil
	case n.RecipientUserID != "":
		user, err := d.users.GetByID(ctx, n.RecipientUserID)
		if err != nil {
			return nil, fmt.Errorf("look up recipient: %w", err)
		}
		return []string{user.Email}, nil
	case n.RecipientRole != "":
		emails, err := d.users.ListEmailsByRole(ctx, n.RecipientRole)
		if err != nil {
			return nil, fmt.Errorf("look up %s recipients: %w", n.RecipientRole, err)
		}
		if len(emails) == 0 {
			return nil, fmt.Errorf("no %s users to notify", n.RecipientRole)
		}
		return emails, nil
	default:
		return nil, fmt.Errorf("no recipient")
	}
}

// Wait blocks until every dispatched notification has finished.
func (d *NotificationDispatcher) Wait() {
	d.wg.Wait()
}

// ListingTransitioned notifies the party interested in a committed
// transition: admins for a submission, the owner for everything else.
func (d *NotificationDispatcher) ListingTransitioned(l models.Listing, c workflow.Change) {
	n, ok := d.transitionNotification(l, c)
	if !ok {
		return
	}
	d.Dispatch(n)
}

func (d *NotificationDispatcher) transitionNotification(l models.Listing, c workflow.Change) (Notification, bool) {
	data := map[string]any{
		"ListingID": l.ID,
		"Title":     l.Title,
		"Link":      d.listingLink(l),
	}

	n := Notification{RecipientUserID: l.OwnerID, Data: data}
	switch c.Event {
	case workflow.Submit:
		// Without a shared moderation inbox every admin is mailed directly.
		n.Kind = TemplateListingSubmitted
		n.RecipientUserID = ""
		if d.adminEmail != "" {
			n.Recipient = d.adminEmail
		} else {
			n.RecipientRole = models.RoleAdmin
		}
		data["Link"] = d.baseURL + "/admin/review"
	case workflow.Approve:
		n.Kind = TemplateListingApproved
	case workflow.Reject:
		n.Kind = TemplateListingRejected
		data["Reason"] = c.Note
		data["Link"] = fmt.Sprintf("%s/my/listings/%d", d.baseURL, l.ID)
	case workflow.Close:
		n.Kind = TemplateListingClosed
		data["Outcome"] = c.Note
	case workflow.Reopen:
		n.Kind = TemplateListingReopened
	default:
		return Notification{}, false
	}
	return n, true
}

func (d *NotificationDispatcher) listingLink(l models.Listing) string {
	if l.Slug != "" {
		return d.baseURL + "/listings/" + l.Slug
	}
	return fmt.Sprintf("%s/my/listings/%d", d.baseURL, l.ID)
}
