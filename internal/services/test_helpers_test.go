package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/propertyhub/internal/cache"
	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/repositories"
	"github.com/BradenHooton/propertyhub/internal/storage"
	"github.com/BradenHooton/propertyhub/internal/workflow"
	pkglogger "github.com/BradenHooton/propertyhub/pkg/logger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc        func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc     func(ctx context.Context, email string) (*models.User, error)
	CreateFunc         func(ctx context.Context, user *models.User) (*models.User, error)
	RotateTokenKeyFunc func(ctx context.Context, id string) error

	ListEmailsByRoleFunc func(ctx context.Context, role string) ([]string, error)
}

func (m *MockUserRepository) ListEmailsByRole(ctx context.Context, role string) ([]string, error) {
	if m.ListEmailsByRoleFunc != nil {
		return m.ListEmailsByRoleFunc(ctx, role)
	}
	return []string{}, nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) RotateTokenKey(ctx context.Context, id string) error {
	if m.RotateTokenKeyFunc != nil {
		return m.RotateTokenKeyFunc(ctx, id)
	}
	return nil
}

// MockTokenRevocationRepository implements TokenRevocationRepository for testing
type MockTokenRevocationRepository struct {
	RevokeTokenFunc func(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
}

func (m *MockTokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error {
	if m.RevokeTokenFunc != nil {
		return m.RevokeTokenFunc(ctx, jti, userID, tokenType, expiresAt, reason)
	}
	return nil
}

// MockEmailVerificationRepository implements EmailVerificationRepository for testing
type MockEmailVerificationRepository struct {
	CreateFunc           func(ctx context.Context, userID, tokenHash, email string, expiresAt time.Time) (*models.EmailVerificationToken, error)
	GetLatestForUserFunc func(ctx context.Context, userID string) (*models.EmailVerificationToken, error)
	ConsumeAndVerifyFunc func(ctx context.Context, tokenHash string, now time.Time) (*models.EmailVerificationToken, error)
}

func (m *MockEmailVerificationRepository) Create(ctx context.Context, userID, tokenHash, email string, expiresAt time.Time) (*models.EmailVerificationToken, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, tokenHash, email, expiresAt)
	}
	return &models.EmailVerificationToken{ID: "token", UserID: userID, TokenHash: tokenHash, Email: email, ExpiresAt: expiresAt}, nil
}

func (m *MockEmailVerificationRepository) GetLatestForUser(ctx context.Context, userID string) (*models.EmailVerificationToken, error) {
	if m.GetLatestForUserFunc != nil {
		return m.GetLatestForUserFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockEmailVerificationRepository) ConsumeAndVerify(ctx context.Context, tokenHash string, now time.Time) (*models.EmailVerificationToken, error) {
	if m.ConsumeAndVerifyFunc != nil {
		return m.ConsumeAndVerifyFunc(ctx, tokenHash, now)
	}
	return nil, models.ErrNotFound
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	GenerateAccessTokenFunc func(user *models.User) (string, time.Time, error)
}

func (m *MockTokenIssuer) GenerateAccessToken(user *models.User) (string, time.Time, error) {
	if m.GenerateAccessTokenFunc != nil {
		return m.GenerateAccessTokenFunc(user)
	}
	return "token-for-" + user.ID, time.Now().Add(15 * time.Minute), nil
}

// MockVerificationSender implements VerificationSender for testing
type MockVerificationSender struct {
	mu    sync.Mutex
	Users []*models.User
	Err   error
}

func (m *MockVerificationSender) SendVerificationEmail(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users = append(m.Users, user)
	return m.Err
}

// MockNotificationSender records dispatched notifications synchronously.
type MockNotificationSender struct {
	mu   sync.Mutex
	Sent []Notification
}

func (m *MockNotificationSender) Dispatch(n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, n)
}

// MockMailer implements Mailer for testing
type MockMailer struct {
	mu       sync.Mutex
	SendFunc func(ctx context.Context, recipient string, kind TemplateKind, data map[string]any) error
	Sent     []SentMail
}

type SentMail struct {
	Recipient string
	Kind      TemplateKind
	Data      map[string]any
}

func (m *MockMailer) Send(ctx context.Context, recipient string, kind TemplateKind, data map[string]any) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, SentMail{Recipient: recipient, Kind: kind, Data: data})
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, recipient, kind, data)
	}
	return nil
}

func (m *MockMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// RecordingNotifier implements TransitionNotifier and keeps every call.
type RecordingNotifier struct {
	mu      sync.Mutex
	Changes []workflow.Change
}

func (n *RecordingNotifier) ListingTransitioned(l models.Listing, c workflow.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Changes = append(n.Changes, c)
}

func (n *RecordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Changes)
}

// MockObjectStorage implements ObjectStorage and ObjectRemover for testing
type MockObjectStorage struct {
	PresignUploadFunc func(ctx context.Context, key string, expiry time.Duration) (string, error)
	StatFunc          func(ctx context.Context, key string) (*storage.ObjectInfo, error)
	RemoveFunc        func(ctx context.Context, key string) error
	Removed           []string
}

func (m *MockObjectStorage) PresignUpload(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if m.PresignUploadFunc != nil {
		return m.PresignUploadFunc(ctx, key, expiry)
	}
	return "https://storage.test/bucket/" + key + "?X-Amz-Signature=sig", nil
}

func (m *MockObjectStorage) Stat(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	if m.StatFunc != nil {
		return m.StatFunc(ctx, key)
	}
	return &storage.ObjectInfo{Key: key, Size: 1024, ContentType: "image/jpeg"}, nil
}

func (m *MockObjectStorage) PublicURL(key string) string {
	return "https://cdn.test/bucket/" + key
}

func (m *MockObjectStorage) Remove(ctx context.Context, key string) error {
	m.Removed = append(m.Removed, key)
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, key)
	}
	return nil
}

// MemoryTicketStore implements TicketStore in memory.
type MemoryTicketStore struct {
	mu      sync.Mutex
	tickets map[string]cache.UploadTicket
}

func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{tickets: make(map[string]cache.UploadTicket)}
}

func (s *MemoryTicketStore) Put(ctx context.Context, t cache.UploadTicket, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ObjectKey] = t
	return nil
}

func (s *MemoryTicketStore) Take(ctx context.Context, objectKey string) (*cache.UploadTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[objectKey]
	if !ok {
		return nil, models.ErrNotFound
	}
	delete(s.tickets, objectKey)
	return &t, nil
}

// MemoryListingStore implements ListingRepository and ListingImageRepository
// in memory with the same conditional-update semantics as the SQL store.
type MemoryListingStore struct {
	mu       sync.Mutex
	nextID   int64
	nextImg  int64
	listings map[int64]*models.Listing
	images   map[int64][]models.ListingImage
	events   map[int64][]models.ListingEvent

	CreateCalls     int
	GetByIDCalls    int
	TransitionCalls int
	// FailTransition, when set, is returned by ApplyTransition.
	FailTransition error
	// FailImageList, when set, is returned by ListByListing.
	FailImageList error
}

func NewMemoryListingStore() *MemoryListingStore {
	return &MemoryListingStore{
		listings: make(map[int64]*models.Listing),
		images:   make(map[int64][]models.ListingImage),
		events:   make(map[int64][]models.ListingEvent),
	}
}

func copyListing(l *models.Listing) *models.Listing {
	c := *l
	c.Features = append([]string{}, l.Features...)
	return &c
}

func (s *MemoryListingStore) slugTaken(slug string) bool {
	for _, l := range s.listings {
		if slug != "" && l.Slug == slug {
			return true
		}
	}
	return false
}

func (s *MemoryListingStore) Create(ctx context.Context, l *models.Listing) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls++

	if s.slugTaken(l.Slug) {
		return nil, repositories.ErrSlugTaken
	}
	s.nextID++
	stored := copyListing(l)
	stored.ID = s.nextID
	stored.Status = models.StatusDraft
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.listings[stored.ID] = stored
	return copyListing(stored), nil
}

// Seed stores l as is and returns its id.
func (s *MemoryListingStore) Seed(l models.Listing) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	l.ID = s.nextID
	s.listings[l.ID] = copyListing(&l)
	return l.ID
}

func (s *MemoryListingStore) Snapshot(id int64) *models.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyListing(s.listings[id])
}

func (s *MemoryListingStore) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetByIDCalls++
	l, ok := s.listings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyListing(l), nil
}

func (s *MemoryListingStore) GetBySlug(ctx context.Context, slug string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listings {
		if l.Slug == slug {
			return copyListing(l), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryListingStore) matching(f models.ListingFilter) []*models.Listing {
	out := make([]*models.Listing, 0)
	for _, l := range s.listings {
		if f.OwnerID != "" && l.OwnerID != f.OwnerID {
			continue
		}
		if len(f.Statuses) > 0 {
			found := false
			for _, st := range f.Statuses {
				found = found || st == l.Status
			}
			if !found {
				continue
			}
		}
		out = append(out, copyListing(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *MemoryListingStore) List(ctx context.Context, f models.ListingFilter) ([]*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.matching(f)
	if f.Offset >= len(all) {
		return []*models.Listing{}, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

func (s *MemoryListingStore) Count(ctx context.Context, f models.ListingFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matching(f)), nil
}

func (s *MemoryListingStore) UpdateContent(ctx context.Context, id int64, ownerID string, c models.ListingContent) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	switch {
	case !ok:
		return nil, models.ErrNotFound
	case l.OwnerID != ownerID:
		return nil, models.ErrForbidden
	case !l.IsEditable():
		return nil, models.ErrConflict
	}
	l.Title, l.Description, l.Price, l.Address = c.Title, c.Description, c.Price, c.Address
	l.Bedrooms, l.Bathrooms, l.Features = c.Bedrooms, c.Bathrooms, c.Features
	l.UpdatedAt = time.Now()
	return copyListing(l), nil
}

func (s *MemoryListingStore) ApplyTransition(ctx context.Context, id int64, c *workflow.Change) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TransitionCalls++

	if s.FailTransition != nil {
		return nil, s.FailTransition
	}
	l, ok := s.listings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if l.Status != c.From {
		return nil, &models.TransitionError{Event: string(c.Event), Current: l.Status}
	}
	if c.Slug != "" && l.Slug == "" && s.slugTaken(c.Slug) {
		return nil, repositories.ErrSlugTaken
	}

	c.Apply(l)
	s.events[id] = append(s.events[id], models.ListingEvent{
		ID: int64(len(s.events[id]) + 1), ListingID: id, Event: string(c.Event),
		FromStatus: c.From, ToStatus: c.To, ActorID: c.ActorID, Note: c.Note, CreatedAt: c.At,
	})
	return copyListing(l), nil
}

func (s *MemoryListingStore) ListEvents(ctx context.Context, listingID int64) ([]models.ListingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ListingEvent{}, s.events[listingID]...), nil
}

// MemoryImageStore implements ListingImageRepository over a MemoryListingStore.
type MemoryImageStore struct {
	*MemoryListingStore
}

func (s MemoryImageStore) Add(ctx context.Context, img *models.ListingImage, position *int) (*models.ListingImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := 0
	for _, existing := range s.images[img.ListingID] {
		if position != nil && existing.Position == *position {
			return nil, repositories.ErrPositionTaken
		}
		if existing.Position >= pos {
			pos = existing.Position + 1
		}
	}
	if position != nil {
		pos = *position
	}
	s.nextImg++
	added := *img
	added.ID = s.nextImg
	added.Position = pos
	added.CreatedAt = time.Now()
	s.images[img.ListingID] = append(s.images[img.ListingID], added)
	return &added, nil
}

func (s MemoryImageStore) ListByListing(ctx context.Context, listingID int64) ([]models.ListingImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailImageList != nil {
		return nil, s.FailImageList
	}
	out := append([]models.ListingImage{}, s.images[listingID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s MemoryImageStore) ListByListings(ctx context.Context, listingIDs []int64) (map[int64][]models.ListingImage, error) {
	out := make(map[int64][]models.ListingImage)
	for _, id := range listingIDs {
		images, _ := s.ListByListing(ctx, id)
		if len(images) > 0 {
			out[id] = images
		}
	}
	return out, nil
}

func (s MemoryImageStore) Count(ctx context.Context, listingID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images[listingID]), nil
}

func (s MemoryImageStore) Delete(ctx context.Context, listingID, imageID int64) (*models.ListingImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	images := s.images[listingID]
	for i, img := range images {
		if img.ID == imageID {
			s.images[listingID] = append(images[:i:i], images[i+1:]...)
			return &img, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s MemoryImageStore) Reorder(ctx context.Context, listingID int64, imageIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	images := s.images[listingID]
	if len(images) != len(imageIDs) {
		return models.NewValidationError("image_ids", "wrong number of image ids")
	}
	for pos, id := range imageIDs {
		found := false
		for i := range images {
			if images[i].ID == id {
				images[i].Position = pos
				found = true
			}
		}
		if !found {
			return models.NewValidationError("image_ids", "unknown image id")
		}
	}
	return nil
}

// listingFixture wires a ListingService over in-memory stores.
type listingFixture struct {
	store    *MemoryListingStore
	images   MemoryImageStore
	objects  *MockObjectStorage
	notifier *RecordingNotifier
	service  *ListingService
}

func newListingFixture() *listingFixture {
	store := NewMemoryListingStore()
	images := MemoryImageStore{store}
	objects := &MockObjectStorage{}
	notifier := &RecordingNotifier{}
	logger := discardLogger()

	svc := NewListingService(store, images, objects, notifier, NewSlugGenerator(3), pkglogger.NewAuditLogger(logger), logger, 50)
	return &listingFixture{store: store, images: images, objects: objects, notifier: notifier, service: svc}
}

var (
	ownerActor    = workflow.Actor{ID: "owner-1", Role: models.RoleUser, EmailVerified: true}
	strangerActor = workflow.Actor{ID: "stranger-1", Role: models.RoleUser, EmailVerified: true}
	adminActor    = workflow.Actor{ID: "admin-1", Role: models.RoleAdmin, EmailVerified: true}
)

func sampleContent() models.ListingContent {
	return models.ListingContent{
		Title:        "Sunny Two Bedroom Flat",
		Description:  "Close to the park.",
		Price:        325000,
		Address:      models.Address{Street: "1 Main St", City: "Springfield", Region: "IL", PostalCode: "62701", Country: "US"},
		Bedrooms:     2,
		Bathrooms:    1,
		PropertyType: "Apartment",
		Features:     []string{"balcony", " ", "parking"},
	}
}

func NewTestUser(id, email, name string) *models.User {
	now := time.Now()
	return &models.User{
		ID:            id,
		Email:         email,
		Name:          name,
		EmailVerified: true,
		TokenKey:      "token-key",
		Role:          models.RoleUser,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
