package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/propertyhub/internal/auth"
	"github.com/BradenHooton/propertyhub/internal/cache"
	"github.com/BradenHooton/propertyhub/internal/database"
	"github.com/BradenHooton/propertyhub/internal/handlers"
	middlewareCustom "github.com/BradenHooton/propertyhub/internal/middleware"
	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/repositories"
	"github.com/BradenHooton/propertyhub/internal/routes"
	"github.com/BradenHooton/propertyhub/internal/services"
	"github.com/BradenHooton/propertyhub/internal/storage"
	pkglogger "github.com/BradenHooton/propertyhub/pkg/logger"
)

const testBaseURL = "http://homes.test"

// SentEmail represents a captured email message
type SentEmail struct {
	To   string
	Kind services.TemplateKind
	Data map[string]any
}

// CapturingMailer records every message instead of sending it.
type CapturingMailer struct {
	mu   sync.Mutex
	sent []SentEmail
}

func (m *CapturingMailer) Send(ctx context.Context, recipient string, kind services.TemplateKind, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentEmail{To: recipient, Kind: kind, Data: data})
	return nil
}

// Last returns the most recent message of kind sent to recipient.
func (m *CapturingMailer) Last(recipient string, kind services.TemplateKind) *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == recipient && m.sent[i].Kind == kind {
			e := m.sent[i]
			return &e
		}
	}
	return nil
}

// MemoryObjectStore stands in for the S3 compatible image host.
type MemoryObjectStore struct {
	mu      sync.Mutex
	objects map[string]int64
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string]int64)}
}

// Upload simulates the client PUT to a presigned URL.
func (s *MemoryObjectStore) Upload(key string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = size
}

func (s *MemoryObjectStore) PresignUpload(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "http://objects.test/upload/" + key, nil
}

func (s *MemoryObjectStore) Stat(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	size, ok := s.objects[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &storage.ObjectInfo{Key: key, Size: size, ContentType: "image/jpeg"}, nil
}

func (s *MemoryObjectStore) PublicURL(key string) string {
	return "http://objects.test/" + key
}

func (s *MemoryObjectStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// MemoryTicketStore keeps upload tickets in process.
type MemoryTicketStore struct {
	mu      sync.Mutex
	tickets map[string]cache.UploadTicket
}

func (s *MemoryTicketStore) Put(ctx context.Context, t cache.UploadTicket, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickets == nil {
		s.tickets = make(map[string]cache.UploadTicket)
	}
	s.tickets[t.ObjectKey] = t
	return nil
}

func (s *MemoryTicketStore) Take(ctx context.Context, objectKey string) (*cache.UploadTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[objectKey]
	if !ok {
		return nil, fmt.Errorf("%w: upload ticket", models.ErrNotFound)
	}
	delete(s.tickets, objectKey)
	return &t, nil
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server     *httptest.Server
	DB         *database.DB
	Mailer     *CapturingMailer
	Objects    *MemoryObjectStore
	Dispatcher *services.NotificationDispatcher
}

// NewTestServer wires the full router against a real database. Email,
// object storage and upload tickets are in-memory.
func NewTestServer(db *database.DB, logger *slog.Logger) *TestServer {
	userRepo := repositories.NewUserRepository(db.Pool)
	revokeRepo := repositories.NewTokenRevocationRepository(db.Pool)
	emailVerificationRepo := repositories.NewEmailVerificationRepository(db.Pool)
	listingRepo := repositories.NewListingRepository(db.Pool)
	imageRepo := repositories.NewListingImageRepository(db.Pool)

	mailer := &CapturingMailer{}
	objects := NewMemoryObjectStore()
	dispatcher := services.NewNotificationDispatcher(mailer, userRepo, "moderation@homes.test", testBaseURL, logger)

	tokenManager := auth.NewTokenManager("test-secret-32-characters-long-for-testing", 15*time.Minute, userRepo)
	auditLogger := pkglogger.NewAuditLogger(logger)

	emailVerificationService := services.NewEmailVerificationService(emailVerificationRepo, userRepo, dispatcher, logger, testBaseURL, 24*time.Hour)
	authService := services.NewAuthService(userRepo, tokenManager, revokeRepo, emailVerificationService, logger, auditLogger)
	listingService := services.NewListingService(listingRepo, imageRepo, objects, dispatcher, services.NewSlugGenerator(5), auditLogger, logger, 100)
	uploadService := services.NewUploadService(listingService, objects, &MemoryTicketStore{}, 15*time.Minute, logger)
	adminService := services.NewAdminService(userRepo, listingRepo, logger, auditLogger)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(
		router,
		handlers.NewAuthHandler(authService, emailVerificationService, nil, logger),
		handlers.NewListingHandler(listingService, uploadService, logger, 20, 100),
		handlers.NewAdminHandler(adminService, logger),
		tokenManager,
		revokeRepo,
		logger,
	)

	return &TestServer{
		Server:     httptest.NewServer(router),
		DB:         db,
		Mailer:     mailer,
		Objects:    objects,
		Dispatcher: dispatcher,
	}
}

// Close stops the server and drains pending notifications.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Dispatcher.Wait()
}

// Response is a decoded API response.
type Response struct {
	Status int
	Body   map[string]any
	Raw    []byte
}

// Do sends a JSON request, optionally authenticated with a bearer token.
func (ts *TestServer) Do(method, path, token string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Server.Client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	out := &Response{Status: resp.StatusCode, Raw: raw}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out.Body)
	}
	return out, nil
}

// Login returns an access token for the given credentials.
func (ts *TestServer) Login(email, password string) (string, error) {
	resp, err := ts.Do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	if resp.Status != http.StatusOK {
		return "", fmt.Errorf("login returned %d: %s", resp.Status, resp.Raw)
	}
	token, _ := resp.Body["token"].(string)
	return token, nil
}
