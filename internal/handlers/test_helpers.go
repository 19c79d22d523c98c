package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/propertyhub/internal/auth"
	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/BradenHooton/propertyhub/internal/services"
	"github.com/BradenHooton/propertyhub/internal/workflow"
	pkghttp "github.com/BradenHooton/propertyhub/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext attaches a verified user principal to the request.
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	return WithPrincipalContext(req, &auth.Principal{
		UserID:        userID,
		Email:         email,
		Role:          models.RoleUser,
		EmailVerified: true,
		TokenID:       "jti-" + userID,
		ExpiresAt:     time.Now().Add(15 * time.Minute),
	})
}

// WithAdminContext attaches an admin principal to the request.
func WithAdminContext(req *http.Request, userID, email string) *http.Request {
	return WithPrincipalContext(req, &auth.Principal{
		UserID:        userID,
		Email:         email,
		Role:          models.RoleAdmin,
		EmailVerified: true,
		TokenID:       "jti-" + userID,
		ExpiresAt:     time.Now().Add(15 * time.Minute),
	})
}

func WithPrincipalContext(req *http.Request, p *auth.Principal) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// WithChiRouteContext sets chi URL parameters on a request built outside a router.
//
// Example usage:
//
//	req := httptest.NewRequest("POST", "/listings/42/approve", nil)
//	req = WithChiRouteContext(req, map[string]string{"id": "42"})
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc     func(ctx context.Context, email, password string, info services.LoginRequestInfo) (*services.AuthResponse, error)
	RegisterFunc  func(ctx context.Context, email, password, name string) (*services.UserResponse, error)
	LogoutFunc    func(ctx context.Context, userID, tokenID string, expiresAt time.Time) error
	LogoutAllFunc func(ctx context.Context, userID string) error
	MeFunc        func(ctx context.Context, userID string) (*services.UserResponse, error)
}

func (m *MockAuthService) Login(ctx context.Context, email, password string, info services.LoginRequestInfo) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password, info)
}

func (m *MockAuthService) Register(ctx context.Context, email, password, name string) (*services.UserResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, email, password, name)
}

func (m *MockAuthService) Logout(ctx context.Context, userID, tokenID string, expiresAt time.Time) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, userID, tokenID, expiresAt)
}

func (m *MockAuthService) LogoutAll(ctx context.Context, userID string) error {
	if m.LogoutAllFunc == nil {
		return nil
	}
	return m.LogoutAllFunc(ctx, userID)
}

func (m *MockAuthService) Me(ctx context.Context, userID string) (*services.UserResponse, error) {
	if m.MeFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.MeFunc(ctx, userID)
}

// MockEmailVerificationService for testing
type MockEmailVerificationService struct {
	RequestVerificationFunc func(ctx context.Context, userID string) error
	VerifyEmailFunc         func(ctx context.Context, plainToken string) (string, error)
}

func (m *MockEmailVerificationService) RequestVerification(ctx context.Context, userID string) error {
	if m.RequestVerificationFunc == nil {
		return nil
	}
	return m.RequestVerificationFunc(ctx, userID)
}

func (m *MockEmailVerificationService) VerifyEmail(ctx context.Context, plainToken string) (string, error) {
	if m.VerifyEmailFunc == nil {
		return "", models.NewValidationError("token", "invalid or expired verification token")
	}
	return m.VerifyEmailFunc(ctx, plainToken)
}

// MockListingService implements ListingServiceInterface for testing.
// Unset funcs report models.ErrNotFound.
type MockListingService struct {
	CreateFunc        func(ctx context.Context, actor workflow.Actor, content models.ListingContent) (*models.Listing, error)
	UpdateFunc        func(ctx context.Context, actor workflow.Actor, id int64, content models.ListingContent) (*models.Listing, error)
	GetBySlugFunc     func(ctx context.Context, actor workflow.Actor, slug string) (*models.Listing, error)
	ListPublishedFunc func(ctx context.Context, f models.ListingFilter) (*services.ListingPage, error)
	ListMineFunc      func(ctx context.Context, actor workflow.Actor, f models.ListingFilter) (*services.ListingPage, error)
	ListAllFunc       func(ctx context.Context, actor workflow.Actor, f models.ListingFilter) (*services.ListingPage, error)
	TransitionFunc    func(ctx context.Context, actor workflow.Actor, id int64, event workflow.Event, in workflow.Input) (*models.Listing, error)
	HistoryFunc       func(ctx context.Context, actor workflow.Actor, id int64) ([]models.ListingEvent, error)
	RemoveImageFunc   func(ctx context.Context, actor workflow.Actor, listingID, imageID int64) error
	ReorderImagesFunc func(ctx context.Context, actor workflow.Actor, listingID int64, imageIDs []int64) ([]models.ListingImage, error)
}

func (m *MockListingService) Create(ctx context.Context, actor workflow.Actor, content models.ListingContent) (*models.Listing, error) {
	if m.CreateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.CreateFunc(ctx, actor, content)
}

func (m *MockListingService) Update(ctx context.Context, actor workflow.Actor, id int64, content models.ListingContent) (*models.Listing, error) {
	if m.UpdateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateFunc(ctx, actor, id, content)
}

func (m *MockListingService) GetBySlug(ctx context.Context, actor workflow.Actor, slug string) (*models.Listing, error) {
	if m.GetBySlugFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetBySlugFunc(ctx, actor, slug)
}

func (m *MockListingService) ListPublished(ctx context.Context, f models.ListingFilter) (*services.ListingPage, error) {
	if m.ListPublishedFunc == nil {
		return &services.ListingPage{Limit: f.Limit, Offset: f.Offset}, nil
	}
	return m.ListPublishedFunc(ctx, f)
}

func (m *MockListingService) ListMine(ctx context.Context, actor workflow.Actor, f models.ListingFilter) (*services.ListingPage, error) {
	if m.ListMineFunc == nil {
		return &services.ListingPage{Limit: f.Limit, Offset: f.Offset}, nil
	}
	return m.ListMineFunc(ctx, actor, f)
}

func (m *MockListingService) ListAll(ctx context.Context, actor workflow.Actor, f models.ListingFilter) (*services.ListingPage, error) {
	if m.ListAllFunc == nil {
		return &services.ListingPage{Limit: f.Limit, Offset: f.Offset}, nil
	}
	return m.ListAllFunc(ctx, actor, f)
}

func (m *MockListingService) Transition(ctx context.Context, actor workflow.Actor, id int64, event workflow.Event, in workflow.Input) (*models.Listing, error) {
	if m.TransitionFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.TransitionFunc(ctx, actor, id, event, in)
}

func (m *MockListingService) History(ctx context.Context, actor workflow.Actor, id int64) ([]models.ListingEvent, error) {
	if m.HistoryFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.HistoryFunc(ctx, actor, id)
}

func (m *MockListingService) RemoveImage(ctx context.Context, actor workflow.Actor, listingID, imageID int64) error {
	if m.RemoveImageFunc == nil {
		return models.ErrNotFound
	}
	return m.RemoveImageFunc(ctx, actor, listingID, imageID)
}

func (m *MockListingService) ReorderImages(ctx context.Context, actor workflow.Actor, listingID int64, imageIDs []int64) ([]models.ListingImage, error) {
	if m.ReorderImagesFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ReorderImagesFunc(ctx, actor, listingID, imageIDs)
}

// MockUploadService implements UploadServiceInterface for testing
type MockUploadService struct {
	RequestUploadFunc func(ctx context.Context, actor workflow.Actor, listingID int64, contentType string) (*services.UploadGrant, error)
	ConfirmUploadFunc func(ctx context.Context, actor workflow.Actor, listingID int64, objectKey, altText string, position *int) (*models.ListingImage, error)
}

func (m *MockUploadService) RequestUpload(ctx context.Context, actor workflow.Actor, listingID int64, contentType string) (*services.UploadGrant, error) {
	if m.RequestUploadFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.RequestUploadFunc(ctx, actor, listingID, contentType)
}

func (m *MockUploadService) ConfirmUpload(ctx context.Context, actor workflow.Actor, listingID int64, objectKey, altText string, position *int) (*models.ListingImage, error) {
	if m.ConfirmUploadFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ConfirmUploadFunc(ctx, actor, listingID, objectKey, altText, position)
}
