package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/propertyhub/internal/models"
	pkgauth "github.com/BradenHooton/propertyhub/pkg/auth"
	pkglogger "github.com/BradenHooton/propertyhub/pkg/logger"
)

// AdminUserRepository is the subset of user store methods needed by AdminService.
type AdminUserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	SetRole(ctx context.Context, id, role string) error
	CountByRole(ctx context.Context, role string) (int64, error)
	CountNewSince(ctx context.Context, since time.Time) (int64, error)
}

// AdminListingRepository is the subset of listing store methods needed by AdminService.
type AdminListingRepository interface {
	CountByStatus(ctx context.Context) (map[models.ListingStatus]int64, error)
	OldestSubmittedAt(ctx context.Context) (*time.Time, error)
}

// ModerationStatsResponse contains aggregate moderation metrics.
type ModerationStatsResponse struct {
	ListingsByStatus   map[string]int64 `json:"listings_by_status"`
	PendingReview      int64            `json:"pending_review"`
	OldestPendingSince *time.Time       `json:"oldest_pending_since,omitempty"`
	AdminCount         int64            `json:"admin_count"`
	UserCount          int64            `json:"user_count"`
	NewUsersToday      int64            `json:"new_users_today"`
}

// AdminService aggregates data for the moderation dashboard and bootstraps
// admin accounts.
type AdminService struct {
	userRepo    AdminUserRepository
	listingRepo AdminListingRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewAdminService(
	userRepo AdminUserRepository,
	listingRepo AdminListingRepository,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AdminService {
	return &AdminService{
		userRepo:    userRepo,
		listingRepo: listingRepo,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// GetModerationStats returns listing counts per status and user totals.
func (s *AdminService) GetModerationStats(ctx context.Context) (*ModerationStatsResponse, error) {
	counts, err := s.listingRepo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("dashboard: failed to count listings", slog.Any("error", err))
		return nil, err
	}

	byStatus := make(map[string]int64, len(models.ListingStatuses()))
	for _, status := range models.ListingStatuses() {
		byStatus[string(status)] = counts[status]
	}

	oldest, err := s.listingRepo.OldestSubmittedAt(ctx)
	if err != nil {
		s.logger.Error("dashboard: failed to find oldest submission", slog.Any("error", err))
		return nil, err
	}

	adminCount, err := s.userRepo.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.Error("dashboard: failed to count admins", slog.Any("error", err))
		return nil, err
	}

	userCount, err := s.userRepo.CountByRole(ctx, models.RoleUser)
	if err != nil {
		s.logger.Error("dashboard: failed to count regular users", slog.Any("error", err))
		return nil, err
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	newToday, err := s.userRepo.CountNewSince(ctx, today)
	if err != nil {
		s.logger.Error("dashboard: failed to count new users today", slog.Any("error", err))
		return nil, err
	}

	return &ModerationStatsResponse{
		ListingsByStatus:   byStatus,
		PendingReview:      counts[models.StatusSubmitted],
		OldestPendingSince: oldest,
		AdminCount:         adminCount,
		UserCount:          userCount,
		NewUsersToday:      newToday,
	}, nil
}

// BootstrapAdmin creates a verified admin account, or promotes the existing
// account with that email. It reports whether a new account was created.
// Roles are never changed through the HTTP API; this is the only path.
func (s *AdminService) BootstrapAdmin(ctx context.Context, email, password, name string) (*models.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" {
		return nil, false, models.NewValidationError("email", "email is required")
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.userRepo.SetRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return nil, false, fmt.Errorf("promote %s: %w", existing.ID, err)
		}
		existing.Role = models.RoleAdmin
		s.auditLogger.LogAccountAction("admin_promoted", existing.ID, "", nil)
		return existing, false, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, false, err
	}

	if name == "" {
		name = "Administrator"
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, false, models.NewValidationError("password", err.Error())
	}
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return nil, false, err
	}

	created, err := s.userRepo.Create(ctx, &models.User{
		Email:         email,
		PasswordHash:  hash,
		Name:          name,
		EmailVerified: true,
		Role:          models.RoleAdmin,
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("admin account created", slog.String("user_id", created.ID))
	s.auditLogger.LogAccountAction("admin_created", created.ID, "", nil)
	return created, true, nil
}
