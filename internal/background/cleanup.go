package background

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// TokenCleaner removes revocation records whose tokens have expired anyway.
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// VerificationCleaner removes expired or consumed email verification tokens.
type VerificationCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CleanupManager periodically removes expired token rows from the database
type CleanupManager struct {
	scheduler     gocron.Scheduler
	revocations   TokenCleaner
	verifications VerificationCleaner
	logger        *slog.Logger
	interval      time.Duration
	timeout       time.Duration
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	revocations TokenCleaner,
	verifications VerificationCleaner,
	logger *slog.Logger,
	interval time.Duration,
) (*CleanupManager, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &CleanupManager{
		scheduler:     scheduler,
		revocations:   revocations,
		verifications: verifications,
		logger:        logger,
		interval:      interval,
		timeout:       30 * time.Second,
	}, nil
}

// Start schedules the cleanup job and runs it once immediately.
func (cm *CleanupManager) Start(ctx context.Context) error {
	_, err := cm.scheduler.NewJob(
		gocron.DurationJob(cm.interval),
		gocron.NewTask(cm.RunOnce, ctx),
		gocron.WithName("expired-token-cleanup"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule token cleanup: %w", err)
	}

	cm.scheduler.Start()
	cm.logger.Info("cleanup scheduler started", slog.Duration("interval", cm.interval))
	return nil
}

// RunOnce removes expired revocations and verification tokens. Failures are
// logged; one table failing does not skip the other.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	if n, err := cm.revocations.CleanupExpiredTokens(cleanupCtx); err != nil {
		cm.logger.Error("failed to cleanup expired revoked tokens", slog.Any("error", err))
	} else if n > 0 {
		cm.logger.Info("expired revoked tokens removed", slog.Int64("rows_deleted", n))
	}

	if n, err := cm.verifications.CleanupExpired(cleanupCtx); err != nil {
		cm.logger.Error("failed to cleanup verification tokens", slog.Any("error", err))
	} else if n > 0 {
		cm.logger.Info("expired verification tokens removed", slog.Int64("rows_deleted", n))
	}
}

// Stop waits for a running cleanup to finish and shuts the scheduler down.
func (cm *CleanupManager) Stop() error {
	return cm.scheduler.Shutdown()
}
