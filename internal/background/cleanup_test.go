package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCleaner struct {
	calls atomic.Int32
	err   error
}

func (s *stubCleaner) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	s.calls.Add(1)
	return 3, s.err
}

func (s *stubCleaner) CleanupExpired(ctx context.Context) (int64, error) {
	s.calls.Add(1)
	return 2, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce_CleansBothTables(t *testing.T) {
	revocations, verifications := &stubCleaner{}, &stubCleaner{}
	cm, err := NewCleanupManager(revocations, verifications, discardLogger(), time.Hour)
	require.NoError(t, err)

	cm.RunOnce(context.Background())

	assert.Equal(t, int32(1), revocations.calls.Load())
	assert.Equal(t, int32(1), verifications.calls.Load())
}

func TestRunOnce_FailureDoesNotSkipOtherTable(t *testing.T) {
	revocations := &stubCleaner{err: errors.New("db down")}
	verifications := &stubCleaner{}
	cm, err := NewCleanupManager(revocations, verifications, discardLogger(), time.Hour)
	require.NoError(t, err)

	cm.RunOnce(context.Background())

	assert.Equal(t, int32(1), verifications.calls.Load())
}

func TestStart_RunsImmediately(t *testing.T) {
	revocations, verifications := &stubCleaner{}, &stubCleaner{}
	cm, err := NewCleanupManager(revocations, verifications, discardLogger(), time.Hour)
	require.NoError(t, err)

	require.NoError(t, cm.Start(context.Background()))
	t.Cleanup(func() { _ = cm.Stop() })

	assert.Eventually(t, func() bool {
		return revocations.calls.Load() >= 1 && verifications.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}
