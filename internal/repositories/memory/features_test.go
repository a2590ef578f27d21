package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrust/internal/repositories"
)

func TestFeatureStore_SlidingWindow(t *testing.T) {
	s := NewFeatureStore(time.Hour)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Observe(ctx, "alice", "dev"))
	now = now.Add(30 * time.Minute)
	require.NoError(t, s.Observe(ctx, "alice", "dev"))
	require.NoError(t, s.Observe(ctx, "carol", "dev"))

	n, _ := s.SenderVelocity(ctx, "alice")
	assert.Equal(t, int64(2), n)

	now = now.Add(45 * time.Minute)
	n, _ = s.SenderVelocity(ctx, "alice")
	assert.Equal(t, int64(1), n)

	reuse, _ := s.DeviceReuse(ctx, "dev")
	assert.Equal(t, int64(2), reuse)
}

func TestLocker_ExclusivePerKey(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "tx", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "tx", time.Minute)
	assert.ErrorIs(t, err, repositories.ErrLockHeld)

	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, "tx", time.Minute)
	assert.NoError(t, err)
}
