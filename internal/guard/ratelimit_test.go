package guard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticaivc/intentgraph/internal/config"
)

func newRedisStore(t *testing.T) (*RedisRateLimitStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisRateLimitStore(config.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	return store, mr
}

func TestRateLimitGuard_Execute_ShouldAllowUpToMaxRequests_ThenBlockFourth(t *testing.T) {
	store, mr := newRedisStore(t)
	defer mr.Close()

	g := NewRateLimitGuard("p-limit", RateLimitConfig{MaxRequests: 3, WindowSeconds: 3600},
		store, NewMemoryRateLimitStore(100),
		config.RateLimitConfig{FailMode: "fail_open"},
	)

	in := Input{User: User{ID: "user-1"}, NodeID: "P", Parameters: map[string]any{"method": "POST", "path": "/payroll"}}

	for i := 0; i < 3; i++ {
		result, err := g.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, result.Status, "run %d should succeed", i+1)
	}

	result, err := g.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, StatusBlock, result.Status)
	assert.Equal(t, int64(3_600_000), result.RetryAfterMs)
}

func TestRateLimitGuard_Execute_ShouldBypass_WhenUserHasBypassRole(t *testing.T) {
	store, mr := newRedisStore(t)
	defer mr.Close()

	g := NewRateLimitGuard("p-limit", RateLimitConfig{MaxRequests: 1, WindowSeconds: 60, BypassRoles: []string{"admin"}},
		store, NewMemoryRateLimitStore(100),
		config.RateLimitConfig{FailMode: "fail_open"},
	)

	in := Input{User: User{ID: "user-2", Roles: []string{"admin"}}, Parameters: map[string]any{"method": "GET", "path": "/x"}}
	for i := 0; i < 5; i++ {
		result, err := g.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, result.Status)
	}
}

func TestRateLimitGuard_Execute_ShouldFallBackToMemory_WhenPrimaryStoreFails(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close() // primary now unreachable

	g := NewRateLimitGuard("p-limit", RateLimitConfig{MaxRequests: 2, WindowSeconds: 60},
		store, NewMemoryRateLimitStore(100),
		config.RateLimitConfig{FailMode: "fail_open", StoreDownTimeout: 10 * time.Second},
	)

	in := Input{User: User{ID: "user-3"}, Parameters: map[string]any{"method": "GET", "path": "/y"}}

	result, err := g.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, StatusWarn, result.Status)
}

func TestMemoryRateLimitStore_Increment_ShouldSumSubBucketsInsideWindow(t *testing.T) {
	store := NewMemoryRateLimitStore(10)
	count, err := store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
