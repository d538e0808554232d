package his

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"medexam-assistant-server/internal/config"
)

type fakeAdapter struct {
	sessionCalls int
	sessionFunc  func() (*SessionResult, error)
	updateFunc   func(visitID string, payload MedicalPayload) (*UpdateResult, error)
}

func (f *fakeAdapter) GetCurrentSession(ctx context.Context, forceRefresh bool) (*SessionResult, error) {
	f.sessionCalls++
	return f.sessionFunc()
}

func (f *fakeAdapter) UpdateVisit(ctx context.Context, visitID string, payload MedicalPayload) (*UpdateResult, error) {
	return f.updateFunc(visitID, payload)
}

func configWithoutBaseURL() config.HISConfig {
	return config.HISConfig{}
}

func setupCachedClient(t *testing.T, next Adapter) (*miniredis.Miniredis, *CachedClient) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	return mr, NewCachedClient(next, redisClient, time.Minute, zap.NewNop())
}

func visitResult(visitID string) *SessionResult {
	return &SessionResult{
		Success: true,
		Data: &VisitContext{
			VisitID:     visitID,
			PatientInfo: map[string]any{"name": "Le Thi B"},
		},
	}
}

func TestCachedClient_ServesFromCache(t *testing.T) {
	next := &fakeAdapter{sessionFunc: func() (*SessionResult, error) { return visitResult("V-1"), nil }}
	mr, cached := setupCachedClient(t, next)
	ctx := context.Background()

	first, err := cached.GetCurrentSession(ctx, false)
	require.NoError(t, err)
	second, err := cached.GetCurrentSession(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 1, next.sessionCalls)
	assert.Equal(t, "V-1", first.Data.VisitID)
	assert.Equal(t, "V-1", second.Data.VisitID)
	assert.Equal(t, "Le Thi B", second.Data.PatientName())
	assert.True(t, mr.Exists(CurrentSessionCacheKey))
	assert.Equal(t, time.Minute, mr.TTL(CurrentSessionCacheKey))
}

func TestCachedClient_ForceRefreshBypassesCache(t *testing.T) {
	visit := "V-1"
	next := &fakeAdapter{sessionFunc: func() (*SessionResult, error) { return visitResult(visit), nil }}
	_, cached := setupCachedClient(t, next)
	ctx := context.Background()

	_, err := cached.GetCurrentSession(ctx, false)
	require.NoError(t, err)

	visit = "V-2"
	refreshed, err := cached.GetCurrentSession(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "V-2", refreshed.Data.VisitID)

	fromCache, err := cached.GetCurrentSession(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "V-2", fromCache.Data.VisitID)
	assert.Equal(t, 2, next.sessionCalls)
}

func TestCachedClient_FailuresAreNotCached(t *testing.T) {
	next := &fakeAdapter{sessionFunc: func() (*SessionResult, error) {
		return &SessionResult{Success: false, Error: "no open visit"}, nil
	}}
	mr, cached := setupCachedClient(t, next)

	result, err := cached.GetCurrentSession(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.False(t, mr.Exists(CurrentSessionCacheKey))
}

func TestCachedClient_TransportErrorPropagates(t *testing.T) {
	next := &fakeAdapter{sessionFunc: func() (*SessionResult, error) { return nil, errors.New("dial tcp: refused") }}
	_, cached := setupCachedClient(t, next)

	_, err := cached.GetCurrentSession(context.Background(), false)
	assert.Error(t, err)
}

func TestCachedClient_RedisDownFallsThrough(t *testing.T) {
	next := &fakeAdapter{sessionFunc: func() (*SessionResult, error) { return visitResult("V-9"), nil }}
	mr, cached := setupCachedClient(t, next)
	mr.Close()

	result, err := cached.GetCurrentSession(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "V-9", result.Data.VisitID)
}

func TestCachedClient_UpdateVisitInvalidatesCache(t *testing.T) {
	next := &fakeAdapter{
		sessionFunc: func() (*SessionResult, error) { return visitResult("V-1"), nil },
		updateFunc: func(visitID string, payload MedicalPayload) (*UpdateResult, error) {
			return &UpdateResult{Success: true}, nil
		},
	}
	mr, cached := setupCachedClient(t, next)
	ctx := context.Background()

	_, err := cached.GetCurrentSession(ctx, false)
	require.NoError(t, err)
	require.True(t, mr.Exists(CurrentSessionCacheKey))

	result, err := cached.UpdateVisit(ctx, "V-1", MedicalPayload{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, mr.Exists(CurrentSessionCacheKey))
}

func TestNew_WrapsWithCacheWhenRedisConfigured(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	adapter := New(config.HISConfig{BaseURL: "http://his.local"}, redisClient, zap.NewNop())
	_, ok := adapter.(*CachedClient)
	assert.True(t, ok)

	adapter = New(config.HISConfig{BaseURL: "http://his.local"}, nil, zap.NewNop())
	_, ok = adapter.(*Client)
	assert.True(t, ok)
}
