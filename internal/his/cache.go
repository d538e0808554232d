package his

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CurrentSessionCacheKey holds the last visit context fetched from HIS.
const CurrentSessionCacheKey = "his:current-session"

// Adapter is the HIS surface the examination workflow depends on.
type Adapter interface {
	GetCurrentSession(ctx context.Context, forceRefresh bool) (*SessionResult, error)
	UpdateVisit(ctx context.Context, visitID string, payload MedicalPayload) (*UpdateResult, error)
}

// CachedClient keeps the current visit context in Redis so repeated lookups
// do not hit HIS. Cache failures degrade to a direct call.
type CachedClient struct {
	next        Adapter
	redisClient *redis.Client
	ttl         time.Duration
	logger      *zap.Logger
}

// NewCachedClient wraps next with a Redis cache of the current visit context.
func NewCachedClient(next Adapter, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedClient{
		next:        next,
		redisClient: redisClient,
		ttl:         ttl,
		logger:      logger,
	}
}

// GetCurrentSession serves the cached context unless forceRefresh is set.
// Only successful lookups are cached.
func (c *CachedClient) GetCurrentSession(ctx context.Context, forceRefresh bool) (*SessionResult, error) {
	if !forceRefresh {
		if cached, ok := c.readCache(ctx); ok {
			return cached, nil
		}
	}

	result, err := c.next.GetCurrentSession(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}

	if result.Success && result.Data != nil {
		c.writeCache(ctx, result)
	}
	return result, nil
}

// UpdateVisit is never cached. A successful update invalidates the cached
// context since the visit has moved on.
func (c *CachedClient) UpdateVisit(ctx context.Context, visitID string, payload MedicalPayload) (*UpdateResult, error) {
	result, err := c.next.UpdateVisit(ctx, visitID, payload)
	if err != nil {
		return nil, err
	}
	if result.Success {
		if err := c.redisClient.Del(ctx, CurrentSessionCacheKey).Err(); err != nil {
			c.logger.Warn("Failed to invalidate HIS session cache", zap.Error(err))
		}
	}
	return result, nil
}

func (c *CachedClient) readCache(ctx context.Context) (*SessionResult, bool) {
	raw, err := c.redisClient.Get(ctx, CurrentSessionCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Failed to read HIS session cache", zap.Error(err))
		}
		return nil, false
	}

	var visit VisitContext
	if err := json.Unmarshal(raw, &visit); err != nil {
		c.logger.Warn("Discarding malformed HIS session cache entry", zap.Error(err))
		return nil, false
	}
	return &SessionResult{Success: true, Data: &visit}, true
}

func (c *CachedClient) writeCache(ctx context.Context, result *SessionResult) {
	raw, err := json.Marshal(result.Data)
	if err != nil {
		c.logger.Warn("Failed to encode HIS session for cache", zap.Error(err))
		return
	}
	if err := c.redisClient.Set(ctx, CurrentSessionCacheKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to write HIS session cache", zap.Error(err))
	}
}
