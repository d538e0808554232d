package his

import (
	"context"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"medexam-assistant-server/internal/config"
)

// ErrDisabled is reported by Disabled for every call.
const ErrDisabled = "HIS integration disabled"

// Disabled is used when no HIS endpoint is configured.
type Disabled struct{}

func (Disabled) GetCurrentSession(ctx context.Context, forceRefresh bool) (*SessionResult, error) {
	return &SessionResult{Success: false, Error: ErrDisabled}, nil
}

func (Disabled) UpdateVisit(ctx context.Context, visitID string, payload MedicalPayload) (*UpdateResult, error) {
	return &UpdateResult{Success: false, Error: ErrDisabled}, nil
}

// New builds the adapter for cfg: Disabled without a base URL, a Client
// otherwise, wrapped in CachedClient when redisClient is non-nil.
func New(cfg config.HISConfig, redisClient *redis.Client, logger *zap.Logger) Adapter {
	if cfg.BaseURL == "" {
		logger.Info("HIS base URL not configured, integration disabled")
		return Disabled{}
	}

	var adapter Adapter = NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, logger)
	if redisClient != nil {
		adapter = NewCachedClient(adapter, redisClient, cfg.CacheTTL, logger)
	}
	return adapter
}

var (
	_ Adapter = (*Client)(nil)
	_ Adapter = (*CachedClient)(nil)
	_ Adapter = Disabled{}
)
