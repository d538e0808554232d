package his

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	currentSessionPath = "/api/session/current"
	updateVisitPath    = "/api/visits/{visitId}/medical-record"
)

// Client talks to the HIS REST API. Each call is a single attempt.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient creates a HIS client for baseURL. apiKey is sent as X-API-Key when set.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		httpClient.SetHeader("X-API-Key", apiKey)
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetCurrentSession fetches the visit currently open in HIS. The HIS API itself
// has no cache, so forceRefresh only matters for CachedClient.
func (c *Client) GetCurrentSession(ctx context.Context, forceRefresh bool) (*SessionResult, error) {
	var result SessionResult
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&result).
		Get(currentSessionPath)
	if err != nil {
		c.logger.Warn("HIS current session request failed", zap.Error(err))
		return nil, fmt.Errorf("failed to call HIS current session: %w", err)
	}

	if resp.IsError() {
		c.logger.Warn("HIS current session returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", result.Error),
		)
		if result.Error == "" {
			result.Error = fmt.Sprintf("HIS responded with status %d", resp.StatusCode())
		}
		result.Success = false
		return &result, nil
	}

	if result.Success && result.Data == nil {
		result.Success = false
		result.Error = "HIS returned no visit data"
	}

	return &result, nil
}

// UpdateVisit pushes a finalized medical record to the HIS visit.
func (c *Client) UpdateVisit(ctx context.Context, visitID string, payload MedicalPayload) (*UpdateResult, error) {
	if payload.ICDCodes == nil {
		payload.ICDCodes = []string{}
	}

	c.logger.Info("Pushing medical record to HIS",
		zap.String("visit_id", visitID),
		zap.Int("icd_count", len(payload.ICDCodes)),
	)

	var result UpdateResult
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("visitId", visitID).
		SetBody(payload).
		SetResult(&result).
		SetError(&result).
		Put(updateVisitPath)
	if err != nil {
		c.logger.Warn("HIS visit update request failed", zap.String("visit_id", visitID), zap.Error(err))
		return nil, fmt.Errorf("failed to call HIS visit update: %w", err)
	}

	if resp.IsError() {
		if result.Error == "" {
			result.Error = fmt.Sprintf("HIS responded with status %d", resp.StatusCode())
		}
		result.Success = false
	}

	return &result, nil
}
