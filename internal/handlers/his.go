package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medexam-assistant-server/internal/his"
	"medexam-assistant-server/internal/utils"
)

// HISHandler exposes the visit the HIS currently has open.
type HISHandler struct {
	HIS    his.Adapter
	Logger *zap.Logger
}

// NewHISHandler creates a new HISHandler.
func NewHISHandler(adapter his.Adapter, logger *zap.Logger) *HISHandler {
	return &HISHandler{HIS: adapter, Logger: logger}
}

// GetCurrentSession proxies the HIS current-session lookup. ?refresh=true
// bypasses the cache.
func (h *HISHandler) GetCurrentSession(c *gin.Context) {
	refresh := c.Query("refresh") == "true"

	result, err := h.HIS.GetCurrentSession(c.Request.Context(), refresh)
	if err != nil {
		h.Logger.Warn("HIS current session lookup failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, utils.ResponseData{
			Success: false,
			Error:   "HIS unavailable",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
