package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medexam-assistant-server/internal/services"
)

const recentSessionLimit = 5

// DashboardHandler serves the dashboard counters.
type DashboardHandler struct {
	Dashboard *services.DashboardService
	Logger    *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboard *services.DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{Dashboard: dashboard, Logger: logger}
}

// GetStats returns the counters and the most recent sessions.
func (h *DashboardHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.Dashboard.GetDashboardStats(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	recent, err := h.Dashboard.GetRecentSessions(ctx, recentSessionLimit)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"stats":          stats,
		"recentSessions": recent,
	})
}

func (h *DashboardHandler) fail(c *gin.Context, err error) {
	h.Logger.Error("Error in dashboard stats", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal Server Error",
		"details": err.Error(),
	})
}
