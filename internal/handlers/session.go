package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medexam-assistant-server/internal/models"
	"medexam-assistant-server/internal/services"
	"medexam-assistant-server/internal/utils"
)

// SessionHandler handles examination session requests.
type SessionHandler struct {
	Sessions *services.SessionService
	Logger   *zap.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *services.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{Sessions: sessions, Logger: logger}
}

// CreateSession opens a new examination session.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var input services.SessionInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	if strings.TrimSpace(input.PatientName) == "" {
		utils.BadRequest(c, "Patient name is required")
		return
	}

	session, err := h.Sessions.CreateSession(c.Request.Context(), input)
	if err != nil {
		h.Logger.Error("Error creating session", zap.Error(err))
		utils.RespondError(c, err, "Could not create examination session")
		return
	}

	utils.Success(c, "Examination session created successfully", session)
}

// GetSession returns a session and its medical record.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		utils.Error(c, http.StatusBadRequest, "Session ID is required", "")
		return
	}

	detail, err := h.Sessions.GetSessionDetail(c.Request.Context(), sessionID)
	if err != nil {
		h.Logger.Error("Error fetching session", zap.String("session_id", sessionID), zap.Error(err))
		utils.RespondError(c, err, "Could not fetch examination session")
		return
	}
	if detail == nil {
		utils.NotFound(c, "Session not found", "Examination session does not exist")
		return
	}

	utils.Success(c, "", gin.H{
		"session":       detail.Session,
		"medicalRecord": detail.MedicalRecord,
	})
}

// UpdateStatusRequest represents the request body for a status overwrite.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateSessionStatus overwrites the status of a session.
func (h *SessionHandler) UpdateSessionStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	sessionID := c.Param("id")
	ctx := c.Request.Context()
	if err := h.Sessions.UpdateSessionStatus(ctx, sessionID, models.SessionStatus(req.Status)); err != nil {
		utils.RespondError(c, err, "Could not update session status")
		return
	}

	session, err := h.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		utils.RespondError(c, err, "Could not fetch examination session")
		return
	}
	utils.Success(c, "Session status updated", session)
}

// CancelSession cancels an active session.
func (h *SessionHandler) CancelSession(c *gin.Context) {
	session, err := h.Sessions.CancelSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err, "Could not cancel session")
		return
	}
	utils.Success(c, "Session cancelled", session)
}
