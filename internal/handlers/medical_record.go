package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medexam-assistant-server/internal/models"
	"medexam-assistant-server/internal/services"
	"medexam-assistant-server/internal/utils"
)

// MedicalRecordHandler handles the medical record of a session.
type MedicalRecordHandler struct {
	Records *services.MedicalRecordService
	Logger  *zap.Logger
}

// NewMedicalRecordHandler creates a new MedicalRecordHandler.
func NewMedicalRecordHandler(records *services.MedicalRecordService, logger *zap.Logger) *MedicalRecordHandler {
	return &MedicalRecordHandler{Records: records, Logger: logger}
}

// SaveMedicalRecordRequest is the full record body. Omitted fields are cleared.
type SaveMedicalRecordRequest struct {
	Subjective *string  `json:"subjective"`
	Objective  *string  `json:"objective"`
	Assessment *string  `json:"assessment"`
	Plan       *string  `json:"plan"`
	ICDCodes   []string `json:"icdCodes"`
	Status     string   `json:"status" binding:"omitempty,oneof=draft final"`
}

// SaveMedicalRecord replaces the record of the session.
func (h *MedicalRecordHandler) SaveMedicalRecord(c *gin.Context) {
	var req SaveMedicalRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	record, err := h.Records.ReplaceMedicalRecord(c.Request.Context(), services.MedicalRecordInput{
		SessionID:  c.Param("id"),
		Subjective: req.Subjective,
		Objective:  req.Objective,
		Assessment: req.Assessment,
		Plan:       req.Plan,
		ICDCodes:   req.ICDCodes,
		Status:     models.RecordStatus(req.Status),
	})
	if err != nil {
		utils.RespondError(c, err, "Could not save medical record")
		return
	}

	utils.Success(c, "Medical record saved", record)
}

// PatchMedicalRecord changes only the supplied fields of the record.
func (h *MedicalRecordHandler) PatchMedicalRecord(c *gin.Context) {
	var patch services.MedicalRecordPatch
	if !utils.BindAndValidate(c, &patch) {
		return
	}

	record, err := h.Records.PatchMedicalRecord(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		utils.RespondError(c, err, "Could not update medical record")
		return
	}

	utils.Success(c, "Medical record updated", record)
}

// GetMedicalRecord returns the record of the session.
func (h *MedicalRecordHandler) GetMedicalRecord(c *gin.Context) {
	record, err := h.Records.GetMedicalRecordBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err, "Could not fetch medical record")
		return
	}
	if record == nil {
		utils.NotFound(c, "Medical record not found", "No medical record saved for this session")
		return
	}

	utils.Success(c, "", record)
}

// RetrySync pushes a finalized record to HIS again.
func (h *MedicalRecordHandler) RetrySync(c *gin.Context) {
	sessionID := c.Param("id")
	record, err := h.Records.RetrySync(c.Request.Context(), sessionID)
	if err != nil {
		utils.RespondError(c, err, "Could not sync medical record")
		return
	}

	h.Logger.Info("HIS sync retried",
		zap.String("session_id", sessionID),
		zap.String("sync_status", string(record.SyncStatus)),
	)
	utils.Success(c, "Medical record sync attempted", record)
}
