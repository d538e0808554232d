package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medexam-assistant-server/internal/middleware"
	"medexam-assistant-server/internal/services"
	"medexam-assistant-server/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PatientHandler handles patient registry requests.
type PatientHandler struct {
	Patients *services.PatientService
	Logger   *zap.Logger
}

// NewPatientHandler creates a new PatientHandler.
func NewPatientHandler(patients *services.PatientService, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{Patients: patients, Logger: logger}
}

// DuplicateCheckRequest holds the criteria of a duplicate lookup.
type DuplicateCheckRequest struct {
	Name        string `json:"name"`
	BirthDate   string `json:"birthDate"`
	PhoneNumber string `json:"phoneNumber"`
}

// CreatePatient registers a patient unless possible duplicates exist.
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	var input services.PatientInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	result, err := h.Patients.CreatePatient(c.Request.Context(), input)
	if err != nil {
		utils.RespondError(c, err, "Could not register patient")
		return
	}

	if result.IsDuplicate() {
		c.JSON(http.StatusConflict, gin.H{
			"success":    false,
			"error":      services.CodePossibleDuplicate,
			"message":    "Possible duplicate patients found",
			"duplicates": result.Duplicates,
		})
		return
	}

	utils.Created(c, "Patient registered successfully", result.Patient)
}

// ForceCreatePatient registers a patient without the duplicate check.
func (h *PatientHandler) ForceCreatePatient(c *gin.Context) {
	var input services.PatientInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	patient, err := h.Patients.ForceCreatePatient(c.Request.Context(), input)
	if err != nil {
		utils.RespondError(c, err, "Could not register patient")
		return
	}

	if userID, ok := middleware.GetUserIDFromContext(c); ok {
		h.Logger.Info("Duplicate check overridden",
			zap.String("patient_id", patient.ID),
			zap.String("user_id", userID),
		)
	}
	utils.Created(c, "Patient registered successfully", patient)
}

// FindDuplicates lists the patients matching the given criteria.
func (h *PatientHandler) FindDuplicates(c *gin.Context) {
	var req DuplicateCheckRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	duplicates, err := h.Patients.FindPossibleDuplicates(c.Request.Context(), services.PatientInput{
		Name:        req.Name,
		BirthDate:   req.BirthDate,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		utils.RespondError(c, err, "Could not check duplicates")
		return
	}

	utils.Success(c, "", duplicates)
}

// ListPatients searches patients when ?q= is set and lists them otherwise.
func (h *PatientHandler) ListPatients(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	query := c.Query("q")

	var (
		result *services.PatientPage
		err    error
	)
	if query != "" {
		result, err = h.Patients.SearchPatients(c.Request.Context(), query, page, limit)
	} else {
		result, err = h.Patients.ListPatients(c.Request.Context(), page, limit)
	}
	if err != nil {
		utils.RespondError(c, err, "Could not list patients")
		return
	}

	utils.Success(c, "", result)
}

// GetPatient returns a patient by internal id.
func (h *PatientHandler) GetPatient(c *gin.Context) {
	patient, err := h.Patients.GetPatient(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err, "Could not fetch patient")
		return
	}
	if patient == nil {
		utils.NotFound(c, "Patient not found", "")
		return
	}
	utils.Success(c, "", patient)
}

// GetPatientByDisplayID returns a patient by display id.
func (h *PatientHandler) GetPatientByDisplayID(c *gin.Context) {
	patient, err := h.Patients.GetPatientByDisplayID(c.Request.Context(), c.Param("displayId"))
	if err != nil {
		utils.RespondError(c, err, "Could not fetch patient")
		return
	}
	if patient == nil {
		utils.NotFound(c, "Patient not found", "")
		return
	}
	utils.Success(c, "", patient)
}

// UpdatePatient merges the supplied fields into a patient.
func (h *PatientHandler) UpdatePatient(c *gin.Context) {
	var update services.PatientUpdate
	if !utils.BindAndValidate(c, &update) {
		return
	}

	patient, err := h.Patients.UpdatePatient(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		utils.RespondError(c, err, "Could not update patient")
		return
	}
	if patient == nil {
		utils.NotFound(c, "Patient not found", "")
		return
	}
	utils.Success(c, "Patient updated successfully", patient)
}

// ExportPatients downloads the registry as an XLSX workbook.
func (h *PatientHandler) ExportPatients(c *gin.Context) {
	data, err := h.Patients.ExportPatients(c.Request.Context())
	if err != nil {
		h.Logger.Error("Patient export failed", zap.Error(err))
		utils.RespondError(c, err, "Could not export patients")
		return
	}

	filename := fmt.Sprintf("patients-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
