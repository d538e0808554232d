package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"medexam-assistant-server/internal/his"
	"medexam-assistant-server/internal/models"
)

// UnknownPatientName is stored when neither the caller nor HIS names the patient.
const UnknownPatientName = "Unknown"

// SessionInput is the request to open an examination session.
type SessionInput struct {
	VisitID        string         `json:"visitId"`
	PatientID      string         `json:"patientId"`
	PatientName    string         `json:"patientName"`
	PatientInfo    map[string]any `json:"patientInfo"`
	MedicalHistory string         `json:"medicalHistory"`
	ChiefComplaint string         `json:"chiefComplaint"`
}

// SessionDetail is a session with its medical record, if one was saved.
type SessionDetail struct {
	Session       *models.ExaminationSession `json:"session"`
	MedicalRecord *models.MedicalRecord      `json:"medicalRecord"`
}

// SessionService manages examination session lifecycle.
type SessionService struct {
	db     *gorm.DB
	his    his.Adapter
	logger *zap.Logger
	now    func() time.Time
}

// NewSessionService creates a SessionService.
func NewSessionService(db *gorm.DB, hisAdapter his.Adapter, logger *zap.Logger) *SessionService {
	return &SessionService{db: db, his: hisAdapter, logger: logger, now: time.Now}
}

// CreateSession opens a new active session. When a visit id is given or the
// patient name is missing, the current HIS visit fills the gaps; caller
// supplied values always win.
func (s *SessionService) CreateSession(ctx context.Context, input SessionInput) (*models.ExaminationSession, error) {
	input.VisitID = strings.TrimSpace(input.VisitID)
	input.PatientID = strings.TrimSpace(input.PatientID)
	input.PatientName = strings.TrimSpace(input.PatientName)

	var visit *his.VisitContext
	if input.VisitID != "" || input.PatientName == "" {
		visit = s.currentVisit(ctx)
	}

	now := s.now()
	session := &models.ExaminationSession{
		BaseModel: models.BaseModel{
			ID:        models.NewSessionID(now),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PatientID:   optional(input.PatientID),
		PatientName: input.PatientName,
		Status:      models.SessionActive,
		VisitNumber: 1,
	}

	session.VisitID = optional(input.VisitID)
	session.MedicalHistory = optional(input.MedicalHistory)
	session.ChiefComplaint = optional(input.ChiefComplaint)
	if input.PatientInfo != nil {
		session.PatientInfo = datatypes.JSONMap(input.PatientInfo)
	}

	if visit != nil {
		if session.VisitID == nil {
			session.VisitID = optional(visit.VisitID)
		}
		if session.PatientName == "" {
			session.PatientName = visit.PatientName()
		}
		if session.PatientInfo == nil && visit.PatientInfo != nil {
			session.PatientInfo = datatypes.JSONMap(visit.PatientInfo)
		}
		if session.MedicalHistory == nil {
			session.MedicalHistory = optional(visit.Context.MedicalHistory)
		}
		if session.ChiefComplaint == nil {
			session.ChiefComplaint = optional(visit.Context.ChiefComplaint)
		}
	}

	if session.PatientName == "" {
		session.PatientName = UnknownPatientName
	}
	if session.PatientInfo == nil {
		session.PatientInfo = datatypes.JSONMap{}
	}

	if session.PatientID != nil {
		var previous int64
		err := s.db.WithContext(ctx).Model(&models.ExaminationSession{}).
			Where("patient_id = ?", *session.PatientID).
			Count(&previous).Error
		if err != nil {
			return nil, DatabaseError("failed to count previous visits", err)
		}
		session.VisitNumber = int(previous) + 1
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		s.logger.Error("Error creating session", zap.Error(err))
		return nil, DatabaseError("failed to create session", err)
	}

	s.logger.Info("Examination session created",
		zap.String("session_id", session.ID),
		zap.Int("visit_number", session.VisitNumber),
		zap.Bool("his_backfill", visit != nil),
	)
	return session, nil
}

// currentVisit asks HIS for its open visit. Failures are logged and yield nil.
func (s *SessionService) currentVisit(ctx context.Context) *his.VisitContext {
	result, err := s.his.GetCurrentSession(ctx, true)
	switch {
	case err != nil:
		s.logger.Warn("HIS current session lookup failed", zap.Error(err))
		return nil
	case result == nil || !result.Success:
		reason := ""
		if result != nil {
			reason = result.Error
		}
		s.logger.Warn("HIS has no current session", zap.String("reason", reason))
		return nil
	}
	return result.Data
}

// GetSession returns the session or nil when id is unknown.
func (s *SessionService) GetSession(ctx context.Context, id string) (*models.ExaminationSession, error) {
	var session models.ExaminationSession
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, DatabaseError("failed to load session", err)
	}
	return &session, nil
}

// GetSessionDetail returns the session and its record, nil when id is unknown.
func (s *SessionService) GetSessionDetail(ctx context.Context, id string) (*SessionDetail, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil || session == nil {
		return nil, err
	}

	var record models.MedicalRecord
	err = s.db.WithContext(ctx).Where("session_id = ?", id).Take(&record).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &SessionDetail{Session: session}, nil
	case err != nil:
		return nil, DatabaseError("failed to load medical record", err)
	}
	return &SessionDetail{Session: session, MedicalRecord: &record}, nil
}

// UpdateSessionStatus overwrites the status without checking the transition.
func (s *SessionService) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error {
	if !status.Valid() {
		return ValidationError("invalid session status %q", status)
	}

	res := s.db.WithContext(ctx).Model(&models.ExaminationSession{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": s.now()})
	if res.Error != nil {
		s.logger.Error("Error updating session status", zap.String("session_id", id), zap.Error(res.Error))
		return DatabaseError("failed to update session status", res.Error)
	}
	if res.RowsAffected == 0 {
		return NotFoundError("session %s not found", id)
	}

	s.logger.Info("Session status updated", zap.String("session_id", id), zap.String("status", string(status)))
	return nil
}

// CancelSession cancels an active session. Completed and cancelled sessions
// are left alone and reported as a conflict.
func (s *SessionService) CancelSession(ctx context.Context, id string) (*models.ExaminationSession, error) {
	res := s.db.WithContext(ctx).Model(&models.ExaminationSession{}).
		Where("id = ? AND status = ?", id, models.SessionActive).
		Updates(map[string]any{"status": models.SessionCancelled, "updated_at": s.now()})
	if res.Error != nil {
		return nil, DatabaseError("failed to cancel session", res.Error)
	}

	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, NotFoundError("session %s not found", id)
	}
	if res.RowsAffected == 0 {
		return nil, ConflictError("session %s is %s and cannot be cancelled", id, session.Status)
	}

	s.logger.Info("Session cancelled", zap.String("session_id", id))
	return session, nil
}
