package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medexam-assistant-server/internal/his"
	"medexam-assistant-server/internal/models"
)

// MedicalRecordInput replaces the whole record of a session. Omitted fields
// are cleared.
type MedicalRecordInput struct {
	SessionID  string              `json:"sessionId"`
	Subjective *string             `json:"subjective"`
	Objective  *string             `json:"objective"`
	Assessment *string             `json:"assessment"`
	Plan       *string             `json:"plan"`
	ICDCodes   []string            `json:"icdCodes"`
	Status     models.RecordStatus `json:"status"`
}

// MedicalRecordPatch changes only the fields it carries.
type MedicalRecordPatch struct {
	Subjective *string              `json:"subjective"`
	Objective  *string              `json:"objective"`
	Assessment *string              `json:"assessment"`
	Plan       *string              `json:"plan"`
	ICDCodes   *[]string            `json:"icdCodes"`
	Status     *models.RecordStatus `json:"status"`
}

// MedicalRecordService stores SOAP notes and pushes finalized ones to HIS.
type MedicalRecordService struct {
	db       *gorm.DB
	his      his.Adapter
	sessions *SessionService
	logger   *zap.Logger
	now      func() time.Time
}

// NewMedicalRecordService creates a MedicalRecordService.
func NewMedicalRecordService(db *gorm.DB, hisAdapter his.Adapter, sessions *SessionService, logger *zap.Logger) *MedicalRecordService {
	return &MedicalRecordService{db: db, his: hisAdapter, sessions: sessions, logger: logger, now: time.Now}
}

// SaveMedicalRecord upserts the record of input.SessionID with full replace
// semantics.
func (s *MedicalRecordService) SaveMedicalRecord(ctx context.Context, input MedicalRecordInput) (*models.MedicalRecord, error) {
	return s.ReplaceMedicalRecord(ctx, input)
}

// ReplaceMedicalRecord upserts the record of input.SessionID. Saving with
// status final completes the session in the same transaction, then pushes the
// note to HIS.
func (s *MedicalRecordService) ReplaceMedicalRecord(ctx context.Context, input MedicalRecordInput) (*models.MedicalRecord, error) {
	status := input.Status
	if status == "" {
		status = models.RecordDraft
	}
	if !status.Valid() {
		return nil, ValidationError("invalid record status %q", input.Status)
	}

	return s.write(ctx, input.SessionID, func(record *models.MedicalRecord) {
		record.Subjective = optionalText(input.Subjective)
		record.Objective = optionalText(input.Objective)
		record.Assessment = optionalText(input.Assessment)
		record.Plan = optionalText(input.Plan)
		record.ICDCodes = normalizeCodes(input.ICDCodes)
		record.Status = status
	})
}

// PatchMedicalRecord applies patch to the record of sessionID, creating a
// draft first when none exists.
func (s *MedicalRecordService) PatchMedicalRecord(ctx context.Context, sessionID string, patch MedicalRecordPatch) (*models.MedicalRecord, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, ValidationError("invalid record status %q", *patch.Status)
	}

	return s.write(ctx, sessionID, func(record *models.MedicalRecord) {
		if patch.Subjective != nil {
			record.Subjective = optionalText(patch.Subjective)
		}
		if patch.Objective != nil {
			record.Objective = optionalText(patch.Objective)
		}
		if patch.Assessment != nil {
			record.Assessment = optionalText(patch.Assessment)
		}
		if patch.Plan != nil {
			record.Plan = optionalText(patch.Plan)
		}
		if patch.ICDCodes != nil {
			record.ICDCodes = normalizeCodes(*patch.ICDCodes)
		}
		if patch.Status != nil {
			record.Status = *patch.Status
		}
	})
}

// write runs apply against the session's record inside a transaction and
// finalizes it after commit when apply moved it to final.
func (s *MedicalRecordService) write(ctx context.Context, sessionID string, apply func(*models.MedicalRecord)) (*models.MedicalRecord, error) {
	if sessionID == "" {
		return nil, ValidationError("sessionId is required")
	}

	now := s.now()
	var record models.MedicalRecord
	finalized := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sessions int64
		if err := tx.Model(&models.ExaminationSession{}).Where("id = ?", sessionID).Count(&sessions).Error; err != nil {
			return DatabaseError("failed to load session", err)
		}
		if sessions == 0 {
			return NotFoundError("session %s not found", sessionID)
		}

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", sessionID).
			Take(&record).Error
		exists := true
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			exists = false
			record = models.MedicalRecord{
				BaseModel: models.BaseModel{ID: models.NewRecordID(now), CreatedAt: now},
				SessionID: sessionID,
				Status:    models.RecordDraft,
				ICDCodes:  []string{},
			}
		case err != nil:
			return DatabaseError("failed to load medical record", err)
		}

		if record.Status == models.RecordFinal {
			return ConflictError("medical record of session %s is final", sessionID)
		}

		apply(&record)
		record.UpdatedAt = now
		if record.Status == models.RecordFinal {
			finalized = true
			record.FinalizedAt = &now
		}

		if !exists {
			if err := tx.Create(&record).Error; err != nil {
				return DatabaseError("failed to create medical record", err)
			}
			return completeSession(tx, sessionID, finalized, now)
		}

		res := tx.Model(&record).
			Where("status = ?", models.RecordDraft).
			Select("subjective", "objective", "assessment", "plan", "icd_codes", "status", "finalized_at", "updated_at").
			Updates(&record)
		if res.Error != nil {
			return DatabaseError("failed to update medical record", res.Error)
		}
		if res.RowsAffected == 0 {
			// Zero rows means either nothing changed or a concurrent writer
			// finalized the record first.
			var current models.MedicalRecord
			if err := tx.Select("status").Where("id = ?", record.ID).Take(&current).Error; err != nil {
				return DatabaseError("failed to reload medical record", err)
			}
			if current.Status == models.RecordFinal {
				return ConflictError("medical record of session %s is final", sessionID)
			}
		}
		return completeSession(tx, sessionID, finalized, now)
	})
	if err != nil {
		if KindOf(err) == KindDatabase {
			s.logger.Error("Error saving medical record", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("Medical record saved",
		zap.String("session_id", sessionID),
		zap.String("record_id", record.ID),
		zap.String("status", string(record.Status)),
	)

	if finalized {
		s.finalize(context.WithoutCancel(ctx), &record)
	}
	return &record, nil
}

// completeSession marks the session completed in the transaction that
// finalized its record.
func completeSession(tx *gorm.DB, sessionID string, finalized bool, now time.Time) error {
	if !finalized {
		return nil
	}
	err := tx.Model(&models.ExaminationSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{"status": models.SessionCompleted, "updated_at": now}).Error
	if err != nil {
		return DatabaseError("failed to complete session", err)
	}
	return nil
}

// finalize pushes the committed final note to HIS when the session carries a
// visit id. Failures are logged and left in the sync columns for RetrySync.
func (s *MedicalRecordService) finalize(ctx context.Context, record *models.MedicalRecord) {
	session, err := s.sessions.GetSession(ctx, record.SessionID)
	if err != nil {
		s.logger.Error("Error loading session for HIS sync", zap.String("session_id", record.SessionID), zap.Error(err))
		return
	}

	if err := s.sync(ctx, session, record); err != nil {
		s.logger.Error("Error storing HIS sync status", zap.String("session_id", record.SessionID), zap.Error(err))
	}
}

// sync pushes record to the HIS visit of session and persists the outcome.
func (s *MedicalRecordService) sync(ctx context.Context, session *models.ExaminationSession, record *models.MedicalRecord) error {
	record.SyncStatus = models.SyncNotApplicable
	record.SyncError = nil
	record.SyncedAt = nil

	if session != nil && session.VisitID != nil && *session.VisitID != "" {
		visitID := *session.VisitID
		result, err := s.his.UpdateVisit(ctx, visitID, PayloadFromRecord(record))
		switch {
		case err != nil:
			s.logger.Error("HIS sync failed", zap.String("visit_id", visitID), zap.Error(err))
			record.SyncStatus = models.SyncFailed
			record.SyncError = optional(err.Error())
		case result == nil || !result.Success:
			reason := "HIS rejected the update"
			if result != nil && result.Error != "" {
				reason = result.Error
			}
			s.logger.Warn("HIS rejected medical record", zap.String("visit_id", visitID), zap.String("reason", reason))
			record.SyncStatus = models.SyncFailed
			record.SyncError = &reason
		default:
			syncedAt := s.now()
			record.SyncStatus = models.SyncSynced
			record.SyncedAt = &syncedAt
			s.logger.Info("Medical record synced to HIS", zap.String("visit_id", visitID))
		}
	}

	err := s.db.WithContext(ctx).Model(&models.MedicalRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"sync_status": record.SyncStatus,
			"sync_error":  record.SyncError,
			"synced_at":   record.SyncedAt,
		}).Error
	if err != nil {
		return DatabaseError("failed to store sync status", err)
	}
	return nil
}

// RetrySync pushes a final record to HIS again.
func (s *MedicalRecordService) RetrySync(ctx context.Context, sessionID string) (*models.MedicalRecord, error) {
	record, err := s.GetMedicalRecordBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, NotFoundError("no medical record for session %s", sessionID)
	}
	if record.Status != models.RecordFinal {
		return nil, ConflictError("medical record of session %s is not final", sessionID)
	}

	// A final record always belongs to a completed session.
	err = s.db.WithContext(ctx).Model(&models.ExaminationSession{}).
		Where("id = ? AND status = ?", sessionID, models.SessionActive).
		Updates(map[string]any{"status": models.SessionCompleted, "updated_at": s.now()}).Error
	if err != nil {
		return nil, DatabaseError("failed to complete session", err)
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.VisitID == nil || *session.VisitID == "" {
		return nil, ConflictError("session %s has no HIS visit", sessionID)
	}

	if err := s.sync(ctx, session, record); err != nil {
		return nil, err
	}
	return record, nil
}

// GetMedicalRecordBySession returns the record or nil when none was saved.
func (s *MedicalRecordService) GetMedicalRecordBySession(ctx context.Context, sessionID string) (*models.MedicalRecord, error) {
	var record models.MedicalRecord
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, DatabaseError("failed to load medical record", err)
	}
	return &record, nil
}

// PayloadFromRecord maps a record onto the HIS payload, with absent text as
// empty strings and absent codes as an empty list.
func PayloadFromRecord(record *models.MedicalRecord) his.MedicalPayload {
	return his.MedicalPayload{
		Subjective: deref(record.Subjective),
		Objective:  deref(record.Objective),
		Assessment: deref(record.Assessment),
		Plan:       deref(record.Plan),
		ICDCodes:   normalizeCodes(record.ICDCodes),
	}
}

func normalizeCodes(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return codes
}

func optionalText(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	return value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
