package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"medexam-assistant-server/internal/models"
)

const (
	defaultRecentSessions = 5
	missingDisplayID      = "N/A"
)

// DayStats counts the sessions of the current day.
type DayStats struct {
	TotalSessions     int64 `json:"totalSessions"`
	CompletedSessions int64 `json:"completedSessions"`
	ActiveSessions    int64 `json:"activeSessions"`
}

// PeriodStats counts sessions and registrations since a boundary.
type PeriodStats struct {
	TotalSessions int64 `json:"totalSessions"`
	NewPatients   int64 `json:"newPatients"`
}

// TotalStats are all-time counts.
type TotalStats struct {
	Patients int64 `json:"patients"`
	Sessions int64 `json:"sessions"`
}

// DashboardStats are the headline counters of the dashboard.
type DashboardStats struct {
	Today     DayStats    `json:"today"`
	ThisWeek  PeriodStats `json:"thisWeek"`
	ThisMonth PeriodStats `json:"thisMonth"`
	Total     TotalStats  `json:"total"`
}

// RecentSession is one row of the recent sessions list.
type RecentSession struct {
	ID               string               `json:"id"`
	PatientID        *string              `json:"patientId"`
	PatientName      string               `json:"patientName"`
	PatientDisplayID string               `json:"patientDisplayId"`
	VisitNumber      int                  `json:"visitNumber"`
	ChiefComplaint   *string              `json:"chiefComplaint"`
	Status           models.SessionStatus `json:"status"`
	CreatedAt        time.Time            `json:"createdAt"`
	Diagnosis        *string              `json:"diagnosis"`
}

// DashboardService aggregates read-only counters over patients and sessions.
type DashboardService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDashboardService creates a DashboardService.
func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db, now: time.Now}
}

// GetDashboardStats counts sessions and patients for today (local midnight),
// the last seven days, the current month and all time.
func (s *DashboardService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var stats DashboardStats
	counts := []struct {
		target *int64
		model  any
		query  string
		args   []any
	}{
		{&stats.Today.TotalSessions, &models.ExaminationSession{}, "created_at >= ?", []any{today}},
		{&stats.Today.CompletedSessions, &models.ExaminationSession{}, "created_at >= ? AND status = ?", []any{today, models.SessionCompleted}},
		{&stats.Today.ActiveSessions, &models.ExaminationSession{}, "created_at >= ? AND status = ?", []any{today, models.SessionActive}},
		{&stats.ThisWeek.TotalSessions, &models.ExaminationSession{}, "created_at >= ?", []any{weekAgo}},
		{&stats.ThisWeek.NewPatients, &models.Patient{}, "created_at >= ?", []any{weekAgo}},
		{&stats.ThisMonth.TotalSessions, &models.ExaminationSession{}, "created_at >= ?", []any{monthStart}},
		{&stats.ThisMonth.NewPatients, &models.Patient{}, "created_at >= ?", []any{monthStart}},
		{&stats.Total.Sessions, &models.ExaminationSession{}, "", nil},
		{&stats.Total.Patients, &models.Patient{}, "", nil},
	}

	for _, c := range counts {
		q := s.db.WithContext(ctx).Model(c.model)
		if c.query != "" {
			q = q.Where(c.query, c.args...)
		}
		if err := q.Count(c.target).Error; err != nil {
			return nil, DatabaseError("failed to compute dashboard stats", err)
		}
	}
	return &stats, nil
}

// GetRecentSessions lists the newest sessions with the registry identity of
// their patient and the assessment of their record.
func (s *DashboardService) GetRecentSessions(ctx context.Context, limit int) ([]RecentSession, error) {
	if limit < 1 {
		limit = defaultRecentSessions
	}
	db := s.db.WithContext(ctx)

	var sessions []models.ExaminationSession
	if err := db.Order("created_at DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, DatabaseError("failed to load recent sessions", err)
	}

	recent := make([]RecentSession, 0, len(sessions))
	if len(sessions) == 0 {
		return recent, nil
	}

	sessionIDs := make([]string, 0, len(sessions))
	patientIDs := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		sessionIDs = append(sessionIDs, sess.ID)
		if sess.PatientID != nil {
			patientIDs = append(patientIDs, *sess.PatientID)
		}
	}

	patients := make(map[string]models.Patient, len(patientIDs))
	if len(patientIDs) > 0 {
		var found []models.Patient
		if err := db.Where("id IN ?", patientIDs).Find(&found).Error; err != nil {
			return nil, DatabaseError("failed to load patients", err)
		}
		for _, p := range found {
			patients[p.ID] = p
		}
	}

	var records []models.MedicalRecord
	if err := db.Select("session_id", "assessment").Where("session_id IN ?", sessionIDs).Find(&records).Error; err != nil {
		return nil, DatabaseError("failed to load medical records", err)
	}
	diagnoses := make(map[string]*string, len(records))
	for _, r := range records {
		diagnoses[r.SessionID] = r.Assessment
	}

	for _, sess := range sessions {
		row := RecentSession{
			ID:               sess.ID,
			PatientID:        sess.PatientID,
			PatientName:      sess.PatientName,
			PatientDisplayID: missingDisplayID,
			VisitNumber:      sess.VisitNumber,
			ChiefComplaint:   sess.ChiefComplaint,
			Status:           sess.Status,
			CreatedAt:        sess.CreatedAt,
			Diagnosis:        diagnoses[sess.ID],
		}
		if sess.PatientID != nil {
			if p, ok := patients[*sess.PatientID]; ok {
				row.PatientName = p.Name
				row.PatientDisplayID = p.DisplayID
			}
		}
		if row.PatientName == "" {
			row.PatientName = UnknownPatientName
		}
		recent = append(recent, row)
	}
	return recent, nil
}
