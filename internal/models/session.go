package models

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// SessionStatus represents the lifecycle state of an examination session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionCompleted, SessionCancelled:
		return true
	}
	return false
}

// ExaminationSession is one clinical encounter. Patient fields are a snapshot
// taken at creation time and are not re-joined from the registry.
type ExaminationSession struct {
	BaseModel
	VisitID        *string           `gorm:"size:64;index" json:"visitId"`
	PatientID      *string           `gorm:"size:64;index" json:"patientId"`
	VisitNumber    int               `gorm:"not null;default:1" json:"visitNumber"`
	ChiefComplaint *string           `gorm:"type:text" json:"chiefComplaint"`
	PatientName    string            `gorm:"size:255;not null" json:"patientName"`
	PatientInfo    datatypes.JSONMap `json:"patientInfo"`
	MedicalHistory *string           `gorm:"type:text" json:"medicalHistory"`
	Status         SessionStatus     `gorm:"size:20;not null;default:'active';index" json:"status"`
}

// NewSessionID returns a time-derived id with a random suffix: sess_<unix-ms>_<9 base36 chars>.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("sess_%d_%s", now.UnixMilli(), randomSuffix())
}

// NewRecordID returns a time-derived id with a random suffix: rec_<unix-ms>_<9 base36 chars>.
func NewRecordID(now time.Time) string {
	return fmt.Sprintf("rec_%d_%s", now.UnixMilli(), randomSuffix())
}

func randomSuffix() string {
	// 36^9 fits comfortably in an int64
	const space = 101559956668416
	s := strconv.FormatInt(rand.Int64N(space), 36)
	for len(s) < 9 {
		s = "0" + s
	}
	return s
}
