package models

import (
	"time"

	"gorm.io/gorm"
)

// RecordStatus represents the state of a medical record
type RecordStatus string

const (
	RecordDraft RecordStatus = "draft"
	RecordFinal RecordStatus = "final"
)

// Valid reports whether s is a known record status.
func (s RecordStatus) Valid() bool {
	return s == RecordDraft || s == RecordFinal
}

// SyncStatus records the outcome of pushing a finalized record to HIS.
// Draft records carry no sync status.
type SyncStatus string

const (
	SyncNone          SyncStatus = ""
	SyncNotApplicable SyncStatus = "not_applicable"
	SyncSynced        SyncStatus = "synced"
	SyncFailed        SyncStatus = "sync_failed"
)

// MedicalRecord is the SOAP note and ICD-10 codes of one examination session.
type MedicalRecord struct {
	BaseModel
	SessionID   string       `gorm:"size:64;uniqueIndex;not null" json:"sessionId"`
	Subjective  *string      `gorm:"type:text" json:"subjective"`
	Objective   *string      `gorm:"type:text" json:"objective"`
	Assessment  *string      `gorm:"type:text" json:"assessment"`
	Plan        *string      `gorm:"type:text" json:"plan"`
	ICDCodes    []string     `gorm:"column:icd_codes;type:text;serializer:json" json:"icdCodes"`
	Status      RecordStatus `gorm:"size:20;not null;default:'draft'" json:"status"`
	SyncStatus  SyncStatus   `gorm:"size:20" json:"syncStatus,omitempty"`
	SyncError   *string      `gorm:"type:text" json:"syncError,omitempty"`
	SyncedAt    *time.Time   `json:"syncedAt,omitempty"`
	FinalizedAt *time.Time   `json:"finalizedAt,omitempty"`

	Session *ExaminationSession `gorm:"foreignKey:SessionID" json:"-"`
}

// AfterFind normalizes a null ICD column to an empty list.
func (r *MedicalRecord) AfterFind(tx *gorm.DB) error {
	if r.ICDCodes == nil {
		r.ICDCodes = []string{}
	}
	return nil
}
