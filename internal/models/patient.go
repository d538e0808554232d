package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DisplayIDPrefix starts every human-readable patient id: BN-<year>-<sequence>.
const DisplayIDPrefix = "BN"

// Patient represents a registered patient.
type Patient struct {
	BaseModel
	DisplayID         string  `gorm:"size:32;uniqueIndex;not null" json:"displayId"`
	ExternalPatientID *string `gorm:"size:64;index" json:"externalPatientId"`
	Name              string  `gorm:"size:255;not null;index" json:"name"`
	BirthDate         *string `gorm:"size:10" json:"birthDate"` // YYYY-MM-DD
	Gender            *string `gorm:"size:20" json:"gender"`
	PhoneNumber       *string `gorm:"size:32;index" json:"phoneNumber"`
	Email             *string `gorm:"size:255" json:"email"`
	Address           *string `gorm:"type:text" json:"address"`
	MedicalHistory    *string `gorm:"type:text" json:"medicalHistory"`
	Allergies         *string `gorm:"type:text" json:"allergies"`
	BloodType         *string `gorm:"size:8" json:"bloodType"`
}

// DisplayIDCounter stores the last issued display id sequence for one calendar year.
type DisplayIDCounter struct {
	Year      int `gorm:"primaryKey;autoIncrement:false"`
	LastValue int `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// PatientSummary is the list/search projection of a patient.
type PatientSummary struct {
	ID            string     `json:"id"`
	DisplayID     string     `json:"displayId"`
	Name          string     `json:"name"`
	BirthDate     *string    `json:"birthDate"`
	PhoneNumber   *string    `json:"phoneNumber"`
	TotalVisits   int        `json:"totalVisits"`
	LastVisitDate *time.Time `json:"lastVisitDate"`
}

// NewPatientID returns an opaque internal patient id.
func NewPatientID() string {
	return "pat_" + uuid.New().String()
}

// DisplayIDYearPrefix returns the display id prefix for a year, e.g. "BN-2025-".
func DisplayIDYearPrefix(year int) string {
	return fmt.Sprintf("%s-%d-", DisplayIDPrefix, year)
}

// FormatDisplayID renders a year and sequence as BN-YYYY-NNNNNN.
func FormatDisplayID(year, sequence int) string {
	return fmt.Sprintf("%s%06d", DisplayIDYearPrefix(year), sequence)
}
