package his

import "encoding/json"

// VisitContext is the visit the HIS currently has open for the doctor.
type VisitContext struct {
	VisitID     string          `json:"visitId"`
	PatientInfo map[string]any  `json:"patientInfo"`
	Context     ClinicalContext `json:"context"`
}

// ClinicalContext carries the clinical background HIS attaches to a visit.
type ClinicalContext struct {
	MedicalHistory string   `json:"medicalHistory,omitempty"`
	ChiefComplaint string   `json:"chiefComplaint,omitempty"`
	Allergies      string   `json:"allergies,omitempty"`
	Medications    []string `json:"medications,omitempty"`
}

// PatientName returns patientInfo.name when HIS supplied one.
func (v *VisitContext) PatientName() string {
	if v == nil || v.PatientInfo == nil {
		return ""
	}
	name, _ := v.PatientInfo["name"].(string)
	return name
}

// SessionResult is the response of the current-session endpoint.
type SessionResult struct {
	Success bool          `json:"success"`
	Data    *VisitContext `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// MedicalPayload is the finalized note pushed to a HIS visit.
type MedicalPayload struct {
	Subjective string   `json:"subjective"`
	Objective  string   `json:"objective"`
	Assessment string   `json:"assessment"`
	Plan       string   `json:"plan"`
	ICDCodes   []string `json:"icdCodes"`
}

// UpdateResult is the response of the visit update endpoint.
type UpdateResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}
