package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medexam-assistant-server/internal/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// PatientInput is the registration form for a new patient.
type PatientInput struct {
	Name              string `json:"name" binding:"required"`
	BirthDate         string `json:"birthDate" binding:"omitempty,datetime=2006-01-02"`
	Gender            string `json:"gender"`
	PhoneNumber       string `json:"phoneNumber"`
	Email             string `json:"email" binding:"omitempty,email"`
	Address           string `json:"address"`
	MedicalHistory    string `json:"medicalHistory"`
	Allergies         string `json:"allergies"`
	BloodType         string `json:"bloodType"`
	ExternalPatientID string `json:"externalPatientId"`
}

func (in PatientInput) normalized() PatientInput {
	return PatientInput{
		Name:              strings.TrimSpace(in.Name),
		BirthDate:         strings.TrimSpace(in.BirthDate),
		Gender:            strings.TrimSpace(in.Gender),
		PhoneNumber:       strings.TrimSpace(in.PhoneNumber),
		Email:             strings.TrimSpace(in.Email),
		Address:           strings.TrimSpace(in.Address),
		MedicalHistory:    strings.TrimSpace(in.MedicalHistory),
		Allergies:         strings.TrimSpace(in.Allergies),
		BloodType:         strings.TrimSpace(in.BloodType),
		ExternalPatientID: strings.TrimSpace(in.ExternalPatientID),
	}
}

// PatientUpdate is a sparse patch: nil fields are left untouched, an empty
// string clears an optional field.
type PatientUpdate struct {
	Name              *string `json:"name"`
	BirthDate         *string `json:"birthDate" binding:"omitempty,datetime=2006-01-02"`
	Gender            *string `json:"gender"`
	PhoneNumber       *string `json:"phoneNumber"`
	Email             *string `json:"email"`
	Address           *string `json:"address"`
	MedicalHistory    *string `json:"medicalHistory"`
	Allergies         *string `json:"allergies"`
	BloodType         *string `json:"bloodType"`
	ExternalPatientID *string `json:"externalPatientId"`
}

// PatientCreateResult carries either the new patient or the possible
// duplicates that blocked registration.
type PatientCreateResult struct {
	Patient    *models.Patient  `json:"patient,omitempty"`
	Duplicates []models.Patient `json:"duplicates,omitempty"`
}

// IsDuplicate reports whether registration stopped on possible duplicates.
func (r *PatientCreateResult) IsDuplicate() bool {
	return len(r.Duplicates) > 0
}

// PatientPage is one page of patient summaries.
type PatientPage struct {
	Patients []models.PatientSummary `json:"patients"`
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	Limit    int                     `json:"limit"`
	Pages    int                     `json:"pages"`
}

// PatientService owns patient identity, display ids and duplicate detection.
type PatientService struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewPatientService creates a PatientService.
func NewPatientService(db *gorm.DB, logger *zap.Logger) *PatientService {
	return &PatientService{db: db, logger: logger, now: time.Now}
}

// GenerateDisplayID allocates the next display id of the current year.
func (s *PatientService) GenerateDisplayID(ctx context.Context) (string, error) {
	var displayID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		displayID, err = s.nextDisplayID(tx, s.now().Year())
		return err
	})
	if err != nil {
		return "", DatabaseError("failed to generate display id", err)
	}
	return displayID, nil
}

// nextDisplayID increments the per-year counter inside tx. A missing counter
// is seeded from the highest display id already issued for the year.
func (s *PatientService) nextDisplayID(tx *gorm.DB, year int) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		res := tx.Model(&models.DisplayIDCounter{}).
			Where("year = ?", year).
			Update("last_value", gorm.Expr("last_value + 1"))
		if res.Error != nil {
			return "", fmt.Errorf("increment display id counter: %w", res.Error)
		}

		if res.RowsAffected > 0 {
			var counter models.DisplayIDCounter
			if err := tx.Where("year = ?", year).Take(&counter).Error; err != nil {
				return "", fmt.Errorf("read display id counter: %w", err)
			}
			return models.FormatDisplayID(year, counter.LastValue), nil
		}

		seed, err := highestSequence(tx, year)
		if err != nil {
			return "", err
		}
		counter := models.DisplayIDCounter{Year: year, LastValue: seed}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error; err != nil {
			return "", fmt.Errorf("seed display id counter: %w", err)
		}
	}
	return "", fmt.Errorf("display id counter for %d unavailable", year)
}

// highestSequence returns the numeric suffix of the greatest display id of
// the year. The suffix is zero-padded so lexicographic order is numeric order.
func highestSequence(tx *gorm.DB, year int) (int, error) {
	var last models.Patient
	err := tx.Select("display_id").
		Where("display_id LIKE ?", models.DisplayIDYearPrefix(year)+"%").
		Order("display_id DESC").
		Limit(1).
		Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read last display id: %w", err)
	}

	parts := strings.Split(last.DisplayID, "-")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, fmt.Errorf("malformed display id %q: %w", last.DisplayID, err)
	}
	return n, nil
}

// FindPossibleDuplicates returns patients sharing the phone number, or both
// the name and birth date, of input. Blank criteria are skipped.
func (s *PatientService) FindPossibleDuplicates(ctx context.Context, input PatientInput) ([]models.Patient, error) {
	input = input.normalized()
	db := s.db.WithContext(ctx)
	var results []models.Patient

	if input.PhoneNumber != "" {
		var byPhone []models.Patient
		if err := db.Where("phone_number = ?", input.PhoneNumber).Order("created_at ASC").Find(&byPhone).Error; err != nil {
			return nil, DatabaseError("failed to check duplicates by phone", err)
		}
		results = append(results, byPhone...)
	}

	if input.Name != "" && input.BirthDate != "" {
		var byNameAndDOB []models.Patient
		if err := db.Where("name = ? AND birth_date = ?", input.Name, input.BirthDate).Order("created_at ASC").Find(&byNameAndDOB).Error; err != nil {
			return nil, DatabaseError("failed to check duplicates by name and birth date", err)
		}
		results = append(results, byNameAndDOB...)
	}

	seen := make(map[string]struct{}, len(results))
	unique := make([]models.Patient, 0, len(results))
	for _, p := range results {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		unique = append(unique, p)
	}
	return unique, nil
}

// CreatePatient registers a patient unless possible duplicates exist, in
// which case nothing is written and the duplicates are returned.
func (s *PatientService) CreatePatient(ctx context.Context, input PatientInput) (*PatientCreateResult, error) {
	input = input.normalized()
	if input.Name == "" {
		return nil, ValidationError("patient name is required")
	}

	duplicates, err := s.FindPossibleDuplicates(ctx, input)
	if err != nil {
		s.logger.Error("Duplicate check failed", zap.Error(err))
		return nil, err
	}
	if len(duplicates) > 0 {
		s.logger.Info("Possible duplicate patients found",
			zap.String("name", input.Name),
			zap.Int("duplicate_count", len(duplicates)),
		)
		return &PatientCreateResult{Duplicates: duplicates}, nil
	}

	patient, err := s.insert(ctx, input)
	if err != nil {
		return nil, err
	}
	return &PatientCreateResult{Patient: patient}, nil
}

// ForceCreatePatient registers a patient without the duplicate check, after
// an operator has reviewed the candidates.
func (s *PatientService) ForceCreatePatient(ctx context.Context, input PatientInput) (*models.Patient, error) {
	input = input.normalized()
	if input.Name == "" {
		return nil, ValidationError("patient name is required")
	}
	return s.insert(ctx, input)
}

func (s *PatientService) insert(ctx context.Context, input PatientInput) (*models.Patient, error) {
	now := s.now()
	patient := &models.Patient{
		BaseModel: models.BaseModel{
			ID:        models.NewPatientID(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Name:              input.Name,
		ExternalPatientID: optional(input.ExternalPatientID),
		BirthDate:         optional(input.BirthDate),
		Gender:            optional(input.Gender),
		PhoneNumber:       optional(input.PhoneNumber),
		Email:             optional(input.Email),
		Address:           optional(input.Address),
		MedicalHistory:    optional(input.MedicalHistory),
		Allergies:         optional(input.Allergies),
		BloodType:         optional(input.BloodType),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		displayID, err := s.nextDisplayID(tx, now.Year())
		if err != nil {
			return err
		}
		patient.DisplayID = displayID
		return tx.Create(patient).Error
	})
	if err != nil {
		s.logger.Error("Error creating patient", zap.Error(err))
		return nil, DatabaseError("failed to create patient", err)
	}

	s.logger.Info("Patient registered",
		zap.String("patient_id", patient.ID),
		zap.String("display_id", patient.DisplayID),
	)
	return patient, nil
}

// GetPatient returns the patient or nil when id is unknown.
func (s *PatientService) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	return s.findOne(ctx, "id = ?", id)
}

// GetPatientByDisplayID returns the patient or nil when displayID is unknown.
func (s *PatientService) GetPatientByDisplayID(ctx context.Context, displayID string) (*models.Patient, error) {
	return s.findOne(ctx, "display_id = ?", displayID)
}

func (s *PatientService) findOne(ctx context.Context, query string, arg string) (*models.Patient, error) {
	var patient models.Patient
	err := s.db.WithContext(ctx).Where(query, arg).Take(&patient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, DatabaseError("failed to load patient", err)
	}
	return &patient, nil
}

// SearchPatients matches query as a substring of name, phone or display id.
// An empty query lists every patient.
func (s *PatientService) SearchPatients(ctx context.Context, query string, page, limit int) (*PatientPage, error) {
	query = strings.TrimSpace(query)
	filter := func(db *gorm.DB) *gorm.DB {
		if query == "" {
			return db
		}
		like := "%" + query + "%"
		return db.Where("name LIKE ? OR phone_number LIKE ? OR display_id LIKE ?", like, like, like)
	}
	return s.page(ctx, filter, page, limit)
}

// ListPatients pages through all patients, newest first.
func (s *PatientService) ListPatients(ctx context.Context, page, limit int) (*PatientPage, error) {
	return s.page(ctx, func(db *gorm.DB) *gorm.DB { return db }, page, limit)
}

func (s *PatientService) page(ctx context.Context, filter func(*gorm.DB) *gorm.DB, page, limit int) (*PatientPage, error) {
	page, limit = normalizePage(page, limit)

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Patient{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, DatabaseError("failed to count patients", err)
	}

	var patients []models.Patient
	err := s.db.WithContext(ctx).
		Scopes(filter).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&patients).Error
	if err != nil {
		return nil, DatabaseError("failed to list patients", err)
	}

	summaries, err := s.summarize(ctx, patients)
	if err != nil {
		return nil, err
	}

	return &PatientPage{
		Patients: summaries,
		Total:    total,
		Page:     page,
		Limit:    limit,
		Pages:    int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

// summarize attaches visit counts and the last visit date from the sessions table.
func (s *PatientService) summarize(ctx context.Context, patients []models.Patient) ([]models.PatientSummary, error) {
	summaries := make([]models.PatientSummary, 0, len(patients))
	if len(patients) == 0 {
		return summaries, nil
	}

	ids := make([]string, len(patients))
	for i, p := range patients {
		ids[i] = p.ID
	}

	var sessions []models.ExaminationSession
	err := s.db.WithContext(ctx).
		Select("id", "patient_id", "created_at").
		Where("patient_id IN ?", ids).
		Find(&sessions).Error
	if err != nil {
		return nil, DatabaseError("failed to load visit history", err)
	}

	visits := make(map[string]int, len(patients))
	lastVisit := make(map[string]time.Time, len(patients))
	for _, sess := range sessions {
		if sess.PatientID == nil {
			continue
		}
		pid := *sess.PatientID
		visits[pid]++
		if sess.CreatedAt.After(lastVisit[pid]) {
			lastVisit[pid] = sess.CreatedAt
		}
	}

	for _, p := range patients {
		summary := models.PatientSummary{
			ID:          p.ID,
			DisplayID:   p.DisplayID,
			Name:        p.Name,
			BirthDate:   p.BirthDate,
			PhoneNumber: p.PhoneNumber,
			TotalVisits: visits[p.ID],
		}
		if t, ok := lastVisit[p.ID]; ok {
			summary.LastVisitDate = &t
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// UpdatePatient merges the supplied fields and bumps updated_at. It returns
// nil when id is unknown.
func (s *PatientService) UpdatePatient(ctx context.Context, id string, update PatientUpdate) (*models.Patient, error) {
	patient, err := s.GetPatient(ctx, id)
	if err != nil || patient == nil {
		return nil, err
	}

	updates := map[string]any{"updated_at": s.now()}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, ValidationError("patient name cannot be empty")
		}
		updates["name"] = name
	}
	setOptional(updates, "birth_date", update.BirthDate)
	setOptional(updates, "gender", update.Gender)
	setOptional(updates, "phone_number", update.PhoneNumber)
	setOptional(updates, "email", update.Email)
	setOptional(updates, "address", update.Address)
	setOptional(updates, "medical_history", update.MedicalHistory)
	setOptional(updates, "allergies", update.Allergies)
	setOptional(updates, "blood_type", update.BloodType)
	setOptional(updates, "external_patient_id", update.ExternalPatientID)

	if err := s.db.WithContext(ctx).Model(&models.Patient{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		s.logger.Error("Error updating patient", zap.String("patient_id", id), zap.Error(err))
		return nil, DatabaseError("failed to update patient", err)
	}

	return s.GetPatient(ctx, id)
}

func (s *PatientService) allPatients(ctx context.Context) ([]models.Patient, error) {
	var patients []models.Patient
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&patients).Error; err != nil {
		return nil, DatabaseError("failed to load patients", err)
	}
	return patients, nil
}

func setOptional(updates map[string]any, column string, value *string) {
	if value == nil {
		return
	}
	updates[column] = optional(strings.TrimSpace(*value))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}
