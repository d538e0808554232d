package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"medexam-assistant-server/internal/models"
)

const patientSheet = "Patients"

// PatientExportHeader lists the columns of the patient export, in order.
var PatientExportHeader = []string{
	"Display ID",
	"Name",
	"Birth Date",
	"Gender",
	"Phone Number",
	"Email",
	"Address",
	"Blood Type",
	"Allergies",
	"Medical History",
	"External ID",
	"Registered At",
}

var patientColumnWidths = []float64{18, 28, 12, 10, 16, 26, 36, 10, 24, 40, 18, 20}

// ExportPatients renders every patient into an XLSX workbook.
func (s *PatientService) ExportPatients(ctx context.Context) ([]byte, error) {
	patients, err := s.allPatients(ctx)
	if err != nil {
		return nil, err
	}

	data, err := renderPatientWorkbook(patients)
	if err != nil {
		return nil, InternalError("failed to render patient export", err)
	}
	return data, nil
}

func renderPatientWorkbook(patients []models.Patient) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(patientSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range PatientExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(patientSheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(patientSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}

		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(patientSheet, name, name, patientColumnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, p := range patients {
		row := []any{
			p.DisplayID,
			p.Name,
			deref(p.BirthDate),
			deref(p.Gender),
			deref(p.PhoneNumber),
			deref(p.Email),
			deref(p.Address),
			deref(p.BloodType),
			deref(p.Allergies),
			deref(p.MedicalHistory),
			deref(p.ExternalPatientID),
			p.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(patientSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(patientSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
