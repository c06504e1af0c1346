package reporting

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/platform/db"
)

const (
	SheetName       = "Pasien"
	ExportName      = "laporan_pasien.xlsx"
	MIMESpreadsheet = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportHeader is the first row of the exported sheet.
var ExportHeader = []interface{}{"ID", "Nama", "Tanggal Lahir", "Tanggal Kunjungan", "Diagnosis", "Tindakan", "Dokter"}

// ExportExcel renders every patient matching f as an .xlsx workbook.
func (s *Service) ExportExcel(ctx context.Context, f patient.Filter) ([]byte, error) {
	f.Limit, f.Offset = 0, 0
	patients, err := s.src.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return Workbook(patients)
}

// Workbook writes patients to a single-sheet workbook, one row each.
func Workbook(patients []*patient.Patient) ([]byte, error) {
	x := excelize.NewFile()
	defer x.Close()

	if err := x.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := x.SetSheetRow(SheetName, "A1", &ExportHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := x.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := x.SetCellStyle(SheetName, "A1", "G1", bold); err != nil {
		return nil, err
	}

	for i, p := range patients {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := exportRow(p)
		if err := x.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := x.SetColWidth(SheetName, "A", "A", 38); err != nil {
		return nil, err
	}
	if err := x.SetColWidth(SheetName, "B", "G", 20); err != nil {
		return nil, err
	}
	if err := x.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}

	buf, err := x.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// exportRow leaves empty optional fields as blank cells.
func exportRow(p *patient.Patient) []interface{} {
	row := []interface{}{p.ID.String(), p.Name, nil, db.FormatDate(p.VisitDate), blank(p.Diagnosis), blank(p.Treatment), blank(p.Doctor)}
	if p.DateOfBirth != nil {
		row[2] = db.FormatDate(*p.DateOfBirth)
	}
	return row
}

func blank(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
