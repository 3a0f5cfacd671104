package housing

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

var ExportHeader = []string{"Chambre (lot)", "Locataire (email)", "Réservation", "Réparation", "Loyer"}

const (
	noCurrentTenant = "Pas de locataire actuel"
	notReserved     = "Pas réservée"
	notGiven        = "Non indiqué"
	noRoom          = "Pas de chambre"
)

// ExportRows returns one row per room, then one row per tenant without a room.
func (s *Store) ExportRows(ctx context.Context) ([][]string, error) {
	var rooms []Room
	err := s.db.WithContext(ctx).
		Preload("Rent").
		Preload("Renovation").
		Preload("CurrentLeasing.Tenant").
		Preload("NextLeasing.Tenant").
		Order("id").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(rooms))
	for i := range rooms {
		r := &rooms[i]

		tenant := noCurrentTenant
		if t := r.CurrentTenant(); t != nil {
			tenant = t.String() + "(" + t.Email + ")"
		}
		next := notReserved
		if t := r.NextTenant(); t != nil {
			next = t.String()
		}
		renovation := notGiven
		if r.Renovation != nil {
			renovation = r.Renovation.Name
		}
		rent := notGiven
		if r.Rent != nil {
			rent = r.Rent.String()
		}

		rows = append(rows, []string{r.String(), tenant, next, renovation, rent})
	}

	var homeless []Tenant
	if err := s.db.WithContext(ctx).Where("current_leasing_id IS NULL").Order("id").Find(&homeless).Error; err != nil {
		return nil, err
	}
	for i := range homeless {
		rows = append(rows, []string{noRoom, homeless[i].String(), "", "", ""})
	}
	return rows, nil
}

func WriteCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// XLSX renders the export as a spreadsheet with a frozen, styled header.
func XLSX(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Export"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	widths := []float64{14, 45, 30, 20, 25}
	for i, header := range ExportHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return nil, err
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, col, col, widths[i]); err != nil {
			return nil, err
		}
	}

	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
