package export

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSXWriter implements SheetWriter by saving a workbook to a file.
type XLSXWriter struct {
	path string
}

// NewXLSXWriter creates a writer that saves reports to path.
func NewXLSXWriter(path string) *XLSXWriter {
	return &XLSXWriter{path: path}
}

// Write saves the report workbook, replacing any previous file.
func (w *XLSXWriter) Write(_ context.Context, report Report) error {
	f, err := Workbook(report)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("saving %s: %w", w.path, err)
	}
	return nil
}

// WriteWorkbook streams the report workbook to out.
func WriteWorkbook(out io.Writer, report Report) error {
	f, err := Workbook(report)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// Workbook builds the report as an excelize workbook with the DAILY and GROUPS sheets.
func Workbook(report Report) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", DailySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(GroupsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("adding %s sheet: %w", GroupsSheet, err)
	}

	if err := writeRows(f, DailySheet, dailyRows(report)); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeRows(f, GroupsSheet, groupRows(report)); err != nil {
		f.Close()
		return nil, err
	}
	if err := formatDaily(f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func formatDaily(f *excelize.File) error {
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	amounts, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("creating number style: %w", err)
	}

	if err := f.SetColStyle(DailySheet, "B:D", amounts); err != nil {
		return err
	}
	if err := f.SetRowStyle(DailySheet, 1, 1, header); err != nil {
		return err
	}
	if err := f.SetColWidth(DailySheet, "A", "D", 14); err != nil {
		return err
	}
	return f.SetPanes(DailySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
