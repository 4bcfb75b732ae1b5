package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

const defaultSheet = "Sheet1"

// Exporter writes every company table into one workbook, one sheet per
// symbol. Numeric cells are stored as numbers so the dashboard can chart them.
type Exporter struct {
	path string
}

func NewExporter(path string) *Exporter {
	return &Exporter{path: path}
}

func (e *Exporter) Export(ctx context.Context, tables []*domain.CompanyTable) (err error) {
	if len(tables) == 0 {
		return nil
	}

	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", closeErr)
		}
	}()

	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeSheet(f, table); err != nil {
			return err
		}
	}
	if err := f.DeleteSheet(defaultSheet); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}
	f.SetActiveSheet(0)

	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := f.SaveAs(e.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", e.path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, table *domain.CompanyTable) error {
	sheet := table.Symbol
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}

	rows := append([][]string{table.Header()}, table.Rows()...)
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, cellValue(r, c, value)); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

func cellValue(row, col int, value string) any {
	if row == 0 || col == 0 || value == "" {
		return value
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
