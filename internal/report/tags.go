// Package report builds spreadsheet exports.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/momentsapp/moments/internal/domain"
	"github.com/xuri/excelize/v2"
)

const (
	tagsSheet    = "Tags"
	summarySheet = "Summary"
)

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteTagReport writes an xlsx workbook with one row per tag and its photo count, followed
// by a summary sheet.
func WriteTagReport(w io.Writer, tags []domain.TagCount, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", tagsSheet); err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(tagsSheet, "A1", &[]interface{}{"ID", "Tag", "Photos"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(tagsSheet, "A1", "C1", header); err != nil {
		return err
	}

	var totalLinks int64
	for i, t := range tags {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(tagsSheet, cell, &[]interface{}{t.ID, t.Name, t.PhotoCount}); err != nil {
			return fmt.Errorf("write tag row %d: %w", i, err)
		}
		totalLinks += t.PhotoCount
	}
	if err := f.SetColWidth(tagsSheet, "B", "B", 32); err != nil {
		return err
	}
	if err := f.SetPanes(tagsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Generated at", generatedAt.UTC().Format(time.RFC3339)},
		{"Tags", len(tags)},
		{"Tag links", totalLinks},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", "A3", header); err != nil {
		return err
	}

	return f.Write(w)
}
