package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	sheetQuotes  = "Quotes"
	sheetLessons = "Lessons"
)

var (
	quoteColumns  = []any{"Focus Group", "Location", "Race", "Outcome", "Date", "Participant", "Profile", "Quote", "Source File", "Line", "Synthesis"}
	lessonColumns = []any{"Race ID", "State", "Office", "Year", "Outcome", "Margin", "Section", "Excerpt", "Summary"}
)

// XLSX writes data as a workbook with one row per quote on the Quotes sheet and one row
// per strategy excerpt on the Lessons sheet.
func XLSX(w io.Writer, data Data) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetQuotes); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetLessons); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	quotes := [][]any{quoteColumns}
	for _, group := range data.Results {
		meta := group.Metadata
		synthesis := data.DeepSyntheses[group.FocusGroupID]
		if synthesis == "" {
			synthesis = data.Summaries[group.FocusGroupID]
		}
		for _, chunk := range group.Chunks {
			quotes = append(quotes, []any{
				group.FocusGroupID, meta.Location, meta.RaceName, meta.Outcome, meta.Date,
				chunk.Participant, chunk.ParticipantProfile, CleanQuote(chunk.Content),
				chunk.SourceFile, chunk.LineNumber, synthesis,
			})
		}
	}

	lessons := [][]any{lessonColumns}
	for _, lesson := range data.Lessons {
		meta := lesson.Metadata
		var year, margin any
		if meta.Year != nil {
			year = *meta.Year
		}
		if meta.Margin != nil {
			margin = *meta.Margin
		}
		summary := data.StrategyDeep[lesson.RaceID]
		if summary == "" {
			summary = data.StrategySummaries[lesson.RaceID]
		}
		for _, chunk := range lesson.Chunks {
			lessons = append(lessons, []any{
				lesson.RaceID, meta.State, meta.Office, year, meta.Outcome, margin,
				chunk.Section, CleanQuote(chunk.Content), summary,
			})
		}
	}

	if err := writeRows(f, sheetQuotes, quotes, bold); err != nil {
		return err
	}
	if err := writeRows(f, sheetLessons, lessons, bold); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write XLSX: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}
