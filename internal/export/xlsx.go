// Package export renders classified transcripts as spreadsheets.
package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/kiranshivaraju/phrasetracker/internal/jobs"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
	"github.com/xuri/excelize/v2"
)

const (
	TranscriptSheet = "Transcript"
	SummarySheet    = "Summary"

	// ContentType is the MIME type of a written workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var ErrNotCompleted = errors.New("job has not completed")

var transcriptHeader = []any{"Index", "Timestamp", "Start (ms)", "End (ms)", "Tracker", "Confidence", "Text"}

// WriteXLSX writes a workbook with the classified sentences of a completed
// job and a per-tracker summary.
func WriteXLSX(w io.Writer, view *jobs.StatusView) error {
	if view.Status != models.JobStatusCompleted {
		return ErrNotCompleted
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", TranscriptSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeTranscript(f, view.ClassifiedTranscript); err != nil {
		return err
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := writeSummary(f, view); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeTranscript(f *excelize.File, rows []models.ClassifiedSentence) error {
	if err := f.SetSheetRow(TranscriptSheet, "A1", &transcriptHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := boldRow(f, TranscriptSheet, 1); err != nil {
		return err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{r.Index, r.Timestamp, r.Start, r.End, string(r.Tracker), r.Confidence, r.Text}
		if err := f.SetSheetRow(TranscriptSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", r.Index, err)
		}
	}

	if err := f.SetColWidth(TranscriptSheet, "E", "E", 20); err != nil {
		return err
	}
	if err := f.SetColWidth(TranscriptSheet, "G", "G", 100); err != nil {
		return err
	}
	return f.SetPanes(TranscriptSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeSummary(f *excelize.File, view *jobs.StatusView) error {
	total := len(view.ClassifiedTranscript)
	if view.TotalSentences != nil {
		total = *view.TotalSentences
	}

	rows := [][]any{
		{"Job ID", view.JobID},
		{"Status", string(view.Status)},
		{"Total sentences", total},
		{"Classified sentences", len(view.ClassifiedTranscript)},
		{"Failed chunks", view.FailedChunks},
		{},
		{"Tracker", "Sentences"},
	}

	counts := view.TrackerCounts
	if counts == nil {
		counts = jobs.CountTrackers(view.ClassifiedTranscript)
	}
	for _, t := range models.Trackers() {
		rows = append(rows, []any{string(t.Name), counts[t.Name]})
	}
	rows = append(rows, []any{string(models.TrackerNone), counts[models.TrackerNone]})

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}

	// header of the tracker table
	if err := boldRow(f, SummarySheet, 7); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "A", "A", 24)
}

func boldRow(f *excelize.File, sheet string, row int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	return f.SetRowStyle(sheet, row, row, style)
}
