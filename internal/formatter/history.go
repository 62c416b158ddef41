package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/desertthunder/cv2mylar/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const timeLayout = "2006-01-02 15:04"

// WriteHistory writes past runs as a table, newest first.
func WriteHistory(w io.Writer, runs []*models.SyncRun) error {
	if len(runs) == 0 {
		_, err := io.WriteString(w, styles.help.Render("No runs recorded yet.")+"\n")
		return err
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Run", "Started", "Status", "Seen", "Filtered", "Present", "Added", "Errors", "Queries"})

	for _, run := range runs {
		s := run.Summary()
		status := string(s.Status)
		if s.DryRun {
			status += " (dry)"
		}
		tw.AppendRow(table.Row{
			run.Sequence(),
			run.ID(),
			s.StartedAt.Local().Format(timeLayout),
			status,
			s.Seen,
			s.Filtered,
			s.AlreadyPresent,
			s.Added,
			s.Errors,
			s.QueriesUsed,
		})
	}

	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignRight}}
	for n := 5; n <= 10; n++ {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}

// WriteCheckpoint describes saved progress for `state show`.
func WriteCheckpoint(w io.Writer, path string, cp models.Checkpoint) error {
	var buf bytes.Buffer

	buf.WriteString(styles.title.Render("Checkpoint") + "\n")
	fmt.Fprintf(&buf, "Path:        %s\n", path)
	if cp.IsZero() {
		buf.WriteString(styles.help.Render("No saved progress.") + "\n")
		_, err := w.Write(buf.Bytes())
		return err
	}

	fmt.Fprintf(&buf, "Run:         %s\n", cp.RunID)
	fmt.Fprintf(&buf, "Characters:  %s\n", joinIDs(cp.Characters))
	character := "-"
	if cp.Cursor.Character < len(cp.Characters) {
		character = string(cp.Characters[cp.Cursor.Character])
	}
	fmt.Fprintf(&buf, "Next page:   %s %s\n", character, cp.Cursor)
	fmt.Fprintf(&buf, "Pages:       %d\n", cp.Pages)
	fmt.Fprintf(&buf, "Evaluated:   %d volumes\n", len(cp.Evaluated))
	fmt.Fprintf(&buf, "Queries:     %d\n", cp.QueriesUsed)
	if !cp.UpdatedAt.IsZero() {
		fmt.Fprintf(&buf, "Updated:     %s\n", cp.UpdatedAt.Local().Format(time.RFC3339))
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// ExportToCSV converts a run's tracked series to CSV with columns: SeriesID, VolumeID, Name, DryRun, CreatedAt
func ExportToCSV(series []*models.TrackedSeries) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"SeriesID", "VolumeID", "Name", "DryRun", "CreatedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, s := range series {
		volumeID := ""
		if id, err := s.SeriesID().VolumeID(); err == nil {
			volumeID = strconv.FormatInt(id, 10)
		}
		record := []string{
			string(s.SeriesID()),
			volumeID,
			s.Name(),
			strconv.FormatBool(s.DryRun()),
			s.CreatedAt().UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a run and its tracked series to a Markdown report
func ExportToMarkdown(run *models.SyncRun, series []*models.TrackedSeries) []byte {
	var buf bytes.Buffer
	s := run.Summary()

	fmt.Fprintf(&buf, "# Sync run %s\n\n", run.ID())
	fmt.Fprintf(&buf, "**Status**: %s\n", s.Status)
	fmt.Fprintf(&buf, "**Characters**: %s\n", joinIDs(s.Characters))
	fmt.Fprintf(&buf, "**Started**: %s\n", s.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, "**Dry run**: %t\n\n", s.DryRun)
	fmt.Fprintf(&buf, "| Seen | Filtered | Present | %s | Errors |\n", addedLabel(s.DryRun))
	buf.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(&buf, "| %d | %d | %d | %d | %d |\n\n", s.Seen, s.Filtered, s.AlreadyPresent, s.Added, s.Errors)

	buf.WriteString("## Series\n\n")
	if len(series) == 0 {
		buf.WriteString("None.\n")
	}
	for i, t := range series {
		fmt.Fprintf(&buf, "%d. %s (%s)\n", i+1, t.Name(), t.SeriesID())
	}

	return buf.Bytes()
}
