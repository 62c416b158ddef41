// package formatter renders run summaries, history and checkpoints for the terminal, JSON and file exports
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/desertthunder/cv2mylar/internal/models"
)

// WriteSummary writes the end-of-run report as styled text.
func WriteSummary(w io.Writer, s *models.RunSummary, budget int) error {
	var buf bytes.Buffer

	heading := fmt.Sprintf("Sync %s", s.Status)
	if s.DryRun {
		heading += " (dry run)"
	}
	buf.WriteString(styles.status(string(s.Status)).Render(heading) + "\n")
	if s.Reason != "" {
		buf.WriteString(styles.help.Render(s.Reason) + "\n")
	}
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "Run:         %s\n", s.RunID)
	fmt.Fprintf(&buf, "Characters:  %s\n", joinIDs(s.Characters))
	if s.Resumed {
		fmt.Fprintf(&buf, "Resumed:     yes\n")
	}
	fmt.Fprintf(&buf, "Seen:        %d\n", s.Seen)
	fmt.Fprintf(&buf, "Filtered:    %d\n", s.Filtered)
	fmt.Fprintf(&buf, "Present:     %d\n", s.AlreadyPresent)
	fmt.Fprintf(&buf, "%-13s%s\n", addedLabel(s.DryRun)+":", styles.ok.Render(fmt.Sprint(s.Added)))
	errs := fmt.Sprint(s.Errors)
	if s.Errors > 0 {
		errs = styles.err.Render(errs)
	}
	fmt.Fprintf(&buf, "Errors:      %s\n", errs)
	fmt.Fprintf(&buf, "Pages:       %d\n", s.Pages)
	if budget > 0 {
		fmt.Fprintf(&buf, "Queries:     %d/%d\n", s.QueriesUsed, budget)
	} else {
		fmt.Fprintf(&buf, "Queries:     %d\n", s.QueriesUsed)
	}
	if d := s.Duration(); d > 0 {
		fmt.Fprintf(&buf, "Duration:    %s\n", d.Round(time.Second))
	}

	writeSamples(&buf, "Already present", s.PresentSamples, s.AlreadyPresent)
	writeSamples(&buf, addedLabel(s.DryRun), s.AddedSamples, s.Added)
	writeSamples(&buf, "Errors", s.ErrorSamples, s.Errors)

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteSummaryJSON writes the summary as indented JSON.
func WriteSummaryJSON(w io.Writer, s *models.RunSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func addedLabel(dryRun bool) string {
	if dryRun {
		return "Would add"
	}
	return "Added"
}

func writeSamples(buf *bytes.Buffer, label string, samples []models.SeriesRef, total int) {
	if len(samples) == 0 {
		return
	}

	fmt.Fprintf(buf, "\n%s", styles.title.Render(label))
	if total > len(samples) {
		fmt.Fprintf(buf, " %s", styles.help.Render(fmt.Sprintf("(first %d of %d)", len(samples), total)))
	}
	buf.WriteString("\n")

	for _, ref := range samples {
		line := "  - " + describe(ref)
		if ref.Error != "" {
			line += ": " + styles.err.Render(ref.Error)
		}
		buf.WriteString(line + "\n")
	}
}

func describe(ref models.SeriesRef) string {
	switch {
	case ref.ID == "":
		return ref.Name
	case ref.Name == "":
		return string(ref.ID)
	default:
		return fmt.Sprintf("%s %s", ref.ID, ref.Name)
	}
}

func joinIDs(ids []models.CharacterID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
