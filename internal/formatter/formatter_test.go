package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/cv2mylar/internal/models"
	th "github.com/desertthunder/cv2mylar/internal/testing"
)

func finishedSummary(dryRun bool) *models.RunSummary {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := models.NewRunSummary("run-1", []models.CharacterID{"4005-1443", "4005-2048"}, dryRun, started)
	for i := range 12 {
		s.RecordSeen()
		if i < 7 {
			s.RecordAdded(models.SeriesRef{ID: models.NewTargetSeriesID(int64(100 + i)), Name: "Vol"})
		}
	}
	s.RecordFiltered()
	s.RecordPresent(models.SeriesRef{ID: "4050-1443", Name: "Amazing Spider-Man"})
	s.RecordError(models.SeriesRef{ID: "4050-9", Name: "Broken"}, errors.New("target write failed: 500"))
	s.Pages = 2
	s.QueriesUsed = 14
	s.Finish(models.RunStatusDone, "", started.Add(90*time.Second))
	return s
}

func TestWriteSummary(t *testing.T) {
	t.Run("live run", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteSummary(&buf, finishedSummary(false), 200); err != nil {
			t.Fatalf("WriteSummary failed: %v", err)
		}
		output := buf.String()

		for _, want := range []string{
			"Sync done",
			"4005-1443, 4005-2048",
			"Seen:        12",
			"Queries:     14/200",
			"Duration:    1m30s",
			"4050-1443 Amazing Spider-Man",
			"first 5 of 7",
			"4050-9 Broken",
			"target write failed: 500",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("summary missing %q, got:\n%s", want, output)
			}
		}
		if strings.Contains(output, "dry run") {
			t.Error("live run labelled as dry run")
		}
		if strings.Contains(output, "4050-105") {
			t.Error("expected samples capped at five")
		}
	})

	t.Run("dry run", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteSummary(&buf, finishedSummary(true), 0); err != nil {
			t.Fatalf("WriteSummary failed: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "(dry run)") || !strings.Contains(output, "Would add") {
			t.Errorf("expected dry-run labels, got:\n%s", output)
		}
		if !strings.Contains(output, "Queries:     14\n") {
			t.Errorf("expected queries without a ceiling, got:\n%s", output)
		}
	})

	t.Run("partial run shows reason", func(t *testing.T) {
		s := models.NewRunSummary("run-2", []models.CharacterID{"4005-1"}, false, time.Now())
		s.Finish(models.RunStatusPartial, "query budget exhausted", time.Now())

		var buf bytes.Buffer
		if err := WriteSummary(&buf, s, 200); err != nil {
			t.Fatalf("WriteSummary failed: %v", err)
		}
		if !strings.Contains(buf.String(), "query budget exhausted") {
			t.Errorf("expected reason, got:\n%s", buf.String())
		}
	})

	t.Run("write error", func(t *testing.T) {
		if err := WriteSummary(&th.FWriter{}, finishedSummary(false), 200); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestWriteSummaryJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummaryJSON(&buf, finishedSummary(false)); err != nil {
		t.Fatalf("WriteSummaryJSON failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["status"] != "done" || decoded["added"] != float64(7) {
		t.Errorf("unexpected JSON: %v", decoded)
	}
	if samples, ok := decoded["added_samples"].([]any); !ok || len(samples) != 5 {
		t.Errorf("expected 5 added samples, got %v", decoded["added_samples"])
	}

	if err := WriteSummaryJSON(&th.FWriter{}, finishedSummary(false)); err == nil {
		t.Error("expected write error")
	}
}

func TestWriteHistory(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteHistory(&buf, nil); err != nil {
			t.Fatalf("WriteHistory failed: %v", err)
		}
		if !strings.Contains(buf.String(), "No runs recorded") {
			t.Errorf("unexpected output: %s", buf.String())
		}
	})

	t.Run("rows", func(t *testing.T) {
		live := models.RestoreSyncRun(2, *finishedSummary(false), time.Now(), time.Now())
		dry := models.RestoreSyncRun(1, *finishedSummary(true), time.Now(), time.Now())

		var buf bytes.Buffer
		if err := WriteHistory(&buf, []*models.SyncRun{live, dry}); err != nil {
			t.Fatalf("WriteHistory failed: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"STATUS", "run-1", "done (dry)", "14"} {
			if !strings.Contains(output, want) {
				t.Errorf("history missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("write error", func(t *testing.T) {
		run := models.RestoreSyncRun(1, *finishedSummary(false), time.Now(), time.Now())
		if err := WriteHistory(&th.FWriter{}, []*models.SyncRun{run}); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestWriteCheckpoint(t *testing.T) {
	t.Run("no progress", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteCheckpoint(&buf, "/state/checkpoint.json", models.Checkpoint{}); err != nil {
			t.Fatalf("WriteCheckpoint failed: %v", err)
		}
		if !strings.Contains(buf.String(), "No saved progress") {
			t.Errorf("unexpected output: %s", buf.String())
		}
	})

	t.Run("progress", func(t *testing.T) {
		cp := models.NewCheckpoint("run-1", []models.CharacterID{"4005-1443", "4005-2048"}).
			WithPage(models.Cursor{Character: 1, Offset: 200, Stage: models.StageIssues}, []int64{1, 2, 3}, 42, time.Now())

		var buf bytes.Buffer
		if err := WriteCheckpoint(&buf, "/state/checkpoint.json", cp); err != nil {
			t.Fatalf("WriteCheckpoint failed: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"4005-2048 issues offset 200", "3 volumes", "Queries:     42", "/state/checkpoint.json"} {
			if !strings.Contains(output, want) {
				t.Errorf("checkpoint output missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("write error", func(t *testing.T) {
		w := th.NewLimitedWriter(0, &bytes.Buffer{})
		if err := WriteCheckpoint(w, "p", models.Checkpoint{}); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestExporters(t *testing.T) {
	series := []*models.TrackedSeries{
		models.NewTrackedSeries("run-1", "4050-1443", "Amazing Spider-Man", false),
		models.NewTrackedSeries("run-1", "4050-2127", "Spider-Man, Vol. 2", false),
	}

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(series)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}
		output := string(data)

		if !strings.Contains(output, "SeriesID,VolumeID,Name,DryRun,CreatedAt") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "4050-1443,1443,Amazing Spider-Man,false") {
			t.Errorf("CSV missing first row, got: %s", output)
		}
		if !strings.Contains(output, `"Spider-Man, Vol. 2"`) {
			t.Errorf("CSV should quote names with commas, got: %s", output)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		run := models.RestoreSyncRun(1, *finishedSummary(false), time.Now(), time.Now())
		output := string(ExportToMarkdown(run, series))

		for _, want := range []string{"# Sync run run-1", "**Status**: done", "| 12 | 1 | 1 | 7 | 1 |", "2. Spider-Man, Vol. 2 (4050-2127)"} {
			if !strings.Contains(output, want) {
				t.Errorf("markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToMarkdown without series", func(t *testing.T) {
		run := models.RestoreSyncRun(1, *finishedSummary(false), time.Now(), time.Now())
		if !strings.Contains(string(ExportToMarkdown(run, nil)), "None.") {
			t.Error("expected placeholder for a run without series")
		}
	})
}
