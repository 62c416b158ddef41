package tasks

import (
	"fmt"

	"github.com/desertthunder/cv2mylar/internal/models"
)

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Pipeline state
	Step    int    // Pages completed in this run
	Total   int    // Query budget ceiling
	Message string // Human-readable message for display
	Data    any    // Optional state-specific data
}

// Phase is a state of the sync pipeline.
type Phase int

const (
	Init Phase = iota
	Resuming
	Streaming
	Filtering
	Diffing
	Acting
	Checkpointing
	Done
	Aborted
)

func (p Phase) String() string {
	switch p {
	case Init:
		return "init"
	case Resuming:
		return "resuming"
	case Streaming:
		return "streaming"
	case Filtering:
		return "filtering"
	case Diffing:
		return "diffing"
	case Acting:
		return "acting"
	case Checkpointing:
		return "checkpointing"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	default:
		return ""
	}
}

// Terminal reports whether no update follows p.
func (p Phase) Terminal() bool { return p == Done || p == Aborted }

func initUpdate(characters []models.CharacterID, dryRun bool) ProgressUpdate {
	mode := "live"
	if dryRun {
		mode = "dry run"
	}
	return ProgressUpdate{
		Phase:   Init,
		Message: fmt.Sprintf("Starting %s sync for %d character(s)...", mode, len(characters)),
	}
}

func resumingUpdate(cp models.Checkpoint) ProgressUpdate {
	if cp.IsZero() {
		return ProgressUpdate{Phase: Resuming, Message: "No checkpoint found, starting from the beginning"}
	}
	return ProgressUpdate{
		Phase:   Resuming,
		Message: fmt.Sprintf("Resuming at character %d, %s (%d volumes already evaluated)", cp.Cursor.Character+1, cp.Cursor, len(cp.Evaluated)),
		Data:    cp,
	}
}

func streamingUpdate(step, total int, cursor models.Cursor) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Streaming,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching character %d, %s...", cursor.Character+1, cursor),
	}
}

func filteringUpdate(step, total int, page int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Filtering,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Filtering %d volume(s)...", page),
	}
}

func diffingUpdate(step, total int, v models.Volume) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Diffing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Checking %s (%s)", v.TargetID(), v.Name),
	}
}

func actingUpdate(step, total int, ref models.SeriesRef, dryRun bool) ProgressUpdate {
	verb := "Adding"
	if dryRun {
		verb = "Would add"
	}
	return ProgressUpdate{
		Phase:   Acting,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("%s %s - %s", verb, ref.ID, ref.Name),
		Data:    ref,
	}
}

func checkpointingUpdate(step, total int, cp models.Checkpoint) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Checkpointing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Checkpoint saved (%d pages, %d volumes evaluated)", cp.Pages, len(cp.Evaluated)),
		Data:    cp,
	}
}

func finishedUpdate(step, total int, summary *models.RunSummary) ProgressUpdate {
	phase := Done
	if summary.Status == models.RunStatusAborted {
		phase = Aborted
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Sync %s: %d added, %d present, %d filtered, %d errors", summary.Status, summary.Added, summary.AlreadyPresent, summary.Filtered, summary.Errors),
		Data:    summary,
	}
}
