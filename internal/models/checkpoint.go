package models

import (
	"fmt"
	"slices"
	"time"
)

// CheckpointVersion is the on-disk format version written by this build.
const CheckpointVersion = 1

// Stage is the discovery pass a cursor points into. Each character is read from its
// volume credits first, then optionally by paging through the issues crediting it.
type Stage string

const (
	StageCredits Stage = ""
	StageIssues  Stage = "issues"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool { return s == StageCredits || s == StageIssues }

// Cursor addresses one page of the reference stream: a character (by index into the
// configured character list), the discovery stage and the issue offset within that stage.
//
// The zero Cursor is the volume credits of the first character.
type Cursor struct {
	Character int   `json:"character"`
	Offset    int   `json:"offset"`
	Stage     Stage `json:"stage,omitempty"`
}

func (c Cursor) String() string {
	if c.Stage == StageIssues {
		return fmt.Sprintf("issues offset %d", c.Offset)
	}
	if c.Offset > 0 {
		return fmt.Sprintf("offset %d", c.Offset)
	}
	return "volume credits"
}

// Checkpoint is an immutable snapshot of pipeline progress.
//
// A new value is produced for every completed page with [Checkpoint.WithPage], or for a page
// cut short by the query budget with [Checkpoint.WithProgress]; callers never modify a
// Checkpoint in place.
type Checkpoint struct {
	Version     int           `json:"version"`
	RunID       string        `json:"run_id,omitempty"`
	Characters  []CharacterID `json:"characters,omitempty"`
	Cursor      Cursor        `json:"cursor"`
	Evaluated   []int64       `json:"evaluated"`
	QueriesUsed int           `json:"queries_used"`
	Pages       int           `json:"pages"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewCheckpoint returns the initial checkpoint for a run over characters.
func NewCheckpoint(runID string, characters []CharacterID) Checkpoint {
	return Checkpoint{
		Version:    CheckpointVersion,
		RunID:      runID,
		Characters: slices.Clone(characters),
		Evaluated:  []int64{},
	}
}

// IsZero reports whether cp carries no progress.
func (cp Checkpoint) IsZero() bool {
	return cp.Cursor == (Cursor{}) && len(cp.Evaluated) == 0 && cp.Pages == 0
}

// Matches reports whether cp was written for the same ordered character list.
// Cursor indexes are meaningless against a different list.
func (cp Checkpoint) Matches(characters []CharacterID) bool {
	return slices.Equal(cp.Characters, characters)
}

// EvaluatedSet returns the evaluated volume IDs as a lookup set.
func (cp Checkpoint) EvaluatedSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(cp.Evaluated))
	for _, id := range cp.Evaluated {
		set[id] = struct{}{}
	}
	return set
}

// WithPage returns a new checkpoint advanced past a completed page.
//
// evaluated holds the volume IDs decided on that page; they are merged with the
// existing set, deduplicated and sorted.
func (cp Checkpoint) WithPage(next Cursor, evaluated []int64, queriesUsed int, now time.Time) Checkpoint {
	out := cp.WithProgress(evaluated, queriesUsed, now)
	out.Cursor = next
	out.Pages = cp.Pages + 1
	return out
}

// WithProgress returns a new checkpoint that keeps the cursor on the current page and adds
// the volumes decided on it so far. Resuming refetches the page and skips those volumes.
func (cp Checkpoint) WithProgress(evaluated []int64, queriesUsed int, now time.Time) Checkpoint {
	merged := make([]int64, 0, len(cp.Evaluated)+len(evaluated))
	merged = append(merged, cp.Evaluated...)
	merged = append(merged, evaluated...)
	slices.Sort(merged)
	merged = slices.Compact(merged)

	return Checkpoint{
		Version:     CheckpointVersion,
		RunID:       cp.RunID,
		Characters:  slices.Clone(cp.Characters),
		Cursor:      cp.Cursor,
		Evaluated:   merged,
		QueriesUsed: queriesUsed,
		Pages:       cp.Pages,
		UpdatedAt:   now.UTC(),
	}
}
