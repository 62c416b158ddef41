// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/cv2mylar/internal/models"
	"github.com/desertthunder/cv2mylar/internal/services"
)

// FakeReference is an in-memory [services.ReferenceCatalog].
//
// Pages holds each character's stream, one slice per page; page i lives at offset
// i*[services.IssuePageSize]. When Budget is set every fetch consumes one unit like the real client.
type FakeReference struct {
	mu sync.Mutex

	Pages      map[models.CharacterID][][]models.Volume
	Details    map[int64]models.Volume
	Stats      map[int64]models.AppearanceStats
	PageErrs   map[models.Cursor]error
	DetailErrs map[int64]error
	Budget     *services.QueryBudget

	PageCalls   []models.Cursor
	DetailCalls []int64
	StatsCalls  []int64
}

func (f *FakeReference) Name() string { return "fake-reference" }

func (f *FakeReference) consume() error {
	if f.Budget == nil {
		return nil
	}
	return f.Budget.Consume(1)
}

// Queries returns the number of fetches made.
func (f *FakeReference) Queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.PageCalls) + len(f.DetailCalls) + len(f.StatsCalls)
}

func (f *FakeReference) FetchVolumes(ctx context.Context, characters []models.CharacterID, cursor models.Cursor) (*services.VolumePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.consume(); err != nil {
		return nil, err
	}
	f.PageCalls = append(f.PageCalls, cursor)

	if err, ok := f.PageErrs[cursor]; ok {
		return nil, err
	}

	page := &services.VolumePage{Cursor: cursor}
	if cursor.Character >= len(characters) {
		return page, nil
	}

	character := characters[cursor.Character]
	pages := f.Pages[character]
	idx := cursor.Offset / services.IssuePageSize
	if idx < len(pages) {
		for _, v := range pages[idx] {
			v.CharacterID = character
			page.Volumes = append(page.Volumes, v)
		}
		page.TotalResults = len(pages) * services.IssuePageSize
	}
	page.Next = f.next(characters, cursor)
	return page, nil
}

func (f *FakeReference) next(characters []models.CharacterID, cursor models.Cursor) *models.Cursor {
	if cursor.Character >= len(characters) {
		return nil
	}
	idx := cursor.Offset / services.IssuePageSize
	if idx+1 < len(f.Pages[characters[cursor.Character]]) {
		return &models.Cursor{Character: cursor.Character, Offset: cursor.Offset + services.IssuePageSize}
	}
	if cursor.Character+1 < len(characters) {
		return &models.Cursor{Character: cursor.Character + 1}
	}
	return nil
}

func (f *FakeReference) SkipPage(characters []models.CharacterID, cursor models.Cursor) *models.Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next(characters, cursor)
}

func (f *FakeReference) FetchVolumeDetail(ctx context.Context, volumeID int64) (models.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.consume(); err != nil {
		return models.Volume{}, err
	}
	f.DetailCalls = append(f.DetailCalls, volumeID)

	if err, ok := f.DetailErrs[volumeID]; ok {
		return models.Volume{}, err
	}
	detail, ok := f.Details[volumeID]
	if !ok {
		return models.Volume{ID: volumeID}, nil
	}
	detail.ID = volumeID
	return detail, nil
}

func (f *FakeReference) FetchAppearanceStats(ctx context.Context, character models.CharacterID, volumeID int64) (models.AppearanceStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.consume(); err != nil {
		return models.AppearanceStats{}, err
	}
	f.StatsCalls = append(f.StatsCalls, volumeID)
	return f.Stats[volumeID], nil
}

// FakeTarget is an in-memory [services.TargetCatalog]. Successful adds join Existing.
type FakeTarget struct {
	mu sync.Mutex

	Existing    models.ExistingSet
	ExistingErr error
	AddErrs     map[models.TargetSeriesID]error

	IndexCalls int
	AddCalls   []models.TargetSeriesID
}

// NewFakeTarget creates a target already tracking ids.
func NewFakeTarget(ids ...models.TargetSeriesID) *FakeTarget {
	return &FakeTarget{Existing: models.NewExistingSet(ids...), AddErrs: map[models.TargetSeriesID]error{}}
}

func (f *FakeTarget) Name() string { return "fake-target" }

func (f *FakeTarget) ExistingSeries(ctx context.Context) (models.ExistingSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.IndexCalls++
	if f.ExistingErr != nil {
		return nil, f.ExistingErr
	}
	if f.Existing == nil {
		return models.NewExistingSet(), nil
	}
	return maps.Clone(f.Existing), nil
}

func (f *FakeTarget) AddSeries(ctx context.Context, id models.TargetSeriesID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.AddCalls = append(f.AddCalls, id)
	if err, ok := f.AddErrs[id]; ok {
		return err
	}
	if f.Existing == nil {
		f.Existing = models.NewExistingSet()
	}
	f.Existing.Add(id)
	return nil
}

// Added returns the ids passed to AddSeries, in call order.
func (f *FakeTarget) Added() []models.TargetSeriesID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TargetSeriesID(nil), f.AddCalls...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{maxWrites: maxWrites, target: target}
}

func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("File should not exist: %s", path)
	}
}
