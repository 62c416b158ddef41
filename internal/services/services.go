package services

import (
	"context"

	"github.com/desertthunder/cv2mylar/internal/models"
)

// ReferenceCatalog is the read side of a sync: the catalog volumes are discovered in.
type ReferenceCatalog interface {
	// FetchVolumes returns the page of volumes at cursor. Next is nil once every character is exhausted.
	FetchVolumes(ctx context.Context, characters []models.CharacterID, cursor models.Cursor) (*VolumePage, error)

	// FetchVolumeDetail returns publisher, start year and issue count for a volume.
	FetchVolumeDetail(ctx context.Context, volumeID int64) (models.Volume, error)

	// FetchAppearanceStats counts the issues of a volume that credit the character.
	FetchAppearanceStats(ctx context.Context, character models.CharacterID, volumeID int64) (models.AppearanceStats, error)

	// SkipPage returns the cursor after the page at cursor without fetching it.
	SkipPage(characters []models.CharacterID, cursor models.Cursor) *models.Cursor

	// Name returns the name of the catalog (e.g., "ComicVine")
	Name() string
}

// TargetCatalog is the write side of a sync: the library series are added to.
type TargetCatalog interface {
	// ExistingSeries returns every series the catalog already tracks.
	ExistingSeries(ctx context.Context) (models.ExistingSet, error)

	// AddSeries asks the catalog to start tracking a series.
	AddSeries(ctx context.Context, id models.TargetSeriesID, name string) error

	// Name returns the name of the catalog (e.g., "Mylar")
	Name() string
}

// VolumePage is one page of the volume stream.
type VolumePage struct {
	Volumes      []models.Volume
	Cursor       models.Cursor  // position this page was fetched from
	Next         *models.Cursor // nil when the stream is exhausted
	TotalResults int            // credited volumes or issues reported for the current character
}
