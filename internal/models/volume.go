package models

import (
	"fmt"
	"strconv"
	"strings"
)

// TargetSeriesPrefix is the ComicVine resource prefix for volumes. Mylar keys series by "<prefix>-<volume id>".
const TargetSeriesPrefix = "4050"

// CharacterPrefix is the ComicVine resource prefix for characters.
const CharacterPrefix = "4005"

// CharacterID is a ComicVine character identifier such as "4005-1443".
type CharacterID string

// Resource returns the prefixed id used in ComicVine detail paths ("4005-1443" for "1443").
func (c CharacterID) Resource() string {
	return CharacterPrefix + "-" + c.Number()
}

// Number returns the bare numeric part used by ComicVine list filters ("1443" for "4005-1443").
func (c CharacterID) Number() string {
	s := strings.TrimSpace(string(c))
	if i := strings.LastIndex(s, "-"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ParseCharacterIDs splits a comma-separated list, dropping blanks and duplicates while keeping order.
func ParseCharacterIDs(raw string) []CharacterID {
	seen := make(map[CharacterID]struct{})
	var ids []CharacterID
	for _, part := range strings.Split(raw, ",") {
		id := CharacterID(strings.TrimSpace(part))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Volume is a candidate series from the reference catalog.
//
// StartYear and IssueCount are zero when unknown. Publisher fields are only populated
// once the volume detail has been fetched.
type Volume struct {
	ID            int64       `json:"id"`
	Name          string      `json:"name"`
	PublisherName string      `json:"publisher_name,omitempty"`
	PublisherID   string      `json:"publisher_id,omitempty"`
	StartYear     int         `json:"start_year,omitempty"`
	IssueCount    int         `json:"issue_count,omitempty"`
	CharacterID   CharacterID `json:"character_id,omitempty"`
}

// TargetID returns the Mylar series identifier for the volume.
func (v Volume) TargetID() TargetSeriesID {
	return NewTargetSeriesID(v.ID)
}

// Merge fills unknown fields of v from detail and returns the result.
func (v Volume) Merge(detail Volume) Volume {
	if detail.Name != "" {
		v.Name = detail.Name
	}
	if detail.PublisherName != "" {
		v.PublisherName = detail.PublisherName
	}
	if detail.PublisherID != "" {
		v.PublisherID = detail.PublisherID
	}
	if detail.StartYear != 0 {
		v.StartYear = detail.StartYear
	}
	if detail.IssueCount != 0 {
		v.IssueCount = detail.IssueCount
	}
	return v
}

// AppearanceStats counts how many issues of a volume a character appears in.
type AppearanceStats struct {
	Appearances int `json:"appearances"`
	TotalIssues int `json:"total_issues"`
}

// Ratio returns Appearances/TotalIssues, or 0 for a volume with no issues.
func (s AppearanceStats) Ratio() float64 {
	if s.TotalIssues <= 0 {
		return 0
	}
	return float64(s.Appearances) / float64(s.TotalIssues)
}

// TargetSeriesID is the provenance-qualified identifier Mylar uses for a series ("4050-1443").
type TargetSeriesID string

// NewTargetSeriesID maps a reference volume ID onto its Mylar identifier.
func NewTargetSeriesID(volumeID int64) TargetSeriesID {
	return TargetSeriesID(TargetSeriesPrefix + "-" + strconv.FormatInt(volumeID, 10))
}

// VolumeID parses the reference volume ID back out of the identifier.
func (t TargetSeriesID) VolumeID() (int64, error) {
	prefix, raw, ok := strings.Cut(string(t), "-")
	if !ok || prefix != TargetSeriesPrefix {
		return 0, fmt.Errorf("not a %s series id: %q", TargetSeriesPrefix, string(t))
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid volume id in %q: %w", string(t), err)
	}
	return id, nil
}

func (t TargetSeriesID) String() string { return string(t) }

// ExistingSet is a point-in-time snapshot of the series tracked by the target catalog.
type ExistingSet map[TargetSeriesID]struct{}

// NewExistingSet builds a set from the given identifiers.
func NewExistingSet(ids ...TargetSeriesID) ExistingSet {
	s := make(ExistingSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Has reports whether id is in the set.
func (s ExistingSet) Has(id TargetSeriesID) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id into the set.
func (s ExistingSet) Add(id TargetSeriesID) {
	s[id] = struct{}{}
}

// Len returns the number of identifiers in the set.
func (s ExistingSet) Len() int {
	return len(s)
}
