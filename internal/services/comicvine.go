package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/desertthunder/cv2mylar/internal/models"
	"github.com/desertthunder/cv2mylar/internal/shared"
)

const (
	// DefaultComicVineURL is the public ComicVine API root.
	DefaultComicVineURL = "https://comicvine.gamespot.com/api"

	// IssuePageSize is the number of issues requested per issue page (the API maximum).
	IssuePageSize = 100

	cvStatusOK         = 1
	cvStatusInvalidKey = 100
)

// ComicVineService implements [ReferenceCatalog] against the ComicVine API.
type ComicVineService struct {
	apiKey  string
	baseURL string
	client  *apiClient

	issueFallback bool

	mu      sync.Mutex
	details map[int64]models.Volume
	totals  map[models.CharacterID]int
}

// NewComicVineService creates a client. An empty baseURL selects [DefaultComicVineURL].
// The issue fallback starts enabled.
func NewComicVineService(apiKey, baseURL string, opts ...Option) *ComicVineService {
	if baseURL == "" {
		baseURL = DefaultComicVineURL
	}
	return &ComicVineService{
		apiKey:        apiKey,
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        newAPIClient(opts...),
		issueFallback: true,
		details:       make(map[int64]models.Volume),
		totals:        make(map[models.CharacterID]int),
	}
}

// SetIssueFallback controls whether each character's volume credits are followed by paging
// through every issue crediting it.
func (s *ComicVineService) SetIssueFallback(enabled bool) {
	s.issueFallback = enabled
}

// Name returns the name of the catalog.
func (s *ComicVineService) Name() string { return "ComicVine" }

// cvEnvelope is the wrapper ComicVine puts around every response.
type cvEnvelope struct {
	StatusCode   int             `json:"status_code"`
	Error        string          `json:"error"`
	TotalResults int             `json:"number_of_total_results"`
	PageResults  int             `json:"number_of_page_results"`
	Results      json.RawMessage `json:"results"`
}

type cvRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type cvCharacter struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	VolumeCredits []cvRef `json:"volume_credits"`
}

type cvIssue struct {
	ID     int64  `json:"id"`
	Volume *cvRef `json:"volume"`
}

type cvVolume struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Publisher     *cvRef  `json:"publisher"`
	StartYear     flexInt `json:"start_year"`
	CountOfIssues flexInt `json:"count_of_issues"`
}

// flexInt decodes a number, a numeric string or null. Anything unparseable becomes 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// call performs one logical ComicVine request and unwraps the envelope.
func (s *ComicVineService) call(ctx context.Context, path string, params url.Values) (*cvEnvelope, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", s.apiKey)
	params.Set("format", "json")

	var env cvEnvelope
	endpoint := s.baseURL + "/" + strings.Trim(path, "/") + "/"
	if err := s.client.getJSON(ctx, endpoint, params, &env, true); err != nil {
		return nil, err
	}

	switch env.StatusCode {
	case cvStatusOK:
		return &env, nil
	case cvStatusInvalidKey:
		return nil, fmt.Errorf("%w: comicvine: %s (%d)", shared.ErrAuth, env.Error, env.StatusCode)
	default:
		return nil, fmt.Errorf("%w: comicvine: %s (%d)", shared.ErrFetch, env.Error, env.StatusCode)
	}
}

// FetchVolumes returns the distinct volumes on the page addressed by cursor. A character is
// read from its volume credits first (one query for every volume), then, with the issue
// fallback enabled, from the issues crediting it one page at a time.
func (s *ComicVineService) FetchVolumes(ctx context.Context, characters []models.CharacterID, cursor models.Cursor) (*VolumePage, error) {
	if cursor.Character >= len(characters) {
		return &VolumePage{Cursor: cursor}, nil
	}
	if cursor.Stage == models.StageIssues {
		return s.fetchIssuePage(ctx, characters, cursor)
	}
	return s.fetchCredits(ctx, characters, cursor)
}

func (s *ComicVineService) fetchCredits(ctx context.Context, characters []models.CharacterID, cursor models.Cursor) (*VolumePage, error) {
	character := characters[cursor.Character]

	params := url.Values{}
	params.Set("field_list", "id,name,volume_credits")

	env, err := s.call(ctx, "character/"+character.Resource(), params)
	if err != nil {
		return nil, fmt.Errorf("volume credits for %s: %w", character, err)
	}

	var result cvCharacter
	if len(env.Results) > 0 {
		if err := json.Unmarshal(env.Results, &result); err != nil {
			return nil, fmt.Errorf("%w: volume credits for %s: %v", shared.ErrFetch, character, err)
		}
	}

	page := &VolumePage{Cursor: cursor, TotalResults: len(result.VolumeCredits)}
	seen := make(map[int64]struct{}, len(result.VolumeCredits))
	for _, ref := range result.VolumeCredits {
		if ref.ID == 0 {
			continue
		}
		if _, ok := seen[ref.ID]; ok {
			continue
		}
		seen[ref.ID] = struct{}{}
		page.Volumes = append(page.Volumes, models.Volume{ID: ref.ID, Name: ref.Name, CharacterID: character})
	}
	page.Next = s.afterCredits(characters, cursor)
	return page, nil
}

func (s *ComicVineService) fetchIssuePage(ctx context.Context, characters []models.CharacterID, cursor models.Cursor) (*VolumePage, error) {
	character := characters[cursor.Character]

	params := url.Values{}
	params.Set("field_list", "id,volume")
	params.Set("filter", "character_credits:"+character.Number())
	params.Set("limit", strconv.Itoa(IssuePageSize))
	params.Set("offset", strconv.Itoa(cursor.Offset))
	params.Set("sort", "id:asc")

	env, err := s.call(ctx, "issues", params)
	if err != nil {
		return nil, fmt.Errorf("issues for %s at offset %d: %w", character, cursor.Offset, err)
	}

	var issues []cvIssue
	if len(env.Results) > 0 {
		if err := json.Unmarshal(env.Results, &issues); err != nil {
			return nil, fmt.Errorf("%w: issues for %s: %v", shared.ErrFetch, character, err)
		}
	}

	s.mu.Lock()
	s.totals[character] = env.TotalResults
	s.mu.Unlock()

	page := &VolumePage{Cursor: cursor, TotalResults: env.TotalResults}
	seen := make(map[int64]struct{}, len(issues))
	for _, issue := range issues {
		if issue.Volume == nil || issue.Volume.ID == 0 {
			continue
		}
		if _, ok := seen[issue.Volume.ID]; ok {
			continue
		}
		seen[issue.Volume.ID] = struct{}{}
		page.Volumes = append(page.Volumes, models.Volume{
			ID:          issue.Volume.ID,
			Name:        issue.Volume.Name,
			CharacterID: character,
		})
	}

	if len(issues) > 0 && cursor.Offset+IssuePageSize < env.TotalResults {
		page.Next = issueCursor(cursor.Character, cursor.Offset+IssuePageSize)
	} else {
		page.Next = nextCharacter(characters, cursor)
	}
	return page, nil
}

// SkipPage returns the cursor following the page at cursor.
//
// When the character's issue total is not known yet (its first page in this process failed)
// the cursor still moves a single page on; the next fetch reports where the character ends.
func (s *ComicVineService) SkipPage(characters []models.CharacterID, cursor models.Cursor) *models.Cursor {
	if cursor.Character >= len(characters) {
		return nil
	}
	if cursor.Stage != models.StageIssues {
		return s.afterCredits(characters, cursor)
	}

	s.mu.Lock()
	total, ok := s.totals[characters[cursor.Character]]
	s.mu.Unlock()

	if ok && cursor.Offset+IssuePageSize >= total {
		return nextCharacter(characters, cursor)
	}
	return issueCursor(cursor.Character, cursor.Offset+IssuePageSize)
}

// afterCredits is the cursor following a character's volume credits.
func (s *ComicVineService) afterCredits(characters []models.CharacterID, cursor models.Cursor) *models.Cursor {
	if s.issueFallback {
		return issueCursor(cursor.Character, 0)
	}
	return nextCharacter(characters, cursor)
}

func issueCursor(character, offset int) *models.Cursor {
	return &models.Cursor{Character: character, Offset: offset, Stage: models.StageIssues}
}

func nextCharacter(characters []models.CharacterID, cursor models.Cursor) *models.Cursor {
	if cursor.Character+1 < len(characters) {
		return &models.Cursor{Character: cursor.Character + 1}
	}
	return nil
}

// FetchVolumeDetail returns name, publisher, start year and issue count for a volume.
// Results are cached for the life of the service.
func (s *ComicVineService) FetchVolumeDetail(ctx context.Context, volumeID int64) (models.Volume, error) {
	s.mu.Lock()
	cached, ok := s.details[volumeID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("field_list", "id,name,publisher,start_year,count_of_issues")

	path := fmt.Sprintf("volume/%s", models.NewTargetSeriesID(volumeID))
	env, err := s.call(ctx, path, params)
	if err != nil {
		return models.Volume{}, fmt.Errorf("volume %d: %w", volumeID, err)
	}

	var raw cvVolume
	if err := json.Unmarshal(env.Results, &raw); err != nil {
		return models.Volume{}, fmt.Errorf("%w: volume %d: %v", shared.ErrFetch, volumeID, err)
	}

	detail := models.Volume{
		ID:         volumeID,
		Name:       raw.Name,
		StartYear:  int(raw.StartYear),
		IssueCount: int(raw.CountOfIssues),
	}
	if raw.Publisher != nil {
		detail.PublisherName = raw.Publisher.Name
		if raw.Publisher.ID != 0 {
			detail.PublisherID = strconv.FormatInt(raw.Publisher.ID, 10)
		}
	}

	s.mu.Lock()
	s.details[volumeID] = detail
	s.mu.Unlock()
	return detail, nil
}

// FetchAppearanceStats counts the issues of volumeID crediting character. The issue total comes
// from the (cached) volume detail.
func (s *ComicVineService) FetchAppearanceStats(ctx context.Context, character models.CharacterID, volumeID int64) (models.AppearanceStats, error) {
	detail, err := s.FetchVolumeDetail(ctx, volumeID)
	if err != nil {
		return models.AppearanceStats{}, err
	}

	params := url.Values{}
	params.Set("field_list", "id")
	params.Set("filter", fmt.Sprintf("character_credits:%s,volume:%d", character.Number(), volumeID))
	params.Set("limit", "1")

	env, err := s.call(ctx, "issues", params)
	if err != nil {
		return models.AppearanceStats{}, fmt.Errorf("appearances of %s in volume %d: %w", character, volumeID, err)
	}

	return models.AppearanceStats{Appearances: env.TotalResults, TotalIssues: detail.IssueCount}, nil
}
