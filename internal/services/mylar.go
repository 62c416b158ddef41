package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/cv2mylar/internal/models"
	"github.com/desertthunder/cv2mylar/internal/shared"
)

// DefaultMylarURL is where a local Mylar install listens by default.
const DefaultMylarURL = "http://localhost:8090"

// comic id keys Mylar has used across versions
var comicIDKeys = []string{"ComicID", "comicid", "comic_id"}

// MylarService implements [TargetCatalog] against the Mylar API.
type MylarService struct {
	apiKey  string
	baseURL string
	client  *apiClient
}

// NewMylarService creates a client. An empty baseURL selects [DefaultMylarURL].
func NewMylarService(apiKey, baseURL string, opts ...Option) *MylarService {
	if baseURL == "" {
		baseURL = DefaultMylarURL
	}
	return &MylarService{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newAPIClient(opts...),
	}
}

// Name returns the name of the catalog.
func (s *MylarService) Name() string { return "Mylar" }

// command runs one Mylar API command and returns the raw body after checking for error replies.
// retry is only safe for reads.
func (s *MylarService) command(ctx context.Context, cmd string, params url.Values, retry bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("cmd", cmd)
	params.Set("apikey", s.apiKey)

	var body []byte
	if err := s.client.getJSON(ctx, s.baseURL+"/api", params, &body, retry); err != nil {
		return nil, err
	}
	if err := mylarReplyError(body); err != nil {
		return nil, err
	}
	return body, nil
}

// mylarReplyError inspects a 200 response for Mylar's in-band error forms.
func mylarReplyError(body []byte) error {
	text := strings.TrimSpace(string(body))
	lower := strings.ToLower(text)

	var reply struct {
		Success *bool `json:"success"`
		Error   any   `json:"error"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		switch {
		case strings.Contains(lower, "api key"):
			return fmt.Errorf("%w: mylar: %s", shared.ErrAuth, truncate(text, maxErrorBody))
		case strings.HasPrefix(lower, "error"):
			return fmt.Errorf("mylar: %s", truncate(text, maxErrorBody))
		}
		return nil
	}
	if reply.Success == nil || *reply.Success {
		return nil
	}

	msg := errorMessage(reply.Error)
	switch m := strings.ToLower(msg); {
	case strings.Contains(m, "api key"), strings.Contains(m, "apikey"):
		return fmt.Errorf("%w: mylar: %s", shared.ErrAuth, msg)
	case strings.Contains(m, "already"), strings.Contains(m, "exists"):
		return fmt.Errorf("%w: mylar: %s", shared.ErrConflict, msg)
	default:
		return fmt.Errorf("mylar: %s", msg)
	}
}

func errorMessage(v any) string {
	switch e := v.(type) {
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	if v == nil {
		return "request failed"
	}
	return fmt.Sprint(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ExistingSeries returns the series Mylar already tracks, read once from getIndex.
func (s *MylarService) ExistingSeries(ctx context.Context) (models.ExistingSet, error) {
	body, err := s.command(ctx, "getIndex", nil, true)
	if err != nil {
		return nil, fmt.Errorf("mylar index: %w", err)
	}

	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("%w: mylar index: %v", shared.ErrFetch, err)
	}

	items := root
	if obj, ok := root.(map[string]any); ok {
		for _, key := range []string{"data", "results"} {
			if v, ok := obj[key]; ok && v != nil {
				items = v
				break
			}
		}
	}

	existing := models.NewExistingSet()
	harvestComicIDs(items, existing)
	return existing, nil
}

// harvestComicIDs walks nested objects and lists collecting comic ids.
func harvestComicIDs(v any, into models.ExistingSet) {
	switch node := v.(type) {
	case map[string]any:
		for _, key := range comicIDKeys {
			if id, ok := normalizeComicID(node[key]); ok {
				into.Add(id)
				break
			}
		}
	case []any:
		for _, item := range node {
			harvestComicIDs(item, into)
		}
	}
}

// normalizeComicID maps Mylar's stored ids ("1443", 1443 or "4050-1443") onto a [models.TargetSeriesID].
func normalizeComicID(v any) (models.TargetSeriesID, bool) {
	var raw string
	switch id := v.(type) {
	case string:
		raw = strings.TrimSpace(id)
	case float64:
		raw = strconv.FormatInt(int64(id), 10)
	default:
		return "", false
	}
	if raw == "" {
		return "", false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return models.NewTargetSeriesID(n), true
	}
	return models.TargetSeriesID(raw), true
}

// AddSeries asks Mylar to track id. Adds are never retried.
func (s *MylarService) AddSeries(ctx context.Context, id models.TargetSeriesID, name string) error {
	params := url.Values{}
	params.Set("ComicID", id.String())

	if _, err := s.command(ctx, "addComic", params, false); err != nil {
		return fmt.Errorf("%w: %s (%s): %w", shared.ErrTargetWrite, id, name, err)
	}
	return nil
}
