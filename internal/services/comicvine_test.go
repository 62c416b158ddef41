package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/cv2mylar/internal/models"
	"github.com/desertthunder/cv2mylar/internal/shared"
)

// comicVineStub serves character/, issues/ and volume/ for a fixed set of characters.
type comicVineStub struct {
	t       *testing.T
	credits map[string][]int64 // character number -> volume_credits ids
	issues  map[string][]int64 // character number -> volume id per issue
	volumes map[int64]map[string]any
	failAt  map[int]bool // issue offsets answered with 500
	hits    atomic.Int32
	offsets []int
}

func (s *comicVineStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	q := r.URL.Query()
	if q.Get("api_key") != "cv-key" || q.Get("format") != "json" {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"status_code": 100, "error": "Invalid API Key"})
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/character/4005-"):
		char := strings.Trim(strings.TrimPrefix(r.URL.Path, "/character/4005-"), "/")
		if q.Get("field_list") != "id,name,volume_credits" {
			s.t.Errorf("unexpected field_list %q", q.Get("field_list"))
		}
		ids, ok := s.credits[char]
		if !ok {
			json.NewEncoder(w).Encode(map[string]any{"status_code": 101, "error": "Object Not Found"})
			return
		}
		credits := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			credits = append(credits, map[string]any{"id": id, "name": fmt.Sprintf("Volume %d", id)})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status_code": 1,
			"error":       "OK",
			"results":     map[string]any{"id": char, "name": "Character " + char, "volume_credits": credits},
		})
	case r.URL.Path == "/issues/":
		filter := q.Get("filter")
		if strings.Contains(filter, ",volume:") {
			s.appearances(w, filter)
			return
		}
		char := strings.TrimPrefix(filter, "character_credits:")
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		s.offsets = append(s.offsets, offset)
		if s.failAt[offset] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		all := s.issues[char]

		var results []map[string]any
		for i := offset; i < len(all) && i < offset+limit; i++ {
			results = append(results, map[string]any{
				"id":     i + 1,
				"volume": map[string]any{"id": all[i], "name": fmt.Sprintf("Volume %d", all[i])},
			})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status_code":             1,
			"error":                   "OK",
			"number_of_total_results": len(all),
			"results":                 results,
		})
	case strings.HasPrefix(r.URL.Path, "/volume/4050-"):
		id, _ := strconv.ParseInt(strings.Trim(strings.TrimPrefix(r.URL.Path, "/volume/4050-"), "/"), 10, 64)
		vol, ok := s.volumes[id]
		if !ok {
			json.NewEncoder(w).Encode(map[string]any{"status_code": 101, "error": "Object Not Found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status_code": 1, "error": "OK", "results": vol})
	default:
		http.NotFound(w, r)
	}
}

func (s *comicVineStub) appearances(w http.ResponseWriter, filter string) {
	var char string
	var vol int64
	fmt.Sscanf(strings.Replace(filter, ",volume:", " ", 1), "character_credits:%s %d", &char, &vol)
	count := 0
	for _, id := range s.issues[char] {
		if id == vol {
			count++
		}
	}
	json.NewEncoder(w).Encode(map[string]any{"status_code": 1, "error": "OK", "number_of_total_results": count, "results": []any{}})
}

func newComicVineStub(t *testing.T) (*comicVineStub, *httptest.Server) {
	issues := make([]int64, 0, 150)
	for i := range 150 {
		issues = append(issues, int64(1000+i/10)) // 15 volumes, 10 issues each
	}
	stub := &comicVineStub{
		t:       t,
		credits: map[string][]int64{"1443": {1000, 1001, 1002}, "2048": {9000, 9000, 9001}},
		issues:  map[string][]int64{"1443": issues, "2048": {9000, 9000, 9001}},
		volumes: map[int64]map[string]any{
			1000: {"id": 1000, "name": "The Amazing Spider-Man", "publisher": map[string]any{"id": 31, "name": "Marvel"}, "start_year": "1963", "count_of_issues": 20},
			1001: {"id": 1001, "name": "Untold Tales", "publisher": nil, "start_year": nil, "count_of_issues": 10},
		},
	}
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)
	return stub, server
}

func TestComicVineService(t *testing.T) {
	characters := []models.CharacterID{"4005-1443", "4005-2048"}

	stream := func(t *testing.T, svc *ComicVineService) ([]models.Cursor, []models.Volume) {
		t.Helper()
		var cursors []models.Cursor
		var volumes []models.Volume
		cursor := &models.Cursor{}
		for cursor != nil {
			page, err := svc.FetchVolumes(context.Background(), characters, *cursor)
			if err != nil {
				t.Fatalf("FetchVolumes(%+v) error = %v", *cursor, err)
			}
			cursors = append(cursors, *cursor)
			volumes = append(volumes, page.Volumes...)
			cursor = page.Next
		}
		return cursors, volumes
	}

	t.Run("streams credits then issue pages across characters", func(t *testing.T) {
		_, server := newComicVineStub(t)
		svc := NewComicVineService("cv-key", server.URL, WithBackOff(noWait))

		cursors, volumes := stream(t, svc)

		want := []models.Cursor{
			{},
			{Stage: models.StageIssues},
			{Offset: 100, Stage: models.StageIssues},
			{Character: 1},
			{Character: 1, Stage: models.StageIssues},
		}
		if len(cursors) != len(want) {
			t.Fatalf("expected cursors %v, got %v", want, cursors)
		}
		for i := range want {
			if cursors[i] != want[i] {
				t.Errorf("cursor %d = %+v, want %+v", i, cursors[i], want[i])
			}
		}

		// 3 credits + 15 from issues, then 2 credits + 2 from issues
		if len(volumes) != 22 {
			t.Errorf("expected 22 volumes, got %d", len(volumes))
		}
		if volumes[0].ID != 1000 || volumes[0].CharacterID != "4005-1443" {
			t.Errorf("unexpected first volume %+v", volumes[0])
		}
		if volumes[len(volumes)-1].CharacterID != "4005-2048" {
			t.Errorf("expected last volume from second character, got %+v", volumes[len(volumes)-1])
		}
	})

	t.Run("credits only without issue fallback", func(t *testing.T) {
		stub, server := newComicVineStub(t)
		svc := NewComicVineService("cv-key", server.URL)
		svc.SetIssueFallback(false)

		cursors, volumes := stream(t, svc)

		if len(cursors) != 2 || cursors[1] != (models.Cursor{Character: 1}) {
			t.Errorf("expected one credits page per character, got %v", cursors)
		}
		if len(volumes) != 5 {
			t.Errorf("expected 5 distinct credited volumes, got %d", len(volumes))
		}
		if stub.hits.Load() != 2 {
			t.Errorf("expected 2 requests, got %d", stub.hits.Load())
		}
	})

	t.Run("bare character number reads prefixed credits", func(t *testing.T) {
		_, server := newComicVineStub(t)
		svc := NewComicVineService("cv-key", server.URL)

		page, err := svc.FetchVolumes(context.Background(), []models.CharacterID{"1443"}, models.Cursor{})
		if err != nil {
			t.Fatalf("FetchVolumes() error = %v", err)
		}
		if len(page.Volumes) != 3 || page.TotalResults != 3 {
			t.Errorf("expected 3 credited volumes, got %+v", page)
		}
	})

	t.Run("unknown character is a fetch error", func(t *testing.T) {
		_, server := newComicVineStub(t)
		svc := NewComicVineService("cv-key", server.URL)

		_, err := svc.FetchVolumes(context.Background(), []models.CharacterID{"4005-7"}, models.Cursor{})
		if !errors.Is(err, shared.ErrFetch) {
			t.Errorf("expected ErrFetch, got %v", err)
		}
	})

	t.Run("dedupes volumes within a page", func(t *testing.T) {
		_, server := newComicVineStub(t)
		svc := NewComicVineService("cv-key", server.URL)

		for _, cursor := range []models.Cursor{{Character: 1}, {Character: 1, Stage: models.StageIssues}} {
			page, err := svc.FetchVolumes(context.Background(), characters, cursor)
			if err != nil {
				t.Fatalf("FetchVolumes(%+v) error = %v", cursor, err)
			}
			if len(page.Volumes) != 2 {
				t.Errorf("%s: expected 2 distinct volumes, got %d", cursor, len(page.Volumes))
			}
		}
	})

	t.Run("each page costs one query", func(t *testing.T) {
		stub, server := newComicVineStub(t)
		budget := NewQueryBudget(2)
		svc := NewComicVineService("cv-key", server.URL, WithQueryBudget(budget))
		ctx := context.Background()

		if _, err := svc.FetchVolumes(ctx, characters, models.Cursor{}); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.FetchVolumes(ctx, characters, models.Cursor{Stage: models.StageIssues}); err != nil {
			t.Fatal(err)
		}
		_, err := svc.FetchVolumes(ctx, characters, models.Cursor{Offset: 100, Stage: models.StageIssues})
		if !errors.Is(err, shared.ErrBudgetExceeded) {
			t.Errorf("expected ErrBudgetExceeded, got %v", err)
		}
		if stub.hits.Load() != 2 {
			t.Errorf("expected 2 requests, got %d", stub.hits.Load())
		}
	})

	t.Run("invalid key is an auth error", func(t *testing.T) {
		_, server := newComicVineStub(t)
		svc := NewComicVineService("wrong", server.URL)

		_, err := svc.FetchVolumes(context.Background(), characters, models.Cursor{})
		if !errors.Is(err, shared.ErrAuth) {
			t.Errorf("expected ErrAuth, got %v", err)
		}
	})

	t.Run("status code 100 in body is an auth error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status_code": 100, "error": "Invalid API Key"}`))
		}))
		defer server.Close()

		svc := NewComicVineService("cv-key", server.URL)
		_, err := svc.FetchVolumes(context.Background(), characters, models.Cursor{})
		if !errors.Is(err, shared.ErrAuth) {
			t.Errorf("expected ErrAuth, got %v", err)
		}
	})

	t.Run("volume detail is cached", func(t *testing.T) {
		stub, server := newComicVineStub(t)
		svc := NewComicVineService("cv-key", server.URL)
		ctx := context.Background()

		detail, err := svc.FetchVolumeDetail(ctx, 1000)
		if err != nil {
			t.Fatalf("FetchVolumeDetail() error = %v", err)
		}
		if detail.PublisherName != "Marvel" || detail.PublisherID != "31" || detail.StartYear != 1963 || detail.IssueCount != 20 {
			t.Errorf("unexpected detail %+v", detail)
		}

		if _, err := svc.FetchVolumeDetail(ctx, 1000); err != nil {
			t.Fatal(err)
		}
		if stub.hits.Load() != 1 {
			t.Errorf("expected cached second lookup, got %d requests", stub.hits.Load())
		}
	})

	t.Run("unknown start year and publisher", func(t *testing.T) {
		_, server := newComicVineStub(t)
		svc := NewComicVineService("cv-key", server.URL)

		detail, err := svc.FetchVolumeDetail(context.Background(), 1001)
		if err != nil {
			t.Fatalf("FetchVolumeDetail() error = %v", err)
		}
		if detail.StartYear != 0 || detail.PublisherName != "" {
			t.Errorf("expected unknown year and publisher, got %+v", detail)
		}
	})

	t.Run("missing volume is a fetch error", func(t *testing.T) {
		_, server := newComicVineStub(t)
		svc := NewComicVineService("cv-key", server.URL)

		_, err := svc.FetchVolumeDetail(context.Background(), 4242)
		if !errors.Is(err, shared.ErrFetch) {
			t.Errorf("expected ErrFetch, got %v", err)
		}
	})

	t.Run("appearance stats", func(t *testing.T) {
		_, server := newComicVineStub(t)
		svc := NewComicVineService("cv-key", server.URL)

		stats, err := svc.FetchAppearanceStats(context.Background(), "4005-1443", 1000)
		if err != nil {
			t.Fatalf("FetchAppearanceStats() error = %v", err)
		}
		if stats.Appearances != 10 || stats.TotalIssues != 20 {
			t.Errorf("unexpected stats %+v", stats)
		}
		if stats.Ratio() != 0.5 {
			t.Errorf("expected ratio 0.5, got %v", stats.Ratio())
		}
	})

	t.Run("SkipPage", func(t *testing.T) {
		_, server := newComicVineStub(t)
		svc := NewComicVineService("cv-key", server.URL)
		issues := func(character, offset int) models.Cursor {
			return models.Cursor{Character: character, Offset: offset, Stage: models.StageIssues}
		}

		tests := []struct {
			name   string
			cursor models.Cursor
			want   *models.Cursor
		}{
			{name: "credits move to issues", cursor: models.Cursor{}, want: &models.Cursor{Stage: models.StageIssues}},
			{name: "unknown total advances one page", cursor: issues(0, 100), want: &models.Cursor{Offset: 200, Stage: models.StageIssues}},
			{name: "unknown total on the last character", cursor: issues(1, 0), want: &models.Cursor{Character: 1, Offset: 100, Stage: models.StageIssues}},
		}
		for _, tt := range tests {
			if next := svc.SkipPage(characters, tt.cursor); next == nil || *next != *tt.want {
				t.Errorf("%s: SkipPage(%+v) = %+v, want %+v", tt.name, tt.cursor, next, *tt.want)
			}
		}

		if _, err := svc.FetchVolumes(context.Background(), characters, issues(0, 0)); err != nil {
			t.Fatal(err)
		}
		if next := svc.SkipPage(characters, issues(0, 0)); next == nil || *next != issues(0, 100) {
			t.Errorf("known total should advance offset, got %+v", next)
		}
		if next := svc.SkipPage(characters, issues(0, 100)); next == nil || *next != (models.Cursor{Character: 1}) {
			t.Errorf("last page of a known total should move to the next character, got %+v", next)
		}

		svc.SetIssueFallback(false)
		if next := svc.SkipPage(characters, models.Cursor{Character: 1}); next != nil {
			t.Errorf("expected end of stream, got %+v", next)
		}
	})

	t.Run("skipped page with unknown total keeps paging", func(t *testing.T) {
		stub, server := newComicVineStub(t)
		stub.failAt = map[int]bool{100: true}
		svc := NewComicVineService("cv-key", server.URL, WithBackOff(noWait), WithMaxRetries(1))
		ctx := context.Background()
		cursor := models.Cursor{Offset: 100, Stage: models.StageIssues}

		if _, err := svc.FetchVolumes(ctx, characters, cursor); !errors.Is(err, shared.ErrTransientFetch) {
			t.Fatalf("expected ErrTransientFetch, got %v", err)
		}
		next := svc.SkipPage(characters, cursor)
		if next == nil || next.Character != 0 || next.Offset != 200 {
			t.Fatalf("expected the next page of the same character, got %+v", next)
		}

		page, err := svc.FetchVolumes(ctx, characters, *next)
		if err != nil {
			t.Fatalf("FetchVolumes(%+v) error = %v", *next, err)
		}
		if len(page.Volumes) != 0 || page.Next == nil || *page.Next != (models.Cursor{Character: 1}) {
			t.Errorf("page past the end should hand over to the next character, got %+v", page)
		}
		if fmt.Sprint(stub.offsets) != "[100 200]" {
			t.Errorf("expected offsets [100 200], got %v", stub.offsets)
		}
	})

	t.Run("cursor past the last character", func(t *testing.T) {
		stub, server := newComicVineStub(t)
		svc := NewComicVineService("cv-key", server.URL)

		page, err := svc.FetchVolumes(context.Background(), characters, models.Cursor{Character: 5})
		if err != nil || page.Next != nil || len(page.Volumes) != 0 {
			t.Errorf("expected empty terminal page, got %+v (%v)", page, err)
		}
		if stub.hits.Load() != 0 {
			t.Errorf("expected no request, got %d", stub.hits.Load())
		}
	})
}
