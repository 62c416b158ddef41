package filtering

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/cv2mylar/internal/models"
	"github.com/desertthunder/cv2mylar/internal/shared"
)

type stubProber struct {
	stats map[int64]models.AppearanceStats
	err   error
	calls int
}

func (p *stubProber) FetchAppearanceStats(ctx context.Context, character models.CharacterID, volumeID int64) (models.AppearanceStats, error) {
	p.calls++
	if p.err != nil {
		return models.AppearanceStats{}, p.err
	}
	return p.stats[volumeID], nil
}

func mustEngine(t *testing.T, cfg models.FilterConfig, prober AppearanceProber) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg, prober)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

var amazing = models.Volume{
	ID:            1443,
	Name:          "Amazing Spider-Man",
	PublisherName: "Marvel",
	PublisherID:   "31",
	StartYear:     1963,
	IssueCount:    800,
	CharacterID:   "4005-1443",
}

func TestEngineAcceptsClassicRun(t *testing.T) {
	engine := mustEngine(t, models.FilterConfig{
		PublisherAllow: []string{"Marvel"},
		StartYearMin:   1960,
		IssueCountMin:  10,
	}, nil)

	decision := engine.Evaluate(context.Background(), amazing)
	if !decision.Accepted {
		t.Errorf("expected accepted, got %+v", decision)
	}
}

func TestEngineEmptyConfigAcceptsEverything(t *testing.T) {
	prober := &stubProber{}
	engine := mustEngine(t, models.FilterConfig{}, prober)

	for _, v := range []models.Volume{{}, amazing, {ID: 1, Name: "x"}} {
		if !engine.Accepts(context.Background(), v) {
			t.Errorf("empty config rejected %+v", v)
		}
	}
	if engine.NeedsDetail() {
		t.Error("empty config should not need volume detail")
	}
	if prober.calls != 0 {
		t.Errorf("expected no appearance fetches, got %d", prober.calls)
	}
}

func TestEngineCriteria(t *testing.T) {
	tc := []struct {
		name   string
		cfg    models.FilterConfig
		volume models.Volume
		want   bool
		reason string
	}{
		{name: "publisher by name, any case", cfg: models.FilterConfig{PublisherAllow: []string{"marvel"}}, volume: amazing, want: true},
		{name: "publisher by bare id", cfg: models.FilterConfig{PublisherAllow: []string{"31"}}, volume: amazing, want: true},
		{name: "publisher by prefixed id", cfg: models.FilterConfig{PublisherAllow: []string{"4010-31"}}, volume: amazing, want: true},
		{name: "publisher not listed", cfg: models.FilterConfig{PublisherAllow: []string{"DC Comics"}}, volume: amazing, want: false, reason: "publisher"},
		{name: "publisher unknown", cfg: models.FilterConfig{PublisherAllow: []string{"Marvel"}}, volume: models.Volume{ID: 2, Name: "x"}, want: false, reason: "unknown"},
		{name: "deny regex, case-insensitive", cfg: models.FilterConfig{NameDenyRegex: "spider-man$"}, volume: amazing, want: false, reason: "deny"},
		{name: "deny regex misses", cfg: models.FilterConfig{NameDenyRegex: "ultimate"}, volume: amazing, want: true},
		{name: "allow regex matches", cfg: models.FilterConfig{NameAllowRegex: "^AMAZING"}, volume: amazing, want: true},
		{name: "allow regex misses", cfg: models.FilterConfig{NameAllowRegex: "^spectacular"}, volume: amazing, want: false, reason: "allow"},
		{name: "deny wins over allow", cfg: models.FilterConfig{NameAllowRegex: "spider", NameDenyRegex: "amazing"}, volume: amazing, want: false, reason: "deny"},
		{name: "year below minimum", cfg: models.FilterConfig{StartYearMin: 1990}, volume: amazing, want: false, reason: "start year 1963"},
		{name: "year at minimum", cfg: models.FilterConfig{StartYearMin: 1963}, volume: amazing, want: true},
		{name: "unknown year passes", cfg: models.FilterConfig{StartYearMin: 1990}, volume: models.Volume{ID: 3, Name: "x"}, want: true},
		{name: "too few issues", cfg: models.FilterConfig{IssueCountMin: 1000}, volume: amazing, want: false, reason: "800 issues"},
		{name: "appearance thresholds ignored without heavy sweep", cfg: models.FilterConfig{MinAppearances: 5}, volume: amazing, want: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			engine := mustEngine(t, tt.cfg, nil)
			decision := engine.Evaluate(context.Background(), tt.volume)
			if decision.Accepted != tt.want {
				t.Fatalf("Evaluate() = %+v, want accepted=%v", decision, tt.want)
			}
			if tt.reason != "" && !strings.Contains(decision.Reason, tt.reason) {
				t.Errorf("reason %q should mention %q", decision.Reason, tt.reason)
			}
		})
	}
}

func TestEngineOrder(t *testing.T) {
	engine := mustEngine(t, models.FilterConfig{
		PublisherAllow: []string{"DC Comics"},
		NameDenyRegex:  "amazing",
		StartYearMin:   2000,
	}, nil)

	decision := engine.Evaluate(context.Background(), amazing)
	if !strings.Contains(decision.Reason, "publisher") {
		t.Errorf("publisher check must run first, got %q", decision.Reason)
	}
}

func TestEngineHeavySweep(t *testing.T) {
	cfg := models.FilterConfig{HeavySweep: true, MinAppearances: 3, MinAppearanceRatio: 0.25}

	t.Run("passes both thresholds", func(t *testing.T) {
		prober := &stubProber{stats: map[int64]models.AppearanceStats{1443: {Appearances: 400, TotalIssues: 800}}}
		engine := mustEngine(t, cfg, prober)

		if !engine.Accepts(context.Background(), amazing) {
			t.Error("expected accepted")
		}
		if prober.calls != 1 {
			t.Errorf("expected one fetch, got %d", prober.calls)
		}
	})

	t.Run("too few appearances", func(t *testing.T) {
		prober := &stubProber{stats: map[int64]models.AppearanceStats{1443: {Appearances: 2, TotalIssues: 4}}}
		decision := mustEngine(t, cfg, prober).Evaluate(context.Background(), amazing)
		if decision.Accepted || !strings.Contains(decision.Reason, "appearances") {
			t.Errorf("unexpected decision %+v", decision)
		}
	})

	t.Run("ratio too low", func(t *testing.T) {
		prober := &stubProber{stats: map[int64]models.AppearanceStats{1443: {Appearances: 10, TotalIssues: 800}}}
		decision := mustEngine(t, cfg, prober).Evaluate(context.Background(), amazing)
		if decision.Accepted || !strings.Contains(decision.Reason, "ratio") {
			t.Errorf("unexpected decision %+v", decision)
		}
	})

	t.Run("cheap criteria short-circuit the fetch", func(t *testing.T) {
		prober := &stubProber{}
		c := cfg
		c.NameDenyRegex = "spider"
		engine := mustEngine(t, c, prober)

		if engine.Accepts(context.Background(), amazing) {
			t.Error("expected rejection")
		}
		if prober.calls != 0 {
			t.Errorf("expected no fetch, got %d", prober.calls)
		}
	})

	t.Run("fetch error is reported", func(t *testing.T) {
		prober := &stubProber{err: shared.ErrBudgetExceeded}
		decision := mustEngine(t, cfg, prober).Evaluate(context.Background(), amazing)
		if decision.Accepted || !errors.Is(decision.Err, shared.ErrBudgetExceeded) {
			t.Errorf("unexpected decision %+v", decision)
		}
	})

	t.Run("requires a prober", func(t *testing.T) {
		if _, err := NewEngine(cfg, nil); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestEngineInvalidRegex(t *testing.T) {
	for _, cfg := range []models.FilterConfig{{NameAllowRegex: "("}, {NameDenyRegex: "[a-"}} {
		if _, err := NewEngine(cfg, nil); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig for %+v, got %v", cfg, err)
		}
	}
}

func TestEngineNeedsDetail(t *testing.T) {
	tc := []struct {
		cfg  models.FilterConfig
		want bool
	}{
		{cfg: models.FilterConfig{NameDenyRegex: "x"}, want: false},
		{cfg: models.FilterConfig{PublisherAllow: []string{"Marvel"}}, want: true},
		{cfg: models.FilterConfig{StartYearMin: 1990}, want: true},
		{cfg: models.FilterConfig{IssueCountMin: 2}, want: true},
	}
	for _, tt := range tc {
		if got := mustEngine(t, tt.cfg, nil).NeedsDetail(); got != tt.want {
			t.Errorf("NeedsDetail(%+v) = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}
