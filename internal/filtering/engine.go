package filtering

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/desertthunder/cv2mylar/internal/models"
	"github.com/desertthunder/cv2mylar/internal/shared"
)

// AppearanceProber fetches per-volume appearance counts for the heavy sweep.
type AppearanceProber interface {
	FetchAppearanceStats(ctx context.Context, character models.CharacterID, volumeID int64) (models.AppearanceStats, error)
}

// Decision is the outcome of evaluating one volume.
//
// Err is set when a criterion could not be evaluated (the appearance fetch failed); Accepted is false then.
type Decision struct {
	Accepted bool
	Reason   string
	Err      error
}

func accept() Decision { return Decision{Accepted: true, Reason: "accepted"} }

func reject(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Engine evaluates volumes against an immutable [models.FilterConfig].
type Engine struct {
	cfg       models.FilterConfig
	publisher map[string]struct{}
	nameAllow *regexp.Regexp
	nameDeny  *regexp.Regexp
	prober    AppearanceProber
}

// NewEngine compiles cfg. The prober is required only when appearance gating is enabled.
func NewEngine(cfg models.FilterConfig, prober AppearanceProber) (*Engine, error) {
	e := &Engine{cfg: cfg, prober: prober}

	if len(cfg.PublisherAllow) > 0 {
		e.publisher = make(map[string]struct{}, len(cfg.PublisherAllow)*2)
		for _, entry := range cfg.PublisherAllow {
			entry = strings.ToLower(strings.TrimSpace(entry))
			if entry == "" {
				continue
			}
			e.publisher[entry] = struct{}{}
			// "4010-31" also matches the bare publisher id
			if prefix, id, ok := strings.Cut(entry, "-"); ok && isDigits(prefix) && isDigits(id) {
				e.publisher[id] = struct{}{}
			}
		}
	}

	var err error
	if e.nameAllow, err = compile(cfg.NameAllowRegex); err != nil {
		return nil, fmt.Errorf("%w: name allow regex: %v", shared.ErrInvalidConfig, err)
	}
	if e.nameDeny, err = compile(cfg.NameDenyRegex); err != nil {
		return nil, fmt.Errorf("%w: name deny regex: %v", shared.ErrInvalidConfig, err)
	}

	if cfg.AppearanceGating() && prober == nil {
		return nil, fmt.Errorf("%w: heavy sweep requires an appearance source", shared.ErrInvalidConfig)
	}
	return e, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func compile(expr string) (*regexp.Regexp, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	return regexp.Compile("(?i)" + expr)
}

// Config returns the criteria the engine was built with.
func (e *Engine) Config() models.FilterConfig { return e.cfg }

// NeedsDetail reports whether any criterion reads fields only the volume detail provides.
func (e *Engine) NeedsDetail() bool {
	return len(e.publisher) > 0 || e.cfg.StartYearMin > 0 || e.cfg.IssueCountMin > 0
}

// Accepts reports whether v passes every criterion.
func (e *Engine) Accepts(ctx context.Context, v models.Volume) bool {
	return e.Evaluate(ctx, v).Accepted
}

// Evaluate applies the criteria to v in order and returns the first rejection, if any.
func (e *Engine) Evaluate(ctx context.Context, v models.Volume) Decision {
	if len(e.publisher) > 0 && !e.publisherAllowed(v) {
		return reject("publisher %q not allowed", publisherLabel(v))
	}
	if e.nameDeny != nil && e.nameDeny.MatchString(v.Name) {
		return reject("name matches deny pattern")
	}
	if e.nameAllow != nil && !e.nameAllow.MatchString(v.Name) {
		return reject("name does not match allow pattern")
	}
	if floor := e.cfg.StartYearMin; floor > 0 && v.StartYear > 0 && v.StartYear < floor {
		return reject("start year %d before %d", v.StartYear, floor)
	}
	if floor := e.cfg.IssueCountMin; floor > 0 && v.IssueCount < floor {
		return reject("%d issues, need %d", v.IssueCount, floor)
	}
	if e.cfg.AppearanceGating() {
		return e.gate(ctx, v)
	}
	return accept()
}

func (e *Engine) publisherAllowed(v models.Volume) bool {
	if name := strings.ToLower(strings.TrimSpace(v.PublisherName)); name != "" {
		if _, ok := e.publisher[name]; ok {
			return true
		}
	}
	if id := strings.ToLower(strings.TrimSpace(v.PublisherID)); id != "" {
		if _, ok := e.publisher[id]; ok {
			return true
		}
	}
	return false
}

func publisherLabel(v models.Volume) string {
	switch {
	case v.PublisherName != "":
		return v.PublisherName
	case v.PublisherID != "":
		return v.PublisherID
	default:
		return "unknown"
	}
}

func (e *Engine) gate(ctx context.Context, v models.Volume) Decision {
	stats, err := e.prober.FetchAppearanceStats(ctx, v.CharacterID, v.ID)
	if err != nil {
		return Decision{Reason: "appearance stats unavailable", Err: err}
	}

	if floor := e.cfg.MinAppearances; floor > 0 && stats.Appearances < floor {
		return reject("%d appearances, need %d", stats.Appearances, floor)
	}
	if floor := e.cfg.MinAppearanceRatio; floor > 0 && stats.Ratio() < floor {
		return reject("appearance ratio %.2f below %.2f", stats.Ratio(), floor)
	}
	return accept()
}
