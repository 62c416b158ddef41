package shared

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/cv2mylar/internal/models"
)

//go:embed config.example.toml
var exampleConf []byte

// MaxQueryBudget is the ComicVine per-run query ceiling enforced server-side.
const MaxQueryBudget = 200

// Conflict policies for adds that the target rejects as duplicates.
const (
	ConflictSuccess = "success"
	ConflictError   = "error"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	ComicVine ComicVineConfig `toml:"comicvine"`
	Mylar     MylarConfig     `toml:"mylar"`
	Behavior  BehaviorConfig  `toml:"behavior"`
	Filters   FiltersConfig   `toml:"filters"`
	Paths     PathsConfig     `toml:"paths"`
	Database  DatabaseConfig  `toml:"database"`
}

// ComicVineConfig contains reference catalog settings.
type ComicVineConfig struct {
	APIKey       string `toml:"api_key"`
	UserAgent    string `toml:"user_agent"`
	CharacterIDs string `toml:"character_ids"`
	BaseURL      string `toml:"base_url"`
}

// MylarConfig contains target catalog settings.
type MylarConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// BehaviorConfig contains run behavior settings.
type BehaviorConfig struct {
	DryRun         bool    `toml:"dry_run"`
	LogLevel       string  `toml:"log_level"`
	RateDelay      float64 `toml:"rate_delay"`      // seconds
	RequestTimeout float64 `toml:"request_timeout"` // seconds
	QueryBudget    int     `toml:"query_budget"`
	MaxRetries     int     `toml:"max_retries"`
	ConflictPolicy string  `toml:"conflict_policy"`
	// Page through issues/ after reading a character's volume_credits
	UseIssueFallback bool `toml:"use_issue_fallback"`
}

// FiltersConfig contains volume acceptance criteria.
type FiltersConfig struct {
	PublisherAllow     StringList `toml:"publisher_allow"`
	NameAllowRegex     string     `toml:"name_allow_regex"`
	NameDenyRegex      string     `toml:"name_deny_regex"`
	StartYearMin       int        `toml:"start_year_min"`
	IssueCountMin      int        `toml:"count_of_issues_min"`
	HeavySweep         bool       `toml:"heavy_sweep"`
	MinAppearances     int        `toml:"min_appearances_in_volume"`
	MinAppearanceRatio float64    `toml:"min_appearance_ratio"`
}

// PathsConfig contains local state locations.
type PathsConfig struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// DatabaseConfig contains run ledger connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StringList decodes from either a TOML array or a "|"-separated string.
type StringList []string

// UnmarshalTOML implements [toml.Unmarshaler].
func (l *StringList) UnmarshalTOML(v any) error {
	switch value := v.(type) {
	case string:
		*l = splitList(value)
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string list item, got %T", item)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*l = out
	default:
		return fmt.Errorf("expected string or array, got %T", v)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// ResolveConfig loads the file at path when it exists (defaults otherwise) and applies environment overrides.
func ResolveConfig(path string, lookup func(string) (string, bool)) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := LoadConfig(path)
			if err != nil {
				return nil, err
			}
			config = loaded
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := config.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: config file already exists at %s", os.ErrExist, path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// envBinding ties a config key to its scoped environment variable and any legacy aliases.
type envBinding struct {
	names []string
	set   func(c *Config, raw string) error
}

var envBindings = []envBinding{
	{[]string{"COMICVINE_API_KEY"}, func(c *Config, v string) error { c.ComicVine.APIKey = v; return nil }},
	{[]string{"COMICVINE_USER_AGENT"}, func(c *Config, v string) error { c.ComicVine.UserAgent = v; return nil }},
	{[]string{"COMICVINE_CHARACTER_IDS", "SPIDEY_CHARACTER_IDS"}, func(c *Config, v string) error { c.ComicVine.CharacterIDs = v; return nil }},
	{[]string{"COMICVINE_BASE_URL"}, func(c *Config, v string) error { c.ComicVine.BaseURL = v; return nil }},
	{[]string{"MYLAR_BASE_URL"}, func(c *Config, v string) error { c.Mylar.BaseURL = v; return nil }},
	{[]string{"MYLAR_API_KEY"}, func(c *Config, v string) error { c.Mylar.APIKey = v; return nil }},
	{[]string{"BEHAVIOR_DRY_RUN", "DRY_RUN"}, func(c *Config, v string) error { return setBool(&c.Behavior.DryRun, v) }},
	{[]string{"BEHAVIOR_LOG_LEVEL", "LOG_LEVEL"}, func(c *Config, v string) error { c.Behavior.LogLevel = v; return nil }},
	{[]string{"BEHAVIOR_RATE_DELAY", "CV_RATE_DELAY"}, func(c *Config, v string) error { return setFloat(&c.Behavior.RateDelay, v) }},
	{[]string{"BEHAVIOR_REQUEST_TIMEOUT", "REQUEST_TIMEOUT"}, func(c *Config, v string) error { return setFloat(&c.Behavior.RequestTimeout, v) }},
	{[]string{"BEHAVIOR_QUERY_BUDGET"}, func(c *Config, v string) error { return setInt(&c.Behavior.QueryBudget, v) }},
	{[]string{"BEHAVIOR_MAX_RETRIES"}, func(c *Config, v string) error { return setInt(&c.Behavior.MaxRetries, v) }},
	{[]string{"BEHAVIOR_CONFLICT_POLICY"}, func(c *Config, v string) error { c.Behavior.ConflictPolicy = v; return nil }},
	{[]string{"BEHAVIOR_USE_ISSUE_FALLBACK", "USE_ISSUE_FALLBACK"}, func(c *Config, v string) error { return setBool(&c.Behavior.UseIssueFallback, v) }},
	{[]string{"FILTERS_PUBLISHER_ALLOW", "PUBLISHER_ALLOW"}, func(c *Config, v string) error { c.Filters.PublisherAllow = splitList(v); return nil }},
	{[]string{"FILTERS_NAME_ALLOW_REGEX", "NAME_ALLOW_REGEX"}, func(c *Config, v string) error { c.Filters.NameAllowRegex = v; return nil }},
	{[]string{"FILTERS_NAME_DENY_REGEX", "NAME_DENY_REGEX"}, func(c *Config, v string) error { c.Filters.NameDenyRegex = v; return nil }},
	{[]string{"FILTERS_START_YEAR_MIN", "START_YEAR_MIN"}, func(c *Config, v string) error { return setInt(&c.Filters.StartYearMin, v) }},
	{[]string{"FILTERS_COUNT_OF_ISSUES_MIN", "COUNT_OF_ISSUES_MIN"}, func(c *Config, v string) error { return setInt(&c.Filters.IssueCountMin, v) }},
	{[]string{"FILTERS_HEAVY_SWEEP", "HEAVY_SWEEP"}, func(c *Config, v string) error { return setBool(&c.Filters.HeavySweep, v) }},
	{[]string{"FILTERS_MIN_APPEARANCES_IN_VOLUME", "MIN_APPEARANCES_IN_VOLUME"}, func(c *Config, v string) error { return setInt(&c.Filters.MinAppearances, v) }},
	{[]string{"FILTERS_MIN_APPEARANCE_RATIO", "MIN_APPEARANCE_RATIO"}, func(c *Config, v string) error { return setFloat(&c.Filters.MinAppearanceRatio, v) }},
	{[]string{"PATHS_STATE_DIR", "STATE_DIR"}, func(c *Config, v string) error { c.Paths.StateDir = v; return nil }},
	{[]string{"PATHS_LOG_DIR", "LOG_DIR"}, func(c *Config, v string) error { c.Paths.LogDir = v; return nil }},
	{[]string{"DATABASE_PATH"}, func(c *Config, v string) error { c.Database.Path = v; return nil }},
}

// ApplyEnv overrides file values with environment variables.
//
// The scoped name (SECTION_KEY) wins over legacy aliases; empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		for _, name := range b.names {
			raw, ok := lookup(name)
			if !ok || strings.TrimSpace(raw) == "" {
				continue
			}
			if err := b.set(c, strings.TrimSpace(raw)); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
			}
			break
		}
	}
	return nil
}

// Validate checks credentials and value ranges before a run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ComicVine.APIKey) == "" {
		return fmt.Errorf("%w: comicvine.api_key (set COMICVINE_API_KEY)", ErrMissingCredentials)
	}
	if strings.TrimSpace(c.Mylar.APIKey) == "" {
		return fmt.Errorf("%w: mylar.api_key (set MYLAR_API_KEY)", ErrMissingCredentials)
	}
	if len(c.Characters()) == 0 {
		return fmt.Errorf("%w: comicvine.character_ids is empty", ErrInvalidConfig)
	}
	if c.Behavior.RateDelay < 0 {
		return fmt.Errorf("%w: behavior.rate_delay must not be negative", ErrInvalidConfig)
	}
	if c.Behavior.RequestTimeout <= 0 {
		return fmt.Errorf("%w: behavior.request_timeout must be positive", ErrInvalidConfig)
	}
	if c.Behavior.QueryBudget <= 0 || c.Behavior.QueryBudget > MaxQueryBudget {
		return fmt.Errorf("%w: behavior.query_budget must be between 1 and %d", ErrInvalidConfig, MaxQueryBudget)
	}
	if c.Behavior.MaxRetries <= 0 {
		return fmt.Errorf("%w: behavior.max_retries must be positive", ErrInvalidConfig)
	}
	switch c.Behavior.ConflictPolicy {
	case ConflictSuccess, ConflictError:
	default:
		return fmt.Errorf("%w: behavior.conflict_policy must be %q or %q", ErrInvalidConfig, ConflictSuccess, ConflictError)
	}
	if _, err := ParseLevel(c.Behavior.LogLevel); err != nil {
		return err
	}
	for key, expr := range map[string]string{
		"filters.name_allow_regex": c.Filters.NameAllowRegex,
		"filters.name_deny_regex":  c.Filters.NameDenyRegex,
	} {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
	}
	if c.Filters.StartYearMin < 0 || c.Filters.IssueCountMin < 0 || c.Filters.MinAppearances < 0 {
		return fmt.Errorf("%w: filter thresholds must not be negative", ErrInvalidConfig)
	}
	if c.Filters.MinAppearanceRatio < 0 || c.Filters.MinAppearanceRatio > 1 {
		return fmt.Errorf("%w: filters.min_appearance_ratio must be between 0 and 1", ErrInvalidConfig)
	}
	return nil
}

// Characters returns the configured character ids in order.
func (c *Config) Characters() []models.CharacterID {
	return models.ParseCharacterIDs(c.ComicVine.CharacterIDs)
}

// FilterConfig builds the run's immutable filter criteria.
func (c *Config) FilterConfig() models.FilterConfig {
	return models.FilterConfig{
		PublisherAllow:     append([]string(nil), c.Filters.PublisherAllow...),
		NameAllowRegex:     c.Filters.NameAllowRegex,
		NameDenyRegex:      c.Filters.NameDenyRegex,
		StartYearMin:       c.Filters.StartYearMin,
		IssueCountMin:      c.Filters.IssueCountMin,
		MinAppearances:     c.Filters.MinAppearances,
		MinAppearanceRatio: c.Filters.MinAppearanceRatio,
		HeavySweep:         c.Filters.HeavySweep,
	}
}

// RateDelay returns the minimum spacing between ComicVine requests.
func (c *Config) RateDelay() time.Duration {
	return time.Duration(c.Behavior.RateDelay * float64(time.Second))
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Behavior.RequestTimeout * float64(time.Second))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setBool(dst *bool, raw string) error {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		return fmt.Errorf("not a boolean: %q", raw)
	}
	return nil
}

func setInt(dst *int, raw string) error {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, raw string) error {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
