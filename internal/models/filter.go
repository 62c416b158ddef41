package models

// FilterConfig holds the acceptance criteria for candidate volumes. The zero value accepts everything.
type FilterConfig struct {
	PublisherAllow     []string `json:"publisher_allow,omitempty"`      // publisher names or IDs ("Marvel", "4010-31")
	NameAllowRegex     string   `json:"name_allow_regex,omitempty"`     // volume name must match, case-insensitive
	NameDenyRegex      string   `json:"name_deny_regex,omitempty"`      // volume name must not match, case-insensitive
	StartYearMin       int      `json:"start_year_min,omitempty"`       // unknown years always pass
	IssueCountMin      int      `json:"issue_count_min,omitempty"`      // minimum count_of_issues
	MinAppearances     int      `json:"min_appearances,omitempty"`      // heavy sweep only
	MinAppearanceRatio float64  `json:"min_appearance_ratio,omitempty"` // heavy sweep only, 0..1
	HeavySweep         bool     `json:"heavy_sweep,omitempty"`          // enables appearance gating
}

// IsEmpty reports whether no criterion is configured.
func (f FilterConfig) IsEmpty() bool {
	return len(f.PublisherAllow) == 0 &&
		f.NameAllowRegex == "" &&
		f.NameDenyRegex == "" &&
		f.StartYearMin == 0 &&
		f.IssueCountMin == 0 &&
		!f.AppearanceGating()
}

// AppearanceGating reports whether the heavy appearance sweep will run.
func (f FilterConfig) AppearanceGating() bool {
	return f.HeavySweep && (f.MinAppearances > 0 || f.MinAppearanceRatio > 0)
}
