package crawler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Site page-count defaults applied when a site omits them.
const (
	DefaultDailyPages    = 1
	DefaultBackfillPages = 5
)

// PagePlaceholder is replaced by the page number in SiteConfig.PagePattern.
const PagePlaceholder = "{page}"

// ErrInvalidSite is wrapped by SiteConfig.Validate failures.
var ErrInvalidSite = errors.New("invalid site config")

// SiteConfig is the declarative extraction rule for one job-listing site.
type SiteConfig struct {
	Name             string   `mapstructure:"name" json:"name"`
	URL              string   `mapstructure:"url" json:"url"`
	PagePattern      string   `mapstructure:"page_pattern" json:"page_pattern,omitempty"`
	ItemSelector     string   `mapstructure:"item_selector" json:"item_selector"`
	TitleSelector    string   `mapstructure:"title_selector" json:"title_selector"`
	LinkSelector     string   `mapstructure:"link_selector" json:"link_selector"`
	DateSelector     string   `mapstructure:"date_selector" json:"date_selector,omitempty"`
	DateAttr         string   `mapstructure:"date_attr" json:"date_attr,omitempty"`
	TitleKeywordsAll []string `mapstructure:"title_keywords_all" json:"title_keywords_all,omitempty"`
	YearFilter       int      `mapstructure:"year_filter" json:"year_filter,omitempty"`
	DailyPages       int      `mapstructure:"daily_pages" json:"daily_pages"`
	BackfillPages    int      `mapstructure:"backfill_pages" json:"backfill_pages"`
}

// Validate reports the first missing required field.
func (s SiteConfig) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"name", s.Name},
		{"url", s.URL},
		{"item_selector", s.ItemSelector},
		{"title_selector", s.TitleSelector},
		{"link_selector", s.LinkSelector},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: missing %q", ErrInvalidSite, field.key)
		}
	}
	if s.DailyPages < 0 || s.BackfillPages < 0 {
		return fmt.Errorf("%w: page counts must be >= 0", ErrInvalidSite)
	}
	return nil
}

// WithDefaults fills page counts that were left unset. An explicit zero
// counts as unset.
func (s SiteConfig) WithDefaults() SiteConfig {
	if s.DailyPages == 0 {
		s.DailyPages = DefaultDailyPages
	}
	if s.BackfillPages == 0 {
		s.BackfillPages = DefaultBackfillPages
	}
	return s
}

// PageCount picks the page depth for the run mode.
func (s SiteConfig) PageCount(backfill bool) int {
	s = s.WithDefaults()
	if backfill {
		return s.BackfillPages
	}
	return s.DailyPages
}

// PageURL formats the pattern URL for page n.
func (s SiteConfig) PageURL(n int) string {
	return strings.ReplaceAll(s.PagePattern, PagePlaceholder, strconv.Itoa(n))
}

// Posting is one extracted job listing before persistence.
type Posting struct {
	Site     string `json:"site"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	PostedAt string `json:"posted_at,omitempty"`
}

// JobRow is a stored posting.
type JobRow struct {
	ID           int64  `json:"id" db:"id"`
	Site         string `json:"site" db:"site"`
	Title        string `json:"title" db:"title"`
	URL          string `json:"url" db:"url"`
	PostedAt     string `json:"posted_at,omitempty" db:"posted_at"`
	FirstSeenUTC int64  `json:"first_seen_utc" db:"first_seen_utc"`
}

// Posting strips the storage-only fields.
func (r JobRow) Posting() Posting {
	return Posting{Site: r.Site, Title: r.Title, URL: r.URL, PostedAt: r.PostedAt}
}

// InsertOutcome is the per-row result of an idempotent insert.
type InsertOutcome int

// Insert outcomes.
const (
	InsertInserted InsertOutcome = iota
	InsertDuplicate
)

func (o InsertOutcome) String() string {
	switch o {
	case InsertInserted:
		return "inserted"
	case InsertDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Filter selects stored rows. Zero values disable the matching predicate.
type Filter struct {
	Year     int
	TitleAny []string
	TitleAll []string
	Limit    int
}

// Normalized trims and lower-cases the title terms and drops empty ones.
func (f Filter) Normalized() Filter {
	f.TitleAny = CleanTerms(f.TitleAny)
	f.TitleAll = CleanTerms(f.TitleAll)
	return f
}

// Matches applies the filter predicates (not the limit) to a row.
func (f Filter) Matches(row JobRow) bool {
	f = f.Normalized()
	if f.Year != 0 && !strings.HasPrefix(row.PostedAt, strconv.Itoa(f.Year)+"-") {
		return false
	}
	title := strings.ToLower(row.Title)
	if len(f.TitleAny) > 0 {
		found := false
		for _, term := range f.TitleAny {
			if strings.Contains(title, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, term := range f.TitleAll {
		if !strings.Contains(title, term) {
			return false
		}
	}
	return true
}

// CleanTerms trims and lower-cases terms, discarding empty ones.
func CleanTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SplitTerms splits a pipe-delimited term list.
func SplitTerms(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return CleanTerms(strings.Split(raw, "|"))
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Body       []byte
}
