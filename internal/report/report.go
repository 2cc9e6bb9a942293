// Package report renders postings into the bounded text digest that gets
// delivered after a run.
package report

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/jobwatch/internal/crawler"
)

// Report text constants.
const (
	DefaultMaxLength = 3500
	EmptyReport      = "No matching jobs."
	TruncatedMarker  = "\n\n…[truncated]"
)

// Formatter renders postings as a Markdown link list.
type Formatter struct {
	// MaxLength caps the output in runes; zero means DefaultMaxLength.
	MaxLength int
}

// New creates a Formatter with the given limit.
func New(maxLength int) *Formatter {
	return &Formatter{MaxLength: maxLength}
}

// Format renders postings in the given order. The result never exceeds
// MaxLength runes and ends with TruncatedMarker when it was cut.
func (f *Formatter) Format(postings []crawler.Posting) string {
	if len(postings) == 0 {
		return EmptyReport
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Jobs found (%d):\n\n", len(postings))
	for i, p := range postings {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- [%s](%s)", p.Title, p.URL)
		if p.PostedAt != "" {
			fmt.Fprintf(&sb, " (%s)", firstRunes(p.PostedAt, 10))
		}
	}
	return truncate(sb.String(), f.maxLength())
}

func (f *Formatter) maxLength() int {
	if f == nil || f.MaxLength <= 0 {
		return DefaultMaxLength
	}
	return f.MaxLength
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	marker := []rune(TruncatedMarker)
	keep := maxLen - len(marker)
	if keep < 0 {
		return string(marker[:maxLen])
	}
	return string(runes[:keep]) + TruncatedMarker
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
