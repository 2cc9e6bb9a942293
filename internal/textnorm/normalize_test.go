package textnorm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "Helicopter Pilot", "Helicopter Pilot"},
		{"collapse whitespace", "  Senior\t\tPilot \n\n Australia  ", "Senior Pilot Australia"},
		{"newline separates words", "Pilot\nAustralia", "Pilot Australia"},
		{"zero width and bidi", "Pi\u200blot\u200e \u202aAustralia\u202c\u200f", "Pilot Australia"},
		{"control chars", "Line\x00one\x07\x7f", "Lineone"},
		{"nfkc fullwidth", "\uff30\uff49\uff4c\uff4f\uff54", "Pilot"},
		{"nfkc ligature", "\ufb01re crew", "fire crew"},
		{"composes accent", "Cafe\u0301", "Caf\u00e9"},
		{"composes across stripped char", "Cafe\u200b\u0301", "Caf\u00e9"},
		{"non breaking space", "Pilot\u00a0-\u00a0NZ", "Pilot - NZ"},
		{"only whitespace", " \n\t ", ""},
		{"invalid utf8", "Pilot\xff", "Pilot\ufffd"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"  Senior\t\tPilot \n\n Australia  ",
		"Pi\u200blot\u200e \u202aAustralia\u202c",
		"\uff30\uff49\uff4c\uff4f\uff54 \ufb01re",
		"Cafe\u200b\u0301 \u2460 \u00bd",
		"e \u0301 x",
		"a\x00b\x1fc\x7fd",
		"Pilot\xff\xfe",
		"\u3000ideographic\u3000space\u3000",
	}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "input %q", in)
	}
}
