package extract

import (
	"errors"
	"strings"
	"time"
)

// ErrNotISO8601 is returned by ParseISO for unrecognized timestamps.
var ErrNotISO8601 = errors.New("not an ISO-8601 timestamp")

// isoLayouts cover a date, a date with a T or space separated time and an
// optional numeric offset. Fractional seconds are accepted by time.Parse
// after the seconds field without being spelled out in the layout.
var isoLayouts = buildISOLayouts()

func buildISOLayouts() []string {
	layouts := []string{"2006-01-02"}
	for _, sep := range []string{"T", " "} {
		for _, clock := range []string{"15:04:05", "15:04"} {
			for _, zone := range []string{"", "-07:00", "-0700"} {
				layouts = append(layouts, "2006-01-02"+sep+clock+zone)
			}
		}
	}
	return layouts
}

// ParseISO parses an ISO-8601 date or timestamp. A trailing "Z" is read as
// "+00:00". Timestamps without an offset are returned in UTC.
func ParseISO(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, ErrNotISO8601
}
