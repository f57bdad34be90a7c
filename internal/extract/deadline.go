package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var inPattern = regexp.MustCompile(`\bin\s+(\d+)\s+(day|days|week|weeks)\b`)

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ResolveDeadline turns a natural-language or ISO deadline into a concrete
// time relative to now. Unrecognised input resolves to now.
func ResolveDeadline(input string, now time.Time) time.Time {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return now
	}

	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(input), now.Location()); err == nil {
			return t
		}
	}

	switch {
	case strings.Contains(s, "today"):
		return now
	case strings.Contains(s, "tomorrow"):
		return now.AddDate(0, 0, 1)
	case strings.Contains(s, "next week"):
		return now.AddDate(0, 0, 7)
	case strings.Contains(s, "next month"):
		return now.AddDate(0, 0, 30)
	}

	if m := inPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			if strings.HasPrefix(m[2], "week") {
				n *= 7
			}
			return now.AddDate(0, 0, n)
		}
	}
	return now
}
