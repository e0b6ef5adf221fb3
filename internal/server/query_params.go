package server

import (
	"errors"
	"strings"
	"time"
)

const dateOnlyLayout = "2006-01-02"

func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		parsed = parsed.UTC()
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		if endOfDay {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, int(time.Second-time.Microsecond), time.UTC)
		} else {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		}
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}

// parsePeriod reads an inclusive [start, end] window. Date-only ends cover
// the whole day.
func parsePeriod(start, end string) (time.Time, time.Time, error) {
	from, err := parseOptionalTime(start, false)
	if err != nil || from == nil {
		return time.Time{}, time.Time{}, newValidationError("start", "invalid_start", "start must be a date or RFC3339 time")
	}
	to, err := parseOptionalTime(end, true)
	if err != nil || to == nil {
		return time.Time{}, time.Time{}, newValidationError("end", "invalid_end", "end must be a date or RFC3339 time")
	}
	return *from, *to, nil
}
