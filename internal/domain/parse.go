package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyDuration   = errors.New("empty duration")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrTooSmall        = errors.New("duration too small")
	ErrTooLarge        = errors.New("duration too large")
)

// DateLayout is the calendar-date format the rate source uses.
const DateLayout = "02/01/2006"

// FormatDate renders t as DD/MM/YYYY.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDurationHuman parses human-friendly durations like "30m",
// "1h30m", "90m", "2h"; a plain number means minutes.
// Constraints: 10m <= d <= 72h.
func ParseDurationHuman(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, ErrEmptyDuration
	}
	var total time.Duration

	if isAllDigits(s) {
		mins, _ := strconv.Atoi(s)
		total = time.Duration(mins) * time.Minute
	} else {
		re := regexp.MustCompile(`(?i)(\d+)\s*h`)
		mh := re.FindStringSubmatch(s)
		if len(mh) == 2 {
			h, _ := strconv.Atoi(mh[1])
			total += time.Duration(h) * time.Hour
		}
		re = regexp.MustCompile(`(?i)(\d+)\s*m`)
		mm := re.FindStringSubmatch(s)
		if len(mm) == 2 {
			m, _ := strconv.Atoi(mm[1])
			total += time.Duration(m) * time.Minute
		}
		if total == 0 && !(strings.Contains(s, "h") || strings.Contains(s, "m")) {
			return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, s)
		}
	}

	if total < 10*time.Minute {
		return 0, fmt.Errorf("%w: min 10m", ErrTooSmall)
	}
	if total > 72*time.Hour {
		return 0, fmt.Errorf("%w: max 72h", ErrTooLarge)
	}
	return total, nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
