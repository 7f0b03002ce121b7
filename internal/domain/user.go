package domain

import "time"

// Currency describes one currency the CBR publishes a rate for.
// ID is the CBR internal code (e.g. "R01235"), needed for history
// queries; selection uniqueness is by CharCode.
type Currency struct {
	Name     string `json:"name"`
	CharCode string `json:"charCode"`
	ID       string `json:"id"`
}

// User represents a bot user: profile, currency selection and
// subscription state. JobIDs holds ids of live recurring jobs; the
// subscription service keeps it at most one element long.
type User struct {
	UserID     int64
	Name       string
	Username   string
	ChatID     int64
	IsBot      bool
	Timezone   string
	StartedAt  time.Time // UTC
	Currencies []Currency
	Everyday   bool
	JobIDs     []string
	LastCourse string // last rates text delivered; change-detection baseline
}

// AddCurrency appends c to sel unless a currency with the same
// CharCode is already selected.
func AddCurrency(sel []Currency, c Currency) []Currency {
	for _, s := range sel {
		if s.CharCode == c.CharCode {
			return sel
		}
	}
	return append(sel, c)
}

// RemoveCurrency drops the currency with the given CharCode, if present.
func RemoveCurrency(sel []Currency, charCode string) []Currency {
	out := sel[:0]
	for _, s := range sel {
		if s.CharCode != charCode {
			out = append(out, s)
		}
	}
	return out
}

// Selected reports whether charCode is in the selection.
func Selected(sel []Currency, charCode string) bool {
	for _, s := range sel {
		if s.CharCode == charCode {
			return true
		}
	}
	return false
}
