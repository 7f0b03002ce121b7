package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// The rate source emits one line per currency: "<name> = <value>",
// where the value uses either "," or "." as the decimal separator.
// ratePattern extracts that value for a single currency by name.
func ratePattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(name) + `\s*=\s*(\d+[,.]\d+)`)
}

// ExtractRate pulls the numeric rate for one currency out of a rates
// text. The second return is false when the text has no line for it.
func ExtractRate(text string, c Currency) (float64, bool) {
	m := ratePattern(c.Name).FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Change records one currency whose rate differs from the previous
// delivery. Prev is nil on first observation.
type Change struct {
	CharCode string
	Name     string
	Prev     *float64
	Curr     float64
}

// DetectChanges compares the freshly fetched rates text against the
// previously delivered one, per selected currency. A currency counts
// as changed when it has no previous value or the values are unequal
// (exact float64 comparison after separator normalization).
//
// Currencies whose rate cannot be found in curr are returned in
// skipped and do not block the rest.
func DetectChanges(prev, curr string, sel []Currency) (changes []Change, skipped []string) {
	for _, c := range sel {
		now, ok := ExtractRate(curr, c)
		if !ok {
			skipped = append(skipped, c.CharCode)
			continue
		}

		var last *float64
		if prev != "" {
			if v, ok := ExtractRate(prev, c); ok {
				last = &v
			}
		}

		if last == nil || *last != now {
			changes = append(changes, Change{
				CharCode: c.CharCode,
				Name:     c.Name,
				Prev:     last,
				Curr:     now,
			})
		}
	}
	return changes, skipped
}
