package chat

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parameter extractors are pure functions over the prompt text: no I/O,
// deterministic, locale-stable.

// NormalizeTime resolves a relative time phrase to a concrete [start, end]
// window in the given location. Unrecognized phrases default to the last
// seven days ending now.
func NormalizeTime(prompt string, now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	p := strings.ToLower(prompt)

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch {
	case strings.Contains(p, "today"):
		return midnight, now
	case strings.Contains(p, "yesterday"):
		return midnight.AddDate(0, 0, -1), midnight
	case strings.Contains(p, "last week"), strings.Contains(p, "past week"):
		return now.AddDate(0, 0, -7), now
	case strings.Contains(p, "last 30 days"), strings.Contains(p, "past 30 days"):
		return now.AddDate(0, 0, -30), now
	case strings.Contains(p, "this month"):
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return first, now
	}

	if m := quarterRe.FindStringSubmatch(p); m != nil {
		q, _ := strconv.Atoi(m[1])
		start := time.Date(now.Year(), time.Month((q-1)*3+1), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 3, 0)
	}

	return now.AddDate(0, 0, -7), now
}

var (
	quarterRe      = regexp.MustCompile(`\bq([1-4])\b`)
	numberUnitRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(%|percent|pcs|units?|days?)\b`)
	wordBoundaryRe = regexp.MustCompile(`[a-z0-9]+`)
)

// ParseNumbersUnits extracts number-unit pairs from the prompt, keyed by
// percent, days or qty. Percent values are divided by 100.
func ParseNumbersUnits(prompt string) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range numberUnitRe.FindAllStringSubmatch(strings.ToLower(prompt), -1) {
		val, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		switch m[2] {
		case "%", "percent":
			out["percent"] = val / 100
		case "day", "days":
			out["days"] = val
		case "pcs", "unit", "units":
			out["qty"] = val
		}
	}
	return out
}

// DefaultSKUAliases maps colloquial product names to SKU lists. The table
// is configuration-shaped; this default covers the demo catalog.
var DefaultSKUAliases = map[string][]string{
	"iphone":  {"APPL-IPH-001"},
	"macbook": {"APPL-MBP-001"},
	"airpods": {"APPL-APD-001"},
}

// ResolveSKUs returns the ordered, deduplicated SKU list for aliases found
// in the prompt, in order of first appearance.
func ResolveSKUs(prompt string, aliases map[string][]string) []string {
	if aliases == nil {
		aliases = DefaultSKUAliases
	}
	p := strings.ToLower(prompt)

	var out []string
	seen := make(map[string]bool)
	for _, word := range wordBoundaryRe.FindAllString(p, -1) {
		skus, ok := aliases[word]
		if !ok {
			continue
		}
		for _, sku := range skus {
			if !seen[sku] {
				seen[sku] = true
				out = append(out, sku)
			}
		}
	}
	return out
}
