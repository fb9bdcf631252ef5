package chat

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Resolution is the outcome of intent resolution, from rules or the LLM.
type Resolution struct {
	Intent     string                 `json:"intent"`
	Params     map[string]interface{} `json:"params"`
	Confidence float64                `json:"confidence"`
	Source     string                 `json:"source"`
	Reasons    []string               `json:"reasons"`
}

// Resolved reports whether an intent was found.
func (r Resolution) Resolved() bool { return r.Intent != "" }

// intentKeywords is the static scoring table. More hits on an intent's list
// push that intent up; ties break on table order via the stable sort below.
var intentKeywords = map[string][]string{
	IntentTopSKUsByMargin:    {"top", "best", "margin", "profitable", "profit", "earners"},
	IntentStockoutRisk:       {"stockout", "stock-out", "run out", "running out", "risk", "deplete"},
	IntentWeekInReview:       {"week in review", "weekly review", "recap", "summary of the week", "how was"},
	IntentReorderSuggestions: {"reorder", "replenish", "restock", "buy more", "order more"},
	IntentSlowMovers:         {"slow", "stale", "not selling", "dead stock", "sluggish"},
	IntentProductDetail:      {"detail", "details", "about", "tell me about", "lookup", "look up"},
	IntentQuarterlyForecast:  {"forecast", "quarterly", "quarter", "projection", "predict"},
	IntentAnnualBreakdown:    {"annual", "yearly", "breakdown", "by quarter", "year"},
}

var (
	topNRe  = regexp.MustCompile(`\btop\s+(\d{1,2})\b`)
	yearRe  = regexp.MustCompile(`\b(20\d{2})\b`)
	aboutRe = regexp.MustCompile(`(?:tell me about|details (?:on|of|for)|look ?up|about)\s+(?:the\s+)?([a-z][a-z0-9 &'-]*[a-z0-9]|[a-z])`)
	// Relative phrases NormalizeTime resolves to a fixed-length window.
	timePhraseRe = regexp.MustCompile(`\btoday\b|\byesterday\b|\b(?:last|past)\s+(?:week|30\s*days)\b`)
)

// ResolveRules scores the prompt against the keyword table and populates
// parameters through the shared extractors. Confidence grows with hit
// count: min(1.0, 0.4 + 0.2*hits).
func ResolveRules(prompt string) Resolution {
	p := strings.ToLower(prompt)

	type hit struct {
		intent string
		count  int
		order  int
	}
	var hits []hit
	for order, intent := range AllIntents {
		count := 0
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(p, kw) {
				count++
			}
		}
		if count > 0 {
			hits = append(hits, hit{intent, count, order})
		}
	}

	if len(hits) == 0 {
		return Resolution{Source: "rules", Confidence: 0}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		return hits[i].order < hits[j].order
	})

	candidate := hits[0].intent
	params := extractRuleParams(p)

	// A year plus annual phrasing on a forecast candidate means the user
	// wants the historical breakdown, not the projection.
	if _, hasYear := params["target_year"]; hasYear && candidate == IntentQuarterlyForecast {
		for _, kw := range []string{"revenue", "annual", "yearly", "year"} {
			if strings.Contains(p, kw) {
				candidate = IntentAnnualBreakdown
				break
			}
		}
	}

	confidence := 0.4 + 0.2*float64(hits[0].count)
	if confidence > 1.0 {
		confidence = 1.0
	}

	return Resolution{
		Intent:     candidate,
		Params:     params,
		Confidence: confidence,
		Source:     "rules",
		Reasons:    []string{"keyword match"},
	}
}

// extractRuleParams runs the shared extractors over the prompt: number-unit
// pairs, relative time windows, SKU aliases and a product-name capture.
func extractRuleParams(p string) map[string]interface{} {
	params := make(map[string]interface{})

	if m := topNRe.FindStringSubmatch(p); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			params["n"] = n
		}
	}
	if m := yearRe.FindStringSubmatch(p); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			params["target_year"] = y
		}
	}

	if d, ok := ParseNumbersUnits(p)["days"]; ok {
		params["horizon_days"] = int(d)
		switch int(d) {
		case 1:
			params["period"] = "1d"
		case 7:
			params["period"] = "7d"
		case 30:
			params["period"] = "30d"
		}
	}
	switch {
	case strings.Contains(p, "month"):
		params["period"] = "30d"
	case strings.Contains(p, "daily"):
		params["period"] = "1d"
	case timePhraseRe.MatchString(p):
		start, end := NormalizeTime(p, time.Now().UTC(), time.UTC)
		params["period"] = periodForWindow(end.Sub(start))
	}

	if skus := ResolveSKUs(p, nil); len(skus) > 0 {
		params["query"] = skus[0]
	} else if m := aboutRe.FindStringSubmatch(p); m != nil {
		params["query"] = strings.TrimSpace(m[1])
	}

	return params
}

// periodForWindow buckets a resolved window into the canonical periods.
func periodForWindow(span time.Duration) string {
	switch days := span.Hours() / 24; {
	case days <= 1:
		return "1d"
	case days <= 7:
		return "7d"
	default:
		return "30d"
	}
}
