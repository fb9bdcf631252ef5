package chat

import (
	"fmt"
	"math"
	"strconv"
)

// The closed intent set. The resolver may only ever return one of these.
const (
	IntentTopSKUsByMargin    = "top_skus_by_margin"
	IntentStockoutRisk       = "stockout_risk"
	IntentWeekInReview       = "week_in_review"
	IntentReorderSuggestions = "reorder_suggestions"
	IntentSlowMovers         = "slow_movers"
	IntentProductDetail      = "product_detail"
	IntentQuarterlyForecast  = "quarterly_forecast"
	IntentAnnualBreakdown    = "annual_breakdown"
)

// AllIntents lists the registered intent kinds in a stable order.
var AllIntents = []string{
	IntentTopSKUsByMargin,
	IntentStockoutRisk,
	IntentWeekInReview,
	IntentReorderSuggestions,
	IntentSlowMovers,
	IntentProductDetail,
	IntentQuarterlyForecast,
	IntentAnnualBreakdown,
}

// IsValidIntent reports membership in the closed intent set.
func IsValidIntent(intent string) bool {
	for _, i := range AllIntents {
		if i == intent {
			return true
		}
	}
	return false
}

// ParamError is a request-level parameter violation, surfaced as 422.
type ParamError struct {
	Field string
	Msg   string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Msg)
}

// Params is a validated, typed parameter model for one intent.
type Params interface {
	Validate() error
}

// TopSKUsParams bounds: n in [1,50], period in {1d,7d,30d}.
type TopSKUsParams struct {
	N      int    `json:"n"`
	Period string `json:"period"`
}

func (p *TopSKUsParams) Validate() error {
	if p.N < 1 || p.N > 50 {
		return &ParamError{"n", "must be between 1 and 50"}
	}
	return validatePeriod(p.Period)
}

// StockoutRiskParams bounds: horizon_days in [7,30].
type StockoutRiskParams struct {
	HorizonDays int    `json:"horizon_days"`
	Strategy    string `json:"velocity_strategy"`
}

func (p *StockoutRiskParams) Validate() error {
	if p.HorizonDays < 7 || p.HorizonDays > 30 {
		return &ParamError{"horizon_days", "must be between 7 and 30"}
	}
	if p.Strategy != "latest" && p.Strategy != "conservative" {
		return &ParamError{"velocity_strategy", "must be latest or conservative"}
	}
	return nil
}

// WeekInReviewParams has no tunables; the window is fixed at seven days.
type WeekInReviewParams struct{}

func (p *WeekInReviewParams) Validate() error { return nil }

// ReorderSuggestionsParams is the light conversational variant.
type ReorderSuggestionsParams struct {
	N int `json:"n"`
}

func (p *ReorderSuggestionsParams) Validate() error {
	if p.N < 1 || p.N > 50 {
		return &ParamError{"n", "must be between 1 and 50"}
	}
	return nil
}

// SlowMoversParams bounds: n in [1,50], period in {7d,30d}.
type SlowMoversParams struct {
	N      int    `json:"n"`
	Period string `json:"period"`
}

func (p *SlowMoversParams) Validate() error {
	if p.N < 1 || p.N > 50 {
		return &ParamError{"n", "must be between 1 and 50"}
	}
	if p.Period != "7d" && p.Period != "30d" {
		return &ParamError{"period", "must be 7d or 30d"}
	}
	return nil
}

// ProductDetailParams carries the SKU or name lookup string.
type ProductDetailParams struct {
	Query string `json:"query"`
}

func (p *ProductDetailParams) Validate() error {
	if p.Query == "" {
		return &ParamError{"query", "product SKU or name is required"}
	}
	return nil
}

// QuarterlyForecastParams optionally pins the target year.
type QuarterlyForecastParams struct {
	TargetYear *int `json:"target_year,omitempty"`
}

func (p *QuarterlyForecastParams) Validate() error {
	if p.TargetYear != nil && (*p.TargetYear < 2000 || *p.TargetYear > 2100) {
		return &ParamError{"target_year", "must be a plausible calendar year"}
	}
	return nil
}

// AnnualBreakdownParams requires the target year.
type AnnualBreakdownParams struct {
	TargetYear int `json:"target_year"`
}

func (p *AnnualBreakdownParams) Validate() error {
	if p.TargetYear < 2000 || p.TargetYear > 2100 {
		return &ParamError{"target_year", "must be a plausible calendar year"}
	}
	return nil
}

func validatePeriod(period string) error {
	switch period {
	case "1d", "7d", "30d":
		return nil
	}
	return &ParamError{"period", "must be one of 1d, 7d, 30d"}
}

// ParseParams builds the typed parameter model for an intent from a raw
// map, applying defaults and validating bounds.
func ParseParams(intent string, raw map[string]interface{}) (Params, error) {
	var p Params
	switch intent {
	case IntentTopSKUsByMargin:
		p = &TopSKUsParams{
			N:      intOr(raw, "n", 10),
			Period: strOr(raw, "period", "7d"),
		}
	case IntentStockoutRisk:
		p = &StockoutRiskParams{
			HorizonDays: intOr(raw, "horizon_days", 14),
			Strategy:    strOr(raw, "velocity_strategy", "latest"),
		}
	case IntentWeekInReview:
		p = &WeekInReviewParams{}
	case IntentReorderSuggestions:
		p = &ReorderSuggestionsParams{N: intOr(raw, "n", 10)}
	case IntentSlowMovers:
		p = &SlowMoversParams{
			N:      intOr(raw, "n", 10),
			Period: strOr(raw, "period", "30d"),
		}
	case IntentProductDetail:
		p = &ProductDetailParams{Query: strOr(raw, "query", "")}
	case IntentQuarterlyForecast:
		qp := &QuarterlyForecastParams{}
		if y, ok := intAt(raw, "target_year"); ok {
			qp.TargetYear = &y
		}
		p = qp
	case IntentAnnualBreakdown:
		year, ok := intAt(raw, "target_year")
		if !ok {
			return nil, &ParamError{"target_year", "is required"}
		}
		p = &AnnualBreakdownParams{TargetYear: year}
	default:
		return nil, &ParamError{"intent", fmt.Sprintf("unknown intent %q", intent)}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func intAt(raw map[string]interface{}, key string) (int, bool) {
	if raw == nil {
		return 0, false
	}
	switch v := raw[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

func intOr(raw map[string]interface{}, key string, fallback int) int {
	if v, ok := intAt(raw, key); ok {
		return v
	}
	return fallback
}

func strOr(raw map[string]interface{}, key, fallback string) string {
	if raw == nil {
		return fallback
	}
	if s, ok := raw[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
