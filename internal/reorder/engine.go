// Package reorder computes per-product replenishment recommendations with
// supplier constraints and a full audit trail of adjustments.
package reorder

import (
	"fmt"
	"math"

	"stocksense/internal/risk"
	"stocksense/internal/store"
)

// Reason tags emitted alongside human-readable adjustments.
const (
	ReasonBelowReorderPoint  = "BELOW_REORDER_POINT"
	ReasonLeadTimeRisk       = "LEAD_TIME_RISK"
	ReasonMOQEnforced        = "MOQ_ENFORCED"
	ReasonPackRounded        = "PACK_ROUNDED"
	ReasonCappedByMaxDays    = "CAPPED_BY_MAX_DAYS"
	ReasonZeroVelocitySkip   = "ZERO_VELOCITY_SKIPPED"
	ReasonBelowMinimumSkip   = "BELOW_MINIMUM"
)

// Options tunes one evaluation run.
type Options struct {
	Strategy            risk.Strategy
	HorizonOverride     *int
	IncludeZeroVelocity bool
	MinDaysCover        *float64
	MaxDaysCover        *float64
}

// Explanation records the inputs, calculations and logic path behind a
// suggestion, for the explain endpoint.
type Explanation struct {
	Inputs       map[string]interface{} `json:"inputs"`
	Calculations []string               `json:"calculations"`
	LogicPath    []string               `json:"logic_path"`
}

// Suggestion is the outcome for one product. Skipped suggestions carry a
// skip reason instead of a quantity.
type Suggestion struct {
	ProductID           int64    `json:"product_id"`
	SKU                 string   `json:"sku"`
	Name                string   `json:"name"`
	RecommendedQuantity int      `json:"recommended_quantity"`
	Velocity            float64  `json:"velocity"`
	VelocitySource      string   `json:"velocity_source"`
	HorizonDays         int      `json:"horizon_days"`
	Demand              float64  `json:"demand"`
	OnHand              float64  `json:"on_hand"`
	Incoming            float64  `json:"incoming"`
	Reasons             []string `json:"reasons"`
	Adjustments         []string `json:"adjustments"`
	DaysCoverCurrent    *float64 `json:"days_cover_current,omitempty"`
	DaysCoverAfter      *float64 `json:"days_cover_after,omitempty"`
	EstimatedCost       *float64 `json:"estimated_cost,omitempty"`
	SupplierID          *int64   `json:"supplier_id,omitempty"`
	SupplierName        string   `json:"supplier_name,omitempty"`
	LeadTimeDays        int      `json:"lead_time_days"`
	UnitCost            *float64 `json:"unit_cost,omitempty"`
	Skipped             bool     `json:"skipped"`
	SkipReason          string   `json:"skip_reason,omitempty"`

	Explanation Explanation `json:"explanation"`
}

// Evaluate runs the replenishment algorithm on one reorder-inputs row.
func Evaluate(in store.ReorderInput, opts Options) Suggestion {
	velocity, source := risk.SelectVelocity(opts.Strategy, in.V7, in.V30, in.V56)

	s := Suggestion{
		ProductID:      in.ProductID,
		SKU:            in.SKU,
		Name:           in.Name,
		Velocity:       velocity,
		VelocitySource: source,
		OnHand:         in.OnHand,
		SupplierID:     in.SupplierID,
		SupplierName:   in.SupplierName,
		LeadTimeDays:   in.LeadTimeDays,
		UnitCost:       in.UnitCost,
		Explanation: Explanation{
			Inputs: map[string]interface{}{
				"on_hand":           in.OnHand,
				"reorder_point":     in.ReorderPoint,
				"safety_stock_days": in.SafetyStockDays,
				"pack_size":         in.PackSize,
				"lead_time_days":    in.LeadTimeDays,
				"moq":               in.MOQ,
				"incoming_30d":      in.Incoming30,
				"incoming_60d":      in.Incoming60,
				"velocity":          velocity,
				"velocity_source":   source,
			},
		},
	}
	path := func(step string) { s.Explanation.LogicPath = append(s.Explanation.LogicPath, step) }
	calc := func(format string, args ...interface{}) {
		s.Explanation.Calculations = append(s.Explanation.Calculations, fmt.Sprintf(format, args...))
	}

	// Horizon: override, else lead time plus safety stock, floored at 7.
	horizon := in.LeadTimeDays + in.SafetyStockDays
	if horizon < 7 {
		horizon = 7
	}
	if opts.HorizonOverride != nil {
		horizon = *opts.HorizonOverride
		path("horizon overridden")
	}
	s.HorizonDays = horizon
	calc("horizon_days = %d", horizon)

	demand := velocity * float64(horizon)
	s.Demand = demand
	calc("demand = %.2f/day * %d days = %.2f", velocity, horizon, demand)

	incoming := in.Incoming30
	if horizon > 30 {
		incoming = in.Incoming60
	}
	s.Incoming = incoming

	raw := demand - (in.OnHand + incoming)
	qty := 0.0
	if raw > 0 {
		qty = raw
	}
	calc("raw shortfall = %.2f - (%.2f + %.2f) = %.2f", demand, in.OnHand, incoming, raw)
	path("base recommendation")

	if velocity > 0 {
		cover := in.OnHand / velocity
		s.DaysCoverCurrent = &cover
		if cover < float64(in.LeadTimeDays) {
			s.Reasons = append(s.Reasons, ReasonLeadTimeRisk)
			s.Adjustments = append(s.Adjustments,
				fmt.Sprintf("current cover %.1f days is below the %d day lead time", cover, in.LeadTimeDays))
		}
	}

	// Reorder bump.
	if in.OnHand < float64(in.ReorderPoint) {
		bump := float64(in.ReorderPoint) - in.OnHand
		if bump > qty {
			s.Adjustments = append(s.Adjustments,
				fmt.Sprintf("raised from %d to %d to restore the reorder point", round(qty), round(bump)))
			qty = bump
		}
		s.Reasons = append(s.Reasons, ReasonBelowReorderPoint)
		path("reorder point bump")
	}

	if qty > 0 && qty < float64(in.MOQ) {
		s.Adjustments = append(s.Adjustments,
			fmt.Sprintf("raised from %d to supplier minimum %d", round(qty), in.MOQ))
		qty = float64(in.MOQ)
		s.Reasons = append(s.Reasons, ReasonMOQEnforced)
		path("moq enforced")
	}

	if qty > 0 && in.PackSize > 1 {
		rounded := math.Ceil(qty/float64(in.PackSize)) * float64(in.PackSize)
		if rounded != qty {
			s.Adjustments = append(s.Adjustments,
				fmt.Sprintf("rounded up from %d to %d (pack size %d)", round(qty), round(rounded), in.PackSize))
			qty = rounded
			s.Reasons = append(s.Reasons, ReasonPackRounded)
			path("pack rounding")
		}
	}

	if in.MaxStockDays != nil && velocity > 0 {
		capQty := velocity*float64(*in.MaxStockDays) - (in.OnHand + incoming)
		if capQty < 0 {
			capQty = 0
		}
		if qty > capQty {
			s.Adjustments = append(s.Adjustments,
				fmt.Sprintf("capped from %d to %d to stay within %d days of stock", round(qty), round(capQty), *in.MaxStockDays))
			qty = capQty
			s.Reasons = append(s.Reasons, ReasonCappedByMaxDays)
			path("max stock cap")
		}
	}

	// Guardrails.
	if velocity == 0 && in.OnHand >= float64(in.ReorderPoint) {
		s.Skipped = true
		s.SkipReason = ReasonZeroVelocitySkip
		s.Reasons = append(s.Reasons, ReasonZeroVelocitySkip)
		path("zero velocity skip")
		return s
	}
	// An emitted suggestion always orders at least one unit. The max-stock
	// cap can pull even a MOQ-forced quantity back under that floor.
	final := round(qty)
	if final < 1 {
		s.Skipped = true
		s.SkipReason = ReasonBelowMinimumSkip
		path("below minimum skip")
		return s
	}

	s.RecommendedQuantity = final
	calc("recommended_quantity = %d", final)

	if velocity > 0 {
		after := (in.OnHand + incoming + float64(final)) / velocity
		s.DaysCoverAfter = &after
	}
	if in.UnitCost != nil {
		cost := *in.UnitCost * float64(final)
		s.EstimatedCost = &cost
	}

	return s
}

// EvaluateAll runs the engine over every row, returning survivors and,
// when includeSkipped is set, the skipped rows too.
func EvaluateAll(inputs []store.ReorderInput, opts Options) []Suggestion {
	var out []Suggestion
	for _, in := range inputs {
		s := Evaluate(in, opts)
		if s.Skipped && !opts.IncludeZeroVelocity {
			continue
		}
		if !s.Skipped && !withinCover(s, opts) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func withinCover(s Suggestion, opts Options) bool {
	if s.DaysCoverCurrent == nil {
		return true
	}
	if opts.MinDaysCover != nil && *s.DaysCoverCurrent < *opts.MinDaysCover {
		return false
	}
	if opts.MaxDaysCover != nil && *s.DaysCoverCurrent > *opts.MaxDaysCover {
		return false
	}
	return true
}

func round(v float64) int {
	return int(math.Round(v))
}
