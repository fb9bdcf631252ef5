// Package risk derives days-to-stockout and risk bands from on-hand stock
// and rolling sales velocities.
package risk

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"stocksense/internal/store"
)

// Band is the stockout risk classification.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
	BandNone   Band = "none"
)

// bandPriority orders bands high < medium < low < none for sorting.
func bandPriority(b Band) int {
	switch b {
	case BandHigh:
		return 0
	case BandMedium:
		return 1
	case BandLow:
		return 2
	default:
		return 3
	}
}

// BandFor assigns the band from days-to-stockout. Boundaries are inclusive:
// exactly 7.0 days is high, 7.0001 is medium.
func BandFor(daysToStockout float64) Band {
	switch {
	case daysToStockout <= 7:
		return BandHigh
	case daysToStockout <= 14:
		return BandMedium
	case daysToStockout <= 30:
		return BandLow
	default:
		return BandNone
	}
}

// Strategy selects which rolling velocity drives the calculation.
type Strategy string

const (
	StrategyLatest       Strategy = "latest"
	StrategyConservative Strategy = "conservative"
)

// ParseStrategy validates a strategy string, defaulting empty to latest.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLatest, StrategyConservative:
		return Strategy(s), nil
	case "":
		return StrategyLatest, nil
	}
	return "", fmt.Errorf("unknown velocity strategy %q", s)
}

// SelectVelocity picks the working velocity from the rolling candidates.
// latest takes the first positive of (7d, 30d, 56d); conservative takes the
// minimum positive. Returns 0 with source "none" when no candidate is
// positive.
func SelectVelocity(strategy Strategy, v7, v30, v56 *float64) (float64, string) {
	type candidate struct {
		v      *float64
		source string
	}
	candidates := []candidate{
		{v7, "7d"},
		{v30, "30d"},
		{v56, "56d"},
	}

	if strategy == StrategyConservative {
		best := 0.0
		source := "none"
		for _, c := range candidates {
			if c.v != nil && *c.v > 0 && (best == 0 || *c.v < best) {
				best = *c.v
				source = c.source
			}
		}
		return best, source
	}

	for _, c := range candidates {
		if c.v != nil && *c.v > 0 {
			return *c.v, c.source
		}
	}
	return 0, "none"
}

// Item is one product's stockout risk assessment.
type Item struct {
	ProductID      int64    `json:"product_id"`
	SKU            string   `json:"sku"`
	Name           string   `json:"name"`
	OnHand         float64  `json:"on_hand"`
	Velocity       float64  `json:"velocity"`
	VelocitySource string   `json:"velocity_source"`
	DaysToStockout *float64 `json:"days_to_stockout,omitempty"`
	RiskLevel      Band     `json:"risk_level"`
	ReorderPoint   int      `json:"reorder_point"`
}

// Classify assesses one reorder-inputs row. The reorder-point rule bumps a
// none band to medium when on-hand has fallen to or below the reorder
// point; low is left unchanged by the bump.
func Classify(in store.ReorderInput, strategy Strategy) Item {
	velocity, source := SelectVelocity(strategy, in.V7, in.V30, in.V56)

	item := Item{
		ProductID:      in.ProductID,
		SKU:            in.SKU,
		Name:           in.Name,
		OnHand:         in.OnHand,
		Velocity:       velocity,
		VelocitySource: source,
		ReorderPoint:   in.ReorderPoint,
	}

	if velocity > 0 {
		days := in.OnHand / velocity
		item.DaysToStockout = &days
		item.RiskLevel = BandFor(days)
	} else {
		item.RiskLevel = BandNone
	}

	if in.OnHand <= float64(in.ReorderPoint) && item.RiskLevel == BandNone {
		item.RiskLevel = BandMedium
	}

	return item
}

// Sort orders items ascending by band priority, then ascending by
// days-to-stockout. Items with no velocity sort after timed ones within the
// same band.
func Sort(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := bandPriority(items[i].RiskLevel), bandPriority(items[j].RiskLevel)
		if pi != pj {
			return pi < pj
		}
		di, dj := items[i].DaysToStockout, items[j].DaysToStockout
		switch {
		case di == nil && dj == nil:
			return items[i].SKU < items[j].SKU
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return *di < *dj
		}
	})
}

// Digest is a per-org risk summary for the daily alert pipeline.
type Digest struct {
	OrgID       int64  `json:"org_id"`
	OrgName     string `json:"org_name"`
	Items       []Item `json:"items"`
	HighCount   int    `json:"high_count"`
	MediumCount int    `json:"medium_count"`
}

// BuildDigest assesses every product in the org and keeps items at or
// below the horizon.
func BuildDigest(ctx context.Context, st *store.Store, org store.Org, strategy Strategy, horizonDays int) (*Digest, error) {
	inputs, err := st.ReorderInputs(ctx, org.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("digest for org %d: %w", org.ID, err)
	}

	digest := &Digest{OrgID: org.ID, OrgName: org.Name}
	for _, in := range inputs {
		item := Classify(in, strategy)
		if item.DaysToStockout != nil && *item.DaysToStockout > float64(horizonDays) {
			continue
		}
		if item.RiskLevel == BandNone {
			continue
		}
		digest.Items = append(digest.Items, item)
		switch item.RiskLevel {
		case BandHigh:
			digest.HighCount++
		case BandMedium:
			digest.MediumCount++
		}
	}
	Sort(digest.Items)

	log.Debug().
		Int64("org_id", org.ID).
		Int("items", len(digest.Items)).
		Int("high", digest.HighCount).
		Int("medium", digest.MediumCount).
		Msg("risk: digest built")

	return digest, nil
}
