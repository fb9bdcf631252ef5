package analytics

import (
	"fmt"
	"time"
)

// QuarterProjection is one quarter's actual or extrapolated totals.
type QuarterProjection struct {
	Year       int
	Quarter    int
	Label      string
	Revenue    float64
	Units      float64
	Margin     float64
	Confidence string
	Projected  bool
}

// quarterOf returns the 1-based calendar quarter.
func quarterOf(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// ProjectQuarters converts per-quarter sums into projections. Completed
// quarters pass through at medium confidence. The current quarter is scaled
// linearly to a 90-day quarter; with under half the quarter observed the
// confidence drops to low.
func ProjectQuarters(rows []quarterRow, now time.Time) []QuarterProjection {
	curYear, curQuarter := now.Year(), quarterOf(now)

	out := make([]QuarterProjection, 0, len(rows))
	for _, r := range rows {
		p := QuarterProjection{
			Year:       r.Year,
			Quarter:    r.Quarter,
			Label:      fmt.Sprintf("%d-Q%d", r.Year, r.Quarter),
			Revenue:    r.Revenue,
			Units:      r.Units,
			Margin:     r.Margin,
			Confidence: "medium",
		}

		if r.Year == curYear && r.Quarter == curQuarter && r.Days > 0 && r.Days < 90 {
			scale := 90.0 / float64(r.Days)
			p.Revenue *= scale
			p.Units *= scale
			p.Margin *= scale
			p.Projected = true
			if r.Days < 45 {
				p.Confidence = "low"
			}
		}
		out = append(out, p)
	}
	return out
}
