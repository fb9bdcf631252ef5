package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"stocksense/internal/store"
)

// SnapshotStore is the slice of the store the snapshot builder reads from.
type SnapshotStore interface {
	CountInventory(ctx context.Context, orgID int64) (store.InventoryCounts, error)
	SalesByDay(ctx context.Context, orgID int64, days int) ([]store.SalesDay, error)
	TopSKUsByMargin(ctx context.Context, orgID int64, days, n int, desc bool) ([]store.SKUMargin, error)
	ReorderInputs(ctx context.Context, orgID int64, locationID *int64) ([]store.ReorderInput, error)
	TodayMovementCount(ctx context.Context, orgID int64) (int, error)
}

// BuildSnapshot assembles the business-context text block that grounds the
// open-chat variant. Sections degrade independently: a failed source drops
// its section and the rest survive.
func BuildSnapshot(ctx context.Context, st SnapshotStore, orgID int64, orgName string) string {
	var b strings.Builder
	section := func(name string, err error, write func()) {
		if err != nil {
			log.Warn().Err(err).Int64("org_id", orgID).Str("section", name).Msg("chat: snapshot section unavailable")
			return
		}
		write()
	}

	fmt.Fprintf(&b, "Company: %s, an inventory and sales operation.\n", orgName)

	counts, err := st.CountInventory(ctx, orgID)
	section("inventory", err, func() {
		fmt.Fprintf(&b, "Inventory: %d SKUs, %d out of stock, %d low stock, %.0f units on hand.\n",
			counts.TotalSKUs, counts.OutOfStock, counts.LowStock, counts.TotalUnits)
	})

	days, err := st.SalesByDay(ctx, orgID, 7)
	section("sales_7d", err, func() {
		var revenue, units, margin float64
		for _, d := range days {
			revenue += d.Revenue
			units += d.Units
			margin += d.Margin
		}
		fmt.Fprintf(&b, "Last 7 days: %.2f revenue, %.0f units sold, %.2f gross margin.\n", revenue, units, margin)
	})

	top, err := st.TopSKUsByMargin(ctx, orgID, 30, 3, true)
	section("top_skus", err, func() {
		b.WriteString("Top SKUs by 30-day margin:\n")
		for _, s := range top {
			fmt.Fprintf(&b, "  - %s (%s): %.2f margin\n", s.Name, s.SKU, s.GrossMargin)
		}
	})

	bottom, err := st.TopSKUsByMargin(ctx, orgID, 30, 3, false)
	section("bottom_skus", err, func() {
		b.WriteString("Weakest SKUs by 30-day margin:\n")
		for _, s := range bottom {
			fmt.Fprintf(&b, "  - %s (%s): %.2f margin\n", s.Name, s.SKU, s.GrossMargin)
		}
	})

	inputs, err := st.ReorderInputs(ctx, orgID, nil)
	section("reorder", err, func() {
		writeReorderSections(&b, inputs)
	})

	moves, err := st.TodayMovementCount(ctx, orgID)
	section("movements", err, func() {
		fmt.Fprintf(&b, "Inventory movements recorded today: %d.\n", moves)
	})

	return b.String()
}

// writeReorderSections derives the slow-mover, reorder-suggestion and
// stockout-risk sections from one reorder-inputs pass.
func writeReorderSections(b *strings.Builder, inputs []store.ReorderInput) {
	var slow []string
	var suggestions []string
	highRisk := 0

	for _, in := range inputs {
		v30 := 0.0
		if in.V30 != nil {
			v30 = *in.V30
		}
		v7 := v30
		if in.V7 != nil && *in.V7 > 0 {
			v7 = *in.V7
		}

		if in.OnHand > 0 && v30 < 0.5 {
			slow = append(slow, fmt.Sprintf("%s (%.0f on hand)", in.SKU, in.OnHand))
		}
		if qty := v30*30 - in.OnHand; qty > 0 {
			suggestions = append(suggestions, fmt.Sprintf("%s: order %.0f to reach 30-day cover", in.SKU, qty))
		}
		if v7 > 0 && in.OnHand/v7 <= 7 {
			highRisk++
		}
	}

	if len(slow) > 0 {
		fmt.Fprintf(b, "Slow movers: %s.\n", strings.Join(capList(slow, 5), ", "))
	}
	if len(suggestions) > 0 {
		b.WriteString("Reorder suggestions:\n")
		for _, s := range capList(suggestions, 5) {
			fmt.Fprintf(b, "  - %s\n", s)
		}
	}
	fmt.Fprintf(b, "Products at high stockout risk (7 days or less of cover): %d.\n", highRisk)
}

func capList(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
