package analytics

import (
	"context"
	"fmt"
	"sort"

	"stocksense/internal/chat"
	"stocksense/internal/risk"
	"stocksense/internal/store"
)

// TopSKUsByMargin sums gross margin per SKU over the period, descending.
func (h *Handlers) TopSKUsByMargin(ctx context.Context, orgID int64, p *chat.TopSKUsParams) (*Result, error) {
	days := periodDays(p.Period)
	cols := []string{"sku", "name", "gross_margin", "revenue", "units"}

	primary := query{
		sql: `
			SELECT sd.sku,
				COALESCE(MAX(pr.name), sd.sku) AS name,
				COALESCE(SUM(sd.gross_margin), 0) AS gross_margin,
				COALESCE(SUM(sd.gross_revenue), 0) AS revenue,
				COALESCE(SUM(sd.units_sold), 0) AS units
			FROM sales_daily sd
			LEFT JOIN products pr ON pr.sku = sd.sku AND pr.org_id = sd.org_id
			WHERE sd.org_id = $1 AND sd.day >= CURRENT_DATE - $2::int
			GROUP BY sd.sku
			ORDER BY gross_margin DESC
			LIMIT $3`,
		args:       []interface{}{orgID, days, p.N},
		columns:    cols,
		definition: fmt.Sprintf("Top %d SKUs by gross margin over the last %d days", p.N, days),
		tables:     []string{"sales_daily", "products"},
	}
	fallback := query{
		sql: `
			SELECT pr.sku,
				MAX(pr.name) AS name,
				COALESCE(SUM(oi.quantity * (oi.unit_price * (1 - oi.discount) - COALESCE(pr.unit_cost, 0))), 0) AS gross_margin,
				COALESCE(SUM(oi.quantity * oi.unit_price * (1 - oi.discount)), 0) AS revenue,
				COALESCE(SUM(oi.quantity), 0) AS units
			FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			JOIN products pr ON pr.id = oi.product_id
			WHERE o.org_id = $1 AND o.ordered_at >= NOW() - ($2::int * INTERVAL '1 day')
			GROUP BY pr.sku
			ORDER BY gross_margin DESC
			LIMIT $3`,
		args:       []interface{}{orgID, days, p.N},
		columns:    cols,
		definition: fmt.Sprintf("Top %d SKUs by gross margin over the last %d days, from order lines", p.N, days),
		tables:     []string{"orders", "order_items", "products"},
	}
	return h.runWithFallback(ctx, primary, &fallback)
}

// StockoutRisk assesses every product and keeps those within the horizon,
// sorted by band then days to stockout.
func (h *Handlers) StockoutRisk(ctx context.Context, orgID int64, p *chat.StockoutRiskParams) (*Result, error) {
	strategy, err := risk.ParseStrategy(p.Strategy)
	if err != nil {
		return nil, err
	}

	inputs, err := h.st.ReorderInputs(ctx, orgID, nil)
	if err != nil {
		return nil, fmt.Errorf("stockout risk: %w", err)
	}

	var items []risk.Item
	for _, in := range inputs {
		item := risk.Classify(in, strategy)
		if item.RiskLevel == risk.BandNone {
			continue
		}
		if item.DaysToStockout != nil && *item.DaysToStockout > float64(p.HorizonDays) {
			continue
		}
		items = append(items, item)
	}
	risk.Sort(items)

	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		row := map[string]interface{}{
			"product_id":      item.ProductID,
			"sku":             item.SKU,
			"name":            item.Name,
			"on_hand":         item.OnHand,
			"velocity":        item.Velocity,
			"velocity_source": item.VelocitySource,
			"risk_level":      string(item.RiskLevel),
			"reorder_point":   item.ReorderPoint,
		}
		if item.DaysToStockout != nil {
			row["days_to_stockout"] = *item.DaysToStockout
		}
		rows = append(rows, row)
	}

	return &Result{
		Columns: []string{"product_id", "sku", "name", "on_hand", "velocity", "velocity_source", "days_to_stockout", "risk_level", "reorder_point"},
		Rows:    rows,
		SQL:     "reorder_inputs mart: signed movement sums joined with rolling velocities",
		Definition: fmt.Sprintf("Products at stockout risk within %d days using the %s velocity strategy",
			p.HorizonDays, strategy),
		Tables: []string{"inventory_movements", "sales_daily", "products", "suppliers"},
	}, nil
}

// WeekInReview returns daily revenue, units and margin for the last 7 days.
func (h *Handlers) WeekInReview(ctx context.Context, orgID int64) (*Result, error) {
	cols := []string{"day", "revenue", "units", "margin", "orders"}

	primary := query{
		sql: `
			SELECT sd.day,
				COALESCE(SUM(sd.gross_revenue), 0) AS revenue,
				COALESCE(SUM(sd.units_sold), 0) AS units,
				COALESCE(SUM(sd.gross_margin), 0) AS margin,
				COALESCE(SUM(sd.orders_count), 0) AS orders
			FROM sales_daily sd
			WHERE sd.org_id = $1 AND sd.day >= CURRENT_DATE - 7
			GROUP BY sd.day
			ORDER BY sd.day`,
		args:       []interface{}{orgID},
		columns:    cols,
		definition: "Daily revenue, units and margin for the last 7 days",
		tables:     []string{"sales_daily"},
	}
	fallback := query{
		sql: `
			SELECT DATE(o.ordered_at) AS day,
				COALESCE(SUM(oi.quantity * oi.unit_price * (1 - oi.discount)), 0) AS revenue,
				COALESCE(SUM(oi.quantity), 0) AS units,
				COALESCE(SUM(oi.quantity * (oi.unit_price * (1 - oi.discount) - COALESCE(pr.unit_cost, 0))), 0) AS margin,
				COUNT(DISTINCT o.id) AS orders
			FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			LEFT JOIN products pr ON pr.id = oi.product_id
			WHERE o.org_id = $1 AND o.ordered_at >= NOW() - INTERVAL '7 days'
			GROUP BY DATE(o.ordered_at)
			ORDER BY day`,
		args:       []interface{}{orgID},
		columns:    cols,
		definition: "Daily revenue, units and margin for the last 7 days, from order lines",
		tables:     []string{"orders", "order_items", "products"},
	}
	return h.runWithFallback(ctx, primary, &fallback)
}

// ReorderSuggestions is the light conversational variant: 30-day cover gap
// per product, descending.
func (h *Handlers) ReorderSuggestions(ctx context.Context, orgID int64, p *chat.ReorderSuggestionsParams) (*Result, error) {
	inputs, err := h.st.ReorderInputs(ctx, orgID, nil)
	if err != nil {
		return nil, fmt.Errorf("reorder suggestions: %w", err)
	}

	type suggestion struct {
		in  store.ReorderInput
		qty float64
	}
	var picks []suggestion
	for _, in := range inputs {
		if in.V30 == nil || *in.V30 <= 0 {
			continue
		}
		qty := *in.V30*30 - in.OnHand
		if qty <= 0 {
			continue
		}
		picks = append(picks, suggestion{in, qty})
	}
	sort.Slice(picks, func(i, j int) bool { return picks[i].qty > picks[j].qty })
	if len(picks) > p.N {
		picks = picks[:p.N]
	}

	rows := make([]map[string]interface{}, 0, len(picks))
	for _, s := range picks {
		rows = append(rows, map[string]interface{}{
			"product_id":      s.in.ProductID,
			"sku":             s.in.SKU,
			"name":            s.in.Name,
			"on_hand":         s.in.OnHand,
			"units_30day_avg": *s.in.V30,
			"suggested_qty":   s.qty,
		})
	}

	return &Result{
		Columns:    []string{"product_id", "sku", "name", "on_hand", "units_30day_avg", "suggested_qty"},
		Rows:       rows,
		SQL:        "reorder_inputs mart: max(0, units_30day_avg * 30 - on_hand)",
		Definition: fmt.Sprintf("Top %d products by quantity needed to reach 30 days of cover", p.N),
		Tables:     []string{"inventory_movements", "sales_daily", "products"},
	}, nil
}

// SlowMovers lists in-stock products with the least sales over the period.
func (h *Handlers) SlowMovers(ctx context.Context, orgID int64, p *chat.SlowMoversParams) (*Result, error) {
	days := periodDays(p.Period)
	cols := []string{"sku", "name", "on_hand", "units_sold"}

	primary := query{
		sql: fmt.Sprintf(`
			WITH on_hand AS (
				SELECT m.product_id, COALESCE(%s, 0) AS on_hand
				FROM inventory_movements m
				WHERE m.org_id = $1
				GROUP BY m.product_id
			),
			sold AS (
				SELECT sd.sku, COALESCE(SUM(sd.units_sold), 0) AS units_sold
				FROM sales_daily sd
				WHERE sd.org_id = $1 AND sd.day >= CURRENT_DATE - $2::int
				GROUP BY sd.sku
			)
			SELECT pr.sku, pr.name, oh.on_hand, COALESCE(s.units_sold, 0) AS units_sold
			FROM products pr
			JOIN on_hand oh ON oh.product_id = pr.id AND oh.on_hand > 0
			LEFT JOIN sold s ON s.sku = pr.sku
			WHERE pr.org_id = $1
			ORDER BY units_sold ASC, on_hand DESC
			LIMIT $3`, store.OnHandExpr),
		args:       []interface{}{orgID, days, p.N},
		columns:    cols,
		definition: fmt.Sprintf("%d slowest-selling in-stock products over the last %d days", p.N, days),
		tables:     []string{"inventory_movements", "sales_daily", "products"},
	}
	fallback := query{
		sql: fmt.Sprintf(`
			WITH on_hand AS (
				SELECT m.product_id, COALESCE(%s, 0) AS on_hand
				FROM inventory_movements m
				WHERE m.org_id = $1
				GROUP BY m.product_id
			),
			sold AS (
				SELECT oi.product_id, COALESCE(SUM(oi.quantity), 0) AS units_sold
				FROM order_items oi
				JOIN orders o ON o.id = oi.order_id
				WHERE o.org_id = $1 AND o.ordered_at >= NOW() - ($2::int * INTERVAL '1 day')
				GROUP BY oi.product_id
			)
			SELECT pr.sku, pr.name, oh.on_hand, COALESCE(s.units_sold, 0) AS units_sold
			FROM products pr
			JOIN on_hand oh ON oh.product_id = pr.id AND oh.on_hand > 0
			LEFT JOIN sold s ON s.product_id = pr.id
			WHERE pr.org_id = $1
			ORDER BY units_sold ASC, on_hand DESC
			LIMIT $3`, store.OnHandExpr),
		args:       []interface{}{orgID, days, p.N},
		columns:    cols,
		definition: fmt.Sprintf("%d slowest-selling in-stock products over the last %d days, from order lines", p.N, days),
		tables:     []string{"inventory_movements", "orders", "order_items", "products"},
	}
	return h.runWithFallback(ctx, primary, &fallback)
}

// ProductDetail looks a product up by SKU or name and reports its stock and
// trailing sales.
func (h *Handlers) ProductDetail(ctx context.Context, orgID int64, p *chat.ProductDetailParams) (*Result, error) {
	product, err := h.st.ProductBySKUOrName(ctx, orgID, p.Query)
	if err != nil {
		return nil, err
	}

	onHand, err := h.st.OnHand(ctx, orgID, product.ID)
	if err != nil {
		return nil, fmt.Errorf("product detail: %w", err)
	}

	const salesSQL = `
		SELECT
			COALESCE(SUM(sd.units_sold) FILTER (WHERE sd.day >= CURRENT_DATE - 7), 0) AS units_sold_7d,
			COALESCE(SUM(sd.units_sold), 0) AS units_sold_30d,
			COALESCE(SUM(sd.gross_revenue), 0) AS revenue_30d,
			COALESCE(SUM(sd.gross_margin), 0) AS margin_30d
		FROM sales_daily sd
		WHERE sd.org_id = $1 AND sd.sku = $2 AND sd.day >= CURRENT_DATE - 30`
	sales, err := h.selectMaps(ctx, salesSQL, orgID, product.SKU)
	if err != nil {
		return nil, fmt.Errorf("product detail sales: %w", err)
	}

	row := map[string]interface{}{
		"product_id": product.ID,
		"sku":        product.SKU,
		"name":       product.Name,
		"on_hand":    onHand,
	}
	if len(sales) == 1 {
		for k, v := range sales[0] {
			row[k] = v
		}
	}

	return &Result{
		Columns:    []string{"product_id", "sku", "name", "on_hand", "units_sold_7d", "units_sold_30d", "revenue_30d", "margin_30d"},
		Rows:       []map[string]interface{}{row},
		SQL:        salesSQL,
		Definition: fmt.Sprintf("Stock position and trailing sales for %s", product.SKU),
		Tables:     []string{"products", "inventory_movements", "sales_daily"},
	}, nil
}

// quarterRow is one per-quarter aggregate from the mart.
type quarterRow struct {
	Year    int     `db:"year"`
	Quarter int     `db:"quarter"`
	Revenue float64 `db:"revenue"`
	Units   float64 `db:"units"`
	Margin  float64 `db:"margin"`
	Days    int     `db:"days"`
}

const quarterSumsSQL = `
	SELECT
		EXTRACT(YEAR FROM sd.day)::int AS year,
		EXTRACT(QUARTER FROM sd.day)::int AS quarter,
		COALESCE(SUM(sd.gross_revenue), 0) AS revenue,
		COALESCE(SUM(sd.units_sold), 0) AS units,
		COALESCE(SUM(sd.gross_margin), 0) AS margin,
		COUNT(DISTINCT sd.day) AS days
	FROM sales_daily sd
	WHERE sd.org_id = $1 AND sd.day >= $2
	GROUP BY 1, 2
	ORDER BY 1, 2`

func (h *Handlers) quarterSums(ctx context.Context, orgID int64, since string) ([]quarterRow, error) {
	var rows []quarterRow
	if err := h.st.DB().SelectContext(ctx, &rows, quarterSumsSQL, orgID, since); err != nil {
		return nil, fmt.Errorf("quarter sums: %w", err)
	}
	return rows, nil
}

// QuarterlyForecast projects the last four quarters, extrapolating a partial
// current quarter linearly to 90 days.
func (h *Handlers) QuarterlyForecast(ctx context.Context, orgID int64, p *chat.QuarterlyForecastParams) (*Result, error) {
	now := h.nowFunc().UTC()
	since := now.AddDate(0, -15, 0).Format("2006-01-02")

	quarters, err := h.quarterSums(ctx, orgID, since)
	if err != nil {
		return nil, err
	}

	projections := ProjectQuarters(quarters, now)
	if p.TargetYear != nil {
		filtered := projections[:0]
		for _, pr := range projections {
			if pr.Year == *p.TargetYear {
				filtered = append(filtered, pr)
			}
		}
		projections = filtered
	}
	if len(projections) > 4 {
		projections = projections[len(projections)-4:]
	}

	rows := make([]map[string]interface{}, 0, len(projections))
	for _, pr := range projections {
		rows = append(rows, map[string]interface{}{
			"quarter_label":     pr.Label,
			"projected_revenue": pr.Revenue,
			"projected_units":   pr.Units,
			"projected_margin":  pr.Margin,
			"confidence":        pr.Confidence,
		})
	}

	return &Result{
		Columns:    []string{"quarter_label", "projected_revenue", "projected_units", "projected_margin", "confidence"},
		Rows:       rows,
		SQL:        quarterSumsSQL,
		Definition: "Quarterly revenue, units and margin with the current quarter projected to 90 days",
		Tables:     []string{"sales_daily"},
	}, nil
}

// AnnualBreakdown sums each quarter of the target year.
func (h *Handlers) AnnualBreakdown(ctx context.Context, orgID int64, p *chat.AnnualBreakdownParams) (*Result, error) {
	since := fmt.Sprintf("%d-01-01", p.TargetYear)
	quarters, err := h.quarterSums(ctx, orgID, since)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, 0, 4)
	for _, q := range quarters {
		if q.Year != p.TargetYear {
			continue
		}
		marginPct := 0.0
		if q.Revenue != 0 {
			marginPct = q.Margin / q.Revenue * 100
		}
		rows = append(rows, map[string]interface{}{
			"quarter_label":     fmt.Sprintf("%d-Q%d", q.Year, q.Quarter),
			"revenue":           q.Revenue,
			"units":             q.Units,
			"margin":            q.Margin,
			"margin_percentage": marginPct,
		})
	}

	return &Result{
		Columns:    []string{"quarter_label", "revenue", "units", "margin", "margin_percentage"},
		Rows:       rows,
		SQL:        quarterSumsSQL,
		Definition: fmt.Sprintf("Per-quarter revenue, units and margin percentage for %d", p.TargetYear),
		Tables:     []string{"sales_daily"},
	}, nil
}
