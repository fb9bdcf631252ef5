package store

import (
	"context"
	"fmt"
)

// ReorderInputs loads the reorder-inputs mart: one row per product joining
// product attributes, current on-hand, velocities and incoming units within
// 30/60 days. When the 56-day velocity column is absent the row's V56 stays
// nil and downstream selection uses the two-velocity form.
func (s *Store) ReorderInputs(ctx context.Context, orgID int64, locationID *int64) ([]ReorderInput, error) {
	v56Col := "NULL::float AS units_56day_avg"
	if s.HasVelocity56(ctx) {
		v56Col = "v.units_56day_avg"
	}

	locFilter := ""
	args := []interface{}{orgID}
	if locationID != nil {
		locFilter = "AND m.location_id = $2"
		args = append(args, *locationID)
	}

	q := fmt.Sprintf(`
		WITH on_hand AS (
			SELECT m.product_id, COALESCE(%s, 0) AS on_hand
			FROM inventory_movements m
			WHERE m.org_id = $1 %s
			GROUP BY m.product_id
		),
		velocity AS (
			SELECT sd.sku,
				AVG(sd.units_7day_avg) AS units_7day_avg,
				AVG(sd.units_30day_avg) AS units_30day_avg
				%s
			FROM sales_daily sd
			WHERE sd.org_id = $1 AND sd.day = (SELECT MAX(day) FROM sales_daily WHERE org_id = $1)
			GROUP BY sd.sku
		),
		incoming AS (
			SELECT pi.product_id,
				COALESCE(SUM(pi.quantity) FILTER (WHERE po.estimated_delivery <= NOW() + INTERVAL '30 days'), 0) AS incoming_30d,
				COALESCE(SUM(pi.quantity) FILTER (WHERE po.estimated_delivery <= NOW() + INTERVAL '60 days'), 0) AS incoming_60d
			FROM po_items pi
			JOIN purchase_orders po ON po.id = pi.po_id
			WHERE po.org_id = $1 AND po.status IN ('pending', 'ordered')
			GROUP BY pi.product_id
		)
		SELECT
			p.id AS product_id,
			p.sku,
			p.name,
			COALESCE(oh.on_hand, 0) AS on_hand,
			p.reorder_point,
			p.safety_stock_days,
			p.pack_size,
			p.max_stock_days,
			COALESCE(s.lead_time_days, 7) AS lead_time_days,
			COALESCE(s.min_order_qty, 1) AS moq,
			p.unit_cost,
			p.supplier_id,
			COALESCE(s.name, '') AS supplier_name,
			v.units_7day_avg,
			v.units_30day_avg,
			%s,
			COALESCE(inc.incoming_30d, 0) AS incoming_30d,
			COALESCE(inc.incoming_60d, 0) AS incoming_60d
		FROM products p
		LEFT JOIN on_hand oh ON oh.product_id = p.id
		LEFT JOIN velocity v ON v.sku = p.sku
		LEFT JOIN incoming inc ON inc.product_id = p.id
		LEFT JOIN suppliers s ON s.id = p.supplier_id AND s.org_id = p.org_id
		WHERE p.org_id = $1
		ORDER BY p.sku`,
		OnHandExpr, locFilter,
		velocity56Select(s.HasVelocity56(ctx)),
		v56Col)

	var rows []ReorderInput
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("reorder inputs: %w", err)
	}
	return rows, nil
}

func velocity56Select(has bool) string {
	if has {
		return ", AVG(sd.units_56day_avg) AS units_56day_avg"
	}
	return ""
}

// SalesByDay returns per-day revenue/units/margin/orders from the mart for
// the trailing window.
func (s *Store) SalesByDay(ctx context.Context, orgID int64, days int) ([]SalesDay, error) {
	const q = `
		SELECT sd.day,
			COALESCE(SUM(sd.gross_revenue), 0) AS revenue,
			COALESCE(SUM(sd.units_sold), 0) AS units,
			COALESCE(SUM(sd.gross_margin), 0) AS margin,
			COALESCE(SUM(sd.orders_count), 0) AS orders
		FROM sales_daily sd
		WHERE sd.org_id = $1 AND sd.day >= CURRENT_DATE - $2::int
		GROUP BY sd.day
		ORDER BY sd.day`
	var rows []SalesDay
	if err := s.db.SelectContext(ctx, &rows, q, orgID, days); err != nil {
		return nil, fmt.Errorf("sales by day: %w", err)
	}
	return rows, nil
}

// ChannelPerformance aggregates the mart per channel over the window.
func (s *Store) ChannelPerformance(ctx context.Context, orgID int64, days int) ([]ChannelPerf, error) {
	const q = `
		SELECT o.channel,
			COALESCE(SUM(oi.quantity * oi.unit_price * (1 - oi.discount)), 0) AS revenue,
			COALESCE(SUM(oi.quantity), 0) AS units,
			COUNT(DISTINCT o.id) AS orders
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE o.org_id = $1 AND o.ordered_at >= NOW() - ($2::int * INTERVAL '1 day')
		GROUP BY o.channel
		ORDER BY revenue DESC`
	var rows []ChannelPerf
	if err := s.db.SelectContext(ctx, &rows, q, orgID, days); err != nil {
		return nil, fmt.Errorf("channel performance: %w", err)
	}
	return rows, nil
}

// TopSKUsByMargin returns per-SKU gross margin sums over the window,
// descending when desc is true, limited to n rows.
func (s *Store) TopSKUsByMargin(ctx context.Context, orgID int64, days, n int, desc bool) ([]SKUMargin, error) {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	q := fmt.Sprintf(`
		SELECT sd.sku,
			COALESCE(MAX(p.name), sd.sku) AS name,
			COALESCE(SUM(sd.gross_margin), 0) AS gross_margin,
			COALESCE(SUM(sd.gross_revenue), 0) AS revenue,
			COALESCE(SUM(sd.units_sold), 0) AS units
		FROM sales_daily sd
		LEFT JOIN products p ON p.sku = sd.sku AND p.org_id = sd.org_id
		WHERE sd.org_id = $1 AND sd.day >= CURRENT_DATE - $2::int
		GROUP BY sd.sku
		ORDER BY gross_margin %s
		LIMIT $3`, dir)
	var rows []SKUMargin
	if err := s.db.SelectContext(ctx, &rows, q, orgID, days, n); err != nil {
		return nil, fmt.Errorf("top skus by margin: %w", err)
	}
	return rows, nil
}

// CountInventory summarizes stock state across the org.
func (s *Store) CountInventory(ctx context.Context, orgID int64) (InventoryCounts, error) {
	q := fmt.Sprintf(`
		WITH on_hand AS (
			SELECT m.product_id, COALESCE(%s, 0) AS on_hand
			FROM inventory_movements m
			WHERE m.org_id = $1
			GROUP BY m.product_id
		)
		SELECT
			COUNT(p.id) AS total_skus,
			COUNT(p.id) FILTER (WHERE COALESCE(oh.on_hand, 0) <= 0) AS out_of_stock,
			COUNT(p.id) FILTER (WHERE COALESCE(oh.on_hand, 0) > 0 AND COALESCE(oh.on_hand, 0) <= p.reorder_point) AS low_stock,
			COALESCE(SUM(GREATEST(oh.on_hand, 0)), 0) AS total_units
		FROM products p
		LEFT JOIN on_hand oh ON oh.product_id = p.id
		WHERE p.org_id = $1`, OnHandExpr)
	var counts InventoryCounts
	if err := s.db.GetContext(ctx, &counts, q, orgID); err != nil {
		return counts, fmt.Errorf("inventory counts: %w", err)
	}
	return counts, nil
}
