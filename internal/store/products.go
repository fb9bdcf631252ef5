package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned for org-scoped lookups that match no row.
var ErrNotFound = errors.New("not found")

// ProductByID fetches one product scoped to the org.
func (s *Store) ProductByID(ctx context.Context, orgID, productID int64) (*Product, error) {
	const q = `
		SELECT id, org_id, sku, name, category, unit_cost, unit_price, unit_of_measure,
			reorder_point, safety_stock_days, pack_size, max_stock_days, supplier_id
		FROM products
		WHERE org_id = $1 AND id = $2`
	var p Product
	if err := s.db.GetContext(ctx, &p, q, orgID, productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("product %d: %w", productID, err)
	}
	return &p, nil
}

// ProductBySKUOrName looks up a product by exact SKU first, then by
// case-insensitive name.
func (s *Store) ProductBySKUOrName(ctx context.Context, orgID int64, query string) (*Product, error) {
	const q = `
		SELECT id, org_id, sku, name, category, unit_cost, unit_price, unit_of_measure,
			reorder_point, safety_stock_days, pack_size, max_stock_days, supplier_id
		FROM products
		WHERE org_id = $1 AND (sku = $2 OR LOWER(name) = LOWER($2))
		ORDER BY (sku = $2) DESC
		LIMIT 1`
	var p Product
	if err := s.db.GetContext(ctx, &p, q, orgID, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("product lookup %q: %w", query, err)
	}
	return &p, nil
}

// SupplierByID fetches one supplier scoped to the org.
func (s *Store) SupplierByID(ctx context.Context, orgID, supplierID int64) (*Supplier, error) {
	const q = `
		SELECT id, org_id, name, lead_time_days, min_order_qty, is_active, payment_terms
		FROM suppliers
		WHERE org_id = $1 AND id = $2`
	var sup Supplier
	if err := s.db.GetContext(ctx, &sup, q, orgID, supplierID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("supplier %d: %w", supplierID, err)
	}
	return &sup, nil
}
