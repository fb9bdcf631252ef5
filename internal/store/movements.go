package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// OnHandExpr derives signed on-hand from a movement-log aggregate aliased
// as m. Types out and
// transfer always reduce stock; in and adjust carry their recorded sign,
// and adjust is constrained to be positive at the write boundary.
const OnHandExpr = `SUM(CASE WHEN m.type IN ('out', 'transfer') THEN -ABS(m.quantity) ELSE m.quantity END)`

// RecordMovement appends one immutable inventory movement. A negative
// quantity on an adjust movement is rejected; callers that want to shrink
// stock must record an out movement (BulkAdjust does this flip).
func (s *Store) RecordMovement(ctx context.Context, m Movement) (int64, error) {
	if m.Type == MovementAdjust && m.Quantity < 0 {
		return 0, fmt.Errorf("adjust movement must have positive quantity, got %v", m.Quantity)
	}
	switch m.Type {
	case MovementIn, MovementOut, MovementAdjust, MovementTransfer:
	default:
		return 0, fmt.Errorf("unknown movement type %q", m.Type)
	}

	const q = `
		INSERT INTO inventory_movements (org_id, product_id, location_id, quantity, type, occurred_at, reference, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	var id int64
	err := s.db.GetContext(ctx, &id, q,
		m.OrgID, m.ProductID, m.LocationID, m.Quantity, m.Type, m.OccurredAt, m.Reference, m.Notes)
	if err != nil {
		return 0, fmt.Errorf("record movement: %w", err)
	}
	return id, nil
}

// BulkAdjust records an adjustment, flipping negative quantities to out
// movements so the adjust-is-positive invariant holds for every row.
func (s *Store) BulkAdjust(ctx context.Context, m Movement) (int64, error) {
	if m.Type != MovementAdjust {
		return 0, fmt.Errorf("bulk adjust requires adjust type, got %q", m.Type)
	}
	if m.Quantity < 0 {
		log.Debug().
			Int64("product_id", m.ProductID).
			Float64("quantity", m.Quantity).
			Msg("movements: negative adjustment recorded as out")
		m.Type = MovementOut
		m.Quantity = -m.Quantity
	}
	return s.RecordMovement(ctx, m)
}

// OnHand computes current on-hand for one product by summing its movements.
func (s *Store) OnHand(ctx context.Context, orgID, productID int64) (float64, error) {
	q := fmt.Sprintf(`
		SELECT COALESCE(%s, 0)
		FROM inventory_movements m
		WHERE m.org_id = $1 AND m.product_id = $2`, OnHandExpr)
	var onHand float64
	if err := s.db.GetContext(ctx, &onHand, q, orgID, productID); err != nil {
		return 0, fmt.Errorf("on-hand for product %d: %w", productID, err)
	}
	return onHand, nil
}

// OnHandAll computes on-hand for every product in the org in one pass.
func (s *Store) OnHandAll(ctx context.Context, orgID int64) (map[int64]float64, error) {
	q := fmt.Sprintf(`
		SELECT m.product_id, COALESCE(%s, 0) AS on_hand
		FROM inventory_movements m
		WHERE m.org_id = $1
		GROUP BY m.product_id`, OnHandExpr)

	rows := []struct {
		ProductID int64   `db:"product_id"`
		OnHand    float64 `db:"on_hand"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, q, orgID); err != nil {
		return nil, fmt.Errorf("on-hand all: %w", err)
	}

	out := make(map[int64]float64, len(rows))
	for _, r := range rows {
		out[r.ProductID] = r.OnHand
	}
	return out, nil
}

// TodayMovementCount counts inventory movements recorded today in the
// caller's time zone.
func (s *Store) TodayMovementCount(ctx context.Context, orgID int64) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM inventory_movements m
		WHERE m.org_id = $1 AND m.occurred_at >= date_trunc('day', NOW())`
	var n int
	if err := s.db.GetContext(ctx, &n, q, orgID); err != nil {
		return 0, fmt.Errorf("today movement count: %w", err)
	}
	return n, nil
}
