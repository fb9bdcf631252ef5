package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrConflict is returned for lifecycle violations such as deleting a
// non-draft purchase order.
var ErrConflict = errors.New("conflict")

// poTransitions lists the allowed forward moves. Draft converts to committed
// on its first non-draft status; committed orders only advance.
var poTransitions = map[string][]string{
	POStatusDraft:   {POStatusPending, POStatusOrdered, POStatusCancelled},
	POStatusPending: {POStatusOrdered, POStatusCancelled},
	POStatusOrdered: {POStatusReceived, POStatusCancelled},
}

func canTransition(from, to string) bool {
	for _, next := range poTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextPONumber allocates a per-org PO number of the form PO-YYYYMMDD-<seq>.
func (s *Store) NextPONumber(ctx context.Context, orgID int64, now time.Time) (string, error) {
	const q = `
		SELECT COUNT(*)
		FROM purchase_orders
		WHERE org_id = $1 AND created_at >= date_trunc('day', $2::timestamptz)`
	var n int
	if err := s.db.GetContext(ctx, &n, q, orgID, now); err != nil {
		return "", fmt.Errorf("po sequence: %w", err)
	}
	return fmt.Sprintf("PO-%s-%03d", now.Format("20060102"), n+1), nil
}

// CreateDraftPO inserts a draft purchase order with its items in one
// transaction.
func (s *Store) CreateDraftPO(ctx context.Context, po PurchaseOrder) (*PurchaseOrder, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const insPO = `
		INSERT INTO purchase_orders (org_id, supplier_id, po_number, status, estimated_delivery, total_amount, created_at)
		VALUES ($1, $2, $3, 'draft', $4, $5, NOW())
		RETURNING id, created_at`
	row := tx.QueryRowxContext(ctx, insPO, po.OrgID, po.SupplierID, po.PONumber, po.EstimatedDelivery, po.TotalAmount)
	if err := row.Scan(&po.ID, &po.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert po: %w", err)
	}
	po.Status = POStatusDraft

	const insItem = `
		INSERT INTO po_items (po_id, product_id, quantity, unit_cost, line_total)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	for i := range po.Items {
		it := &po.Items[i]
		it.POID = po.ID
		if err := tx.QueryRowxContext(ctx, insItem, po.ID, it.ProductID, it.Quantity, it.UnitCost, it.LineTotal).Scan(&it.ID); err != nil {
			return nil, fmt.Errorf("insert po item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit po: %w", err)
	}
	return &po, nil
}

// AdvancePOStatus moves a purchase order forward through its lifecycle.
// On transition to ordered, order_date is set if unset; on received,
// received_date is set.
func (s *Store) AdvancePOStatus(ctx context.Context, orgID, poID int64, toStatus string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	const sel = `SELECT status FROM purchase_orders WHERE org_id = $1 AND id = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &current, sel, orgID, poID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("po %d: %w", poID, err)
	}

	if !canTransition(current, toStatus) {
		return fmt.Errorf("%w: purchase order cannot move from %s to %s", ErrConflict, current, toStatus)
	}

	const upd = `
		UPDATE purchase_orders
		SET status = $3,
			order_date = CASE WHEN $3 = 'ordered' AND order_date IS NULL THEN NOW() ELSE order_date END,
			received_date = CASE WHEN $3 = 'received' THEN NOW() ELSE received_date END
		WHERE org_id = $1 AND id = $2`
	if _, err := tx.ExecContext(ctx, upd, orgID, poID, toStatus); err != nil {
		return fmt.Errorf("advance po %d: %w", poID, err)
	}

	return tx.Commit()
}

// DeletePO removes a purchase order. Only drafts are deletable.
func (s *Store) DeletePO(ctx context.Context, orgID, poID int64) error {
	const q = `DELETE FROM purchase_orders WHERE org_id = $1 AND id = $2 AND status = 'draft'`
	res, err := s.db.ExecContext(ctx, q, orgID, poID)
	if err != nil {
		return fmt.Errorf("delete po %d: %w", poID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists bool
		const chk = `SELECT EXISTS(SELECT 1 FROM purchase_orders WHERE org_id = $1 AND id = $2)`
		if err := s.db.GetContext(ctx, &exists, chk, orgID, poID); err == nil && exists {
			return fmt.Errorf("%w: only draft purchase orders can be deleted", ErrConflict)
		}
		return ErrNotFound
	}
	return nil
}
