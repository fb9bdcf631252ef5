package reorder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"stocksense/internal/store"
)

// DraftLine is one product on a draft purchase order.
type DraftLine struct {
	ProductID int64    `json:"product_id"`
	SKU       string   `json:"sku"`
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	UnitCost  *float64 `json:"unit_cost,omitempty"`
	LineTotal *float64 `json:"line_total,omitempty"`
}

// DraftPO groups accepted suggestions for one supplier.
type DraftPO struct {
	PONumber          string      `json:"po_number"`
	SupplierID        *int64      `json:"supplier_id,omitempty"`
	SupplierName      string      `json:"supplier_name"`
	Status            string      `json:"status"`
	Lines             []DraftLine `json:"lines"`
	TotalCost         float64     `json:"total_cost"`
	EstimatedDelivery time.Time   `json:"estimated_delivery"`
}

// GroupBySupplier folds suggestions into one draft per supplier, in first
// appearance order. Skipped suggestions are ignored. Products without a
// supplier land on a shared unassigned draft.
func GroupBySupplier(suggestions []Suggestion, now time.Time) []DraftPO {
	var drafts []DraftPO
	index := map[string]int{}

	for _, s := range suggestions {
		if s.Skipped || s.RecommendedQuantity < 1 {
			continue
		}

		key := "unassigned"
		if s.SupplierID != nil {
			key = fmt.Sprintf("s:%d", *s.SupplierID)
		}
		i, ok := index[key]
		if !ok {
			name := s.SupplierName
			if name == "" {
				name = "Unassigned"
			}
			drafts = append(drafts, DraftPO{
				SupplierID:        s.SupplierID,
				SupplierName:      name,
				Status:            store.POStatusDraft,
				EstimatedDelivery: now.AddDate(0, 0, s.LeadTimeDays),
			})
			i = len(drafts) - 1
			index[key] = i
		}

		line := DraftLine{
			ProductID: s.ProductID,
			SKU:       s.SKU,
			Name:      s.Name,
			Quantity:  s.RecommendedQuantity,
			UnitCost:  s.UnitCost,
		}
		if s.UnitCost != nil {
			total := *s.UnitCost * float64(s.RecommendedQuantity)
			line.LineTotal = &total
			drafts[i].TotalCost += total
		}
		// The longest lead time on the order drives the delivery estimate.
		if eta := now.AddDate(0, 0, s.LeadTimeDays); eta.After(drafts[i].EstimatedDelivery) {
			drafts[i].EstimatedDelivery = eta
		}
		drafts[i].Lines = append(drafts[i].Lines, line)
	}

	return drafts
}

// PersistDrafts numbers each draft and writes it through the store.
func PersistDrafts(ctx context.Context, st *store.Store, orgID int64, drafts []DraftPO, now time.Time) ([]DraftPO, error) {
	for i := range drafts {
		number, err := st.NextPONumber(ctx, orgID, now)
		if err != nil {
			return nil, fmt.Errorf("number draft po: %w", err)
		}
		drafts[i].PONumber = number

		eta := drafts[i].EstimatedDelivery
		po := store.PurchaseOrder{
			OrgID:             orgID,
			SupplierID:        drafts[i].SupplierID,
			PONumber:          number,
			Status:            store.POStatusDraft,
			EstimatedDelivery: &eta,
			TotalAmount:       drafts[i].TotalCost,
		}
		for _, line := range drafts[i].Lines {
			po.Items = append(po.Items, store.POItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitCost:  line.UnitCost,
				LineTotal: line.LineTotal,
			})
		}
		if _, err := st.CreateDraftPO(ctx, po); err != nil {
			return nil, fmt.Errorf("persist draft po %s: %w", number, err)
		}

		log.Info().
			Int64("org_id", orgID).
			Str("po_number", number).
			Int("lines", len(po.Items)).
			Float64("total_cost", drafts[i].TotalCost).
			Msg("reorder: draft po created")
	}
	return drafts, nil
}
