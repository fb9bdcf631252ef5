package store

import "time"

// Product belongs to one org; SKU is unique per org.
type Product struct {
	ID              int64    `db:"id" json:"id"`
	OrgID           int64    `db:"org_id" json:"org_id"`
	SKU             string   `db:"sku" json:"sku"`
	Name            string   `db:"name" json:"name"`
	Category        string   `db:"category" json:"category"`
	UnitCost        *float64 `db:"unit_cost" json:"unit_cost,omitempty"`
	UnitPrice       *float64 `db:"unit_price" json:"unit_price,omitempty"`
	UnitOfMeasure   string   `db:"unit_of_measure" json:"unit_of_measure"`
	ReorderPoint    int      `db:"reorder_point" json:"reorder_point"`
	SafetyStockDays int      `db:"safety_stock_days" json:"safety_stock_days"`
	PackSize        int      `db:"pack_size" json:"pack_size"`
	MaxStockDays    *int     `db:"max_stock_days" json:"max_stock_days,omitempty"`
	SupplierID      *int64   `db:"supplier_id" json:"supplier_id,omitempty"`
}

// Supplier holds replenishment terms for its org's products.
type Supplier struct {
	ID           int64  `db:"id" json:"id"`
	OrgID        int64  `db:"org_id" json:"org_id"`
	Name         string `db:"name" json:"name"`
	LeadTimeDays int    `db:"lead_time_days" json:"lead_time_days"`
	MinOrderQty  int    `db:"min_order_qty" json:"min_order_qty"`
	IsActive     bool   `db:"is_active" json:"is_active"`
	PaymentTerms string `db:"payment_terms" json:"payment_terms"`
}

// Location is a warehouse, store or virtual location within an org.
type Location struct {
	ID    int64  `db:"id" json:"id"`
	OrgID int64  `db:"org_id" json:"org_id"`
	Name  string `db:"name" json:"name"`
	Type  string `db:"type" json:"type"` // warehouse, store, virtual
}

// Movement types. On-hand is always derived by summing movements with sign
// by type; it is never stored.
const (
	MovementIn       = "in"
	MovementOut      = "out"
	MovementAdjust   = "adjust"
	MovementTransfer = "transfer"
)

// Movement is an immutable inventory event. Rows are append-only.
type Movement struct {
	ID         int64     `db:"id" json:"id"`
	OrgID      int64     `db:"org_id" json:"org_id"`
	ProductID  int64     `db:"product_id" json:"product_id"`
	LocationID *int64    `db:"location_id" json:"location_id,omitempty"`
	Quantity   float64   `db:"quantity" json:"quantity"`
	Type       string    `db:"type" json:"type"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
	Reference  string    `db:"reference" json:"reference"`
	Notes      string    `db:"notes" json:"notes"`
}

/// Purchase order statuses. Lifecycle: draft is mutable and deletable; any
// other state is only status-advanceable.
const (
	POStatusDraft     = "draft"
	POStatusPending   = "pending"
	POStatusOrdered   = "ordered"
	POStatusReceived  = "received"
	POStatusCancelled = "cancelled"
)

// PurchaseOrder is supplier-scoped within an org.
type PurchaseOrder struct {
	ID                int64      `db:"id" json:"id"`
	OrgID             int64      `db:"org_id" json:"org_id"`
	SupplierID        *int64     `db:"supplier_id" json:"supplier_id,omitempty"`
	PONumber          string     `db:"po_number" json:"po_number"`
	Status            string     `db:"status" json:"status"`
	OrderDate         *time.Time `db:"order_date" json:"order_date,omitempty"`
	ReceivedDate      *time.Time `db:"received_date" json:"received_date,omitempty"`
	EstimatedDelivery *time.Time `db:"estimated_delivery" json:"estimated_delivery,omitempty"`
	TotalAmount       float64    `db:"total_amount" json:"total_amount"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`

	Items []POItem `db:"-" json:"items,omitempty"`
}

// POItem is one line of a purchase order.
type POItem struct {
	ID        int64    `db:"id" json:"id"`
	POID      int64    `db:"po_id" json:"po_id"`
	ProductID int64    `db:"product_id" json:"product_id"`
	Quantity  int      `db:"quantity" json:"quantity"`
	UnitCost  *float64 `db:"unit_cost" json:"unit_cost,omitempty"`
	LineTotal *float64 `db:"line_total" json:"line_total,omitempty"`
}

// ReorderInput is one row of the reorder-inputs mart: product attributes
// joined with current on-hand, velocities and incoming units.
type ReorderInput struct {
	ProductID       int64    `db:"product_id" json:"product_id"`
	SKU             string   `db:"sku" json:"sku"`
	Name            string   `db:"name" json:"name"`
	OnHand          float64  `db:"on_hand" json:"on_hand"`
	ReorderPoint    int      `db:"reorder_point" json:"reorder_point"`
	SafetyStockDays int      `db:"safety_stock_days" json:"safety_stock_days"`
	PackSize        int      `db:"pack_size" json:"pack_size"`
	MaxStockDays    *int     `db:"max_stock_days" json:"max_stock_days,omitempty"`
	LeadTimeDays    int      `db:"lead_time_days" json:"lead_time_days"`
	MOQ             int      `db:"moq" json:"moq"`
	UnitCost        *float64 `db:"unit_cost" json:"unit_cost,omitempty"`
	SupplierID      *int64   `db:"supplier_id" json:"supplier_id,omitempty"`
	SupplierName    string   `db:"supplier_name" json:"supplier_name"`
	V7              *float64 `db:"units_7day_avg" json:"units_7day_avg,omitempty"`
	V30             *float64 `db:"units_30day_avg" json:"units_30day_avg,omitempty"`
	V56             *float64 `db:"units_56day_avg" json:"units_56day_avg,omitempty"`
	Incoming30      float64  `db:"incoming_30d" json:"incoming_30d"`
	Incoming60      float64  `db:"incoming_60d" json:"incoming_60d"`
}

// SalesDay is one per-day row of the sales summary used by the analytics
// bundle and the week-in-review handler.
type SalesDay struct {
	Day     time.Time `db:"day" json:"day"`
	Revenue float64   `db:"revenue" json:"revenue"`
	Units   float64   `db:"units" json:"units"`
	Margin  float64   `db:"margin" json:"margin"`
	Orders  int       `db:"orders" json:"orders"`
}

// SKUMargin is a per-SKU margin aggregate over a trailing window.
type SKUMargin struct {
	SKU         string  `db:"sku" json:"sku"`
	Name        string  `db:"name" json:"name"`
	GrossMargin float64 `db:"gross_margin" json:"gross_margin"`
	Revenue     float64 `db:"revenue" json:"revenue"`
	Units       float64 `db:"units" json:"units"`
}

// InventoryCounts summarizes stock state for the context snapshot.
type InventoryCounts struct {
	TotalSKUs   int     `db:"total_skus" json:"total_skus"`
	OutOfStock  int     `db:"out_of_stock" json:"out_of_stock"`
	LowStock    int     `db:"low_stock" json:"low_stock"`
	TotalUnits  float64 `db:"total_units" json:"total_units"`
}

// ChannelPerf is per-channel sales performance. Channel values are opaque
// strings from the mart.
type ChannelPerf struct {
	Channel string  `db:"channel" json:"channel"`
	Revenue float64 `db:"revenue" json:"revenue"`
	Units   float64 `db:"units" json:"units"`
	Orders  int     `db:"orders" json:"orders"`
}
