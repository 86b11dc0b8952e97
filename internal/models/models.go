package models

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// User is an account that can log in.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Part is the minimal catalog record orders hang off of.
type Part struct {
	IPN         string `json:"ipn"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Units       string `json:"units,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Supplier is a company we buy from.
type Supplier struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Website      string `json:"website,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	Address      string `json:"address,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Status       string `json:"status"`
	LeadTimeDays int    `json:"lead_time_days"`
	CreatedAt    string `json:"created_at"`
}

// Customer is a company we sell to.
type Customer struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Website      string `json:"website,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	Address      string `json:"address,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

// SupplierPart is a supplier's catalog entry for a part. The same part
// can be sold by many suppliers, and one supplier can list it under
// more than one SKU.
type SupplierPart struct {
	ID           int          `json:"id"`
	PartIPN      string       `json:"part"`
	SupplierID   string       `json:"supplier"`
	SKU          string       `json:"sku"`
	Manufacturer string       `json:"manufacturer,omitempty"`
	MPN          string       `json:"mpn,omitempty"`
	URL          string       `json:"url,omitempty"`
	Description  string       `json:"description,omitempty"`
	SinglePrice  float64      `json:"single_price"`
	BaseCost     float64      `json:"base_cost"`
	Packaging    string       `json:"packaging,omitempty"`
	Multiple     int          `json:"multiple"`
	Minimum      int          `json:"minimum"`
	LeadTimeDays int          `json:"lead_time_days"`
	CreatedAt    string       `json:"created_at"`
	PriceBreaks  []PriceBreak `json:"price_breaks,omitempty"`
}

// PriceBreak is a quantity discount threshold on a supplier part.
type PriceBreak struct {
	ID             int     `json:"id"`
	SupplierPartID int     `json:"supplier_part"`
	Quantity       int     `json:"quantity"`
	Cost           float64 `json:"cost"`
}

// PriceQuote is the resolved cost for buying a quantity of a supplier part.
type PriceQuote struct {
	SupplierPartID int     `json:"supplier_part"`
	Quantity       int     `json:"quantity"`
	UnitCost       float64 `json:"unit_cost"`
	BaseCost       float64 `json:"base_cost"`
	Total          float64 `json:"total"`
}

// PurchaseOrder is an order sent to a supplier. The ID doubles as the
// human-readable reference (PO-2026-0001).
type PurchaseOrder struct {
	ID          string              `json:"id"`
	SupplierID  string              `json:"supplier"`
	Status      string              `json:"status"`
	TargetDate  string              `json:"target_date,omitempty"`
	Notes       string              `json:"notes,omitempty"`
	CreatedBy   string              `json:"created_by,omitempty"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at"`
	PlacedAt    *string             `json:"placed_at,omitempty"`
	CompletedAt *string             `json:"completed_at,omitempty"`
	LineCount   int                 `json:"line_count"`
	Completion  float64             `json:"completion"`
	Overdue     bool                `json:"overdue"`
	Supplier    *Supplier           `json:"supplier_detail,omitempty"`
	Lines       []PurchaseOrderLine `json:"lines,omitempty"`
}

// PurchaseOrderLine is one part/quantity on a purchase order.
type PurchaseOrderLine struct {
	ID             int     `json:"id"`
	OrderID        string  `json:"order"`
	PartIPN        string  `json:"part"`
	SupplierPartID *int    `json:"supplier_part,omitempty"`
	QtyOrdered     float64 `json:"qty_ordered"`
	QtyReceived    float64 `json:"qty_received"`
	UnitCost       float64 `json:"unit_cost"`
	BaseCost       float64 `json:"base_cost"`
	Notes          string  `json:"notes,omitempty"`
}

// SalesOrder is an order from a customer.
type SalesOrder struct {
	ID         string           `json:"id"`
	CustomerID string           `json:"customer"`
	Status     string           `json:"status"`
	TargetDate string           `json:"target_date,omitempty"`
	Notes      string           `json:"notes,omitempty"`
	CreatedBy  string           `json:"created_by,omitempty"`
	CreatedAt  string           `json:"created_at"`
	UpdatedAt  string           `json:"updated_at"`
	ShippedAt  *string          `json:"shipped_at,omitempty"`
	LineCount  int              `json:"line_count"`
	Completion float64          `json:"completion"`
	Overdue    bool             `json:"overdue"`
	Customer   *Customer        `json:"customer_detail,omitempty"`
	Lines      []SalesOrderLine `json:"lines,omitempty"`
}

// SalesOrderLine is one part/quantity on a sales order. TotalAllocated
// is derived from allocation rows, never stored.
type SalesOrderLine struct {
	ID             int          `json:"id"`
	OrderID        string       `json:"order"`
	PartIPN        string       `json:"part"`
	QtyRequired    float64      `json:"qty_required"`
	UnitPrice      float64      `json:"unit_price"`
	Notes          string       `json:"notes,omitempty"`
	TotalAllocated float64      `json:"total_allocated"`
	FullyAllocated bool         `json:"fully_allocated"`
	Part           *Part        `json:"part_detail,omitempty"`
	Order          *SalesOrder  `json:"order_detail,omitempty"`
	Allocations    []Allocation `json:"allocations,omitempty"`
}

// StockBatch is a lot of a part at a location.
type StockBatch struct {
	ID        int     `json:"id"`
	PartIPN   string  `json:"part"`
	Location  string  `json:"location,omitempty"`
	BatchCode string  `json:"batch_code,omitempty"`
	Quantity  float64 `json:"quantity"`
	Reserved  float64 `json:"reserved"`
	Available float64 `json:"available"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// Allocation reserves a quantity from a stock batch for a sales order line.
type Allocation struct {
	ID        int     `json:"id"`
	LineID    int     `json:"line"`
	BatchID   int     `json:"batch"`
	Quantity  float64 `json:"quantity"`
	CreatedAt string  `json:"created_at"`
}

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	RecordID  string `json:"record_id"`
	Summary   string `json:"summary,omitempty"`
	CreatedAt string `json:"created_at"`
}
