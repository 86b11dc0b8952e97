package procurement

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"orderhub/internal/audit"
	"orderhub/internal/database"
	"orderhub/internal/models"
	"orderhub/internal/response"
	"orderhub/internal/validation"
)

const poCols = "id,supplier_id,status,COALESCE(target_date,''),COALESCE(notes,''),COALESCE(created_by,''),created_at,updated_at,placed_at,completed_at"

func scanPO(row interface{ Scan(...interface{}) error }) (models.PurchaseOrder, error) {
	var o models.PurchaseOrder
	var placedAt, completedAt sql.NullString
	err := row.Scan(&o.ID, &o.SupplierID, &o.Status, &o.TargetDate, &o.Notes, &o.CreatedBy,
		&o.CreatedAt, &o.UpdatedAt, &placedAt, &completedAt)
	o.PlacedAt = database.SP(placedAt)
	o.CompletedAt = database.SP(completedAt)
	return o, err
}

// orderingClause maps the public ordering keys onto columns. Unknown
// keys fall back to the default, newest first.
func orderingClause(param, table string) string {
	desc := strings.HasPrefix(param, "-")
	key := strings.TrimPrefix(param, "-")
	col := ""
	switch key {
	case "creation_date":
		col = table + ".created_at"
	case "reference":
		col = table + ".id"
	}
	if col == "" {
		return table + ".created_at DESC"
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}

// ListPurchaseOrders handles GET /api/v1/purchase-orders. Entity
// filters referencing missing rows are dropped rather than erroring;
// the part filter matches orders with at least one line for the part.
func (h *Handler) ListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	supplier := q.Get("supplier")
	part := q.Get("part")
	supplierPart := q.Get("supplier_part")
	supplierDetail := validation.Str2Bool(q.Get("supplier_detail"))

	query := "SELECT " + poCols + " FROM purchase_orders"
	var conditions []string
	var args []interface{}

	if status != "" {
		conditions = append(conditions, "status=?")
		args = append(args, status)
	}
	if supplier != "" {
		var n int
		h.DB.QueryRow("SELECT COUNT(*) FROM suppliers WHERE id=?", supplier).Scan(&n)
		if n > 0 {
			conditions = append(conditions, "supplier_id=?")
			args = append(args, supplier)
		}
	}
	if part != "" {
		var n int
		h.DB.QueryRow("SELECT COUNT(*) FROM parts WHERE ipn=?", part).Scan(&n)
		if n > 0 {
			conditions = append(conditions, "EXISTS (SELECT 1 FROM purchase_order_lines l WHERE l.order_id=purchase_orders.id AND l.part_ipn=?)")
			args = append(args, part)
		}
	}
	if supplierPart != "" {
		var n int
		h.DB.QueryRow("SELECT COUNT(*) FROM supplier_parts WHERE id=?", supplierPart).Scan(&n)
		if n > 0 {
			conditions = append(conditions, "EXISTS (SELECT 1 FROM purchase_order_lines l WHERE l.order_id=purchase_orders.id AND l.supplier_part_id=?)")
			args = append(args, supplierPart)
		}
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY " + orderingClause(q.Get("ordering"), "purchase_orders")

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.PurchaseOrder
	for rows.Next() {
		o, err := scanPO(rows)
		if err != nil {
			continue
		}
		h.addComputed(&o)
		if supplierDetail {
			o.Supplier = h.supplierDetail(o.SupplierID)
		}
		items = append(items, o)
	}
	if items == nil {
		items = []models.PurchaseOrder{}
	}
	response.JSON(w, items)
}

func (h *Handler) supplierDetail(id string) *models.Supplier {
	var s models.Supplier
	err := h.DB.QueryRow("SELECT id,name,COALESCE(website,''),COALESCE(contact_name,''),COALESCE(contact_email,''),COALESCE(contact_phone,''),COALESCE(address,''),COALESCE(notes,''),status,lead_time_days,created_at FROM suppliers WHERE id=?", id).
		Scan(&s.ID, &s.Name, &s.Website, &s.ContactName, &s.ContactEmail, &s.ContactPhone,
			&s.Address, &s.Notes, &s.Status, &s.LeadTimeDays, &s.CreatedAt)
	if err != nil {
		return nil
	}
	return &s
}

// addComputed fills line_count, completion, and overdue.
func (h *Handler) addComputed(o *models.PurchaseOrder) {
	rows, err := h.DB.Query("SELECT qty_ordered,qty_received FROM purchase_order_lines WHERE order_id=?", o.ID)
	if err != nil {
		return
	}
	defer rows.Close()
	var sum float64
	for rows.Next() {
		var ordered, received float64
		rows.Scan(&ordered, &received)
		o.LineCount++
		frac := received / ordered
		if frac > 1 {
			frac = 1
		}
		sum += frac
	}
	if o.LineCount > 0 {
		o.Completion = sum / float64(o.LineCount)
	}
	o.Overdue = isOverdue(o.TargetDate, o.Status, validation.IsTerminalPO)
}

func isOverdue(targetDate, status string, terminal func(string) bool) bool {
	if targetDate == "" || terminal(status) {
		return false
	}
	target, err := time.Parse("2006-01-02", targetDate)
	if err != nil {
		return false
	}
	return target.Before(time.Now().Truncate(24 * time.Hour))
}

// GetPurchaseOrder handles GET /api/v1/purchase-orders/:id.
func (h *Handler) GetPurchaseOrder(w http.ResponseWriter, r *http.Request, id string) {
	o, err := scanPO(h.DB.QueryRow("SELECT "+poCols+" FROM purchase_orders WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "purchase order")
		return
	}
	h.addComputed(&o)
	o.Lines = h.getLines(id)
	if validation.Str2Bool(r.URL.Query().Get("supplier_detail")) {
		o.Supplier = h.supplierDetail(o.SupplierID)
	}
	response.JSON(w, o)
}

// CreatePurchaseOrder handles POST /api/v1/purchase-orders. Orders
// start pending; lines may be included inline.
func (h *Handler) CreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var o models.PurchaseOrder
	if err := response.DecodeBody(r, &o); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "supplier", o.SupplierID)
	validation.ValidateDate(ve, "target_date", o.TargetDate)
	if o.Status != "" && o.Status != "pending" {
		ve.Add("status", "new orders start in pending status")
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM suppliers WHERE id=?", o.SupplierID).Scan(&n)
	if n == 0 {
		response.NotFound(w, "supplier")
		return
	}

	o.ID = h.NextID("PO", "purchase_orders", 4)
	o.Status = "pending"
	now := time.Now().Format("2006-01-02 15:04:05")
	o.CreatedBy = audit.Username(h.DB, r)
	_, err := h.DB.Exec("INSERT INTO purchase_orders (id,supplier_id,status,target_date,notes,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)",
		o.ID, o.SupplierID, o.Status, database.NS(optional(o.TargetDate)), o.Notes, o.CreatedBy, now, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	for i := range o.Lines {
		if err := h.insertLine(o.ID, &o.Lines[i]); err != nil {
			response.Err(w, "lines: "+err.Error(), 400)
			return
		}
	}

	audit.Log(h.DB, h.Hub, o.CreatedBy, audit.ActionCreate, "purchase_order", o.ID, "Created "+o.ID+" for "+o.SupplierID)
	h.GetPurchaseOrder(w, r, o.ID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UpdatePurchaseOrder handles PUT /api/v1/purchase-orders/:id. Header
// fields only; status moves through the lifecycle endpoints. Closed
// orders reject all edits.
func (h *Handler) UpdatePurchaseOrder(w http.ResponseWriter, r *http.Request, id string) {
	cur, err := scanPO(h.DB.QueryRow("SELECT "+poCols+" FROM purchase_orders WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "purchase order")
		return
	}
	if validation.IsTerminalPO(cur.Status) {
		response.ErrCode(w, "order "+id+" is "+cur.Status+" and cannot be modified", response.CodeOrderClosed, 409)
		return
	}

	var req struct {
		TargetDate *string `json:"target_date"`
		Notes      *string `json:"notes"`
		Status     *string `json:"status"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if req.Status != nil && *req.Status != cur.Status {
		response.Err(w, "status: use the place/receive/cancel endpoints to change order status", 400)
		return
	}
	if req.TargetDate != nil {
		cur.TargetDate = *req.TargetDate
	}
	if req.Notes != nil {
		cur.Notes = *req.Notes
	}

	ve := &validation.ValidationErrors{}
	validation.ValidateDate(ve, "target_date", cur.TargetDate)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	_, err = h.DB.Exec("UPDATE purchase_orders SET target_date=?,notes=?,updated_at=? WHERE id=?",
		database.NS(optional(cur.TargetDate)), cur.Notes, now, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, "purchase_order", id, "Updated "+id)
	h.GetPurchaseOrder(w, r, id)
}

// PlacePurchaseOrder handles POST /api/v1/purchase-orders/:id/place.
// pending -> placed; requires at least one line.
func (h *Handler) PlacePurchaseOrder(w http.ResponseWriter, r *http.Request, id string) {
	o, err := scanPO(h.DB.QueryRow("SELECT "+poCols+" FROM purchase_orders WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "purchase order")
		return
	}
	if o.Status != "pending" {
		if validation.IsTerminalPO(o.Status) {
			response.ErrCode(w, "order "+id+" is "+o.Status+" and cannot be modified", response.CodeOrderClosed, 409)
			return
		}
		response.Err(w, "order must be pending to place (currently "+o.Status+")", 400)
		return
	}

	var lineCount int
	h.DB.QueryRow("SELECT COUNT(*) FROM purchase_order_lines WHERE order_id=?", id).Scan(&lineCount)
	if lineCount == 0 {
		response.Err(w, "order has no line items", 400)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	_, err = h.DB.Exec("UPDATE purchase_orders SET status='placed',placed_at=?,updated_at=? WHERE id=?", now, now, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionPlace, "purchase_order", id, "Placed "+id)
	h.GetPurchaseOrder(w, r, id)
}

// CancelPurchaseOrder handles POST /api/v1/purchase-orders/:id/cancel.
// Allowed from any non-terminal state.
func (h *Handler) CancelPurchaseOrder(w http.ResponseWriter, r *http.Request, id string) {
	o, err := scanPO(h.DB.QueryRow("SELECT "+poCols+" FROM purchase_orders WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "purchase order")
		return
	}
	if validation.IsTerminalPO(o.Status) {
		response.ErrCode(w, "order "+id+" is already "+o.Status, response.CodeOrderClosed, 409)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	_, err = h.DB.Exec("UPDATE purchase_orders SET status='cancelled',updated_at=? WHERE id=?", now, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCancel, "purchase_order", id, "Cancelled "+id)
	h.GetPurchaseOrder(w, r, id)
}
