package sales

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

const soCols = "id,customer_id,status,COALESCE(target_date,''),COALESCE(notes,''),COALESCE(created_by,''),created_at,updated_at,shipped_at"

func scanSO(row interface{ Scan(...interface{}) error }) (models.SalesOrder, error) {
	var o models.SalesOrder
	var shippedAt sql.NullString
	err := row.Scan(&o.ID, &o.CustomerID, &o.Status, &o.TargetDate, &o.Notes, &o.CreatedBy,
		&o.CreatedAt, &o.UpdatedAt, &shippedAt)
	o.ShippedAt = database.SP(shippedAt)
	return o, err
}

func orderingClause(param string) string {
	desc := strings.HasPrefix(param, "-")
	key := strings.TrimPrefix(param, "-")
	col := ""
	switch key {
	case "creation_date":
		col = "sales_orders.created_at"
	case "reference":
		col = "sales_orders.id"
	}
	if col == "" {
		return "sales_orders.created_at DESC"
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}

// ListSalesOrders handles GET /api/v1/sales-orders. Entity filters
// referencing missing rows are dropped; the part filter matches orders
// with at least one line for the part.
func (h *Handler) ListSalesOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	customer := q.Get("customer")
	part := q.Get("part")
	customerDetail := validation.Str2Bool(q.Get("customer_detail"))

	query := "SELECT " + soCols + " FROM sales_orders"
	var conditions []string
	var args []interface{}

	if status != "" {
		conditions = append(conditions, "status=?")
		args = append(args, status)
	}
	if customer != "" {
		var n int
		h.DB.QueryRow("SELECT COUNT(*) FROM customers WHERE id=?", customer).Scan(&n)
		if n > 0 {
			conditions = append(conditions, "customer_id=?")
			args = append(args, customer)
		}
	}
	if part != "" {
		var n int
		h.DB.QueryRow("SELECT COUNT(*) FROM parts WHERE ipn=?", part).Scan(&n)
		if n > 0 {
			conditions = append(conditions, "EXISTS (SELECT 1 FROM sales_order_lines l WHERE l.order_id=sales_orders.id AND l.part_ipn=?)")
			args = append(args, part)
		}
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY " + orderingClause(q.Get("ordering"))

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.SalesOrder
	for rows.Next() {
		o, err := scanSO(rows)
		if err != nil {
			continue
		}
		h.addComputed(&o)
		if customerDetail {
			o.Customer = h.customerDetail(o.CustomerID)
		}
		items = append(items, o)
	}
	if items == nil {
		items = []models.SalesOrder{}
	}
	response.JSON(w, items)
}

func (h *Handler) customerDetail(id string) *models.Customer {
	var c models.Customer
	err := h.DB.QueryRow("SELECT id,name,COALESCE(website,''),COALESCE(contact_name,''),COALESCE(contact_email,''),COALESCE(contact_phone,''),COALESCE(address,''),COALESCE(notes,''),status,created_at FROM customers WHERE id=?", id).
		Scan(&c.ID, &c.Name, &c.Website, &c.ContactName, &c.ContactEmail, &c.ContactPhone,
			&c.Address, &c.Notes, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil
	}
	return &c
}

// addComputed fills line_count, completion (allocated/required capped
// at 1 per line), and overdue.
func (h *Handler) addComputed(o *models.SalesOrder) {
	rows, err := h.DB.Query(`SELECT l.qty_required, COALESCE(SUM(a.quantity),0)
		FROM sales_order_lines l
		LEFT JOIN allocations a ON a.line_id = l.id
		WHERE l.order_id = ?
		GROUP BY l.id`, o.ID)
	if err != nil {
		return
	}
	defer rows.Close()
	var sum float64
	for rows.Next() {
		var required, allocated float64
		rows.Scan(&required, &allocated)
		o.LineCount++
		frac := allocated / required
		if frac > 1 {
			frac = 1
		}
		if o.Status == "shipped" {
			frac = 1
		}
		sum += frac
	}
	if o.LineCount > 0 {
		o.Completion = sum / float64(o.LineCount)
	}
	if o.TargetDate != "" && !validation.IsTerminalSO(o.Status) {
		if target, err := time.Parse("2006-01-02", o.TargetDate); err == nil {
			o.Overdue = target.Before(time.Now().Truncate(24 * time.Hour))
		}
	}
}

// GetSalesOrder handles GET /api/v1/sales-orders/:id.
func (h *Handler) GetSalesOrder(w http.ResponseWriter, r *http.Request, id string) {
	o, err := scanSO(h.DB.QueryRow("SELECT "+soCols+" FROM sales_orders WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "sales order")
		return
	}
	h.addComputed(&o)
	o.Lines = h.getLines(id, false, false, false)
	if validation.Str2Bool(r.URL.Query().Get("customer_detail")) {
		o.Customer = h.customerDetail(o.CustomerID)
	}
	response.JSON(w, o)
}

// CreateSalesOrder handles POST /api/v1/sales-orders.
func (h *Handler) CreateSalesOrder(w http.ResponseWriter, r *http.Request) {
	var o models.SalesOrder
	if err := response.DecodeBody(r, &o); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "customer", o.CustomerID)
	validation.ValidateDate(ve, "target_date", o.TargetDate)
	if o.Status != "" && o.Status != "pending" {
		ve.Add("status", "new orders start in pending status")
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM customers WHERE id=?", o.CustomerID).Scan(&n)
	if n == 0 {
		response.NotFound(w, "customer")
		return
	}

	o.ID = h.NextID("SO", "sales_orders", 4)
	o.Status = "pending"
	now := time.Now().Format("2006-01-02 15:04:05")
	o.CreatedBy = audit.Username(h.DB, r)
	_, err := h.DB.Exec("INSERT INTO sales_orders (id,customer_id,status,target_date,notes,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)",
		o.ID, o.CustomerID, o.Status, database.NS(optional(o.TargetDate)), o.Notes, o.CreatedBy, now, now)
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

	audit.Log(h.DB, h.Hub, o.CreatedBy, audit.ActionCreate, "sales_order", o.ID, "Created "+o.ID+" for "+o.CustomerID)
	h.GetSalesOrder(w, r, o.ID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UpdateSalesOrder handles PUT /api/v1/sales-orders/:id. Header fields
// only; status moves through the issue/ship/cancel endpoints.
func (h *Handler) UpdateSalesOrder(w http.ResponseWriter, r *http.Request, id string) {
	cur, err := scanSO(h.DB.QueryRow("SELECT "+soCols+" FROM sales_orders WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "sales order")
		return
	}
	if validation.IsTerminalSO(cur.Status) {
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
		response.Err(w, "status: use the issue/ship/cancel endpoints to change order status", 400)
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
	_, err = h.DB.Exec("UPDATE sales_orders SET target_date=?,notes=?,updated_at=? WHERE id=?",
		database.NS(optional(cur.TargetDate)), cur.Notes, now, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, "sales_order", id, "Updated "+id)
	h.GetSalesOrder(w, r, id)
}

// IssueSalesOrder handles POST /api/v1/sales-orders/:id/issue.
// pending -> in_progress; requires at least one line.
func (h *Handler) IssueSalesOrder(w http.ResponseWriter, r *http.Request, id string) {
	o, err := scanSO(h.DB.QueryRow("SELECT "+soCols+" FROM sales_orders WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "sales order")
		return
	}
	if o.Status != "pending" {
		if validation.IsTerminalSO(o.Status) {
			response.ErrCode(w, "order "+id+" is "+o.Status+" and cannot be modified", response.CodeOrderClosed, 409)
			return
		}
		response.Err(w, "order must be pending to issue (currently "+o.Status+")", 400)
		return
	}

	var lineCount int
	h.DB.QueryRow("SELECT COUNT(*) FROM sales_order_lines WHERE order_id=?", id).Scan(&lineCount)
	if lineCount == 0 {
		response.Err(w, "order has no line items", 400)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	_, err = h.DB.Exec("UPDATE sales_orders SET status='in_progress',updated_at=? WHERE id=?", now, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionIssue, "sales_order", id, "Issued "+id)
	h.GetSalesOrder(w, r, id)
}

// ShipSalesOrder handles POST /api/v1/sales-orders/:id/ship. Every line
// must be fully allocated; shipping consumes the allocations, reducing
// both quantity and reserved on their batches.
func (h *Handler) ShipSalesOrder(w http.ResponseWriter, r *http.Request, id string) {
	o, err := scanSO(h.DB.QueryRow("SELECT "+soCols+" FROM sales_orders WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "sales order")
		return
	}
	if o.Status != "in_progress" {
		if validation.IsTerminalSO(o.Status) {
			response.ErrCode(w, "order "+id+" is "+o.Status+" and cannot be modified", response.CodeOrderClosed, 409)
			return
		}
		response.Err(w, "order must be in progress to ship (currently "+o.Status+")", 400)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	var short int
	err = tx.QueryRow(`SELECT COUNT(*) FROM sales_order_lines l
		WHERE l.order_id = ?
		AND (SELECT COALESCE(SUM(a.quantity),0) FROM allocations a WHERE a.line_id = l.id) < l.qty_required`, id).Scan(&short)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if short > 0 {
		response.ErrCode(w, "order has lines that are not fully allocated", response.CodeInsufficientStock, 409)
		return
	}

	// Consume allocations: stock leaves the building.
	rows, err := tx.Query(`SELECT a.id, a.batch_id, a.quantity FROM allocations a
		JOIN sales_order_lines l ON l.id = a.line_id
		WHERE l.order_id = ?`, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	type alloc struct {
		id      int
		batchID int
		qty     float64
	}
	var allocs []alloc
	for rows.Next() {
		var a alloc
		rows.Scan(&a.id, &a.batchID, &a.qty)
		allocs = append(allocs, a)
	}
	rows.Close()

	now := time.Now().Format("2006-01-02 15:04:05")
	for _, a := range allocs {
		if _, err := tx.Exec("UPDATE stock_batches SET quantity = quantity - ?, reserved = reserved - ?, updated_at=? WHERE id=?",
			a.qty, a.qty, now, a.batchID); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		if _, err := tx.Exec("DELETE FROM allocations WHERE id=?", a.id); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}

	if _, err := tx.Exec("UPDATE sales_orders SET status='shipped',shipped_at=?,updated_at=? WHERE id=?", now, now, id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionShip, "sales_order", id, "Shipped "+id)
	h.GetSalesOrder(w, r, id)
}

// CancelSalesOrder handles POST /api/v1/sales-orders/:id/cancel. All
// reservations are released back to their batches atomically.
func (h *Handler) CancelSalesOrder(w http.ResponseWriter, r *http.Request, id string) {
	o, err := scanSO(h.DB.QueryRow("SELECT "+soCols+" FROM sales_orders WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "sales order")
		return
	}
	if validation.IsTerminalSO(o.Status) {
		response.ErrCode(w, "order "+id+" is already "+o.Status, response.CodeOrderClosed, 409)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	now := time.Now().Format("2006-01-02 15:04:05")
	rows, err := tx.Query(`SELECT a.id, a.batch_id, a.quantity FROM allocations a
		JOIN sales_order_lines l ON l.id = a.line_id
		WHERE l.order_id = ?`, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	type alloc struct {
		id      int
		batchID int
		qty     float64
	}
	var allocs []alloc
	for rows.Next() {
		var a alloc
		rows.Scan(&a.id, &a.batchID, &a.qty)
		allocs = append(allocs, a)
	}
	rows.Close()

	for _, a := range allocs {
		if _, err := tx.Exec("UPDATE stock_batches SET reserved = reserved - ?, updated_at=? WHERE id=?",
			a.qty, now, a.batchID); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		if _, err := tx.Exec("DELETE FROM allocations WHERE id=?", a.id); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}

	if _, err := tx.Exec("UPDATE sales_orders SET status='cancelled',updated_at=? WHERE id=?", now, id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCancel, "sales_order", id, "Cancelled "+id)
	h.GetSalesOrder(w, r, id)
}
