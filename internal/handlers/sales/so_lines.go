package sales

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"orderhub/internal/audit"
	"orderhub/internal/models"
	"orderhub/internal/response"
	"orderhub/internal/validation"
)

const soLineCols = "id,order_id,part_ipn,qty_required,unit_price,COALESCE(notes,'')"

func scanSOLine(row interface{ Scan(...interface{}) error }) (models.SalesOrderLine, error) {
	var l models.SalesOrderLine
	err := row.Scan(&l.ID, &l.OrderID, &l.PartIPN, &l.QtyRequired, &l.UnitPrice, &l.Notes)
	return l, err
}

// totalAllocated sums the allocation rows for a line. Derived, never
// cached.
func (h *Handler) totalAllocated(lineID int) float64 {
	var total float64
	h.DB.QueryRow("SELECT COALESCE(SUM(quantity),0) FROM allocations WHERE line_id=?", lineID).Scan(&total)
	return total
}

func (h *Handler) fillLine(l *models.SalesOrderLine, partDetail, orderDetail, withAllocations bool) {
	l.TotalAllocated = h.totalAllocated(l.ID)
	l.FullyAllocated = l.TotalAllocated >= l.QtyRequired
	if partDetail {
		var p models.Part
		var active int
		err := h.DB.QueryRow("SELECT ipn,description,COALESCE(category,''),COALESCE(units,''),active,created_at,updated_at FROM parts WHERE ipn=?", l.PartIPN).
			Scan(&p.IPN, &p.Description, &p.Category, &p.Units, &active, &p.CreatedAt, &p.UpdatedAt)
		if err == nil {
			p.Active = active != 0
			l.Part = &p
		}
	}
	if orderDetail {
		if o, err := scanSO(h.DB.QueryRow("SELECT "+soCols+" FROM sales_orders WHERE id=?", l.OrderID)); err == nil {
			l.Order = &o
		}
	}
	if withAllocations {
		l.Allocations = h.getAllocations(l.ID)
	}
}

func (h *Handler) getAllocations(lineID int) []models.Allocation {
	rows, err := h.DB.Query("SELECT id,line_id,batch_id,quantity,created_at FROM allocations WHERE line_id=? ORDER BY id", lineID)
	if err != nil {
		return []models.Allocation{}
	}
	defer rows.Close()
	var allocs []models.Allocation
	for rows.Next() {
		var a models.Allocation
		rows.Scan(&a.ID, &a.LineID, &a.BatchID, &a.Quantity, &a.CreatedAt)
		allocs = append(allocs, a)
	}
	if allocs == nil {
		allocs = []models.Allocation{}
	}
	return allocs
}

func (h *Handler) getLines(orderID string, partDetail, orderDetail, withAllocations bool) []models.SalesOrderLine {
	rows, err := h.DB.Query("SELECT "+soLineCols+" FROM sales_order_lines WHERE order_id=? ORDER BY id", orderID)
	if err != nil {
		return []models.SalesOrderLine{}
	}
	defer rows.Close()
	var lines []models.SalesOrderLine
	for rows.Next() {
		l, err := scanSOLine(rows)
		if err != nil {
			continue
		}
		lines = append(lines, l)
	}
	if lines == nil {
		return []models.SalesOrderLine{}
	}
	for i := range lines {
		h.fillLine(&lines[i], partDetail, orderDetail, withAllocations)
	}
	return lines
}

func (h *Handler) insertLine(orderID string, l *models.SalesOrderLine) error {
	if l.QtyRequired <= 0 {
		return errors.New("qty_required must be positive")
	}
	if l.QtyRequired > validation.MaxQuantity {
		return errors.New("qty_required exceeds maximum allowed quantity")
	}
	if l.UnitPrice < 0 {
		return errors.New("unit_price must be non-negative")
	}
	if strings.TrimSpace(l.PartIPN) == "" {
		return errors.New("part is required")
	}
	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM parts WHERE ipn=?", l.PartIPN).Scan(&n)
	if n == 0 {
		return errors.New("unknown part " + l.PartIPN)
	}

	res, err := h.DB.Exec("INSERT INTO sales_order_lines (order_id,part_ipn,qty_required,unit_price,notes) VALUES (?,?,?,?,?)",
		orderID, l.PartIPN, l.QtyRequired, l.UnitPrice, l.Notes)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	l.ID = int(id)
	l.OrderID = orderID
	return nil
}

// ListSOLines handles GET /api/v1/so-lines. Boolean flags part_detail,
// order_detail, and allocations expand the payload; order and part
// filters referencing missing rows are dropped.
func (h *Handler) ListSOLines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	order := q.Get("order")
	part := q.Get("part")
	partDetail := validation.Str2Bool(q.Get("part_detail"))
	orderDetail := validation.Str2Bool(q.Get("order_detail"))
	withAllocations := validation.Str2Bool(q.Get("allocations"))

	query := "SELECT " + soLineCols + " FROM sales_order_lines"
	var conditions []string
	var args []interface{}

	if order != "" {
		var n int
		h.DB.QueryRow("SELECT COUNT(*) FROM sales_orders WHERE id=?", order).Scan(&n)
		if n > 0 {
			conditions = append(conditions, "order_id=?")
			args = append(args, order)
		}
	}
	if part != "" {
		var n int
		h.DB.QueryRow("SELECT COUNT(*) FROM parts WHERE ipn=?", part).Scan(&n)
		if n > 0 {
			conditions = append(conditions, "part_ipn=?")
			args = append(args, part)
		}
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	var items []models.SalesOrderLine
	for rows.Next() {
		l, err := scanSOLine(rows)
		if err != nil {
			continue
		}
		items = append(items, l)
	}
	rows.Close()
	if items == nil {
		items = []models.SalesOrderLine{}
	}
	for i := range items {
		h.fillLine(&items[i], partDetail, orderDetail, withAllocations)
	}
	response.JSON(w, items)
}

// GetSOLine handles GET /api/v1/so-lines/:id.
func (h *Handler) GetSOLine(w http.ResponseWriter, r *http.Request, id int) {
	l, err := scanSOLine(h.DB.QueryRow("SELECT "+soLineCols+" FROM sales_order_lines WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "sales order line")
		return
	}
	q := r.URL.Query()
	h.fillLine(&l, validation.Str2Bool(q.Get("part_detail")), validation.Str2Bool(q.Get("order_detail")),
		validation.Str2Bool(q.Get("allocations")))
	response.JSON(w, l)
}

func (h *Handler) lineOrderStatus(lineID int) (orderID, status string, err error) {
	err = h.DB.QueryRow(`SELECT o.id, o.status FROM sales_orders o
		JOIN sales_order_lines l ON l.order_id = o.id
		WHERE l.id = ?`, lineID).Scan(&orderID, &status)
	return
}

// CreateSOLine handles POST /api/v1/so-lines. The parent order must be
// open.
func (h *Handler) CreateSOLine(w http.ResponseWriter, r *http.Request) {
	var l models.SalesOrderLine
	if err := response.DecodeBody(r, &l); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if strings.TrimSpace(l.OrderID) == "" {
		response.Err(w, "order: is required", 400)
		return
	}

	var status string
	err := h.DB.QueryRow("SELECT status FROM sales_orders WHERE id=?", l.OrderID).Scan(&status)
	if err != nil {
		response.NotFound(w, "sales order")
		return
	}
	if validation.IsTerminalSO(status) {
		response.ErrCode(w, "order "+l.OrderID+" is "+status+" and cannot be modified", response.CodeOrderClosed, 409)
		return
	}

	if err := h.insertLine(l.OrderID, &l); err != nil {
		response.Err(w, err.Error(), 400)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, "so_line", strconv.Itoa(l.ID),
		"Added "+l.PartIPN+" to "+l.OrderID)
	h.GetSOLine(w, r, l.ID)
}

// UpdateSOLine handles PUT /api/v1/so-lines/:id. Quantity cannot drop
// below what is already allocated.
func (h *Handler) UpdateSOLine(w http.ResponseWriter, r *http.Request, id int) {
	cur, err := scanSOLine(h.DB.QueryRow("SELECT "+soLineCols+" FROM sales_order_lines WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "sales order line")
		return
	}
	orderID, status, err := h.lineOrderStatus(id)
	if err != nil {
		response.NotFound(w, "sales order")
		return
	}
	if validation.IsTerminalSO(status) {
		response.ErrCode(w, "order "+orderID+" is "+status+" and cannot be modified", response.CodeOrderClosed, 409)
		return
	}

	var req struct {
		QtyRequired *float64 `json:"qty_required"`
		UnitPrice   *float64 `json:"unit_price"`
		Notes       *string  `json:"notes"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if req.QtyRequired != nil {
		cur.QtyRequired = *req.QtyRequired
	}
	if req.UnitPrice != nil {
		cur.UnitPrice = *req.UnitPrice
	}
	if req.Notes != nil {
		cur.Notes = *req.Notes
	}

	ve := &validation.ValidationErrors{}
	validation.ValidatePositiveFloat(ve, "qty_required", cur.QtyRequired)
	validation.ValidateMaxQuantity(ve, "qty_required", cur.QtyRequired)
	validation.ValidateNonNegativeFloat(ve, "unit_price", cur.UnitPrice)
	if cur.QtyRequired < h.totalAllocated(id) {
		ve.Add("qty_required", "cannot be reduced below the allocated quantity")
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	_, err = h.DB.Exec("UPDATE sales_order_lines SET qty_required=?,unit_price=?,notes=? WHERE id=?",
		cur.QtyRequired, cur.UnitPrice, cur.Notes, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, "so_line", strconv.Itoa(id), "Updated line on "+orderID)
	h.GetSOLine(w, r, id)
}

// DeleteSOLine handles DELETE /api/v1/so-lines/:id. Allocations must be
// released first.
func (h *Handler) DeleteSOLine(w http.ResponseWriter, r *http.Request, id int) {
	orderID, status, err := h.lineOrderStatus(id)
	if err != nil {
		response.NotFound(w, "sales order line")
		return
	}
	if validation.IsTerminalSO(status) {
		response.ErrCode(w, "order "+orderID+" is "+status+" and cannot be modified", response.CodeOrderClosed, 409)
		return
	}
	if h.totalAllocated(id) > 0 {
		response.Err(w, "line has stock allocated and cannot be deleted", 409)
		return
	}

	if _, err := h.DB.Exec("DELETE FROM sales_order_lines WHERE id=?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionDelete, "so_line", strconv.Itoa(id), "Removed line from "+orderID)
	response.JSON(w, map[string]string{"status": "deleted"})
}
