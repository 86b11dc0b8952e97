package procurement

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"orderhub/internal/audit"
	"orderhub/internal/models"
	"orderhub/internal/response"
	"orderhub/internal/validation"
)

const poLineCols = "id,order_id,part_ipn,supplier_part_id,qty_ordered,qty_received,unit_cost,base_cost,COALESCE(notes,'')"

func scanPOLine(row interface{ Scan(...interface{}) error }) (models.PurchaseOrderLine, error) {
	var l models.PurchaseOrderLine
	var spID *int
	err := row.Scan(&l.ID, &l.OrderID, &l.PartIPN, &spID, &l.QtyOrdered, &l.QtyReceived,
		&l.UnitCost, &l.BaseCost, &l.Notes)
	l.SupplierPartID = spID
	return l, err
}

func (h *Handler) getLines(orderID string) []models.PurchaseOrderLine {
	rows, err := h.DB.Query("SELECT "+poLineCols+" FROM purchase_order_lines WHERE order_id=? ORDER BY id", orderID)
	if err != nil {
		return []models.PurchaseOrderLine{}
	}
	defer rows.Close()
	var lines []models.PurchaseOrderLine
	for rows.Next() {
		l, err := scanPOLine(rows)
		if err != nil {
			continue
		}
		lines = append(lines, l)
	}
	if lines == nil {
		lines = []models.PurchaseOrderLine{}
	}
	return lines
}

// insertLine validates and inserts a line. When the line names a
// supplier part, unit and base cost default from the resolved price at
// the ordered quantity, and the quantity may round up to the order
// multiple.
func (h *Handler) insertLine(orderID string, l *models.PurchaseOrderLine) error {
	if l.QtyOrdered <= 0 {
		return errors.New("qty_ordered must be positive")
	}
	if l.QtyOrdered > validation.MaxQuantity {
		return errors.New("qty_ordered exceeds maximum allowed quantity")
	}
	if strings.TrimSpace(l.PartIPN) == "" {
		return errors.New("part is required")
	}
	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM parts WHERE ipn=?", l.PartIPN).Scan(&n)
	if n == 0 {
		return errors.New("unknown part " + l.PartIPN)
	}

	if l.SupplierPartID != nil {
		var partIPN, supplierID string
		err := h.DB.QueryRow("SELECT part_ipn,supplier_id FROM supplier_parts WHERE id=?", *l.SupplierPartID).
			Scan(&partIPN, &supplierID)
		if err != nil {
			return errors.New("unknown supplier part")
		}
		if partIPN != l.PartIPN {
			return errors.New("supplier part is for a different part")
		}
		var orderSupplier string
		h.DB.QueryRow("SELECT supplier_id FROM purchase_orders WHERE id=?", orderID).Scan(&orderSupplier)
		if supplierID != orderSupplier {
			return errors.New("supplier part belongs to a different supplier")
		}

		terms, err := h.Catalog.Terms(*l.SupplierPartID)
		if err != nil {
			return errors.New("unknown supplier part")
		}
		qty := int(math.Ceil(l.QtyOrdered))
		quote, err := terms.QuoteFor(qty, h.RoundOrderMultiples)
		if err != nil {
			return err
		}
		l.QtyOrdered = float64(quote.Quantity)
		if l.UnitCost == 0 {
			l.UnitCost, _ = quote.UnitCost.Float64()
		}
		if l.BaseCost == 0 {
			l.BaseCost, _ = quote.BaseCost.Float64()
		}
	}

	res, err := h.DB.Exec("INSERT INTO purchase_order_lines (order_id,part_ipn,supplier_part_id,qty_ordered,unit_cost,base_cost,notes) VALUES (?,?,?,?,?,?,?)",
		orderID, l.PartIPN, l.SupplierPartID, l.QtyOrdered, l.UnitCost, l.BaseCost, l.Notes)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	l.ID = int(id)
	l.OrderID = orderID
	return nil
}

// ListPOLines handles GET /api/v1/po-lines. Filters on order and part,
// dropping references to rows that don't exist.
func (h *Handler) ListPOLines(w http.ResponseWriter, r *http.Request) {
	order := r.URL.Query().Get("order")
	part := r.URL.Query().Get("part")

	query := "SELECT " + poLineCols + " FROM purchase_order_lines"
	var conditions []string
	var args []interface{}

	if order != "" {
		var n int
		h.DB.QueryRow("SELECT COUNT(*) FROM purchase_orders WHERE id=?", order).Scan(&n)
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
	defer rows.Close()
	var items []models.PurchaseOrderLine
	for rows.Next() {
		l, err := scanPOLine(rows)
		if err != nil {
			continue
		}
		items = append(items, l)
	}
	if items == nil {
		items = []models.PurchaseOrderLine{}
	}
	response.JSON(w, items)
}

// GetPOLine handles GET /api/v1/po-lines/:id.
func (h *Handler) GetPOLine(w http.ResponseWriter, r *http.Request, id int) {
	l, err := scanPOLine(h.DB.QueryRow("SELECT "+poLineCols+" FROM purchase_order_lines WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "purchase order line")
		return
	}
	response.JSON(w, l)
}

// lineOrderStatus returns the parent order's status for a line.
func (h *Handler) lineOrderStatus(lineID int) (orderID, status string, err error) {
	err = h.DB.QueryRow(`SELECT o.id, o.status FROM purchase_orders o
		JOIN purchase_order_lines l ON l.order_id = o.id
		WHERE l.id = ?`, lineID).Scan(&orderID, &status)
	return
}

// CreatePOLine handles POST /api/v1/po-lines. The parent order must be
// open.
func (h *Handler) CreatePOLine(w http.ResponseWriter, r *http.Request) {
	var l models.PurchaseOrderLine
	if err := response.DecodeBody(r, &l); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if strings.TrimSpace(l.OrderID) == "" {
		response.Err(w, "order: is required", 400)
		return
	}

	var status string
	err := h.DB.QueryRow("SELECT status FROM purchase_orders WHERE id=?", l.OrderID).Scan(&status)
	if err != nil {
		response.NotFound(w, "purchase order")
		return
	}
	if validation.IsTerminalPO(status) {
		response.ErrCode(w, "order "+l.OrderID+" is "+status+" and cannot be modified", response.CodeOrderClosed, 409)
		return
	}

	if err := h.insertLine(l.OrderID, &l); err != nil {
		response.Err(w, err.Error(), 400)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, "po_line", strconv.Itoa(l.ID),
		"Added "+l.PartIPN+" to "+l.OrderID)
	h.GetPOLine(w, r, l.ID)
}

// UpdatePOLine handles PUT /api/v1/po-lines/:id. Quantity and cost
// edits only while the parent order is open; received quantity moves
// through the receive endpoint.
func (h *Handler) UpdatePOLine(w http.ResponseWriter, r *http.Request, id int) {
	cur, err := scanPOLine(h.DB.QueryRow("SELECT "+poLineCols+" FROM purchase_order_lines WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "purchase order line")
		return
	}
	orderID, status, err := h.lineOrderStatus(id)
	if err != nil {
		response.NotFound(w, "purchase order")
		return
	}
	if validation.IsTerminalPO(status) {
		response.ErrCode(w, "order "+orderID+" is "+status+" and cannot be modified", response.CodeOrderClosed, 409)
		return
	}

	var req struct {
		QtyOrdered *float64 `json:"qty_ordered"`
		UnitCost   *float64 `json:"unit_cost"`
		BaseCost   *float64 `json:"base_cost"`
		Notes      *string  `json:"notes"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if req.QtyOrdered != nil {
		cur.QtyOrdered = *req.QtyOrdered
	}
	if req.UnitCost != nil {
		cur.UnitCost = *req.UnitCost
	}
	if req.BaseCost != nil {
		cur.BaseCost = *req.BaseCost
	}
	if req.Notes != nil {
		cur.Notes = *req.Notes
	}

	ve := &validation.ValidationErrors{}
	validation.ValidatePositiveFloat(ve, "qty_ordered", cur.QtyOrdered)
	validation.ValidateMaxQuantity(ve, "qty_ordered", cur.QtyOrdered)
	validation.ValidateNonNegativeFloat(ve, "unit_cost", cur.UnitCost)
	validation.ValidateNonNegativeFloat(ve, "base_cost", cur.BaseCost)
	if cur.QtyOrdered < cur.QtyReceived {
		ve.Add("qty_ordered", "cannot be reduced below the received quantity")
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	_, err = h.DB.Exec("UPDATE purchase_order_lines SET qty_ordered=?,unit_cost=?,base_cost=?,notes=? WHERE id=?",
		cur.QtyOrdered, cur.UnitCost, cur.BaseCost, cur.Notes, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, "po_line", strconv.Itoa(id), "Updated line on "+orderID)
	h.GetPOLine(w, r, id)
}

// DeletePOLine handles DELETE /api/v1/po-lines/:id. Only while the
// parent order is open and nothing has been received against the line.
func (h *Handler) DeletePOLine(w http.ResponseWriter, r *http.Request, id int) {
	cur, err := scanPOLine(h.DB.QueryRow("SELECT "+poLineCols+" FROM purchase_order_lines WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "purchase order line")
		return
	}
	orderID, status, err := h.lineOrderStatus(id)
	if err != nil {
		response.NotFound(w, "purchase order")
		return
	}
	if validation.IsTerminalPO(status) {
		response.ErrCode(w, "order "+orderID+" is "+status+" and cannot be modified", response.CodeOrderClosed, 409)
		return
	}
	if cur.QtyReceived > 0 {
		response.Err(w, "line has received stock and cannot be deleted", 409)
		return
	}

	if _, err := h.DB.Exec("DELETE FROM purchase_order_lines WHERE id=?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionDelete, "po_line", strconv.Itoa(id), "Removed line from "+orderID)
	response.JSON(w, map[string]string{"status": "deleted"})
}
