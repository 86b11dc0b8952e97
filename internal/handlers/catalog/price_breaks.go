package catalog

import (
	"net/http"
	"strconv"

	"orderhub/internal/audit"
	"orderhub/internal/models"
	"orderhub/internal/response"
	"orderhub/internal/validation"
)

// ListPriceBreaks handles GET /api/v1/supplier-parts/:id/price-breaks.
func (h *Handler) ListPriceBreaks(w http.ResponseWriter, r *http.Request, supplierPartID int) {
	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM supplier_parts WHERE id=?", supplierPartID).Scan(&n)
	if n == 0 {
		response.NotFound(w, "supplier part")
		return
	}
	response.JSON(w, h.getPriceBreaks(supplierPartID))
}

// CreatePriceBreak handles POST /api/v1/supplier-parts/:id/price-breaks.
// One break per quantity threshold; duplicates are rejected.
func (h *Handler) CreatePriceBreak(w http.ResponseWriter, r *http.Request, supplierPartID int) {
	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM supplier_parts WHERE id=?", supplierPartID).Scan(&n)
	if n == 0 {
		response.NotFound(w, "supplier part")
		return
	}

	var b models.PriceBreak
	if err := response.DecodeBody(r, &b); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.ValidatePositiveInt(ve, "quantity", b.Quantity)
	validation.ValidateNonNegativeFloat(ve, "cost", b.Cost)
	validation.ValidateMaxPrice(ve, "cost", b.Cost)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	res, err := h.DB.Exec("INSERT INTO price_breaks (supplier_part_id,quantity,cost) VALUES (?,?,?)",
		supplierPartID, b.Quantity, b.Cost)
	if err != nil {
		response.Err(w, "price break already exists at quantity "+strconv.Itoa(b.Quantity), 409)
		return
	}
	id, _ := res.LastInsertId()
	b.ID = int(id)
	b.SupplierPartID = supplierPartID
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, "price_break", strconv.Itoa(b.ID),
		"Added price break at qty "+strconv.Itoa(b.Quantity))
	response.JSON(w, b)
}

// UpdatePriceBreak handles PUT /api/v1/price-breaks/:id.
func (h *Handler) UpdatePriceBreak(w http.ResponseWriter, r *http.Request, id int) {
	var cur models.PriceBreak
	err := h.DB.QueryRow("SELECT id,supplier_part_id,quantity,cost FROM price_breaks WHERE id=?", id).
		Scan(&cur.ID, &cur.SupplierPartID, &cur.Quantity, &cur.Cost)
	if err != nil {
		response.NotFound(w, "price break")
		return
	}

	var req struct {
		Quantity *int     `json:"quantity"`
		Cost     *float64 `json:"cost"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if req.Quantity != nil {
		cur.Quantity = *req.Quantity
	}
	if req.Cost != nil {
		cur.Cost = *req.Cost
	}

	ve := &validation.ValidationErrors{}
	validation.ValidatePositiveInt(ve, "quantity", cur.Quantity)
	validation.ValidateNonNegativeFloat(ve, "cost", cur.Cost)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	_, err = h.DB.Exec("UPDATE price_breaks SET quantity=?,cost=? WHERE id=?", cur.Quantity, cur.Cost, id)
	if err != nil {
		response.Err(w, "price break already exists at quantity "+strconv.Itoa(cur.Quantity), 409)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, "price_break", strconv.Itoa(id), "Updated price break")
	response.JSON(w, cur)
}

// DeletePriceBreak handles DELETE /api/v1/price-breaks/:id.
func (h *Handler) DeletePriceBreak(w http.ResponseWriter, r *http.Request, id int) {
	res, err := h.DB.Exec("DELETE FROM price_breaks WHERE id=?", id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.NotFound(w, "price break")
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionDelete, "price_break", strconv.Itoa(id), "Deleted price break")
	response.JSON(w, map[string]string{"status": "deleted"})
}
