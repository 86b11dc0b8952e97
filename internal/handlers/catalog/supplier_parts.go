package catalog

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"orderhub/internal/audit"
	"orderhub/internal/models"
	"orderhub/internal/pricing"
	"orderhub/internal/response"
	"orderhub/internal/validation"
)

const supplierPartCols = "id,part_ipn,supplier_id,sku,COALESCE(manufacturer,''),COALESCE(mpn,''),COALESCE(url,''),COALESCE(description,''),single_price,base_cost,COALESCE(packaging,''),multiple,minimum,lead_time_days,created_at"

func scanSupplierPart(row interface{ Scan(...interface{}) error }) (models.SupplierPart, error) {
	var sp models.SupplierPart
	err := row.Scan(&sp.ID, &sp.PartIPN, &sp.SupplierID, &sp.SKU, &sp.Manufacturer, &sp.MPN,
		&sp.URL, &sp.Description, &sp.SinglePrice, &sp.BaseCost, &sp.Packaging,
		&sp.Multiple, &sp.Minimum, &sp.LeadTimeDays, &sp.CreatedAt)
	return sp, err
}

// ListSupplierParts handles GET /api/v1/supplier-parts. Filters on part
// and supplier; references to rows that don't exist drop the filter.
func (h *Handler) ListSupplierParts(w http.ResponseWriter, r *http.Request) {
	part := r.URL.Query().Get("part")
	supplier := r.URL.Query().Get("supplier")

	query := "SELECT " + supplierPartCols + " FROM supplier_parts"
	var conditions []string
	var args []interface{}

	if part != "" {
		var n int
		h.DB.QueryRow("SELECT COUNT(*) FROM parts WHERE ipn=?", part).Scan(&n)
		if n > 0 {
			conditions = append(conditions, "part_ipn=?")
			args = append(args, part)
		}
	}
	if supplier != "" {
		var n int
		h.DB.QueryRow("SELECT COUNT(*) FROM suppliers WHERE id=?", supplier).Scan(&n)
		if n > 0 {
			conditions = append(conditions, "supplier_id=?")
			args = append(args, supplier)
		}
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY part_ipn, supplier_id, sku"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.SupplierPart
	for rows.Next() {
		sp, err := scanSupplierPart(rows)
		if err != nil {
			continue
		}
		items = append(items, sp)
	}
	if items == nil {
		items = []models.SupplierPart{}
	}
	response.JSON(w, items)
}

// GetSupplierPart handles GET /api/v1/supplier-parts/:id. Price breaks
// are included sorted by quantity.
func (h *Handler) GetSupplierPart(w http.ResponseWriter, r *http.Request, id int) {
	sp, err := scanSupplierPart(h.DB.QueryRow("SELECT "+supplierPartCols+" FROM supplier_parts WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "supplier part")
		return
	}
	sp.PriceBreaks = h.getPriceBreaks(id)
	response.JSON(w, sp)
}

func (h *Handler) getPriceBreaks(supplierPartID int) []models.PriceBreak {
	rows, err := h.DB.Query("SELECT id,supplier_part_id,quantity,cost FROM price_breaks WHERE supplier_part_id=? ORDER BY quantity", supplierPartID)
	if err != nil {
		return []models.PriceBreak{}
	}
	defer rows.Close()
	var breaks []models.PriceBreak
	for rows.Next() {
		var b models.PriceBreak
		rows.Scan(&b.ID, &b.SupplierPartID, &b.Quantity, &b.Cost)
		breaks = append(breaks, b)
	}
	if breaks == nil {
		breaks = []models.PriceBreak{}
	}
	return breaks
}

func (h *Handler) validateSupplierPart(sp *models.SupplierPart) *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "part", sp.PartIPN)
	validation.RequireField(ve, "supplier", sp.SupplierID)
	validation.RequireField(ve, "sku", sp.SKU)
	validation.ValidateNonNegativeFloat(ve, "single_price", sp.SinglePrice)
	validation.ValidateNonNegativeFloat(ve, "base_cost", sp.BaseCost)
	validation.ValidateMaxPrice(ve, "single_price", sp.SinglePrice)
	if sp.Multiple < 1 {
		ve.Add("multiple", "must be at least 1")
	}
	if sp.Minimum < 1 {
		ve.Add("minimum", "must be at least 1")
	}
	if sp.LeadTimeDays < 0 || sp.LeadTimeDays > validation.MaxLeadTimeDays {
		ve.Add("lead_time_days", "must be between 0 and 730")
	}
	return ve
}

// CreateSupplierPart handles POST /api/v1/supplier-parts. The
// (part, supplier, sku) triple is unique.
func (h *Handler) CreateSupplierPart(w http.ResponseWriter, r *http.Request) {
	sp := models.SupplierPart{Multiple: 1, Minimum: 1}
	if err := response.DecodeBody(r, &sp); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if ve := h.validateSupplierPart(&sp); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM parts WHERE ipn=?", sp.PartIPN).Scan(&n)
	if n == 0 {
		response.NotFound(w, "part")
		return
	}
	h.DB.QueryRow("SELECT COUNT(*) FROM suppliers WHERE id=?", sp.SupplierID).Scan(&n)
	if n == 0 {
		response.NotFound(w, "supplier")
		return
	}

	res, err := h.DB.Exec("INSERT INTO supplier_parts (part_ipn,supplier_id,sku,manufacturer,mpn,url,description,single_price,base_cost,packaging,multiple,minimum,lead_time_days) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)",
		sp.PartIPN, sp.SupplierID, sp.SKU, sp.Manufacturer, sp.MPN, sp.URL, sp.Description,
		sp.SinglePrice, sp.BaseCost, sp.Packaging, sp.Multiple, sp.Minimum, sp.LeadTimeDays)
	if err != nil {
		response.Err(w, "supplier part already exists for "+sp.PartIPN+"/"+sp.SupplierID+"/"+sp.SKU, 409)
		return
	}
	id, _ := res.LastInsertId()
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, "supplier_part", strconv.FormatInt(id, 10),
		"Created supplier part "+sp.SKU+" for "+sp.PartIPN)
	h.GetSupplierPart(w, r, int(id))
}

// UpdateSupplierPart handles PUT /api/v1/supplier-parts/:id.
func (h *Handler) UpdateSupplierPart(w http.ResponseWriter, r *http.Request, id int) {
	cur, err := scanSupplierPart(h.DB.QueryRow("SELECT "+supplierPartCols+" FROM supplier_parts WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "supplier part")
		return
	}

	var req struct {
		SKU          *string  `json:"sku"`
		Manufacturer *string  `json:"manufacturer"`
		MPN          *string  `json:"mpn"`
		URL          *string  `json:"url"`
		Description  *string  `json:"description"`
		SinglePrice  *float64 `json:"single_price"`
		BaseCost     *float64 `json:"base_cost"`
		Packaging    *string  `json:"packaging"`
		Multiple     *int     `json:"multiple"`
		Minimum      *int     `json:"minimum"`
		LeadTimeDays *int     `json:"lead_time_days"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	if req.SKU != nil {
		cur.SKU = *req.SKU
	}
	if req.Manufacturer != nil {
		cur.Manufacturer = *req.Manufacturer
	}
	if req.MPN != nil {
		cur.MPN = *req.MPN
	}
	if req.URL != nil {
		cur.URL = *req.URL
	}
	if req.Description != nil {
		cur.Description = *req.Description
	}
	if req.SinglePrice != nil {
		cur.SinglePrice = *req.SinglePrice
	}
	if req.BaseCost != nil {
		cur.BaseCost = *req.BaseCost
	}
	if req.Packaging != nil {
		cur.Packaging = *req.Packaging
	}
	if req.Multiple != nil {
		cur.Multiple = *req.Multiple
	}
	if req.Minimum != nil {
		cur.Minimum = *req.Minimum
	}
	if req.LeadTimeDays != nil {
		cur.LeadTimeDays = *req.LeadTimeDays
	}
	if ve := h.validateSupplierPart(&cur); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	_, err = h.DB.Exec("UPDATE supplier_parts SET sku=?,manufacturer=?,mpn=?,url=?,description=?,single_price=?,base_cost=?,packaging=?,multiple=?,minimum=?,lead_time_days=? WHERE id=?",
		cur.SKU, cur.Manufacturer, cur.MPN, cur.URL, cur.Description, cur.SinglePrice, cur.BaseCost,
		cur.Packaging, cur.Multiple, cur.Minimum, cur.LeadTimeDays, id)
	if err != nil {
		response.Err(w, "supplier part already exists with that sku", 409)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, "supplier_part", strconv.Itoa(id), "Updated supplier part")
	h.GetSupplierPart(w, r, id)
}

// DeleteSupplierPart handles DELETE /api/v1/supplier-parts/:id. Refused
// while purchase order lines reference it.
func (h *Handler) DeleteSupplierPart(w http.ResponseWriter, r *http.Request, id int) {
	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM supplier_parts WHERE id=?", id).Scan(&n)
	if n == 0 {
		response.NotFound(w, "supplier part")
		return
	}
	h.DB.QueryRow("SELECT COUNT(*) FROM purchase_order_lines WHERE supplier_part_id=?", id).Scan(&n)
	if n > 0 {
		response.Err(w, "supplier part is referenced by purchase order lines", 409)
		return
	}
	if _, err := h.DB.Exec("DELETE FROM supplier_parts WHERE id=?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionDelete, "supplier_part", strconv.Itoa(id), "Deleted supplier part")
	response.JSON(w, map[string]string{"status": "deleted"})
}

// Terms loads the purchasing terms for a supplier part.
func (h *Handler) Terms(supplierPartID int) (pricing.Terms, error) {
	sp, err := scanSupplierPart(h.DB.QueryRow("SELECT "+supplierPartCols+" FROM supplier_parts WHERE id=?", supplierPartID))
	if err != nil {
		return pricing.Terms{}, err
	}
	terms := pricing.Terms{
		SinglePrice: decimal.NewFromFloat(sp.SinglePrice),
		BaseCost:    decimal.NewFromFloat(sp.BaseCost),
		Multiple:    sp.Multiple,
		Minimum:     sp.Minimum,
	}
	for _, b := range h.getPriceBreaks(supplierPartID) {
		terms.Breaks = append(terms.Breaks, pricing.Break{
			Quantity: b.Quantity,
			Cost:     decimal.NewFromFloat(b.Cost),
		})
	}
	return terms, nil
}

// QuotePrice handles GET /api/v1/supplier-parts/:id/price?quantity=N.
func (h *Handler) QuotePrice(w http.ResponseWriter, r *http.Request, id int) {
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		response.Err(w, "quantity: must be a positive integer", 400)
		return
	}

	terms, err := h.Terms(id)
	if err != nil {
		response.NotFound(w, "supplier part")
		return
	}

	quote, err := terms.QuoteFor(qty, h.RoundOrderMultiples)
	if err != nil {
		response.Err(w, "quantity: "+err.Error(), 400)
		return
	}

	unitCost, _ := quote.UnitCost.Float64()
	baseCost, _ := quote.BaseCost.Float64()
	total, _ := quote.Total.Float64()
	response.JSON(w, models.PriceQuote{
		SupplierPartID: id,
		Quantity:       quote.Quantity,
		UnitCost:       unitCost,
		BaseCost:       baseCost,
		Total:          total,
	})
}
