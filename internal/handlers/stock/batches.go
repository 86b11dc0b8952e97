package stock

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"orderhub/internal/audit"
	"orderhub/internal/models"
	"orderhub/internal/response"
	"orderhub/internal/validation"
)

const batchCols = "id,part_ipn,COALESCE(location,''),COALESCE(batch_code,''),quantity,reserved,created_at,updated_at"

func scanBatch(row interface{ Scan(...interface{}) error }) (models.StockBatch, error) {
	var b models.StockBatch
	err := row.Scan(&b.ID, &b.PartIPN, &b.Location, &b.BatchCode, &b.Quantity, &b.Reserved, &b.CreatedAt, &b.UpdatedAt)
	b.Available = b.Quantity - b.Reserved
	return b, err
}

// ListBatches handles GET /api/v1/stock. Part and location filters
// referencing nothing are dropped rather than erroring.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	part := q.Get("part")
	location := q.Get("location")

	query := "SELECT " + batchCols + " FROM stock_batches"
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
	if location != "" {
		conditions = append(conditions, "location=?")
		args = append(args, location)
	}
	if validation.Str2Bool(q.Get("in_stock")) {
		conditions = append(conditions, "quantity - reserved > 0")
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

	var items []models.StockBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			continue
		}
		items = append(items, b)
	}
	if items == nil {
		items = []models.StockBatch{}
	}
	response.JSON(w, items)
}

// GetBatch handles GET /api/v1/stock/:id.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request, id int) {
	b, err := scanBatch(h.DB.QueryRow("SELECT "+batchCols+" FROM stock_batches WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "stock batch")
		return
	}
	response.JSON(w, b)
}

// CreateBatch handles POST /api/v1/stock. New batches start with zero
// reserved.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var b models.StockBatch
	if err := response.DecodeBody(r, &b); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "part", b.PartIPN)
	validation.ValidatePositiveFloat(ve, "quantity", b.Quantity)
	validation.ValidateMaxQuantity(ve, "quantity", b.Quantity)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM parts WHERE ipn=?", b.PartIPN).Scan(&n)
	if n == 0 {
		response.NotFound(w, "part")
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	res, err := h.DB.Exec(`INSERT INTO stock_batches (part_ipn,location,batch_code,quantity,reserved,created_at,updated_at)
		VALUES (?,?,?,?,0,?,?)`,
		b.PartIPN, b.Location, b.BatchCode, b.Quantity, now, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, "stock_batch", strconv.FormatInt(id, 10),
		fmt.Sprintf("Received %.2f of %s", b.Quantity, b.PartIPN))
	h.GetBatch(w, r, int(id))
}

// AdjustBatch handles POST /api/v1/stock/:id/adjust. A signed delta is
// applied to the quantity; it cannot drop below the reserved amount.
func (h *Handler) AdjustBatch(w http.ResponseWriter, r *http.Request, id int) {
	var req struct {
		Delta float64 `json:"delta"`
		Notes string  `json:"notes"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if req.Delta == 0 {
		response.Err(w, "delta: must be non-zero", 400)
		return
	}

	b, err := scanBatch(h.DB.QueryRow("SELECT "+batchCols+" FROM stock_batches WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "stock batch")
		return
	}
	next := b.Quantity + req.Delta
	if next < b.Reserved {
		response.Err(w, fmt.Sprintf("adjustment would leave %.2f on hand with %.2f reserved", next, b.Reserved), 409)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	if _, err := h.DB.Exec("UPDATE stock_batches SET quantity=?, updated_at=? WHERE id=?", next, now, id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	summary := fmt.Sprintf("Adjusted batch by %+.2f", req.Delta)
	if req.Notes != "" {
		summary += ": " + req.Notes
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, "stock_batch", strconv.Itoa(id), summary)
	h.GetBatch(w, r, id)
}

// DeleteBatch handles DELETE /api/v1/stock/:id. Batches with live
// allocations are protected by the RESTRICT foreign key.
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request, id int) {
	var reserved float64
	err := h.DB.QueryRow("SELECT reserved FROM stock_batches WHERE id=?", id).Scan(&reserved)
	if err != nil {
		response.NotFound(w, "stock batch")
		return
	}
	if reserved > 0 {
		response.Err(w, "batch has reserved stock and cannot be deleted", 409)
		return
	}

	if _, err := h.DB.Exec("DELETE FROM stock_batches WHERE id=?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionDelete, "stock_batch", strconv.Itoa(id), "Deleted stock batch")
	response.JSON(w, map[string]string{"status": "deleted"})
}
