package sales

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"orderhub/internal/audit"
	"orderhub/internal/models"
	"orderhub/internal/response"
	"orderhub/internal/validation"
)

// AllocateSOLine handles POST /api/v1/so-lines/:id/allocate. Reserves
// stock from a batch for the line inside one transaction; the batch
// row is re-read in the transaction so concurrent allocators serialize
// on SQLite's single writer.
func (h *Handler) AllocateSOLine(w http.ResponseWriter, r *http.Request, lineID int) {
	var req struct {
		BatchID  int     `json:"batch_id"`
		Quantity float64 `json:"quantity"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if req.Quantity <= 0 {
		response.Err(w, "quantity: must be positive", 400)
		return
	}

	var partIPN string
	var qtyRequired float64
	var orderID string
	err := h.DB.QueryRow("SELECT part_ipn,qty_required,order_id FROM sales_order_lines WHERE id=?", lineID).
		Scan(&partIPN, &qtyRequired, &orderID)
	if err != nil {
		response.NotFound(w, "sales order line")
		return
	}

	var status string
	h.DB.QueryRow("SELECT status FROM sales_orders WHERE id=?", orderID).Scan(&status)
	if validation.IsTerminalSO(status) {
		response.ErrCode(w, "order "+orderID+" is "+status+" and cannot be modified", response.CodeOrderClosed, 409)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	var batchPart string
	var quantity, reserved float64
	err = tx.QueryRow("SELECT part_ipn,quantity,reserved FROM stock_batches WHERE id=?", req.BatchID).
		Scan(&batchPart, &quantity, &reserved)
	if err != nil {
		response.NotFound(w, "stock batch")
		return
	}
	if batchPart != partIPN {
		response.Err(w, fmt.Sprintf("batch holds %s, line requires %s", batchPart, partIPN), 400)
		return
	}

	available := quantity - reserved
	if req.Quantity > available {
		response.ErrCode(w, fmt.Sprintf("batch has %.2f available, %.2f requested", available, req.Quantity),
			response.CodeInsufficientStock, 409)
		return
	}

	var allocated float64
	if err := tx.QueryRow("SELECT COALESCE(SUM(quantity),0) FROM allocations WHERE line_id=?", lineID).Scan(&allocated); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if !h.AllowOverAllocation && allocated+req.Quantity > qtyRequired {
		response.ErrCode(w, fmt.Sprintf("line requires %.2f, %.2f already allocated", qtyRequired, allocated),
			response.CodeOverAllocation, 409)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	res, err := tx.Exec("INSERT INTO allocations (line_id,batch_id,quantity,created_at) VALUES (?,?,?,?)",
		lineID, req.BatchID, req.Quantity, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if _, err := tx.Exec("UPDATE stock_batches SET reserved = reserved + ?, updated_at=? WHERE id=?",
		req.Quantity, now, req.BatchID); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	id, _ := res.LastInsertId()
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, "allocation", strconv.FormatInt(id, 10),
		fmt.Sprintf("Allocated %.2f of %s to line %d", req.Quantity, partIPN, lineID))

	response.JSON(w, models.Allocation{
		ID:        int(id),
		LineID:    lineID,
		BatchID:   req.BatchID,
		Quantity:  req.Quantity,
		CreatedAt: now,
	})
}

// DeallocateSOLine handles DELETE /api/v1/allocations/:id. Returns the
// reserved quantity to the batch atomically.
func (h *Handler) DeallocateSOLine(w http.ResponseWriter, r *http.Request, allocID int) {
	var lineID, batchID int
	var qty float64
	err := h.DB.QueryRow("SELECT line_id,batch_id,quantity FROM allocations WHERE id=?", allocID).
		Scan(&lineID, &batchID, &qty)
	if err != nil {
		response.NotFound(w, "allocation")
		return
	}

	orderID, status, err := h.lineOrderStatus(lineID)
	if err == nil && validation.IsTerminalSO(status) {
		response.ErrCode(w, "order "+orderID+" is "+status+" and cannot be modified", response.CodeOrderClosed, 409)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM allocations WHERE id=?", allocID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.NotFound(w, "allocation")
		return
	}
	now := time.Now().Format("2006-01-02 15:04:05")
	if _, err := tx.Exec("UPDATE stock_batches SET reserved = reserved - ?, updated_at=? WHERE id=?",
		qty, now, batchID); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionDelete, "allocation", strconv.Itoa(allocID),
		fmt.Sprintf("Released %.2f back to batch %d", qty, batchID))
	response.JSON(w, map[string]string{"status": "deallocated"})
}
