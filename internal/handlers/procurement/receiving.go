package procurement

import (
	"fmt"
	"net/http"
	"time"

	"orderhub/internal/audit"
	"orderhub/internal/response"
	"orderhub/internal/validation"
)

// ReceivePurchaseOrder handles POST /api/v1/purchase-orders/:id/receive.
// Each received line creates a stock batch at the given location and
// bumps the line's received quantity. When every line is fully
// received the order completes. The whole receipt is one transaction.
func (h *Handler) ReceivePurchaseOrder(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Location string `json:"location"`
		Lines    []struct {
			Line      int     `json:"line"`
			Quantity  float64 `json:"quantity"`
			BatchCode string  `json:"batch_code"`
		} `json:"lines"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if len(req.Lines) == 0 {
		response.Err(w, "lines: at least one line is required", 400)
		return
	}

	var status string
	err := h.DB.QueryRow("SELECT status FROM purchase_orders WHERE id=?", id).Scan(&status)
	if err != nil {
		response.NotFound(w, "purchase order")
		return
	}
	if validation.IsTerminalPO(status) {
		response.ErrCode(w, "order "+id+" is "+status+" and cannot be modified", response.CodeOrderClosed, 409)
		return
	}
	if status != "placed" {
		response.Err(w, "order must be placed to receive (currently "+status+")", 400)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	now := time.Now().Format("2006-01-02 15:04:05")
	for i, rl := range req.Lines {
		if rl.Quantity <= 0 {
			response.Err(w, fmt.Sprintf("lines[%d].quantity: must be positive", i), 400)
			return
		}

		var partIPN string
		var qtyOrdered, qtyReceived float64
		err := tx.QueryRow("SELECT part_ipn,qty_ordered,qty_received FROM purchase_order_lines WHERE id=? AND order_id=?",
			rl.Line, id).Scan(&partIPN, &qtyOrdered, &qtyReceived)
		if err != nil {
			response.Err(w, fmt.Sprintf("lines[%d].line: not found on order %s", i, id), 400)
			return
		}
		if qtyReceived+rl.Quantity > qtyOrdered {
			response.Err(w, fmt.Sprintf("lines[%d].quantity: receiving %.2f would exceed ordered quantity %.2f", i, qtyReceived+rl.Quantity, qtyOrdered), 400)
			return
		}

		if _, err := tx.Exec("UPDATE purchase_order_lines SET qty_received = qty_received + ? WHERE id=?",
			rl.Quantity, rl.Line); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		if _, err := tx.Exec("INSERT INTO stock_batches (part_ipn,location,batch_code,quantity,created_at,updated_at) VALUES (?,?,?,?,?,?)",
			partIPN, req.Location, rl.BatchCode, rl.Quantity, now, now); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}

	// Complete the order once nothing is outstanding.
	var open int
	if err := tx.QueryRow("SELECT COUNT(*) FROM purchase_order_lines WHERE order_id=? AND qty_received < qty_ordered", id).Scan(&open); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if open == 0 {
		if _, err := tx.Exec("UPDATE purchase_orders SET status='complete',completed_at=?,updated_at=? WHERE id=?", now, now, id); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	} else {
		if _, err := tx.Exec("UPDATE purchase_orders SET updated_at=? WHERE id=?", now, id); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionReceive, "purchase_order", id,
		fmt.Sprintf("Received %d line(s) on %s", len(req.Lines), id))
	h.GetPurchaseOrder(w, r, id)
}
