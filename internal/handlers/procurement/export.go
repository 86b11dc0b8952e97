package procurement

import (
	"fmt"
	"net/http"

	"orderhub/internal/audit"
	"orderhub/internal/handlers/common"
)

// ExportPurchaseOrders handles GET /api/v1/purchase-orders/export.
// Supports csv (default) and xlsx.
func (h *Handler) ExportPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	status := r.URL.Query().Get("status")

	query := `SELECT o.id, s.name, o.status, COALESCE(o.target_date,''),
		COUNT(l.id), COALESCE(SUM(l.qty_ordered),0), COALESCE(SUM(l.qty_received),0),
		COALESCE(SUM(l.base_cost + l.unit_cost * l.qty_ordered),0),
		o.created_at
		FROM purchase_orders o
		JOIN suppliers s ON s.id = o.supplier_id
		LEFT JOIN purchase_order_lines l ON l.order_id = o.id`
	var args []interface{}
	if status != "" {
		query += " WHERE o.status=?"
		args = append(args, status)
	}
	query += " GROUP BY o.id ORDER BY o.created_at DESC"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	headers := []string{"Reference", "Supplier", "Status", "Target Date", "Lines", "Qty Ordered", "Qty Received", "Total Cost", "Created At"}
	var data [][]string
	for rows.Next() {
		var id, supplier, st, targetDate, createdAt string
		var lines int
		var ordered, received, total float64
		rows.Scan(&id, &supplier, &st, &targetDate, &lines, &ordered, &received, &total, &createdAt)
		data = append(data, []string{
			id, supplier, st, targetDate, fmt.Sprintf("%d", lines),
			fmt.Sprintf("%.2f", ordered), fmt.Sprintf("%.2f", received),
			fmt.Sprintf("%.2f", total), createdAt,
		})
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionExport, "purchase_order", "",
		fmt.Sprintf("Exported %d purchase orders as %s", len(data), format))

	if format == "xlsx" {
		common.ExportExcel(w, "PurchaseOrders", headers, data)
	} else {
		common.ExportCSV(w, "purchase_orders.csv", headers, data)
	}
}
