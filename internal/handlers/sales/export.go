package sales

import (
	"fmt"
	"net/http"

	"orderhub/internal/audit"
	"orderhub/internal/handlers/common"
)

// ExportSalesOrders handles GET /api/v1/sales-orders/export. Supports
// csv (default) and xlsx.
func (h *Handler) ExportSalesOrders(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	status := r.URL.Query().Get("status")

	query := `SELECT o.id, c.name, o.status, COALESCE(o.target_date,''),
		COUNT(l.id), COALESCE(SUM(l.qty_required),0),
		COALESCE((SELECT SUM(a.quantity) FROM allocations a
			JOIN sales_order_lines sl ON sl.id = a.line_id WHERE sl.order_id = o.id),0),
		COALESCE(SUM(l.unit_price * l.qty_required),0),
		o.created_at
		FROM sales_orders o
		JOIN customers c ON c.id = o.customer_id
		LEFT JOIN sales_order_lines l ON l.order_id = o.id`
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

	headers := []string{"Reference", "Customer", "Status", "Target Date", "Lines", "Qty Required", "Qty Allocated", "Total Value", "Created At"}
	var data [][]string
	for rows.Next() {
		var id, customer, st, targetDate, createdAt string
		var lines int
		var required, allocated, total float64
		rows.Scan(&id, &customer, &st, &targetDate, &lines, &required, &allocated, &total, &createdAt)
		data = append(data, []string{
			id, customer, st, targetDate, fmt.Sprintf("%d", lines),
			fmt.Sprintf("%.2f", required), fmt.Sprintf("%.2f", allocated),
			fmt.Sprintf("%.2f", total), createdAt,
		})
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionExport, "sales_order", "",
		fmt.Sprintf("Exported %d sales orders as %s", len(data), format))

	if format == "xlsx" {
		common.ExportExcel(w, "SalesOrders", headers, data)
	} else {
		common.ExportCSV(w, "sales_orders.csv", headers, data)
	}
}
