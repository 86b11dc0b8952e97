package admin

import (
	"net/http"
	"strconv"
	"strings"

	"orderhub/internal/models"
	"orderhub/internal/response"
)

// ListAuditLog handles GET /api/v1/audit. Filterable by module, action,
// and username; newest first with limit/offset paging.
func (h *Handler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := "SELECT id,username,action,module,record_id,COALESCE(summary,''),created_at FROM audit_log"
	countQuery := "SELECT COUNT(*) FROM audit_log"
	var conditions []string
	var args []interface{}

	for _, f := range []string{"module", "action", "username"} {
		if v := q.Get(f); v != "" {
			conditions = append(conditions, f+"=?")
			args = append(args, v)
		}
	}
	if len(conditions) > 0 {
		where := " WHERE " + strings.Join(conditions, " AND ")
		query += where
		countQuery += where
	}

	var total int
	h.DB.QueryRow(countQuery, args...).Scan(&total)

	limit := 50
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && n <= 500 {
		limit = n
	}
	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		offset = n
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Module, &e.RecordID, &e.Summary, &e.CreatedAt); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	response.JSONMeta(w, entries, total, limit, offset)
}
