package catalog

import (
	"net/http"
	"time"

	"orderhub/internal/audit"
	"orderhub/internal/models"
	"orderhub/internal/response"
	"orderhub/internal/validation"
)

// ListParts handles GET /api/v1/parts.
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	category := r.URL.Query().Get("category")

	query := "SELECT ipn,description,COALESCE(category,''),COALESCE(units,''),active,created_at,updated_at FROM parts"
	var conditions []string
	var args []interface{}

	if search != "" {
		conditions = append(conditions, "(ipn LIKE ? OR description LIKE ?)")
		term := "%" + search + "%"
		args = append(args, term, term)
	}
	if category != "" {
		conditions = append(conditions, "category=?")
		args = append(args, category)
	}
	if len(conditions) > 0 {
		query += " WHERE " + conditions[0]
		for _, c := range conditions[1:] {
			query += " AND " + c
		}
	}
	query += " ORDER BY ipn"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.Part
	for rows.Next() {
		var p models.Part
		var active int
		rows.Scan(&p.IPN, &p.Description, &p.Category, &p.Units, &active, &p.CreatedAt, &p.UpdatedAt)
		p.Active = active != 0
		items = append(items, p)
	}
	if items == nil {
		items = []models.Part{}
	}
	response.JSON(w, items)
}

// GetPart handles GET /api/v1/parts/:ipn.
func (h *Handler) GetPart(w http.ResponseWriter, r *http.Request, ipn string) {
	var p models.Part
	var active int
	err := h.DB.QueryRow("SELECT ipn,description,COALESCE(category,''),COALESCE(units,''),active,created_at,updated_at FROM parts WHERE ipn=?", ipn).
		Scan(&p.IPN, &p.Description, &p.Category, &p.Units, &active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		response.NotFound(w, "part")
		return
	}
	p.Active = active != 0
	response.JSON(w, p)
}

// CreatePart handles POST /api/v1/parts.
func (h *Handler) CreatePart(w http.ResponseWriter, r *http.Request) {
	var p models.Part
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "ipn", p.IPN)
	validation.ValidateIPN(ve, "ipn", p.IPN)
	validation.RequireField(ve, "description", p.Description)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	_, err := h.DB.Exec("INSERT INTO parts (ipn,description,category,units,active,created_at,updated_at) VALUES (?,?,?,?,1,?,?)",
		p.IPN, p.Description, p.Category, p.Units, now, now)
	if err != nil {
		response.Err(w, "part already exists: "+p.IPN, 409)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, "part", p.IPN, "Created part "+p.IPN)
	h.GetPart(w, r, p.IPN)
}

// UpdatePart handles PUT /api/v1/parts/:ipn. Only fields present in the
// body change.
func (h *Handler) UpdatePart(w http.ResponseWriter, r *http.Request, ipn string) {
	var exists int
	h.DB.QueryRow("SELECT COUNT(*) FROM parts WHERE ipn=?", ipn).Scan(&exists)
	if exists == 0 {
		response.NotFound(w, "part")
		return
	}

	var req struct {
		Description *string `json:"description"`
		Category    *string `json:"category"`
		Units       *string `json:"units"`
		Active      *bool   `json:"active"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	sets := "updated_at=?"
	args := []interface{}{time.Now().Format("2006-01-02 15:04:05")}
	if req.Description != nil {
		sets += ",description=?"
		args = append(args, *req.Description)
	}
	if req.Category != nil {
		sets += ",category=?"
		args = append(args, *req.Category)
	}
	if req.Units != nil {
		sets += ",units=?"
		args = append(args, *req.Units)
	}
	if req.Active != nil {
		sets += ",active=?"
		if *req.Active {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	args = append(args, ipn)

	if _, err := h.DB.Exec("UPDATE parts SET "+sets+" WHERE ipn=?", args...); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, "part", ipn, "Updated part "+ipn)
	h.GetPart(w, r, ipn)
}
