package catalog

import (
	"net/http"

	"orderhub/internal/audit"
	"orderhub/internal/models"
	"orderhub/internal/response"
	"orderhub/internal/validation"
)

const supplierCols = "id,name,COALESCE(website,''),COALESCE(contact_name,''),COALESCE(contact_email,''),COALESCE(contact_phone,''),COALESCE(address,''),COALESCE(notes,''),status,lead_time_days,created_at"

func scanSupplier(row interface{ Scan(...interface{}) error }) (models.Supplier, error) {
	var s models.Supplier
	err := row.Scan(&s.ID, &s.Name, &s.Website, &s.ContactName, &s.ContactEmail, &s.ContactPhone,
		&s.Address, &s.Notes, &s.Status, &s.LeadTimeDays, &s.CreatedAt)
	return s, err
}

// ListSuppliers handles GET /api/v1/suppliers.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	search := r.URL.Query().Get("search")

	query := "SELECT " + supplierCols + " FROM suppliers"
	var conditions []string
	var args []interface{}

	if status != "" {
		conditions = append(conditions, "status=?")
		args = append(args, status)
	}
	if search != "" {
		conditions = append(conditions, "(name LIKE ? OR contact_name LIKE ?)")
		term := "%" + search + "%"
		args = append(args, term, term)
	}
	if len(conditions) > 0 {
		query += " WHERE " + conditions[0]
		for _, c := range conditions[1:] {
			query += " AND " + c
		}
	}
	query += " ORDER BY name"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			continue
		}
		items = append(items, s)
	}
	if items == nil {
		items = []models.Supplier{}
	}
	response.JSON(w, items)
}

// GetSupplier handles GET /api/v1/suppliers/:id.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request, id string) {
	s, err := scanSupplier(h.DB.QueryRow("SELECT "+supplierCols+" FROM suppliers WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "supplier")
		return
	}
	response.JSON(w, s)
}

func (h *Handler) validateCompany(s *models.Supplier) *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", s.Name)
	validation.ValidateEnum(ve, "status", s.Status, validation.SupplierStatuses)
	validation.ValidateEmail(ve, "contact_email", s.ContactEmail)
	if s.LeadTimeDays < 0 || s.LeadTimeDays > validation.MaxLeadTimeDays {
		ve.Add("lead_time_days", "must be between 0 and 730")
	}
	return ve
}

// CreateSupplier handles POST /api/v1/suppliers.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var s models.Supplier
	if err := response.DecodeBody(r, &s); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if s.Status == "" {
		s.Status = "active"
	}
	if ve := h.validateCompany(&s); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	s.ID = h.NextID("SUP", "suppliers", 3)
	_, err := h.DB.Exec("INSERT INTO suppliers (id,name,website,contact_name,contact_email,contact_phone,address,notes,status,lead_time_days) VALUES (?,?,?,?,?,?,?,?,?,?)",
		s.ID, s.Name, s.Website, s.ContactName, s.ContactEmail, s.ContactPhone, s.Address, s.Notes, s.Status, s.LeadTimeDays)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, "supplier", s.ID, "Created supplier "+s.Name)
	h.GetSupplier(w, r, s.ID)
}

// UpdateSupplier handles PUT /api/v1/suppliers/:id.
func (h *Handler) UpdateSupplier(w http.ResponseWriter, r *http.Request, id string) {
	cur, err := scanSupplier(h.DB.QueryRow("SELECT "+supplierCols+" FROM suppliers WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "supplier")
		return
	}

	var req struct {
		Name         *string `json:"name"`
		Website      *string `json:"website"`
		ContactName  *string `json:"contact_name"`
		ContactEmail *string `json:"contact_email"`
		ContactPhone *string `json:"contact_phone"`
		Address      *string `json:"address"`
		Notes        *string `json:"notes"`
		Status       *string `json:"status"`
		LeadTimeDays *int    `json:"lead_time_days"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	if req.Name != nil {
		cur.Name = *req.Name
	}
	if req.Website != nil {
		cur.Website = *req.Website
	}
	if req.ContactName != nil {
		cur.ContactName = *req.ContactName
	}
	if req.ContactEmail != nil {
		cur.ContactEmail = *req.ContactEmail
	}
	if req.ContactPhone != nil {
		cur.ContactPhone = *req.ContactPhone
	}
	if req.Address != nil {
		cur.Address = *req.Address
	}
	if req.Notes != nil {
		cur.Notes = *req.Notes
	}
	if req.Status != nil {
		cur.Status = *req.Status
	}
	if req.LeadTimeDays != nil {
		cur.LeadTimeDays = *req.LeadTimeDays
	}
	if ve := h.validateCompany(&cur); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	_, err = h.DB.Exec("UPDATE suppliers SET name=?,website=?,contact_name=?,contact_email=?,contact_phone=?,address=?,notes=?,status=?,lead_time_days=? WHERE id=?",
		cur.Name, cur.Website, cur.ContactName, cur.ContactEmail, cur.ContactPhone, cur.Address, cur.Notes, cur.Status, cur.LeadTimeDays, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, "supplier", id, "Updated supplier "+id)
	h.GetSupplier(w, r, id)
}
