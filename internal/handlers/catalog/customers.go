package catalog

import (
	"net/http"

	"orderhub/internal/audit"
	"orderhub/internal/models"
	"orderhub/internal/response"
	"orderhub/internal/validation"
)

const customerCols = "id,name,COALESCE(website,''),COALESCE(contact_name,''),COALESCE(contact_email,''),COALESCE(contact_phone,''),COALESCE(address,''),COALESCE(notes,''),status,created_at"

func scanCustomer(row interface{ Scan(...interface{}) error }) (models.Customer, error) {
	var c models.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Website, &c.ContactName, &c.ContactEmail, &c.ContactPhone,
		&c.Address, &c.Notes, &c.Status, &c.CreatedAt)
	return c, err
}

// ListCustomers handles GET /api/v1/customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	search := r.URL.Query().Get("search")

	query := "SELECT " + customerCols + " FROM customers"
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
	var items []models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			continue
		}
		items = append(items, c)
	}
	if items == nil {
		items = []models.Customer{}
	}
	response.JSON(w, items)
}

// GetCustomer handles GET /api/v1/customers/:id.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request, id string) {
	c, err := scanCustomer(h.DB.QueryRow("SELECT "+customerCols+" FROM customers WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "customer")
		return
	}
	response.JSON(w, c)
}

// CreateCustomer handles POST /api/v1/customers.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var c models.Customer
	if err := response.DecodeBody(r, &c); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if c.Status == "" {
		c.Status = "active"
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", c.Name)
	validation.ValidateEnum(ve, "status", c.Status, validation.CustomerStatuses)
	validation.ValidateEmail(ve, "contact_email", c.ContactEmail)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	c.ID = h.NextID("CUS", "customers", 3)
	_, err := h.DB.Exec("INSERT INTO customers (id,name,website,contact_name,contact_email,contact_phone,address,notes,status) VALUES (?,?,?,?,?,?,?,?,?)",
		c.ID, c.Name, c.Website, c.ContactName, c.ContactEmail, c.ContactPhone, c.Address, c.Notes, c.Status)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, "customer", c.ID, "Created customer "+c.Name)
	h.GetCustomer(w, r, c.ID)
}

// UpdateCustomer handles PUT /api/v1/customers/:id.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request, id string) {
	cur, err := scanCustomer(h.DB.QueryRow("SELECT "+customerCols+" FROM customers WHERE id=?", id))
	if err != nil {
		response.NotFound(w, "customer")
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

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", cur.Name)
	validation.ValidateEnum(ve, "status", cur.Status, validation.CustomerStatuses)
	validation.ValidateEmail(ve, "contact_email", cur.ContactEmail)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	_, err = h.DB.Exec("UPDATE customers SET name=?,website=?,contact_name=?,contact_email=?,contact_phone=?,address=?,notes=?,status=? WHERE id=?",
		cur.Name, cur.Website, cur.ContactName, cur.ContactEmail, cur.ContactPhone, cur.Address, cur.Notes, cur.Status, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, "customer", id, "Updated customer "+id)
	h.GetCustomer(w, r, id)
}
