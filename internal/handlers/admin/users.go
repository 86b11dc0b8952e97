package admin

import (
	"net/http"
	"strconv"
	"strings"

	"orderhub/internal/audit"
	"orderhub/internal/auth"
	"orderhub/internal/models"
	"orderhub/internal/response"
	"orderhub/internal/server"
	"orderhub/internal/validation"
)

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	role, _ := r.Context().Value(server.CtxRole).(string)
	if role != "admin" {
		response.ErrCode(w, "Admin access required", "FORBIDDEN", 403)
		return false
	}
	return true
}

// ListUsers handles GET /api/v1/users. Admin only.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	rows, err := h.DB.Query("SELECT id,username,role,COALESCE(email,''),created_at FROM users ORDER BY username")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.Email, &u.CreatedAt); err != nil {
			continue
		}
		users = append(users, u)
	}
	if users == nil {
		users = []models.User{}
	}
	response.JSON(w, users)
}

// CreateUser handles POST /api/v1/users. Admin only.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
		Email    string `json:"email"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "username", req.Username)
	if req.Role == "" {
		req.Role = "user"
	}
	validation.ValidateEnum(ve, "role", req.Role, []string{"admin", "user", "readonly"})
	if req.Email != "" {
		validation.ValidateEmail(ve, "email", req.Email)
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	id, err := auth.CreateUser(h.DB, req.Username, req.Password, req.Role, req.Email)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			response.Err(w, "username already exists", 409)
			return
		}
		response.Err(w, err.Error(), 500)
		return
	}

	audit.LogRequest(h.DB, h.Hub, r, audit.ActionCreate, "user", strconv.Itoa(id), "Created user "+req.Username)
	var u models.User
	h.DB.QueryRow("SELECT id,username,role,COALESCE(email,''),created_at FROM users WHERE id=?", id).
		Scan(&u.ID, &u.Username, &u.Role, &u.Email, &u.CreatedAt)
	response.JSON(w, u)
}

// UpdateUser handles PUT /api/v1/users/:id. Admin only; role and email
// are updatable, passwords go through the change-password endpoint.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request, id int) {
	if !requireAdmin(w, r) {
		return
	}
	var req struct {
		Role  *string `json:"role"`
		Email *string `json:"email"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	var username, role, email string
	err := h.DB.QueryRow("SELECT username,role,COALESCE(email,'') FROM users WHERE id=?", id).
		Scan(&username, &role, &email)
	if err != nil {
		response.NotFound(w, "user")
		return
	}
	if req.Role != nil {
		role = *req.Role
	}
	if req.Email != nil {
		email = *req.Email
	}

	ve := &validation.ValidationErrors{}
	validation.ValidateEnum(ve, "role", role, []string{"admin", "user", "readonly"})
	if email != "" {
		validation.ValidateEmail(ve, "email", email)
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	if _, err := h.DB.Exec("UPDATE users SET role=?, email=? WHERE id=?", role, email, id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionUpdate, "user", strconv.Itoa(id), "Updated user "+username)

	var u models.User
	h.DB.QueryRow("SELECT id,username,role,COALESCE(email,''),created_at FROM users WHERE id=?", id).
		Scan(&u.ID, &u.Username, &u.Role, &u.Email, &u.CreatedAt)
	response.JSON(w, u)
}

// DeleteUser handles DELETE /api/v1/users/:id. Admin only; an admin
// cannot delete their own account.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request, id int) {
	if !requireAdmin(w, r) {
		return
	}
	if selfID, _ := r.Context().Value(server.CtxUserID).(int); selfID == id {
		response.Err(w, "cannot delete your own account", 400)
		return
	}

	var username string
	if err := h.DB.QueryRow("SELECT username FROM users WHERE id=?", id).Scan(&username); err != nil {
		response.NotFound(w, "user")
		return
	}

	h.DB.Exec("DELETE FROM sessions WHERE user_id=?", id)
	if _, err := h.DB.Exec("DELETE FROM users WHERE id=?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.LogRequest(h.DB, h.Hub, r, audit.ActionDelete, "user", strconv.Itoa(id), "Deleted user "+username)
	response.JSON(w, map[string]string{"status": "deleted"})
}
