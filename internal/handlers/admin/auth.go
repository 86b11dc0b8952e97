package admin

import (
	"net/http"
	"time"

	"orderhub/internal/auth"
	"orderhub/internal/models"
	"orderhub/internal/response"
	"orderhub/internal/server"
)

// HandleLogin handles POST /auth/login. On success a session cookie is
// set and the user record returned.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if req.Username == "" || req.Password == "" {
		response.Err(w, "username and password are required", 400)
		return
	}

	token, userID, err := auth.Login(h.DB, req.Username, req.Password, h.SessionTTL)
	if err != nil {
		response.ErrCode(w, "Invalid username or password", response.CodeUnauthorized, 401)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(h.SessionTTL),
	})

	var u models.User
	h.DB.QueryRow("SELECT id,username,role,COALESCE(email,''),created_at FROM users WHERE id=?", userID).
		Scan(&u.ID, &u.Username, &u.Role, &u.Email, &u.CreatedAt)
	response.JSON(w, u)
}

// HandleLogout handles POST /auth/logout. Always succeeds.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		auth.Logout(h.DB, cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	response.JSON(w, map[string]string{"status": "ok"})
}

// HandleMe handles GET /api/v1/me for the authenticated user.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(server.CtxUserID).(int)
	if !ok || userID == 0 {
		response.ErrCode(w, "Unauthorized", response.CodeUnauthorized, 401)
		return
	}
	var u models.User
	err := h.DB.QueryRow("SELECT id,username,role,COALESCE(email,''),created_at FROM users WHERE id=?", userID).
		Scan(&u.ID, &u.Username, &u.Role, &u.Email, &u.CreatedAt)
	if err != nil {
		response.NotFound(w, "user")
		return
	}
	response.JSON(w, u)
}

// HandleChangePassword handles POST /api/v1/me/password.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(server.CtxUserID).(int)
	if !ok || userID == 0 {
		response.ErrCode(w, "Unauthorized", response.CodeUnauthorized, 401)
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		response.Err(w, "current and new password are required", 400)
		return
	}
	if err := auth.ValidatePasswordStrength(req.NewPassword); err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	var currentHash string
	if err := h.DB.QueryRow("SELECT password_hash FROM users WHERE id=?", userID).Scan(&currentHash); err != nil {
		response.NotFound(w, "user")
		return
	}
	if !auth.CheckPassword(currentHash, req.CurrentPassword) {
		response.ErrCode(w, "Current password is incorrect", response.CodeUnauthorized, 401)
		return
	}

	newHash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		response.Err(w, "failed to hash password", 500)
		return
	}
	if _, err := h.DB.Exec("UPDATE users SET password_hash=? WHERE id=?", newHash, userID); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, map[string]string{"status": "password_changed"})
}
