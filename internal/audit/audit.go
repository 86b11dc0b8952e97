package audit

import (
	"database/sql"
	"log"
	"net/http"
	"strings"

	"orderhub/internal/auth"
	"orderhub/internal/websocket"
)

// Action constants.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionExport  = "export"
	ActionPlace   = "place"
	ActionReceive = "receive"
	ActionIssue   = "issue"
	ActionShip    = "ship"
	ActionCancel  = "cancel"
)

// Log writes an audit entry and broadcasts a change event to connected
// clients. Audit failures are logged, never surfaced to the caller.
func Log(db *sql.DB, hub *websocket.Hub, username, action, module, recordID, summary string) {
	_, err := db.Exec("INSERT INTO audit_log (username, action, module, record_id, summary) VALUES (?, ?, ?, ?, ?)",
		username, action, module, recordID, summary)
	if err != nil {
		log.Printf("audit log error: %v", err)
	}
	if hub != nil {
		hub.Broadcast(websocket.Event{
			Type:   module + "_" + action,
			ID:     recordID,
			Action: action,
		})
	}
}

// LogRequest writes an audit entry attributed to the request's session user.
func LogRequest(db *sql.DB, hub *websocket.Hub, r *http.Request, action, module, recordID, summary string) {
	Log(db, hub, Username(db, r), action, module, recordID, summary)
}

// Username extracts the username from a session cookie. Requests
// without a valid session are attributed to "system".
func Username(db *sql.DB, r *http.Request) string {
	cookie, err := r.Cookie(auth.SessionCookie)
	if err != nil {
		return "system"
	}
	var username string
	err = db.QueryRow("SELECT u.username FROM users u JOIN sessions s ON u.id = s.user_id WHERE s.token = ?", cookie.Value).Scan(&username)
	if err != nil {
		return "system"
	}
	return username
}

// ClientIP extracts the real client IP from the request (handles proxies).
func ClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
