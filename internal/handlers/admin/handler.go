// Package admin covers authentication, user management, and the audit
// trail.
package admin

import (
	"database/sql"
	"time"

	"orderhub/internal/websocket"
)

// Handler holds dependencies for admin handlers.
type Handler struct {
	DB  *sql.DB
	Hub *websocket.Hub

	// SessionTTL is how long a session lives without activity.
	SessionTTL time.Duration
}
