// Package procurement manages purchase orders against suppliers: line
// items priced from supplier part terms, the pending/placed lifecycle,
// and receiving stock against placed orders.
package procurement

import (
	"database/sql"

	"orderhub/internal/handlers/catalog"
	"orderhub/internal/websocket"
)

// NextIDFunc generates a sequential ID with the given prefix and table.
type NextIDFunc func(prefix, table string, digits int) string

// Handler holds dependencies for procurement handlers.
type Handler struct {
	DB      *sql.DB
	Hub     *websocket.Hub
	NextID  NextIDFunc
	Catalog *catalog.Handler

	// RoundOrderMultiples controls whether line quantities round up to
	// the supplier's order multiple when pricing.
	RoundOrderMultiples bool
}
