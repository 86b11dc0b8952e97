// Package sales manages customer orders: the pending/in_progress
// lifecycle, line items, and stock allocation against batches.
package sales

import (
	"database/sql"

	"orderhub/internal/websocket"
)

// NextIDFunc generates a sequential ID with the given prefix and table.
type NextIDFunc func(prefix, table string, digits int) string

// Handler holds dependencies for sales handlers.
type Handler struct {
	DB     *sql.DB
	Hub    *websocket.Hub
	NextID NextIDFunc

	// AllowOverAllocation permits allocating more stock to a line than
	// it requires.
	AllowOverAllocation bool
}
