// Package catalog serves the reference data orders hang off of: parts,
// suppliers, customers, supplier part listings and their price breaks.
package catalog

import (
	"database/sql"

	"orderhub/internal/websocket"
)

// NextIDFunc generates a sequential ID with the given prefix and table.
type NextIDFunc func(prefix, table string, digits int) string

// Handler holds dependencies for catalog handlers.
type Handler struct {
	DB     *sql.DB
	Hub    *websocket.Hub
	NextID NextIDFunc

	// RoundOrderMultiples controls whether price quotes round
	// quantities up to the supplier's order multiple.
	RoundOrderMultiples bool
}
