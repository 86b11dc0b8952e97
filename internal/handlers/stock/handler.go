// Package stock manages stock batches, the lots that sales order
// allocations draw from.
package stock

import (
	"database/sql"

	"orderhub/internal/websocket"
)

// Handler holds dependencies for stock handlers.
type Handler struct {
	DB  *sql.DB
	Hub *websocket.Hub
}
