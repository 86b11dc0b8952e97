package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"orderhub/internal/auth"
	"orderhub/internal/config"
	"orderhub/internal/database"
	"orderhub/internal/handlers/admin"
	"orderhub/internal/handlers/catalog"
	"orderhub/internal/handlers/procurement"
	"orderhub/internal/handlers/sales"
	"orderhub/internal/handlers/stock"
	"orderhub/internal/server"
	ws "orderhub/internal/websocket"
)

func main() {
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	configPath := flag.String("config", "orderhub.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Config load failed: ", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("DB open failed: ", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.Fatal("DB migration failed: ", err)
	}
	seedAdmin(db)

	hub := ws.NewHub()
	nextID := func(prefix, table string, digits int) string {
		return database.NextID(db, prefix, table, digits)
	}
	sessionTTL := time.Duration(cfg.SessionHours) * time.Hour

	catalogH := &catalog.Handler{DB: db, Hub: hub, NextID: nextID, RoundOrderMultiples: cfg.RoundOrderMultiples}
	procurementH := &procurement.Handler{DB: db, Hub: hub, NextID: nextID, Catalog: catalogH, RoundOrderMultiples: cfg.RoundOrderMultiples}
	salesH := &sales.Handler{DB: db, Hub: hub, NextID: nextID, AllowOverAllocation: cfg.AllowOverAllocation}
	stockH := &stock.Handler{DB: db, Hub: hub}
	adminH := &admin.Handler{DB: db, Hub: hub, SessionTTL: sessionTTL}

	mux := http.NewServeMux()

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			adminH.HandleLogin(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			adminH.HandleLogout(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.Handle(hub, w, r)
	})

	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		route(w, r, catalogH, procurementH, salesH, stockH, adminH)
	})

	handler := server.LoggingMiddleware(
		server.SecurityHeaders(
			server.RequireAuth(db, sessionTTL)(
				server.RequireWriteAccess(mux))))

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("orderhub server starting on http://localhost%s", addr)
	log.Fatal(http.ListenAndServe(addr, handler))
}

// route dispatches /api/v1/ requests on path segments.
func route(w http.ResponseWriter, r *http.Request,
	catalogH *catalog.Handler, procurementH *procurement.Handler,
	salesH *sales.Handler, stockH *stock.Handler, adminH *admin.Handler) {

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	path = strings.TrimSuffix(path, "/")
	parts := strings.Split(path, "/")

	// Numeric id for routes keyed by integer primary key.
	num := func(i int) (int, bool) {
		if i >= len(parts) {
			return 0, false
		}
		n, err := strconv.Atoi(parts[i])
		return n, err == nil
	}

	switch {
	// Current user
	case path == "me" && r.Method == "GET":
		adminH.HandleMe(w, r)
	case path == "me/password" && r.Method == "POST":
		adminH.HandleChangePassword(w, r)

	// Users
	case path == "users" && r.Method == "GET":
		adminH.ListUsers(w, r)
	case path == "users" && r.Method == "POST":
		adminH.CreateUser(w, r)
	case parts[0] == "users" && len(parts) == 2 && r.Method == "PUT":
		if id, ok := num(1); ok {
			adminH.UpdateUser(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "users" && len(parts) == 2 && r.Method == "DELETE":
		if id, ok := num(1); ok {
			adminH.DeleteUser(w, r, id)
		} else {
			http.NotFound(w, r)
		}

	// Audit trail
	case path == "audit" && r.Method == "GET":
		adminH.ListAuditLog(w, r)

	// Parts
	case path == "parts" && r.Method == "GET":
		catalogH.ListParts(w, r)
	case path == "parts" && r.Method == "POST":
		catalogH.CreatePart(w, r)
	case parts[0] == "parts" && len(parts) == 2 && r.Method == "GET":
		catalogH.GetPart(w, r, parts[1])
	case parts[0] == "parts" && len(parts) == 2 && r.Method == "PUT":
		catalogH.UpdatePart(w, r, parts[1])

	// Suppliers
	case path == "suppliers" && r.Method == "GET":
		catalogH.ListSuppliers(w, r)
	case path == "suppliers" && r.Method == "POST":
		catalogH.CreateSupplier(w, r)
	case parts[0] == "suppliers" && len(parts) == 2 && r.Method == "GET":
		catalogH.GetSupplier(w, r, parts[1])
	case parts[0] == "suppliers" && len(parts) == 2 && r.Method == "PUT":
		catalogH.UpdateSupplier(w, r, parts[1])

	// Customers
	case path == "customers" && r.Method == "GET":
		catalogH.ListCustomers(w, r)
	case path == "customers" && r.Method == "POST":
		catalogH.CreateCustomer(w, r)
	case parts[0] == "customers" && len(parts) == 2 && r.Method == "GET":
		catalogH.GetCustomer(w, r, parts[1])
	case parts[0] == "customers" && len(parts) == 2 && r.Method == "PUT":
		catalogH.UpdateCustomer(w, r, parts[1])

	// Supplier parts and their price breaks
	case path == "supplier-parts" && r.Method == "GET":
		catalogH.ListSupplierParts(w, r)
	case path == "supplier-parts" && r.Method == "POST":
		catalogH.CreateSupplierPart(w, r)
	case parts[0] == "supplier-parts" && len(parts) == 2 && r.Method == "GET":
		if id, ok := num(1); ok {
			catalogH.GetSupplierPart(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "supplier-parts" && len(parts) == 2 && r.Method == "PUT":
		if id, ok := num(1); ok {
			catalogH.UpdateSupplierPart(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "supplier-parts" && len(parts) == 2 && r.Method == "DELETE":
		if id, ok := num(1); ok {
			catalogH.DeleteSupplierPart(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "supplier-parts" && len(parts) == 3 && parts[2] == "price-breaks" && r.Method == "GET":
		if id, ok := num(1); ok {
			catalogH.ListPriceBreaks(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "supplier-parts" && len(parts) == 3 && parts[2] == "price-breaks" && r.Method == "POST":
		if id, ok := num(1); ok {
			catalogH.CreatePriceBreak(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "supplier-parts" && len(parts) == 3 && parts[2] == "price" && r.Method == "GET":
		if id, ok := num(1); ok {
			catalogH.QuotePrice(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "price-breaks" && len(parts) == 2 && r.Method == "PUT":
		if id, ok := num(1); ok {
			catalogH.UpdatePriceBreak(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "price-breaks" && len(parts) == 2 && r.Method == "DELETE":
		if id, ok := num(1); ok {
			catalogH.DeletePriceBreak(w, r, id)
		} else {
			http.NotFound(w, r)
		}

	// Purchase orders
	case path == "purchase-orders" && r.Method == "GET":
		procurementH.ListPurchaseOrders(w, r)
	case path == "purchase-orders" && r.Method == "POST":
		procurementH.CreatePurchaseOrder(w, r)
	case path == "purchase-orders/export" && r.Method == "GET":
		procurementH.ExportPurchaseOrders(w, r)
	case parts[0] == "purchase-orders" && len(parts) == 2 && r.Method == "GET":
		procurementH.GetPurchaseOrder(w, r, parts[1])
	case parts[0] == "purchase-orders" && len(parts) == 2 && r.Method == "PUT":
		procurementH.UpdatePurchaseOrder(w, r, parts[1])
	case parts[0] == "purchase-orders" && len(parts) == 3 && parts[2] == "place" && r.Method == "POST":
		procurementH.PlacePurchaseOrder(w, r, parts[1])
	case parts[0] == "purchase-orders" && len(parts) == 3 && parts[2] == "receive" && r.Method == "POST":
		procurementH.ReceivePurchaseOrder(w, r, parts[1])
	case parts[0] == "purchase-orders" && len(parts) == 3 && parts[2] == "cancel" && r.Method == "POST":
		procurementH.CancelPurchaseOrder(w, r, parts[1])

	// Purchase order lines
	case path == "po-lines" && r.Method == "GET":
		procurementH.ListPOLines(w, r)
	case path == "po-lines" && r.Method == "POST":
		procurementH.CreatePOLine(w, r)
	case parts[0] == "po-lines" && len(parts) == 2 && r.Method == "GET":
		if id, ok := num(1); ok {
			procurementH.GetPOLine(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "po-lines" && len(parts) == 2 && r.Method == "PUT":
		if id, ok := num(1); ok {
			procurementH.UpdatePOLine(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "po-lines" && len(parts) == 2 && r.Method == "DELETE":
		if id, ok := num(1); ok {
			procurementH.DeletePOLine(w, r, id)
		} else {
			http.NotFound(w, r)
		}

	// Sales orders
	case path == "sales-orders" && r.Method == "GET":
		salesH.ListSalesOrders(w, r)
	case path == "sales-orders" && r.Method == "POST":
		salesH.CreateSalesOrder(w, r)
	case path == "sales-orders/export" && r.Method == "GET":
		salesH.ExportSalesOrders(w, r)
	case parts[0] == "sales-orders" && len(parts) == 2 && r.Method == "GET":
		salesH.GetSalesOrder(w, r, parts[1])
	case parts[0] == "sales-orders" && len(parts) == 2 && r.Method == "PUT":
		salesH.UpdateSalesOrder(w, r, parts[1])
	case parts[0] == "sales-orders" && len(parts) == 3 && parts[2] == "issue" && r.Method == "POST":
		salesH.IssueSalesOrder(w, r, parts[1])
	case parts[0] == "sales-orders" && len(parts) == 3 && parts[2] == "ship" && r.Method == "POST":
		salesH.ShipSalesOrder(w, r, parts[1])
	case parts[0] == "sales-orders" && len(parts) == 3 && parts[2] == "cancel" && r.Method == "POST":
		salesH.CancelSalesOrder(w, r, parts[1])

	// Sales order lines and allocations
	case path == "so-lines" && r.Method == "GET":
		salesH.ListSOLines(w, r)
	case path == "so-lines" && r.Method == "POST":
		salesH.CreateSOLine(w, r)
	case parts[0] == "so-lines" && len(parts) == 2 && r.Method == "GET":
		if id, ok := num(1); ok {
			salesH.GetSOLine(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "so-lines" && len(parts) == 2 && r.Method == "PUT":
		if id, ok := num(1); ok {
			salesH.UpdateSOLine(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "so-lines" && len(parts) == 2 && r.Method == "DELETE":
		if id, ok := num(1); ok {
			salesH.DeleteSOLine(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "so-lines" && len(parts) == 3 && parts[2] == "allocate" && r.Method == "POST":
		if id, ok := num(1); ok {
			salesH.AllocateSOLine(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "allocations" && len(parts) == 2 && r.Method == "DELETE":
		if id, ok := num(1); ok {
			salesH.DeallocateSOLine(w, r, id)
		} else {
			http.NotFound(w, r)
		}

	// Stock batches
	case path == "stock" && r.Method == "GET":
		stockH.ListBatches(w, r)
	case path == "stock" && r.Method == "POST":
		stockH.CreateBatch(w, r)
	case parts[0] == "stock" && len(parts) == 2 && r.Method == "GET":
		if id, ok := num(1); ok {
			stockH.GetBatch(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "stock" && len(parts) == 3 && parts[2] == "adjust" && r.Method == "POST":
		if id, ok := num(1); ok {
			stockH.AdjustBatch(w, r, id)
		} else {
			http.NotFound(w, r)
		}
	case parts[0] == "stock" && len(parts) == 2 && r.Method == "DELETE":
		if id, ok := num(1); ok {
			stockH.DeleteBatch(w, r, id)
		} else {
			http.NotFound(w, r)
		}

	default:
		http.NotFound(w, r)
	}
}

// seedAdmin creates the default admin account on first run.
func seedAdmin(db *sql.DB) {
	var n int
	db.QueryRow("SELECT COUNT(*) FROM users").Scan(&n)
	if n > 0 {
		return
	}
	if _, err := auth.CreateUser(db, "admin", "changeme", "admin", ""); err != nil {
		log.Printf("Failed to seed admin user: %v", err)
		return
	}
	log.Println("Created default admin user (admin/changeme)")
}
