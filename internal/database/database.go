package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens the SQLite database at path and runs migrations. WAL mode
// keeps readers unblocked while one writer commits; allocation and
// receiving transactions rely on the single-writer serialization.
func Open(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=1")
	if err != nil {
		return nil, err
	}

	// SQLite handles 1 writer + multiple readers with WAL mode
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	// Some drivers don't parse connection string params correctly
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates all tables and indexes. Idempotent.
func Migrate(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT DEFAULT 'user' CHECK(role IN ('admin','user','readonly')),
			email TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY, user_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL, action TEXT NOT NULL,
			module TEXT NOT NULL, record_id TEXT NOT NULL,
			summary TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS parts (
			ipn TEXT PRIMARY KEY, description TEXT NOT NULL,
			category TEXT DEFAULT '', units TEXT DEFAULT '',
			active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS suppliers (
			id TEXT PRIMARY KEY, name TEXT NOT NULL,
			website TEXT DEFAULT '', contact_name TEXT DEFAULT '',
			contact_email TEXT DEFAULT '', contact_phone TEXT DEFAULT '',
			address TEXT DEFAULT '', notes TEXT DEFAULT '',
			status TEXT DEFAULT 'active' CHECK(status IN ('active','preferred','inactive','blocked')),
			lead_time_days INTEGER DEFAULT 0 CHECK(lead_time_days >= 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY, name TEXT NOT NULL,
			website TEXT DEFAULT '', contact_name TEXT DEFAULT '',
			contact_email TEXT DEFAULT '', contact_phone TEXT DEFAULT '',
			address TEXT DEFAULT '', notes TEXT DEFAULT '',
			status TEXT DEFAULT 'active' CHECK(status IN ('active','inactive','blocked')),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS supplier_parts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			part_ipn TEXT NOT NULL, supplier_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			manufacturer TEXT DEFAULT '', mpn TEXT DEFAULT '',
			url TEXT DEFAULT '', description TEXT DEFAULT '',
			single_price REAL DEFAULT 0 CHECK(single_price >= 0),
			base_cost REAL DEFAULT 0 CHECK(base_cost >= 0),
			packaging TEXT DEFAULT '',
			multiple INTEGER DEFAULT 1 CHECK(multiple >= 1),
			minimum INTEGER DEFAULT 1 CHECK(minimum >= 1),
			lead_time_days INTEGER DEFAULT 0 CHECK(lead_time_days >= 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(part_ipn, supplier_id, sku),
			FOREIGN KEY (part_ipn) REFERENCES parts(ipn) ON DELETE CASCADE,
			FOREIGN KEY (supplier_id) REFERENCES suppliers(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS price_breaks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			supplier_part_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL CHECK(quantity > 0),
			cost REAL NOT NULL CHECK(cost >= 0),
			UNIQUE(supplier_part_id, quantity),
			FOREIGN KEY (supplier_part_id) REFERENCES supplier_parts(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_orders (
			id TEXT PRIMARY KEY, supplier_id TEXT NOT NULL,
			status TEXT DEFAULT 'pending' CHECK(status IN ('pending','placed','complete','cancelled')),
			target_date DATE, notes TEXT DEFAULT '', created_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			placed_at DATETIME, completed_at DATETIME,
			FOREIGN KEY (supplier_id) REFERENCES suppliers(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_order_lines (
			id INTEGER PRIMARY KEY AUTOINCREMENT, order_id TEXT NOT NULL,
			part_ipn TEXT NOT NULL, supplier_part_id INTEGER,
			qty_ordered REAL NOT NULL CHECK(qty_ordered > 0),
			qty_received REAL DEFAULT 0 CHECK(qty_received >= 0),
			unit_cost REAL DEFAULT 0 CHECK(unit_cost >= 0),
			base_cost REAL DEFAULT 0 CHECK(base_cost >= 0),
			notes TEXT DEFAULT '',
			FOREIGN KEY (order_id) REFERENCES purchase_orders(id) ON DELETE CASCADE,
			FOREIGN KEY (supplier_part_id) REFERENCES supplier_parts(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS sales_orders (
			id TEXT PRIMARY KEY, customer_id TEXT NOT NULL,
			status TEXT DEFAULT 'pending' CHECK(status IN ('pending','in_progress','shipped','cancelled')),
			target_date DATE, notes TEXT DEFAULT '', created_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			shipped_at DATETIME,
			FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS sales_order_lines (
			id INTEGER PRIMARY KEY AUTOINCREMENT, order_id TEXT NOT NULL,
			part_ipn TEXT NOT NULL,
			qty_required REAL NOT NULL CHECK(qty_required > 0),
			unit_price REAL DEFAULT 0 CHECK(unit_price >= 0),
			notes TEXT DEFAULT '',
			FOREIGN KEY (order_id) REFERENCES sales_orders(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS stock_batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			part_ipn TEXT NOT NULL, location TEXT DEFAULT '',
			batch_code TEXT DEFAULT '',
			quantity REAL DEFAULT 0 CHECK(quantity >= 0),
			reserved REAL DEFAULT 0 CHECK(reserved >= 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			CHECK(reserved <= quantity)
		)`,
		`CREATE TABLE IF NOT EXISTS allocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			line_id INTEGER NOT NULL, batch_id INTEGER NOT NULL,
			quantity REAL NOT NULL CHECK(quantity > 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (line_id) REFERENCES sales_order_lines(id) ON DELETE CASCADE,
			FOREIGN KEY (batch_id) REFERENCES stock_batches(id) ON DELETE RESTRICT
		)`,
	}
	for _, t := range tables {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_supplier_parts_part ON supplier_parts(part_ipn)`,
		`CREATE INDEX IF NOT EXISTS idx_supplier_parts_supplier ON supplier_parts(supplier_id)`,
		`CREATE INDEX IF NOT EXISTS idx_po_lines_order ON purchase_order_lines(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_po_lines_part ON purchase_order_lines(part_ipn)`,
		`CREATE INDEX IF NOT EXISTS idx_so_lines_order ON sales_order_lines(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_so_lines_part ON sales_order_lines(part_ipn)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_batches_part ON stock_batches(part_ipn)`,
		`CREATE INDEX IF NOT EXISTS idx_allocations_line ON allocations(line_id)`,
		`CREATE INDEX IF NOT EXISTS idx_allocations_batch ON allocations(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("index migration: %w", err)
		}
	}
	return nil
}

// NextID generates the next sequential id for a table, e.g.
// NextID(db, "PO", "purchase_orders", 4) -> "PO-2026-0001". The counter
// resets each year.
func NextID(db *sql.DB, prefix string, table string, digits int) string {
	year := time.Now().Format("2006")
	pattern := prefix + "-" + year + "-%"
	var maxID sql.NullString
	db.QueryRow("SELECT id FROM "+table+" WHERE id LIKE ? ORDER BY id DESC LIMIT 1", pattern).Scan(&maxID)

	next := 1
	if maxID.Valid {
		parts := strings.Split(maxID.String, "-")
		if len(parts) >= 3 {
			if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
				next = n + 1
			}
		}
	}
	return fmt.Sprintf("%s-%s-%0*d", prefix, year, digits, next)
}

// NS converts a *string to sql.NullString.
func NS(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// SP converts a sql.NullString to *string.
func SP(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
