package database

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys = ON")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestNextIDSequence(t *testing.T) {
	db := openTestDB(t)
	db.Exec("INSERT INTO suppliers (id, name) VALUES ('SUP-001', 'x')")

	year := time.Now().Format("2006")
	first := NextID(db, "PO", "purchase_orders", 4)
	if first != "PO-"+year+"-0001" {
		t.Fatalf("expected PO-%s-0001, got %s", year, first)
	}

	db.Exec("INSERT INTO purchase_orders (id, supplier_id) VALUES (?, 'SUP-001')", first)
	second := NextID(db, "PO", "purchase_orders", 4)
	if second != "PO-"+year+"-0002" {
		t.Errorf("expected PO-%s-0002, got %s", year, second)
	}

	// Different prefixes count independently in their own tables.
	if got := NextID(db, "SO", "sales_orders", 4); !strings.HasPrefix(got, "SO-"+year+"-0001") {
		t.Errorf("sales counter: got %s", got)
	}
}

func TestSchemaConstraints(t *testing.T) {
	db := openTestDB(t)
	db.Exec("INSERT INTO parts (ipn, description) VALUES ('IPN-001', 'x')")
	db.Exec("INSERT INTO suppliers (id, name) VALUES ('SUP-001', 'x')")

	// Duplicate (part, supplier, sku) is rejected.
	insert := "INSERT INTO supplier_parts (part_ipn, supplier_id, sku) VALUES ('IPN-001','SUP-001','SKU-1')"
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := db.Exec(insert); err == nil {
		t.Error("duplicate supplier part accepted")
	}

	// Reserved stock can never exceed the batch quantity.
	if _, err := db.Exec("INSERT INTO stock_batches (part_ipn, quantity, reserved) VALUES ('IPN-001', 5, 6)"); err == nil {
		t.Error("reserved > quantity accepted")
	}

	// Unknown order statuses are rejected by the CHECK constraint.
	if _, err := db.Exec("INSERT INTO purchase_orders (id, supplier_id, status) VALUES ('PO-X', 'SUP-001', 'draft')"); err == nil {
		t.Error("invalid status accepted")
	}
}

func TestNSAndSP(t *testing.T) {
	if ns := NS(nil); ns.Valid {
		t.Error("NS(nil) should be invalid")
	}
	s := "hello"
	ns := NS(&s)
	if !ns.Valid || ns.String != "hello" {
		t.Errorf("NS round trip: %+v", ns)
	}
	if p := SP(ns); p == nil || *p != "hello" {
		t.Errorf("SP round trip: %v", p)
	}
	if p := SP(sql.NullString{}); p != nil {
		t.Errorf("SP(null) = %v, want nil", *p)
	}
}
