package procurement_test

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"orderhub/internal/handlers/catalog"
	"orderhub/internal/handlers/procurement"
	"orderhub/internal/models"
	"orderhub/internal/testutil"
	"orderhub/internal/websocket"

	_ "modernc.org/sqlite"
)

func newTestHandler(db *sql.DB) *procurement.Handler {
	hub := websocket.NewHub()
	nextID := testutil.NextID(db)
	catalogH := &catalog.Handler{DB: db, Hub: hub, NextID: nextID, RoundOrderMultiples: true}
	return &procurement.Handler{DB: db, Hub: hub, NextID: nextID, Catalog: catalogH, RoundOrderMultiples: true}
}

func extractPO(t *testing.T, body []byte) models.PurchaseOrder {
	t.Helper()
	var resp models.APIResponse
	json.Unmarshal(body, &resp)
	b, _ := json.Marshal(resp.Data)
	var o models.PurchaseOrder
	json.Unmarshal(b, &o)
	return o
}

func extractPOs(t *testing.T, body []byte) []models.PurchaseOrder {
	t.Helper()
	var resp models.APIResponse
	json.Unmarshal(body, &resp)
	b, _ := json.Marshal(resp.Data)
	var orders []models.PurchaseOrder
	json.Unmarshal(b, &orders)
	return orders
}

func seedProcurementFixtures(t *testing.T, db *sql.DB) {
	t.Helper()
	testutil.SeedSupplier(t, db, "SUP-001", "Mouser")
	testutil.SeedPart(t, db, "IPN-001", "Resistor")
	testutil.SeedPart(t, db, "IPN-002", "Capacitor")
}

func seedSupplierPart(t *testing.T, db *sql.DB, partIPN, supplierID, sku string, singlePrice, baseCost float64, multiple int) int {
	t.Helper()
	res, err := db.Exec(`INSERT INTO supplier_parts (part_ipn,supplier_id,sku,single_price,base_cost,multiple,minimum)
		VALUES (?,?,?,?,?,?,1)`, partIPN, supplierID, sku, singlePrice, baseCost, multiple)
	if err != nil {
		t.Fatalf("seed supplier part: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

func seedPriceBreak(t *testing.T, db *sql.DB, supplierPartID, quantity int, cost float64) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO price_breaks (supplier_part_id,quantity,cost) VALUES (?,?,?)",
		supplierPartID, quantity, cost); err != nil {
		t.Fatalf("seed price break: %v", err)
	}
}

func createPO(t *testing.T, h *procurement.Handler, cookie, body string) models.PurchaseOrder {
	t.Helper()
	req := testutil.AuthedRequest("POST", "/api/v1/purchase-orders", []byte(body), cookie)
	w := httptest.NewRecorder()
	h.CreatePurchaseOrder(w, req)
	if w.Code != 200 {
		t.Fatalf("create PO: %d %s", w.Code, w.Body.String())
	}
	return extractPO(t, w.Body.Bytes())
}

func TestPurchaseOrderCRUD(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedProcurementFixtures(t, db)

	created := createPO(t, h, cookie,
		`{"supplier":"SUP-001","notes":"q3 restock","lines":[{"part":"IPN-001","qty_ordered":100,"unit_cost":0.05}]}`)
	if !strings.HasPrefix(created.ID, "PO-") {
		t.Errorf("expected PO- prefix, got %s", created.ID)
	}
	if created.Status != "pending" {
		t.Errorf("expected pending, got %s", created.Status)
	}
	if created.LineCount != 1 || created.Completion != 0 {
		t.Errorf("computed fields: %+v", created)
	}

	// Unknown supplier is a 404.
	req := testutil.AuthedRequest("POST", "/api/v1/purchase-orders", []byte(`{"supplier":"SUP-999"}`), cookie)
	w := httptest.NewRecorder()
	h.CreatePurchaseOrder(w, req)
	testutil.AssertStatus(t, w, 404)

	// Direct status edits are rejected.
	req = testutil.AuthedRequest("PUT", "/api/v1/purchase-orders/"+created.ID, []byte(`{"status":"complete"}`), cookie)
	w = httptest.NewRecorder()
	h.UpdatePurchaseOrder(w, req, created.ID)
	testutil.AssertStatus(t, w, 400)

	// supplier_detail expands the supplier.
	req = testutil.AuthedRequest("GET", "/api/v1/purchase-orders/"+created.ID+"?supplier_detail=yes", nil, cookie)
	w = httptest.NewRecorder()
	h.GetPurchaseOrder(w, req, created.ID)
	if got := extractPO(t, w.Body.Bytes()); got.Supplier == nil || got.Supplier.Name != "Mouser" {
		t.Errorf("supplier_detail: %+v", got.Supplier)
	}
}

func TestPurchaseOrderLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedProcurementFixtures(t, db)

	empty := createPO(t, h, cookie, `{"supplier":"SUP-001"}`)

	// Place with no lines fails.
	req := testutil.AuthedRequest("POST", "/api/v1/purchase-orders/"+empty.ID+"/place", nil, cookie)
	w := httptest.NewRecorder()
	h.PlacePurchaseOrder(w, req, empty.ID)
	testutil.AssertStatus(t, w, 400)

	order := createPO(t, h, cookie,
		`{"supplier":"SUP-001","lines":[{"part":"IPN-001","qty_ordered":10,"unit_cost":1}]}`)

	// Receive before place fails.
	body := fmt.Sprintf(`{"location":"shelf-a","lines":[{"line":%d,"quantity":10}]}`, order.Lines[0].ID)
	req = testutil.AuthedRequest("POST", "/api/v1/purchase-orders/"+order.ID+"/receive", []byte(body), cookie)
	w = httptest.NewRecorder()
	h.ReceivePurchaseOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 400)

	req = testutil.AuthedRequest("POST", "/api/v1/purchase-orders/"+order.ID+"/place", nil, cookie)
	w = httptest.NewRecorder()
	h.PlacePurchaseOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 200)
	placed := extractPO(t, w.Body.Bytes())
	if placed.Status != "placed" || placed.PlacedAt == nil {
		t.Fatalf("expected placed with timestamp, got %+v", placed)
	}

	// Placing twice fails.
	req = testutil.AuthedRequest("POST", "/api/v1/purchase-orders/"+order.ID+"/place", nil, cookie)
	w = httptest.NewRecorder()
	h.PlacePurchaseOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 400)
}

func TestReceivePurchaseOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedProcurementFixtures(t, db)

	order := createPO(t, h, cookie,
		`{"supplier":"SUP-001","lines":[{"part":"IPN-001","qty_ordered":10,"unit_cost":1},{"part":"IPN-002","qty_ordered":4,"unit_cost":2}]}`)
	req := testutil.AuthedRequest("POST", "/api/v1/purchase-orders/"+order.ID+"/place", nil, cookie)
	w := httptest.NewRecorder()
	h.PlacePurchaseOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 200)

	line1, line2 := order.Lines[0].ID, order.Lines[1].ID

	// Partial receipt keeps the order placed.
	body := fmt.Sprintf(`{"location":"shelf-a","lines":[{"line":%d,"quantity":6,"batch_code":"LOT-1"}]}`, line1)
	req = testutil.AuthedRequest("POST", "/api/v1/purchase-orders/"+order.ID+"/receive", []byte(body), cookie)
	w = httptest.NewRecorder()
	h.ReceivePurchaseOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 200)
	got := extractPO(t, w.Body.Bytes())
	if got.Status != "placed" {
		t.Errorf("expected still placed, got %s", got.Status)
	}
	if got.Lines[0].QtyReceived != 6 {
		t.Errorf("expected 6 received, got %f", got.Lines[0].QtyReceived)
	}

	// Each receipt creates a stock batch.
	var batchQty float64
	var location string
	err := db.QueryRow("SELECT quantity, location FROM stock_batches WHERE part_ipn='IPN-001' AND batch_code='LOT-1'").
		Scan(&batchQty, &location)
	if err != nil || batchQty != 6 || location != "shelf-a" {
		t.Errorf("stock batch: qty=%f loc=%q err=%v", batchQty, location, err)
	}

	// Over-receipt is rejected and rolls back entirely.
	body = fmt.Sprintf(`{"lines":[{"line":%d,"quantity":4},{"line":%d,"quantity":99}]}`, line1, line2)
	req = testutil.AuthedRequest("POST", "/api/v1/purchase-orders/"+order.ID+"/receive", []byte(body), cookie)
	w = httptest.NewRecorder()
	h.ReceivePurchaseOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 400)
	var received float64
	db.QueryRow("SELECT qty_received FROM purchase_order_lines WHERE id=?", line1).Scan(&received)
	if received != 6 {
		t.Errorf("expected rollback to 6 received, got %f", received)
	}

	// Receiving the rest completes the order.
	body = fmt.Sprintf(`{"lines":[{"line":%d,"quantity":4},{"line":%d,"quantity":4}]}`, line1, line2)
	req = testutil.AuthedRequest("POST", "/api/v1/purchase-orders/"+order.ID+"/receive", []byte(body), cookie)
	w = httptest.NewRecorder()
	h.ReceivePurchaseOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 200)
	got = extractPO(t, w.Body.Bytes())
	if got.Status != "complete" || got.CompletedAt == nil {
		t.Fatalf("expected complete with timestamp, got %+v", got)
	}
	if got.Completion != 1 {
		t.Errorf("expected completion 1, got %f", got.Completion)
	}

	// Complete orders are closed to everything.
	req = testutil.AuthedRequest("PUT", "/api/v1/purchase-orders/"+order.ID, []byte(`{"notes":"late"}`), cookie)
	w = httptest.NewRecorder()
	h.UpdatePurchaseOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 409)
	testutil.AssertErrorCode(t, w, "ORDER_CLOSED")

	req = testutil.AuthedRequest("POST", "/api/v1/purchase-orders/"+order.ID+"/cancel", nil, cookie)
	w = httptest.NewRecorder()
	h.CancelPurchaseOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 409)
}

func TestPurchaseOrderFilters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedProcurementFixtures(t, db)
	testutil.SeedSupplier(t, db, "SUP-002", "Digikey")

	// Two lines for the same part: the part filter must not duplicate
	// the order.
	multi := createPO(t, h, cookie,
		`{"supplier":"SUP-001","lines":[{"part":"IPN-001","qty_ordered":5,"unit_cost":1},{"part":"IPN-001","qty_ordered":7,"unit_cost":1}]}`)
	createPO(t, h, cookie,
		`{"supplier":"SUP-002","lines":[{"part":"IPN-002","qty_ordered":3,"unit_cost":1}]}`)

	req := testutil.AuthedRequest("GET", "/api/v1/purchase-orders?part=IPN-001", nil, cookie)
	w := httptest.NewRecorder()
	h.ListPurchaseOrders(w, req)
	orders := extractPOs(t, w.Body.Bytes())
	if len(orders) != 1 || orders[0].ID != multi.ID {
		t.Errorf("part filter: got %+v", orders)
	}

	req = testutil.AuthedRequest("GET", "/api/v1/purchase-orders?supplier=SUP-002", nil, cookie)
	w = httptest.NewRecorder()
	h.ListPurchaseOrders(w, req)
	if orders = extractPOs(t, w.Body.Bytes()); len(orders) != 1 {
		t.Errorf("supplier filter: expected 1, got %d", len(orders))
	}

	// Nonexistent references are dropped, not errors.
	req = testutil.AuthedRequest("GET", "/api/v1/purchase-orders?supplier=SUP-999&part=IPN-404", nil, cookie)
	w = httptest.NewRecorder()
	h.ListPurchaseOrders(w, req)
	testutil.AssertStatus(t, w, 200)
	if orders = extractPOs(t, w.Body.Bytes()); len(orders) != 2 {
		t.Errorf("dropped filters: expected 2, got %d", len(orders))
	}

	req = testutil.AuthedRequest("GET", "/api/v1/purchase-orders?status=pending", nil, cookie)
	w = httptest.NewRecorder()
	h.ListPurchaseOrders(w, req)
	if orders = extractPOs(t, w.Body.Bytes()); len(orders) != 2 {
		t.Errorf("status filter: expected 2, got %d", len(orders))
	}
}

func TestPOLinePricingFromSupplierPart(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedProcurementFixtures(t, db)
	spID := seedSupplierPart(t, db, "IPN-001", "SUP-001", "SKU-100", 1.00, 5.00, 25)
	seedPriceBreak(t, db, spID, 10, 0.90)
	seedPriceBreak(t, db, spID, 50, 0.80)

	order := createPO(t, h, cookie, `{"supplier":"SUP-001"}`)

	// 30 rounds up to the multiple of 25, landing in the 50-break.
	body := fmt.Sprintf(`{"order":"%s","part":"IPN-001","supplier_part":%d,"qty_ordered":30}`, order.ID, spID)
	req := testutil.AuthedRequest("POST", "/api/v1/po-lines", []byte(body), cookie)
	w := httptest.NewRecorder()
	h.CreatePOLine(w, req)
	testutil.AssertStatus(t, w, 200)

	var resp models.APIResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	b, _ := json.Marshal(resp.Data)
	var line models.PurchaseOrderLine
	json.Unmarshal(b, &line)
	if line.QtyOrdered != 50 {
		t.Errorf("expected qty rounded to 50, got %f", line.QtyOrdered)
	}
	if line.UnitCost != 0.80 {
		t.Errorf("expected unit cost 0.80, got %f", line.UnitCost)
	}
	if line.BaseCost != 5.00 {
		t.Errorf("expected base cost 5.00, got %f", line.BaseCost)
	}

	// A supplier part for a different part is rejected.
	otherSP := seedSupplierPart(t, db, "IPN-002", "SUP-001", "SKU-200", 2.00, 0, 1)
	body = fmt.Sprintf(`{"order":"%s","part":"IPN-001","supplier_part":%d,"qty_ordered":5}`, order.ID, otherSP)
	req = testutil.AuthedRequest("POST", "/api/v1/po-lines", []byte(body), cookie)
	w = httptest.NewRecorder()
	h.CreatePOLine(w, req)
	testutil.AssertStatus(t, w, 400)

	// A supplier part from another supplier is rejected too.
	testutil.SeedSupplier(t, db, "SUP-002", "Digikey")
	foreignSP := seedSupplierPart(t, db, "IPN-001", "SUP-002", "SKU-300", 3.00, 0, 1)
	body = fmt.Sprintf(`{"order":"%s","part":"IPN-001","supplier_part":%d,"qty_ordered":5}`, order.ID, foreignSP)
	req = testutil.AuthedRequest("POST", "/api/v1/po-lines", []byte(body), cookie)
	w = httptest.NewRecorder()
	h.CreatePOLine(w, req)
	testutil.AssertStatus(t, w, 400)
}

func TestPOLineGuards(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedProcurementFixtures(t, db)

	order := createPO(t, h, cookie,
		`{"supplier":"SUP-001","lines":[{"part":"IPN-001","qty_ordered":10,"unit_cost":1}]}`)
	lineID := order.Lines[0].ID

	req := testutil.AuthedRequest("POST", "/api/v1/purchase-orders/"+order.ID+"/place", nil, cookie)
	w := httptest.NewRecorder()
	h.PlacePurchaseOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 200)

	body := fmt.Sprintf(`{"lines":[{"line":%d,"quantity":4}]}`, lineID)
	req = testutil.AuthedRequest("POST", "/api/v1/purchase-orders/"+order.ID+"/receive", []byte(body), cookie)
	w = httptest.NewRecorder()
	h.ReceivePurchaseOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 200)

	// Quantity cannot drop below what was received.
	req = testutil.AuthedRequest("PUT", fmt.Sprintf("/api/v1/po-lines/%d", lineID), []byte(`{"qty_ordered":2}`), cookie)
	w = httptest.NewRecorder()
	h.UpdatePOLine(w, req, lineID)
	testutil.AssertStatus(t, w, 400)

	// A line with receipts cannot be deleted.
	req = testutil.AuthedRequest("DELETE", fmt.Sprintf("/api/v1/po-lines/%d", lineID), nil, cookie)
	w = httptest.NewRecorder()
	h.DeletePOLine(w, req, lineID)
	testutil.AssertStatus(t, w, 409)
}
