package sales_test

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"orderhub/internal/handlers/sales"
	"orderhub/internal/models"
	"orderhub/internal/testutil"
	"orderhub/internal/websocket"

	_ "modernc.org/sqlite"
)

func newTestHandler(db *sql.DB) *sales.Handler {
	return &sales.Handler{DB: db, Hub: websocket.NewHub(), NextID: testutil.NextID(db)}
}

func extractSalesOrder(t *testing.T, body []byte) models.SalesOrder {
	t.Helper()
	var resp models.APIResponse
	json.Unmarshal(body, &resp)
	b, _ := json.Marshal(resp.Data)
	var o models.SalesOrder
	json.Unmarshal(b, &o)
	return o
}

func extractSalesOrders(t *testing.T, body []byte) []models.SalesOrder {
	t.Helper()
	var resp models.APIResponse
	json.Unmarshal(body, &resp)
	b, _ := json.Marshal(resp.Data)
	var orders []models.SalesOrder
	json.Unmarshal(b, &orders)
	return orders
}

func seedSalesFixtures(t *testing.T, db *sql.DB) {
	t.Helper()
	testutil.SeedCustomer(t, db, "CUS-001", "Acme Corp")
	testutil.SeedPart(t, db, "IPN-001", "Widget")
	testutil.SeedPart(t, db, "IPN-002", "Gadget")
}

func createOrder(t *testing.T, h *sales.Handler, cookie, body string) models.SalesOrder {
	t.Helper()
	req := testutil.AuthedRequest("POST", "/api/v1/sales-orders", []byte(body), cookie)
	w := httptest.NewRecorder()
	h.CreateSalesOrder(w, req)
	if w.Code != 200 {
		t.Fatalf("create order: %d %s", w.Code, w.Body.String())
	}
	return extractSalesOrder(t, w.Body.Bytes())
}

func TestSalesOrderCRUD(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedSalesFixtures(t, db)

	body := `{"customer":"CUS-001","notes":"rush","lines":[{"part":"IPN-001","qty_required":10,"unit_price":25.50}]}`
	created := createOrder(t, h, cookie, body)
	if !strings.HasPrefix(created.ID, "SO-") {
		t.Errorf("expected SO- prefix, got %s", created.ID)
	}
	if created.Status != "pending" {
		t.Errorf("expected pending, got %s", created.Status)
	}
	if created.LineCount != 1 {
		t.Errorf("expected 1 line, got %d", created.LineCount)
	}

	req := testutil.AuthedRequest("GET", "/api/v1/sales-orders/"+created.ID, nil, cookie)
	w := httptest.NewRecorder()
	h.GetSalesOrder(w, req, created.ID)
	fetched := extractSalesOrder(t, w.Body.Bytes())
	if len(fetched.Lines) != 1 || fetched.Lines[0].UnitPrice != 25.50 {
		t.Errorf("unexpected lines: %+v", fetched.Lines)
	}

	// Header update keeps status untouched.
	req = testutil.AuthedRequest("PUT", "/api/v1/sales-orders/"+created.ID, []byte(`{"notes":"updated"}`), cookie)
	w = httptest.NewRecorder()
	h.UpdateSalesOrder(w, req, created.ID)
	testutil.AssertStatus(t, w, 200)
	if got := extractSalesOrder(t, w.Body.Bytes()); got.Notes != "updated" {
		t.Errorf("expected updated notes, got %q", got.Notes)
	}

	// Direct status edits are rejected.
	req = testutil.AuthedRequest("PUT", "/api/v1/sales-orders/"+created.ID, []byte(`{"status":"shipped"}`), cookie)
	w = httptest.NewRecorder()
	h.UpdateSalesOrder(w, req, created.ID)
	testutil.AssertStatus(t, w, 400)
}

func TestSalesOrderRequiresCustomer(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)

	req := testutil.AuthedRequest("POST", "/api/v1/sales-orders", []byte(`{"notes":"no customer"}`), cookie)
	w := httptest.NewRecorder()
	h.CreateSalesOrder(w, req)
	testutil.AssertStatus(t, w, 400)

	// Unknown customer is a 404, not a silent create.
	req = testutil.AuthedRequest("POST", "/api/v1/sales-orders", []byte(`{"customer":"CUS-999"}`), cookie)
	w = httptest.NewRecorder()
	h.CreateSalesOrder(w, req)
	testutil.AssertStatus(t, w, 404)
}

func TestSalesOrderLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedSalesFixtures(t, db)

	empty := createOrder(t, h, cookie, `{"customer":"CUS-001"}`)

	// Issue with no lines fails.
	req := testutil.AuthedRequest("POST", "/api/v1/sales-orders/"+empty.ID+"/issue", nil, cookie)
	w := httptest.NewRecorder()
	h.IssueSalesOrder(w, req, empty.ID)
	testutil.AssertStatus(t, w, 400)

	order := createOrder(t, h, cookie,
		`{"customer":"CUS-001","lines":[{"part":"IPN-001","qty_required":5,"unit_price":10}]}`)

	// Ship before issue fails.
	req = testutil.AuthedRequest("POST", "/api/v1/sales-orders/"+order.ID+"/ship", nil, cookie)
	w = httptest.NewRecorder()
	h.ShipSalesOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 400)

	req = testutil.AuthedRequest("POST", "/api/v1/sales-orders/"+order.ID+"/issue", nil, cookie)
	w = httptest.NewRecorder()
	h.IssueSalesOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 200)
	if got := extractSalesOrder(t, w.Body.Bytes()); got.Status != "in_progress" {
		t.Fatalf("expected in_progress, got %s", got.Status)
	}

	// Issue is not repeatable.
	req = testutil.AuthedRequest("POST", "/api/v1/sales-orders/"+order.ID+"/issue", nil, cookie)
	w = httptest.NewRecorder()
	h.IssueSalesOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 400)
}

func TestSalesOrderTerminalRejectsEdits(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedSalesFixtures(t, db)

	order := createOrder(t, h, cookie, `{"customer":"CUS-001"}`)

	req := testutil.AuthedRequest("POST", "/api/v1/sales-orders/"+order.ID+"/cancel", nil, cookie)
	w := httptest.NewRecorder()
	h.CancelSalesOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 200)
	if got := extractSalesOrder(t, w.Body.Bytes()); got.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}

	req = testutil.AuthedRequest("PUT", "/api/v1/sales-orders/"+order.ID, []byte(`{"notes":"too late"}`), cookie)
	w = httptest.NewRecorder()
	h.UpdateSalesOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 409)
	testutil.AssertErrorCode(t, w, "ORDER_CLOSED")

	// Cancelling twice is also closed.
	req = testutil.AuthedRequest("POST", "/api/v1/sales-orders/"+order.ID+"/cancel", nil, cookie)
	w = httptest.NewRecorder()
	h.CancelSalesOrder(w, req, order.ID)
	testutil.AssertStatus(t, w, 409)

	// Adding a line to a cancelled order is closed too.
	req = testutil.AuthedRequest("POST", "/api/v1/so-lines",
		[]byte(`{"order":"`+order.ID+`","part":"IPN-001","qty_required":1}`), cookie)
	w = httptest.NewRecorder()
	h.CreateSOLine(w, req)
	testutil.AssertStatus(t, w, 409)
	testutil.AssertErrorCode(t, w, "ORDER_CLOSED")
}

func TestSalesOrderFilters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedSalesFixtures(t, db)
	testutil.SeedCustomer(t, db, "CUS-002", "Globex")

	createOrder(t, h, cookie, `{"customer":"CUS-001","lines":[{"part":"IPN-001","qty_required":2,"unit_price":1}]}`)
	createOrder(t, h, cookie, `{"customer":"CUS-002","lines":[{"part":"IPN-002","qty_required":3,"unit_price":1}]}`)

	req := testutil.AuthedRequest("GET", "/api/v1/sales-orders?customer=CUS-002", nil, cookie)
	w := httptest.NewRecorder()
	h.ListSalesOrders(w, req)
	if orders := extractSalesOrders(t, w.Body.Bytes()); len(orders) != 1 || orders[0].CustomerID != "CUS-002" {
		t.Errorf("customer filter: got %+v", orders)
	}

	// Part filter matches orders with a line for the part.
	req = testutil.AuthedRequest("GET", "/api/v1/sales-orders?part=IPN-001", nil, cookie)
	w = httptest.NewRecorder()
	h.ListSalesOrders(w, req)
	if orders := extractSalesOrders(t, w.Body.Bytes()); len(orders) != 1 {
		t.Errorf("part filter: expected 1, got %d", len(orders))
	}

	// Filters pointing at nothing are dropped, not an error.
	req = testutil.AuthedRequest("GET", "/api/v1/sales-orders?customer=CUS-999&part=IPN-999", nil, cookie)
	w = httptest.NewRecorder()
	h.ListSalesOrders(w, req)
	testutil.AssertStatus(t, w, 200)
	if orders := extractSalesOrders(t, w.Body.Bytes()); len(orders) != 2 {
		t.Errorf("dropped filters: expected 2, got %d", len(orders))
	}

	// customer_detail expands the customer record.
	req = testutil.AuthedRequest("GET", "/api/v1/sales-orders?customer=CUS-002&customer_detail=true", nil, cookie)
	w = httptest.NewRecorder()
	h.ListSalesOrders(w, req)
	orders := extractSalesOrders(t, w.Body.Bytes())
	if len(orders) != 1 || orders[0].Customer == nil || orders[0].Customer.Name != "Globex" {
		t.Errorf("customer_detail: got %+v", orders)
	}
}

func TestSalesOrderOrdering(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedSalesFixtures(t, db)

	first := createOrder(t, h, cookie, `{"customer":"CUS-001"}`)
	second := createOrder(t, h, cookie, `{"customer":"CUS-001"}`)

	req := testutil.AuthedRequest("GET", "/api/v1/sales-orders?ordering=reference", nil, cookie)
	w := httptest.NewRecorder()
	h.ListSalesOrders(w, req)
	orders := extractSalesOrders(t, w.Body.Bytes())
	if len(orders) != 2 || orders[0].ID != first.ID {
		t.Errorf("ascending reference: got %+v", orders)
	}

	req = testutil.AuthedRequest("GET", "/api/v1/sales-orders?ordering=-reference", nil, cookie)
	w = httptest.NewRecorder()
	h.ListSalesOrders(w, req)
	orders = extractSalesOrders(t, w.Body.Bytes())
	if len(orders) != 2 || orders[0].ID != second.ID {
		t.Errorf("descending reference: got %+v", orders)
	}

	// Unknown ordering keys fall back to newest first.
	req = testutil.AuthedRequest("GET", "/api/v1/sales-orders?ordering=secret_column", nil, cookie)
	w = httptest.NewRecorder()
	h.ListSalesOrders(w, req)
	testutil.AssertStatus(t, w, 200)
}
