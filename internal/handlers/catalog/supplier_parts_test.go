package catalog_test

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"orderhub/internal/handlers/catalog"
	"orderhub/internal/models"
	"orderhub/internal/testutil"
	"orderhub/internal/websocket"

	_ "modernc.org/sqlite"
)

func newTestHandler(db *sql.DB) *catalog.Handler {
	return &catalog.Handler{DB: db, Hub: websocket.NewHub(), NextID: testutil.NextID(db), RoundOrderMultiples: true}
}

func extractSupplierPart(t *testing.T, body []byte) models.SupplierPart {
	t.Helper()
	var resp models.APIResponse
	json.Unmarshal(body, &resp)
	b, _ := json.Marshal(resp.Data)
	var sp models.SupplierPart
	json.Unmarshal(b, &sp)
	return sp
}

func seedCatalogFixtures(t *testing.T, db *sql.DB) {
	t.Helper()
	testutil.SeedSupplier(t, db, "SUP-001", "Mouser")
	testutil.SeedSupplier(t, db, "SUP-002", "Digikey")
	testutil.SeedPart(t, db, "IPN-001", "Resistor")
}

func createSupplierPart(t *testing.T, h *catalog.Handler, cookie, body string) models.SupplierPart {
	t.Helper()
	req := testutil.AuthedRequest("POST", "/api/v1/supplier-parts", []byte(body), cookie)
	w := httptest.NewRecorder()
	h.CreateSupplierPart(w, req)
	if w.Code != 200 {
		t.Fatalf("create supplier part: %d %s", w.Code, w.Body.String())
	}
	return extractSupplierPart(t, w.Body.Bytes())
}

func TestSupplierPartUniqueness(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedCatalogFixtures(t, db)

	body := `{"part":"IPN-001","supplier":"SUP-001","sku":"SKU-100","single_price":1.00}`
	sp := createSupplierPart(t, h, cookie, body)
	if sp.Multiple != 1 || sp.Minimum != 1 {
		t.Errorf("expected defaults 1/1, got %d/%d", sp.Multiple, sp.Minimum)
	}

	// Same triple again is a conflict.
	req := testutil.AuthedRequest("POST", "/api/v1/supplier-parts", []byte(body), cookie)
	w := httptest.NewRecorder()
	h.CreateSupplierPart(w, req)
	testutil.AssertStatus(t, w, 409)

	// Same part and supplier under a different SKU is fine.
	createSupplierPart(t, h, cookie, `{"part":"IPN-001","supplier":"SUP-001","sku":"SKU-101","single_price":0.95}`)

	// Same part and SKU from another supplier is fine too.
	createSupplierPart(t, h, cookie, `{"part":"IPN-001","supplier":"SUP-002","sku":"SKU-100","single_price":1.10}`)

	// Unknown part and supplier are 404s.
	req = testutil.AuthedRequest("POST", "/api/v1/supplier-parts",
		[]byte(`{"part":"IPN-404","supplier":"SUP-001","sku":"X"}`), cookie)
	w = httptest.NewRecorder()
	h.CreateSupplierPart(w, req)
	testutil.AssertStatus(t, w, 404)
}

func TestSupplierPartValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedCatalogFixtures(t, db)

	cases := []string{
		`{"supplier":"SUP-001","sku":"X"}`,
		`{"part":"IPN-001","sku":"X"}`,
		`{"part":"IPN-001","supplier":"SUP-001"}`,
		`{"part":"IPN-001","supplier":"SUP-001","sku":"X","single_price":-1}`,
		`{"part":"IPN-001","supplier":"SUP-001","sku":"X","multiple":0}`,
		`{"part":"IPN-001","supplier":"SUP-001","sku":"X","minimum":-5}`,
		`{"part":"IPN-001","supplier":"SUP-001","sku":"X","lead_time_days":9999}`,
	}
	for _, body := range cases {
		req := testutil.AuthedRequest("POST", "/api/v1/supplier-parts", []byte(body), cookie)
		w := httptest.NewRecorder()
		h.CreateSupplierPart(w, req)
		if w.Code != 400 {
			t.Errorf("expected 400 for %s, got %d", body, w.Code)
		}
	}
}

func TestPriceBreakCRUD(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedCatalogFixtures(t, db)

	sp := createSupplierPart(t, h, cookie,
		`{"part":"IPN-001","supplier":"SUP-001","sku":"SKU-100","single_price":1.00}`)

	req := testutil.AuthedRequest("POST", fmt.Sprintf("/api/v1/supplier-parts/%d/price-breaks", sp.ID),
		[]byte(`{"quantity":50,"cost":0.80}`), cookie)
	w := httptest.NewRecorder()
	h.CreatePriceBreak(w, req, sp.ID)
	testutil.AssertStatus(t, w, 200)

	req = testutil.AuthedRequest("POST", fmt.Sprintf("/api/v1/supplier-parts/%d/price-breaks", sp.ID),
		[]byte(`{"quantity":10,"cost":0.90}`), cookie)
	w = httptest.NewRecorder()
	h.CreatePriceBreak(w, req, sp.ID)
	testutil.AssertStatus(t, w, 200)

	// Duplicate quantity on the same supplier part is a conflict.
	req = testutil.AuthedRequest("POST", fmt.Sprintf("/api/v1/supplier-parts/%d/price-breaks", sp.ID),
		[]byte(`{"quantity":10,"cost":0.85}`), cookie)
	w = httptest.NewRecorder()
	h.CreatePriceBreak(w, req, sp.ID)
	testutil.AssertStatus(t, w, 409)

	// Detail view returns breaks sorted by quantity.
	req = testutil.AuthedRequest("GET", fmt.Sprintf("/api/v1/supplier-parts/%d", sp.ID), nil, cookie)
	w = httptest.NewRecorder()
	h.GetSupplierPart(w, req, sp.ID)
	got := extractSupplierPart(t, w.Body.Bytes())
	if len(got.PriceBreaks) != 2 || got.PriceBreaks[0].Quantity != 10 || got.PriceBreaks[1].Quantity != 50 {
		t.Errorf("expected breaks sorted by quantity, got %+v", got.PriceBreaks)
	}
}

func TestQuotePrice(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedCatalogFixtures(t, db)

	sp := createSupplierPart(t, h, cookie,
		`{"part":"IPN-001","supplier":"SUP-001","sku":"SKU-100","single_price":1.00,"base_cost":1.00}`)
	for _, b := range []string{`{"quantity":10,"cost":0.90}`, `{"quantity":50,"cost":0.80}`} {
		req := testutil.AuthedRequest("POST", fmt.Sprintf("/api/v1/supplier-parts/%d/price-breaks", sp.ID), []byte(b), cookie)
		w := httptest.NewRecorder()
		h.CreatePriceBreak(w, req, sp.ID)
		testutil.AssertStatus(t, w, 200)
	}

	quote := func(qty string) (models.PriceQuote, int) {
		req := testutil.AuthedRequest("GET", fmt.Sprintf("/api/v1/supplier-parts/%d/price?quantity=%s", sp.ID, qty), nil, cookie)
		w := httptest.NewRecorder()
		h.QuotePrice(w, req, sp.ID)
		var resp models.APIResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		b, _ := json.Marshal(resp.Data)
		var q models.PriceQuote
		json.Unmarshal(b, &q)
		return q, w.Code
	}

	// Below the first break the single price applies.
	q, code := quote("5")
	if code != 200 || q.UnitCost != 1.00 || q.Total != 6.00 {
		t.Errorf("qty 5: code=%d quote=%+v", code, q)
	}
	// Between breaks the largest threshold at or below wins.
	q, code = quote("12")
	if code != 200 || q.UnitCost != 0.90 || q.Total != 11.80 {
		t.Errorf("qty 12: code=%d quote=%+v", code, q)
	}
	q, code = quote("100")
	if code != 200 || q.UnitCost != 0.80 || q.Total != 81.00 {
		t.Errorf("qty 100: code=%d quote=%+v", code, q)
	}
	// Exactly at a threshold uses that break.
	q, code = quote("50")
	if code != 200 || q.UnitCost != 0.80 {
		t.Errorf("qty 50: code=%d quote=%+v", code, q)
	}

	// Zero, negative, and garbage quantities are invalid.
	for _, qty := range []string{"0", "-3", "abc"} {
		if _, code := quote(qty); code != 400 {
			t.Errorf("qty %s: expected 400, got %d", qty, code)
		}
	}
}

func TestSupplierPartDeleteGuard(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	cookie := testutil.LoginAdmin(t, db)
	seedCatalogFixtures(t, db)

	sp := createSupplierPart(t, h, cookie,
		`{"part":"IPN-001","supplier":"SUP-001","sku":"SKU-100","single_price":1.00}`)

	db.Exec("INSERT INTO purchase_orders (id,supplier_id,status) VALUES ('PO-2026-0001','SUP-001','pending')")
	db.Exec("INSERT INTO purchase_order_lines (order_id,part_ipn,supplier_part_id,qty_ordered) VALUES ('PO-2026-0001','IPN-001',?,5)", sp.ID)

	req := testutil.AuthedRequest("DELETE", fmt.Sprintf("/api/v1/supplier-parts/%d", sp.ID), nil, cookie)
	w := httptest.NewRecorder()
	h.DeleteSupplierPart(w, req, sp.ID)
	testutil.AssertStatus(t, w, 409)

	db.Exec("DELETE FROM purchase_order_lines")
	req = testutil.AuthedRequest("DELETE", fmt.Sprintf("/api/v1/supplier-parts/%d", sp.ID), nil, cookie)
	w = httptest.NewRecorder()
	h.DeleteSupplierPart(w, req, sp.ID)
	testutil.AssertStatus(t, w, 200)
}
