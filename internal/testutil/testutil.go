// Package testutil provides shared helpers for handler tests: an
// in-memory database with the full schema, seeded fixtures, and
// request/response utilities.
package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orderhub/internal/auth"
	"orderhub/internal/database"
	"orderhub/internal/models"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// SetupTestDB creates an in-memory SQLite database with the full
// schema and a default admin user.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// A :memory: database exists per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test DB: %v", err)
	}
	seedAdminUser(t, db)
	return db
}

func seedAdminUser(t *testing.T, db *sql.DB) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash admin password: %v", err)
	}
	_, err = db.Exec("INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)",
		"admin", string(hash), "admin")
	if err != nil {
		t.Fatalf("Failed to create default admin user: %v", err)
	}
}

// CreateTestUser creates a user with the given credentials.
func CreateTestUser(t *testing.T, db *sql.DB, username, password, role string) int {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	res, err := db.Exec("INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)",
		username, string(hash), role)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

// CreateTestSession creates a session token for the given user with a
// 24h expiry.
func CreateTestSession(t *testing.T, db *sql.DB, userID int) string {
	t.Helper()
	token := "test-session-token-" + time.Now().Format("20060102150405.000000")
	expiresAt := time.Now().Add(24 * time.Hour)
	_, err := db.Exec("INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)",
		token, userID, expiresAt.Format("2006-01-02 15:04:05"))
	if err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}
	return token
}

// LoginAdmin returns a session token for the default admin user.
func LoginAdmin(t *testing.T, db *sql.DB) string {
	t.Helper()
	var adminID int
	if err := db.QueryRow("SELECT id FROM users WHERE username = 'admin'").Scan(&adminID); err != nil {
		t.Fatalf("Failed to find admin user: %v", err)
	}
	return CreateTestSession(t, db, adminID)
}

// LoginUser creates a user with the given role and returns their
// session token.
func LoginUser(t *testing.T, db *sql.DB, username, role string) string {
	t.Helper()
	userID := CreateTestUser(t, db, username, "password", role)
	return CreateTestSession(t, db, userID)
}

// SeedPart inserts a catalog part.
func SeedPart(t *testing.T, db *sql.DB, ipn, description string) {
	t.Helper()
	_, err := db.Exec("INSERT INTO parts (ipn, description) VALUES (?, ?)", ipn, description)
	if err != nil {
		t.Fatalf("Failed to seed part %s: %v", ipn, err)
	}
}

// SeedSupplier inserts an active supplier and returns its id.
func SeedSupplier(t *testing.T, db *sql.DB, id, name string) string {
	t.Helper()
	_, err := db.Exec("INSERT INTO suppliers (id, name, status) VALUES (?, ?, 'active')", id, name)
	if err != nil {
		t.Fatalf("Failed to seed supplier %s: %v", id, err)
	}
	return id
}

// SeedCustomer inserts an active customer and returns its id.
func SeedCustomer(t *testing.T, db *sql.DB, id, name string) string {
	t.Helper()
	_, err := db.Exec("INSERT INTO customers (id, name, status) VALUES (?, ?, 'active')", id, name)
	if err != nil {
		t.Fatalf("Failed to seed customer %s: %v", id, err)
	}
	return id
}

// SeedStockBatch inserts a stock batch and returns its id.
func SeedStockBatch(t *testing.T, db *sql.DB, partIPN string, quantity float64) int {
	t.Helper()
	res, err := db.Exec("INSERT INTO stock_batches (part_ipn, quantity, reserved) VALUES (?, ?, 0)",
		partIPN, quantity)
	if err != nil {
		t.Fatalf("Failed to seed stock batch: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

// NextID returns an id generator bound to the given database, matching
// the one main wires into the handlers.
func NextID(db *sql.DB) func(prefix, table string, digits int) string {
	return func(prefix, table string, digits int) string {
		return database.NextID(db, prefix, table, digits)
	}
}

// AuthedRequest creates a request carrying a session cookie.
func AuthedRequest(method, path string, body []byte, sessionToken string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: sessionToken})
	}
	return req
}

// AuthedJSONRequest creates an authenticated request with a JSON body.
func AuthedJSONRequest(method, path string, body interface{}, sessionToken string) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := AuthedRequest(method, path, bodyBytes, sessionToken)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertStatus checks the recorded status code.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertErrorCode checks the machine-readable code of an error
// response.
func AssertErrorCode(t *testing.T, w *httptest.ResponseRecorder, expected string) {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if resp.Code != expected {
		t.Errorf("Expected error code %q, got %q. Body: %s", expected, resp.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope into v.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	dataBytes, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(dataBytes, v); err != nil {
		t.Fatalf("Failed to decode data from envelope: %v", err)
	}
}
