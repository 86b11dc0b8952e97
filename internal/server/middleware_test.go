package server_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orderhub/internal/server"
	"orderhub/internal/testutil"

	_ "modernc.org/sqlite"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte(`{"data":"ok"}`))
	})
}

func TestRequireAuth(t *testing.T) {
	db := testutil.SetupTestDB(t)
	guarded := server.RequireAuth(db, time.Hour)(okHandler())

	// No cookie on an API route.
	req := httptest.NewRequest("GET", "/api/v1/purchase-orders", nil)
	w := httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	testutil.AssertStatus(t, w, 401)
	testutil.AssertErrorCode(t, w, "UNAUTHORIZED")

	// Garbage token.
	req = testutil.AuthedRequest("GET", "/api/v1/purchase-orders", nil, "not-a-real-token")
	w = httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	testutil.AssertStatus(t, w, 401)

	// Valid session passes and refreshes the cookie.
	cookie := testutil.LoginAdmin(t, db)
	req = testutil.AuthedRequest("GET", "/api/v1/purchase-orders", nil, cookie)
	w = httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	testutil.AssertStatus(t, w, 200)
	if len(w.Result().Cookies()) == 0 {
		t.Error("expected refreshed session cookie")
	}

	// Non-API paths are not guarded.
	req = httptest.NewRequest("GET", "/auth/login", nil)
	w = httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	testutil.AssertStatus(t, w, 200)
}

func TestExpiredSessionRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	guarded := server.RequireAuth(db, time.Hour)(okHandler())

	cookie := testutil.LoginAdmin(t, db)
	expired := time.Now().Add(-time.Minute).Format("2006-01-02 15:04:05")
	db.Exec("UPDATE sessions SET expires_at=? WHERE token=?", expired, cookie)

	req := testutil.AuthedRequest("GET", "/api/v1/purchase-orders", nil, cookie)
	w := httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	testutil.AssertStatus(t, w, 401)

	// The dead session is gone.
	var n int
	db.QueryRow("SELECT COUNT(*) FROM sessions WHERE token=?", cookie).Scan(&n)
	if n != 0 {
		t.Error("expired session not removed")
	}
}

func TestRequireWriteAccess(t *testing.T) {
	db := testutil.SetupTestDB(t)
	guarded := server.RequireAuth(db, time.Hour)(server.RequireWriteAccess(okHandler()))

	readonly := testutil.LoginUser(t, db, "viewer", "readonly")

	// Reads pass.
	req := testutil.AuthedRequest("GET", "/api/v1/purchase-orders", nil, readonly)
	w := httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	testutil.AssertStatus(t, w, 200)

	// Writes are blocked.
	for _, method := range []string{"POST", "PUT", "DELETE"} {
		req = testutil.AuthedRequest(method, "/api/v1/purchase-orders", []byte(`{}`), readonly)
		w = httptest.NewRecorder()
		guarded.ServeHTTP(w, req)
		testutil.AssertStatus(t, w, 403)
		testutil.AssertErrorCode(t, w, "FORBIDDEN")
	}

	// Regular users can write.
	user := testutil.LoginUser(t, db, "editor", "user")
	req = testutil.AuthedRequest("POST", "/api/v1/purchase-orders", []byte(`{}`), user)
	w = httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	testutil.AssertStatus(t, w, 200)
}
