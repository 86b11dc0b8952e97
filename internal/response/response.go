package response

import (
	"encoding/json"
	"net/http"

	"orderhub/internal/models"
)

// Machine-readable error codes for workflow failures. Clients branch on
// these instead of parsing messages.
const (
	CodeValidation        = "VALIDATION"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeOrderClosed       = "ORDER_CLOSED"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeOverAllocation    = "OVER_ALLOCATION"
)

// JSON writes a successful API response with the given data.
func JSON(w http.ResponseWriter, data interface{}) {
	json.NewEncoder(w).Encode(models.APIResponse{Data: data})
}

// JSONMeta writes a successful API response with pagination metadata.
func JSONMeta(w http.ResponseWriter, data interface{}, total, limit, offset int) {
	json.NewEncoder(w).Encode(models.APIResponse{
		Data: data,
		Meta: &models.Meta{Total: total, Limit: limit, Offset: offset},
	})
}

// Err writes a JSON error response with the given message and HTTP status code.
func Err(w http.ResponseWriter, msg string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ErrCode writes a JSON error response carrying a machine-readable code.
func ErrCode(w http.ResponseWriter, msg, errCode string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": errCode})
}

// NotFound writes the standard 404 response.
func NotFound(w http.ResponseWriter, what string) {
	ErrCode(w, what+" not found", CodeNotFound, http.StatusNotFound)
}

// DecodeBody decodes a JSON request body into the given value.
func DecodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
