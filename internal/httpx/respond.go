package httpx

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/posdesk/pos-core.git/internal/apperr"
	"github.com/posdesk/pos-core.git/internal/pos"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		code = http.StatusBadRequest
	case apperr.KindForbidden:
		code = http.StatusForbidden
	case apperr.KindNotFound:
		code = http.StatusNotFound
	case apperr.KindInvalidState:
		code = http.StatusConflict
	case apperr.KindConflict:
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// callerFrom builds the caller identity from headers set by the auth layer
// upstream. Missing identity is a bad request, not a domain error.
func callerFrom(r *http.Request) (pos.Caller, bool) {
	c := pos.Caller{
		EmployeeID: r.Header.Get("X-Employee-Id"),
		BusinessID: r.Header.Get("X-Business-Id"),
		Role:       pos.Role(strings.ToUpper(r.Header.Get("X-Role"))),
	}
	if c.Role == "" {
		c.Role = pos.RoleStaff
	}
	return c, c.EmployeeID != "" && c.BusinessID != ""
}
