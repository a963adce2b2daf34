package backend

import (
	"net/http"
	"slices"
	"strings"
)

var corsAllowHeaders = strings.Join([]string{
	"Content-Type",
	"Authorization",
	"Idempotency-Key",
	"Request-Id",
	"Signature",
	"Timestamp",
}, ", ")

// cors answers preflight requests and decorates responses for configured
// page origins. It reports whether the request has been fully handled.
func (h *Handler) cors(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.allowedOrigins) == 0 {
		return false
	}
	allowed := slices.Contains(h.cfg.allowedOrigins, origin)
	preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
	if !allowed {
		if preflight {
			writeJSONError(w, NewHTTPError(http.StatusForbidden, InvalidRequest, OriginNotAllowed, "origin is not allowed"))
			return true
		}
		return false
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Add("Vary", "Origin")
	if !preflight {
		return false
	}
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
	return true
}
