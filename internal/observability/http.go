package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// DeviceIDFromRequest reads X-Device-Id, falling back to the device_id query
// parameter that browser socket clients send instead of a header.
func DeviceIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Device-Id"); id != "" {
		return id
	}
	return r.URL.Query().Get("device_id")
}

// RequestIDFromRequest returns the caller's X-Request-Id or a fresh one.
func RequestIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
