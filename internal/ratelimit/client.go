package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownClient is shared by every request without a usable address header.
const UnknownClient = "unknown"

// ClientID resolves the caller identity from proxy headers: the first entry of
// X-Forwarded-For, then X-Real-IP, then CF-Connecting-IP.
func ClientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return UnknownClient
}
