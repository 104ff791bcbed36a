package middleware

import (
	"net/http"

	"github.com/mssola/useragent"

	"onboarding-gateway/internal/audit"
)

// ClientDevice derives a display name for the calling device from the
// User-Agent header and stores it on the request context, where the audit
// publisher picks it up for every event of the request.
func ClientDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		device := ParseUserAgent(r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(audit.WithDevice(r.Context(), device)))
	})
}

// ParseUserAgent turns a raw User-Agent into a short display name such as
// "Chrome on Intel Mac OS X 10_15_7". Empty agents map to "Unknown Device".
func ParseUserAgent(raw string) string {
	if raw == "" {
		return "Unknown Device"
	}
	ua := useragent.New(raw)
	name, _ := ua.Browser()
	if name == "" {
		name = "Unknown Browser"
	}
	os := ua.OS()
	if os == "" {
		os = "Unknown OS"
	}
	return name + " on " + os
}
