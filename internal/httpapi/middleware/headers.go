package middleware

import "net/http"

// SecurityHeaders sets the hardening headers on every response and
// advertises the server as StatusMonitor/<version>.
func SecurityHeaders(version string) func(http.Handler) http.Handler {
	powered := "StatusMonitor/" + version
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("X-Powered-By", powered)
			next.ServeHTTP(w, r)
		})
	}
}
