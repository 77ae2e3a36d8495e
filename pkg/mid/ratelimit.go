package mid

import (
	"net"
	"net/http"
	"strings"
)

// KeyedAllower is satisfied by resilience.KeyedLimiter.
type KeyedAllower interface {
	Allow(key string) bool
}

// RateLimit answers 429 once the caller's bucket is empty. Callers are keyed
// by the first X-Forwarded-For hop when present, else the remote address.
func RateLimit(l KeyedAllower) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(ClientIP(r)) {
				w.Header().Set("Retry-After", "1")
				Error(w, http.StatusTooManyRequests, "Too Many Requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the best-effort client address of r.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
