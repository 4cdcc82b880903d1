package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
)

// Middleware consults the limiter before the wrapped handler runs. The
// bucket identifier is the client IP. On rejection it responds 429 with a
// remaining-attempts hint and never invokes the protected operation.
func (l *Limiter) Middleware(family Family, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !l.TryConsume(ip, family) {
				log.Warn("rate limit exceeded",
					"family", string(family),
					"ip", ip,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error":     "too many requests, try again later",
					"remaining": l.Remaining(ip, family),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr. Behind a proxy this would read
// X-Forwarded-For instead; direct exposure is assumed here.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
