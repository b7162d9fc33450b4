package middleware

import (
	"net"
	"net/http"
	"strings"

	goMagicLink "github.com/MrEthical07/goMagicLink"
)

// RequestIDHeader is read by [RequestContext].
const RequestIDHeader = "X-Request-ID"

// RequestContext attaches client address, user agent and request id to the
// request context. With trustForwarded set, the first X-Forwarded-For hop
// is preferred over RemoteAddr; enable it only behind a proxy that
// overwrites the header.
func RequestContext(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if ip := clientIP(r, trustForwarded); ip != "" {
				ctx = goMagicLink.WithClientIP(ctx, ip)
			}
			if ua := r.UserAgent(); ua != "" {
				ctx = goMagicLink.WithUserAgent(ctx, ua)
			}
			if id := strings.TrimSpace(r.Header.Get(RequestIDHeader)); id != "" {
				ctx = goMagicLink.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
