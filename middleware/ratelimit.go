package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	goMagicLink "github.com/MrEthical07/goMagicLink"
)

type rateResultContextKey struct{}

// RateResultFromContext returns the admission result stored by [RateLimit].
func RateResultFromContext(ctx context.Context) (goMagicLink.RateLimitResult, bool) {
	res, ok := ctx.Value(rateResultContextKey{}).(goMagicLink.RateLimitResult)
	return res, ok
}

// IdentityFunc extracts the identity a request is made for. An empty
// identity rejects the request with 400.
type IdentityFunc func(*http.Request) string

// RateLimit records the request against identity and calls next only when
// it is admitted. Denials answer 429 with Retry-After in whole seconds;
// store failures answer 503.
func RateLimit(engine *goMagicLink.Engine, identity IdentityFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || identity == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			res, err := engine.CheckAndRecord(r.Context(), identity(r))
			switch {
			case errors.Is(err, goMagicLink.ErrInvalidIdentity):
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			case err != nil:
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			if !res.Allowed {
				w.Header().Set("Retry-After", retryAfterSeconds(res))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			ctx := context.WithValue(r.Context(), rateResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func retryAfterSeconds(res goMagicLink.RateLimitResult) string {
	ms := res.RetryAfterMs()
	secs := (ms + 999) / 1000
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
