package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// RateLimiter counts hits per subject in a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

const writeRateLimitScope = "writes"

// WriteRateLimitMiddleware limits state-changing requests per caller. It must run after
// IdentityMiddleware. Limiter failures let the request through.
func WriteRateLimitMiddleware(limiter RateLimiter, perMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil || perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isWriteMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			caller, ok := CallerEmail(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), writeRateLimitScope, caller, perMinute, time.Minute)
			if err != nil {
				logger.Warn("rate limiter unavailable; allowing request", "component", "api", "owner", caller, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if count > perMinute {
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
