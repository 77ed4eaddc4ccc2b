package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests allowed in the
	// window.
	RequestLimit int
	// WindowSize is the time window for rate limiting.
	WindowSize time.Duration
	// KeyFunc extracts the rate limit key from the request; nil defaults
	// to IP-based limiting.
	KeyFunc func(r *http.Request) (string, error)
}

// RateLimit creates a rate limiting middleware using httprate's sliding
// window counter.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cfg.WindowSize.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			resp := `{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`
			_, _ = w.Write([]byte(resp))
		}),
	)
}

// APIRateLimit returns the per-IP limiter for the session and data
// endpoints. limit is requests per minute; 0 disables.
func APIRateLimit(limit int) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return RateLimit(RateLimitConfig{
		RequestLimit: limit,
		WindowSize:   time.Minute,
	})
}
