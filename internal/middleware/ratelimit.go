package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

// RateLimiter limits requests with a token bucket shared by all callers
type RateLimiter struct {
	limiter    *rate.Limiter
	retryAfter string
	logger     *slog.Logger
}

// NewRateLimiter allows rps requests per second with bursts of up to burst.
// It returns nil when rps is not positive; a nil limiter lets every request through.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		retryAfter: strconv.Itoa(int(math.Max(1, math.Ceil(1/rps)))),
		logger:     logger,
	}
}

// Handler rejects requests over the limit with 429 and a problem document
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow() {
			rl.logger.WarnContext(r.Context(), "rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			w.Header().Set("Retry-After", rl.retryAfter)
			WriteProblem(w, r, http.StatusTooManyRequests, "rate limit exceeded, retry after "+rl.retryAfter+"s")
			return
		}
		next.ServeHTTP(w, r)
	})
}
