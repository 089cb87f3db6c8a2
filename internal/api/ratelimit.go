package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/inkwellapp/inkwell-server/internal/ratelimit"
)

// RateLimiter limits requests per client.
type RateLimiter = ratelimit.KeyedRateLimiter

const (
	limiterEvictInterval = time.Minute
	limiterIdle          = 10 * time.Minute
)

// NewRateLimiter creates a per-client limiter allowing rps requests per
// second with the given burst. Clients idle for ten minutes are forgotten.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := ratelimit.New(rps, burst)
	rl.StartEviction(limiterEvictInterval, limiterIdle)
	return rl
}

// rateLimited guards operations that fan out to external metadata sources.
// Returns 429 Too Many Requests when a client exceeds its budget.
func (s *Server) rateLimited() huma.Middlewares {
	if s.limiter == nil {
		return nil
	}
	return huma.Middlewares{func(ctx huma.Context, next func(huma.Context)) {
		key := clientIP(ctx)
		if !s.limiter.Allow(key) {
			s.logger.Warn("Rate limit exceeded",
				"ip", key,
				"path", ctx.URL().Path,
			)
			_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}
		next(ctx)
	}}
}

// clientIP extracts the client IP from the request.
// Checks X-Forwarded-For and X-Real-IP headers before falling back to RemoteAddr.
func clientIP(ctx huma.Context) string {
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}

	addr := ctx.RemoteAddr()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
