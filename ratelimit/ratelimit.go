// Package ratelimit enforces the TLS handshake rate limit of spec §6
// ("handshake_rate_limit_per_second ... categorized by source address") on
// top of catrate.Limiter, the teacher's sliding-window category limiter.
package ratelimit

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// HandshakeLimiter rate-limits TLS handshake attempts per source address.
type HandshakeLimiter struct {
	limiter *catrate.Limiter
}

// NewHandshakeLimiter builds a limiter allowing up to perSecond handshakes
// per category (normally a client IP) per rolling second. perSecond <= 0
// disables limiting entirely.
func NewHandshakeLimiter(perSecond int) *HandshakeLimiter {
	if perSecond <= 0 {
		return &HandshakeLimiter{}
	}
	return &HandshakeLimiter{
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: perSecond,
		}),
	}
}

// Allow reports whether a handshake from category may proceed now; if not,
// retryAt names when the next attempt would be allowed (spec §9 surfaces
// this as "handshake_rate_limited" plus the retry hint for telemetry).
func (h *HandshakeLimiter) Allow(category any) (retryAt time.Time, ok bool) {
	if h == nil || h.limiter == nil {
		return time.Time{}, true
	}
	return h.limiter.Allow(category)
}
