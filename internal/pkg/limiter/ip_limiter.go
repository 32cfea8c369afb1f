/*
Package limiter provides request rate limiting keyed by client IP address.

Each address gets its own token bucket (rate.Limiter). Buckets idle for longer than the
configured TTL are swept by a janitor goroutine that stops with its context.
*/
package limiter

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"loungechat/internal/pkg/errs"
	"loungechat/internal/pkg/logx"
	"loungechat/internal/pkg/resp"
)

const (
	defaultIdleTTL       = 10 * time.Minute
	defaultSweepInterval = 3 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter hands out one token bucket per client IP address.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	r       rate.Limit
	b       int
	idleTTL time.Duration
	now     func() time.Time
}

// NewIPRateLimiter creates a limiter allowing r events per second with burst b per address.
// The idle sweep only runs once Run is started.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		r:        r,
		b:        b,
		idleTTL:  defaultIdleTTL,
		now:      time.Now,
	}
}

// Allow consumes one token of ip's bucket.
func (i *IPRateLimiter) Allow(ip string) bool {
	i.mu.Lock()
	v, ok := i.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(i.r, i.b)}
		i.visitors[ip] = v
	}
	v.lastSeen = i.now()
	i.mu.Unlock()

	return v.limiter.Allow()
}

// Len returns the number of tracked addresses.
func (i *IPRateLimiter) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.visitors)
}

// Sweep drops addresses idle for longer than the TTL and returns how many were removed.
func (i *IPRateLimiter) Sweep() int {
	cutoff := i.now().Add(-i.idleTTL)

	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for ip, v := range i.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(i.visitors, ip)
			removed++
		}
	}
	return removed
}

// Run sweeps idle addresses periodically until ctx is done.
func (i *IPRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := i.Sweep()
			logx.Debug("Rate limiter sweep finished", "removed", removed, "active", i.Len())
		}
	}
}

// ClientIP returns the host part of r.RemoteAddr. chi's RealIP middleware has already
// rewritten it from the proxy headers when it runs earlier in the chain.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if ip == "" {
		ip = "unknown_ip"
	}
	return ip
}

// Middleware rejects requests over the limit with ErrRateLimitExceeded (HTTP 429).
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if !i.Allow(ip) {
			logx.Warn("Request rejected: rate limit exceeded", "ip", ip, "uri", r.RequestURI)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
