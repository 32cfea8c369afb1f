package logx

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// anonymizeIP zeroes the last IPv4 octet or the lower 64 bits of an IPv6 address.
func anonymizeIP(ipStr string) string {
	host, _, err := net.SplitHostPort(ipStr)
	if err == nil {
		ipStr = host
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "unknown_ip"
	}

	if ip.IsLoopback() {
		return "127.0.0.1"
	}

	if v4 := ip.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String()
	}

	masked := ip.Mask(net.CIDRMask(64, 128))
	return masked.String()
}

// RequestLogger returns the HTTP middleware chain that attaches a request scoped logger
// to the context (retrievable with zerolog.Ctx or hlog.FromRequest) and writes one access
// line per request. It must run after chi's RequestID and RealIP middleware.
func RequestLogger() func(next http.Handler) http.Handler {
	baseLogger := Component("http")

	withFields := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := zerolog.Ctx(r.Context())
			l.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_ip", anonymizeIP(r.RemoteAddr)).
					Str("request_method", r.Method).
					Str("request_uri", r.RequestURI)
			})
			next.ServeHTTP(w, r)
		})
	}

	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		l := hlog.FromRequest(r)

		logEvent := l.Info()
		if status >= 500 {
			logEvent = l.Error()
		} else if status >= 400 {
			logEvent = l.Warn()
		}

		logEvent.
			Int("status", status).
			Int("bytes", size).
			Dur("latency", duration).
			Msg("Request completed")
	})

	return func(next http.Handler) http.Handler {
		return hlog.NewHandler(baseLogger)(withFields(access(next)))
	}
}
