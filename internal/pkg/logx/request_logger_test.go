package logx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.77:5123":          "203.0.113.0",
		"203.0.113.77":               "203.0.113.0",
		"[2001:db8:1:2:3:4:5:6]:443": "2001:db8:1:2::",
		"127.0.0.1:80":               "127.0.0.1",
		"not-an-ip":                  "unknown_ip",
	}
	for in, want := range cases {
		assert.Equal(t, want, anonymizeIP(in), in)
	}
}

func TestRequestLogger_PassesThroughAndAttachesLogger(t *testing.T) {
	var sawLogger bool
	h := RequestLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.True(t, sawLogger)
}
