package http_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkghttp "github.com/BradenHooton/propertyhub/pkg/http"
)

var proxyConfig = &pkghttp.IPConfig{
	TrustedProxies: []string{"10.0.0.0/8", "127.0.0.1/32", "2001:db8::/32"},
}

func TestExtractClientIP_DirectConnection_IgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	req.Header.Set("X-Real-IP", "192.168.1.1")

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, proxyConfig))
}

func TestExtractClientIP_TrustedProxy_UsesXForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.42, 10.0.0.5")

	assert.Equal(t, "203.0.113.42", pkghttp.ExtractClientIP(req, proxyConfig))
}

func TestExtractClientIP_TrustedProxy_SkipsInvalidEntries(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "not-an-ip, 198.51.100.7")

	assert.Equal(t, "198.51.100.7", pkghttp.ExtractClientIP(req, proxyConfig))
}

func TestExtractClientIP_TrustedProxy_FallsBackToXRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	req.Header.Set("X-Real-IP", "198.51.100.9")

	assert.Equal(t, "198.51.100.9", pkghttp.ExtractClientIP(req, proxyConfig))
}

func TestExtractClientIP_NilConfig(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.42")

	assert.Equal(t, "10.0.0.5", pkghttp.ExtractClientIP(req, nil))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Reason string `json:"reason"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"reason":"blurry"}`, false},
		{"empty body", ``, true},
		{"unknown field", `{"reason":"x","extra":1}`, true},
		{"trailing object", `{"reason":"x"}{"reason":"y"}`, true},
		{"malformed", `{"reason":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))

			var p payload
			err := pkghttp.DecodeJSON(w, req, &p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "blurry", p.Reason)
		})
	}
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 20, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=500", 100, 0},
		{"?limit=-1&offset=-3", 20, 0},
		{"?limit=abc", 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/listings"+tt.query, nil)
			limit, offset := pkghttp.Pagination(req, 20, 100)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}
