package utils

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{
			name:     "no forwarding headers",
			headers:  map[string]string{"User-Agent": "Stripe/1.0"},
			expected: "",
		},
		{
			name:     "x-forwarded-for takes leftmost entry",
			headers:  map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1, 10.0.0.2"},
			expected: "203.0.113.7",
		},
		{
			name: "x-real-ip wins over x-forwarded-for",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.7",
				"X-Real-IP":       "198.51.100.4",
			},
			expected: "198.51.100.4",
		},
		{
			name: "cf-connecting-ip wins over everything",
			headers: map[string]string{
				"X-Forwarded-For":  "203.0.113.7",
				"X-Real-IP":        "198.51.100.4",
				"CF-Connecting-IP": "192.0.2.10",
			},
			expected: "192.0.2.10",
		},
		{
			name:     "blank header is skipped",
			headers:  map[string]string{"X-Real-IP": "  ", "X-Forwarded-For": "192.0.2.1"},
			expected: "192.0.2.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tt.expected, SourceIP(h))
		})
	}
}

func TestClientIP(t *testing.T) {
	proxies, err := ParseCIDRs([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		remote   string
		headers  map[string]string
		trusted  []*net.IPNet
		expected string
	}{
		{"falls back to remote addr", "192.0.2.55:41234", nil, proxies, "192.0.2.55"},
		{"untrusted peer cannot spoof forwarded for", "192.0.2.55:41234", map[string]string{"X-Forwarded-For": "203.0.113.9"}, proxies, "192.0.2.55"},
		{"untrusted peer cannot spoof cloudflare header", "192.0.2.55:41234", map[string]string{"CF-Connecting-IP": "203.0.113.9"}, proxies, "192.0.2.55"},
		{"no trusted proxies configured", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.9"}, nil, "10.0.0.1"},
		{"trusted proxy forwards client", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.2"}, proxies, "203.0.113.9"},
		{"trusted proxy with unparseable value", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "not-an-ip"}, proxies, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/hooks", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIP(req, tt.trusted))
		})
	}
}

func TestParseCIDRs(t *testing.T) {
	nets, err := ParseCIDRs([]string{"10.0.0.0/8", " 192.0.2.7 ", "", "2001:db8::/32"})
	require.NoError(t, err)
	require.Len(t, nets, 3)
	assert.True(t, nets[1].Contains(net.ParseIP("192.0.2.7")))
	assert.False(t, nets[1].Contains(net.ParseIP("192.0.2.8")))

	_, err = ParseCIDRs([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseCIDRs([]string{"proxy.internal"})
	assert.Error(t, err)
}
