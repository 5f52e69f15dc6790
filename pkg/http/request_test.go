package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestResolveClientIP(t *testing.T) {
	internal := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8", "::1/128"}}

	tests := []struct {
		name       string
		config     *pkghttp.IPConfig
		remoteAddr string
		forwarded  string
		realIP     string
		want       pkghttp.ClientAddr
	}{
		{
			name:       "direct peer without headers",
			config:     internal,
			remoteAddr: "203.0.113.10:54321",
			want:       pkghttp.ClientAddr{IP: "203.0.113.10", Source: pkghttp.SourceRemoteAddr},
		},
		{
			name:       "untrusted peer sending forwarding headers is flagged",
			config:     internal,
			remoteAddr: "203.0.113.10:54321",
			forwarded:  "127.0.0.1, 5.6.7.8",
			realIP:     "192.168.1.1",
			want:       pkghttp.ClientAddr{IP: "203.0.113.10", Source: pkghttp.SourceRemoteAddr, Forged: true},
		},
		{
			name:       "nil config never trusts headers",
			config:     nil,
			remoteAddr: "203.0.113.10:54321",
			forwarded:  "1.2.3.4",
			want:       pkghttp.ClientAddr{IP: "203.0.113.10", Source: pkghttp.SourceRemoteAddr, Forged: true},
		},
		{
			name:       "invalid prefixes trust nobody",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"invalid-cidr", "10.0.0.0/33"}},
			remoteAddr: "10.0.0.5:1",
			forwarded:  "1.2.3.4",
			want:       pkghttp.ClientAddr{IP: "10.0.0.5", Source: pkghttp.SourceRemoteAddr, Forged: true},
		},
		{
			name:       "trusted proxy forwards the client",
			config:     internal,
			remoteAddr: "10.0.0.5:54321",
			forwarded:  "203.0.113.42",
			want:       pkghttp.ClientAddr{IP: "203.0.113.42", Source: pkghttp.SourceForwardedFor},
		},
		{
			name:       "prepended entries do not move the attribution",
			config:     internal,
			remoteAddr: "10.0.0.5:54321",
			forwarded:  "127.0.0.1, 198.51.100.7, 203.0.113.42, 10.0.0.9",
			want:       pkghttp.ClientAddr{IP: "203.0.113.42", Source: pkghttp.SourceForwardedFor},
		},
		{
			name:       "chain of trusted hops falls back to the leftmost",
			config:     internal,
			remoteAddr: "10.0.0.5:54321",
			forwarded:  "10.1.1.1, 10.0.0.9",
			want:       pkghttp.ClientAddr{IP: "10.1.1.1", Source: pkghttp.SourceForwardedFor},
		},
		{
			name:       "garbage X-Forwarded-For falls through to X-Real-IP",
			config:     internal,
			remoteAddr: "10.0.0.5:54321",
			forwarded:  "not-an-ip, also bad",
			realIP:     "203.0.113.8",
			want:       pkghttp.ClientAddr{IP: "203.0.113.8", Source: pkghttp.SourceRealIP},
		},
		{
			name:       "trusted proxy without usable headers",
			config:     internal,
			remoteAddr: "10.0.0.5:54321",
			realIP:     "bogus",
			want:       pkghttp.ClientAddr{IP: "10.0.0.5", Source: pkghttp.SourceRemoteAddr},
		},
		{
			name:       "IPv6 proxy and IPv4-mapped client",
			config:     internal,
			remoteAddr: "[::1]:54321",
			forwarded:  "::ffff:203.0.113.5",
			want:       pkghttp.ClientAddr{IP: "203.0.113.5", Source: pkghttp.SourceForwardedFor},
		},
		{
			name:       "remote addr without port",
			config:     internal,
			remoteAddr: "203.0.113.10",
			want:       pkghttp.ClientAddr{IP: "203.0.113.10", Source: pkghttp.SourceRemoteAddr},
		},
		{
			name:   "missing remote addr",
			config: internal,
			want:   pkghttp.ClientAddr{IP: "unknown", Source: pkghttp.SourceRemoteAddr},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			got := pkghttp.ResolveClientIP(req, tt.config)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.IP, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}

func TestIsJSON(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"Application/JSON", true},
		{"text/plain", false},
		{"application/x-www-form-urlencoded", false},
		{"", false},
		{"application/json; =broken", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tt.contentType != "" {
			req.Header.Set("Content-Type", tt.contentType)
		}
		assert.Equal(t, tt.want, pkghttp.IsJSON(req), tt.contentType)
	}
}
