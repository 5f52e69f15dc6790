package http

import (
	"mime"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
)

// IPSource names the part of the request a client address was read from
type IPSource string

const (
	SourceRemoteAddr   IPSource = "remote_addr"
	SourceForwardedFor IPSource = "x_forwarded_for"
	SourceRealIP       IPSource = "x_real_ip"
)

// ClientAddr is the address a request is attributed to for rate limiting,
// risk scoring and security events
type ClientAddr struct {
	IP     string
	Source IPSource
	// Forged is set when a peer outside the trusted proxies sent forwarding
	// headers. The headers were ignored.
	Forged bool
}

// IPConfig lists the proxies whose forwarding headers are believed.
// Entries that are not valid CIDR prefixes are skipped.
type IPConfig struct {
	TrustedProxies []string

	once     sync.Once
	prefixes []netip.Prefix
}

func (c *IPConfig) trusts(addr netip.Addr) bool {
	if c == nil || !addr.IsValid() {
		return false
	}
	c.once.Do(func() {
		for _, cidr := range c.TrustedProxies {
			if p, err := netip.ParsePrefix(strings.TrimSpace(cidr)); err == nil {
				c.prefixes = append(c.prefixes, p.Masked())
			}
		}
	})
	for _, p := range c.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ResolveClientIP attributes r to a client address. Forwarding headers are
// only read when the direct peer is a trusted proxy. X-Forwarded-For is
// walked from the right and the first hop that is not itself a trusted
// proxy wins, so a client cannot choose its address by prepending entries.
func ResolveClientIP(r *http.Request, config *IPConfig) ClientAddr {
	remote := remoteAddr(r)
	forwarded := r.Header.Get("X-Forwarded-For")
	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))

	if !config.trusts(parseAddr(remote)) {
		return ClientAddr{
			IP:     remote,
			Source: SourceRemoteAddr,
			Forged: forwarded != "" || realIP != "",
		}
	}

	if ip, ok := forwardedClient(forwarded, config); ok {
		return ClientAddr{IP: ip, Source: SourceForwardedFor}
	}
	if addr := parseAddr(realIP); addr.IsValid() {
		return ClientAddr{IP: addr.String(), Source: SourceRealIP}
	}
	return ClientAddr{IP: remote, Source: SourceRemoteAddr}
}

// ExtractClientIP returns the address ResolveClientIP attributes r to
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	return ResolveClientIP(r, config).IP
}

// IsJSON reports whether r declares a JSON body
func IsJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func forwardedClient(header string, config *IPConfig) (string, bool) {
	if header == "" {
		return "", false
	}

	var hops []netip.Addr
	for _, part := range strings.Split(header, ",") {
		if addr := parseAddr(strings.TrimSpace(part)); addr.IsValid() {
			hops = append(hops, addr)
		}
	}
	if len(hops) == 0 {
		return "", false
	}

	for i := len(hops) - 1; i >= 0; i-- {
		if !config.trusts(hops[i]) {
			return hops[i].String(), true
		}
	}
	// every hop is a proxy we run; the leftmost is the origin
	return hops[0].String(), true
}

func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func parseAddr(s string) netip.Addr {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}
