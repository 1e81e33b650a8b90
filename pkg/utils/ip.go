package utils

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// sourceIPHeaders lists forwarding headers in the order they are trusted.
var sourceIPHeaders = []string{
	"CF-Connecting-IP",
	"X-Real-IP",
	"X-Forwarded-For",
}

// SourceIP derives the original caller address from forwarding headers.
// Returns "" when no forwarding header carries an address.
// X-Forwarded-For format is "client, proxy1, proxy2"; the leftmost entry is used.
func SourceIP(h http.Header) string {
	for _, name := range sourceIPHeaders {
		value := strings.TrimSpace(h.Get(name))
		if value == "" {
			continue
		}
		if idx := strings.Index(value, ","); idx != -1 {
			value = strings.TrimSpace(value[:idx])
		}
		if value != "" {
			return value
		}
	}
	return ""
}

// ParseCIDRs parses CIDR ranges. A bare address is treated as a single host.
func ParseCIDRs(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// ClientIP returns the caller address used for per-client accounting.
// Forwarding headers are honoured only when the direct peer is inside trusted;
// otherwise the connection address is used.
func ClientIP(r *http.Request, trusted []*net.IPNet) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}

	if isTrusted(peer, trusted) {
		if ip := SourceIP(r.Header); ip != "" && net.ParseIP(ip) != nil {
			return ip
		}
	}
	return peer
}

func isTrusted(addr string, trusted []*net.IPNet) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
