package clientip

import (
	"net"
	"net/http"
	"strings"
)

// RealClientIP returns the client IP from the request.
// Uses r.RemoteAddr only (no proxy headers), since the service is reached
// directly and forwarded headers could be forged.
func RealClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}

// LimitKey returns the key rate limiters should count r under. IPv6 clients
// are grouped by their /64 network, which a single host usually owns.
func LimitKey(r *http.Request) string {
	return Key(RealClientIP(r))
}

// Key normalizes ip for rate limiting.
func Key(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.String()
	}
	return parsed.Mask(net.CIDRMask(64, 128)).String() + "/64"
}
