// internal/webhook/guard.go
package webhook

import (
	"net/netip"
	"net/url"
	"strings"
)

// IsLocalCallback reports whether the provider could never reach rawURL:
// loopback, private, link-local and unspecified hosts, localhost names, and
// anything that does not parse as an absolute http(s) URL.
func IsLocalCallback(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return true
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		// DNS names are not resolved
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()
}
