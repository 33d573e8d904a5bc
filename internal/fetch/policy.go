package fetch

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Policy decides whether an outbound URL may be fetched. Returning a non-nil
// error blocks the request before any network or governor activity.
type Policy func(*url.URL) error

// DefaultPolicy permits http/https URLs to public hosts. Loopback, private,
// and link-local addresses are rejected so a hostile rules page cannot pivot
// the harvester into the local network.
func DefaultPolicy(u *url.URL) error {
	if u == nil {
		return fmt.Errorf("nil url")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		return fmt.Errorf("empty host")
	}
	if host == "localhost" || host == "localhost.localdomain" {
		return fmt.Errorf("local host not allowed: %s", host)
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("private host not allowed: %s", host)
		}
	}
	return nil
}

// PermitAll accepts every URL. Intended for tests and for hosts that apply
// their own egress controls.
func PermitAll(*url.URL) error { return nil }
