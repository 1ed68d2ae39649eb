// Package netutil validates relay URLs and hostnames against SSRF-style
// targets, grounded on the teacher's relay_pool.go (isRelayURLSafe,
// isRelayIPSafe) and internal/util/helpers.go's host classification
// helpers.
package netutil

import (
	"net"
	"net/url"
	"strings"
)

// IsRelayURLFormatValid reports whether raw is syntactically a relay URL:
// scheme ws:// or wss://, non-empty host. It does not resolve the host;
// use IsRelayURLSafe for that before dialing.
func IsRelayURLFormatValid(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return false
	}
	return parsed.Hostname() != ""
}

// NormalizeRelayURL lowercases the scheme and host and strips a trailing
// slash, so the same logical relay is not tracked twice under cosmetic
// variants of its URL.
func NormalizeRelayURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String(), nil
}

// IsRelayURLSafe validates that a relay URL is safe to dial: ws/wss
// scheme, non-loopback internal addresses rejected, cloud metadata and
// link-local/multicast ranges rejected. Loopback is allowed so local
// development relays keep working.
func IsRelayURLSafe(relayURL string) bool {
	if !IsRelayURLFormatValid(relayURL) {
		return false
	}
	parsed, _ := url.Parse(relayURL)
	host := parsed.Hostname()

	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return !IsInternalHostname(host)
	}
	for _, ip := range ips {
		if !IsPublicIP(ip) {
			return false
		}
	}
	return true
}

// IsInternalHostname reports whether host looks like an internal or
// reserved name that cannot be resolved from outside (trailing dot,
// .local, .internal suffixes).
func IsInternalHostname(host string) bool {
	if host == "" {
		return false
	}
	return strings.HasSuffix(host, ".") ||
		strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal")
}

// IsLoopbackHost reports whether ip is the loopback address.
func IsLoopbackHost(ip net.IP) bool {
	return ip != nil && ip.IsLoopback()
}

// IsPrivateHost reports whether ip falls in an RFC 1918 / ULA private
// range.
func IsPrivateHost(ip net.IP) bool {
	return ip != nil && ip.IsPrivate()
}

var metadataIP = net.ParseIP("169.254.169.254")

// IsPublicIP reports whether ip is safe to connect a relay client to:
// not private, not link-local, not unspecified, not multicast, and not
// the cloud metadata address. Loopback is treated as public here, so a
// relay hostname that resolves to loopback passes IsRelayURLSafe.
func IsPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	if IsPrivateHost(ip) {
		return false
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	if ip.IsUnspecified() || ip.IsMulticast() {
		return false
	}
	if ip.Equal(metadataIP) {
		return false
	}
	return true
}
