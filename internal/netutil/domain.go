// Package netutil provides network helpers shared by the routing core:
// destination normalization and the health-probe HTTP client.
package netutil

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ExtractDomain normalizes a destination string into its effective
// top-level-domain-plus-one (eTLD+1). The input may be a bare host,
// host:port, a full URL, or a bracketed IPv6 literal.
//
// Examples:
//
//	"www.google.co.uk:443" -> "google.co.uk"
//	"https://api.openai.com/v1" -> "openai.com"
//	"192.168.1.1:8080"     -> "192.168.1.1"
//	"[::1]:80"             -> "::1"
func ExtractDomain(target string) string {
	host := ExtractHost(target)
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	// IP addresses, localhost, internal names: use as-is.
	return host
}

// ExtractHost strips URL scheme/path and any port from a destination,
// returning the bare hostname (or IP literal without brackets).
func ExtractHost(target string) string {
	if strings.Contains(target, "://") || strings.HasPrefix(target, "//") {
		if u, err := url.Parse(target); err == nil && u.Host != "" {
			target = u.Host
		}
	}
	if h, _, err := net.SplitHostPort(target); err == nil {
		return h
	}
	if strings.HasPrefix(target, "[") && strings.HasSuffix(target, "]") {
		return target[1 : len(target)-1]
	}
	return target
}

// TLD returns the final dot-separated label of a host, lower-cased, or ""
// for IP literals and single-label names.
func TLD(host string) string {
	host = strings.ToLower(strings.TrimSuffix(ExtractHost(host), "."))
	idx := strings.LastIndexByte(host, '.')
	if idx < 0 || idx == len(host)-1 {
		return ""
	}
	tld := host[idx+1:]
	// Numeric final label means an IPv4 literal, not a TLD.
	if tld[0] >= '0' && tld[0] <= '9' {
		return ""
	}
	return tld
}
