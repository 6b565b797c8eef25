// Package urlutil normalizes website hosts for duplicate matching and
// favicon cache keys.
package urlutil

import (
	"net/url"
	"strings"
)

// NormalizeHost lowercases a host and strips a leading "www.".
func NormalizeHost(host string) string {
	out := strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(out, "www.")
}

// HostFromURL extracts the normalized host from free-form URL text. Bare
// domains without a scheme ("example.com/login") are accepted. Returns ""
// when no host can be derived.
func HostFromURL(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		if strings.Contains(trimmed, ".") && !strings.Contains(trimmed, "://") {
			u, err = url.Parse("https://" + trimmed)
			if err != nil {
				return ""
			}
		} else {
			return ""
		}
	}

	host := strings.TrimSpace(u.Hostname())
	if host == "" {
		return ""
	}
	return NormalizeHost(host)
}

// HostsEqual reports whether two hosts match after normalization.
func HostsEqual(a, b string) bool {
	return NormalizeHost(a) == NormalizeHost(b)
}
