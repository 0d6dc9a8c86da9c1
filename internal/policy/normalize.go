// Package policy implements the allow-list: URL normalization, glob pattern
// compilation with a per-engine cache, and whitelist evaluation.
package policy

import (
	"net/url"
	"strings"
)

// NormalizedURL holds the two comparable forms of a URL.
type NormalizedURL struct {
	// Full is host[:port]/path?query#fragment.
	Full string
	// Base is host[:port]/path with query and fragment stripped.
	Base string
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// NormalizeURL canonicalizes raw for pattern matching. It never fails:
// input that has no scheme or does not parse degrades to the literal string.
func NormalizeURL(raw string) NormalizedURL {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" {
		return NormalizedURL{Full: trimmed, Base: trimmed}
	}

	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]" // IPv6 literal
	}
	if port := u.Port(); port != "" && defaultPorts[strings.ToLower(u.Scheme)] != port {
		host += ":" + port
	}

	path := u.EscapedPath()
	if u.Opaque != "" {
		path = u.Opaque
	}
	if path == "/" {
		path = ""
	}

	base := host + path
	full := base
	if u.RawQuery != "" {
		full += "?" + u.RawQuery
	}
	if frag := u.EscapedFragment(); frag != "" {
		full += "#" + frag
	}
	return NormalizedURL{Full: full, Base: base}
}
