package policy

import (
	"net/url"
	"strings"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// WhitelistOption selects how a blocked URL is turned into a pattern.
type WhitelistOption string

const (
	OptionExact          WhitelistOption = "exact"           // host + path
	OptionDomain         WhitelistOption = "domain"          // host only
	OptionDomainWildcard WhitelistOption = "domain-wildcard" // *.host
	OptionCustom         WhitelistOption = "custom"
)

// PatternForURL builds the pattern a whitelist shortcut would add.
// An unparseable URL is used literally.
func PatternForURL(rawURL string, option WhitelistOption, custom string) (string, error) {
	switch option {
	case OptionCustom:
		if strings.TrimSpace(custom) == "" {
			return "", &domain.ValidationError{Field: "pattern", Reason: "custom pattern must not be empty"}
		}
		return custom, nil
	case OptionExact, OptionDomain, OptionDomainWildcard, "":
	default:
		return "", &domain.ValidationError{Field: "option", Reason: "unknown whitelist option " + string(option)}
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return rawURL, nil
	}
	host := strings.ToLower(u.Hostname())

	switch option {
	case OptionExact:
		return host + u.EscapedPath(), nil
	case OptionDomainWildcard:
		return "*." + host, nil
	default:
		return host, nil
	}
}

// Suggest proposes patterns for a URL, from most to least specific
// host scope, followed by path-scoped variants. Duplicates are removed.
func Suggest(rawURL string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		add(rawURL)
		return out
	}
	host := strings.ToLower(u.Hostname())

	add(NormalizeURL(rawURL).Base)
	add(host)
	add(host + "/*")
	if !strings.HasPrefix(host, "www.") {
		add("*." + host)
		add("*." + host + "/*")
	}

	var parts []string
	for _, part := range strings.Split(u.EscapedPath(), "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	current := host
	for i, part := range parts {
		current += "/" + part
		if i == len(parts)-1 {
			add(current)
		} else {
			add(current + "/*")
		}
	}

	if port := u.Port(); port != "" {
		add(host + ":" + port)
		add(host + ":" + port + "/*")
	}
	return out
}
