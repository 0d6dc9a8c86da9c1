package policy

import "github.com/eliteGoblin/focusd/focusgate/internal/domain"

// IsAllowed reports whether rawURL matches any enabled pattern. Each
// pattern is tested against both the full and the base form, so
// path-scoped patterns ignore query strings while query-sensitive
// patterns still match when the query is present.
func IsAllowed(cache *Cache, rawURL string, patterns []domain.Pattern) bool {
	return MatchingPattern(cache, rawURL, patterns) != nil
}

// MatchingPattern returns the first enabled pattern allowing rawURL, or nil.
func MatchingPattern(cache *Cache, rawURL string, patterns []domain.Pattern) *domain.Pattern {
	u := NormalizeURL(rawURL)
	for i := range patterns {
		p := &patterns[i]
		if !p.Enabled {
			continue
		}
		m := cache.Matcher(p.Raw)
		if m(u.Full) || m(u.Base) {
			return p
		}
	}
	return nil
}

// MatchesURL tests a single candidate pattern against rawURL without
// caching it. Used by the pattern tester; an invalid pattern never matches.
func MatchesURL(raw, rawURL string) bool {
	m, err := Compile(raw)
	if err != nil {
		return false
	}
	u := NormalizeURL(rawURL)
	return m(u.Full) || m(u.Base)
}
