package policy

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// Separator splits URL path segments: `*` stops at it, `**` crosses it.
const Separator = '/'

const deepSuffix = "/**"

// Matcher reports whether a normalized URL form matches a pattern.
type Matcher func(input string) bool

func never(string) bool { return false }

// Cache compiles patterns once and reuses the matchers, keyed by the exact
// raw pattern text. It is owned by an engine instance, never shared
// globally, and is safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	matchers map[string]Matcher
	logger   *zap.Logger
}

// NewCache creates an empty pattern cache.
func NewCache(logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		matchers: make(map[string]Matcher),
		logger:   logger,
	}
}

// Matcher returns the compiled matcher for raw, compiling on first use.
// An invalid pattern yields a matcher that never matches and is not cached.
func (c *Cache) Matcher(raw string) Matcher {
	c.mu.RLock()
	m, ok := c.matchers[raw]
	c.mu.RUnlock()
	if ok {
		return m
	}

	m, err := Compile(raw)
	if err != nil {
		c.logger.Debug("invalid pattern never matches",
			zap.String("pattern", raw),
			zap.Error(err))
		return never
	}

	c.mu.Lock()
	if existing, ok := c.matchers[raw]; ok {
		m = existing
	} else {
		c.matchers[raw] = m
	}
	c.mu.Unlock()
	return m
}

// Match tests raw against one normalized URL form.
func (c *Cache) Match(raw, input string) bool {
	return c.Matcher(raw)(input)
}

// Clear drops every compiled matcher, e.g. after a bulk pattern edit.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.matchers = make(map[string]Matcher)
	c.mu.Unlock()
}

// Len returns the number of cached matchers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.matchers)
}

// Contains reports whether raw has a cached matcher.
func (c *Cache) Contains(raw string) bool {
	c.mu.RLock()
	_, ok := c.matchers[raw]
	c.mu.RUnlock()
	return ok
}

// Rewrite applies the scheme-agnostic rewrite rules to a raw pattern:
// a leading "proto://" is stripped and a trailing "/*" becomes "/**".
// Only the first "://" is cut; later ones, as in a redirect target in the
// query, stay part of the pattern.
func Rewrite(raw string) string {
	p := raw
	if _, rest, ok := strings.Cut(p, "://"); ok && rest != "" {
		p = rest
	}
	if strings.HasSuffix(p, "/*") && !strings.HasSuffix(p, deepSuffix) {
		p = p[:len(p)-2] + deepSuffix
	}
	return p
}

// Compile builds a matcher for raw without touching any cache.
// A pattern ending in "/**" also matches its bare prefix, with or without
// a trailing separator, so "example.com/*" matches "example.com".
func Compile(raw string) (Matcher, error) {
	p := Rewrite(raw)
	g, err := glob.Compile(p, Separator)
	if err != nil {
		return nil, err
	}

	if !strings.HasSuffix(p, deepSuffix) {
		return g.Match, nil
	}

	prefix := strings.TrimSuffix(p, deepSuffix)
	root, err := glob.Compile(prefix, Separator)
	if err != nil {
		return nil, err
	}
	return func(input string) bool {
		if g.Match(input) {
			return true
		}
		if input == prefix || input == prefix+"/" {
			return true
		}
		return root.Match(strings.TrimSuffix(input, "/"))
	}, nil
}

// ValidatePattern checks a pattern at creation time.
func ValidatePattern(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &domain.ValidationError{Field: "pattern", Reason: "pattern must not be empty"}
	}
	if _, err := Compile(raw); err != nil {
		return &domain.ValidationError{Field: "pattern", Reason: "invalid pattern format: " + err.Error()}
	}
	return nil
}
