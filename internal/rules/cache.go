package rules

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Cache holds compiled regexes keyed by (pattern source, modifiers) so a rule
// set applied across many files never recompiles an identical pattern. One
// cache instance lives for the lifetime of a loaded rule set; Reset is called
// on rule-set reload.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*regexp.Regexp
	version int
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*regexp.Regexp)}
}

func cacheKey(kind PatternKind, source string, mods Modifiers) string {
	return string(kind) + "\x00" + mods.Canonical() + "\x00" + source
}

// Compile returns the compiled matcher for a pattern, building and memoizing
// it on first use.
func (c *Cache) Compile(kind PatternKind, source string, mods Modifiers) (*regexp.Regexp, error) {
	key := cacheKey(kind, source, mods)

	c.mu.RLock()
	re, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := buildRegex(kind, source, mods)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = re
	c.mu.Unlock()
	return re, nil
}

// Reset drops every cached matcher and bumps the cache version. Called when
// the rule set is reloaded.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*regexp.Regexp)
	c.version++
	c.mu.Unlock()
}

// Len reports the number of distinct compiled patterns currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Version increments on every Reset, letting callers detect rule-set reloads.
func (c *Cache) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func buildRegex(kind PatternKind, source string, mods Modifiers) (*regexp.Regexp, error) {
	body := source
	if kind == PatternLiteral {
		body = regexp.QuoteMeta(source)
	}
	if mods.FullWord {
		body = `\b(?:` + body + `)\b`
	}

	var flags strings.Builder
	if mods.NoCase {
		flags.WriteString("i")
	}
	if mods.Multiline {
		flags.WriteString("ms")
	}
	if flags.Len() > 0 {
		body = "(?" + flags.String() + ")" + body
	}

	re, err := regexp.Compile(body)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", source, err)
	}
	return re, nil
}
