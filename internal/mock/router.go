// Package mock substitutes deterministic fixture responses for a page's
// outgoing requests.
//
// Rules are matched by URL glob. When several rules match a URL the one
// registered last wins; re-registering a pattern replaces the earlier rule and
// makes it the most recent. Unmatched requests reach the network unmodified.
package mock

import (
	"fmt"
	"regexp"
	"sync"
)

// Rule pairs a URL glob with the responder serving matching requests.
type Rule struct {
	Pattern   string
	Responder Responder
}

type compiledRule struct {
	Rule
	resolved string
	re       *regexp.Regexp
}

// Router holds the registered rules in registration order.
type Router struct {
	mu      sync.RWMutex
	baseURL string
	rules   []compiledRule
}

// NewRouter returns an empty router. Patterns without a scheme are resolved
// against baseURL.
func NewRouter(baseURL string) *Router {
	return &Router{baseURL: baseURL}
}

// Register adds a rule. The pattern must be a well-formed glob and the
// responder non-nil.
func (r *Router) Register(pattern string, responder Responder) error {
	if pattern == "" {
		return ErrEmptyPattern
	}
	if responder == nil {
		return fmt.Errorf("url pattern %q: nil responder", pattern)
	}
	resolved := resolvePattern(r.baseURL, pattern)
	re, err := compileGlob(resolved)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.rules {
		if existing.Pattern == pattern {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			break
		}
	}
	r.rules = append(r.rules, compiledRule{
		Rule:     Rule{Pattern: pattern, Responder: responder},
		resolved: resolved,
		re:       re,
	})
	return nil
}

// Match returns the most recently registered rule matching url.
func (r *Router) Match(url string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.rules) - 1; i >= 0; i-- {
		if r.rules[i].re.MatchString(url) {
			return r.rules[i].Rule, true
		}
	}
	return Rule{}, false
}

// Rules returns the registered rules, oldest first.
func (r *Router) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Rule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.Rule
	}
	return out
}

// Len returns the number of registered rules.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// fetchPatterns returns one browser-side wildcard per rule.
func (r *Router) fetchPatterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, rule := range r.rules {
		p := fetchPattern(rule.resolved)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
