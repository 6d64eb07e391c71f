package mock

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrEmptyPattern is returned when registering an empty URL glob.
var ErrEmptyPattern = errors.New("empty url pattern")

// compileGlob turns a URL glob into an anchored regexp.
//
//	**     any run of characters, including '/'
//	*      any run of characters except '/'
//	?      one character except '/'
//	{a,b}  either alternative
//	\c     the literal character c
func compileGlob(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}

	runes := []rune(pattern)
	var b strings.Builder
	b.WriteString("^")
	inGroup := false

	for i := 0; i < len(runes); i++ {
		switch c := runes[i]; c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				for i+1 < len(runes) && runes[i+1] == '*' {
					i++
				}
				b.WriteString(".*")
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '{':
			if inGroup {
				return nil, fmt.Errorf("url pattern %q: nested '{'", pattern)
			}
			inGroup = true
			b.WriteString("(?:")
		case '}':
			if !inGroup {
				return nil, fmt.Errorf("url pattern %q: unbalanced '}'", pattern)
			}
			inGroup = false
			b.WriteString(")")
		case ',':
			if inGroup {
				b.WriteString("|")
			} else {
				b.WriteString(",")
			}
		case '\\':
			if i+1 == len(runes) {
				return nil, fmt.Errorf("url pattern %q: trailing escape", pattern)
			}
			i++
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	if inGroup {
		return nil, fmt.Errorf("url pattern %q: unbalanced '{'", pattern)
	}

	b.WriteString("$")
	return regexp.Compile(b.String())
}

// fetchPattern converts a URL glob into the coarser wildcard syntax of the
// DevTools Fetch domain ('*' and '?' only). Alternation groups widen to '*';
// the compiled glob makes the final decision for every paused request.
func fetchPattern(pattern string) string {
	runes := []rune(pattern)
	var b strings.Builder

	for i := 0; i < len(runes); i++ {
		switch c := runes[i]; c {
		case '*':
			for i+1 < len(runes) && runes[i+1] == '*' {
				i++
			}
			b.WriteRune('*')
		case '{':
			for i < len(runes) && runes[i] != '}' {
				i++
			}
			b.WriteRune('*')
		case '\\':
			b.WriteRune('\\')
			if i+1 < len(runes) {
				i++
				b.WriteRune(runes[i])
			}
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// resolvePattern anchors a pattern without a scheme to the base URL the way
// a link is resolved against a page: "/items*" is rooted at the base origin,
// "items*" sits next to the last segment of the base path. Against
// "http://localhost:5173" both match "http://localhost:5173/items?page=1".
// Patterns starting with a wildcard are left alone.
func resolvePattern(baseURL, pattern string) string {
	if baseURL == "" || strings.Contains(pattern, "://") || strings.HasPrefix(pattern, "*") {
		return pattern
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return escapeGlob(strings.TrimRight(baseURL, "/")) + "/" + strings.TrimLeft(pattern, "/")
	}
	prefix := u.Scheme + "://" + u.Host
	if strings.HasPrefix(pattern, "/") {
		return escapeGlob(prefix) + pattern
	}
	dir := u.EscapedPath()
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i+1]
	} else {
		dir = "/"
	}
	return escapeGlob(prefix+dir) + pattern
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		if strings.ContainsRune(`*?{},\`, c) {
			b.WriteRune('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
