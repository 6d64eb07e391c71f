// Package locator describes how to find elements on a page. A Locator is an
// immutable chain of steps evaluated page-side: selector steps search the
// descendants of the current matches, Filter and Nth narrow them.
//
// Text, role names, placeholders and labels match case-insensitively as
// substrings of the whitespace-normalised text unless Exact is used. Role
// locators only see elements exposed to assistive technology, so hidden
// elements never match them.
package locator

import (
	"fmt"
	"strings"
)

type step struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
	Name  string `json:"name,omitempty"`
	Exact bool   `json:"exact,omitempty"`
	Index int    `json:"index,omitempty"`
}

// Locator is a chain of steps. The zero value matches nothing.
type Locator struct {
	steps []step
}

func newLocator(s step) Locator {
	return Locator{steps: []step{s}}
}

// CSS matches elements by CSS selector.
func CSS(selector string) Locator {
	return newLocator(step{Kind: "css", Value: selector})
}

// Text matches the innermost elements whose text contains text.
func Text(text string) Locator {
	return newLocator(step{Kind: "text", Value: text})
}

// ExactText matches the innermost elements whose whole text equals text.
func ExactText(text string) Locator {
	return newLocator(step{Kind: "text", Value: text, Exact: true})
}

// Role matches elements by ARIA role, explicit or implied by the tag, and by
// accessible name when name is non-empty.
func Role(role, name string) Locator {
	return newLocator(step{Kind: "role", Value: strings.ToLower(role), Name: name})
}

// ExactRole is Role with an exact accessible name.
func ExactRole(role, name string) Locator {
	return newLocator(step{Kind: "role", Value: strings.ToLower(role), Name: name, Exact: true})
}

// Placeholder matches inputs and textareas by placeholder text.
func Placeholder(text string) Locator {
	return newLocator(step{Kind: "placeholder", Value: text})
}

// Label matches form controls by the text of their label or aria-label.
func Label(text string) Locator {
	return newLocator(step{Kind: "label", Value: text})
}

// TestID matches elements by data-testid.
func TestID(id string) Locator {
	return newLocator(step{Kind: "testid", Value: id})
}

func (l Locator) with(s step) Locator {
	steps := make([]step, len(l.steps), len(l.steps)+1)
	copy(steps, l.steps)
	return Locator{steps: append(steps, s)}
}

// Filter keeps the matches whose text contains text.
func (l Locator) Filter(hasText string) Locator {
	return l.with(step{Kind: "hasText", Value: hasText})
}

// Locator searches for child within the current matches.
func (l Locator) Locator(child Locator) Locator {
	steps := make([]step, 0, len(l.steps)+len(child.steps))
	steps = append(steps, l.steps...)
	return Locator{steps: append(steps, child.steps...)}
}

// Nth keeps the i-th match, counting from zero. Negative values count from
// the end.
func (l Locator) Nth(i int) Locator {
	return l.with(step{Kind: "nth", Index: i})
}

// First keeps the first match.
func (l Locator) First() Locator {
	return l.Nth(0)
}

// Last keeps the last match.
func (l Locator) Last() Locator {
	return l.Nth(-1)
}

// IsZero reports whether l has no steps.
func (l Locator) IsZero() bool {
	return len(l.steps) == 0
}

// String describes the locator for logs and errors, e.g.
// `css=tr >> has-text="Oil Filter" >> role=button[name="Details"]`.
func (l Locator) String() string {
	if len(l.steps) == 0 {
		return "<empty locator>"
	}
	parts := make([]string, len(l.steps))
	for i, s := range l.steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, " >> ")
}

func (s step) String() string {
	exact := ""
	if s.Exact {
		exact = "s"
	}
	switch s.Kind {
	case "role":
		if s.Name == "" {
			return "role=" + s.Value
		}
		return fmt.Sprintf("role=%s[name=%q%s]", s.Value, s.Name, exact)
	case "text":
		return fmt.Sprintf("text=%q%s", s.Value, exact)
	case "css", "testid":
		return s.Kind + "=" + s.Value
	case "hasText":
		return fmt.Sprintf("has-text=%q", s.Value)
	case "nth":
		return fmt.Sprintf("nth=%d", s.Index)
	default:
		return fmt.Sprintf("%s=%q", s.Kind, s.Value)
	}
}
