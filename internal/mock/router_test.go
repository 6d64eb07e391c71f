package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string) Responder {
	return Static(Text(name))
}

func responderName(t *testing.T, rule Rule) string {
	t.Helper()
	resp, err := rule.Responder(context.Background(), Request{})
	require.NoError(t, err)
	return resp.Body.(string)
}

func TestRouterLastRegisteredWins(t *testing.T) {
	r := NewRouter("http://localhost:5173")
	require.NoError(t, r.Register("**/api/**", named("broad")))
	require.NoError(t, r.Register("**/api/items*", named("specific")))

	rule, ok := r.Match("http://localhost:5173/api/items?x=1")
	require.True(t, ok)
	assert.Equal(t, "specific", responderName(t, rule))

	rule, ok = r.Match("http://localhost:5173/api/users")
	require.True(t, ok)
	assert.Equal(t, "broad", responderName(t, rule))

	// A broad rule registered later shadows the specific one
	require.NoError(t, r.Register("**/api/{items,orders}*", named("later")))
	rule, ok = r.Match("http://localhost:5173/api/items?x=1")
	require.True(t, ok)
	assert.Equal(t, "later", responderName(t, rule))
}

func TestRouterReRegisterReplaces(t *testing.T) {
	r := NewRouter("")
	require.NoError(t, r.Register("**/a*", named("first")))
	require.NoError(t, r.Register("**/*", named("other")))
	require.NoError(t, r.Register("**/a*", named("second")))

	assert.Equal(t, 2, r.Len())
	rule, ok := r.Match("http://h/abc")
	require.True(t, ok)
	assert.Equal(t, "second", responderName(t, rule))
	assert.Equal(t, []string{"**/*", "**/a*"}, []string{r.Rules()[0].Pattern, r.Rules()[1].Pattern})
}

func TestRouterNoMatch(t *testing.T) {
	r := NewRouter("http://localhost:5173")
	require.NoError(t, r.Register("/items*", named("items")))

	_, ok := r.Match("http://localhost:5173/orders")
	assert.False(t, ok)
	_, ok = r.Match("http://elsewhere:5173/items")
	assert.False(t, ok)
	rule, ok := r.Match("http://localhost:5173/items?page=2")
	require.True(t, ok)
	assert.Equal(t, "/items*", rule.Pattern)
}

func TestRouterRejectsBadRules(t *testing.T) {
	r := NewRouter("")
	assert.ErrorIs(t, r.Register("", named("x")), ErrEmptyPattern)
	assert.Error(t, r.Register("**/{a", named("x")))
	assert.Error(t, r.Register("**/a", nil))
	assert.Equal(t, 0, r.Len())
}

func TestRouterFetchPatternsDeduplicated(t *testing.T) {
	r := NewRouter("http://localhost:5173")
	require.NoError(t, r.Register("**/x*", named("a")))
	require.NoError(t, r.Register("**/x**", named("b")))
	require.NoError(t, r.Register("/items*", named("c")))

	assert.Equal(t, []string{"*/x*", "http://localhost:5173/items*"}, r.fetchPatterns())
}
