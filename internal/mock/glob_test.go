package mock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileGlob(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"**/rest/v1/v_inventario_completo*", "http://localhost:5173/rest/v1/v_inventario_completo?select=*", true},
		{"**/rest/v1/v_inventario_completo*", "https://x.supabase.co/rest/v1/v_inventario_completo", true},
		{"**/rest/v1/v_inventario_completo*", "http://localhost:5173/rest/v1/localizacion", false},
		{"**/items*", "http://localhost:5173/items?page=1", true},
		{"**/items*", "http://localhost:5173/items/1", false},
		{"**/items/**", "http://localhost:5173/items/1/parts", true},
		{"http://host/a?c", "http://host/abc", true},
		{"http://host/a?c", "http://host/a/c", false},
		{"**/{users,roles}", "http://host/api/roles", true},
		{"**/{users,roles}", "http://host/api/teams", false},
		{"**/a,b", "http://host/a,b", true},
		{`**/literal\*`, "http://host/literal*", true},
		{`**/literal\*`, "http://host/literalx", false},
		{"**/api/(v1)", "http://host/api/(v1)", true},
		{"**/datos/ñandú*", "http://host/datos/ñandú.json", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.url, func(t *testing.T) {
			re, err := compileGlob(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, re.MatchString(tt.url))
		})
	}
}

func TestCompileGlobRejectsMalformed(t *testing.T) {
	for _, pattern := range []string{"", "**/{a,b", "**/a}", "**/{a,{b}}", `**/a\`} {
		t.Run(pattern, func(t *testing.T) {
			_, err := compileGlob(pattern)
			assert.Error(t, err)
		})
	}
}

func TestFetchPattern(t *testing.T) {
	assert.Equal(t, "*/rest/v1/x*", fetchPattern("**/rest/v1/x*"))
	assert.Equal(t, "*/api/*", fetchPattern("**/api/{users,roles}"))
	assert.Equal(t, "http://h/a?c", fetchPattern("http://h/a?c"))
	assert.Equal(t, `*/lit\*`, fetchPattern(`**/lit\*`))
}

func TestResolvePattern(t *testing.T) {
	base := "http://localhost:5173/"
	assert.Equal(t, "http://localhost:5173/items*", resolvePattern(base, "/items*"))
	assert.Equal(t, "http://localhost:5173/items*", resolvePattern(base, "items*"))
	assert.Equal(t, "**/items*", resolvePattern(base, "**/items*"))
	assert.Equal(t, "https://api.example.com/*", resolvePattern(base, "https://api.example.com/*"))
	assert.Equal(t, "/items*", resolvePattern("", "/items*"))
	assert.Equal(t, "http://h/x", resolvePattern("http://h/a?b", "x"))
}

func TestResolvePatternBaseWithPath(t *testing.T) {
	cases := []struct{ base, pattern, want string }{
		{"http://h/app", "/items*", "http://h/items*"},
		{"http://h/app", "items*", "http://h/items*"},
		{"http://h/app/", "items*", "http://h/app/items*"},
		{"http://h/app/", "/items*", "http://h/items*"},
		{"http://h:8080/a/b", "c/{d,e}", "http://h:8080/a/c/{d,e}"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, resolvePattern(c.base, c.pattern), "resolvePattern(%q, %q)", c.base, c.pattern)
	}
}
