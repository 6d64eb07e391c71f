package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyan/uiverify/internal/fixture"
	"github.com/tomyan/uiverify/internal/mock"
)

func TestRequestsScenarioFromEmbeddedFixture(t *testing.T) {
	set, err := fixture.LoadBytes(requestsFixture)
	require.NoError(t, err)

	sc := requestsScenario(set)
	assert.Equal(t, "requests", sc.Name)
	assert.False(t, sc.Ready.IsZero())
	require.NotNil(t, sc.Body)
	require.Len(t, sc.Mocks, 3)
	require.Len(t, sc.State, 2)

	assert.Equal(t, "user-storage", sc.State[0].Key)
	session, err := sc.State[0].Encode()
	require.NoError(t, err)
	var decoded struct {
		State struct {
			IsAuthenticated bool `json:"isAuthenticated"`
		} `json:"state"`
		Version int `json:"version"`
	}
	require.NoError(t, json.Unmarshal([]byte(session), &decoded))
	assert.True(t, decoded.State.IsAuthenticated)

	location, err := sc.State[1].Encode()
	require.NoError(t, err)
	assert.Equal(t, "1", location)
}

func TestRequestsMocksRouteBackendCalls(t *testing.T) {
	set, err := fixture.LoadBytes(requestsFixture)
	require.NoError(t, err)

	router := mock.NewRouter("http://localhost:5173")
	for _, rule := range set.Rules() {
		require.NoError(t, router.Register(rule.Pattern, rule.Responder))
	}

	cases := map[string]string{
		"https://abc.supabase.co/rest/v1/v_inventario_completo?select=*&offset=0": "**/rest/v1/v_inventario_completo*",
		"https://abc.supabase.co/rest/v1/usuarios_localizacion?id_usuario=eq.1":   "**/rest/v1/usuarios_localizacion*",
		"https://abc.supabase.co/rest/v1/localizacion?select=*":                   "**/rest/v1/localizacion*",
	}
	for url, pattern := range cases {
		rule, ok := router.Match(url)
		if assert.True(t, ok, url) {
			assert.Equal(t, pattern, rule.Pattern, url)
		}
	}
	_, ok := router.Match("https://abc.supabase.co/auth/v1/user")
	assert.False(t, ok)

	inventory, _ := router.Match("https://abc.supabase.co/rest/v1/v_inventario_completo?select=*")
	resp, err := inventory.Responder(context.Background(), mock.Request{Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, "0-1/2", resp.Headers["Content-Range"])
	body, err := json.Marshal(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"nombre":"Aceite Motor"`)
}
