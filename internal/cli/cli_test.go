package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyan/uiverify/internal/fixture"
	"github.com/tomyan/uiverify/internal/harness"
	"github.com/tomyan/uiverify/internal/scenario"
	"github.com/tomyan/uiverify/internal/testutil"
)

const base = "http://localhost:5173"

const testFixture = `
mocks:
  - pattern: "**/rest/v1/items*"
    body: []
state:
  - key: user-storage
    value: {isAuthenticated: true}
`

// isolate runs the test in an empty directory with no config file or
// UIVERIFY_* variables in effect except a fast network idle window.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	for _, name := range []string{
		"UIVERIFY_CONFIG", "UIVERIFY_BASE_URL", "UIVERIFY_ARTIFACTS_DIR",
		"UIVERIFY_HEADLESS", "UIVERIFY_CHROME_PATH", "UIVERIFY_CONNECT",
		"UIVERIFY_LOG_LEVEL", "UIVERIFY_DEFAULT_TIMEOUT",
	} {
		t.Setenv(name, "")
	}
	require.NoError(t, os.WriteFile("uiverify.toml", []byte("[timeouts]\nnetwork_idle = \"10ms\"\n"), 0o644))
	return dir
}

func fakeBrowser(t *testing.T) *testutil.FakeBrowser {
	fb := testutil.NewFakeBrowser(t)
	fb.Handle("Runtime.evaluate", func(c testutil.Call) (interface{}, error) {
		var p struct {
			Expression string `json:"expression"`
		}
		json.Unmarshal(c.Params, &p)
		value := interface{}(true)
		typ := "boolean"
		if strings.Contains(p.Expression, "document.location.href") {
			value, typ = base+"/", "string"
		}
		return map[string]interface{}{"result": map[string]interface{}{"type": typ, "value": value}}, nil
	})
	fb.Handle("Page.captureScreenshot", func(testutil.Call) (interface{}, error) {
		return map[string]string{"data": base64.StdEncoding.EncodeToString([]byte("png"))}, nil
	})
	return fb
}

func program(body func(ctx context.Context, env *scenario.Env) error) (Program, *bytes.Buffer, *bytes.Buffer, *fixture.Set) {
	var stdout, stderr bytes.Buffer
	var loaded fixture.Set
	return Program{
		Name:    "verify-test",
		Fixture: []byte(testFixture),
		Build: func(set *fixture.Set) scenario.Scenario {
			loaded = *set
			return scenario.Scenario{Mocks: set.Rules(), State: set.Entries(), Body: body}
		},
		Stdout: &stdout,
		Stderr: &stderr,
	}, &stdout, &stderr, &loaded
}

func TestRunSuccess(t *testing.T) {
	isolate(t)
	fb := fakeBrowser(t)
	p, stdout, stderr, loaded := program(nil)

	code := Run(context.Background(), p, []string{"-connect", fb.Addr(), "-base-url", base, "-log-level", "error"})
	assert.Equal(t, ExitSuccess, code, stderr.String())
	assert.Contains(t, stdout.String(), "verify-test: ok (run ")
	assert.Len(t, loaded.Mocks, 1)
	assert.NotEmpty(t, fb.Calls("Fetch.enable"))
}

func TestRunFailurePrintsSummary(t *testing.T) {
	dir := isolate(t)
	fb := fakeBrowser(t)
	p, stdout, stderr, _ := program(func(ctx context.Context, env *scenario.Env) error {
		return &harness.LocatorResolutionError{Action: "click", Locator: `role=button[name="Solicitar"]`, Reason: harness.ReasonNone}
	})

	code := Run(context.Background(), p, []string{"-connect", fb.Addr(), "-base-url", base, "-artifacts", "out", "-log-level", "error"})
	assert.Equal(t, ExitError, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "verify-test: FAILED [locator]")
	assert.Contains(t, stderr.String(), "screenshot: out/verify-test-failure.png")
	assert.FileExists(t, filepath.Join(dir, "out", "verify-test-failure.png"))
}

func TestRunFixtureOverride(t *testing.T) {
	dir := isolate(t)
	fb := fakeBrowser(t)
	path := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state:\n  - key: a\n    value: b\n"), 0o644))
	p, _, stderr, loaded := program(nil)

	code := Run(context.Background(), p, []string{"-fixture", path, "-connect", fb.Addr(), "-base-url", base, "-log-level", "error"})
	require.Equal(t, ExitSuccess, code, stderr.String())
	assert.Empty(t, loaded.Mocks)
	require.Len(t, loaded.State, 1)
	assert.Equal(t, "a", loaded.State[0].Key)
	assert.Empty(t, fb.Calls("Fetch.enable"))
}

func TestRunUsageErrors(t *testing.T) {
	isolate(t)
	cases := map[string][]string{
		"unknown flag":     {"-nope"},
		"positional args":  {"extra"},
		"invalid base url": {"-base-url", "::"},
		"bad log level":    {"-log-level", "loud"},
		"missing config":   {"-config", "absent.toml"},
		"missing fixture":  {"-fixture", "absent.yaml"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			p, _, stderr, _ := program(func(context.Context, *scenario.Env) error {
				return errors.New("must not run")
			})
			assert.Equal(t, ExitError, Run(context.Background(), p, args))
			assert.NotEmpty(t, stderr.String())
		})
	}
}

func TestRunHelp(t *testing.T) {
	isolate(t)
	p, _, stderr, _ := program(nil)
	assert.Equal(t, ExitSuccess, Run(context.Background(), p, []string{"-h"}))
	assert.Contains(t, stderr.String(), "-base-url")
}
