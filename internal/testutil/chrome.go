// Package testutil provides helpers shared by the harness tests: a real
// Chrome for integration tests, a scripted fake DevTools endpoint for unit
// tests and a small web app to drive.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/tomyan/uiverify/internal/chrome/launcher"
)

// RequireChrome returns the path of the local Chrome binary, skipping the
// test when -short is set or Chrome is not installed.
func RequireChrome(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	path := launcher.FindChrome("")
	if path == "" {
		t.Skip("Chrome not installed")
	}
	return path
}

// StartChrome launches a headless Chrome on a free port. It is stopped when
// the test finishes.
func StartChrome(t testing.TB) *launcher.Instance {
	t.Helper()
	path := RequireChrome(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inst, err := launcher.Launch(ctx, launcher.LaunchOptions{
		ChromePath:     path,
		Headless:       true,
		StartupTimeout: 20 * time.Second,
	})
	if err != nil {
		t.Fatalf("starting Chrome: %v", err)
	}
	t.Cleanup(func() { inst.Stop() })
	return inst
}
