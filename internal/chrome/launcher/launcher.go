// Package launcher provides Chrome browser discovery, launching, and lifecycle management.
package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// ErrChromeNotFound is returned when no Chrome binary can be located.
var ErrChromeNotFound = errors.New("Chrome not found")

// LaunchOptions configures Chrome launching.
type LaunchOptions struct {
	ChromePath     string        // Path to Chrome binary (auto-detected if empty)
	Port           int           // Remote debugging port (a free port is picked if 0)
	Headless       bool          // Run in headless mode
	DataDir        string        // User data directory (temp dir created if empty)
	WindowWidth    int           // Viewport width, default 1280
	WindowHeight   int           // Viewport height, default 800
	ExtraArgs      []string      // Additional command line switches
	StartupTimeout time.Duration // How long to wait for the debug port, default 30s
}

// Instance represents a running Chrome instance.
type Instance struct {
	cmd      *exec.Cmd
	Port     int
	PID      int
	DataDir  string
	ownsData bool // true if we created the data dir and should clean it up
}

// FindChrome locates Chrome on the system. If chromePath is non-empty and exists,
// it is returned directly. Otherwise, searches PATH and known install locations.
func FindChrome(chromePath string) string {
	if chromePath != "" {
		if _, err := os.Stat(chromePath); err == nil {
			return chromePath
		}
		return ""
	}

	// Check PATH first
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	// Check known locations
	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "linux":
		paths = []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// FreePort asks the kernel for an unused TCP port on localhost.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// IsPortOpen checks if a TCP port is accepting connections.
func IsPortOpen(host string, port int) bool {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// WaitForPort waits for a TCP port to become available.
func WaitForPort(ctx context.Context, host string, port int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
		case <-ticker.C:
			if IsPortOpen(host, port) {
				return nil
			}
		}
	}
}

// Args builds the Chrome command line for the given options and resolved
// data directory.
func Args(opts LaunchOptions, dataDir string) []string {
	width, height := opts.WindowWidth, opts.WindowHeight
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 800
	}

	args := []string{
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-extensions",
		"--disable-background-networking",
		"--disable-sync",
		"--disable-translate",
		"--mute-audio",
		"--no-first-run",
		"--disable-default-apps",
		fmt.Sprintf("--window-size=%d,%d", width, height),
		fmt.Sprintf("--remote-debugging-port=%d", opts.Port),
		fmt.Sprintf("--user-data-dir=%s", dataDir),
	}
	if opts.Headless {
		args = append([]string{"--headless=new"}, args...)
	}
	args = append(args, opts.ExtraArgs...)
	return append(args, "about:blank")
}

// Launch starts a Chrome instance with the given options and waits for its
// debug port to accept connections.
func Launch(ctx context.Context, opts LaunchOptions) (*Instance, error) {
	chromePath := FindChrome(opts.ChromePath)
	if chromePath == "" {
		return nil, ErrChromeNotFound
	}

	if opts.Port == 0 {
		port, err := FreePort()
		if err != nil {
			return nil, err
		}
		opts.Port = port
	}

	ownsData := false
	dataDir := opts.DataDir
	if dataDir == "" {
		var err error
		dataDir, err = os.MkdirTemp("", "uiverify-chrome-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		ownsData = true
	}

	cmd := exec.Command(chromePath, Args(opts, dataDir)...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		if ownsData {
			os.RemoveAll(dataDir)
		}
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	inst := &Instance{
		cmd:      cmd,
		Port:     opts.Port,
		PID:      cmd.Process.Pid,
		DataDir:  dataDir,
		ownsData: ownsData,
	}

	timeout := opts.StartupTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := WaitForPort(ctx, "localhost", opts.Port, timeout); err != nil {
		inst.Stop()
		return nil, fmt.Errorf("Chrome failed to start: %w", err)
	}

	return inst, nil
}

// ChromeInfo contains version information from a running Chrome instance.
type ChromeInfo struct {
	Browser  string `json:"Browser"`
	Protocol string `json:"Protocol-Version"`
	V8       string `json:"V8-Version"`
	WebKit   string `json:"WebKit-Version"`
}

// DetectRunning checks if a Chrome debug port is responding and returns version info.
func DetectRunning(host string, port int) (*ChromeInfo, error) {
	url := fmt.Sprintf("http://%s/json/version", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("Chrome not reachable at %s:%d: %w", host, port, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var info ChromeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parsing version info: %w", err)
	}
	return &info, nil
}

// Stop terminates the Chrome instance and cleans up. It is safe to call more
// than once.
func (inst *Instance) Stop() error {
	if inst.cmd != nil && inst.cmd.Process != nil {
		inst.cmd.Process.Kill()
		inst.cmd.Wait()

		// Kill orphaned child processes
		if inst.DataDir != "" && runtime.GOOS != "windows" {
			killCmd := exec.Command("pkill", "-9", "-f", inst.DataDir)
			killCmd.Run()
		}
		inst.cmd = nil
	}
	if inst.ownsData && inst.DataDir != "" {
		time.Sleep(100 * time.Millisecond)
		os.RemoveAll(inst.DataDir)
		inst.DataDir = ""
	}
	return nil
}
