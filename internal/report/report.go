// Package report captures failure evidence for a scenario run: a screenshot
// and a JSON-lines log of the cause and the browser's buffered console and
// page errors. Reporting never replaces the failure it reports.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/tomyan/uiverify/internal/session"
)

// captureTimeout bounds the screenshot taken after a failure. It runs on its
// own context because the run's context may already be cancelled.
const captureTimeout = 10 * time.Second

// Target is the page evidence is captured from.
type Target interface {
	Screenshot(ctx context.Context) ([]byte, error)
	Logs() []session.Entry
}

// Artifact records the evidence of one failed run.
type Artifact struct {
	RunID          string
	ScreenshotPath string // empty when the screenshot could not be taken
	LogPath        string
	CapturedAt     time.Time
	Cause          string
	CaptureError   string
}

// Reporter writes failure artifacts into a directory.
type Reporter struct {
	dir    string
	run    string
	logger *log.Logger

	mu        sync.Mutex
	artifacts []Artifact
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithRun stamps artifacts and the failure log with a run id.
func WithRun(id string) Option {
	return func(r *Reporter) { r.run = id }
}

// New returns a reporter writing into dir.
func New(dir string, logger *log.Logger, opts ...Option) *Reporter {
	r := &Reporter{dir: dir, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run calls fn and, if it fails or panics, reports the failure against
// target before returning the same error or re-panicking with the same
// value. target may be nil when there is no page to capture.
func (r *Reporter) Run(ctx context.Context, name string, target Target, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.Report(name, target, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err = fn(ctx); err != nil {
		r.Report(name, target, err)
	}
	return err
}

// Report captures evidence for cause and records the artifact. Capture
// problems are logged and noted on the artifact; they never surface as
// errors.
func (r *Reporter) Report(name string, target Target, cause error) Artifact {
	art := Artifact{
		RunID:      r.run,
		CapturedAt: time.Now(),
		Cause:      cause.Error(),
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		art.CaptureError = err.Error()
		r.logger.Error().Err(err).Str("dir", r.dir).Msg("creating artifacts directory")
	} else {
		art.ScreenshotPath, art.CaptureError = r.screenshot(name, target)
	}

	var entries []session.Entry
	if target != nil {
		entries = target.Logs()
	}
	if path, err := r.writeLog(name, art, entries); err != nil {
		r.logger.Error().Err(err).Msg("writing failure log")
	} else {
		art.LogPath = path
	}

	r.logger.Error().
		Str("scenario", name).
		Str("cause", art.Cause).
		Str("screenshot", art.ScreenshotPath).
		Str("log", art.LogPath).
		Msg("scenario failed")
	for _, e := range entries {
		r.logger.Warn().Str("scenario", name).Str("source", e.Source).Str("level", e.Level).Time("at", e.Time).Msg(e.Text)
	}

	r.mu.Lock()
	r.artifacts = append(r.artifacts, art)
	r.mu.Unlock()
	return art
}

func (r *Reporter) screenshot(name string, target Target) (string, string) {
	if target == nil {
		return "", "no page to capture"
	}
	ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
	defer cancel()

	data, err := target.Screenshot(ctx)
	if err != nil {
		r.logger.Error().Err(err).Str("scenario", name).Msg("failure screenshot not captured")
		return "", err.Error()
	}
	path := filepath.Join(r.dir, FileName(name)+"-failure.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger.Error().Err(err).Str("path", path).Msg("failure screenshot not written")
		return "", err.Error()
	}
	return path, ""
}

func (r *Reporter) writeLog(name string, art Artifact, entries []session.Entry) (string, error) {
	path := filepath.Join(r.dir, FileName(name)+"-failure.log")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := &log.Logger{Level: log.TraceLevel, Writer: &log.IOWriter{Writer: f}}
	w.Error().
		Str("run", art.RunID).
		Str("scenario", name).
		Str("screenshot", art.ScreenshotPath).
		Str("capture_error", art.CaptureError).
		Msg(art.Cause)
	for _, e := range entries {
		w.Info().Time("at", e.Time).Str("source", e.Source).Str("level", e.Level).Msg(e.Text)
	}
	return path, f.Sync()
}

// Snapshot writes a screenshot of target to <name>.png.
func (r *Reporter) Snapshot(ctx context.Context, target Target, name string) (string, error) {
	data, err := target.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(r.dir, FileName(name)+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	r.logger.Info().Str("path", path).Msg("screenshot saved")
	return path, nil
}

// Artifacts returns the artifacts recorded so far.
func (r *Reporter) Artifacts() []Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Artifact(nil), r.artifacts...)
}

// FileName turns a scenario name into a safe file name stem.
func FileName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	var b strings.Builder
	dash := false
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '.':
			b.WriteRune(c)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-.")
	if out == "" {
		return "scenario"
	}
	return out
}
