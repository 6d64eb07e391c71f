// Package scenario runs one verification scenario end to end: start an
// isolated browser session, install mocks, navigate, inject state, reload,
// run the scripted body and report any failure before closing the session.
package scenario

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/tomyan/uiverify/internal/chrome"
	"github.com/tomyan/uiverify/internal/config"
	"github.com/tomyan/uiverify/internal/driver"
	"github.com/tomyan/uiverify/internal/harness"
	"github.com/tomyan/uiverify/internal/locator"
	"github.com/tomyan/uiverify/internal/mock"
	"github.com/tomyan/uiverify/internal/report"
	"github.com/tomyan/uiverify/internal/session"
	"github.com/tomyan/uiverify/internal/state"
	"github.com/tomyan/uiverify/internal/wait"
)

// Scenario describes one run.
type Scenario struct {
	Name string
	// Path is resolved against the base URL; empty means the base URL itself.
	Path  string
	Mocks []mock.Rule
	State []state.Entry
	// Ready, when set, must become visible within the boot timeout after
	// the post-injection reload.
	Ready locator.Locator
	Body  func(ctx context.Context, env *Env) error
}

// Env is what a scenario body works with.
type Env struct {
	RunID    string
	BaseURL  string
	Timeouts config.Durations
	Logger   *log.Logger

	Session *session.Session
	Mocks   *mock.Interceptor
	State   *state.Injector
	Driver  *driver.Driver
	Wait    *wait.Waiter

	reporter *report.Reporter
}

// Snapshot saves a screenshot of the page as <name>.png in the artifacts
// directory.
func (e *Env) Snapshot(ctx context.Context, name string) (string, error) {
	return e.reporter.Snapshot(ctx, e.Session, name)
}

// URL resolves path against the base URL.
func (e *Env) URL(path string) string {
	return resolve(e.BaseURL, path)
}

// Result describes a finished run.
type Result struct {
	RunID    string
	Scenario string
	States   []harness.State
	Mocks    mock.Stats
	Artifact *report.Artifact
	Duration time.Duration
	Err      error
}

// Runner executes scenarios, each in a fresh session.
type Runner struct {
	cfg      *config.Config
	timeouts config.Durations
	logger   *log.Logger

	mu        sync.Mutex
	artifacts []report.Artifact
}

// NewRunner validates cfg and returns a Runner.
func NewRunner(cfg *config.Config, logger *log.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := cfg.Durations()
	if err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, timeouts: d, logger: logger}, nil
}

// Artifacts returns the failure artifacts of every run so far.
func (r *Runner) Artifacts() []report.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]report.Artifact(nil), r.artifacts...)
}

// Run executes sc. The returned error is the run's first failure, unchanged;
// the Result is always non-nil.
func (r *Runner) Run(ctx context.Context, sc Scenario) (*Result, error) {
	runID := uuid.NewString()
	logger := r.runLogger(runID, sc.Name)
	reporter := report.New(r.cfg.ArtifactsDir, logger, report.WithRun(runID))

	res := &Result{RunID: runID, Scenario: sc.Name}
	started := time.Now()
	machine := harness.NewMachine()
	env := &Env{
		RunID:    runID,
		BaseURL:  r.cfg.BaseURL,
		Timeouts: r.timeouts,
		Logger:   logger,
		reporter: reporter,
	}

	logger.Info().Str("url", env.URL(sc.Path)).Msg("run starting")
	err := r.execute(ctx, sc, env, machine, logger)
	if err != nil {
		advance(machine, logger, harness.StateFailed)
		var target report.Target
		if env.Session != nil {
			target = env.Session
		}
		art := reporter.Report(sc.Name, target, err)
		res.Artifact = &art
		r.mu.Lock()
		r.artifacts = append(r.artifacts, art)
		r.mu.Unlock()
	} else {
		advance(machine, logger, harness.StateDone)
	}

	if env.Mocks != nil {
		env.Mocks.Stop()
		res.Mocks = env.Mocks.Stats()
	}
	if env.Session != nil {
		if cerr := env.Session.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("closing session")
		}
	}
	advance(machine, logger, harness.StateClosed)

	res.States = machine.History()
	res.Duration = time.Since(started)
	res.Err = err
	if err == nil {
		logger.Info().Dur("elapsed", res.Duration).
			Int("mocked", res.Mocks.Fulfilled).
			Int("passed_through", res.Mocks.Continued).
			Msg("run passed")
	}
	return res, err
}

func (r *Runner) execute(ctx context.Context, sc Scenario, env *Env, machine *harness.Machine, logger *log.Logger) error {
	sess, err := session.Start(ctx, r.sessionOptions(logger))
	if err != nil {
		return err
	}
	env.Session = sess
	advance(machine, logger, harness.StateSessionStarted)

	env.Mocks = mock.NewInterceptor(mock.NewRouter(r.cfg.BaseURL), logger)
	for _, rule := range sc.Mocks {
		if err := env.Mocks.Handle(rule.Pattern, rule.Responder); err != nil {
			return &harness.NetworkMockError{Pattern: rule.Pattern, Err: err}
		}
	}
	if err := env.Mocks.Install(ctx, sess); err != nil {
		return err
	}

	env.State, err = state.NewInjector(sess, r.cfg.BaseURL, chrome.StorageArea(r.cfg.State.Store), logger)
	if err != nil {
		return err
	}
	if err := sess.Navigate(ctx, env.URL(sc.Path)); err != nil {
		return err
	}
	if err := env.State.Inject(ctx, sc.State...); err != nil {
		return err
	}
	if err := sess.Reload(ctx); err != nil {
		return err
	}
	advance(machine, logger, harness.StateStateInjected)

	env.Driver = driver.New(sess, logger)
	env.Wait = wait.New(sess, r.timeouts.Default, r.timeouts.PollInterval, logger)
	if !sc.Ready.IsZero() {
		if err := env.Wait.ExpectVisible(ctx, sc.Ready, wait.Timeout(r.timeouts.Boot)); err != nil {
			return err
		}
	}
	advance(machine, logger, harness.StateInteracting)

	if sc.Body != nil {
		if err := runBody(ctx, sc.Body, env); err != nil {
			return err
		}
	}
	return env.Mocks.Err()
}

func runBody(ctx context.Context, body func(context.Context, *Env) error, env *Env) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scenario panicked: %v", p)
		}
	}()
	return body(ctx, env)
}

func (r *Runner) sessionOptions(logger *log.Logger) session.Options {
	b := r.cfg.Browser
	return session.Options{
		Connect:           b.Connect,
		ChromePath:        b.ChromePath,
		Headless:          b.Headless,
		Port:              b.Port,
		LaunchTimeout:     r.timeouts.LaunchTimeout,
		WindowWidth:       b.WindowWidth,
		WindowHeight:      b.WindowHeight,
		NavigationTimeout: r.timeouts.Navigation,
		NetworkIdle:       r.timeouts.NetworkIdle,
		ConsoleBuffer:     r.cfg.Log.ConsoleBuffer,
		Logger:            logger,
	}
}

func (r *Runner) runLogger(runID, name string) *log.Logger {
	l := *r.logger
	l.Context = log.NewContext(nil).Str("run", runID).Str("scenario", name).Value()
	return &l
}

func advance(m *harness.Machine, logger *log.Logger, s harness.State) {
	if err := m.To(s); err != nil {
		logger.Error().Err(err).Msg("run state")
		return
	}
	logger.Debug().Str("state", s.String()).Msg("run state")
}

func resolve(base, path string) string {
	if path == "" {
		return base
	}
	if strings.Contains(path, "://") {
		return path
	}
	b, err := url.Parse(base)
	if err != nil {
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	ref, err := url.Parse(path)
	if err != nil {
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	return b.ResolveReference(ref).String()
}
