// Package cli is the shared entry point of the verify-* binaries: flags,
// config, logging, running one scenario and reporting the outcome as an exit
// code.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomyan/uiverify/internal/config"
	"github.com/tomyan/uiverify/internal/fixture"
	"github.com/tomyan/uiverify/internal/harness"
	"github.com/tomyan/uiverify/internal/logging"
	"github.com/tomyan/uiverify/internal/scenario"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
)

// Program describes one verify-* binary.
type Program struct {
	Name string
	// Fixture is the YAML fixture embedded in the binary. The -fixture flag
	// replaces it.
	Fixture []byte
	Build   func(set *fixture.Set) scenario.Scenario

	Stdout io.Writer
	Stderr io.Writer
}

type flagValues struct {
	config    string
	fixture   string
	baseURL   string
	artifacts string
	connect   string
	headless  bool
	logLevel  string
}

// Main runs p with the process arguments and exits.
func Main(p Program) {
	if p.Stdout == nil {
		p.Stdout = os.Stdout
	}
	if p.Stderr == nil {
		p.Stderr = os.Stderr
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, p, os.Args[1:])
	stop()
	os.Exit(code)
}

// Run parses args, runs the scenario and returns the exit code.
func Run(ctx context.Context, p Program, args []string) int {
	var fv flagValues
	fs := flag.NewFlagSet(p.Name, flag.ContinueOnError)
	fs.SetOutput(p.Stderr)
	fs.StringVar(&fv.config, "config", "", "Config file (env: UIVERIFY_CONFIG)")
	fs.StringVar(&fv.fixture, "fixture", "", "YAML fixture replacing the built-in one")
	fs.StringVar(&fv.baseURL, "base-url", "", "Application base URL (env: UIVERIFY_BASE_URL)")
	fs.StringVar(&fv.artifacts, "artifacts", "", "Artifacts directory (env: UIVERIFY_ARTIFACTS_DIR)")
	fs.StringVar(&fv.connect, "connect", "", "host:port of a running Chrome (env: UIVERIFY_CONNECT)")
	fs.BoolVar(&fv.headless, "headless", true, "Run Chrome headless (env: UIVERIFY_HEADLESS)")
	fs.StringVar(&fv.logLevel, "log-level", "", "trace, debug, info, warn or error (env: UIVERIFY_LOG_LEVEL)")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitError
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(p.Stderr, "%s: unexpected arguments: %v\n", p.Name, fs.Args())
		return ExitError
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	cfg, err := config.Load(fv.config)
	if err != nil {
		fmt.Fprintf(p.Stderr, "%s: %v\n", p.Name, err)
		return ExitError
	}
	applyFlags(cfg, &fv, explicit)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(p.Stderr, "%s: %v\n", p.Name, err)
		return ExitError
	}

	var set *fixture.Set
	if fv.fixture != "" {
		set, err = fixture.LoadFile(fv.fixture)
	} else {
		set, err = fixture.LoadBytes(p.Fixture)
	}
	if err != nil {
		fmt.Fprintf(p.Stderr, "%s: %v\n", p.Name, err)
		return ExitError
	}

	logger := logging.New(cfg.Log.Level, p.Stderr)
	runner, err := scenario.NewRunner(cfg, logger)
	if err != nil {
		fmt.Fprintf(p.Stderr, "%s: %v\n", p.Name, err)
		return ExitError
	}

	sc := p.Build(set)
	if sc.Name == "" {
		sc.Name = p.Name
	}
	res, err := runner.Run(ctx, sc)
	if err != nil {
		fmt.Fprintf(p.Stderr, "%s: FAILED [%s]: %v\n", p.Name, harness.Kind(err), err)
		if res.Artifact != nil {
			if res.Artifact.ScreenshotPath != "" {
				fmt.Fprintf(p.Stderr, "screenshot: %s\n", res.Artifact.ScreenshotPath)
			}
			if res.Artifact.LogPath != "" {
				fmt.Fprintf(p.Stderr, "log: %s\n", res.Artifact.LogPath)
			}
		}
		return ExitError
	}

	fmt.Fprintf(p.Stdout, "%s: ok (run %s, %s)\n", p.Name, res.RunID, res.Duration.Round(time.Millisecond))
	return ExitSuccess
}

// applyFlags puts explicitly set flags on top of file and env settings.
func applyFlags(cfg *config.Config, fv *flagValues, explicit map[string]bool) {
	if explicit["base-url"] {
		cfg.BaseURL = fv.baseURL
	}
	if explicit["artifacts"] {
		cfg.ArtifactsDir = fv.artifacts
	}
	if explicit["connect"] {
		cfg.Browser.Connect = fv.connect
	}
	if explicit["headless"] {
		cfg.Browser.Headless = fv.headless
	}
	if explicit["log-level"] {
		cfg.Log.Level = fv.logLevel
	}
}
