// Package session owns one browser and one isolated page for the lifetime of
// a scenario run.
//
// A page is ready after a navigation or reload once its load event has fired
// and no network request has been in flight for the configured idle window.
// Waiting for the load event alone lets the app's first data fetches race the
// assertions that follow.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/tomyan/uiverify/internal/chrome"
	"github.com/tomyan/uiverify/internal/chrome/launcher"
	"github.com/tomyan/uiverify/internal/harness"
	"github.com/tomyan/uiverify/internal/logging"
)

// Options configures a Session.
type Options struct {
	// Connect is the host:port of an already running Chrome. When empty a
	// new Chrome is launched.
	Connect       string
	ChromePath    string
	Headless      bool
	Port          int
	LaunchTimeout time.Duration
	WindowWidth   int
	WindowHeight  int

	NavigationTimeout time.Duration
	NetworkIdle       time.Duration
	ConsoleBuffer     int

	Logger *log.Logger
}

// Session is one browser context with a single page.
type Session struct {
	opts   Options
	logger *log.Logger
	logs   *LogBuffer

	inst      *launcher.Instance
	client    *chrome.Client
	contextID string
	targetID  string

	captures []func()
	wg       sync.WaitGroup

	mu           sync.Mutex
	navigated    bool
	statePending bool

	closeOnce sync.Once
	closeErr  error
}

// Start obtains a browser, creates an isolated context and page in it and
// begins buffering console output and uncaught page errors. On failure
// everything acquired so far is released.
func Start(ctx context.Context, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	s := &Session{
		opts:   opts,
		logger: opts.Logger,
		logs:   NewLogBuffer(opts.ConsoleBuffer),
	}
	if err := s.start(ctx); err != nil {
		s.Close()
		return nil, harness.NewSessionError("start", err)
	}
	return s, nil
}

func (s *Session) start(ctx context.Context) error {
	host, port := "localhost", 0
	if s.opts.Connect != "" {
		h, p, err := net.SplitHostPort(s.opts.Connect)
		if err != nil {
			return fmt.Errorf("invalid connect address %q: %w", s.opts.Connect, err)
		}
		if port, err = strconv.Atoi(p); err != nil {
			return fmt.Errorf("invalid connect port %q: %w", p, err)
		}
		host = h
	} else {
		inst, err := launcher.Launch(ctx, launcher.LaunchOptions{
			ChromePath:     s.opts.ChromePath,
			Port:           s.opts.Port,
			Headless:       s.opts.Headless,
			WindowWidth:    s.opts.WindowWidth,
			WindowHeight:   s.opts.WindowHeight,
			StartupTimeout: s.opts.LaunchTimeout,
		})
		if err != nil {
			return err
		}
		s.inst = inst
		port = inst.Port
		s.logger.Debug().Int("pid", inst.PID).Int("port", inst.Port).Msg("chrome launched")
	}

	client, err := chrome.Connect(ctx, host, port)
	if err != nil {
		return err
	}
	s.client = client

	if s.contextID, err = client.CreateBrowserContext(ctx); err != nil {
		return err
	}
	if s.targetID, err = client.NewPage(ctx, s.contextID); err != nil {
		return err
	}

	console, stopConsole, err := client.CaptureConsole(ctx, s.targetID)
	if err != nil {
		return err
	}
	s.captures = append(s.captures, stopConsole)

	exceptions, stopExceptions, err := client.CaptureExceptions(ctx, s.targetID)
	if err != nil {
		return err
	}
	s.captures = append(s.captures, stopExceptions)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		for msg := range console {
			s.logs.Add(Entry{Source: "console", Level: msg.Type, Text: msg.Text})
			s.logger.Debug().Str("type", msg.Type).Str("text", msg.Text).Msg("browser console")
		}
	}()
	go func() {
		defer s.wg.Done()
		for exc := range exceptions {
			s.logs.Add(Entry{Source: "pageerror", Text: exc.Text})
			s.logger.Warn().Str("text", exc.Text).Str("url", exc.URL).Int("line", exc.LineNumber).Msg("page error")
		}
	}()

	s.logger.Info().Str("target", s.targetID).Str("context", s.contextID).Msg("browser session started")
	return nil
}

func (s *Session) ready() chrome.ReadyOptions {
	return chrome.ReadyOptions{
		NetworkIdle: s.opts.NetworkIdle,
		Timeout:     s.opts.NavigationTimeout,
	}
}

// Navigate loads url and waits until the page is ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.navigated = true
	s.mu.Unlock()

	start := time.Now()
	if _, err := s.client.NavigateAndWait(ctx, s.targetID, url, s.ready()); err != nil {
		return &harness.SessionError{Op: "navigate", Err: err}
	}
	s.logger.Info().Str("url", url).Dur("elapsed", time.Since(start)).Msg("navigated")
	return nil
}

// Reload reloads the page and waits until it is ready. State written since
// the last load becomes visible to the app.
func (s *Session) Reload(ctx context.Context) error {
	start := time.Now()
	if err := s.client.Reload(ctx, s.targetID, false, s.ready()); err != nil {
		return &harness.SessionError{Op: "reload", Err: err}
	}

	s.mu.Lock()
	s.statePending = false
	s.mu.Unlock()

	s.logger.Info().Dur("elapsed", time.Since(start)).Msg("reloaded")
	return nil
}

// Evaluate runs script in the page and returns its JSON value. With no args
// code is an expression; with args it must be a function expression, which
// is applied to the JSON-encoded args. Promises are awaited.
func (s *Session) Evaluate(ctx context.Context, code string, args ...interface{}) (interface{}, error) {
	var (
		result *chrome.EvalResult
		err    error
	)
	if len(args) == 0 {
		result, err = s.client.Eval(ctx, s.targetID, code)
	} else {
		result, err = s.client.EvalFunction(ctx, s.targetID, code, args...)
	}
	if err != nil {
		return nil, &harness.SessionError{Op: "evaluate", Err: err}
	}
	return result.Value, nil
}

// URL returns the page's current URL.
func (s *Session) URL(ctx context.Context) (string, error) {
	url, err := s.client.GetURL(ctx, s.targetID)
	if err != nil {
		return "", &harness.SessionError{Op: "read url", Err: err}
	}
	return url, nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if s.client == nil {
		return nil, &harness.SessionError{Op: "screenshot", Err: chrome.ErrConnectionClosed}
	}
	data, err := s.client.Screenshot(ctx, s.targetID, chrome.ScreenshotOptions{Format: "png"})
	if err != nil {
		return nil, &harness.SessionError{Op: "screenshot", Err: err}
	}
	return data, nil
}

// Logs returns the buffered console, page error and mock entries.
func (s *Session) Logs() []Entry {
	return s.logs.Entries()
}

// Record appends a line to the log buffer.
func (s *Session) Record(source, text string) {
	s.logs.Add(Entry{Source: source, Text: text})
}

// Navigated reports whether a navigation has been started.
func (s *Session) Navigated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigated
}

// MarkStatePending records that client-side state was written and will only
// be seen by the app after the next reload.
func (s *Session) MarkStatePending() {
	s.mu.Lock()
	s.statePending = true
	s.mu.Unlock()
}

// StatePending reports whether written state is still waiting for a reload.
func (s *Session) StatePending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statePending
}

// TargetID returns the page's target ID.
func (s *Session) TargetID() string {
	return s.targetID
}

// Close releases the page, its browser context, the connection and a
// launched browser. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		for _, stop := range s.captures {
			stop()
		}
		s.wg.Wait()

		var errs []error
		if s.client != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if s.contextID != "" {
				if err := s.client.DisposeBrowserContext(ctx, s.contextID); err != nil && !errors.Is(err, chrome.ErrConnectionClosed) {
					errs = append(errs, err)
				}
			}
			cancel()
			if err := s.client.Close(); err != nil {
				s.logger.Debug().Err(err).Msg("closing devtools connection")
			}
		}
		if s.inst != nil {
			if err := s.inst.Stop(); err != nil {
				errs = append(errs, err)
			}
		}

		if err := errors.Join(errs...); err != nil {
			s.closeErr = &harness.SessionError{Op: "close", Err: err}
			s.logger.Warn().Err(err).Msg("browser session closed with errors")
			return
		}
		s.logger.Info().Msg("browser session closed")
	})
	return s.closeErr
}
