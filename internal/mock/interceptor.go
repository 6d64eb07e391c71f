package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/phuslu/log"

	"github.com/tomyan/uiverify/internal/chrome"
	"github.com/tomyan/uiverify/internal/harness"
)

// ErrInstalled is returned when rules are added to an installed Interceptor.
var ErrInstalled = errors.New("mock rules are frozen once installed")

// Page is the browser page requests are intercepted on.
type Page interface {
	// Navigated reports whether the page has started any navigation.
	Navigated() bool
	EnableFetch(ctx context.Context, patterns []string) (<-chan chrome.PausedRequest, func(), error)
	FulfillRequest(ctx context.Context, requestID string, status int, headers []chrome.HeaderEntry, body []byte) error
	ContinueRequest(ctx context.Context, requestID string) error
	FailRequest(ctx context.Context, requestID string, reason string) error
	// Record appends a line to the page's diagnostic log.
	Record(source, text string)
}

// Stats counts how paused requests were settled.
type Stats struct {
	Fulfilled int
	Failed    int
	Continued int
}

// Interceptor serves a Router's rules on one page. Rules are added with
// Handle before Install; Install must happen before the page first navigates.
type Interceptor struct {
	router *Router
	logger *log.Logger

	mu        sync.Mutex
	installed bool
	stats     Stats
	errs      []*harness.NetworkMockError

	cancel context.CancelFunc
	stop   func()
	wg     sync.WaitGroup
}

// NewInterceptor returns an Interceptor serving router.
func NewInterceptor(router *Router, logger *log.Logger) *Interceptor {
	return &Interceptor{router: router, logger: logger}
}

// Handle registers a rule.
func (i *Interceptor) Handle(pattern string, responder Responder) error {
	i.mu.Lock()
	installed := i.installed
	i.mu.Unlock()
	if installed {
		return fmt.Errorf("registering %q: %w", pattern, ErrInstalled)
	}
	return i.router.Register(pattern, responder)
}

// Install starts intercepting on page. It fails if the page has already
// navigated, since requests issued by that navigation could escape the mocks.
func (i *Interceptor) Install(ctx context.Context, page Page) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.installed {
		return &harness.SessionError{Op: "install mocks", Err: ErrInstalled}
	}
	if page.Navigated() {
		return &harness.SessionError{
			Op:  "install mocks",
			Err: errors.New("page has already navigated; mocks must be installed before the first navigation"),
		}
	}

	i.installed = true
	patterns := i.router.fetchPatterns()
	if len(patterns) == 0 {
		return nil
	}

	paused, stop, err := page.EnableFetch(ctx, patterns)
	if err != nil {
		return &harness.SessionError{Op: "install mocks", Err: err}
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel
	i.stop = stop

	for _, rule := range i.router.Rules() {
		i.logger.Debug().Str("pattern", rule.Pattern).Msg("mock installed")
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		for req := range paused {
			i.wg.Add(1)
			go func(req chrome.PausedRequest) {
				defer i.wg.Done()
				i.serve(serveCtx, page, req)
			}(req)
		}
	}()
	return nil
}

// Stop ends interception and waits for in-flight requests to be settled.
func (i *Interceptor) Stop() {
	i.mu.Lock()
	stop, cancel := i.stop, i.cancel
	i.stop, i.cancel = nil, nil
	i.mu.Unlock()

	if stop != nil {
		stop()
	}
	if cancel != nil {
		cancel()
	}
	i.wg.Wait()
}

// Stats returns the request counters.
func (i *Interceptor) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stats
}

// Err returns the first responder failure, or nil.
func (i *Interceptor) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.errs) == 0 {
		return nil
	}
	return i.errs[0]
}

// Errors returns every responder failure in order.
func (i *Interceptor) Errors() []*harness.NetworkMockError {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]*harness.NetworkMockError(nil), i.errs...)
}

func (i *Interceptor) serve(ctx context.Context, page Page, p chrome.PausedRequest) {
	rule, ok := i.router.Match(p.URL)
	if !ok {
		i.count(func(s *Stats) { s.Continued++ })
		if err := page.ContinueRequest(ctx, p.RequestID); err != nil {
			i.logger.Debug().Err(err).Str("url", p.URL).Msg("continue request failed")
		}
		return
	}

	req := Request{
		Method:       p.Method,
		URL:          p.URL,
		Headers:      p.Headers,
		PostData:     p.PostData,
		ResourceType: p.ResourceType,
	}

	if isPreflight(req) {
		i.count(func(s *Stats) { s.Fulfilled++ })
		i.logger.Debug().Str("pattern", rule.Pattern).Str("url", p.URL).Msg("preflight allowed")
		i.fulfill(ctx, page, p, preflight(req))
		return
	}

	enc, err := respond(ctx, rule.Responder, req)
	if err != nil {
		mockErr := &harness.NetworkMockError{Pattern: rule.Pattern, Method: p.Method, URL: p.URL, Err: err}
		i.mu.Lock()
		i.errs = append(i.errs, mockErr)
		i.stats.Failed++
		i.mu.Unlock()

		i.logger.Error().Err(err).Str("pattern", rule.Pattern).Str("url", p.URL).Msg("mock responder failed")
		page.Record("mock", mockErr.Error())
		if err := page.FailRequest(ctx, p.RequestID, chrome.ErrorReasonFailed); err != nil {
			i.logger.Debug().Err(err).Str("url", p.URL).Msg("fail request failed")
		}
		return
	}

	if origin := crossOrigin(req); origin != "" {
		enc = allowOrigin(enc, origin)
	}
	i.count(func(s *Stats) { s.Fulfilled++ })
	i.logger.Debug().Str("pattern", rule.Pattern).Str("url", p.URL).Int("status", enc.Status).Msg("request mocked")
	i.fulfill(ctx, page, p, enc)
}

func (i *Interceptor) fulfill(ctx context.Context, page Page, p chrome.PausedRequest, enc encoded) {
	headers := make([]chrome.HeaderEntry, len(enc.Headers))
	for n, h := range enc.Headers {
		headers[n] = chrome.HeaderEntry{Name: h.Name, Value: h.Value}
	}
	if err := page.FulfillRequest(ctx, p.RequestID, enc.Status, headers, enc.Body); err != nil {
		i.logger.Debug().Err(err).Str("url", p.URL).Msg("fulfill request failed")
	}
}

func (i *Interceptor) count(f func(*Stats)) {
	i.mu.Lock()
	f(&i.stats)
	i.mu.Unlock()
}

// respond runs the responder, turning a panic into an error.
func respond(ctx context.Context, responder Responder, req Request) (enc encoded, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("responder panic: %v", r)
		}
	}()

	resp, err := responder(ctx, req)
	if err != nil {
		return encoded{}, err
	}
	return resp.encode()
}
