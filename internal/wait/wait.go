// Package wait polls the page until a condition holds or its time budget
// runs out.
//
// Each assertion starts PENDING, probes immediately and then at a fixed
// interval, and ends SATISFIED or TIMED_OUT. A timeout is always an error;
// there is no false success. A timeout cancels only the wait, never the
// session.
package wait

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/tomyan/uiverify/internal/chrome"
	"github.com/tomyan/uiverify/internal/harness"
	"github.com/tomyan/uiverify/internal/locator"
)

// probeGrace lets the last probe finish after the budget is spent, so a
// zero timeout still gets one answer from the page.
const probeGrace = time.Second

// Page is the page conditions are evaluated on.
type Page interface {
	locator.Evaluator
	URL(ctx context.Context) (string, error)
}

// Probe reports whether a condition currently holds.
type Probe func(ctx context.Context) (bool, error)

// Option modifies a single assertion.
type Option func(*settings)

type settings struct {
	timeout time.Duration
}

// Timeout overrides the default budget for one assertion. Zero means probe
// exactly once.
func Timeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// Waiter runs assertions against one page.
type Waiter struct {
	page     Page
	logger   *log.Logger
	timeout  time.Duration
	interval time.Duration
}

// New returns a Waiter with a default budget and poll interval.
func New(page Page, timeout, interval time.Duration, logger *log.Logger) *Waiter {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Waiter{page: page, logger: logger, timeout: timeout, interval: interval}
}

// ExpectVisible waits until at least one element matching loc is visible.
func (w *Waiter) ExpectVisible(ctx context.Context, loc locator.Locator, opts ...Option) error {
	return w.Until(ctx, loc.String(), "visible", func(ctx context.Context) (bool, error) {
		m, err := locator.Query(ctx, w.page, loc)
		return m.Visible > 0, err
	}, opts...)
}

// ExpectHidden waits until no element matching loc is visible.
func (w *Waiter) ExpectHidden(ctx context.Context, loc locator.Locator, opts ...Option) error {
	return w.Until(ctx, loc.String(), "hidden", func(ctx context.Context) (bool, error) {
		m, err := locator.Query(ctx, w.page, loc)
		return err == nil && m.Visible == 0, err
	}, opts...)
}

// ExpectText waits until a visible match of loc contains text.
func (w *Waiter) ExpectText(ctx context.Context, loc locator.Locator, text string, opts ...Option) error {
	want := strings.ToLower(text)
	return w.Until(ctx, loc.String(), fmt.Sprintf("containing %q", text), func(ctx context.Context) (bool, error) {
		m, err := locator.Query(ctx, w.page, loc)
		for _, have := range m.Texts {
			if strings.Contains(strings.ToLower(have), want) {
				return true, err
			}
		}
		return false, err
	}, opts...)
}

// ExpectCount waits until loc matches exactly n elements, visible or not.
func (w *Waiter) ExpectCount(ctx context.Context, loc locator.Locator, n int, opts ...Option) error {
	return w.Until(ctx, loc.String(), fmt.Sprintf("count %d", n), func(ctx context.Context) (bool, error) {
		m, err := locator.Query(ctx, w.page, loc)
		return err == nil && m.Count == n, err
	}, opts...)
}

// ExpectURL waits until the page URL contains substr.
func (w *Waiter) ExpectURL(ctx context.Context, substr string, opts ...Option) error {
	return w.Until(ctx, "url", fmt.Sprintf("containing %q", substr), func(ctx context.Context) (bool, error) {
		url, err := w.page.URL(ctx)
		return err == nil && strings.Contains(url, substr), err
	}, opts...)
}

// Until polls probe until it reports true. Probe errors are treated as
// transient (a navigation can destroy the evaluation context) and reported
// as the timeout's last error, except a lost browser connection or a locator
// the page rejects as malformed, which end the wait at once.
func (w *Waiter) Until(ctx context.Context, condition, predicate string, probe Probe, opts ...Option) error {
	s := settings{timeout: w.timeout}
	for _, opt := range opts {
		opt(&s)
	}
	timeout := s.timeout
	if timeout < 0 {
		timeout = 0
	}

	start := time.Now()
	deadline := start.Add(timeout)
	var lastErr error

	for {
		probeCtx, cancel := context.WithDeadline(ctx, deadline.Add(probeGrace))
		ok, err := probe(probeCtx)
		cancel()

		switch {
		case err != nil && (errors.Is(err, chrome.ErrConnectionClosed) || brokenLocator(err)):
			return err
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			lastErr = err
		case ok:
			w.logger.Debug().Str("condition", condition).Str("predicate", predicate).Dur("elapsed", time.Since(start)).Msg("condition satisfied")
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &harness.TimeoutError{
				Condition: condition,
				Predicate: predicate,
				Timeout:   timeout,
				Elapsed:   time.Since(start),
				LastErr:   lastErr,
			}
		}

		pause := w.interval
		if remaining < pause {
			pause = remaining
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// brokenLocator reports whether the page threw a SyntaxError, as it does for
// an invalid CSS selector. Polling cannot fix that.
func brokenLocator(err error) bool {
	var evalErr *chrome.EvalError
	return errors.As(err, &evalErr) && strings.HasPrefix(evalErr.Description, "SyntaxError")
}
