// Package driver performs scripted UI actions against located elements.
//
// Every action resolves its locator once to exactly one visible, enabled
// element; anything else fails with a LocatorResolutionError rather than
// acting on an arbitrary match. Actions do not wait: callers assert the
// element is there with the wait package first.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/phuslu/log"

	"github.com/tomyan/uiverify/internal/harness"
	"github.com/tomyan/uiverify/internal/locator"
)

// Page is the page actions are dispatched to.
type Page interface {
	locator.Evaluator
	ClickAt(ctx context.Context, x, y float64) error
	MoveMouse(ctx context.Context, x, y float64) error
	InsertText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key string) error
}

// Option modifies a single action.
type Option func(*options)

type options struct {
	force bool
}

// Force skips the check that nothing covers the element. A forced click that
// would land on another element is dispatched as a DOM click on the target
// instead. Use it only for known transient overlays.
func Force() Option {
	return func(o *options) { o.force = true }
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Driver performs actions on one page.
type Driver struct {
	page   Page
	logger *log.Logger

	// OptionWait bounds how long SelectOption waits for a custom combobox's
	// options to render after opening it.
	OptionWait   time.Duration
	PollInterval time.Duration
}

// New returns a driver for page.
func New(page Page, logger *log.Logger) *Driver {
	return &Driver{
		page:         page,
		logger:       logger,
		OptionWait:   2 * time.Second,
		PollInterval: 50 * time.Millisecond,
	}
}

// Click clicks the centre of the element.
func (d *Driver) Click(ctx context.Context, loc locator.Locator, opts ...Option) error {
	return d.click(ctx, "click", loc, collect(opts))
}

func (d *Driver) click(ctx context.Context, action string, loc locator.Locator, o options) error {
	target, err := d.apply(ctx, action, loc, locator.Op{Kind: "click", Force: o.force})
	if err != nil {
		return err
	}
	if target.Dispatched {
		d.logger.Warn().Str("locator", loc.String()).Str("covered_by", target.ObscuredBy).Msg("forced click dispatched to element")
		return nil
	}
	if err := d.page.ClickAt(ctx, target.X, target.Y); err != nil {
		return err
	}
	d.logger.Debug().Str("locator", loc.String()).Msg(action)
	return nil
}

// Hover moves the pointer over the element.
func (d *Driver) Hover(ctx context.Context, loc locator.Locator, opts ...Option) error {
	target, err := d.apply(ctx, "hover", loc, locator.Op{Kind: "hover", Force: collect(opts).force})
	if err != nil {
		return err
	}
	if target.Dispatched {
		return nil
	}
	return d.page.MoveMouse(ctx, target.X, target.Y)
}

// Fill replaces the contents of an editable element with text, as typed.
func (d *Driver) Fill(ctx context.Context, loc locator.Locator, text string, opts ...Option) error {
	_, err := d.apply(ctx, "fill", loc, locator.Op{Kind: "fill", Force: collect(opts).force, Clear: text == ""})
	if err != nil {
		return err
	}
	if text != "" {
		if err := d.page.InsertText(ctx, text); err != nil {
			return err
		}
	}
	d.logger.Debug().Str("locator", loc.String()).Int("length", len(text)).Msg("fill")
	return nil
}

// SelectOption picks option in the element at loc. For a native <select> the
// option locator is resolved within it. Anything else is treated as a custom
// combobox: it is clicked open and the option, resolved across the page, is
// clicked.
func (d *Driver) SelectOption(ctx context.Context, loc, option locator.Locator, opts ...Option) error {
	o := collect(opts)
	target, err := d.apply(ctx, "select", loc, locator.Op{Kind: "select", Force: o.force, Option: option})
	if err != nil {
		return err
	}

	if target.Native {
		if target.OptionStatus != "ok" {
			return &harness.LocatorResolutionError{
				Action:  "select option",
				Locator: option.String(),
				Reason:  reason(target.OptionStatus),
				Count:   target.OptionCount,
				Detail:  "in " + loc.String(),
			}
		}
		d.logger.Debug().Str("locator", loc.String()).Str("selected", target.Selected).Msg("select")
		return nil
	}

	if target.Dispatched {
		d.logger.Warn().Str("locator", loc.String()).Str("covered_by", target.ObscuredBy).Msg("forced click dispatched to element")
	} else if err := d.page.ClickAt(ctx, target.X, target.Y); err != nil {
		return err
	}
	return d.clickOption(ctx, option)
}

// clickOption clicks an option of a just-opened combobox, giving the page a
// short while to render it.
func (d *Driver) clickOption(ctx context.Context, option locator.Locator) error {
	deadline := time.Now().Add(d.OptionWait)
	for {
		err := d.click(ctx, "select option", option, options{})
		if !notRendered(err) || time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(d.PollInterval):
		}
	}
}

// notRendered reports whether err means the element is not on screen yet.
func notRendered(err error) bool {
	var lre *harness.LocatorResolutionError
	if !errors.As(err, &lre) {
		return false
	}
	return lre.Reason == harness.ReasonNone || lre.Reason == harness.ReasonHidden
}

// Press presses a key on the focused element, e.g. "Enter" or "a".
func (d *Driver) Press(ctx context.Context, key string) error {
	return d.page.PressKey(ctx, key)
}

// RemoveOverlay deletes every element matching loc and returns how many were
// removed. Scenarios use it to clear overlays the app leaves behind.
func (d *Driver) RemoveOverlay(ctx context.Context, loc locator.Locator) (int, error) {
	target, err := locator.Apply(ctx, d.page, loc, locator.Op{Kind: "remove"})
	if err != nil {
		return 0, err
	}
	d.logger.Warn().Str("locator", loc.String()).Int("removed", target.Count).Msg("overlay removed")
	return target.Count, nil
}

func (d *Driver) apply(ctx context.Context, action string, loc locator.Locator, op locator.Op) (locator.Target, error) {
	if op.Force {
		d.logger.Warn().Str("action", action).Str("locator", loc.String()).Msg("force enabled, skipping obscured check")
	}
	target, err := locator.Apply(ctx, d.page, loc, op)
	if err != nil {
		return target, err
	}
	if target.Status != "ok" {
		lre := &harness.LocatorResolutionError{
			Action:  action,
			Locator: loc.String(),
			Reason:  reason(target.Status),
			Count:   target.Count,
		}
		if target.ObscuredBy != "" {
			lre.Detail = "covered by " + target.ObscuredBy
		}
		return target, lre
	}
	return target, nil
}

func reason(status string) harness.ResolutionReason {
	switch status {
	case "none", "":
		return harness.ReasonNone
	case "multiple":
		return harness.ReasonMultiple
	case "hidden":
		return harness.ReasonHidden
	case "disabled":
		return harness.ReasonDisabled
	case "obscured":
		return harness.ReasonObscured
	case "not-editable":
		return harness.ReasonNotEditable
	}
	return harness.ResolutionReason(status)
}
