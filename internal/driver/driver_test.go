package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyan/uiverify/internal/harness"
	"github.com/tomyan/uiverify/internal/locator"
	"github.com/tomyan/uiverify/internal/logging"
)

type evalCall struct {
	Steps []map[string]interface{}
	Op    map[string]interface{}
}

// fakePage answers locator evaluations from a queue of scripted results and
// records pointer and keyboard input.
type fakePage struct {
	results []map[string]interface{}
	evalErr error

	evals  []evalCall
	clicks [][2]float64
	moves  [][2]float64
	typed  []string
	keys   []string
}

func (p *fakePage) Evaluate(ctx context.Context, code string, args ...interface{}) (interface{}, error) {
	var call evalCall
	data, _ := json.Marshal(args[0])
	json.Unmarshal(data, &call.Steps)
	data, _ = json.Marshal(args[1])
	json.Unmarshal(data, &call.Op)
	p.evals = append(p.evals, call)

	if p.evalErr != nil {
		return nil, p.evalErr
	}
	if len(p.results) == 0 {
		return map[string]interface{}{"status": "none"}, nil
	}
	r := p.results[0]
	if len(p.results) > 1 {
		p.results = p.results[1:]
	}
	return r, nil
}

func (p *fakePage) ClickAt(ctx context.Context, x, y float64) error {
	p.clicks = append(p.clicks, [2]float64{x, y})
	return nil
}

func (p *fakePage) MoveMouse(ctx context.Context, x, y float64) error {
	p.moves = append(p.moves, [2]float64{x, y})
	return nil
}

func (p *fakePage) InsertText(ctx context.Context, text string) error {
	p.typed = append(p.typed, text)
	return nil
}

func (p *fakePage) PressKey(ctx context.Context, key string) error {
	p.keys = append(p.keys, key)
	return nil
}

func ok(x, y float64) map[string]interface{} {
	return map[string]interface{}{"status": "ok", "count": 1, "x": x, "y": y}
}

func newDriver(p *fakePage) *Driver {
	d := New(p, logging.Discard())
	d.OptionWait = 200 * time.Millisecond
	d.PollInterval = 10 * time.Millisecond
	return d
}

func TestClickDispatchesAtCentre(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{ok(120, 40)}}

	require.NoError(t, newDriver(p).Click(context.Background(), locator.Role("button", "Solicitar")))
	assert.Equal(t, [][2]float64{{120, 40}}, p.clicks)
	assert.Equal(t, "click", p.evals[0].Op["kind"])
	assert.Nil(t, p.evals[0].Op["force"])
}

func TestClickMultipleMatchesFails(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{{"status": "multiple", "count": 3}}}

	err := newDriver(p).Click(context.Background(), locator.Role("button", "Details"))
	var lre *harness.LocatorResolutionError
	require.ErrorAs(t, err, &lre)
	assert.Equal(t, harness.ReasonMultiple, lre.Reason)
	assert.Equal(t, 3, lre.Count)
	assert.Equal(t, `role=button[name="Details"]`, lre.Locator)
	assert.Empty(t, p.clicks)
}

func TestResolutionReasons(t *testing.T) {
	for status, want := range map[string]harness.ResolutionReason{
		"none":     harness.ReasonNone,
		"hidden":   harness.ReasonHidden,
		"disabled": harness.ReasonDisabled,
		"obscured": harness.ReasonObscured,
	} {
		t.Run(status, func(t *testing.T) {
			p := &fakePage{results: []map[string]interface{}{{"status": status, "obscuredBy": "div.fixed.inset-0"}}}
			err := newDriver(p).Click(context.Background(), locator.CSS("#go"))
			var lre *harness.LocatorResolutionError
			require.ErrorAs(t, err, &lre)
			assert.Equal(t, want, lre.Reason)
			assert.Empty(t, p.clicks)
		})
	}
}

func TestObscuredErrorNamesCoveringElement(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{{"status": "obscured", "count": 1, "obscuredBy": "div.fixed.inset-0"}}}
	err := newDriver(p).Click(context.Background(), locator.Role("tab", "Garantías"))
	assert.ErrorContains(t, err, "covered by div.fixed.inset-0")
}

func TestForceClickIsExplicit(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{
		{"status": "ok", "count": 1, "x": 5, "y": 5, "dispatched": true, "obscuredBy": "div.overlay"},
	}}

	require.NoError(t, newDriver(p).Click(context.Background(), locator.Role("tab", "Log"), Force()))
	assert.Equal(t, true, p.evals[0].Op["force"])
	// The DOM click already happened page-side
	assert.Empty(t, p.clicks)
}

func TestForceClickUnobscuredUsesPointer(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{ok(7, 8)}}
	require.NoError(t, newDriver(p).Click(context.Background(), locator.Role("tab", "Log"), Force()))
	assert.Equal(t, [][2]float64{{7, 8}}, p.clicks)
}

func TestHover(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{ok(1, 2)}}
	require.NoError(t, newDriver(p).Hover(context.Background(), locator.Text("menu")))
	assert.Equal(t, [][2]float64{{1, 2}}, p.moves)
	assert.Equal(t, "hover", p.evals[0].Op["kind"])
}

func TestFillTypesText(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{ok(0, 0)}}

	require.NoError(t, newDriver(p).Fill(context.Background(), locator.Placeholder("Agregue un comentario..."), "Test request"))
	assert.Equal(t, []string{"Test request"}, p.typed)
	assert.Equal(t, "fill", p.evals[0].Op["kind"])
	assert.Nil(t, p.evals[0].Op["clear"])
}

func TestFillEmptyClears(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{ok(0, 0)}}

	require.NoError(t, newDriver(p).Fill(context.Background(), locator.Label("Quantity"), ""))
	assert.Empty(t, p.typed)
	assert.Equal(t, true, p.evals[0].Op["clear"])
}

func TestFillNotEditable(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{{"status": "not-editable", "count": 1}}}

	err := newDriver(p).Fill(context.Background(), locator.TestID("note"), "x")
	var lre *harness.LocatorResolutionError
	require.ErrorAs(t, err, &lre)
	assert.Equal(t, harness.ReasonNotEditable, lre.Reason)
	assert.Empty(t, p.typed)
}

func TestSelectNativeOption(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{
		{"status": "ok", "count": 1, "native": true, "optionStatus": "ok", "selected": "Annex"},
	}}

	require.NoError(t, newDriver(p).SelectOption(context.Background(), locator.Label("Destination"), locator.Text("Annex")))
	assert.Empty(t, p.clicks)
	require.Len(t, p.evals, 1)
	assert.Equal(t, "select", p.evals[0].Op["kind"])
	assert.Equal(t, []interface{}{map[string]interface{}{"kind": "text", "value": "Annex"}}, p.evals[0].Op["option"])
}

func TestSelectNativeOptionMissing(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{
		{"status": "ok", "count": 1, "native": true, "optionStatus": "none", "optionCount": 0},
	}}

	err := newDriver(p).SelectOption(context.Background(), locator.Label("Destination"), locator.Text("Moon base"))
	var lre *harness.LocatorResolutionError
	require.ErrorAs(t, err, &lre)
	assert.Equal(t, "select option", lre.Action)
	assert.Equal(t, `text="Moon base"`, lre.Locator)
	assert.Equal(t, harness.ReasonNone, lre.Reason)
}

func TestSelectCustomComboboxWaitsForOption(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{
		{"status": "ok", "count": 1, "x": 10, "y": 20, "native": false},
		{"status": "none"},
		{"status": "none"},
		ok(10, 60),
	}}

	err := newDriver(p).SelectOption(context.Background(), locator.Role("combobox", ""), locator.Role("option", "Taller Principal"))
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{10, 20}, {10, 60}}, p.clicks)
	assert.Len(t, p.evals, 4)
}

func TestSelectCustomComboboxOptionNeverAppears(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{
		{"status": "ok", "count": 1, "x": 10, "y": 20},
		{"status": "none"},
	}}

	err := newDriver(p).SelectOption(context.Background(), locator.Role("combobox", ""), locator.Role("option", "Nowhere"))
	var lre *harness.LocatorResolutionError
	require.ErrorAs(t, err, &lre)
	assert.Equal(t, "select option", lre.Action)
	assert.Equal(t, harness.ReasonNone, lre.Reason)
}

func TestSelectOptionMultipleIsNotRetried(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{
		{"status": "ok", "count": 1, "x": 10, "y": 20},
		{"status": "multiple", "count": 2},
	}}

	err := newDriver(p).SelectOption(context.Background(), locator.Role("combobox", ""), locator.Role("option", ""))
	var lre *harness.LocatorResolutionError
	require.ErrorAs(t, err, &lre)
	assert.Equal(t, harness.ReasonMultiple, lre.Reason)
	assert.Len(t, p.evals, 2)
}

func TestNotRenderedUnwraps(t *testing.T) {
	missing := &harness.LocatorResolutionError{Action: "select option", Reason: harness.ReasonNone}
	hidden := &harness.LocatorResolutionError{Action: "select option", Reason: harness.ReasonHidden}
	multiple := &harness.LocatorResolutionError{Action: "select option", Reason: harness.ReasonMultiple}

	assert.True(t, notRendered(missing))
	assert.True(t, notRendered(fmt.Errorf("opening list: %w", missing)))
	assert.True(t, notRendered(fmt.Errorf("opening list: %w", hidden)))
	assert.False(t, notRendered(fmt.Errorf("opening list: %w", multiple)))
	assert.False(t, notRendered(errors.New("boom")))
	assert.False(t, notRendered(nil))
}

func TestPress(t *testing.T) {
	p := &fakePage{}
	require.NoError(t, newDriver(p).Press(context.Background(), "Enter"))
	assert.Equal(t, []string{"Enter"}, p.keys)
}

func TestRemoveOverlay(t *testing.T) {
	p := &fakePage{results: []map[string]interface{}{{"status": "ok", "count": 2}}}

	n, err := newDriver(p).RemoveOverlay(context.Background(), locator.CSS(".fixed.inset-0"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "remove", p.evals[0].Op["kind"])
}

func TestEvaluateErrorPropagates(t *testing.T) {
	boom := &harness.SessionError{Op: "evaluate", Err: errors.New("target closed")}
	p := &fakePage{evalErr: boom}

	err := newDriver(p).Click(context.Background(), locator.CSS("a"))
	assert.Same(t, boom, err)
}
