package locator

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed query.js
var queryJS string

// Evaluator runs a function expression in the page.
type Evaluator interface {
	Evaluate(ctx context.Context, code string, args ...interface{}) (interface{}, error)
}

// Match summarises what a locator currently matches.
type Match struct {
	Count   int      `json:"count"`
	Visible int      `json:"visible"`
	Texts   []string `json:"texts"` // text of each visible match
}

// Query counts the locator's matches and collects the text of the visible
// ones.
func Query(ctx context.Context, ev Evaluator, loc Locator) (Match, error) {
	var m Match
	err := run(ctx, ev, loc, Op{Kind: "query"}, &m)
	return m, err
}

// Op is a page-side action applied to a locator's single match.
//
// Kind is one of "resolve", "click", "hover", "fill", "select" or "remove".
// Every kind but "remove" fails unless the locator matches exactly one
// visible, enabled element. Pointer kinds also require the element's centre
// to hit-test to it; Force relaxes that, dispatching a DOM click or hover
// events directly instead.
type Op struct {
	Kind   string  `json:"kind"`
	Force  bool    `json:"force,omitempty"`
	Clear  bool    `json:"clear,omitempty"`
	Option Locator `json:"-"`
}

// Target is the outcome of an Op.
type Target struct {
	Status     string  `json:"status"`
	Count      int     `json:"count"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Detail     string  `json:"detail"`
	ObscuredBy string  `json:"obscuredBy"`
	Dispatched bool    `json:"dispatched"`

	Native       bool   `json:"native"`
	OptionStatus string `json:"optionStatus"`
	OptionCount  int    `json:"optionCount"`
	Selected     string `json:"selected"`
}

// Apply runs op against loc's match.
func Apply(ctx context.Context, ev Evaluator, loc Locator, op Op) (Target, error) {
	var t Target
	err := run(ctx, ev, loc, op, &t)
	return t, err
}

type wireOp struct {
	Op
	Option []step `json:"option,omitempty"`
}

func run(ctx context.Context, ev Evaluator, loc Locator, op Op, out interface{}) error {
	if loc.IsZero() {
		return fmt.Errorf("empty locator")
	}
	steps := loc.steps
	wire := wireOp{Op: op, Option: op.Option.steps}

	raw, err := ev.Evaluate(ctx, queryJS, steps, wire)
	if err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding locator result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding locator result: %w", err)
	}
	return nil
}
