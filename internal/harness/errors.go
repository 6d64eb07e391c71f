// Package harness holds the error taxonomy and run state machine shared by
// every part of the verification harness.
//
// All four error kinds are fatal to the scenario that raised them. Nothing in
// the harness retries; callers that want retries wrap whole runs.
package harness

import (
	"errors"
	"fmt"
	"time"
)

// ResolutionReason says why a locator did not resolve to a usable element.
type ResolutionReason string

const (
	ReasonNone        ResolutionReason = "none"
	ReasonMultiple    ResolutionReason = "multiple"
	ReasonHidden      ResolutionReason = "hidden"
	ReasonDisabled    ResolutionReason = "disabled"
	ReasonObscured    ResolutionReason = "obscured"
	ReasonNotEditable ResolutionReason = "not-editable"
)

// LocatorResolutionError is returned when an action's locator matches zero or
// several elements, or the single match cannot be interacted with.
type LocatorResolutionError struct {
	Action  string
	Locator string
	Reason  ResolutionReason
	Count   int
	Detail  string
}

func (e *LocatorResolutionError) Error() string {
	msg := fmt.Sprintf("%s %s: ", e.Action, e.Locator)
	switch e.Reason {
	case ReasonNone:
		msg += "no element matches"
	case ReasonMultiple:
		msg += fmt.Sprintf("%d elements match, expected exactly one", e.Count)
	default:
		msg += "element is " + string(e.Reason)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// TimeoutError is returned when a wait condition is still unmet when its
// budget runs out.
type TimeoutError struct {
	Condition string
	Predicate string
	Timeout   time.Duration
	Elapsed   time.Duration
	LastErr   error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timeout after %s waiting for %s to be %s (budget %s)",
		e.Elapsed.Round(time.Millisecond), e.Condition, e.Predicate, e.Timeout)
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// NetworkMockError is recorded when a registered responder fails to produce
// a fixture for a matching request.
type NetworkMockError struct {
	Pattern string
	Method  string
	URL     string
	Err     error
}

func (e *NetworkMockError) Error() string {
	return fmt.Sprintf("mock %q for %s %s: %v", e.Pattern, e.Method, e.URL, e.Err)
}

func (e *NetworkMockError) Unwrap() error {
	return e.Err
}

// SessionError is returned when the browser or its page fails to start,
// navigate, evaluate or close.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError wraps err as a SessionError unless it already belongs to the
// taxonomy, in which case it is returned unchanged.
func NewSessionError(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != KindOther {
		return err
	}
	return &SessionError{Op: op, Err: err}
}

// ErrorKind names a branch of the taxonomy.
type ErrorKind string

const (
	KindLocator ErrorKind = "locator"
	KindTimeout ErrorKind = "timeout"
	KindMock    ErrorKind = "mock"
	KindSession ErrorKind = "session"
	KindOther   ErrorKind = "other"
)

// Kind classifies err by the outermost taxonomy error in its chain.
func Kind(err error) ErrorKind {
	for err != nil {
		switch err.(type) {
		case *LocatorResolutionError:
			return KindLocator
		case *TimeoutError:
			return KindTimeout
		case *NetworkMockError:
			return KindMock
		case *SessionError:
			return KindSession
		}
		err = errors.Unwrap(err)
	}
	return KindOther
}
