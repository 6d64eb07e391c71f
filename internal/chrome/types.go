package chrome

import (
	"errors"
	"fmt"
	"time"
)

// --- Errors ---

// Errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrProtocolError    = errors.New("protocol error")
)

// ProtocolError represents an error returned by the Chrome DevTools Protocol.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocolError
}

// EvalError is a JavaScript exception raised while evaluating an expression.
type EvalError struct {
	Text        string
	Description string
}

func (e *EvalError) Error() string {
	if e.Description != "" {
		return "JS exception: " + e.Description
	}
	return "JS exception: " + e.Text
}

// --- Browser & Page Info ---

// VersionInfo contains browser version information.
type VersionInfo struct {
	Browser         string `json:"browser"`
	ProtocolVersion string `json:"protocol"`
	UserAgent       string `json:"userAgent,omitempty"`
	V8Version       string `json:"v8,omitempty"`
}

// TargetInfo contains information about a browser target (tab/page).
type TargetInfo struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	URL              string `json:"url"`
	BrowserContextID string `json:"browserContextId,omitempty"`
}

// --- Navigation ---

// NavigateResult contains the result of a navigation.
type NavigateResult struct {
	FrameID   string `json:"frameId"`
	LoaderID  string `json:"loaderId,omitempty"`
	URL       string `json:"url"`
	ErrorText string `json:"errorText,omitempty"`
}

// ReadyOptions defines when a navigation counts as finished: the load event
// has fired and no request has been in flight for NetworkIdle. Timeout bounds
// the whole wait.
type ReadyOptions struct {
	NetworkIdle time.Duration
	Timeout     time.Duration
}

// --- Screenshots ---

// ScreenshotOptions configures screenshot capture.
type ScreenshotOptions struct {
	Format   string // "png", "jpeg", "webp"
	Quality  int    // 0-100, only for jpeg/webp
	FullPage bool
}

// --- JavaScript Evaluation ---

// EvalResult contains the result of evaluating a JavaScript expression.
type EvalResult struct {
	Value interface{} `json:"value"`
	Type  string      `json:"type,omitempty"`
}

// ExceptionInfo represents a JavaScript exception.
type ExceptionInfo struct {
	Text         string `json:"text"`
	LineNumber   int    `json:"lineNumber,omitempty"`
	ColumnNumber int    `json:"columnNumber,omitempty"`
	URL          string `json:"url,omitempty"`
}

// --- Console ---

// ConsoleMessage represents a console message from the browser.
type ConsoleMessage struct {
	Type string `json:"type"` // "log", "warn", "error", "info", "debug"
	Text string `json:"text"`
}

// --- Storage ---

// StorageArea selects the Web Storage object used by the storage helpers.
type StorageArea string

const (
	LocalStorage   StorageArea = "localStorage"
	SessionStorage StorageArea = "sessionStorage"
)

// --- Interception ---

// PausedRequest is a request held by the Fetch domain until it is fulfilled,
// continued or failed.
type PausedRequest struct {
	RequestID    string
	URL          string
	Method       string
	Headers      map[string]string
	PostData     string
	ResourceType string
}

// HeaderEntry is a response header in Fetch.fulfillRequest form.
type HeaderEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Network error reasons accepted by Fetch.failRequest.
const (
	ErrorReasonFailed          = "Failed"
	ErrorReasonAborted         = "Aborted"
	ErrorReasonBlockedByClient = "BlockedByClient"
)
