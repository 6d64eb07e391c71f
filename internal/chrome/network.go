package chrome

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// pausedEventBuffer bounds the queue of paused requests awaiting a decision.
// A dropped requestPaused event would leave its request hanging forever.
const pausedEventBuffer = 1024

// CaptureConsole starts capturing console messages from a page.
// Returns a channel that receives ConsoleMessage and a stop function.
// The stop function MUST be called when done to release resources.
// The channel is closed when stop is called or when the client is closed.
func (c *Client) CaptureConsole(ctx context.Context, targetID string) (<-chan ConsoleMessage, func(), error) {
	sessionID, err := c.attachToTarget(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}

	// Subscribe first so messages logged during Runtime.enable are kept
	eventCh := c.subscribeEvent(sessionID, "Runtime.consoleAPICalled")

	_, err = c.CallSession(ctx, sessionID, "Runtime.enable", nil)
	if err != nil {
		c.unsubscribeEvent(sessionID, "Runtime.consoleAPICalled", eventCh)
		return nil, nil, fmt.Errorf("enabling Runtime domain: %w", err)
	}

	output := make(chan ConsoleMessage, 100)
	done := make(chan struct{})
	var stopOnce sync.Once

	stop := func() {
		stopOnce.Do(func() {
			close(done)
			c.unsubscribeEvent(sessionID, "Runtime.consoleAPICalled", eventCh)
		})
	}

	go func() {
		defer close(output)
		for {
			select {
			case params, ok := <-eventCh:
				if !ok {
					return
				}
				var event struct {
					Type string `json:"type"`
					Args []struct {
						Type        string      `json:"type"`
						Value       interface{} `json:"value"`
						Description string      `json:"description"`
					} `json:"args"`
				}
				if err := json.Unmarshal(params, &event); err != nil {
					continue
				}

				parts := make([]string, 0, len(event.Args))
				for _, arg := range event.Args {
					switch {
					case arg.Value != nil:
						parts = append(parts, fmt.Sprintf("%v", arg.Value))
					case arg.Description != "":
						parts = append(parts, arg.Description)
					default:
						parts = append(parts, arg.Type)
					}
				}

				select {
				case output <- ConsoleMessage{Type: event.Type, Text: strings.Join(parts, " ")}:
				default:
					// Drop if channel is full
				}
			case <-done:
				return
			case <-c.closeCh:
				return
			}
		}
	}()

	return output, stop, nil
}

// CaptureExceptions starts capturing uncaught JavaScript exceptions from a page.
// Returns a channel that receives ExceptionInfo and a stop function.
// The stop function MUST be called when done to release resources.
// The channel is closed when stop is called or when the client is closed.
func (c *Client) CaptureExceptions(ctx context.Context, targetID string) (<-chan ExceptionInfo, func(), error) {
	sessionID, err := c.attachToTarget(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}

	eventCh := c.subscribeEvent(sessionID, "Runtime.exceptionThrown")

	_, err = c.CallSession(ctx, sessionID, "Runtime.enable", nil)
	if err != nil {
		c.unsubscribeEvent(sessionID, "Runtime.exceptionThrown", eventCh)
		return nil, nil, fmt.Errorf("enabling Runtime domain: %w", err)
	}

	output := make(chan ExceptionInfo, 100)
	done := make(chan struct{})
	var stopOnce sync.Once

	stop := func() {
		stopOnce.Do(func() {
			close(done)
			c.unsubscribeEvent(sessionID, "Runtime.exceptionThrown", eventCh)
		})
	}

	go func() {
		defer close(output)
		for {
			select {
			case params, ok := <-eventCh:
				if !ok {
					return
				}
				var event struct {
					ExceptionDetails struct {
						Text         string `json:"text"`
						LineNumber   int    `json:"lineNumber"`
						ColumnNumber int    `json:"columnNumber"`
						URL          string `json:"url"`
						Exception    struct {
							Description string `json:"description"`
						} `json:"exception"`
					} `json:"exceptionDetails"`
				}
				if err := json.Unmarshal(params, &event); err != nil {
					continue
				}

				text := event.ExceptionDetails.Text
				if event.ExceptionDetails.Exception.Description != "" {
					text = event.ExceptionDetails.Exception.Description
				}

				select {
				case output <- ExceptionInfo{
					Text:         text,
					LineNumber:   event.ExceptionDetails.LineNumber,
					ColumnNumber: event.ExceptionDetails.ColumnNumber,
					URL:          event.ExceptionDetails.URL,
				}:
				default:
				}
			case <-done:
				return
			case <-c.closeCh:
				return
			}
		}
	}()

	return output, stop, nil
}

// EnableFetch pauses every request whose URL matches one of the Fetch
// wildcard patterns ("*" any run, "?" one character) at the request stage.
// Each paused request is delivered on the returned channel and stays blocked
// until FulfillRequest, ContinueRequest or FailRequest is called for it.
// The stop function disables interception and closes the channel.
func (c *Client) EnableFetch(ctx context.Context, targetID string, patterns []string) (<-chan PausedRequest, func(), error) {
	sessionID, err := c.attachToTarget(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}

	eventCh := c.subscribeEventBuffered(sessionID, "Fetch.requestPaused", pausedEventBuffer)

	fetchPatterns := make([]map[string]interface{}, 0, len(patterns))
	for _, p := range patterns {
		fetchPatterns = append(fetchPatterns, map[string]interface{}{
			"urlPattern":   p,
			"requestStage": "Request",
		})
	}

	_, err = c.CallSession(ctx, sessionID, "Fetch.enable", map[string]interface{}{
		"patterns": fetchPatterns,
	})
	if err != nil {
		c.unsubscribeEvent(sessionID, "Fetch.requestPaused", eventCh)
		return nil, nil, fmt.Errorf("enabling fetch: %w", err)
	}

	output := make(chan PausedRequest)
	done := make(chan struct{})
	var stopOnce sync.Once

	stop := func() {
		stopOnce.Do(func() {
			close(done)
			c.unsubscribeEvent(sessionID, "Fetch.requestPaused", eventCh)
			disableCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			c.CallSession(disableCtx, sessionID, "Fetch.disable", nil)
		})
	}

	go func() {
		defer close(output)
		for {
			select {
			case params, ok := <-eventCh:
				if !ok {
					return
				}
				var event struct {
					RequestID string `json:"requestId"`
					Request   struct {
						URL      string            `json:"url"`
						Method   string            `json:"method"`
						Headers  map[string]string `json:"headers"`
						PostData string            `json:"postData"`
					} `json:"request"`
					ResourceType string `json:"resourceType"`
				}
				if err := json.Unmarshal(params, &event); err != nil {
					continue
				}

				// Blocking send: a paused request must never be dropped
				select {
				case output <- PausedRequest{
					RequestID:    event.RequestID,
					URL:          event.Request.URL,
					Method:       event.Request.Method,
					Headers:      event.Request.Headers,
					PostData:     event.Request.PostData,
					ResourceType: event.ResourceType,
				}:
				case <-done:
					return
				case <-c.closeCh:
					return
				}
			case <-done:
				return
			case <-c.closeCh:
				return
			}
		}
	}()

	return output, stop, nil
}

// FulfillRequest answers a paused request with a synthetic response.
func (c *Client) FulfillRequest(ctx context.Context, targetID string, requestID string, status int, headers []HeaderEntry, body []byte) error {
	sessionID, err := c.attachToTarget(ctx, targetID)
	if err != nil {
		return err
	}

	if headers == nil {
		headers = []HeaderEntry{}
	}

	_, err = c.CallSession(ctx, sessionID, "Fetch.fulfillRequest", map[string]interface{}{
		"requestId":       requestID,
		"responseCode":    status,
		"responseHeaders": headers,
		"body":            base64.StdEncoding.EncodeToString(body),
	})
	if err != nil {
		return fmt.Errorf("fulfilling request: %w", err)
	}
	return nil
}

// ContinueRequest lets a paused request proceed to the network unmodified.
func (c *Client) ContinueRequest(ctx context.Context, targetID string, requestID string) error {
	sessionID, err := c.attachToTarget(ctx, targetID)
	if err != nil {
		return err
	}

	_, err = c.CallSession(ctx, sessionID, "Fetch.continueRequest", map[string]interface{}{
		"requestId": requestID,
	})
	if err != nil {
		return fmt.Errorf("continuing request: %w", err)
	}
	return nil
}

// FailRequest aborts a paused request with a network error the page can
// observe (e.g. fetch() rejects).
func (c *Client) FailRequest(ctx context.Context, targetID string, requestID string, reason string) error {
	sessionID, err := c.attachToTarget(ctx, targetID)
	if err != nil {
		return err
	}

	if reason == "" {
		reason = ErrorReasonFailed
	}

	_, err = c.CallSession(ctx, sessionID, "Fetch.failRequest", map[string]interface{}{
		"requestId":   requestID,
		"errorReason": reason,
	})
	if err != nil {
		return fmt.Errorf("failing request: %w", err)
	}
	return nil
}
