package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// networkEventBuffer is large enough that bursts of requests during page boot
// do not drop the finish events the idle tracker counts on.
const networkEventBuffer = 1024

// Version returns the browser version information.
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	result, err := c.Call(ctx, "Browser.getVersion", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Product         string `json:"product"`
		ProtocolVersion string `json:"protocolVersion"`
		UserAgent       string `json:"userAgent"`
		JsVersion       string `json:"jsVersion"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling version: %w", err)
	}

	return &VersionInfo{
		Browser:         resp.Product,
		ProtocolVersion: resp.ProtocolVersion,
		UserAgent:       resp.UserAgent,
		V8Version:       resp.JsVersion,
	}, nil
}

// CreateBrowserContext creates an isolated browser context (separate cookies,
// storage and cache) and returns its ID.
func (c *Client) CreateBrowserContext(ctx context.Context) (string, error) {
	result, err := c.Call(ctx, "Target.createBrowserContext", map[string]interface{}{
		"disposeOnDetach": true,
	})
	if err != nil {
		return "", fmt.Errorf("creating browser context: %w", err)
	}

	var resp struct {
		BrowserContextID string `json:"browserContextId"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("parsing browser context response: %w", err)
	}
	return resp.BrowserContextID, nil
}

// DisposeBrowserContext closes every page in the context and discards it.
func (c *Client) DisposeBrowserContext(ctx context.Context, browserContextID string) error {
	_, err := c.Call(ctx, "Target.disposeBrowserContext", map[string]interface{}{
		"browserContextId": browserContextID,
	})
	if err != nil {
		return fmt.Errorf("disposing browser context: %w", err)
	}
	return nil
}

// NewPage creates a page target inside the given browser context (the
// default context when empty) and returns its target ID.
func (c *Client) NewPage(ctx context.Context, browserContextID string) (string, error) {
	params := map[string]interface{}{
		"url": "about:blank",
	}
	if browserContextID != "" {
		params["browserContextId"] = browserContextID
	}

	result, err := c.Call(ctx, "Target.createTarget", params)
	if err != nil {
		return "", fmt.Errorf("creating target: %w", err)
	}

	var resp struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}

	return resp.TargetID, nil
}

// ClosePage closes a page target by its ID.
func (c *Client) ClosePage(ctx context.Context, targetID string) error {
	c.forgetTarget(targetID)

	_, err := c.Call(ctx, "Target.closeTarget", map[string]interface{}{
		"targetId": targetID,
	})
	if err != nil {
		return fmt.Errorf("closing target: %w", err)
	}
	return nil
}

// NavigateAndWait navigates to a URL and waits until the page is ready as
// defined by opts.
func (c *Client) NavigateAndWait(ctx context.Context, targetID string, url string, opts ReadyOptions) (*NavigateResult, error) {
	sessionID, err := c.attachToTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}

	// Subscribe before navigating so no load or network event is missed
	watch, err := c.watchReady(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer watch.stop()

	navResult, err := c.CallSession(ctx, sessionID, "Page.navigate", map[string]string{
		"url": url,
	})
	if err != nil {
		return nil, fmt.Errorf("navigating: %w", err)
	}

	var navResp struct {
		FrameID   string `json:"frameId"`
		LoaderID  string `json:"loaderId"`
		ErrorText string `json:"errorText"`
	}
	if err := json.Unmarshal(navResult, &navResp); err != nil {
		return nil, fmt.Errorf("parsing navigate response: %w", err)
	}

	result := &NavigateResult{
		FrameID:   navResp.FrameID,
		LoaderID:  navResp.LoaderID,
		URL:       url,
		ErrorText: navResp.ErrorText,
	}
	if navResp.ErrorText != "" {
		return result, fmt.Errorf("navigating to %s: %s", url, navResp.ErrorText)
	}

	if err := watch.wait(ctx, opts); err != nil {
		return result, err
	}
	return result, nil
}

// Reload reloads the page and waits until it is ready. If ignoreCache is true,
// the browser cache is bypassed.
func (c *Client) Reload(ctx context.Context, targetID string, ignoreCache bool, opts ReadyOptions) error {
	sessionID, err := c.attachToTarget(ctx, targetID)
	if err != nil {
		return err
	}

	watch, err := c.watchReady(ctx, sessionID)
	if err != nil {
		return err
	}
	defer watch.stop()

	params := map[string]interface{}{}
	if ignoreCache {
		params["ignoreCache"] = true
	}

	_, err = c.CallSession(ctx, sessionID, "Page.reload", params)
	if err != nil {
		return fmt.Errorf("reloading: %w", err)
	}

	return watch.wait(ctx, opts)
}

// GetURL returns the current page URL.
func (c *Client) GetURL(ctx context.Context, targetID string) (string, error) {
	result, err := c.Eval(ctx, targetID, "document.location.href")
	if err != nil {
		return "", err
	}
	if result.Value == nil {
		return "", nil
	}
	if s, ok := result.Value.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", result.Value), nil
}

// readyEvents are the events a readyWatch follows. They share one channel so
// a request's start is always seen before its finish.
var readyEvents = []string{
	"Page.loadEventFired",
	"Network.requestWillBeSent",
	"Network.loadingFinished",
	"Network.loadingFailed",
}

// readyWatch tracks the load event and in-flight requests of one session.
type readyWatch struct {
	c         *Client
	sessionID string
	events    chan Event
}

func (c *Client) watchReady(ctx context.Context, sessionID string) (*readyWatch, error) {
	if _, err := c.CallSession(ctx, sessionID, "Page.enable", nil); err != nil {
		return nil, fmt.Errorf("enabling Page domain: %w", err)
	}
	if _, err := c.CallSession(ctx, sessionID, "Network.enable", nil); err != nil {
		return nil, fmt.Errorf("enabling Network domain: %w", err)
	}

	return &readyWatch{
		c:         c,
		sessionID: sessionID,
		events:    c.subscribeEvents(sessionID, readyEvents, networkEventBuffer),
	}, nil
}

func (w *readyWatch) stop() {
	w.c.unsubscribeEvents(w.sessionID, readyEvents, w.events)
}

func (w *readyWatch) wait(ctx context.Context, opts ReadyOptions) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// Idle timer only runs while loaded and nothing is pending
	idle := time.NewTimer(time.Hour)
	idle.Stop()
	defer idle.Stop()

	loaded := false
	pending := make(map[string]bool)

	armIdle := func() {
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		if loaded && len(pending) == 0 {
			idle.Reset(opts.NetworkIdle)
		}
	}

	requestID := func(params json.RawMessage) string {
		var event struct {
			RequestID string `json:"requestId"`
		}
		if err := json.Unmarshal(params, &event); err != nil {
			return ""
		}
		return event.RequestID
	}

	for {
		select {
		case ev := <-w.events:
			switch ev.Method {
			case "Page.loadEventFired":
				loaded = true
			case "Network.requestWillBeSent":
				if id := requestID(ev.Params); id != "" {
					pending[id] = true
				}
			case "Network.loadingFinished", "Network.loadingFailed":
				delete(pending, requestID(ev.Params))
			}
			armIdle()
		case <-idle.C:
			if loaded && len(pending) == 0 {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("timeout waiting for page ready (loaded=%t, pending requests=%d)", loaded, len(pending))
		case <-ctx.Done():
			return ctx.Err()
		case <-w.c.closeCh:
			return ErrConnectionClosed
		}
	}
}
