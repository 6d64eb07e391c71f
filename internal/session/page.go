package session

import (
	"context"

	"github.com/tomyan/uiverify/internal/chrome"
	"github.com/tomyan/uiverify/internal/harness"
)

// The methods below bind the DevTools client to this session's page.

// EnableFetch pauses requests matching the browser-side wildcard patterns.
func (s *Session) EnableFetch(ctx context.Context, patterns []string) (<-chan chrome.PausedRequest, func(), error) {
	return s.client.EnableFetch(ctx, s.targetID, patterns)
}

// FulfillRequest answers a paused request.
func (s *Session) FulfillRequest(ctx context.Context, requestID string, status int, headers []chrome.HeaderEntry, body []byte) error {
	return s.client.FulfillRequest(ctx, s.targetID, requestID, status, headers, body)
}

// ContinueRequest lets a paused request through.
func (s *Session) ContinueRequest(ctx context.Context, requestID string) error {
	return s.client.ContinueRequest(ctx, s.targetID, requestID)
}

// FailRequest fails a paused request with a network error.
func (s *Session) FailRequest(ctx context.Context, requestID string, reason string) error {
	return s.client.FailRequest(ctx, s.targetID, requestID, reason)
}

// ClickAt clicks at viewport coordinates.
func (s *Session) ClickAt(ctx context.Context, x, y float64) error {
	return wrap("click", s.client.ClickAt(ctx, s.targetID, x, y))
}

// MoveMouse moves the pointer to viewport coordinates.
func (s *Session) MoveMouse(ctx context.Context, x, y float64) error {
	return wrap("hover", s.client.MoveMouse(ctx, s.targetID, x, y))
}

// InsertText types text into the focused element.
func (s *Session) InsertText(ctx context.Context, text string) error {
	return wrap("insert text", s.client.InsertText(ctx, s.targetID, text))
}

// PressKey presses and releases a key.
func (s *Session) PressKey(ctx context.Context, key string) error {
	return wrap("press key", s.client.PressKey(ctx, s.targetID, key))
}

// StorageAvailable reports whether the storage area is usable on the
// current origin.
func (s *Session) StorageAvailable(ctx context.Context, area chrome.StorageArea) (bool, error) {
	ok, err := s.client.StorageAvailable(ctx, s.targetID, area)
	return ok, wrap("probe storage", err)
}

// GetStorageItem reads a storage entry.
func (s *Session) GetStorageItem(ctx context.Context, area chrome.StorageArea, key string) (string, bool, error) {
	v, ok, err := s.client.GetStorageItem(ctx, s.targetID, area, key)
	return v, ok, wrap("read storage", err)
}

// SetStorageItem writes a storage entry.
func (s *Session) SetStorageItem(ctx context.Context, area chrome.StorageArea, key, value string) error {
	return wrap("write storage", s.client.SetStorageItem(ctx, s.targetID, area, key, value))
}

// ClearStorage removes every entry of a storage area.
func (s *Session) ClearStorage(ctx context.Context, area chrome.StorageArea) error {
	return wrap("clear storage", s.client.ClearStorage(ctx, s.targetID, area))
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &harness.SessionError{Op: op, Err: err}
}
