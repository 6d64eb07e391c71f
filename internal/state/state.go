// Package state writes pre-authenticated application state into the page's
// origin-scoped Web Storage.
//
// The store is per origin, so the page must already be on the app's origin
// when state is injected, and the app only reads it while booting: the
// sequence is always navigate, inject, reload.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/phuslu/log"

	"github.com/tomyan/uiverify/internal/chrome"
	"github.com/tomyan/uiverify/internal/harness"
)

// Entry is one named storage entry. String values are stored as is; any
// other value is stored as JSON.
type Entry struct {
	Key   string
	Value interface{}
}

// Encode returns the stored form of the value.
func (e Entry) Encode() (string, error) {
	if s, ok := e.Value.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(e.Value)
	if err != nil {
		return "", fmt.Errorf("encoding %q: %w", e.Key, err)
	}
	return string(data), nil
}

// Page is the page state is written to.
type Page interface {
	URL(ctx context.Context) (string, error)
	StorageAvailable(ctx context.Context, area chrome.StorageArea) (bool, error)
	GetStorageItem(ctx context.Context, area chrome.StorageArea, key string) (string, bool, error)
	SetStorageItem(ctx context.Context, area chrome.StorageArea, key, value string) error
	ClearStorage(ctx context.Context, area chrome.StorageArea) error
	// MarkStatePending records that the written state awaits a reload.
	MarkStatePending()
}

// Injector writes entries into one storage area of one origin.
type Injector struct {
	page   Page
	origin string
	area   chrome.StorageArea
	logger *log.Logger
}

// NewInjector returns an injector for the origin of baseURL.
func NewInjector(page Page, baseURL string, area chrome.StorageArea, logger *log.Logger) (*Injector, error) {
	origin, err := originOf(baseURL)
	if err != nil {
		return nil, err
	}
	if area == "" {
		area = chrome.LocalStorage
	}
	if area != chrome.LocalStorage && area != chrome.SessionStorage {
		return nil, fmt.Errorf("unknown storage area %q", area)
	}
	return &Injector{page: page, origin: origin, area: area, logger: logger}, nil
}

// Inject writes entries. Nothing is written unless every entry encodes, the
// page is on the expected origin and the store accepts writes; any of these
// failing is a SessionError, since the run cannot proceed unauthenticated.
// The app sees the entries after the next reload.
func (i *Injector) Inject(ctx context.Context, entries ...Entry) error {
	values := make([]string, len(entries))
	for n, e := range entries {
		v, err := e.Encode()
		if err != nil {
			return &harness.SessionError{Op: "inject state", Err: err}
		}
		values[n] = v
	}

	if err := i.checkOrigin(ctx); err != nil {
		return err
	}
	available, err := i.page.StorageAvailable(ctx, i.area)
	if err != nil {
		return harness.NewSessionError("inject state", err)
	}
	if !available {
		return &harness.SessionError{Op: "inject state", Err: fmt.Errorf("%s is not available on %s", i.area, i.origin)}
	}

	keys := make([]string, len(entries))
	for n, e := range entries {
		if err := i.page.SetStorageItem(ctx, i.area, e.Key, values[n]); err != nil {
			return harness.NewSessionError("inject state", err)
		}
		keys[n] = e.Key
	}
	i.page.MarkStatePending()

	i.logger.Info().Str("store", string(i.area)).Strs("keys", keys).Msg("state injected, reload to apply")
	return nil
}

// Read returns the stored value of key.
func (i *Injector) Read(ctx context.Context, key string) (string, bool, error) {
	return i.page.GetStorageItem(ctx, i.area, key)
}

// Clear removes every entry in the storage area.
func (i *Injector) Clear(ctx context.Context) error {
	if err := i.checkOrigin(ctx); err != nil {
		return err
	}
	if err := i.page.ClearStorage(ctx, i.area); err != nil {
		return harness.NewSessionError("clear state", err)
	}
	i.page.MarkStatePending()
	return nil
}

func (i *Injector) checkOrigin(ctx context.Context) error {
	current, err := i.page.URL(ctx)
	if err != nil {
		return harness.NewSessionError("inject state", err)
	}
	origin, err := originOf(current)
	if err != nil || origin != i.origin {
		return &harness.SessionError{
			Op:  "inject state",
			Err: fmt.Errorf("page is at %q, navigate to %s before injecting", current, i.origin),
		}
	}
	return nil
}

func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no origin", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
