package chrome

import (
	"context"
	"fmt"
)

// StorageAvailable reports whether the Web Storage area can be used on the
// page's current origin. Opaque origins such as about:blank throw on access.
func (c *Client) StorageAvailable(ctx context.Context, targetID string, area StorageArea) (bool, error) {
	js := fmt.Sprintf(`
		(function() {
			try {
				const s = window[%q];
				if (!s) return false;
				const probe = '__uiverify_probe__';
				s.setItem(probe, '1');
				s.removeItem(probe);
				return true;
			} catch (e) {
				return false;
			}
		})()
	`, string(area))

	result, err := c.Eval(ctx, targetID, js)
	if err != nil {
		return false, err
	}
	if b, ok := result.Value.(bool); ok {
		return b, nil
	}
	return false, nil
}

// GetStorageItem gets a value from localStorage or sessionStorage. The second
// return value is false when the key is absent.
func (c *Client) GetStorageItem(ctx context.Context, targetID string, area StorageArea, key string) (string, bool, error) {
	result, err := c.EvalFunction(ctx, targetID, fmt.Sprintf(`(k) => window[%q].getItem(k)`, string(area)), key)
	if err != nil {
		return "", false, err
	}
	if result.Value == nil {
		return "", false, nil
	}
	if s, ok := result.Value.(string); ok {
		return s, true, nil
	}
	return fmt.Sprintf("%v", result.Value), true, nil
}

// SetStorageItem sets a value in localStorage or sessionStorage.
func (c *Client) SetStorageItem(ctx context.Context, targetID string, area StorageArea, key, value string) error {
	_, err := c.EvalFunction(ctx, targetID, fmt.Sprintf(`(k, v) => { window[%q].setItem(k, v); return true; }`, string(area)), key, value)
	return err
}

// ClearStorage clears all entries of a storage area.
func (c *Client) ClearStorage(ctx context.Context, targetID string, area StorageArea) error {
	_, err := c.Eval(ctx, targetID, fmt.Sprintf(`window[%q].clear(); true`, string(area)))
	return err
}
