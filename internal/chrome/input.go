package chrome

import (
	"context"
	"fmt"
)

var keyCodeMap = map[string]int{
	"Enter":      13,
	"Tab":        9,
	"Escape":     27,
	"Backspace":  8,
	"Delete":     46,
	"ArrowUp":    38,
	"ArrowDown":  40,
	"ArrowLeft":  37,
	"ArrowRight": 39,
	"Home":       36,
	"End":        35,
	"PageUp":     33,
	"PageDown":   34,
	"Space":      32,
}

// keyText is the text a key inserts when pressed.
var keyText = map[string]string{
	"Enter": "\r",
	"Space": " ",
}

// ClickAt clicks at specific x, y coordinates in CSS pixels.
func (c *Client) ClickAt(ctx context.Context, targetID string, x, y float64) error {
	sessionID, err := c.attachToTarget(ctx, targetID)
	if err != nil {
		return err
	}

	return c.dispatchMouseClick(ctx, sessionID, x, y, "left", 1)
}

// MoveMouse moves the mouse to the specified coordinates without clicking.
func (c *Client) MoveMouse(ctx context.Context, targetID string, x, y float64) error {
	sessionID, err := c.attachToTarget(ctx, targetID)
	if err != nil {
		return err
	}

	_, err = c.CallSession(ctx, sessionID, "Input.dispatchMouseEvent", map[string]interface{}{
		"type": "mouseMoved",
		"x":    x,
		"y":    y,
	})
	if err != nil {
		return fmt.Errorf("moving mouse: %w", err)
	}
	return nil
}

// InsertText inserts text into the focused element as if typed by an IME.
func (c *Client) InsertText(ctx context.Context, targetID string, text string) error {
	sessionID, err := c.attachToTarget(ctx, targetID)
	if err != nil {
		return err
	}

	_, err = c.CallSession(ctx, sessionID, "Input.insertText", map[string]interface{}{
		"text": text,
	})
	if err != nil {
		return fmt.Errorf("inserting text: %w", err)
	}
	return nil
}

// PressKey presses a named key (Enter, Tab, Escape, ...) or a single character.
func (c *Client) PressKey(ctx context.Context, targetID string, key string) error {
	sessionID, err := c.attachToTarget(ctx, targetID)
	if err != nil {
		return err
	}

	params := map[string]interface{}{
		"type": "keyDown",
		"key":  key,
	}
	if keyCode, ok := keyCodeMap[key]; ok {
		params["windowsVirtualKeyCode"] = keyCode
		params["nativeVirtualKeyCode"] = keyCode
	}
	if text, ok := keyText[key]; ok {
		params["text"] = text
	} else if len([]rune(key)) == 1 {
		params["text"] = key
	}

	_, err = c.CallSession(ctx, sessionID, "Input.dispatchKeyEvent", params)
	if err != nil {
		return fmt.Errorf("keyDown for %q: %w", key, err)
	}

	params["type"] = "keyUp"
	delete(params, "text")
	_, err = c.CallSession(ctx, sessionID, "Input.dispatchKeyEvent", params)
	if err != nil {
		return fmt.Errorf("keyUp for %q: %w", key, err)
	}

	return nil
}

// dispatchMouseClick dispatches mouseMoved, mousePressed, and mouseReleased events.
func (c *Client) dispatchMouseClick(ctx context.Context, sessionID string, x, y float64, button string, clickCount int) error {
	_, err := c.CallSession(ctx, sessionID, "Input.dispatchMouseEvent", map[string]interface{}{
		"type": "mouseMoved",
		"x":    x,
		"y":    y,
	})
	if err != nil {
		return fmt.Errorf("dispatching mouseMoved: %w", err)
	}

	_, err = c.CallSession(ctx, sessionID, "Input.dispatchMouseEvent", map[string]interface{}{
		"type":       "mousePressed",
		"x":          x,
		"y":          y,
		"button":     button,
		"clickCount": clickCount,
	})
	if err != nil {
		return fmt.Errorf("dispatching mousePressed: %w", err)
	}

	_, err = c.CallSession(ctx, sessionID, "Input.dispatchMouseEvent", map[string]interface{}{
		"type":       "mouseReleased",
		"x":          x,
		"y":          y,
		"button":     button,
		"clickCount": clickCount,
	})
	if err != nil {
		return fmt.Errorf("dispatching mouseReleased: %w", err)
	}

	return nil
}
