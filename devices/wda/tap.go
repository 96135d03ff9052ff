package wda

import (
	"context"
	"fmt"
	"time"
)

// TapActions is move, down, an optional hold, then up.
func TapActions(x, y int, hold time.Duration) []Action {
	actions := []Action{
		{Type: "pointerMove", Duration: 0, X: x, Y: y},
		{Type: "pointerDown", Button: 0},
	}
	if hold > 0 {
		actions = append(actions, Action{Type: "pause", Duration: int(hold.Milliseconds())})
	}
	return append(actions, Action{Type: "pointerUp", Button: 0})
}

// Tap taps through W3C actions, holding for hold when it is positive.
func (c *Client) Tap(ctx context.Context, x, y int, hold time.Duration) error {
	return c.Gesture(ctx, TapActions(x, y, hold))
}

// TouchAndHold uses the WebDriverAgent long press endpoint.
func (c *Client) TouchAndHold(ctx context.Context, x, y int, duration time.Duration) error {
	return c.withSession(func(sessionID string) error {
		_, err := c.PostEndpoint(ctx, c.sessionPath(sessionID, "wda/touchAndHold"), map[string]interface{}{
			"x":        x,
			"y":        y,
			"duration": duration.Seconds(),
		})
		if err != nil {
			return fmt.Errorf("failed to touch and hold at (%d, %d): %w", x, y, err)
		}
		return nil
	})
}
