package wda

import (
	"context"
	"fmt"
)

// Button names understood by wda/pressButton and "mobile: pressButton".
const (
	ButtonHome       = "home"
	ButtonVolumeUp   = "volumeUp"
	ButtonVolumeDown = "volumeDown"
)

func (c *Client) PressButton(ctx context.Context, name string) error {
	return c.withSession(func(sessionID string) error {
		_, err := c.PostEndpoint(ctx, c.sessionPath(sessionID, "wda/pressButton"), map[string]interface{}{
			"name": name,
		})
		if err != nil {
			return fmt.Errorf("failed to press button %s: %w", name, err)
		}
		return nil
	})
}

// Home goes to the home screen. It does not need a session.
func (c *Client) Home(ctx context.Context) error {
	if _, err := c.PostEndpoint(ctx, "wda/homescreen", nil); err != nil {
		return fmt.Errorf("failed to press home: %w", err)
	}
	return nil
}
