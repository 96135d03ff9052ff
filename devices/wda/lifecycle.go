package wda

import (
	"context"
	"fmt"
)

// LaunchApp activates bundleID with the WebDriverAgent apps endpoint.
func (c *Client) LaunchApp(ctx context.Context, bundleID string) error {
	return c.appCommand(ctx, "launch", bundleID)
}

func (c *Client) TerminateApp(ctx context.Context, bundleID string) error {
	return c.appCommand(ctx, "terminate", bundleID)
}

func (c *Client) appCommand(ctx context.Context, verb, bundleID string) error {
	return c.withSession(func(sessionID string) error {
		_, err := c.PostEndpoint(ctx, c.sessionPath(sessionID, "wda/apps/"+verb), map[string]interface{}{
			"bundleId": bundleID,
		})
		if err != nil {
			return fmt.Errorf("failed to %s %s: %w", verb, bundleID, err)
		}
		return nil
	})
}

// ExecuteScript runs an Appium "mobile:" extension such as "mobile: launchApp".
func (c *Client) ExecuteScript(ctx context.Context, script string, params map[string]interface{}) (interface{}, error) {
	var value interface{}
	err := c.withSession(func(sessionID string) error {
		args := []interface{}{}
		if params != nil {
			args = append(args, params)
		}
		response, err := c.PostEndpoint(ctx, c.sessionPath(sessionID, "execute/sync"), map[string]interface{}{
			"script": script,
			"args":   args,
		})
		if err != nil {
			return fmt.Errorf("failed to execute %q: %w", script, err)
		}
		value = response["value"]
		return nil
	})
	return value, err
}
