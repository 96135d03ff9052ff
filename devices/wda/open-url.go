package wda

import (
	"context"
	"fmt"
)

func (c *Client) OpenURL(ctx context.Context, url string) error {
	return c.withSession(func(sessionID string) error {
		_, err := c.PostEndpoint(ctx, c.sessionPath(sessionID, "url"), map[string]interface{}{
			"url": url,
		})
		if err != nil {
			return fmt.Errorf("failed to open URL: %w", err)
		}
		return nil
	})
}
