package wda

import (
	"context"
	"fmt"
)

// Orientation returns "portrait" or "landscape".
func (c *Client) Orientation(ctx context.Context) (string, error) {
	var orientation string
	err := c.withSession(func(sessionID string) error {
		response, err := c.GetEndpoint(ctx, c.sessionPath(sessionID, "orientation"))
		if err != nil {
			return fmt.Errorf("failed to get orientation: %w", err)
		}

		value, ok := response["value"].(string)
		if !ok {
			return fmt.Errorf("invalid orientation response format")
		}

		switch value {
		case "LANDSCAPE", "LANDSCAPERIGHT", "UIA_DEVICE_ORIENTATION_LANDSCAPELEFT", "UIA_DEVICE_ORIENTATION_LANDSCAPERIGHT":
			orientation = "landscape"
		default:
			orientation = "portrait"
		}
		return nil
	})
	return orientation, err
}

func (c *Client) SetOrientation(ctx context.Context, orientation string) error {
	if orientation != "portrait" && orientation != "landscape" {
		return fmt.Errorf("invalid orientation value '%s', must be 'portrait' or 'landscape'", orientation)
	}

	wdaOrientation := "PORTRAIT"
	if orientation == "landscape" {
		wdaOrientation = "LANDSCAPE"
	}

	return c.withSession(func(sessionID string) error {
		_, err := c.PostEndpoint(ctx, c.sessionPath(sessionID, "orientation"), map[string]interface{}{
			"orientation": wdaOrientation,
		})
		if err != nil {
			return fmt.Errorf("failed to set orientation: %w", err)
		}
		return nil
	})
}
