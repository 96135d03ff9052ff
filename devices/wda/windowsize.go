package wda

import (
	"context"
	"fmt"

	"github.com/mobile-next/devicebridge/types"
)

// WindowSize returns the window size in points.
func (c *Client) WindowSize(ctx context.Context) (types.Size, error) {
	var size types.Size
	err := c.withSession(func(sessionID string) error {
		response, err := c.GetEndpoint(ctx, c.sessionPath(sessionID, "window/rect"))
		if err != nil {
			return fmt.Errorf("failed to get window size: %w", err)
		}

		value, ok := response["value"].(map[string]interface{})
		if !ok {
			return fmt.Errorf("invalid window size response")
		}
		width, _ := value["width"].(float64)
		height, _ := value["height"].(float64)
		if width <= 0 || height <= 0 {
			return fmt.Errorf("invalid window size %vx%v", width, height)
		}

		size = types.Size{Width: int(width), Height: int(height)}
		return nil
	})
	return size, err
}
