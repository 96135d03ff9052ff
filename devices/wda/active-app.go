package wda

import (
	"context"
	"fmt"

	"github.com/mobile-next/devicebridge/types"
)

// ActiveAppInfo returns the foreground application.
// The /wda/activeAppInfo endpoint does not require a session.
func (c *Client) ActiveAppInfo(ctx context.Context) (*types.ActiveAppInfo, error) {
	response, err := c.GetEndpoint(ctx, "wda/activeAppInfo")
	if err != nil {
		return nil, fmt.Errorf("failed to get active app info: %w", err)
	}

	value, ok := response["value"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected response format: missing or invalid 'value' field")
	}

	bundleID, _ := value["bundleId"].(string)
	name, _ := value["name"].(string)
	pid := 0
	if pidFloat, ok := value["pid"].(float64); ok {
		pid = int(pidFloat)
	}

	return &types.ActiveAppInfo{
		BundleID:  bundleID,
		Name:      name,
		ProcessID: pid,
	}, nil
}
