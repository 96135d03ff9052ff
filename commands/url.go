package commands

import (
	"context"
	"fmt"

	"github.com/mobile-next/devicebridge/controller"
)

// URLRequest represents the parameters for a URL opening command
type URLRequest struct {
	DeviceID string `json:"deviceId"`
	URL      string `json:"url"`
}

// URLCommand opens a URL on the specified device
func URLCommand(ctx context.Context, c *controller.Controller, req URLRequest) *CommandResponse {
	if req.URL == "" {
		return NewErrorResponse(fmt.Errorf("URL is required"))
	}
	return fromResult(c.OpenURL(ctx, req.DeviceID, req.URL))
}
