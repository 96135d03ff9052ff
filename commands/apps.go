package commands

import (
	"context"
	"fmt"

	"github.com/mobile-next/devicebridge/controller"
)

// AppRequest represents the parameters for app-related commands
type AppRequest struct {
	DeviceID string `json:"deviceId"`
	BundleID string `json:"bundleId"`
}

// LaunchAppCommand launches an app on the specified device
func LaunchAppCommand(ctx context.Context, c *controller.Controller, req AppRequest) *CommandResponse {
	if req.BundleID == "" {
		return NewErrorResponse(fmt.Errorf("bundle ID is required"))
	}
	return fromResult(c.LaunchApp(ctx, req.DeviceID, req.BundleID))
}

// TerminateAppCommand terminates an app, or the foreground app when no
// bundle id is given
func TerminateAppCommand(ctx context.Context, c *controller.Controller, req AppRequest) *CommandResponse {
	return fromResult(c.TerminateApp(ctx, req.DeviceID, req.BundleID))
}

func ForegroundAppCommand(ctx context.Context, c *controller.Controller, req DeviceRequest) *CommandResponse {
	return fromResult(c.ForegroundApp(ctx, req.DeviceID))
}
