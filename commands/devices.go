package commands

import (
	"context"
	"fmt"

	"github.com/mobile-next/devicebridge/controller"
	"github.com/mobile-next/devicebridge/devices"
)

// AttachRequest represents the parameters for attaching a device
type AttachRequest struct {
	DeviceID string `json:"deviceId"`
	Platform string `json:"platform,omitempty"`
	Backend  string `json:"backend,omitempty"`
}

// DevicesCommand lists visible and attached devices
func DevicesCommand(ctx context.Context, c *controller.Controller) *CommandResponse {
	r := c.Devices(ctx)
	if !r.OK {
		return fromResult(r)
	}
	return NewSuccessResponse(map[string]interface{}{
		"devices": r.Data,
	})
}

// ClassifyCommand reports where an iOS device id lives
func ClassifyCommand(ctx context.Context, c *controller.Controller, req DeviceRequest) *CommandResponse {
	return fromResult(c.Classify(ctx, req.DeviceID))
}

func AttachCommand(ctx context.Context, c *controller.Controller, req AttachRequest) *CommandResponse {
	switch devices.Platform(req.Platform) {
	case "", devices.PlatformAndroid, devices.PlatformIOS:
	default:
		return NewErrorResponse(fmt.Errorf("invalid platform '%s', must be 'android' or 'ios'", req.Platform))
	}
	switch devices.BackendKind(req.Backend) {
	case "", devices.BackendCloudRPC, devices.BackendDeviceFarm:
	default:
		return NewErrorResponse(fmt.Errorf("invalid backend '%s', must be '%s' or '%s'", req.Backend, devices.BackendCloudRPC, devices.BackendDeviceFarm))
	}

	return fromResult(c.Attach(ctx, req.DeviceID, controller.AttachOptions{
		Platform: devices.Platform(req.Platform),
		Backend:  devices.BackendKind(req.Backend),
	}))
}

func DetachCommand(ctx context.Context, c *controller.Controller, req DeviceRequest) *CommandResponse {
	if req.DeviceID == "" {
		return NewErrorResponse(fmt.Errorf("device ID is required"))
	}
	return fromResult(c.Detach(ctx, req.DeviceID))
}

// InfoCommand returns the device identity and screen size
func InfoCommand(ctx context.Context, c *controller.Controller, req DeviceRequest) *CommandResponse {
	return fromResult(c.Info(ctx, req.DeviceID))
}
