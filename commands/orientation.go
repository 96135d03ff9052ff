package commands

import (
	"context"

	"github.com/mobile-next/devicebridge/controller"
)

// OrientationSetRequest represents the request for setting device orientation
type OrientationSetRequest struct {
	DeviceID    string `json:"deviceId"`
	Orientation string `json:"orientation"`
}

// OrientationResponse represents the response containing orientation information
type OrientationResponse struct {
	Orientation string `json:"orientation"`
}

// OrientationSetCommand sets the device orientation
func OrientationSetCommand(ctx context.Context, c *controller.Controller, req OrientationSetRequest) *CommandResponse {
	r := c.SetOrientation(ctx, req.DeviceID, req.Orientation)
	if !r.OK {
		return fromResult(r)
	}
	return NewSuccessResponse(OrientationResponse{Orientation: req.Orientation})
}
