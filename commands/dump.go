package commands

import (
	"context"

	"github.com/mobile-next/devicebridge/controller"
	"github.com/mobile-next/devicebridge/types"
)

// DumpUIRequest represents the parameters for dumping UI tree
type DumpUIRequest struct {
	DeviceID string `json:"deviceId"`
}

// DumpUIResponse represents the response for a dump UI command
type DumpUIResponse struct {
	Elements []types.ScreenElement `json:"elements"`
}

// DumpUICommand dumps the flattened UI tree from the specified device
func DumpUICommand(ctx context.Context, c *controller.Controller, req DumpUIRequest) *CommandResponse {
	r := c.DescribeUI(ctx, req.DeviceID)
	if !r.OK {
		return fromResult(r)
	}
	elements, _ := r.Data.([]types.ScreenElement)
	return NewSuccessResponse(DumpUIResponse{Elements: elements})
}

// ScreenDataCommand returns a screenshot together with the elements in it
func ScreenDataCommand(ctx context.Context, c *controller.Controller, req DeviceRequest) *CommandResponse {
	return fromResult(c.ScreenData(ctx, req.DeviceID))
}
