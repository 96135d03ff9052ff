package commands

import (
	"context"
	"fmt"

	"github.com/mobile-next/devicebridge/controller"
)

// TunnelStartRequest bridges a remote ADB WebSocket to a local port
type TunnelStartRequest struct {
	RemoteURL string `json:"remoteUrl"`
	Token     string `json:"token,omitempty"`
}

type TunnelStopRequest struct {
	Address string `json:"address"`
}

func TunnelStartCommand(ctx context.Context, c *controller.Controller, req TunnelStartRequest) *CommandResponse {
	return fromResult(c.StartTunnel(ctx, req.RemoteURL, req.Token))
}

func TunnelStopCommand(c *controller.Controller, req TunnelStopRequest) *CommandResponse {
	if req.Address == "" {
		return NewErrorResponse(fmt.Errorf("address is required"))
	}
	return fromResult(c.StopTunnel(req.Address))
}

func TunnelListCommand(c *controller.Controller) *CommandResponse {
	return NewSuccessResponse(map[string]interface{}{
		"tunnels": c.Tunnels(),
	})
}
