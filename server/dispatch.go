package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mobile-next/devicebridge/commands"
)

// HandlerFunc is the signature for JSON-RPC method handlers
type HandlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// paramsError marks a request whose params could not be used.
type paramsError struct {
	err error
}

func (e *paramsError) Error() string { return e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

func invalidParams(format string, args ...interface{}) error {
	return &paramsError{fmt.Errorf(format, args...)}
}

// slowMethods get a longer write deadline on /rpc.
var slowMethods = map[string]bool{
	"device_attach": true,
	"record_stop":   true,
	"tunnel_start":  true,
}

// decodeParams unmarshals params into v and checks that every required
// field was present.
func decodeParams(params json.RawMessage, v interface{}, required ...string) error {
	empty := len(bytes.TrimSpace(params)) == 0 || string(bytes.TrimSpace(params)) == "null"
	if empty {
		if len(required) > 0 {
			return invalidParams("'params' is required with fields: %s", strings.Join(required, ", "))
		}
		return nil
	}

	if err := json.Unmarshal(params, v); err != nil {
		if len(required) > 0 {
			return invalidParams("invalid parameters: %v. Expected fields: %s", err, strings.Join(required, ", "))
		}
		return invalidParams("invalid parameters: %v", err)
	}

	if len(required) == 0 {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(params, &raw); err != nil {
		return invalidParams("invalid parameters format")
	}
	for _, field := range required {
		if _, exists := raw[field]; !exists {
			return invalidParams("'%s' is required", field)
		}
	}
	return nil
}

func unwrap(response *commands.CommandResponse) (interface{}, error) {
	if response.Status == "error" {
		return nil, fmt.Errorf("%s", response.Error)
	}
	return response.Data, nil
}

// handle builds a handler that decodes params into Req and runs fn.
func handle[Req any](fn func(ctx context.Context, req Req) *commands.CommandResponse, required ...string) HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var req Req
		if err := decodeParams(params, &req, required...); err != nil {
			return nil, err
		}
		return unwrap(fn(ctx, req))
	}
}

// methodRegistry maps method names to handlers.
func (s *Server) methodRegistry() map[string]HandlerFunc {
	c := s.ctrl
	return map[string]HandlerFunc{
		"devices": func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return unwrap(commands.DevicesCommand(ctx, c))
		},
		"device_classify": handle(func(ctx context.Context, req commands.DeviceRequest) *commands.CommandResponse {
			return commands.ClassifyCommand(ctx, c, req)
		}, "deviceId"),
		"device_attach": handle(func(ctx context.Context, req commands.AttachRequest) *commands.CommandResponse {
			return commands.AttachCommand(ctx, c, req)
		}),
		"device_detach": handle(func(ctx context.Context, req commands.DeviceRequest) *commands.CommandResponse {
			return commands.DetachCommand(ctx, c, req)
		}, "deviceId"),
		"device_info": handle(func(ctx context.Context, req commands.DeviceRequest) *commands.CommandResponse {
			return commands.InfoCommand(ctx, c, req)
		}),
		"io_tap": handle(func(ctx context.Context, req commands.TapRequest) *commands.CommandResponse {
			return commands.TapCommand(ctx, c, req)
		}, "x", "y"),
		"io_swipe": handle(func(ctx context.Context, req commands.SwipeRequest) *commands.CommandResponse {
			return commands.SwipeCommand(ctx, c, req)
		}, "x1", "y1", "x2", "y2"),
		"io_text": handle(func(ctx context.Context, req commands.TextRequest) *commands.CommandResponse {
			return commands.TextCommand(ctx, c, req)
		}, "text"),
		"io_button": handle(func(ctx context.Context, req commands.ButtonRequest) *commands.CommandResponse {
			return commands.ButtonCommand(ctx, c, req)
		}, "button"),
		"io_key": handle(func(ctx context.Context, req commands.KeyRequest) *commands.CommandResponse {
			return commands.KeyCommand(ctx, c, req)
		}, "code"),
		"io_erase": handle(func(ctx context.Context, req commands.EraseRequest) *commands.CommandResponse {
			return commands.EraseCommand(ctx, c, req)
		}),
		"io_element": handle(func(ctx context.Context, req commands.ElementRequest) *commands.CommandResponse {
			return commands.ElementCommand(ctx, c, req)
		}),
		"io_orientation_set": handle(func(ctx context.Context, req commands.OrientationSetRequest) *commands.CommandResponse {
			return commands.OrientationSetCommand(ctx, c, req)
		}, "orientation"),
		"screenshot": s.handleScreenshot,
		"screen_data": handle(func(ctx context.Context, req commands.DeviceRequest) *commands.CommandResponse {
			return commands.ScreenDataCommand(ctx, c, req)
		}),
		"dump_ui": handle(func(ctx context.Context, req commands.DumpUIRequest) *commands.CommandResponse {
			return commands.DumpUICommand(ctx, c, req)
		}),
		"apps_launch": handle(func(ctx context.Context, req commands.AppRequest) *commands.CommandResponse {
			return commands.LaunchAppCommand(ctx, c, req)
		}, "bundleId"),
		"apps_terminate": handle(func(ctx context.Context, req commands.AppRequest) *commands.CommandResponse {
			return commands.TerminateAppCommand(ctx, c, req)
		}),
		"apps_foreground": handle(func(ctx context.Context, req commands.DeviceRequest) *commands.CommandResponse {
			return commands.ForegroundAppCommand(ctx, c, req)
		}),
		"url": handle(func(ctx context.Context, req commands.URLRequest) *commands.CommandResponse {
			return commands.URLCommand(ctx, c, req)
		}, "url"),
		"record_start": handle(func(ctx context.Context, req commands.RecordStartRequest) *commands.CommandResponse {
			return commands.RecordStartCommand(ctx, c, req)
		}),
		"record_stop": handle(func(ctx context.Context, req commands.RecordStopRequest) *commands.CommandResponse {
			return commands.RecordStopCommand(ctx, c, req)
		}),
		"record_status": func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return unwrap(commands.RecordStatusCommand(c))
		},
		"tunnel_start": handle(func(ctx context.Context, req commands.TunnelStartRequest) *commands.CommandResponse {
			return commands.TunnelStartCommand(ctx, c, req)
		}, "remoteUrl"),
		"tunnel_stop": handle(func(ctx context.Context, req commands.TunnelStopRequest) *commands.CommandResponse {
			return commands.TunnelStopCommand(c, req)
		}, "address"),
		"tunnel_list": func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			return unwrap(commands.TunnelListCommand(c))
		},
		"server.shutdown": func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			s.requestShutdown()
			return okResponse, nil
		},
	}
}

// ScreenshotParams represents the parameters for the screenshot request
type ScreenshotParams struct {
	DeviceID string `json:"deviceId"`
	Format   string `json:"format,omitempty"`  // "png" or "jpeg"
	Quality  int    `json:"quality,omitempty"` // 1-100, only used for JPEG
}

func (s *Server) handleScreenshot(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ScreenshotParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	response := commands.ScreenshotCommand(ctx, s.ctrl, commands.ScreenshotRequest{
		DeviceID:   p.DeviceID,
		Format:     p.Format,
		Quality:    p.Quality,
		OutputPath: "-", // always return base64 data for server
	})
	if response.Status == "error" {
		return nil, fmt.Errorf("%s", response.Error)
	}

	if screenshotResp, ok := response.Data.(commands.ScreenshotResponse); ok {
		return map[string]interface{}{
			"format": screenshotResp.Format,
			"data":   fmt.Sprintf("data:image/%s;base64,%s", screenshotResp.Format, screenshotResp.Data),
		}, nil
	}

	return nil, fmt.Errorf("unexpected response format")
}
