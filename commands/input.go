package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/mobile-next/devicebridge/controller"
	"github.com/mobile-next/devicebridge/devices"
)

var validButtons = []devices.Button{
	devices.ButtonHome,
	devices.ButtonBack,
	devices.ButtonEnter,
	devices.ButtonVolumeUp,
	devices.ButtonVolumeDown,
	devices.ButtonPower,
}

// TapRequest represents the parameters for a tap command. With Percent set,
// X and Y are 0-100 percentages of the screen.
type TapRequest struct {
	DeviceID   string `json:"deviceId"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Percent    bool   `json:"percent,omitempty"`
	DurationMs int    `json:"durationMs,omitempty"`
}

// SwipeRequest represents the parameters for a swipe command
type SwipeRequest struct {
	DeviceID   string `json:"deviceId"`
	X1         int    `json:"x1"`
	Y1         int    `json:"y1"`
	X2         int    `json:"x2"`
	Y2         int    `json:"y2"`
	Percent    bool   `json:"percent,omitempty"`
	DurationMs int    `json:"durationMs,omitempty"`
}

// TextRequest represents the parameters for a text input command
type TextRequest struct {
	DeviceID string `json:"deviceId"`
	Text     string `json:"text"`
}

// ButtonRequest represents the parameters for a button press command
type ButtonRequest struct {
	DeviceID string `json:"deviceId"`
	Button   string `json:"button"`
}

// KeyRequest sends a raw platform keycode
type KeyRequest struct {
	DeviceID string `json:"deviceId"`
	Code     int    `json:"code"`
}

// EraseRequest deletes Count characters, 50 when zero
type EraseRequest struct {
	DeviceID string `json:"deviceId"`
	Count    int    `json:"count,omitempty"`
}

// ElementRequest locates an element by resource id or text. With Tap set,
// the element is tapped as well.
type ElementRequest struct {
	DeviceID   string `json:"deviceId"`
	ResourceID string `json:"resourceId,omitempty"`
	Text       string `json:"text,omitempty"`
	Index      int    `json:"index,omitempty"`
	Tap        bool   `json:"tap,omitempty"`
	DurationMs int    `json:"durationMs,omitempty"`
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// TapCommand performs a tap operation on the specified device
func TapCommand(ctx context.Context, c *controller.Controller, req TapRequest) *CommandResponse {
	if req.DurationMs < 0 {
		return NewErrorResponse(fmt.Errorf("duration must be non-negative, got %d", req.DurationMs))
	}
	if req.Percent {
		return fromResult(c.TapPercent(ctx, req.DeviceID, req.X, req.Y, millis(req.DurationMs)))
	}
	return fromResult(c.Tap(ctx, req.DeviceID, req.X, req.Y, millis(req.DurationMs)))
}

// SwipeCommand performs a swipe operation on the specified device
func SwipeCommand(ctx context.Context, c *controller.Controller, req SwipeRequest) *CommandResponse {
	if req.Percent {
		return fromResult(c.SwipePercent(ctx, req.DeviceID, req.X1, req.Y1, req.X2, req.Y2, millis(req.DurationMs)))
	}
	return fromResult(c.Swipe(ctx, req.DeviceID, req.X1, req.Y1, req.X2, req.Y2, millis(req.DurationMs)))
}

// TextCommand sends text input to the specified device
func TextCommand(ctx context.Context, c *controller.Controller, req TextRequest) *CommandResponse {
	if req.Text == "" {
		return NewErrorResponse(fmt.Errorf("text is required"))
	}
	return fromResult(c.InputText(ctx, req.DeviceID, req.Text))
}

// ButtonCommand presses a hardware button on the specified device
func ButtonCommand(ctx context.Context, c *controller.Controller, req ButtonRequest) *CommandResponse {
	if req.Button == "" {
		return NewErrorResponse(fmt.Errorf("button name is required"))
	}

	button := devices.Button(req.Button)
	for _, b := range validButtons {
		if b == button {
			return fromResult(c.PressButton(ctx, req.DeviceID, button))
		}
	}
	return NewErrorResponse(fmt.Errorf("unknown button '%s', must be one of %v", req.Button, validButtons))
}

func KeyCommand(ctx context.Context, c *controller.Controller, req KeyRequest) *CommandResponse {
	if req.Code <= 0 {
		return NewErrorResponse(fmt.Errorf("key code must be positive, got %d", req.Code))
	}
	return fromResult(c.KeyCode(ctx, req.DeviceID, req.Code))
}

func EraseCommand(ctx context.Context, c *controller.Controller, req EraseRequest) *CommandResponse {
	if req.Count < 0 {
		return NewErrorResponse(fmt.Errorf("count must be non-negative, got %d", req.Count))
	}
	return fromResult(c.EraseText(ctx, req.DeviceID, req.Count))
}

// ElementCommand finds, and optionally taps, a UI element
func ElementCommand(ctx context.Context, c *controller.Controller, req ElementRequest) *CommandResponse {
	if req.Tap {
		return fromResult(c.TapElement(ctx, req.DeviceID, req.ResourceID, req.Text, req.Index, millis(req.DurationMs)))
	}
	return fromResult(c.FindElement(ctx, req.DeviceID, req.ResourceID, req.Text, req.Index))
}
