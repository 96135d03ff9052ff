package controller

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/mobile-next/devicebridge/devices"
	"github.com/mobile-next/devicebridge/types"
	"github.com/mobile-next/devicebridge/utils"
)

// DefaultEraseCount is how many characters EraseText deletes when asked for zero.
const DefaultEraseCount = 50

// Tap taps at (x, y). A positive duration holds the touch.
func (c *Controller) Tap(ctx context.Context, id string, x, y int, duration time.Duration) Result {
	if x < 0 || y < 0 {
		return fail(fmt.Errorf("x and y coordinates must be non-negative, got x=%d, y=%d", x, y))
	}
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		if err := d.Tap(ctx, x, y, duration); err != nil {
			return nil, err
		}
		return message("Tapped on device %s at (%d,%d)", d.ID(), x, y), nil
	})
}

// TapPercent taps at a position given as 0-100 percentages of the screen.
func (c *Controller) TapPercent(ctx context.Context, id string, xPercent, yPercent int, duration time.Duration) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		size, err := d.ScreenSize(ctx)
		if err != nil {
			return nil, err
		}
		x := devices.PercentToPixels(xPercent, size.Width)
		y := devices.PercentToPixels(yPercent, size.Height)
		if err := d.Tap(ctx, x, y, duration); err != nil {
			return nil, err
		}
		return message("Tapped on device %s at (%d,%d)", d.ID(), x, y), nil
	})
}

func (c *Controller) Swipe(ctx context.Context, id string, x1, y1, x2, y2 int, duration time.Duration) Result {
	if duration <= 0 {
		duration = devices.DefaultSwipeDuration
	}
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		if err := d.Swipe(ctx, x1, y1, x2, y2, duration); err != nil {
			return nil, err
		}
		return message("Swiped on device %s from (%d,%d) to (%d,%d)", d.ID(), x1, y1, x2, y2), nil
	})
}

func (c *Controller) SwipePercent(ctx context.Context, id string, x1, y1, x2, y2 int, duration time.Duration) Result {
	if duration <= 0 {
		duration = devices.DefaultSwipeDuration
	}
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		size, err := d.ScreenSize(ctx)
		if err != nil {
			return nil, err
		}
		sx, sy := devices.PercentToPixels(x1, size.Width), devices.PercentToPixels(y1, size.Height)
		ex, ey := devices.PercentToPixels(x2, size.Width), devices.PercentToPixels(y2, size.Height)
		if err := d.Swipe(ctx, sx, sy, ex, ey, duration); err != nil {
			return nil, err
		}
		return message("Swiped on device %s from (%d,%d) to (%d,%d)", d.ID(), sx, sy, ex, ey), nil
	})
}

// FindElement returns the index-th element matching resourceID or text.
func (c *Controller) FindElement(ctx context.Context, id, resourceID, text string, index int) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		elements, err := d.DescribeUI(ctx)
		if err != nil {
			return nil, err
		}
		return devices.FindElement(elements, resourceID, text, index)
	})
}

// TapElement taps the centre of the element FindElement would return.
func (c *Controller) TapElement(ctx context.Context, id, resourceID, text string, index int, duration time.Duration) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		elements, err := d.DescribeUI(ctx)
		if err != nil {
			return nil, err
		}
		element, err := devices.FindElement(elements, resourceID, text, index)
		if err != nil {
			return nil, err
		}
		x, y := element.Frame.Center()
		if err := d.Tap(ctx, x, y, duration); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"message": fmt.Sprintf("Tapped on device %s at (%d,%d)", d.ID(), x, y),
			"element": element,
		}, nil
	})
}

func (c *Controller) InputText(ctx context.Context, id, text string) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		if err := d.InputText(ctx, text); err != nil {
			return nil, err
		}
		return message("Sent text to device %s", d.ID()), nil
	})
}

func (c *Controller) PressButton(ctx context.Context, id string, button devices.Button) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		if err := d.PressButton(ctx, button); err != nil {
			return nil, err
		}
		return message("Pressed button '%s' on device %s", button, d.ID()), nil
	})
}

func (c *Controller) Back(ctx context.Context, id string) Result {
	return c.PressButton(ctx, id, devices.ButtonBack)
}

func (c *Controller) Home(ctx context.Context, id string) Result {
	return c.PressButton(ctx, id, devices.ButtonHome)
}

func (c *Controller) Enter(ctx context.Context, id string) Result {
	return c.PressButton(ctx, id, devices.ButtonEnter)
}

func (c *Controller) KeyCode(ctx context.Context, id string, code int) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		if err := d.KeyCode(ctx, code); err != nil {
			return nil, err
		}
		return message("Sent key code %d to device %s", code, d.ID()), nil
	})
}

// EraseText sends n backspaces, DefaultEraseCount when n is not positive.
func (c *Controller) EraseText(ctx context.Context, id string, n int) Result {
	if n <= 0 {
		n = DefaultEraseCount
	}
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		code := devices.DeleteKeyCode(d.Platform())
		for i := 0; i < n; i++ {
			if err := d.KeyCode(ctx, code); err != nil {
				return nil, fmt.Errorf("erase stopped after %d of %d characters: %w", i, n, err)
			}
		}
		return message("Erased %d characters on device %s", n, d.ID()), nil
	})
}

func (c *Controller) LaunchApp(ctx context.Context, id, appID string) Result {
	if appID == "" {
		return fail(fmt.Errorf("app id is required"))
	}
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		if err := d.LaunchApp(ctx, appID); err != nil {
			return nil, err
		}
		return message("Launched %s on device %s", appID, d.ID()), nil
	})
}

// TerminateApp stops appID, or the foreground app when appID is empty.
func (c *Controller) TerminateApp(ctx context.Context, id, appID string) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		if err := d.TerminateApp(ctx, appID); err != nil {
			return nil, err
		}
		if appID == "" {
			return message("Terminated foreground app on device %s", d.ID()), nil
		}
		return message("Terminated %s on device %s", appID, d.ID()), nil
	})
}

func (c *Controller) OpenURL(ctx context.Context, id, url string) Result {
	if url == "" {
		return fail(fmt.Errorf("url is required"))
	}
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		if err := d.OpenURL(ctx, url); err != nil {
			return nil, err
		}
		return message("Opened URL %s on device %s", url, d.ID()), nil
	})
}

// Screenshot returns the raw image bytes.
func (c *Controller) Screenshot(ctx context.Context, id string) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		return d.Screenshot(ctx)
	})
}

// CompressedScreenshot returns a base64 JPEG of the screen. PNG captures are
// re-encoded; anything else is passed through.
func (c *Controller) CompressedScreenshot(ctx context.Context, id string, quality int) Result {
	if quality <= 0 {
		quality = utils.DefaultJPEGQuality
	}
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		data, err := d.Screenshot(ctx)
		if err != nil {
			return nil, err
		}
		if jpeg, err := utils.ConvertPngToJpeg(data, quality); err == nil {
			data = jpeg
		} else {
			utils.Verbose("screenshot from %s is not a PNG, sending as is: %v", d.ID(), err)
		}
		return base64.StdEncoding.EncodeToString(data), nil
	})
}

// ScreenData bundles a screenshot with the UI hierarchy and screen size.
func (c *Controller) ScreenData(ctx context.Context, id string) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		shot, err := d.Screenshot(ctx)
		if err != nil {
			return nil, err
		}
		elements, err := d.DescribeUI(ctx)
		if err != nil {
			return nil, err
		}

		size, err := d.ScreenSize(ctx)
		if err != nil {
			w, h, ierr := utils.ImageSize(shot)
			if ierr != nil {
				return nil, err
			}
			size = types.Size{Width: w, Height: h}
		}

		return &types.ScreenData{
			Base64:   base64.StdEncoding.EncodeToString(shot),
			Elements: elements,
			Width:    size.Width,
			Height:   size.Height,
			Platform: string(d.Platform()),
		}, nil
	})
}

func (c *Controller) DescribeUI(ctx context.Context, id string) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		return d.DescribeUI(ctx)
	})
}

func (c *Controller) ForegroundApp(ctx context.Context, id string) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		return d.CurrentForegroundApp(ctx)
	})
}

func (c *Controller) Info(ctx context.Context, id string) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		info := devices.FullDeviceInfo{DeviceInfo: devices.InfoFor(d.Identity(), "")}
		if size, err := d.ScreenSize(ctx); err == nil {
			info.ScreenSize = &size
		}
		return info, nil
	})
}

type orientationSetter interface {
	SetOrientation(ctx context.Context, orientation string) error
}

// SetOrientation rotates backends that support it to portrait or landscape.
func (c *Controller) SetOrientation(ctx context.Context, id, orientation string) Result {
	if orientation != "portrait" && orientation != "landscape" {
		return fail(fmt.Errorf("invalid orientation value '%s', must be 'portrait' or 'landscape'", orientation))
	}
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		setter, supported := d.(orientationSetter)
		if !supported {
			return nil, fmt.Errorf("%w: orientation on %s", devices.ErrUnsupported, d.Kind())
		}
		if err := setter.SetOrientation(ctx, orientation); err != nil {
			return nil, err
		}
		return message("Set orientation of device %s to %s", d.ID(), orientation), nil
	})
}

// StartRecording begins a screen recording. A zero maxDuration uses the
// configured default.
func (c *Controller) StartRecording(ctx context.Context, id string, maxDuration time.Duration) Result {
	return c.with(ctx, id, func(d devices.ControllableDevice) (interface{}, error) {
		return c.recorder.Start(ctx, d, maxDuration)
	})
}

// StopRecording finalizes the device's recording. The device does not
// need to be attached any more.
func (c *Controller) StopRecording(ctx context.Context, id string) Result {
	if id == "" {
		if sessions := c.recorder.Sessions(); len(sessions) == 1 {
			id = sessions[0].DeviceID
		}
	}
	result, err := c.recorder.Stop(ctx, id)
	if err != nil {
		return fail(err)
	}
	return ok(result)
}
