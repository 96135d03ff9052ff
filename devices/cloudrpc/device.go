package cloudrpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

type DeviceInfo struct {
	UDID         string  `json:"udid"`
	ScreenWidth  float64 `json:"screenWidth"`
	ScreenHeight float64 `json:"screenHeight"`
	Model        string  `json:"model"`
}

type InstalledApp struct {
	BundleID    string `json:"bundleId"`
	Name        string `json:"name"`
	InstallType string `json:"installType"`
}

type ScreenshotData struct {
	Base64 string `json:"base64"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Selector picks an accessibility element for tapElement. Empty fields are omitted.
type Selector struct {
	AccessibilityID string `json:"accessibilityId,omitempty"`
	Label           string `json:"label,omitempty"`
	LabelContains   string `json:"labelContains,omitempty"`
	ElementType     string `json:"elementType,omitempty"`
	Title           string `json:"title,omitempty"`
	TitleContains   string `json:"titleContains,omitempty"`
	Value           string `json:"value,omitempty"`
}

type TapElementResult struct {
	ElementLabel string `json:"elementLabel"`
	ElementType  string `json:"elementType"`
}

type InstallResult struct {
	URL      string `json:"url"`
	BundleID string `json:"bundleId"`
}

func decode(msg map[string]json.RawMessage, v interface{}) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (c *Client) fetchDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	msg, err := c.Call(ctx, "deviceInfo", nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device info: %w", err)
	}

	var info DeviceInfo
	if err := decode(msg, &info); err != nil {
		return nil, fmt.Errorf("invalid device info: %w", err)
	}

	c.mu.Lock()
	c.info = &info
	c.mu.Unlock()
	return &info, nil
}

// DeviceInfo returns the info fetched by Connect.
func (c *Client) DeviceInfo() (*DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		return nil, errors.New("device info not available, connect first")
	}
	info := *c.info
	return &info, nil
}

func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := c.ScreenshotData(ctx)
	if err != nil {
		return nil, err
	}
	image, err := base64.StdEncoding.DecodeString(data.Base64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return image, nil
}

func (c *Client) ScreenshotData(ctx context.Context) (*ScreenshotData, error) {
	msg, err := c.Call(ctx, "screenshot", nil, 0)
	if err != nil {
		return nil, err
	}
	var data ScreenshotData
	if err := decode(msg, &data); err != nil {
		return nil, fmt.Errorf("invalid screenshot reply: %w", err)
	}
	return &data, nil
}

// ElementTree returns the accessibility tree as raw JSON text.
func (c *Client) ElementTree(ctx context.Context) (string, error) {
	msg, err := c.Call(ctx, "elementTree", nil, ElementTreeTimeout)
	if err != nil {
		return "", err
	}
	var tree string
	if raw, ok := msg["json"]; ok {
		if err := json.Unmarshal(raw, &tree); err != nil {
			return "", fmt.Errorf("invalid element tree: %w", err)
		}
	}
	return tree, nil
}

// Tap sends screen dimensions with the point so the instance can scale it.
func (c *Client) Tap(ctx context.Context, x, y int, duration time.Duration) error {
	info, err := c.DeviceInfo()
	if err != nil {
		return err
	}

	params := map[string]interface{}{
		"x":            x,
		"y":            y,
		"screenWidth":  info.ScreenWidth,
		"screenHeight": info.ScreenHeight,
	}
	if duration > 0 {
		params["duration"] = duration.Seconds()
	}
	_, err = c.Call(ctx, "tap", params, 0)
	return err
}

func (c *Client) TapElement(ctx context.Context, selector Selector) (*TapElementResult, error) {
	msg, err := c.Call(ctx, "tapElement", map[string]interface{}{"selector": selector}, 0)
	if err != nil {
		return nil, err
	}
	var result TapElementResult
	if err := decode(msg, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) TypeText(ctx context.Context, text string, pressEnter bool) error {
	_, err := c.Call(ctx, "typeText", map[string]interface{}{"text": text, "pressEnter": pressEnter}, 0)
	return err
}

// PressKey sends a named key ("home", "lock") or a numeric HID code as text.
func (c *Client) PressKey(ctx context.Context, key string, modifiers ...string) error {
	params := map[string]interface{}{"key": key}
	if len(modifiers) > 0 {
		params["modifiers"] = modifiers
	}
	_, err := c.Call(ctx, "pressKey", params, 0)
	return err
}

func (c *Client) KeyCode(ctx context.Context, code int) error {
	return c.PressKey(ctx, strconv.Itoa(code))
}

func (c *Client) LaunchApp(ctx context.Context, bundleID string) error {
	_, err := c.Call(ctx, "launchApp", map[string]interface{}{"bundleId": bundleID}, 0)
	return err
}

func (c *Client) TerminateApp(ctx context.Context, bundleID string) error {
	_, err := c.Call(ctx, "terminateApp", map[string]interface{}{"bundleId": bundleID}, 0)
	return err
}

func (c *Client) OpenURL(ctx context.Context, url string) error {
	_, err := c.Call(ctx, "openUrl", map[string]interface{}{"url": url}, 0)
	return err
}

// ListApps accepts the apps field either as a JSON array or as a string holding one.
func (c *Client) ListApps(ctx context.Context) ([]InstalledApp, error) {
	msg, err := c.Call(ctx, "listApps", nil, 0)
	if err != nil {
		return nil, err
	}

	raw, ok := msg["apps"]
	if !ok {
		return nil, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		raw = json.RawMessage(text)
	}

	var apps []InstalledApp
	if err := json.Unmarshal(raw, &apps); err != nil {
		return nil, fmt.Errorf("invalid app list: %w", err)
	}
	return apps, nil
}

// Scroll moves content in direction by pixels, starting at coordinate when given.
func (c *Client) Scroll(ctx context.Context, direction string, pixels int, coordinate []int, momentum float64) error {
	params := map[string]interface{}{"direction": direction, "pixels": pixels}
	if len(coordinate) == 2 {
		params["coordinate"] = coordinate
	}
	if momentum > 0 {
		params["momentum"] = momentum
	}
	_, err := c.Call(ctx, "scroll", params, 0)
	return err
}

// Swipe is expressed as a scroll, which has the opposite sense on the
// vertical axis: dragging a finger up scrolls the content down.
func (c *Client) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	direction, pixels := SwipeToScroll(x1, y1, x2, y2)
	return c.Scroll(ctx, direction, pixels, []int{x1, y1}, math.Min(1.0, duration.Seconds()))
}

// SwipeToScroll converts a swipe into a scroll direction and distance.
func SwipeToScroll(x1, y1, x2, y2 int) (string, int) {
	dx := float64(x2 - x1)
	dy := float64(y2 - y1)

	var direction string
	if math.Abs(dx) > math.Abs(dy) {
		if dx > 0 {
			direction = "left"
		} else {
			direction = "right"
		}
	} else if dy < 0 {
		direction = "down"
	} else {
		direction = "up"
	}
	return direction, int(math.Hypot(dx, dy))
}

// SetOrientation accepts "Portrait" or "Landscape".
func (c *Client) SetOrientation(ctx context.Context, orientation string) error {
	_, err := c.Call(ctx, "setOrientation", map[string]interface{}{"orientation": orientation}, 0)
	return err
}

func (c *Client) InstallApp(ctx context.Context, url, md5 string) (*InstallResult, error) {
	params := map[string]interface{}{"url": url}
	if md5 != "" {
		params["md5"] = md5
	}
	msg, err := c.Call(ctx, "appInstallation", params, InstallTimeout)
	if err != nil {
		return nil, err
	}
	var result InstallResult
	if err := decode(msg, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
