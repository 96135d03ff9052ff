package companion

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mobile-next/devicebridge/utils"
)

// HIDButton names accepted by `idb ui button`.
type HIDButton string

const (
	ButtonHome     HIDButton = "HOME"
	ButtonLock     HIDButton = "LOCK"
	ButtonSide     HIDButton = "SIDE_BUTTON"
	ButtonSiri     HIDButton = "SIRI"
	ButtonApplePay HIDButton = "APPLE_PAY"
)

const defaultIdbPath = "idb"

// Client runs idb commands against one simulator through its companion.
type Client struct {
	runner utils.CommandRunner
	path   string
	udid   string
	host   string
	port   int
}

func NewClient(runner utils.CommandRunner, idbPath, udid string, c *Companion) *Client {
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	if idbPath == "" {
		idbPath = defaultIdbPath
	}
	return &Client{runner: runner, path: idbPath, udid: udid, host: c.Host(), port: c.Port()}
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	return c.runner.Run(ctx, c.path, args...)
}

// ui runs `idb ui <sub> --udid <udid> args...`.
func (c *Client) ui(ctx context.Context, sub string, args ...string) error {
	full := append([]string{"ui", sub, "--udid", c.udid}, args...)
	_, err := c.run(ctx, full...)
	return err
}

// Connect registers the companion with the idb client.
func (c *Client) Connect(ctx context.Context) error {
	output, err := c.run(ctx, "connect", c.host, strconv.Itoa(c.port))
	if err != nil {
		return fmt.Errorf("idb connect %s:%d failed: %w", c.host, c.port, err)
	}
	utils.Verbose("idb connect: %s", strings.TrimSpace(string(output)))
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	_, err := c.run(ctx, "disconnect", c.host, strconv.Itoa(c.port))
	return err
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func (c *Client) Tap(ctx context.Context, x, y int, duration time.Duration) error {
	args := []string{strconv.Itoa(x), strconv.Itoa(y)}
	if duration > 0 {
		args = append(args, "--duration", seconds(duration))
	}
	return c.ui(ctx, "tap", args...)
}

func (c *Client) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	args := []string{strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2)}
	if duration > 0 {
		args = append(args, "--duration", seconds(duration))
	}
	return c.ui(ctx, "swipe", args...)
}

func (c *Client) Text(ctx context.Context, text string) error {
	return c.ui(ctx, "text", text)
}

// Key sends a HID keyboard usage code.
func (c *Client) Key(ctx context.Context, code int) error {
	return c.ui(ctx, "key", strconv.Itoa(code))
}

func (c *Client) Button(ctx context.Context, button HIDButton) error {
	return c.ui(ctx, "button", string(button))
}

// Screenshot captures the screen to a temporary file and returns its PNG bytes.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "idb-screenshot-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "screenshot.png")
	if _, err := c.run(ctx, "screenshot", "--udid", c.udid, path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Launch starts bundleID, bringing it to the foreground if already running.
func (c *Client) Launch(ctx context.Context, bundleID string) error {
	_, err := c.run(ctx, "launch", "--udid", c.udid, "-f", bundleID)
	return err
}

func (c *Client) Terminate(ctx context.Context, bundleID string) error {
	_, err := c.run(ctx, "terminate", "--udid", c.udid, bundleID)
	return err
}

func (c *Client) OpenURL(ctx context.Context, url string) error {
	_, err := c.run(ctx, "open", "--udid", c.udid, url)
	return err
}

// App is one line of `idb list-apps --json`.
type App struct {
	BundleID     string `json:"bundle_id"`
	Name         string `json:"name"`
	InstallType  string `json:"install_type"`
	ProcessState string `json:"process_state"`
	Debuggable   bool   `json:"debuggable"`
	PID          int    `json:"pid,omitempty"`
}

// ListApps returns installed apps. idb prints one JSON object per line.
func (c *Client) ListApps(ctx context.Context) ([]App, error) {
	output, err := c.run(ctx, "list-apps", "--udid", c.udid, "--json")
	if err != nil {
		return nil, err
	}

	var apps []App
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var app App
		if err := json.Unmarshal([]byte(line), &app); err != nil {
			return nil, fmt.Errorf("failed to parse list-apps output: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// DescribeAll returns the raw accessibility nodes of the whole screen.
func (c *Client) DescribeAll(ctx context.Context) ([]AccessibilityNode, error) {
	output, err := c.run(ctx, "ui", "describe-all", "--udid", c.udid, "--json")
	if err != nil {
		return nil, fmt.Errorf("idb describe-all failed: %w", err)
	}
	return ParseAccessibility(output)
}

// RecordVideo starts `idb record-video`. Interrupting the returned process
// finalises the file at path.
func (c *Client) RecordVideo(ctx context.Context, path string) (utils.Process, error) {
	return c.runner.Start(ctx, c.path, "record-video", "--udid", c.udid, path)
}
