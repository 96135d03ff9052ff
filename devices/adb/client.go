package adb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mobile-next/devicebridge/utils"
)

// Client runs the adb binary. All device-scoped calls take the serial explicitly.
type Client struct {
	path   string
	runner utils.CommandRunner
}

// NewClient creates a client for the adb binary at path. An empty path is
// resolved from ANDROID_HOME, then PATH.
func NewClient(path string, runner utils.CommandRunner) *Client {
	if path == "" {
		path = FindAdbPath()
	}
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	return &Client{path: path, runner: runner}
}

// FindAdbPath prefers the platform-tools copy under ANDROID_HOME.
func FindAdbPath() string {
	binary := "adb"
	if runtime.GOOS == "windows" {
		binary = "adb.exe"
	}

	for _, env := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		home := os.Getenv(env)
		if home == "" {
			continue
		}
		candidate := filepath.Join(home, "platform-tools", binary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return binary
}

func (c *Client) Path() string {
	return c.path
}

func (c *Client) args(serial string, args []string) []string {
	if serial == "" {
		return args
	}
	return append([]string{"-s", serial}, args...)
}

// Run executes `adb [-s serial] args...`.
func (c *Client) Run(ctx context.Context, serial string, args ...string) ([]byte, error) {
	return c.runner.Run(ctx, c.path, c.args(serial, args)...)
}

// Shell executes a single shell command line on the device.
func (c *Client) Shell(ctx context.Context, serial string, command string) ([]byte, error) {
	return c.Run(ctx, serial, "shell", command)
}

// ExecOut is like Shell but keeps binary output intact.
func (c *Client) ExecOut(ctx context.Context, serial string, args ...string) ([]byte, error) {
	return c.Run(ctx, serial, append([]string{"exec-out"}, args...)...)
}

// Start launches a long-running adb command, such as screenrecord.
func (c *Client) Start(ctx context.Context, serial string, args ...string) (utils.Process, error) {
	return c.runner.Start(ctx, c.path, c.args(serial, args)...)
}

// Pull copies a file from the device to the host.
func (c *Client) Pull(ctx context.Context, serial, remote, local string) error {
	if _, err := c.Run(ctx, serial, "pull", remote, local); err != nil {
		return fmt.Errorf("failed to pull %s: %w", remote, err)
	}
	return nil
}

// Devices lists everything adb currently knows about, in any state.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	output, err := c.Run(ctx, "", "devices", "-l")
	if err != nil {
		return nil, fmt.Errorf("failed to run 'adb devices': %w", err)
	}
	return ParseDevices(string(output)), nil
}

// Connect attaches adb to a device listening on addr, such as a tunnel endpoint.
func (c *Client) Connect(ctx context.Context, addr string) error {
	output, err := c.Run(ctx, "", "connect", addr)
	if err != nil {
		return err
	}

	text := strings.ToLower(string(output))
	if strings.Contains(text, "connected to") {
		return nil
	}
	return fmt.Errorf("adb connect %s: %s", addr, strings.TrimSpace(string(output)))
}

func (c *Client) Disconnect(ctx context.Context, addr string) error {
	_, err := c.Run(ctx, "", "disconnect", addr)
	return err
}

// GetProp reads a single system property.
func (c *Client) GetProp(ctx context.Context, serial, name string) (string, error) {
	output, err := c.Shell(ctx, serial, "getprop "+name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}
