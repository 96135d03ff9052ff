package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mobile-next/devicebridge/devices/cloudrpc"
	"github.com/mobile-next/devicebridge/devices/companion"
	"github.com/mobile-next/devicebridge/types"
)

// CloudDevice controls a cloud-hosted iOS instance through its signaling
// WebSocket. The instance itself is provisioned elsewhere.
type CloudDevice struct {
	instanceID string
	apiURL     string
	token      string
	opts       cloudrpc.Options

	// initMu serializes Init; mu only guards the published fields
	initMu sync.Mutex
	mu     sync.Mutex
	client *cloudrpc.Client
	info   *cloudrpc.DeviceInfo
}

func NewCloudDevice(instanceID, apiURL, token string, opts cloudrpc.Options) *CloudDevice {
	return &CloudDevice{instanceID: instanceID, apiURL: apiURL, token: token, opts: opts}
}

func (c *CloudDevice) ID() string { return c.instanceID }

func (c *CloudDevice) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info != nil && c.info.Model != "" {
		return c.info.Model
	}
	return c.instanceID
}

func (c *CloudDevice) Platform() Platform { return PlatformIOS }
func (c *CloudDevice) Kind() BackendKind  { return BackendCloudRPC }

func (c *CloudDevice) Identity() Identity {
	return Identity{ID: c.instanceID, Platform: PlatformIOS, Kind: BackendCloudRPC, Name: c.Name()}
}

func (c *CloudDevice) Init(ctx context.Context) error {
	return guard(c.Identity(), "Init", func() error {
		c.initMu.Lock()
		defer c.initMu.Unlock()

		c.mu.Lock()
		connected := c.client != nil
		c.mu.Unlock()
		if connected {
			return nil
		}
		if c.apiURL == "" || c.token == "" {
			return &SetupError{
				Tool:         "cloud instance",
				Err:          errors.New("api url and token are required"),
				Instructions: "Set [cloud] api_url in the config file and store the token with 'devicebridge auth set cloud-token'",
			}
		}

		client := cloudrpc.NewClient(c.apiURL, c.token, c.opts)
		if err := client.Connect(ctx); err != nil {
			return err
		}
		info, err := client.DeviceInfo()
		if err != nil {
			client.Close()
			return err
		}

		c.mu.Lock()
		c.client = client
		c.info = info
		c.mu.Unlock()
		return nil
	})
}

func (c *CloudDevice) Cleanup() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client != nil {
		client.Close()
	}
	return nil
}

func (c *CloudDevice) rpc() (*cloudrpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, ErrNotInitialized
	}
	return c.client, nil
}

// ConnectionState reports the WebSocket state, or disconnected before Init.
func (c *CloudDevice) ConnectionState() cloudrpc.State {
	client, err := c.rpc()
	if err != nil {
		return cloudrpc.StateDisconnected
	}
	return client.State()
}

func (c *CloudDevice) Tap(ctx context.Context, x, y int, duration time.Duration) error {
	return guard(c.Identity(), "Tap", func() error {
		client, err := c.rpc()
		if err != nil {
			return err
		}
		return client.Tap(ctx, x, y, duration)
	})
}

func (c *CloudDevice) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return guard(c.Identity(), "Swipe", func() error {
		return c.swipe(ctx, x1, y1, x2, y2, duration)
	})
}

func (c *CloudDevice) swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	client, err := c.rpc()
	if err != nil {
		return err
	}
	if duration <= 0 {
		duration = DefaultSwipeDuration
	}
	return client.Swipe(ctx, x1, y1, x2, y2, duration)
}

func (c *CloudDevice) Screenshot(ctx context.Context) ([]byte, error) {
	return guardValue(c.Identity(), "Screenshot", func() ([]byte, error) {
		client, err := c.rpc()
		if err != nil {
			return nil, err
		}
		return client.Screenshot(ctx)
	})
}

func (c *CloudDevice) InputText(ctx context.Context, text string) error {
	return guard(c.Identity(), "InputText", func() error {
		client, err := c.rpc()
		if err != nil {
			return err
		}
		return client.TypeText(ctx, text, false)
	})
}

func (c *CloudDevice) LaunchApp(ctx context.Context, bundleID string) error {
	return guard(c.Identity(), "LaunchApp", func() error {
		client, err := c.rpc()
		if err != nil {
			return err
		}
		return client.LaunchApp(ctx, bundleID)
	})
}

func (c *CloudDevice) TerminateApp(ctx context.Context, bundleID string) error {
	return guard(c.Identity(), "TerminateApp", func() error {
		client, err := c.rpc()
		if err != nil {
			return err
		}
		if bundleID == "" {
			app, err := c.foregroundApp(ctx, client)
			if err != nil {
				return err
			}
			if app.BundleID == "" {
				return fmt.Errorf("could not resolve bundle id for foreground app %q", app.Name)
			}
			bundleID = app.BundleID
		}
		return client.TerminateApp(ctx, bundleID)
	})
}

func (c *CloudDevice) OpenURL(ctx context.Context, url string) error {
	return guard(c.Identity(), "OpenURL", func() error {
		client, err := c.rpc()
		if err != nil {
			return err
		}
		return client.OpenURL(ctx, url)
	})
}

func (c *CloudDevice) PressButton(ctx context.Context, button Button) error {
	return guard(c.Identity(), "PressButton", func() error {
		client, err := c.rpc()
		if err != nil {
			return err
		}

		switch button {
		case ButtonHome:
			return client.PressKey(ctx, "home")
		case ButtonPower:
			return client.PressKey(ctx, "lock")
		case ButtonEnter:
			return client.KeyCode(ctx, IOSKeyEnter)
		case ButtonBack:
			size, err := c.screenSize()
			if err != nil {
				return err
			}
			return iosBackSwipe(ctx, size, c.swipe)
		case ButtonVolumeUp, ButtonVolumeDown:
			return fmt.Errorf("%s on cloud instance: %w", button, ErrUnsupported)
		default:
			return fmt.Errorf("unsupported button: %s", button)
		}
	})
}

func (c *CloudDevice) KeyCode(ctx context.Context, code int) error {
	return guard(c.Identity(), "KeyCode", func() error {
		client, err := c.rpc()
		if err != nil {
			return err
		}
		return client.KeyCode(ctx, code)
	})
}

func (c *CloudDevice) describe(ctx context.Context, client *cloudrpc.Client) ([]companion.AccessibilityNode, error) {
	tree, err := client.ElementTree(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(tree) == "" {
		return nil, nil
	}
	return companion.ParseAccessibility([]byte(tree))
}

// DescribeUI reads the element tree, which uses the same accessibility
// shape as the simulator companion.
func (c *CloudDevice) DescribeUI(ctx context.Context) ([]types.ScreenElement, error) {
	return guardValue(c.Identity(), "DescribeUI", func() ([]types.ScreenElement, error) {
		client, err := c.rpc()
		if err != nil {
			return nil, err
		}
		nodes, err := c.describe(ctx, client)
		if err != nil {
			return nil, err
		}
		return companion.Elements(nodes), nil
	})
}

func (c *CloudDevice) CurrentForegroundApp(ctx context.Context) (*types.ActiveAppInfo, error) {
	return guardValue(c.Identity(), "CurrentForegroundApp", func() (*types.ActiveAppInfo, error) {
		client, err := c.rpc()
		if err != nil {
			return nil, err
		}
		return c.foregroundApp(ctx, client)
	})
}

// foregroundApp takes the Application node's label and looks it up in the
// installed app list to find the bundle id.
func (c *CloudDevice) foregroundApp(ctx context.Context, client *cloudrpc.Client) (*types.ActiveAppInfo, error) {
	nodes, err := c.describe(ctx, client)
	if err != nil {
		return nil, err
	}
	app, ok := companion.ApplicationNode(nodes)
	if !ok || app.Label == nil || *app.Label == "" {
		return nil, errors.New("no foreground app detected")
	}

	info := &types.ActiveAppInfo{Name: *app.Label, ProcessID: app.PID}
	apps, err := client.ListApps(ctx)
	if err != nil {
		return info, nil
	}
	for _, installed := range apps {
		if installed.Name == info.Name {
			info.BundleID = installed.BundleID
			break
		}
	}
	return info, nil
}

func (c *CloudDevice) ScreenSize(ctx context.Context) (types.Size, error) {
	return guardValue(c.Identity(), "ScreenSize", func() (types.Size, error) {
		if _, err := c.rpc(); err != nil {
			return types.Size{}, err
		}
		return c.screenSize()
	})
}

func (c *CloudDevice) screenSize() (types.Size, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil || c.info.ScreenWidth <= 0 || c.info.ScreenHeight <= 0 {
		return types.Size{}, errors.New("screen size not reported by cloud instance")
	}
	return types.Size{Width: int(c.info.ScreenWidth), Height: int(c.info.ScreenHeight)}, nil
}

// SetOrientation accepts "portrait" or "landscape" in any case.
func (c *CloudDevice) SetOrientation(ctx context.Context, orientation string) error {
	return guard(c.Identity(), "SetOrientation", func() error {
		client, err := c.rpc()
		if err != nil {
			return err
		}
		switch strings.ToLower(orientation) {
		case "portrait":
			return client.SetOrientation(ctx, "Portrait")
		case "landscape":
			return client.SetOrientation(ctx, "Landscape")
		default:
			return fmt.Errorf("invalid orientation value '%s', must be 'portrait' or 'landscape'", orientation)
		}
	})
}

func (c *CloudDevice) InstallApp(ctx context.Context, url, md5 string) (*cloudrpc.InstallResult, error) {
	return guardValue(c.Identity(), "InstallApp", func() (*cloudrpc.InstallResult, error) {
		client, err := c.rpc()
		if err != nil {
			return nil, err
		}
		return client.InstallApp(ctx, url, md5)
	})
}

func (c *CloudDevice) ListApps(ctx context.Context) ([]cloudrpc.InstalledApp, error) {
	return guardValue(c.Identity(), "ListApps", func() ([]cloudrpc.InstalledApp, error) {
		client, err := c.rpc()
		if err != nil {
			return nil, err
		}
		return client.ListApps(ctx)
	})
}
