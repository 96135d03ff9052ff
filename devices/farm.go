package devices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mobile-next/devicebridge/devices/wda"
	"github.com/mobile-next/devicebridge/types"
	"github.com/mobile-next/devicebridge/utils"
)

const (
	DefaultFarmHubURL      = "https://hub-cloud.browserstack.com/wd/hub"
	DefaultFarmBuildName   = "devicebridge-session"
	DefaultFarmSessionName = "BrowserStack Session"

	farmDashboardURL   = "https://app-automate.browserstack.com/dashboard/v2/sessions/"
	farmSwipeHold      = 500 * time.Millisecond
	farmSessionTimeout = 120 * time.Second
	farmCleanupTimeout = 15 * time.Second
)

type FarmOptions struct {
	HubURL          string
	Username        string
	AccessKey       string
	DeviceName      string
	PlatformVersion string
	AppURL          string
	ProjectName     string
	BuildName       string
	SessionName     string
	Timeout         time.Duration
}

// FarmDevice drives a device farm iPhone through a remote XCUITest session.
type FarmDevice struct {
	id   string
	opts FarmOptions

	mu     sync.Mutex
	client *wda.Client
	size   *types.Size
}

func NewFarmDevice(id string, opts FarmOptions) *FarmDevice {
	if opts.HubURL == "" {
		opts.HubURL = DefaultFarmHubURL
	}
	if opts.BuildName == "" {
		opts.BuildName = DefaultFarmBuildName
	}
	if opts.SessionName == "" {
		opts.SessionName = DefaultFarmSessionName
	}
	if opts.Timeout <= 0 {
		opts.Timeout = farmSessionTimeout
	}
	if id == "" {
		id = opts.DeviceName
	}
	return &FarmDevice{id: id, opts: opts}
}

func (f *FarmDevice) ID() string { return f.id }

func (f *FarmDevice) Name() string {
	if f.opts.DeviceName != "" {
		return f.opts.DeviceName
	}
	return f.id
}

func (f *FarmDevice) Platform() Platform { return PlatformIOS }
func (f *FarmDevice) Kind() BackendKind  { return BackendDeviceFarm }

func (f *FarmDevice) Identity() Identity {
	return Identity{ID: f.id, Platform: PlatformIOS, Kind: BackendDeviceFarm, Name: f.Name()}
}

// Capabilities returns the W3C capabilities sent when the session is created.
func (f *FarmDevice) Capabilities() map[string]interface{} {
	options := map[string]interface{}{
		"userName":    f.opts.Username,
		"accessKey":   f.opts.AccessKey,
		"buildName":   f.opts.BuildName,
		"sessionName": f.opts.SessionName,
		"debug":       true,
	}
	if f.opts.ProjectName != "" {
		options["projectName"] = f.opts.ProjectName
	}

	caps := map[string]interface{}{
		"platformName":           "iOS",
		"appium:deviceName":      f.opts.DeviceName,
		"appium:platformVersion": f.opts.PlatformVersion,
		"appium:automationName":  "XCUITest",
		"bstack:options":         options,
	}
	if f.opts.AppURL != "" {
		caps["appium:app"] = f.opts.AppURL
	}
	return caps
}

func (f *FarmDevice) Init(ctx context.Context) error {
	return guard(f.Identity(), "Init", func() error {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.client != nil {
			return nil
		}
		if f.opts.Username == "" || f.opts.AccessKey == "" {
			return &SetupError{
				Tool:         "device farm credentials",
				Instructions: "Set [farm] username in the config file and store the access key with 'devicebridge auth farm'",
			}
		}
		if f.opts.DeviceName == "" {
			return &SetupError{Tool: "device farm", Err: fmt.Errorf("no device name configured")}
		}

		utils.Info("Creating device farm session for %s (iOS %s)", f.opts.DeviceName, f.opts.PlatformVersion)

		client := wda.NewClient(f.opts.HubURL, f.opts.Timeout).WithBasicAuth(f.opts.Username, f.opts.AccessKey)
		sessionID, err := client.CreateSession(ctx, f.Capabilities())
		if err != nil {
			return err
		}

		f.client = client
		utils.Info("Device farm session created. View session: %s%s", farmDashboardURL, sessionID)
		return nil
	})
}

// SessionURL links to the farm dashboard for the open session.
func (f *FarmDevice) SessionURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil || f.client.SessionID() == "" {
		return ""
	}
	return farmDashboardURL + f.client.SessionID()
}

func (f *FarmDevice) Cleanup() error {
	f.mu.Lock()
	client := f.client
	f.client = nil
	f.size = nil
	f.mu.Unlock()

	if client == nil {
		return nil
	}
	if sessionID := client.SessionID(); sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), farmCleanupTimeout)
		defer cancel()
		utils.Info("Ending device farm session")
		if err := client.DeleteSession(ctx, sessionID); err != nil {
			utils.Verbose("error ending device farm session: %v", err)
		}
	}
	return nil
}

func (f *FarmDevice) session() (*wda.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil, ErrNotInitialized
	}
	return f.client, nil
}

func (f *FarmDevice) Tap(ctx context.Context, x, y int, duration time.Duration) error {
	return guard(f.Identity(), "Tap", func() error {
		client, err := f.session()
		if err != nil {
			return err
		}
		return client.Tap(ctx, x, y, duration)
	})
}

func (f *FarmDevice) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return guard(f.Identity(), "Swipe", func() error {
		return f.swipe(ctx, x1, y1, x2, y2, duration)
	})
}

func (f *FarmDevice) swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	client, err := f.session()
	if err != nil {
		return err
	}
	if duration <= 0 {
		duration = farmSwipeHold
	}
	return client.Gesture(ctx, wda.HoldAndMoveActions(x1, y1, x2, y2, duration))
}

func (f *FarmDevice) Screenshot(ctx context.Context) ([]byte, error) {
	return guardValue(f.Identity(), "Screenshot", func() ([]byte, error) {
		client, err := f.session()
		if err != nil {
			return nil, err
		}
		return client.Screenshot(ctx)
	})
}

func (f *FarmDevice) InputText(ctx context.Context, text string) error {
	return guard(f.Identity(), "InputText", func() error {
		client, err := f.session()
		if err != nil {
			return err
		}
		return f.typeIntoActive(ctx, client, text)
	})
}

func (f *FarmDevice) typeIntoActive(ctx context.Context, client *wda.Client, text string) error {
	elementID, err := client.ActiveElement(ctx)
	if err != nil {
		return err
	}
	return client.ElementSendKeys(ctx, elementID, text)
}

func (f *FarmDevice) LaunchApp(ctx context.Context, bundleID string) error {
	return guard(f.Identity(), "LaunchApp", func() error {
		client, err := f.session()
		if err != nil {
			return err
		}
		_, err = client.ExecuteScript(ctx, "mobile: launchApp", map[string]interface{}{"bundleId": bundleID})
		return err
	})
}

func (f *FarmDevice) TerminateApp(ctx context.Context, bundleID string) error {
	return guard(f.Identity(), "TerminateApp", func() error {
		client, err := f.session()
		if err != nil {
			return err
		}
		if bundleID == "" {
			return fmt.Errorf("terminating the foreground app without a bundle id: %w", ErrUnsupported)
		}
		_, err = client.ExecuteScript(ctx, "mobile: terminateApp", map[string]interface{}{"bundleId": bundleID})
		return err
	})
}

func (f *FarmDevice) OpenURL(ctx context.Context, url string) error {
	return guard(f.Identity(), "OpenURL", func() error {
		client, err := f.session()
		if err != nil {
			return err
		}
		return client.OpenURL(ctx, url)
	})
}

func (f *FarmDevice) PressButton(ctx context.Context, button Button) error {
	return guard(f.Identity(), "PressButton", func() error {
		client, err := f.session()
		if err != nil {
			return err
		}

		var name string
		switch button {
		case ButtonHome:
			name = wda.ButtonHome
		case ButtonVolumeUp:
			name = wda.ButtonVolumeUp
		case ButtonVolumeDown:
			name = wda.ButtonVolumeDown
		case ButtonEnter:
			return f.typeIntoActive(ctx, client, "\n")
		case ButtonBack:
			size, err := f.screenSize(ctx, client)
			if err != nil {
				return err
			}
			return iosBackSwipe(ctx, size, f.swipe)
		case ButtonPower:
			return fmt.Errorf("%s on device farm: %w", button, ErrUnsupported)
		default:
			return fmt.Errorf("unsupported button: %s", button)
		}

		_, err = client.ExecuteScript(ctx, "mobile: pressButton", map[string]interface{}{"name": name})
		return err
	})
}

// KeyCode supports delete, done by rewriting the focused field without its
// last character, and return.
func (f *FarmDevice) KeyCode(ctx context.Context, code int) error {
	return guard(f.Identity(), "KeyCode", func() error {
		client, err := f.session()
		if err != nil {
			return err
		}

		switch code {
		case IOSKeyDelete:
			elementID, err := client.ActiveElement(ctx)
			if err != nil {
				return err
			}
			current, err := client.ElementText(ctx, elementID)
			if err != nil {
				return err
			}
			if current == "" {
				return nil
			}
			if err := client.ElementClear(ctx, elementID); err != nil {
				return err
			}
			runes := []rune(current)
			if len(runes) == 1 {
				return nil
			}
			return client.ElementSendKeys(ctx, elementID, string(runes[:len(runes)-1]))
		case IOSKeyEnter:
			return f.typeIntoActive(ctx, client, "\n")
		default:
			utils.Verbose("ignoring key code %d on device farm", code)
			return nil
		}
	})
}

func (f *FarmDevice) DescribeUI(ctx context.Context) ([]types.ScreenElement, error) {
	return guardValue(f.Identity(), "DescribeUI", func() ([]types.ScreenElement, error) {
		client, err := f.session()
		if err != nil {
			return nil, err
		}
		source, err := client.Source(ctx)
		if err != nil {
			return nil, err
		}
		return wda.ParseXMLSource(source)
	})
}

// CurrentForegroundApp is not available through the farm's session API.
func (f *FarmDevice) CurrentForegroundApp(ctx context.Context) (*types.ActiveAppInfo, error) {
	return guardValue(f.Identity(), "CurrentForegroundApp", func() (*types.ActiveAppInfo, error) {
		if _, err := f.session(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("foreground app on device farm: %w", ErrUnsupported)
	})
}

func (f *FarmDevice) ScreenSize(ctx context.Context) (types.Size, error) {
	return guardValue(f.Identity(), "ScreenSize", func() (types.Size, error) {
		client, err := f.session()
		if err != nil {
			return types.Size{}, err
		}
		return f.screenSize(ctx, client)
	})
}

func (f *FarmDevice) screenSize(ctx context.Context, client *wda.Client) (types.Size, error) {
	f.mu.Lock()
	cached := f.size
	f.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	size, err := client.WindowSize(ctx)
	if err != nil {
		return types.Size{}, err
	}
	f.mu.Lock()
	f.size = &size
	f.mu.Unlock()
	return size, nil
}
