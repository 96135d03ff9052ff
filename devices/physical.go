package devices

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/mobile-next/devicebridge/devices/companion"
	iosutil "github.com/mobile-next/devicebridge/devices/ios"
	"github.com/mobile-next/devicebridge/devices/wda"
	"github.com/mobile-next/devicebridge/types"
	"github.com/mobile-next/devicebridge/utils"
)

const (
	DefaultWDAURL = "http://localhost:8100"

	wdaProbeTimeout    = 5 * time.Second
	wdaStopGrace       = 10 * time.Second
	iproxyStopGrace    = 5 * time.Second
	physicalCleanupTTL = 10 * time.Second
)

type PhysicalOptions struct {
	WDAURL            string
	Timeout           time.Duration
	AutoStartIproxy   bool
	AutoStartWDA      bool
	WDAProjectPath    string
	WDAStartupTimeout time.Duration
	// PollInterval is how often readiness is probed while WDA starts.
	PollInterval time.Duration
	// IdbPath is the idb binary used for screen recording. Defaults to "idb".
	IdbPath string
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// PhysicalDevice drives a USB-attached iPhone through WebDriverAgent.
// iproxy and the xcodebuild runner are started on demand and owned by the adapter.
type PhysicalDevice struct {
	udid   string
	name   string
	runner utils.CommandRunner
	opts   PhysicalOptions

	mu         sync.Mutex
	client     *wda.Client
	forwarder  *iosutil.PortForwarder
	wdaProcess utils.Process
	size       *types.Size
}

func NewPhysicalDevice(udid, name string, runner utils.CommandRunner, opts PhysicalOptions) *PhysicalDevice {
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	if opts.WDAURL == "" {
		opts.WDAURL = DefaultWDAURL
	}
	if opts.WDAStartupTimeout <= 0 {
		opts.WDAStartupTimeout = iosutil.DefaultWaitTimeout
	}
	if name == "" {
		name = udid
	}
	return &PhysicalDevice{udid: udid, name: name, runner: runner, opts: opts}
}

func (p *PhysicalDevice) ID() string         { return p.udid }
func (p *PhysicalDevice) Name() string       { return p.name }
func (p *PhysicalDevice) Platform() Platform { return PlatformIOS }
func (p *PhysicalDevice) Kind() BackendKind  { return BackendPhysicalHTTP }

func (p *PhysicalDevice) Identity() Identity {
	return Identity{ID: p.udid, Platform: PlatformIOS, Kind: BackendPhysicalHTTP, Name: p.name}
}

// Init makes WDA reachable and opens a session. The order is: forward the
// port if nothing serves it, build and run WDA if it does not answer, wait
// for it, then create the session.
func (p *PhysicalDevice) Init(ctx context.Context) error {
	return guard(p.Identity(), "Init", func() error {
		p.mu.Lock()
		defer p.mu.Unlock()

		if p.client != nil {
			return nil
		}

		port := iosutil.PortFromURL(p.opts.WDAURL)

		if p.opts.AutoStartIproxy && !utils.IsPortListening("127.0.0.1", port, time.Second) {
			forwarder := iosutil.NewPortForwarder(p.runner, p.udid, port, iosutil.DefaultWDAPort)
			owned, err := forwarder.Start(ctx)
			if err != nil {
				return &SetupError{Tool: "iproxy", Err: err, Instructions: iosutil.IproxyInstructions}
			}
			if owned {
				p.forwarder = forwarder
			}
		}

		if !iosutil.CheckWDARunning(ctx, p.opts.WDAURL, wdaProbeTimeout) {
			if p.opts.AutoStartWDA && p.udid != "" {
				runner := iosutil.NewWDARunner(p.runner, p.udid, p.opts.WDAProjectPath, 0)
				process, err := runner.Start(ctx)
				if err != nil {
					p.releaseLocked()
					return &SetupError{Tool: "WebDriverAgent", Err: err, Instructions: iosutil.WDASetupInstructions(p.udid)}
				}
				p.wdaProcess = process
			}

			if !iosutil.WaitForWDA(ctx, p.opts.WDAURL, p.opts.WDAStartupTimeout, p.opts.PollInterval) {
				p.releaseLocked()
				return &SetupError{
					Tool:         "WebDriverAgent",
					Err:          fmt.Errorf("WebDriverAgent not responding on port %d", port),
					Instructions: iosutil.WDASetupInstructions(p.udid),
				}
			}
		}

		client := wda.NewClient(p.opts.WDAURL, p.opts.Timeout)
		if _, err := client.Status(ctx); err != nil {
			p.releaseLocked()
			return fmt.Errorf("WebDriverAgent status check failed: %w", err)
		}
		if _, err := client.CreateSession(ctx, nil); err != nil {
			p.releaseLocked()
			return err
		}

		p.client = client
		utils.Info("Connected to WebDriverAgent at %s for %s", p.opts.WDAURL, p.udid)
		return nil
	})
}

// releaseLocked stops helper processes in teardown order. p.mu must be held.
func (p *PhysicalDevice) releaseLocked() {
	if p.wdaProcess != nil {
		utils.Verbose("Stopping WDA process (PID: %d)", p.wdaProcess.Pid())
		p.wdaProcess.Stop(wdaStopGrace)
		p.wdaProcess = nil
	}
	if p.forwarder != nil {
		p.forwarder.Stop(iproxyStopGrace)
		p.forwarder = nil
	}
}

// Cleanup closes the session, then stops WDA, then iproxy.
func (p *PhysicalDevice) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		if sessionID := p.client.SessionID(); sessionID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), physicalCleanupTTL)
			if err := p.client.DeleteSession(ctx, sessionID); err != nil {
				utils.Verbose("closing WDA session for %s: %v", p.udid, err)
			}
			cancel()
		}
		p.client = nil
	}
	p.releaseLocked()
	p.size = nil
	return nil
}

func (p *PhysicalDevice) wda() (*wda.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil, ErrNotInitialized
	}
	return p.client, nil
}

func (p *PhysicalDevice) Tap(ctx context.Context, x, y int, duration time.Duration) error {
	return guard(p.Identity(), "Tap", func() error {
		client, err := p.wda()
		if err != nil {
			return err
		}
		if duration > 0 {
			return client.TouchAndHold(ctx, x, y, duration)
		}
		return client.Tap(ctx, x, y, 0)
	})
}

func (p *PhysicalDevice) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return guard(p.Identity(), "Swipe", func() error {
		return p.swipe(ctx, x1, y1, x2, y2, duration)
	})
}

func (p *PhysicalDevice) swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	client, err := p.wda()
	if err != nil {
		return err
	}
	if duration <= 0 {
		duration = DefaultSwipeDuration
	}
	return client.Swipe(ctx, x1, y1, x2, y2, duration)
}

func (p *PhysicalDevice) Screenshot(ctx context.Context) ([]byte, error) {
	return guardValue(p.Identity(), "Screenshot", func() ([]byte, error) {
		client, err := p.wda()
		if err != nil {
			return nil, err
		}
		return client.Screenshot(ctx)
	})
}

func (p *PhysicalDevice) InputText(ctx context.Context, text string) error {
	return guard(p.Identity(), "InputText", func() error {
		client, err := p.wda()
		if err != nil {
			return err
		}
		return client.SendKeys(ctx, text)
	})
}

func (p *PhysicalDevice) LaunchApp(ctx context.Context, bundleID string) error {
	return guard(p.Identity(), "LaunchApp", func() error {
		client, err := p.wda()
		if err != nil {
			return err
		}
		return client.LaunchApp(ctx, bundleID)
	})
}

func (p *PhysicalDevice) TerminateApp(ctx context.Context, bundleID string) error {
	return guard(p.Identity(), "TerminateApp", func() error {
		client, err := p.wda()
		if err != nil {
			return err
		}
		if bundleID == "" {
			app, err := client.ActiveAppInfo(ctx)
			if err != nil {
				return err
			}
			if app.BundleID == "" {
				return errors.New("no foreground app detected")
			}
			bundleID = app.BundleID
		}
		return client.TerminateApp(ctx, bundleID)
	})
}

func (p *PhysicalDevice) OpenURL(ctx context.Context, url string) error {
	return guard(p.Identity(), "OpenURL", func() error {
		client, err := p.wda()
		if err != nil {
			return err
		}
		return client.OpenURL(ctx, url)
	})
}

func (p *PhysicalDevice) PressButton(ctx context.Context, button Button) error {
	return guard(p.Identity(), "PressButton", func() error {
		client, err := p.wda()
		if err != nil {
			return err
		}

		switch button {
		case ButtonHome:
			return client.Home(ctx)
		case ButtonVolumeUp:
			return client.PressButton(ctx, wda.ButtonVolumeUp)
		case ButtonVolumeDown:
			return client.PressButton(ctx, wda.ButtonVolumeDown)
		case ButtonEnter:
			return client.SendKeys(ctx, "\n")
		case ButtonBack:
			size, err := p.screenSize(ctx, client)
			if err != nil {
				return err
			}
			return iosBackSwipe(ctx, size, p.swipe)
		case ButtonPower:
			return fmt.Errorf("%s on physical device: %w", button, ErrUnsupported)
		default:
			return fmt.Errorf("unsupported button: %s", button)
		}
	})
}

// KeyCode maps the HID delete and return keys onto typed characters.
// WDA has no raw keycode endpoint, so other codes are ignored.
func (p *PhysicalDevice) KeyCode(ctx context.Context, code int) error {
	return guard(p.Identity(), "KeyCode", func() error {
		client, err := p.wda()
		if err != nil {
			return err
		}
		switch code {
		case IOSKeyDelete:
			return client.SendKeys(ctx, "\b")
		case IOSKeyEnter:
			return client.SendKeys(ctx, "\n")
		default:
			utils.Verbose("ignoring key code %d on %s", code, p.udid)
			return nil
		}
	})
}

func (p *PhysicalDevice) DescribeUI(ctx context.Context) ([]types.ScreenElement, error) {
	return guardValue(p.Identity(), "DescribeUI", func() ([]types.ScreenElement, error) {
		client, err := p.wda()
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

func (p *PhysicalDevice) CurrentForegroundApp(ctx context.Context) (*types.ActiveAppInfo, error) {
	return guardValue(p.Identity(), "CurrentForegroundApp", func() (*types.ActiveAppInfo, error) {
		client, err := p.wda()
		if err != nil {
			return nil, err
		}
		return client.ActiveAppInfo(ctx)
	})
}

func (p *PhysicalDevice) ScreenSize(ctx context.Context) (types.Size, error) {
	return guardValue(p.Identity(), "ScreenSize", func() (types.Size, error) {
		client, err := p.wda()
		if err != nil {
			return types.Size{}, err
		}
		return p.screenSize(ctx, client)
	})
}

func (p *PhysicalDevice) screenSize(ctx context.Context, client *wda.Client) (types.Size, error) {
	p.mu.Lock()
	cached := p.size
	p.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	size, err := client.WindowSize(ctx)
	if err != nil {
		return types.Size{}, err
	}
	p.mu.Lock()
	p.size = &size
	p.mu.Unlock()
	return size, nil
}

func (p *PhysicalDevice) SetOrientation(ctx context.Context, orientation string) error {
	return guard(p.Identity(), "SetOrientation", func() error {
		client, err := p.wda()
		if err != nil {
			return err
		}
		if err := client.SetOrientation(ctx, orientation); err != nil {
			return err
		}
		p.mu.Lock()
		p.size = nil
		p.mu.Unlock()
		return nil
	})
}

// StartVideoCapture records the device screen to a local file with
// `idb record-video` until the returned process is interrupted. WDA has no
// video endpoint, so idb must be installed.
func (p *PhysicalDevice) StartVideoCapture(ctx context.Context, path string) (utils.Process, error) {
	idb := p.opts.IdbPath
	if idb == "" {
		idb = "idb"
	}
	if _, err := lookPath(idb); err != nil {
		return nil, &SetupError{Tool: "idb", Err: err, Instructions: companion.InstallInstructions}
	}
	return p.runner.Start(ctx, idb, "record-video", "--udid", p.udid, path)
}
