package devices

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mobile-next/devicebridge/devices/companion"
	"github.com/mobile-next/devicebridge/types"
	"github.com/mobile-next/devicebridge/utils"
)

type SimulatorOptions struct {
	Companion companion.Options
	IdbPath   string
}

// SimulatorDevice controls a booted iOS simulator through idb. Coordinates
// are in points.
type SimulatorDevice struct {
	udid   string
	name   string
	runner utils.CommandRunner
	opts   SimulatorOptions

	mu        sync.Mutex
	companion *companion.Companion
	client    *companion.Client
	size      *types.Size
}

func NewSimulatorDevice(udid, name string, runner utils.CommandRunner, opts SimulatorOptions) *SimulatorDevice {
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	if name == "" {
		name = udid
	}
	return &SimulatorDevice{udid: udid, name: name, runner: runner, opts: opts}
}

func (s *SimulatorDevice) ID() string         { return s.udid }
func (s *SimulatorDevice) Name() string       { return s.name }
func (s *SimulatorDevice) Platform() Platform { return PlatformIOS }
func (s *SimulatorDevice) Kind() BackendKind  { return BackendSimulatorCompanion }

func (s *SimulatorDevice) Identity() Identity {
	return Identity{ID: s.udid, Platform: PlatformIOS, Kind: BackendSimulatorCompanion, Name: s.name}
}

// Init starts (or attaches to) the companion and connects the idb client.
func (s *SimulatorDevice) Init(ctx context.Context) error {
	return guard(s.Identity(), "Init", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.client != nil {
			return nil
		}

		c, err := companion.New(s.runner, s.udid, s.opts.Companion)
		if err != nil {
			return err
		}
		if err := c.Start(ctx); err != nil {
			return &SetupError{Tool: "idb_companion", Err: err, Instructions: companion.InstallInstructions}
		}

		client := companion.NewClient(s.runner, s.opts.IdbPath, s.udid, c)
		if err := client.Connect(ctx); err != nil {
			c.Stop()
			return &SetupError{Tool: "idb", Err: err, Instructions: companion.InstallInstructions}
		}

		s.companion = c
		s.client = client
		return nil
	})
}

// Cleanup disconnects idb and stops the companion if this adapter started it.
func (s *SimulatorDevice) Cleanup() error {
	s.mu.Lock()
	c := s.companion
	client := s.client
	s.companion = nil
	s.client = nil
	s.mu.Unlock()

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if derr := client.Disconnect(ctx); derr != nil {
			utils.Verbose("idb disconnect for %s failed: %v", s.udid, derr)
		}
	}
	if c != nil {
		c.Stop()
	}
	return nil
}

func (s *SimulatorDevice) idb() (*companion.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, ErrNotInitialized
	}
	return s.client, nil
}

func (s *SimulatorDevice) Tap(ctx context.Context, x, y int, duration time.Duration) error {
	return guard(s.Identity(), "Tap", func() error {
		client, err := s.idb()
		if err != nil {
			return err
		}
		return client.Tap(ctx, x, y, duration)
	})
}

func (s *SimulatorDevice) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return guard(s.Identity(), "Swipe", func() error {
		return s.swipe(ctx, x1, y1, x2, y2, duration)
	})
}

func (s *SimulatorDevice) swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	client, err := s.idb()
	if err != nil {
		return err
	}
	if duration <= 0 {
		duration = DefaultSwipeDuration
	}
	return client.Swipe(ctx, x1, y1, x2, y2, duration)
}

func (s *SimulatorDevice) Screenshot(ctx context.Context) ([]byte, error) {
	return guardValue(s.Identity(), "Screenshot", func() ([]byte, error) {
		client, err := s.idb()
		if err != nil {
			return nil, err
		}
		return client.Screenshot(ctx)
	})
}

func (s *SimulatorDevice) InputText(ctx context.Context, text string) error {
	return guard(s.Identity(), "InputText", func() error {
		client, err := s.idb()
		if err != nil {
			return err
		}
		return client.Text(ctx, text)
	})
}

func (s *SimulatorDevice) LaunchApp(ctx context.Context, bundleID string) error {
	return guard(s.Identity(), "LaunchApp", func() error {
		client, err := s.idb()
		if err != nil {
			return err
		}
		return client.Launch(ctx, bundleID)
	})
}

func (s *SimulatorDevice) TerminateApp(ctx context.Context, bundleID string) error {
	return guard(s.Identity(), "TerminateApp", func() error {
		client, err := s.idb()
		if err != nil {
			return err
		}
		if bundleID == "" {
			app, err := s.foregroundApp(ctx, client)
			if err != nil {
				return err
			}
			if app.BundleID == "" {
				return fmt.Errorf("could not resolve bundle id for foreground app %q", app.Name)
			}
			bundleID = app.BundleID
		}
		return client.Terminate(ctx, bundleID)
	})
}

func (s *SimulatorDevice) OpenURL(ctx context.Context, url string) error {
	return guard(s.Identity(), "OpenURL", func() error {
		client, err := s.idb()
		if err != nil {
			return err
		}
		return client.OpenURL(ctx, url)
	})
}

func (s *SimulatorDevice) PressButton(ctx context.Context, button Button) error {
	return guard(s.Identity(), "PressButton", func() error {
		client, err := s.idb()
		if err != nil {
			return err
		}

		switch button {
		case ButtonHome:
			return client.Button(ctx, companion.ButtonHome)
		case ButtonPower:
			return client.Button(ctx, companion.ButtonLock)
		case ButtonEnter:
			return client.Key(ctx, IOSKeyEnter)
		case ButtonBack:
			size, err := s.screenSize(ctx, client)
			if err != nil {
				return err
			}
			return iosBackSwipe(ctx, size, s.swipe)
		case ButtonVolumeUp, ButtonVolumeDown:
			return fmt.Errorf("%s on simulator: %w", button, ErrUnsupported)
		default:
			return fmt.Errorf("unsupported button: %s", button)
		}
	})
}

func (s *SimulatorDevice) KeyCode(ctx context.Context, code int) error {
	return guard(s.Identity(), "KeyCode", func() error {
		client, err := s.idb()
		if err != nil {
			return err
		}
		return client.Key(ctx, code)
	})
}

func (s *SimulatorDevice) DescribeUI(ctx context.Context) ([]types.ScreenElement, error) {
	return guardValue(s.Identity(), "DescribeUI", func() ([]types.ScreenElement, error) {
		client, err := s.idb()
		if err != nil {
			return nil, err
		}
		nodes, err := client.DescribeAll(ctx)
		if err != nil {
			return nil, err
		}
		return companion.Elements(nodes), nil
	})
}

func (s *SimulatorDevice) CurrentForegroundApp(ctx context.Context) (*types.ActiveAppInfo, error) {
	return guardValue(s.Identity(), "CurrentForegroundApp", func() (*types.ActiveAppInfo, error) {
		client, err := s.idb()
		if err != nil {
			return nil, err
		}
		return s.foregroundApp(ctx, client)
	})
}

// foregroundApp reads the Application node's label and looks the name up
// in `simctl listapps` to recover the bundle id.
func (s *SimulatorDevice) foregroundApp(ctx context.Context, client *companion.Client) (*types.ActiveAppInfo, error) {
	nodes, err := client.DescribeAll(ctx)
	if err != nil {
		return nil, err
	}

	app, ok := companion.ApplicationNode(nodes)
	if !ok || app.Label == nil || *app.Label == "" {
		return nil, errors.New("no foreground app detected")
	}

	info := &types.ActiveAppInfo{Name: *app.Label, ProcessID: app.PID}

	output, err := s.runner.Run(ctx, "xcrun", "simctl", "listapps", s.udid)
	if err != nil {
		utils.Verbose("simctl listapps failed for %s: %v", s.udid, err)
		return info, nil
	}
	installed, err := utils.ParseInstalledApps(output)
	if err != nil {
		utils.Verbose("failed to parse simctl listapps output: %v", err)
		return info, nil
	}
	if bundleID, found := utils.FindBundleIDByName(installed, info.Name); found {
		info.BundleID = bundleID
	}
	return info, nil
}

func (s *SimulatorDevice) ScreenSize(ctx context.Context) (types.Size, error) {
	return guardValue(s.Identity(), "ScreenSize", func() (types.Size, error) {
		client, err := s.idb()
		if err != nil {
			return types.Size{}, err
		}
		return s.screenSize(ctx, client)
	})
}

// screenSize is the Application frame in points, cached after the first read.
func (s *SimulatorDevice) screenSize(ctx context.Context, client *companion.Client) (types.Size, error) {
	s.mu.Lock()
	cached := s.size
	s.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	nodes, err := client.DescribeAll(ctx)
	if err != nil {
		return types.Size{}, err
	}
	app, ok := companion.ApplicationNode(nodes)
	if !ok || app.Frame.Width <= 0 || app.Frame.Height <= 0 {
		return types.Size{}, errors.New("could not determine screen size from accessibility tree")
	}

	size := types.Size{Width: int(app.Frame.Width), Height: int(app.Frame.Height)}
	s.mu.Lock()
	s.size = &size
	s.mu.Unlock()
	return size, nil
}

// StartVideoCapture records the simulator screen to a local file until the
// returned process is interrupted.
func (s *SimulatorDevice) StartVideoCapture(ctx context.Context, path string) (utils.Process, error) {
	client, err := s.idb()
	if err != nil {
		return nil, err
	}
	return client.RecordVideo(ctx, path)
}
