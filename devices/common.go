package devices

import (
	"context"
	"time"

	"github.com/mobile-next/devicebridge/types"
)

type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// BackendKind names the transport an adapter drives the device through.
type BackendKind string

const (
	BackendADB                BackendKind = "adb"
	BackendSimulatorCompanion BackendKind = "simulator_companion"
	BackendPhysicalHTTP       BackendKind = "physical_http"
	BackendCloudRPC           BackendKind = "cloud_rpc"
	BackendDeviceFarm         BackendKind = "device_farm"
)

// Identity is fixed at discovery time and never changes for the life of an adapter.
type Identity struct {
	ID       string      `json:"id"`
	Platform Platform    `json:"platform"`
	Kind     BackendKind `json:"kind"`
	Name     string      `json:"name"`
}

type Button string

const (
	ButtonHome       Button = "home"
	ButtonBack       Button = "back"
	ButtonEnter      Button = "enter"
	ButtonVolumeUp   Button = "volume_up"
	ButtonVolumeDown Button = "volume_down"
	ButtonPower      Button = "power"
)

// DefaultSwipeDuration is used when a caller passes a zero swipe duration.
const DefaultSwipeDuration = 400 * time.Millisecond

// ControllableDevice is the capability contract every backend implements.
// Methods never panic; failures come back as errors, and a backend that
// has not been initialised returns ErrNotInitialized.
type ControllableDevice interface {
	ID() string
	Name() string
	Platform() Platform
	Kind() BackendKind
	Identity() Identity

	// Init connects the transport and starts any helper process the backend owns.
	Init(ctx context.Context) error
	// Cleanup releases the transport and helper processes. Safe to call twice.
	Cleanup() error

	// Tap taps at x,y. A non-zero duration turns it into a long press.
	Tap(ctx context.Context, x, y int, duration time.Duration) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error
	Screenshot(ctx context.Context) ([]byte, error)
	InputText(ctx context.Context, text string) error
	LaunchApp(ctx context.Context, appID string) error
	// TerminateApp stops appID. Backends that can detect the foreground app
	// accept an empty appID to mean "whatever is in front".
	TerminateApp(ctx context.Context, appID string) error
	OpenURL(ctx context.Context, url string) error
	PressButton(ctx context.Context, button Button) error
	// KeyCode sends a raw platform keycode: Android keyevent or iOS HID usage.
	KeyCode(ctx context.Context, code int) error
	DescribeUI(ctx context.Context) ([]types.ScreenElement, error)
	CurrentForegroundApp(ctx context.Context) (*types.ActiveAppInfo, error)
	ScreenSize(ctx context.Context) (types.Size, error)
}

// DeviceInfo represents the JSON-friendly device information
type DeviceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Kind     string `json:"kind"`
	Type     string `json:"type,omitempty"`
}

// FullDeviceInfo adds the screen size, which requires a live backend.
type FullDeviceInfo struct {
	DeviceInfo
	ScreenSize *types.Size `json:"screenSize,omitempty"`
}

// InfoFor converts an identity into its listing form.
func InfoFor(id Identity, classification Classification) DeviceInfo {
	info := DeviceInfo{
		ID:       id.ID,
		Name:     id.Name,
		Platform: string(id.Platform),
		Kind:     string(id.Kind),
	}
	if classification != "" {
		info.Type = string(classification)
	}
	return info
}

// Android keyevent codes used by the controller helpers.
const (
	AndroidKeyHome       = 3
	AndroidKeyBack       = 4
	AndroidKeyVolumeUp   = 24
	AndroidKeyVolumeDown = 25
	AndroidKeyPower      = 26
	AndroidKeySpace      = 62
	AndroidKeyEnter      = 66
	AndroidKeyDelete     = 67
)

// iOS HID keyboard usage codes.
const (
	IOSKeyEnter  = 40
	IOSKeyDelete = 42
)

// DeleteKeyCode returns the backspace keycode for platform.
func DeleteKeyCode(platform Platform) int {
	if platform == PlatformIOS {
		return IOSKeyDelete
	}
	return AndroidKeyDelete
}
