package devices

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mobile-next/devicebridge/devices/adb"
	"github.com/mobile-next/devicebridge/types"
	"github.com/mobile-next/devicebridge/utils"
)

const (
	androidHierarchyPath = "/sdcard/window_dump.xml"
	pngSignature         = "\x89PNG\r\n\x1a\n"

	uiProbeTimeout = 3 * time.Second
)

// AndroidDevice drives a device through adb shell commands. When an
// on-device UI automation server is reachable, screenshots and hierarchy
// dumps go through it and fall back to the shell on failure.
type AndroidDevice struct {
	id   string
	name string
	adb  *adb.Client
	ui   *UIAutomatorServer

	// extra cleanup owned by this adapter, such as a tunnel for cloud devices
	hooks *ShutdownHook

	mu    sync.Mutex
	ready bool
	size  *types.Size
}

// NewAndroidDevice creates an adapter for the adb serial id. Init must be
// called before any capability is used.
func NewAndroidDevice(id, name string, client *adb.Client) *AndroidDevice {
	if name == "" {
		name = id
	}
	return &AndroidDevice{
		id:    id,
		name:  name,
		adb:   client,
		hooks: NewShutdownHook(),
	}
}

func (d *AndroidDevice) ID() string {
	return d.id
}

func (d *AndroidDevice) Name() string {
	return d.name
}

func (d *AndroidDevice) Platform() Platform {
	return PlatformAndroid
}

func (d *AndroidDevice) Kind() BackendKind {
	return BackendADB
}

func (d *AndroidDevice) Identity() Identity {
	return Identity{ID: d.id, Platform: PlatformAndroid, Kind: BackendADB, Name: d.name}
}

// OnCleanup registers fn to run when the adapter is cleaned up.
func (d *AndroidDevice) OnCleanup(name string, fn func() error) {
	d.hooks.Register(name, fn)
}

// EnableUIAutomator routes screenshots and hierarchy dumps through server.
func (d *AndroidDevice) EnableUIAutomator(server *UIAutomatorServer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ui = server
}

func (d *AndroidDevice) Init(ctx context.Context) error {
	return guard(d.Identity(), "Init", func() error {
		output, err := d.adb.Run(ctx, d.id, "get-state")
		if err != nil {
			return fmt.Errorf("device %s is not reachable over adb: %w", d.id, err)
		}
		if state := strings.TrimSpace(string(output)); state != "device" {
			return fmt.Errorf("device %s is %s", d.id, state)
		}

		d.mu.Lock()
		d.ready = true
		d.mu.Unlock()

		d.connectUIAutomator(ctx)
		return nil
	})
}

// connectUIAutomator enables the on-device automation server when one
// answers. Without it every capability stays on adb shell.
func (d *AndroidDevice) connectUIAutomator(ctx context.Context) {
	if d.uiServer() != nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, uiProbeTimeout)
	defer cancel()

	server, err := ConnectUIAutomator(probeCtx, d.adb, d.id)
	if err != nil {
		utils.Verbose("no ui automation server on %s, using adb shell: %v", d.id, err)
		return
	}
	d.EnableUIAutomator(server)
}

func (d *AndroidDevice) Cleanup() error {
	d.mu.Lock()
	d.ready = false
	ui := d.ui
	d.ui = nil
	d.mu.Unlock()

	var errs []error
	if ui != nil {
		errs = append(errs, ui.Close(context.Background()))
	}
	errs = append(errs, d.hooks.Shutdown())
	return errors.Join(errs...)
}

func (d *AndroidDevice) checkReady() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return ErrNotInitialized
	}
	return nil
}

func (d *AndroidDevice) uiServer() *UIAutomatorServer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ui
}

func (d *AndroidDevice) shell(ctx context.Context, command string) ([]byte, error) {
	if err := d.checkReady(); err != nil {
		return nil, err
	}
	return d.adb.Shell(ctx, d.id, command)
}

func (d *AndroidDevice) Tap(ctx context.Context, x, y int, duration time.Duration) error {
	return guard(d.Identity(), "Tap", func() error {
		command := fmt.Sprintf("input tap %d %d", x, y)
		if duration > 0 {
			// a zero-distance swipe is how adb expresses a long press
			command = fmt.Sprintf("input swipe %d %d %d %d %d", x, y, x, y, duration.Milliseconds())
		}
		_, err := d.shell(ctx, command)
		return err
	})
}

func (d *AndroidDevice) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return guard(d.Identity(), "Swipe", func() error {
		if duration <= 0 {
			duration = DefaultSwipeDuration
		}
		_, err := d.shell(ctx, fmt.Sprintf("input touchscreen swipe %d %d %d %d %d", x1, y1, x2, y2, duration.Milliseconds()))
		return err
	})
}

func (d *AndroidDevice) Screenshot(ctx context.Context) ([]byte, error) {
	return guardValue(d.Identity(), "Screenshot", func() ([]byte, error) {
		if err := d.checkReady(); err != nil {
			return nil, err
		}

		if ui := d.uiServer(); ui != nil {
			data, err := ui.Screenshot(ctx)
			if err == nil {
				return data, nil
			}
			utils.Warn("UI automation screenshot failed on %s, falling back to screencap: %v", d.id, err)
		}

		data, err := d.adb.ExecOut(ctx, d.id, "screencap", "-p")
		if err != nil {
			return nil, fmt.Errorf("screencap failed: %w", err)
		}
		if !bytes.HasPrefix(data, []byte(pngSignature)) {
			return nil, fmt.Errorf("screencap returned %d bytes that are not a PNG", len(data))
		}
		return data, nil
	})
}

func (d *AndroidDevice) InputText(ctx context.Context, text string) error {
	return guard(d.Identity(), "InputText", func() error {
		if err := d.checkReady(); err != nil {
			return err
		}

		parts := strings.Split(text, "%s")
		for i, part := range parts {
			if escaped := escapeInputText(part); escaped != "" {
				if _, err := d.adb.Shell(ctx, d.id, "input text "+escaped); err != nil {
					return err
				}
			}
			// a literal "%s" would be read by `input text` as a space, so it is typed key by key
			if i < len(parts)-1 {
				if err := d.keyevent(ctx, strconv.Itoa(AndroidKeySpace)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// escapeInputText prepares text for `adb shell input text`. Spaces become %s
// and shell metacharacters are backslash-escaped.
func escapeInputText(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case ' ':
			b.WriteString("%s")
		case '&', '<', '>', '|', ';', '(', ')', '$', '`', '\\', '"', '\'', '*', '~', '?', '#':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (d *AndroidDevice) LaunchApp(ctx context.Context, appID string) error {
	return guard(d.Identity(), "LaunchApp", func() error {
		output, err := d.shell(ctx, fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", shellQuote(appID)))
		if err != nil {
			return fmt.Errorf("failed to launch %s: %w", appID, err)
		}
		if strings.Contains(string(output), "No activities found") {
			return fmt.Errorf("failed to launch %s: no launchable activity", appID)
		}
		return nil
	})
}

func (d *AndroidDevice) TerminateApp(ctx context.Context, appID string) error {
	return guard(d.Identity(), "TerminateApp", func() error {
		if appID == "" {
			current, err := d.foregroundPackage(ctx)
			if err != nil {
				return err
			}
			utils.Info("Stopping currently running app: %s", current)
			appID = current
		}

		_, err := d.shell(ctx, "am force-stop "+shellQuote(appID))
		return err
	})
}

func (d *AndroidDevice) OpenURL(ctx context.Context, url string) error {
	return guard(d.Identity(), "OpenURL", func() error {
		_, err := d.shell(ctx, fmt.Sprintf("am start -a android.intent.action.VIEW -d %s", shellQuote(url)))
		return err
	})
}

func (d *AndroidDevice) PressButton(ctx context.Context, button Button) error {
	return guard(d.Identity(), "PressButton", func() error {
		keyMap := map[Button]int{
			ButtonHome:       AndroidKeyHome,
			ButtonBack:       AndroidKeyBack,
			ButtonEnter:      AndroidKeyEnter,
			ButtonPower:      AndroidKeyPower,
			ButtonVolumeUp:   AndroidKeyVolumeUp,
			ButtonVolumeDown: AndroidKeyVolumeDown,
		}

		code, exists := keyMap[button]
		if !exists {
			return fmt.Errorf("unsupported button: %s", button)
		}
		return d.keyevent(ctx, strconv.Itoa(code))
	})
}

func (d *AndroidDevice) KeyCode(ctx context.Context, code int) error {
	return guard(d.Identity(), "KeyCode", func() error {
		return d.keyevent(ctx, strconv.Itoa(code))
	})
}

func (d *AndroidDevice) keyevent(ctx context.Context, code string) error {
	_, err := d.shell(ctx, "input keyevent "+code)
	return err
}

func (d *AndroidDevice) DescribeUI(ctx context.Context) ([]types.ScreenElement, error) {
	return guardValue(d.Identity(), "DescribeUI", func() ([]types.ScreenElement, error) {
		xmlData, err := d.dumpHierarchy(ctx)
		if err != nil {
			return nil, err
		}
		return ParseAndroidHierarchy(xmlData)
	})
}

func (d *AndroidDevice) dumpHierarchy(ctx context.Context) ([]byte, error) {
	if err := d.checkReady(); err != nil {
		return nil, err
	}

	if ui := d.uiServer(); ui != nil {
		data, err := ui.DumpHierarchy(ctx)
		if err == nil {
			return []byte(data), nil
		}
		utils.Warn("UI automation hierarchy dump failed on %s, falling back to uiautomator: %v", d.id, err)
	}

	if _, err := d.adb.Shell(ctx, d.id, "uiautomator dump "+androidHierarchyPath); err != nil {
		return nil, fmt.Errorf("uiautomator dump failed: %w", err)
	}
	data, err := d.adb.ExecOut(ctx, d.id, "cat", androidHierarchyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read hierarchy dump: %w", err)
	}
	return data, nil
}

func (d *AndroidDevice) CurrentForegroundApp(ctx context.Context) (*types.ActiveAppInfo, error) {
	return guardValue(d.Identity(), "CurrentForegroundApp", func() (*types.ActiveAppInfo, error) {
		pkg, err := d.foregroundPackage(ctx)
		if err != nil {
			return nil, err
		}
		return &types.ActiveAppInfo{BundleID: pkg, Name: pkg}, nil
	})
}

func (d *AndroidDevice) foregroundPackage(ctx context.Context) (string, error) {
	output, err := d.shell(ctx, "dumpsys window | grep mCurrentFocus")
	if err != nil {
		return "", fmt.Errorf("failed to read window focus: %w", err)
	}

	pkg := parseFocusedPackage(string(output))
	if pkg == "" {
		return "", fmt.Errorf("no foreground app detected")
	}
	return pkg, nil
}

// parseFocusedPackage extracts the package from a line such as
// "mCurrentFocus=Window{1a2b u0 com.example/com.example.MainActivity}".
func parseFocusedPackage(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "mCurrentFocus=") {
			continue
		}
		before, _, found := strings.Cut(line, "/")
		if !found {
			continue
		}
		fields := strings.Fields(before)
		if len(fields) == 0 {
			continue
		}
		pkg := strings.TrimPrefix(fields[len(fields)-1], "Window{")
		if pkg != "" && pkg != "null" {
			return pkg
		}
	}
	return ""
}

var wmSizePattern = regexp.MustCompile(`(Physical|Override) size:\s*(\d+)x(\d+)`)

func (d *AndroidDevice) ScreenSize(ctx context.Context) (types.Size, error) {
	return guardValue(d.Identity(), "ScreenSize", func() (types.Size, error) {
		d.mu.Lock()
		cached := d.size
		d.mu.Unlock()
		if cached != nil {
			return *cached, nil
		}

		output, err := d.shell(ctx, "wm size")
		if err != nil {
			return types.Size{}, err
		}

		size, err := parseWmSize(string(output))
		if err != nil {
			return types.Size{}, err
		}

		d.mu.Lock()
		d.size = &size
		d.mu.Unlock()
		return size, nil
	})
}

// parseWmSize prefers the override size, which is what input coordinates use.
func parseWmSize(output string) (types.Size, error) {
	var size types.Size
	found := false
	for _, m := range wmSizePattern.FindAllStringSubmatch(output, -1) {
		w, _ := strconv.Atoi(m[2])
		h, _ := strconv.Atoi(m[3])
		if !found || m[1] == "Override" {
			size = types.Size{Width: w, Height: h}
			found = true
		}
	}
	if !found {
		return types.Size{}, fmt.Errorf("unexpected wm size output: %q", strings.TrimSpace(output))
	}
	return size, nil
}

// StartScreenRecord starts `screenrecord` writing to devicePath on the
// device. The returned process ends when the time limit is reached.
func (d *AndroidDevice) StartScreenRecord(ctx context.Context, devicePath string, limit time.Duration) (utils.Process, error) {
	if err := d.checkReady(); err != nil {
		return nil, err
	}
	seconds := int(limit.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return d.adb.Start(ctx, d.id, "shell", fmt.Sprintf("screenrecord --time-limit %d %s", seconds, devicePath))
}

// StopScreenRecord asks every screenrecord on the device to finish its file.
func (d *AndroidDevice) StopScreenRecord(ctx context.Context) error {
	_, err := d.shell(ctx, "pkill -2 screenrecord || true")
	return err
}

func (d *AndroidDevice) PullFile(ctx context.Context, remote, local string) error {
	if err := d.checkReady(); err != nil {
		return err
	}
	return d.adb.Pull(ctx, d.id, remote, local)
}

func (d *AndroidDevice) RemoveFile(ctx context.Context, remote string) error {
	_, err := d.shell(ctx, "rm -f "+shellQuote(remote))
	return err
}

// shellQuote wraps s in single quotes for the device shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
