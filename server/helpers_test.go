package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/mobile-next/devicebridge/devices"
	"github.com/mobile-next/devicebridge/devices/adb"
	"github.com/mobile-next/devicebridge/types"
	"github.com/mobile-next/devicebridge/utils"
	"github.com/stretchr/testify/require"
)

const testDeviceID = "emulator-5554"

// recordingDevice remembers taps and can be slowed down.
type recordingDevice struct {
	mu     sync.Mutex
	taps   [][2]int
	texts  []string
	delay  time.Duration
	failIO bool
}

func (d *recordingDevice) ID() string                     { return testDeviceID }
func (d *recordingDevice) Name() string                   { return "Pixel 7" }
func (d *recordingDevice) Platform() devices.Platform     { return devices.PlatformAndroid }
func (d *recordingDevice) Kind() devices.BackendKind      { return devices.BackendADB }
func (d *recordingDevice) Init(ctx context.Context) error { return nil }
func (d *recordingDevice) Cleanup() error                 { return nil }

func (d *recordingDevice) Identity() devices.Identity {
	return devices.Identity{ID: testDeviceID, Platform: devices.PlatformAndroid, Kind: devices.BackendADB, Name: "Pixel 7"}
}

func (d *recordingDevice) Tap(ctx context.Context, x, y int, _ time.Duration) error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.failIO {
		return errors.New("adb: device offline")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.taps = append(d.taps, [2]int{x, y})
	return nil
}

func (d *recordingDevice) Swipe(ctx context.Context, x1, y1, x2, y2 int, _ time.Duration) error {
	return nil
}

func (d *recordingDevice) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (d *recordingDevice) InputText(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return nil
}

func (d *recordingDevice) LaunchApp(ctx context.Context, id string) error    { return nil }
func (d *recordingDevice) TerminateApp(ctx context.Context, id string) error { return nil }
func (d *recordingDevice) OpenURL(ctx context.Context, url string) error     { return nil }
func (d *recordingDevice) KeyCode(ctx context.Context, code int) error       { return nil }

func (d *recordingDevice) PressButton(ctx context.Context, b devices.Button) error {
	return nil
}

func (d *recordingDevice) DescribeUI(ctx context.Context) ([]types.ScreenElement, error) {
	return []types.ScreenElement{{Type: "android.widget.TextView", Text: "hello"}}, nil
}

func (d *recordingDevice) CurrentForegroundApp(ctx context.Context) (*types.ActiveAppInfo, error) {
	return &types.ActiveAppInfo{BundleID: "com.android.settings"}, nil
}

func (d *recordingDevice) ScreenSize(ctx context.Context) (types.Size, error) {
	return types.Size{Width: 1080, Height: 2400}, nil
}

func (d *recordingDevice) tapCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.taps)
}

// emptyHostRunner makes every external tool report nothing.
type emptyHostRunner struct{}

func (emptyHostRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if len(args) > 0 && args[0] == "devices" {
		return []byte("List of devices attached\n"), nil
	}
	return nil, errors.New("not installed")
}

func (emptyHostRunner) Start(ctx context.Context, name string, args ...string) (utils.Process, error) {
	return nil, errors.New("not installed")
}

func newTestServer(t *testing.T, opts Options) (*Server, *recordingDevice) {
	t.Helper()
	runner := emptyHostRunner{}
	factory := devices.NewFactory(runner, adb.NewClient("adb", runner), devices.NewClassifier(runner))
	ctrl := controller.New(factory, nil, devices.AdapterConfig{})
	device := &recordingDevice{}
	ctrl.Registry().Register(device)
	return New(ctrl, opts), device
}

func setupTestServer(t *testing.T, enableCORS bool) (*httptest.Server, string, *recordingDevice) {
	t.Helper()
	s, device := newTestServer(t, Options{EnableCORS: enableCORS})
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	return server, wsURL, device
}

func connectWebSocket(t *testing.T, url string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "should connect to WebSocket")
	return conn
}

func sendJSONRPCRequest(t *testing.T, conn *websocket.Conn, req JSONRPCRequest) {
	err := conn.WriteJSON(req)
	require.NoError(t, err, "should send request")
}

func readJSONRPCResponse(t *testing.T, conn *websocket.Conn) JSONRPCResponse {
	var resp JSONRPCResponse
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	err := conn.ReadJSON(&resp)
	require.NoError(t, err, "should read response")
	return resp
}

func errorCode(t *testing.T, resp JSONRPCResponse) int {
	t.Helper()
	errMap, ok := resp.Error.(map[string]interface{})
	require.True(t, ok, "expected error object, got %T", resp.Error)
	return int(errMap["code"].(float64))
}
