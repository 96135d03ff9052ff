package devices

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mobile-next/devicebridge/devices/adb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uiRPCHandler func(method string, params []interface{}) (interface{}, *uiRPCErrorBody)

func newUIAutomatorMock(t *testing.T, handler uiRPCHandler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(uiAutomatorHandler(t, handler))
	t.Cleanup(server.Close)
	return server
}

func uiAutomatorHandler(t *testing.T, handler uiRPCHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jsonrpc/0", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req uiRPCRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

type uiRPCErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func TestUIAutomatorServer_DumpHierarchy(t *testing.T) {
	server := newUIAutomatorMock(t, func(method string, params []interface{}) (interface{}, *uiRPCErrorBody) {
		assert.Equal(t, "dumpWindowHierarchy", method)
		assert.Equal(t, []interface{}{true, float64(50)}, params)
		return "<hierarchy/>", nil
	})

	s := NewUIAutomatorServer(server.URL)
	xml, err := s.DumpHierarchy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<hierarchy/>", xml)
}

func TestUIAutomatorServer_ScreenshotDecodesBase64(t *testing.T) {
	png := []byte(pngSignature + "data")
	server := newUIAutomatorMock(t, func(method string, params []interface{}) (interface{}, *uiRPCErrorBody) {
		assert.Equal(t, "takeScreenshot", method)
		return base64.StdEncoding.EncodeToString(png), nil
	})

	s := NewUIAutomatorServer(server.URL)
	data, err := s.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, png, data)
}

func TestUIAutomatorServer_RPCError(t *testing.T) {
	server := newUIAutomatorMock(t, func(method string, params []interface{}) (interface{}, *uiRPCErrorBody) {
		return nil, &uiRPCErrorBody{Code: -32001, Message: "UiAutomation not connected"}
	})

	s := NewUIAutomatorServer(server.URL)
	_, err := s.DumpHierarchy(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UiAutomation not connected")
}

func TestUIAutomatorServer_HTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := NewUIAutomatorServer(server.URL)
	_, err := s.Screenshot(context.Background())
	assert.ErrorContains(t, err, "status 502")
}

func TestAndroidDevice_PrefersUIAutomatorScreenshot(t *testing.T) {
	png := []byte(pngSignature + "from-server")
	server := newUIAutomatorMock(t, func(method string, params []interface{}) (interface{}, *uiRPCErrorBody) {
		return base64.StdEncoding.EncodeToString(png), nil
	})

	d, runner := newTestAndroid(t)
	d.EnableUIAutomator(NewUIAutomatorServer(server.URL))

	data, err := d.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, png, data)
	assert.False(t, runner.called("adb -s emulator-5554 exec-out screencap -p"))
}

func TestAndroidDevice_UIAutomatorFailureFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d, runner := newTestAndroid(t)
	d.EnableUIAutomator(NewUIAutomatorServer(server.URL))
	runner.outputs["adb -s emulator-5554 exec-out screencap -p"] = pngSignature

	_, err := d.Screenshot(context.Background())
	require.NoError(t, err)
	assert.True(t, runner.called("adb -s emulator-5554 exec-out screencap -p"))
}

// serveForwardedPort answers on the local end of the ui automation forward
// as soon as adb is asked to create it.
func serveForwardedPort(t *testing.T, runner *fakeRunner, handler uiRPCHandler) *string {
	var local string
	runner.onRun = func(name string, args []string) {
		if len(args) != 5 || args[2] != "forward" || args[4] != "tcp:9008" {
			return
		}
		local = args[3]
		listener, err := net.Listen("tcp", "127.0.0.1:"+strings.TrimPrefix(local, "tcp:"))
		require.NoError(t, err)
		server := httptest.NewUnstartedServer(uiAutomatorHandler(t, handler))
		_ = server.Listener.Close()
		server.Listener = listener
		server.Start()
		t.Cleanup(server.Close)
	}
	return &local
}

func TestAndroidDevice_InitConnectsUIAutomator(t *testing.T) {
	png := []byte(pngSignature + "via-forward")
	var mu sync.Mutex
	var methods []string

	runner := newFakeRunner()
	runner.outputs["adb -s emulator-5554 get-state"] = "device\n"
	local := serveForwardedPort(t, runner, func(method string, params []interface{}) (interface{}, *uiRPCErrorBody) {
		mu.Lock()
		methods = append(methods, method)
		mu.Unlock()
		switch method {
		case "deviceInfo":
			return map[string]interface{}{"productName": "sdk_gphone64"}, nil
		case "takeScreenshot":
			return base64.StdEncoding.EncodeToString(png), nil
		}
		return nil, &uiRPCErrorBody{Code: -32601, Message: "method not found"}
	})

	d := NewAndroidDevice("emulator-5554", "Pixel", adb.NewClient("adb", runner))
	require.NoError(t, d.Init(context.Background()))
	require.NotNil(t, d.uiServer())

	data, err := d.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, png, data)
	assert.False(t, runner.called("adb -s emulator-5554 exec-out screencap -p"))

	mu.Lock()
	assert.Equal(t, []string{"deviceInfo", "takeScreenshot"}, methods)
	mu.Unlock()

	require.NoError(t, d.Cleanup())
	assert.True(t, runner.called("adb -s emulator-5554 forward --remove "+*local))
}

func TestAndroidDevice_InitWithoutUIAutomatorUsesShell(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["adb -s emulator-5554 get-state"] = "device\n"
	runner.outputs["adb -s emulator-5554 exec-out screencap -p"] = pngSignature

	d := NewAndroidDevice("emulator-5554", "Pixel", adb.NewClient("adb", runner))
	require.NoError(t, d.Init(context.Background()))
	assert.Nil(t, d.uiServer())

	_, err := d.Screenshot(context.Background())
	require.NoError(t, err)
	assert.True(t, runner.called("adb -s emulator-5554 exec-out screencap -p"))

	// the failed attempt does not leave a forward behind
	removed := false
	for _, c := range runner.Calls() {
		if strings.HasPrefix(c, "adb -s emulator-5554 forward --remove ") {
			removed = true
		}
	}
	assert.True(t, removed)
}
