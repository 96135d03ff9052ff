package cloudrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// mockHandler returns the reply fields for one request; nil means no reply.
type mockHandler func(req map[string]interface{}) map[string]interface{}

type mockInstance struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []map[string]interface{}
	tokens   []string
	conns    []*websocket.Conn
}

func defaultReply(req map[string]interface{}) map[string]interface{} {
	switch req["type"] {
	case "deviceInfo":
		return map[string]interface{}{"udid": "CLOUD-1", "screenWidth": 390.0, "screenHeight": 844.0, "model": "iPhone 15"}
	default:
		return map[string]interface{}{}
	}
}

func newMockInstance(t *testing.T, handler mockHandler) *mockInstance {
	m := &mockInstance{}
	if handler == nil {
		handler = defaultReply
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/signaling", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		m.mu.Lock()
		m.tokens = append(m.tokens, r.URL.Query().Get("token"))
		m.conns = append(m.conns, conn)
		m.mu.Unlock()

		for {
			var req map[string]interface{}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			m.mu.Lock()
			m.requests = append(m.requests, req)
			m.mu.Unlock()

			reply := handler(req)
			if reply == nil {
				continue
			}
			reply["id"] = req["id"]
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockInstance) lastRequest() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

func (m *mockInstance) dropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		_ = c.Close()
	}
}

func newConnectedClient(t *testing.T, m *mockInstance) *Client {
	t.Helper()
	client := NewClient(m.server.URL, "tok en", Options{Timeout: 2 * time.Second})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)
	return client
}

func TestSignalingURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://cloud.example.com", "wss://cloud.example.com/signaling?token=abc"},
		{"http://127.0.0.1:8080/", "ws://127.0.0.1:8080/signaling?token=abc"},
		{"wss://already.example.com", "wss://already.example.com/signaling?token=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SignalingURL(tt.in, "abc"))
		})
	}
}

func TestConnect_FetchesDeviceInfo(t *testing.T) {
	m := newMockInstance(t, nil)
	client := newConnectedClient(t, m)

	info, err := client.DeviceInfo()
	require.NoError(t, err)
	assert.Equal(t, "CLOUD-1", info.UDID)
	assert.Equal(t, 390.0, info.ScreenWidth)
	assert.Equal(t, "iPhone 15", info.Model)
	assert.Equal(t, StateConnected, client.State())

	m.mu.Lock()
	assert.Equal(t, []string{"tok en"}, m.tokens)
	m.mu.Unlock()
}

func TestTap_MessageShape(t *testing.T) {
	m := newMockInstance(t, nil)
	client := newConnectedClient(t, m)

	require.NoError(t, client.Tap(context.Background(), 100, 200, 0))

	req := m.lastRequest()
	assert.Equal(t, "tap", req["type"])
	assert.Equal(t, float64(100), req["x"])
	assert.Equal(t, float64(200), req["y"])
	assert.Equal(t, 390.0, req["screenWidth"])
	assert.Equal(t, 844.0, req["screenHeight"])
	assert.NotContains(t, req, "duration")
	assert.True(t, strings.HasPrefix(req["id"].(string), "go-client-"))
}

func TestTap_WithDuration(t *testing.T) {
	m := newMockInstance(t, nil)
	client := newConnectedClient(t, m)

	require.NoError(t, client.Tap(context.Background(), 1, 2, 1500*time.Millisecond))
	assert.Equal(t, 1.5, m.lastRequest()["duration"])
}

func TestIDsAreUnique(t *testing.T) {
	client := NewClient("http://localhost", "t", Options{})
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := client.nextID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestRemoteError(t *testing.T) {
	m := newMockInstance(t, func(req map[string]interface{}) map[string]interface{} {
		if req["type"] == "launchApp" {
			return map[string]interface{}{"error": "app not installed"}
		}
		return defaultReply(req)
	})
	client := newConnectedClient(t, m)

	err := client.LaunchApp(context.Background(), "com.missing")
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "launchApp", remote.Type)
	assert.Equal(t, "app not installed", remote.Message)
}

func TestCall_Timeout(t *testing.T) {
	m := newMockInstance(t, func(req map[string]interface{}) map[string]interface{} {
		if req["type"] == "openUrl" {
			return nil
		}
		return defaultReply(req)
	})
	client := newConnectedClient(t, m)

	_, err := client.Call(context.Background(), "openUrl", map[string]interface{}{"url": "x"}, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	client.mu.Lock()
	assert.Empty(t, client.pending)
	client.mu.Unlock()
}

func TestPendingFailOnDisconnect(t *testing.T) {
	m := newMockInstance(t, func(req map[string]interface{}) map[string]interface{} {
		if req["type"] == "elementTree" {
			return nil
		}
		return defaultReply(req)
	})
	client := newConnectedClient(t, m)

	var states []State
	var statesMu sync.Mutex
	client.OnStateChange(func(s State) {
		statesMu.Lock()
		states = append(states, s)
		statesMu.Unlock()
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := client.ElementTree(context.Background())
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.requests) == 2
	}, 2*time.Second, 10*time.Millisecond)
	m.dropConnections()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was not failed on disconnect")
	}

	require.Eventually(t, func() bool { return client.State() == StateDisconnected }, time.Second, 10*time.Millisecond)

	// the next call reconnects
	require.NoError(t, client.OpenURL(context.Background(), "https://example.com"))
	assert.Equal(t, StateConnected, client.State())

	statesMu.Lock()
	assert.Contains(t, states, StateReconnecting)
	statesMu.Unlock()
}

func TestReconnect_ConcurrentCallsShareOneConnection(t *testing.T) {
	m := newMockInstance(t, nil)
	client := newConnectedClient(t, m)

	m.dropConnections()
	require.Eventually(t, func() bool { return client.State() == StateDisconnected }, 2*time.Second, 10*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Call(context.Background(), "listApps", nil, time.Second)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	m.mu.Lock()
	connections := len(m.conns)
	m.mu.Unlock()
	assert.Equal(t, 2, connections, "initial connection plus exactly one reconnect")
	assert.Equal(t, StateConnected, client.State())
}

func TestClose_IsIdempotentAndRejectsCalls(t *testing.T) {
	m := newMockInstance(t, nil)
	client := newConnectedClient(t, m)

	client.Close()
	client.Close()

	assert.Equal(t, StateDisconnected, client.State())
	assert.ErrorIs(t, client.OpenURL(context.Background(), "x"), ErrConnectionClosed)
}

func TestSwipeToScroll(t *testing.T) {
	tests := []struct {
		name           string
		x1, y1, x2, y2 int
		direction      string
		pixels         int
	}{
		{"finger up scrolls down", 200, 700, 200, 300, "down", 400},
		{"finger down scrolls up", 200, 300, 200, 700, "up", 400},
		{"finger right", 10, 100, 310, 100, "left", 300},
		{"finger left", 310, 100, 10, 100, "right", 300},
		{"diagonal", 0, 0, 30, 40, "up", 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direction, pixels := SwipeToScroll(tt.x1, tt.y1, tt.x2, tt.y2)
			assert.Equal(t, tt.direction, direction)
			assert.Equal(t, tt.pixels, pixels)
		})
	}
}

func TestSwipe_SendsScroll(t *testing.T) {
	m := newMockInstance(t, nil)
	client := newConnectedClient(t, m)

	require.NoError(t, client.Swipe(context.Background(), 200, 700, 200, 300, 400*time.Millisecond))

	req := m.lastRequest()
	assert.Equal(t, "scroll", req["type"])
	assert.Equal(t, "down", req["direction"])
	assert.Equal(t, float64(400), req["pixels"])
	assert.Equal(t, []interface{}{float64(200), float64(700)}, req["coordinate"])
	assert.Equal(t, 0.4, req["momentum"])
}

func TestListApps(t *testing.T) {
	apps := []map[string]string{{"bundleId": "com.apple.Preferences", "name": "Settings", "installType": "System"}}
	encoded, _ := json.Marshal(apps)

	tests := []struct {
		name  string
		value interface{}
	}{
		{"string", string(encoded)},
		{"array", apps},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockInstance(t, func(req map[string]interface{}) map[string]interface{} {
				if req["type"] == "listApps" {
					return map[string]interface{}{"apps": tt.value}
				}
				return defaultReply(req)
			})
			client := newConnectedClient(t, m)

			got, err := client.ListApps(context.Background())
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "com.apple.Preferences", got[0].BundleID)
			assert.Equal(t, "Settings", got[0].Name)
		})
	}
}

func TestScreenshotAndInstall(t *testing.T) {
	m := newMockInstance(t, func(req map[string]interface{}) map[string]interface{} {
		switch req["type"] {
		case "screenshot":
			return map[string]interface{}{"base64": "AQID", "width": 390, "height": 844}
		case "appInstallation":
			return map[string]interface{}{"url": req["url"], "bundleId": "com.example"}
		case "elementTree":
			return map[string]interface{}{"json": `[{"type":"Application"}]`}
		}
		return defaultReply(req)
	})
	client := newConnectedClient(t, m)
	ctx := context.Background()

	image, err := client.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, image)

	result, err := client.InstallApp(ctx, "https://example.com/app.ipa", "abc")
	require.NoError(t, err)
	assert.Equal(t, "com.example", result.BundleID)
	assert.Equal(t, "abc", m.lastRequest()["md5"])

	tree, err := client.ElementTree(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[{"type":"Application"}]`, tree)
}

func TestKeysAndOrientation(t *testing.T) {
	m := newMockInstance(t, nil)
	client := newConnectedClient(t, m)
	ctx := context.Background()

	require.NoError(t, client.KeyCode(ctx, 42))
	assert.Equal(t, "42", m.lastRequest()["key"])

	require.NoError(t, client.PressKey(ctx, "home"))
	assert.Equal(t, "home", m.lastRequest()["key"])

	require.NoError(t, client.TypeText(ctx, "hello", false))
	assert.Equal(t, "typeText", m.lastRequest()["type"])
	assert.Equal(t, false, m.lastRequest()["pressEnter"])

	require.NoError(t, client.SetOrientation(ctx, "Landscape"))
	assert.Equal(t, "Landscape", m.lastRequest()["orientation"])
}

func TestPingKeepsAlive(t *testing.T) {
	pings := make(chan struct{}, 4)
	mux := http.NewServeMux()
	mux.HandleFunc("/signaling", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		conn.SetPingHandler(func(string) error {
			select {
			case pings <- struct{}{}:
			default:
			}
			return nil
		})
		for {
			var req map[string]interface{}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			reply := defaultReply(req)
			reply["id"] = req["id"]
			_ = conn.WriteJSON(reply)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, "t", Options{PingInterval: 20 * time.Millisecond})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}
