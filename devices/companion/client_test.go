package companion

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/mobile-next/devicebridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *fakeRunner) {
	t.Helper()
	runner := newFakeRunner()
	c, err := New(runner, "SIM-1", Options{Host: "localhost", Port: 10882})
	require.NoError(t, err)
	return NewClient(runner, "", "SIM-1", c), runner
}

func TestClient_Commands(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		call func(c *Client) error
		want string
	}{
		{"tap", func(c *Client) error { return c.Tap(ctx, 10, 20, 0) }, "idb ui tap --udid SIM-1 10 20"},
		{"long press", func(c *Client) error { return c.Tap(ctx, 10, 20, 1500*time.Millisecond) }, "idb ui tap --udid SIM-1 10 20 --duration 1.5"},
		{"swipe", func(c *Client) error { return c.Swipe(ctx, 1, 2, 3, 4, 400*time.Millisecond) }, "idb ui swipe --udid SIM-1 1 2 3 4 --duration 0.4"},
		{"text", func(c *Client) error { return c.Text(ctx, "hello world") }, "idb ui text --udid SIM-1 hello world"},
		{"key", func(c *Client) error { return c.Key(ctx, 40) }, "idb ui key --udid SIM-1 40"},
		{"button", func(c *Client) error { return c.Button(ctx, ButtonHome) }, "idb ui button --udid SIM-1 HOME"},
		{"launch", func(c *Client) error { return c.Launch(ctx, "com.apple.Preferences") }, "idb launch --udid SIM-1 -f com.apple.Preferences"},
		{"terminate", func(c *Client) error { return c.Terminate(ctx, "com.apple.Preferences") }, "idb terminate --udid SIM-1 com.apple.Preferences"},
		{"open url", func(c *Client) error { return c.OpenURL(ctx, "https://example.com") }, "idb open --udid SIM-1 https://example.com"},
		{"connect", func(c *Client) error { return c.Connect(ctx) }, "idb connect localhost 10882"},
		{"disconnect", func(c *Client) error { return c.Disconnect(ctx) }, "idb disconnect localhost 10882"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, runner := newTestClient(t)
			require.NoError(t, tt.call(client))
			assert.Equal(t, []string{tt.want}, runner.Calls())
		})
	}
}

func TestClient_ScreenshotReadsFile(t *testing.T) {
	client, runner := newTestClient(t)
	runner.onRun = func(args []string) {
		// idb screenshot --udid SIM-1 <path>
		require.Len(t, args, 4)
		require.NoError(t, os.WriteFile(args[3], []byte("png-bytes"), 0o600))
	}

	data, err := client.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestClient_ListApps(t *testing.T) {
	client, runner := newTestClient(t)
	runner.outputs["idb list-apps --udid SIM-1 --json"] = `{"bundle_id":"com.apple.mobilesafari","name":"Safari","install_type":"system","process_state":"Running","debuggable":false,"pid":312}
{"bundle_id":"com.example.app","name":"Example","install_type":"user","process_state":"Unknown","debuggable":true}
`

	apps, err := client.ListApps(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "com.apple.mobilesafari", apps[0].BundleID)
	assert.Equal(t, 312, apps[0].PID)
	assert.True(t, apps[1].Debuggable)
}

func TestClient_DescribeAll(t *testing.T) {
	client, runner := newTestClient(t)
	runner.outputs["idb ui describe-all --udid SIM-1 --json"] = `[
  {"type":"Application","AXLabel":"Settings","AXValue":null,"AXUniqueId":null,"enabled":true,"frame":{"x":0,"y":0,"width":393,"height":852}},
  {"type":"Button","AXLabel":"General","AXValue":"","AXUniqueId":"com.apple.settings.general","enabled":true,"frame":{"x":16,"y":300.5,"width":361,"height":44}},
  {"type":"StaticText","AXLabel":"hidden","enabled":false,"frame":{"x":0,"y":0,"width":0,"height":0}}
]`

	nodes, err := client.DescribeAll(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	app, ok := ApplicationNode(nodes)
	require.True(t, ok)
	assert.Equal(t, "Settings", *app.Label)

	elements := Elements(nodes)
	assert.Equal(t, types.ScreenElement{
		Type:       "Button",
		Label:      "General",
		Text:       "General",
		Identifier: "com.apple.settings.general",
		Frame:      types.Frame{X: 16, Y: 300, Width: 361, Height: 44},
		Enabled:    true,
		Visible:    true,
	}, elements[1])
	assert.False(t, elements[2].Visible)
}

func TestParseAccessibility_SingleObject(t *testing.T) {
	nodes, err := ParseAccessibility([]byte(`{"type":"Application","AXLabel":"Home"}`))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Application", nodes[0].Type)

	_, err = ParseAccessibility([]byte("Usage: idb ui describe-all"))
	assert.Error(t, err)
}

func TestClient_RecordVideo(t *testing.T) {
	client, runner := newTestClient(t)

	p, err := client.RecordVideo(context.Background(), "/tmp/out.mp4")
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, []string{"idb record-video --udid SIM-1 /tmp/out.mp4"}, runner.Calls())
}
