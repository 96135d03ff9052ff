package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mobile-next/devicebridge/devices/adb"
	"github.com/mobile-next/devicebridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAndroid(t *testing.T) (*AndroidDevice, *fakeRunner) {
	t.Helper()
	runner := newFakeRunner()
	runner.outputs["adb -s emulator-5554 get-state"] = "device\n"
	d := NewAndroidDevice("emulator-5554", "Pixel", adb.NewClient("adb", runner))
	require.NoError(t, d.Init(context.Background()))
	// drop the readiness and ui automation probes
	runner.reset()
	return d, runner
}

func TestAndroidDevice_UninitializedReturnsErrNotInitialized(t *testing.T) {
	d := NewAndroidDevice("emulator-5554", "", adb.NewClient("adb", newFakeRunner()))
	ctx := context.Background()

	assert.ErrorIs(t, d.Tap(ctx, 1, 2, 0), ErrNotInitialized)
	assert.ErrorIs(t, d.Swipe(ctx, 1, 2, 3, 4, 0), ErrNotInitialized)
	assert.ErrorIs(t, d.InputText(ctx, "hi"), ErrNotInitialized)
	assert.ErrorIs(t, d.LaunchApp(ctx, "com.app"), ErrNotInitialized)
	assert.ErrorIs(t, d.TerminateApp(ctx, "com.app"), ErrNotInitialized)
	assert.ErrorIs(t, d.OpenURL(ctx, "https://example.com"), ErrNotInitialized)
	assert.ErrorIs(t, d.PressButton(ctx, ButtonHome), ErrNotInitialized)
	assert.ErrorIs(t, d.KeyCode(ctx, 66), ErrNotInitialized)

	_, err := d.Screenshot(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = d.DescribeUI(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = d.CurrentForegroundApp(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = d.ScreenSize(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestAndroidDevice_InitRejectsOfflineDevice(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["adb -s emulator-5554 get-state"] = "offline\n"
	d := NewAndroidDevice("emulator-5554", "", adb.NewClient("adb", runner))

	err := d.Init(context.Background())
	assert.ErrorContains(t, err, "offline")
}

func TestAndroidDevice_TapAndLongPress(t *testing.T) {
	d, runner := newTestAndroid(t)
	ctx := context.Background()

	require.NoError(t, d.Tap(ctx, 100, 200, 0))
	require.NoError(t, d.Tap(ctx, 100, 200, 1500*time.Millisecond))

	assert.True(t, runner.called("adb -s emulator-5554 shell input tap 100 200"))
	assert.True(t, runner.called("adb -s emulator-5554 shell input swipe 100 200 100 200 1500"))
}

func TestAndroidDevice_SwipeDefaultsDuration(t *testing.T) {
	d, runner := newTestAndroid(t)

	require.NoError(t, d.Swipe(context.Background(), 1, 2, 3, 4, 0))
	assert.True(t, runner.called("adb -s emulator-5554 shell input touchscreen swipe 1 2 3 4 400"))
}

func TestAndroidDevice_PressButton(t *testing.T) {
	d, runner := newTestAndroid(t)
	ctx := context.Background()

	tests := []struct {
		button Button
		code   string
	}{
		{ButtonHome, "3"},
		{ButtonBack, "4"},
		{ButtonEnter, "66"},
		{ButtonVolumeUp, "24"},
		{ButtonVolumeDown, "25"},
		{ButtonPower, "26"},
	}

	for _, tt := range tests {
		t.Run(string(tt.button), func(t *testing.T) {
			require.NoError(t, d.PressButton(ctx, tt.button))
			assert.True(t, runner.called("adb -s emulator-5554 shell input keyevent "+tt.code))
		})
	}

	assert.Error(t, d.PressButton(ctx, Button("jump")))
}

func TestEscapeInputText(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"hello", "hello"},
		{"hello world", "hello%sworld"},
		{"it's", `it\'s`},
		{`say "hi"`, `say%s\"hi\"`},
		{"a;b|c&d", `a\;b\|c\&d`},
		{"$(rm)", `\$\(rm\)`},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeInputText(tt.text))
		})
	}
}

func TestAndroidDevice_InputTextSplitsLiteralPercentS(t *testing.T) {
	d, runner := newTestAndroid(t)

	require.NoError(t, d.InputText(context.Background(), "50%sale"))

	assert.Equal(t, []string{
		"adb -s emulator-5554 shell input text 50",
		"adb -s emulator-5554 shell input keyevent 62",
		"adb -s emulator-5554 shell input text ale",
	}, runner.Calls())
}

func TestAndroidDevice_TerminateForegroundApp(t *testing.T) {
	d, runner := newTestAndroid(t)
	runner.outputs["adb -s emulator-5554 shell dumpsys window | grep mCurrentFocus"] =
		"  mCurrentFocus=Window{7f3c2d1 u0 com.example.app/com.example.app.MainActivity}\n"

	require.NoError(t, d.TerminateApp(context.Background(), ""))
	assert.True(t, runner.called("adb -s emulator-5554 shell am force-stop 'com.example.app'"))
}

func TestAndroidDevice_AppAndFileArgumentsAreQuoted(t *testing.T) {
	d, runner := newTestAndroid(t)
	ctx := context.Background()

	require.NoError(t, d.LaunchApp(ctx, "com.example;reboot"))
	require.NoError(t, d.TerminateApp(ctx, "com.example;reboot"))
	require.NoError(t, d.RemoveFile(ctx, "/sdcard/a b;rm -rf /sdcard"))

	assert.Equal(t, []string{
		"adb -s emulator-5554 shell monkey -p 'com.example;reboot' -c android.intent.category.LAUNCHER 1",
		"adb -s emulator-5554 shell am force-stop 'com.example;reboot'",
		"adb -s emulator-5554 shell rm -f '/sdcard/a b;rm -rf /sdcard'",
	}, runner.Calls())
}

func TestAndroidDevice_TerminateWithoutForegroundFails(t *testing.T) {
	d, runner := newTestAndroid(t)
	runner.outputs["adb -s emulator-5554 shell dumpsys window | grep mCurrentFocus"] = "  mCurrentFocus=null\n"

	assert.ErrorContains(t, d.TerminateApp(context.Background(), ""), "no foreground app")
}

func TestParseFocusedPackage(t *testing.T) {
	assert.Equal(t, "com.android.launcher3",
		parseFocusedPackage("mCurrentFocus=Window{abc u0 com.android.launcher3/com.android.launcher3.Launcher}"))
	assert.Equal(t, "", parseFocusedPackage("mCurrentFocus=null"))
	assert.Equal(t, "", parseFocusedPackage(""))
}

func TestAndroidDevice_OpenURLQuotes(t *testing.T) {
	d, runner := newTestAndroid(t)

	require.NoError(t, d.OpenURL(context.Background(), "https://example.com/?a=1&b=2"))
	assert.True(t, runner.called("adb -s emulator-5554 shell am start -a android.intent.action.VIEW -d 'https://example.com/?a=1&b=2'"))
}

func TestAndroidDevice_ScreenshotRejectsNonPNG(t *testing.T) {
	d, runner := newTestAndroid(t)
	runner.outputs["adb -s emulator-5554 exec-out screencap -p"] = "error: closed"

	_, err := d.Screenshot(context.Background())
	assert.ErrorContains(t, err, "not a PNG")

	runner.outputs["adb -s emulator-5554 exec-out screencap -p"] = pngSignature + "rest"
	data, err := d.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pngSignature+"rest", string(data))
}

func TestParseWmSize(t *testing.T) {
	size, err := parseWmSize("Physical size: 1080x2400\n")
	require.NoError(t, err)
	assert.Equal(t, types.Size{Width: 1080, Height: 2400}, size)

	size, err = parseWmSize("Physical size: 1080x2400\nOverride size: 720x1600\n")
	require.NoError(t, err)
	assert.Equal(t, types.Size{Width: 720, Height: 1600}, size)

	_, err = parseWmSize("error")
	assert.Error(t, err)
}

func TestAndroidDevice_ScreenSizeCached(t *testing.T) {
	d, runner := newTestAndroid(t)
	runner.outputs["adb -s emulator-5554 shell wm size"] = "Physical size: 1080x2400\n"

	for i := 0; i < 3; i++ {
		size, err := d.ScreenSize(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1080, size.Width)
	}

	count := 0
	for _, c := range runner.Calls() {
		if c == "adb -s emulator-5554 shell wm size" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAndroidDevice_DescribeUIFallsBackToShell(t *testing.T) {
	d, runner := newTestAndroid(t)
	runner.outputs["adb -s emulator-5554 exec-out cat /sdcard/window_dump.xml"] = sampleHierarchy

	elements, err := d.DescribeUI(context.Background())
	require.NoError(t, err)
	require.Len(t, elements, 3)
	assert.True(t, runner.called("adb -s emulator-5554 shell uiautomator dump /sdcard/window_dump.xml"))
}

func TestAndroidDevice_CleanupRunsHooksOnce(t *testing.T) {
	d, _ := newTestAndroid(t)

	calls := 0
	d.OnCleanup("tunnel", func() error { calls++; return nil })

	require.NoError(t, d.Cleanup())
	require.NoError(t, d.Cleanup())
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, d.Tap(context.Background(), 1, 1, 0), ErrNotInitialized)
}

func TestAndroidDevice_ShellErrorPropagates(t *testing.T) {
	d, runner := newTestAndroid(t)
	runner.errors["adb -s emulator-5554 shell input tap 1 1"] = errors.New("device offline")

	assert.ErrorContains(t, d.Tap(context.Background(), 1, 1, 0), "device offline")
}
