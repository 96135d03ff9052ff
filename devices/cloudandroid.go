package devices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mobile-next/devicebridge/devices/adb"
	"github.com/mobile-next/devicebridge/tunnel"
	"github.com/mobile-next/devicebridge/utils"
)

// CloudAndroidOptions controls the timing of ConnectCloudAndroid.
type CloudAndroidOptions struct {
	// SettleDelay is the pause between starting the tunnel and adb connect.
	SettleDelay time.Duration
	// ConnectDelay is the pause after adb connect before polling.
	ConnectDelay time.Duration
	PollAttempts int
	PollInterval time.Duration
	Tunnel       tunnel.Options
}

func (o *CloudAndroidOptions) defaults() {
	if o.SettleDelay <= 0 {
		o.SettleDelay = 500 * time.Millisecond
	}
	if o.ConnectDelay <= 0 {
		o.ConnectDelay = 2 * time.Second
	}
	if o.PollAttempts <= 0 {
		o.PollAttempts = 15
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
}

// ConnectCloudAndroid bridges a remote adb endpoint to a loopback port,
// attaches adb to it and returns an initialized adapter for the resulting
// serial. Cleaning up the adapter disconnects adb and stops the tunnel.
func ConnectCloudAndroid(ctx context.Context, adbURL, token string, client *adb.Client, opts CloudAndroidOptions) (*AndroidDevice, error) {
	if adbURL == "" {
		return nil, &SetupError{Tool: "cloud", Err: fmt.Errorf("no adb url configured"), Instructions: "set [cloud] adb_url in the config file"}
	}
	opts.defaults()

	bridge := tunnel.New(adbURL, token, opts.Tunnel)
	addr, err := bridge.Start()
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*AndroidDevice, error) {
		_ = client.Disconnect(context.Background(), addr)
		_ = bridge.Stop()
		return nil, err
	}

	if err := sleepCtx(ctx, opts.SettleDelay); err != nil {
		return fail(err)
	}

	utils.Verbose("connecting adb to tunnel at %s", addr)
	if err := client.Connect(ctx, addr); err != nil {
		return fail(fmt.Errorf("failed to connect adb to %s: %w", addr, err))
	}
	if err := sleepCtx(ctx, opts.ConnectDelay); err != nil {
		return fail(err)
	}

	serial, err := waitForSerial(ctx, client, addr, opts.PollAttempts, opts.PollInterval)
	if err != nil {
		return fail(err)
	}

	device := NewAndroidDevice(serial, "cloud "+serial, client)
	device.OnCleanup("tunnel", bridge.Stop)
	device.OnCleanup("adb disconnect", func() error {
		return client.Disconnect(context.Background(), addr)
	})

	if err := device.Init(ctx); err != nil {
		_ = device.Cleanup()
		return nil, err
	}

	utils.Info("cloud android device ready as %s", serial)
	return device, nil
}

func waitForSerial(ctx context.Context, client *adb.Client, addr string, attempts int, interval time.Duration) (string, error) {
	for i := 0; i < attempts; i++ {
		list, err := client.Devices(ctx)
		if err == nil {
			for _, d := range list {
				if strings.Contains(d.Serial, addr) && d.Online() {
					return d.Serial, nil
				}
			}
		}

		if i < attempts-1 {
			if err := sleepCtx(ctx, interval); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("device at %s did not appear in adb devices after %d attempts", addr, attempts)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
