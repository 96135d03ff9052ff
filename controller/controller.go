// Package controller is the single entry point callers use to drive
// devices. It owns every attached adapter, the recording sessions and any
// ADB tunnels, and reports every outcome as a Result.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mobile-next/devicebridge/devices"
	"github.com/mobile-next/devicebridge/recording"
	"github.com/mobile-next/devicebridge/tunnel"
	"github.com/mobile-next/devicebridge/utils"
	"github.com/sirupsen/logrus"
)

// Result is the normalized outcome of every controller operation.
type Result struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

func ok(data interface{}) Result {
	return Result{OK: true, Data: data}
}

func fail(err error) Result {
	return Result{OK: false, Error: err.Error()}
}

// Err returns the failure as an error, or nil for a successful result.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return errors.New(r.Error)
}

// AttachOptions overrides the configured backend selection for one device.
type AttachOptions struct {
	Platform devices.Platform
	Backend  devices.BackendKind
}

type Controller struct {
	factory  *devices.Factory
	registry *devices.DeviceRegistry
	recorder *recording.Manager
	defaults devices.AdapterConfig
	log      *logrus.Entry

	// attachMu serializes adapter creation so one id never gets two backends
	attachMu sync.Mutex

	mu      sync.Mutex
	tunnels map[string]*tunnel.Bridge
}

func New(factory *devices.Factory, recorder *recording.Manager, defaults devices.AdapterConfig) *Controller {
	if factory == nil {
		factory = devices.NewFactory(nil, nil, nil)
	}
	if recorder == nil {
		recorder = recording.NewManager(recording.Options{})
	}
	return &Controller{
		factory:  factory,
		registry: devices.NewDeviceRegistry(),
		recorder: recorder,
		defaults: defaults,
		log:      utils.WithComponent("controller"),
		tunnels:  map[string]*tunnel.Bridge{},
	}
}

func (c *Controller) Registry() *devices.DeviceRegistry {
	return c.registry
}

func (c *Controller) Recorder() *recording.Manager {
	return c.recorder
}

// Devices lists locally visible devices plus attached remote ones.
func (c *Controller) Devices(ctx context.Context) Result {
	infos := c.factory.Discover(ctx)
	seen := map[string]bool{}
	for _, info := range infos {
		seen[info.ID] = true
	}
	for _, d := range c.registry.List() {
		if seen[d.ID()] {
			continue
		}
		info := devices.InfoFor(d.Identity(), "")
		if d.Kind() == devices.BackendCloudRPC || d.Kind() == devices.BackendDeviceFarm {
			info.Type = string(devices.ClassCloud)
		}
		infos = append(infos, info)
	}
	return ok(infos)
}

// Classify reports whether id is a booted simulator, a USB device or unknown.
func (c *Controller) Classify(ctx context.Context, id string) Result {
	if id == "" {
		return fail(fmt.Errorf("device id is required"))
	}
	return ok(map[string]string{"id": id, "type": string(c.factory.Classifier().Classify(ctx, id))})
}

// Attach selects, initializes and registers an adapter for id. Attaching a
// device that is already attached returns the existing identity.
func (c *Controller) Attach(ctx context.Context, id string, opts AttachOptions) Result {
	device, err := c.attach(ctx, id, opts)
	if err != nil {
		return fail(err)
	}
	return ok(device.Identity())
}

func (c *Controller) attach(ctx context.Context, id string, opts AttachOptions) (devices.ControllableDevice, error) {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()

	if id != "" {
		if device, found := c.registry.Get(id); found {
			return device, nil
		}
	}

	cfg := c.defaults
	if opts.Platform != "" {
		cfg.Platform = opts.Platform
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}

	device, err := c.factory.SelectAdapter(ctx, id, cfg)
	if err != nil {
		return nil, err
	}
	if err := device.Init(ctx); err != nil {
		_ = device.Cleanup()
		return nil, err
	}

	c.registry.Register(device)
	c.log.WithFields(logrus.Fields{"device": device.ID(), "kind": device.Kind()}).Info("device attached")
	return device, nil
}

// Detach finalizes any recording and releases the adapter.
func (c *Controller) Detach(ctx context.Context, id string) Result {
	device, found := c.registry.Remove(id)
	if !found {
		return fail(fmt.Errorf("device %s is not attached", id))
	}
	if c.recorder.Active(id) {
		if _, err := c.recorder.Stop(ctx, id); err != nil {
			c.log.WithField("device", id).Warnf("recording not finalized: %v", err)
		}
	}
	if err := device.Cleanup(); err != nil {
		return fail(fmt.Errorf("cleanup of %s failed: %w", id, err))
	}
	c.factory.Classifier().Forget(id)
	return ok(map[string]string{"message": fmt.Sprintf("Detached device %s", id)})
}

// resolve returns the adapter for id, attaching it on first use. An empty
// id picks the only attached or visible device.
func (c *Controller) resolve(ctx context.Context, id string) (devices.ControllableDevice, error) {
	if id != "" {
		if device, found := c.registry.Get(id); found {
			return device, nil
		}
		return c.attach(ctx, id, AttachOptions{Platform: c.platformOf(ctx, id)})
	}

	if attached := c.registry.List(); len(attached) == 1 {
		return attached[0], nil
	}

	if c.defaults.Backend == devices.BackendCloudRPC || c.defaults.Backend == devices.BackendDeviceFarm {
		return c.attach(ctx, "", AttachOptions{})
	}

	visible := c.factory.Discover(ctx)
	switch len(visible) {
	case 0:
		return nil, fmt.Errorf("no online devices found")
	case 1:
		return c.attach(ctx, visible[0].ID, AttachOptions{Platform: devices.Platform(visible[0].Platform)})
	}

	ids := make([]string, 0, len(visible))
	for _, v := range visible {
		ids = append(ids, v.ID)
	}
	sort.Strings(ids)
	return nil, fmt.Errorf("multiple devices found (%d), please specify a device with one of: [%s]", len(ids), strings.Join(ids, ", "))
}

// platformOf looks id up among visible devices. Unknown ids are treated as
// iOS so classification can report what is visible.
func (c *Controller) platformOf(ctx context.Context, id string) devices.Platform {
	if c.defaults.Platform != "" && c.defaults.Backend != "" {
		return c.defaults.Platform
	}
	for _, info := range c.factory.Discover(ctx) {
		if info.ID == id {
			return devices.Platform(info.Platform)
		}
	}
	if c.defaults.Platform != "" {
		return c.defaults.Platform
	}
	return devices.PlatformIOS
}

// with resolves id and runs fn against the adapter.
func (c *Controller) with(ctx context.Context, id string, fn func(devices.ControllableDevice) (interface{}, error)) Result {
	device, err := c.resolve(ctx, id)
	if err != nil {
		return fail(err)
	}
	data, err := fn(device)
	if err != nil {
		return fail(err)
	}
	return ok(data)
}

func message(format string, args ...interface{}) map[string]string {
	return map[string]string{"message": fmt.Sprintf(format, args...)}
}

// StartTunnel bridges a remote ADB WebSocket endpoint to a loopback port.
func (c *Controller) StartTunnel(ctx context.Context, remoteURL, token string) Result {
	if remoteURL == "" {
		return fail(fmt.Errorf("remote url is required"))
	}
	bridge := tunnel.New(remoteURL, token, tunnel.Options{})
	addr, err := bridge.Start()
	if err != nil {
		return fail(err)
	}

	c.mu.Lock()
	c.tunnels[addr] = bridge
	c.mu.Unlock()
	return ok(map[string]string{"address": addr})
}

func (c *Controller) StopTunnel(addr string) Result {
	c.mu.Lock()
	bridge, found := c.tunnels[addr]
	delete(c.tunnels, addr)
	c.mu.Unlock()

	if !found {
		return fail(fmt.Errorf("no tunnel listening on %s", addr))
	}
	if err := bridge.Stop(); err != nil {
		return fail(err)
	}
	return ok(message("Stopped tunnel on %s", addr))
}

// Tunnels lists the local addresses of running tunnels.
func (c *Controller) Tunnels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	addrs := make([]string, 0, len(c.tunnels))
	for addr := range c.tunnels {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// Shutdown finalizes recordings, stops tunnels and releases every adapter.
func (c *Controller) Shutdown(ctx context.Context) {
	c.recorder.StopAll(ctx)

	c.mu.Lock()
	tunnels := c.tunnels
	c.tunnels = map[string]*tunnel.Bridge{}
	c.mu.Unlock()
	for addr, bridge := range tunnels {
		if err := bridge.Stop(); err != nil {
			c.log.Warnf("failed to stop tunnel %s: %v", addr, err)
		}
	}

	c.registry.CleanupAll()
}
