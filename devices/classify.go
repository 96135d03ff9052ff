package devices

import (
	"context"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	iosutil "github.com/mobile-next/devicebridge/devices/ios"
	"github.com/mobile-next/devicebridge/utils"
)

// Classification is where an iOS device id lives.
type Classification string

const (
	ClassSimulator Classification = "simulator"
	ClassPhysical  Classification = "physical"
	ClassCloud     Classification = "cloud"
	ClassUnknown   Classification = "unknown"
)

const (
	classifierCacheSize = 128
	classifierCacheTTL  = 30 * time.Second
)

// physicalLister is satisfied by *ios.Enumerator.
type physicalLister interface {
	List(ctx context.Context) ([]iosutil.PhysicalDevice, error)
}

// Classifier decides whether an iOS id is a booted simulator or a
// USB-attached device. Positive answers are cached for a short while so a
// burst of commands does not rerun simctl each time.
type Classifier struct {
	goos     string
	runner   utils.CommandRunner
	physical physicalLister
	cache    *expirable.LRU[string, Classification]
}

func NewClassifier(runner utils.CommandRunner) *Classifier {
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	return &Classifier{
		goos:     runtime.GOOS,
		runner:   runner,
		physical: iosutil.NewEnumerator(runner),
		cache:    expirable.NewLRU[string, Classification](classifierCacheSize, nil, classifierCacheTTL),
	}
}

// Classify runs the strategies in order and returns the first match: the
// booted simulator list, the physical device enumeration, then the USB
// descriptor dump. Anything other than macOS is ClassUnknown.
func (c *Classifier) Classify(ctx context.Context, id string) Classification {
	if c.goos != "darwin" || id == "" {
		return ClassUnknown
	}
	if cached, ok := c.cache.Get(id); ok {
		return cached
	}

	result := c.classify(ctx, id)
	if result != ClassUnknown {
		c.cache.Add(id, result)
	}
	utils.Verbose("classified %s as %s", id, result)
	return result
}

func (c *Classifier) classify(ctx context.Context, id string) Classification {
	if sims, err := ListSimulators(ctx, c.runner); err == nil {
		for _, sim := range sims {
			if sim.UDID == id && sim.State == simulatorStateBooted {
				return ClassSimulator
			}
		}
	} else {
		utils.Verbose("simulator lookup failed: %v", err)
	}

	if list, err := c.physical.List(ctx); err == nil {
		for _, d := range list {
			if d.UDID == id {
				return ClassPhysical
			}
		}
	} else {
		utils.Verbose("physical device lookup failed: %v", err)
	}

	if output, err := c.runner.Run(ctx, "system_profiler", "SPUSBDataType", "-json"); err == nil {
		if strings.Contains(string(output), id) {
			return ClassPhysical
		}
	} else {
		utils.Verbose("system_profiler lookup failed: %v", err)
	}

	return ClassUnknown
}

// Forget drops a cached answer, for example after a simulator shuts down.
func (c *Classifier) Forget(id string) {
	c.cache.Remove(id)
}

// Simulators returns booted iOS simulators.
func (c *Classifier) Simulators(ctx context.Context) []Identity {
	if c.goos != "darwin" {
		return nil
	}
	sims, err := ListSimulators(ctx, c.runner)
	if err != nil {
		utils.Verbose("Warning: Failed to get iOS simulators: %v", err)
		return nil
	}

	var out []Identity
	for _, sim := range BootedIOSSimulators(sims) {
		name := sim.Name
		if name == "" {
			name = "Unknown Simulator"
		}
		out = append(out, Identity{ID: sim.UDID, Platform: PlatformIOS, Kind: BackendSimulatorCompanion, Name: name})
	}
	return out
}

// PhysicalDevices returns USB-attached iOS devices. When neither usbmuxd nor
// idevice_id answer, the xctrace device list is parsed instead.
func (c *Classifier) PhysicalDevices(ctx context.Context) []Identity {
	if c.goos != "darwin" {
		return nil
	}

	list, err := c.physical.List(ctx)
	if err != nil || len(list) == 0 {
		if err != nil {
			utils.Verbose("Warning: Failed to get iOS real devices: %v", err)
		}
		if output, xerr := c.runner.Run(ctx, "xcrun", "xctrace", "list", "devices"); xerr == nil {
			list = ParseXctraceDevices(string(output))
		}
	}

	var out []Identity
	for _, d := range list {
		name := d.Name
		if name == "" {
			name = "Unknown Device"
		}
		out = append(out, Identity{ID: d.UDID, Platform: PlatformIOS, Kind: BackendPhysicalHTTP, Name: name})
	}
	return out
}

// VisibleIOSDevices lists simulators first, then physical devices.
func (c *Classifier) VisibleIOSDevices(ctx context.Context) []Identity {
	return append(c.Simulators(ctx), c.PhysicalDevices(ctx)...)
}

var xctraceLine = regexp.MustCompile(`^(.+?)\s+\([^)]+\)\s+\(([A-Fa-f0-9-]{25,36})\)$`)

// ParseXctraceDevices extracts physical devices from `xcrun xctrace list
// devices`. Simulator lines and the host Mac (which has no OS version
// group) are skipped.
func ParseXctraceDevices(output string) []iosutil.PhysicalDevice {
	var devices []iosutil.PhysicalDevice
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "== Simulators") {
			break
		}
		if line == "" || strings.Contains(line, "Simulator") {
			continue
		}
		m := xctraceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		devices = append(devices, iosutil.PhysicalDevice{UDID: m[2], Name: strings.TrimSpace(m[1])})
	}
	return devices
}
