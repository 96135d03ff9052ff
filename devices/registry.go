package devices

import (
	"sort"
	"sync"

	"github.com/mobile-next/devicebridge/utils"
)

// DeviceRegistry tracks live adapters so they can be cleaned up on shutdown.
// Registering an id that is already present replaces and cleans up the old adapter.
type DeviceRegistry struct {
	mu      sync.RWMutex
	devices map[string]ControllableDevice
}

// NewDeviceRegistry creates a new device registry instance
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{
		devices: make(map[string]ControllableDevice),
	}
}

// Register adds a device to the registry for cleanup tracking
func (r *DeviceRegistry) Register(device ControllableDevice) {
	r.mu.Lock()
	previous, exists := r.devices[device.ID()]
	r.devices[device.ID()] = device
	r.mu.Unlock()

	if exists && previous != device {
		if err := previous.Cleanup(); err != nil {
			utils.Verbose("Error cleaning up replaced device %s: %v", device.ID(), err)
		}
	}
}

// Get returns the adapter registered under id.
func (r *DeviceRegistry) Get(id string) (ControllableDevice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// Remove drops id from the registry and returns the adapter without cleaning it up.
func (r *DeviceRegistry) Remove(id string) (ControllableDevice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	delete(r.devices, id)
	return d, ok
}

// List returns the registered adapters ordered by id.
func (r *DeviceRegistry) List() []ControllableDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]ControllableDevice, 0, len(r.devices))
	for _, d := range r.devices {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// CleanupAll gracefully cleans up all registered devices
func (r *DeviceRegistry) CleanupAll() {
	r.mu.Lock()
	devices := r.devices
	r.devices = make(map[string]ControllableDevice)
	r.mu.Unlock()

	for id, device := range devices {
		if err := device.Cleanup(); err != nil {
			utils.Verbose("Error cleaning up device %s: %v", id, err)
		}
	}
}
