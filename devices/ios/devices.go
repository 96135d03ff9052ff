package ios

import (
	"context"
	"sort"
	"strings"

	goios "github.com/danielpaulus/go-ios/ios"
	"github.com/mobile-next/devicebridge/utils"
)

// PhysicalDevice is a USB-attached iOS device.
type PhysicalDevice struct {
	UDID string `json:"udid"`
	Name string `json:"name"`
}

// Enumerator lists physical devices. usbmuxd is asked first through go-ios;
// libimobiledevice's idevice_id is the fallback when usbmuxd is unreachable.
type Enumerator struct {
	runner utils.CommandRunner

	// listUSB is swapped out in tests
	listUSB func() ([]PhysicalDevice, error)
}

func NewEnumerator(runner utils.CommandRunner) *Enumerator {
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	return &Enumerator{runner: runner, listUSB: listUsbmuxDevices}
}

func listUsbmuxDevices() ([]PhysicalDevice, error) {
	list, err := goios.ListDevices()
	if err != nil {
		return nil, err
	}

	var devices []PhysicalDevice
	for _, entry := range list.DeviceList {
		udid := entry.Properties.SerialNumber
		if udid == "" {
			continue
		}

		name := ""
		if values, err := goios.GetValues(entry); err == nil {
			name = values.Value.DeviceName
		} else {
			utils.Verbose("lockdown values unavailable for %s: %v", udid, err)
		}
		devices = append(devices, PhysicalDevice{UDID: udid, Name: name})
	}
	return devices, nil
}

// UDIDs returns the identifiers of every attached device.
func (e *Enumerator) UDIDs(ctx context.Context) ([]string, error) {
	devices, err := e.List(ctx)
	if err != nil {
		return nil, err
	}
	udids := make([]string, 0, len(devices))
	for _, d := range devices {
		udids = append(udids, d.UDID)
	}
	return udids, nil
}

// List returns attached devices with their names, sorted by UDID.
func (e *Enumerator) List(ctx context.Context) ([]PhysicalDevice, error) {
	devices, err := e.listUSB()
	if err != nil {
		utils.Verbose("usbmuxd enumeration failed, trying idevice_id: %v", err)
		devices, err = e.listIdeviceID(ctx)
		if err != nil {
			return nil, err
		}
	}

	for i := range devices {
		if devices[i].Name == "" {
			devices[i].Name = e.DeviceName(ctx, devices[i].UDID)
		}
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].UDID < devices[j].UDID })
	return devices, nil
}

func (e *Enumerator) listIdeviceID(ctx context.Context) ([]PhysicalDevice, error) {
	output, err := e.runner.Run(ctx, "idevice_id", "-l")
	if err != nil {
		return nil, err
	}

	var devices []PhysicalDevice
	for _, line := range strings.Split(string(output), "\n") {
		if udid := strings.TrimSpace(line); udid != "" {
			devices = append(devices, PhysicalDevice{UDID: udid})
		}
	}
	return devices, nil
}

// DeviceName asks ideviceinfo for the user-visible name. Unknown devices
// are reported as "Unknown Device".
func (e *Enumerator) DeviceName(ctx context.Context, udid string) string {
	output, err := e.runner.Run(ctx, "ideviceinfo", "-u", udid, "-k", "DeviceName")
	if err != nil {
		return "Unknown Device"
	}
	if name := strings.TrimSpace(string(output)); name != "" {
		return name
	}
	return "Unknown Device"
}
