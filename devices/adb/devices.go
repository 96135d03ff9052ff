package adb

import "strings"

// Device is one line of `adb devices -l`.
type Device struct {
	Serial      string
	State       string
	Model       string
	Product     string
	TransportID string
}

// Online reports whether adb can talk to the device.
func (d Device) Online() bool {
	return d.State == "device"
}

// IsNetwork reports whether the device is attached over TCP (host:port serial).
func (d Device) IsNetwork() bool {
	return strings.Contains(d.Serial, ":")
}

// ParseDevices parses `adb devices` or `adb devices -l` output.
func ParseDevices(output string) []Device {
	var devices []Device

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		device := Device{Serial: parts[0], State: parts[1]}
		for _, attr := range parts[2:] {
			key, value, ok := strings.Cut(attr, ":")
			if !ok {
				continue
			}
			switch key {
			case "model":
				device.Model = strings.ReplaceAll(value, "_", " ")
			case "product":
				device.Product = value
			case "transport_id":
				device.TransportID = value
			}
		}

		devices = append(devices, device)
	}

	return devices
}
