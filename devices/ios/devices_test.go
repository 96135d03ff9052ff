package ios

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerator_UsesUsbmuxFirst(t *testing.T) {
	runner := newFakeRunner()
	e := NewEnumerator(runner)
	e.listUSB = func() ([]PhysicalDevice, error) {
		return []PhysicalDevice{{UDID: "b-udid", Name: "Bee"}, {UDID: "a-udid", Name: "Ay"}}, nil
	}

	devices, err := e.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []PhysicalDevice{{UDID: "a-udid", Name: "Ay"}, {UDID: "b-udid", Name: "Bee"}}, devices)
	assert.Empty(t, runner.Calls())
}

func TestEnumerator_FallsBackToIdeviceID(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["idevice_id -l"] = "00008110-000A\n\n00008120-000B\n"
	runner.outputs["ideviceinfo -u 00008110-000A -k DeviceName"] = "Work iPhone\n"
	runner.fails["ideviceinfo -u 00008120-000B -k DeviceName"] = true

	e := NewEnumerator(runner)
	e.listUSB = func() ([]PhysicalDevice, error) { return nil, errors.New("usbmuxd not running") }

	devices, err := e.List(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, PhysicalDevice{UDID: "00008110-000A", Name: "Work iPhone"}, devices[0])
	assert.Equal(t, PhysicalDevice{UDID: "00008120-000B", Name: "Unknown Device"}, devices[1])

	udids, err := e.UDIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"00008110-000A", "00008120-000B"}, udids)
}

func TestEnumerator_BothStrategiesFail(t *testing.T) {
	runner := newFakeRunner()
	runner.fails["idevice_id -l"] = true

	e := NewEnumerator(runner)
	e.listUSB = func() ([]PhysicalDevice, error) { return nil, errors.New("no usbmuxd") }

	_, err := e.List(context.Background())
	assert.Error(t, err)
}
