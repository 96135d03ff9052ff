package devices

import (
	"context"
	"fmt"
	"sort"

	"github.com/mobile-next/devicebridge/devices/adb"
	"github.com/mobile-next/devicebridge/devices/cloudrpc"
	"github.com/mobile-next/devicebridge/utils"
)

// CloudConfig addresses a cloud-hosted device. Android instances are
// reached through ADBURL, iOS instances through APIURL.
type CloudConfig struct {
	APIURL     string
	ADBURL     string
	Token      string
	InstanceID string
	RPC        cloudrpc.Options
	Android    CloudAndroidOptions
}

// AdapterConfig selects and configures a backend. Backend is normally left
// empty; BackendCloudRPC and BackendDeviceFarm pick those adapters
// explicitly and skip local classification.
type AdapterConfig struct {
	Platform  Platform
	Backend   BackendKind
	Simulator SimulatorOptions
	Physical  PhysicalOptions
	Cloud     CloudConfig
	Farm      FarmOptions
}

// Factory builds adapters for device ids.
type Factory struct {
	runner     utils.CommandRunner
	adb        *adb.Client
	classifier *Classifier
}

func NewFactory(runner utils.CommandRunner, adbClient *adb.Client, classifier *Classifier) *Factory {
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	if adbClient == nil {
		adbClient = adb.NewClient("", runner)
	}
	if classifier == nil {
		classifier = NewClassifier(runner)
	}
	return &Factory{runner: runner, adb: adbClient, classifier: classifier}
}

func (f *Factory) Classifier() *Classifier {
	return f.classifier
}

func (f *Factory) ADB() *adb.Client {
	return f.adb
}

// SelectAdapter returns an adapter for id. Adapters come back uninitialized
// except for cloud Android, which has to attach adb before its serial is
// known.
func (f *Factory) SelectAdapter(ctx context.Context, id string, cfg AdapterConfig) (ControllableDevice, error) {
	switch cfg.Backend {
	case BackendDeviceFarm:
		return NewFarmDevice(id, cfg.Farm), nil
	case BackendCloudRPC:
		return f.cloudAdapter(ctx, id, cfg)
	}

	if cfg.Platform == PlatformAndroid {
		return NewAndroidDevice(id, f.androidName(ctx, id), f.adb), nil
	}
	if cfg.Platform != PlatformIOS && cfg.Platform != "" {
		return nil, fmt.Errorf("unsupported platform: %s", cfg.Platform)
	}

	switch f.classifier.Classify(ctx, id) {
	case ClassSimulator:
		return NewSimulatorDevice(id, f.simulatorName(ctx, id), f.runner, cfg.Simulator), nil
	case ClassPhysical:
		return NewPhysicalDevice(id, f.physicalName(ctx, id), f.runner, cfg.Physical), nil
	}

	return nil, &DeviceNotFoundError{ID: id, Visible: f.classifier.VisibleIOSDevices(ctx)}
}

func (f *Factory) cloudAdapter(ctx context.Context, id string, cfg AdapterConfig) (ControllableDevice, error) {
	if cfg.Platform == PlatformAndroid {
		return ConnectCloudAndroid(ctx, cfg.Cloud.ADBURL, cfg.Cloud.Token, f.adb, cfg.Cloud.Android)
	}
	if id == "" {
		id = cfg.Cloud.InstanceID
	}
	return NewCloudDevice(id, cfg.Cloud.APIURL, cfg.Cloud.Token, cfg.Cloud.RPC), nil
}

func (f *Factory) androidName(ctx context.Context, serial string) string {
	list, err := f.adb.Devices(ctx)
	if err != nil {
		return ""
	}
	for _, d := range list {
		if d.Serial == serial && d.Model != "" {
			return d.Model
		}
	}
	return ""
}

func (f *Factory) simulatorName(ctx context.Context, udid string) string {
	for _, sim := range f.classifier.Simulators(ctx) {
		if sim.ID == udid {
			return sim.Name
		}
	}
	return ""
}

func (f *Factory) physicalName(ctx context.Context, udid string) string {
	for _, d := range f.classifier.PhysicalDevices(ctx) {
		if d.ID == udid {
			return d.Name
		}
	}
	return ""
}

// Discover lists every locally visible device: online adb devices, booted
// simulators and USB-attached iOS devices. A failing source is skipped.
func (f *Factory) Discover(ctx context.Context) []DeviceInfo {
	var infos []DeviceInfo

	if list, err := f.adb.Devices(ctx); err != nil {
		utils.Verbose("Warning: Failed to get Android devices: %v", err)
	} else {
		for _, d := range list {
			if !d.Online() {
				continue
			}
			name := d.Model
			if name == "" {
				name = d.Serial
			}
			infos = append(infos, InfoFor(Identity{ID: d.Serial, Platform: PlatformAndroid, Kind: BackendADB, Name: name}, ""))
		}
	}

	for _, id := range f.classifier.Simulators(ctx) {
		infos = append(infos, InfoFor(id, ClassSimulator))
	}
	for _, id := range f.classifier.PhysicalDevices(ctx) {
		infos = append(infos, InfoFor(id, ClassPhysical))
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].Platform != infos[j].Platform {
			return infos[i].Platform < infos[j].Platform
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}
