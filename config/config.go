// Package config loads the ini configuration file and resolves secrets from
// the environment or the OS keyring.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mobile-next/devicebridge/devices"
	"github.com/mobile-next/devicebridge/devices/companion"
	"github.com/mobile-next/devicebridge/recording"
	"github.com/mobile-next/devicebridge/utils"
	"gopkg.in/ini.v1"
)

const (
	appName         = "devicebridge"
	DefaultListen   = "localhost:12000"
	defaultFileName = "config.ini"
)

type ADB struct {
	Path string
}

type Simulator struct {
	CompanionPath string
	IdbPath       string
	Host          string
	Port          int
	StartTimeout  time.Duration
}

type Physical struct {
	WDAURL            string
	Timeout           time.Duration
	AutoStartIproxy   bool
	AutoStartWDA      bool
	WDAProjectPath    string
	WDAStartupTimeout time.Duration
}

type Cloud struct {
	APIURL     string
	ADBURL     string
	InstanceID string
	Platform   devices.Platform
	Token      string
}

type Farm struct {
	HubURL          string
	Username        string
	AccessKey       string
	DeviceName      string
	PlatformVersion string
	AppURL          string
	ProjectName     string
	BuildName       string
	SessionName     string
}

type Recording struct {
	MaxDuration  time.Duration
	SegmentLimit time.Duration
	OutputDir    string
	FFmpegPath   string
}

type Server struct {
	Listen string
	CORS   bool
}

// Config is everything read from config.ini plus resolved secrets.
type Config struct {
	// Path is the file the configuration was loaded from, even if it did not exist.
	Path string
	// Backend and Platform pin the default adapter, for example cloud_rpc.
	Backend  devices.BackendKind
	Platform devices.Platform

	ADB       ADB
	Simulator Simulator
	Physical  Physical
	Cloud     Cloud
	Farm      Farm
	Recording Recording
	Server    Server
}

// DefaultPath is $XDG_CONFIG_HOME/devicebridge/config.ini, or the same under
// ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, defaultFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", appName, defaultFileName)
	}
	return filepath.Join(home, ".config", appName, defaultFileName)
}

// Load reads path, or DefaultPath when path is empty. A missing file yields
// the defaults. Secrets are resolved through secrets.
func Load(path string, secrets *Secrets) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	if secrets == nil {
		secrets = NewSecrets()
	}

	file, err := ini.LoadSources(ini.LoadOptions{Loose: true}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg := &Config{Path: path}
	if err := cfg.read(file); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	if v := os.Getenv("WDA_PROJECT_PATH"); v != "" {
		cfg.Physical.WDAProjectPath = v
	}

	if cfg.Cloud.Token, err = secrets.Lookup(CloudTokenUser); err != nil {
		return nil, err
	}
	if cfg.Farm.AccessKey, err = secrets.Lookup(FarmAccessKeyUser); err != nil {
		return nil, err
	}

	utils.Verbose("Loaded configuration from %s", path)
	return cfg, nil
}

func (c *Config) read(file *ini.File) error {
	r := &reader{}

	root := file.Section(ini.DefaultSection)
	c.Backend = devices.BackendKind(root.Key("backend").String())
	c.Platform = devices.Platform(root.Key("platform").String())

	c.ADB.Path = file.Section("adb").Key("path").String()

	sim := file.Section("simulator")
	c.Simulator = Simulator{
		CompanionPath: sim.Key("companion_path").String(),
		IdbPath:       sim.Key("idb_path").String(),
		Host:          sim.Key("host").String(),
		Port:          r.integer(sim.Key("port"), 0),
		StartTimeout:  r.duration(sim.Key("start_timeout"), 0),
	}

	phys := file.Section("physical")
	c.Physical = Physical{
		WDAURL:            phys.Key("wda_url").String(),
		Timeout:           r.duration(phys.Key("timeout"), 0),
		AutoStartIproxy:   r.boolean(phys.Key("auto_start_iproxy"), true),
		AutoStartWDA:      r.boolean(phys.Key("auto_start_wda"), true),
		WDAProjectPath:    phys.Key("wda_project_path").String(),
		WDAStartupTimeout: r.duration(phys.Key("wda_startup_timeout"), 0),
	}

	cloud := file.Section("cloud")
	c.Cloud = Cloud{
		APIURL:     cloud.Key("api_url").String(),
		ADBURL:     cloud.Key("adb_url").String(),
		InstanceID: cloud.Key("instance_id").String(),
		Platform:   devices.Platform(cloud.Key("platform").In("", []string{"", string(devices.PlatformAndroid), string(devices.PlatformIOS)})),
	}

	farm := file.Section("farm")
	c.Farm = Farm{
		HubURL:          farm.Key("hub_url").String(),
		Username:        farm.Key("username").String(),
		DeviceName:      farm.Key("device_name").String(),
		PlatformVersion: farm.Key("platform_version").String(),
		AppURL:          farm.Key("app_url").String(),
		ProjectName:     farm.Key("project_name").String(),
		BuildName:       farm.Key("build_name").String(),
		SessionName:     farm.Key("session_name").String(),
	}

	rec := file.Section("recording")
	c.Recording = Recording{
		MaxDuration:  r.duration(rec.Key("max_duration"), recording.DefaultMaxDuration),
		SegmentLimit: r.duration(rec.Key("segment_limit"), recording.DefaultSegmentLimit),
		OutputDir:    rec.Key("output_dir").String(),
		FFmpegPath:   rec.Key("ffmpeg_path").String(),
	}

	srv := file.Section("server")
	c.Server = Server{
		Listen: srv.Key("listen").MustString(DefaultListen),
		CORS:   r.boolean(srv.Key("cors"), false),
	}

	switch c.Backend {
	case "", devices.BackendCloudRPC, devices.BackendDeviceFarm:
	default:
		r.fail("backend", fmt.Errorf("must be %s or %s", devices.BackendCloudRPC, devices.BackendDeviceFarm))
	}

	return r.err
}

// reader collects the first malformed value instead of failing per key.
type reader struct {
	err error
}

func (r *reader) fail(name string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: %w", name, err)
	}
}

// duration accepts Go durations ("90s", "2m") or a bare number of seconds.
func (r *reader) duration(key *ini.Key, def time.Duration) time.Duration {
	value := strings.TrimSpace(key.String())
	if value == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key.Name(), err)
		return def
	}
	return d
}

func (r *reader) integer(key *ini.Key, def int) int {
	if key.String() == "" {
		return def
	}
	v, err := key.Int()
	if err != nil {
		r.fail(key.Name(), err)
		return def
	}
	return v
}

func (r *reader) boolean(key *ini.Key, def bool) bool {
	if key.String() == "" {
		return def
	}
	v, err := key.Bool()
	if err != nil {
		r.fail(key.Name(), err)
		return def
	}
	return v
}

// AdapterConfig converts the file into factory settings.
func (c *Config) AdapterConfig() devices.AdapterConfig {
	platform := c.Platform
	if platform == "" && c.Backend == devices.BackendCloudRPC {
		platform = c.Cloud.Platform
	}

	return devices.AdapterConfig{
		Platform: platform,
		Backend:  c.Backend,
		Simulator: devices.SimulatorOptions{
			IdbPath: c.Simulator.IdbPath,
			Companion: companion.Options{
				CompanionPath: c.Simulator.CompanionPath,
				Host:          c.Simulator.Host,
				Port:          c.Simulator.Port,
				StartTimeout:  c.Simulator.StartTimeout,
			},
		},
		Physical: devices.PhysicalOptions{
			WDAURL:            c.Physical.WDAURL,
			Timeout:           c.Physical.Timeout,
			AutoStartIproxy:   c.Physical.AutoStartIproxy,
			AutoStartWDA:      c.Physical.AutoStartWDA,
			WDAProjectPath:    c.Physical.WDAProjectPath,
			WDAStartupTimeout: c.Physical.WDAStartupTimeout,
			IdbPath:           c.Simulator.IdbPath,
		},
		Cloud: devices.CloudConfig{
			APIURL:     c.Cloud.APIURL,
			ADBURL:     c.Cloud.ADBURL,
			Token:      c.Cloud.Token,
			InstanceID: c.Cloud.InstanceID,
		},
		Farm: devices.FarmOptions{
			HubURL:          c.Farm.HubURL,
			Username:        c.Farm.Username,
			AccessKey:       c.Farm.AccessKey,
			DeviceName:      c.Farm.DeviceName,
			PlatformVersion: c.Farm.PlatformVersion,
			AppURL:          c.Farm.AppURL,
			ProjectName:     c.Farm.ProjectName,
			BuildName:       c.Farm.BuildName,
			SessionName:     c.Farm.SessionName,
		},
	}
}

// RecordingOptions builds the recording manager settings. runner executes ffmpeg.
func (c *Config) RecordingOptions(runner utils.CommandRunner) recording.Options {
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	return recording.Options{
		OutputDir:    c.Recording.OutputDir,
		MaxDuration:  c.Recording.MaxDuration,
		SegmentLimit: c.Recording.SegmentLimit,
		Concatenator: recording.DefaultConcatenator(c.Recording.FFmpegPath, runner),
	}
}
