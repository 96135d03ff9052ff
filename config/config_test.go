package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mobile-next/devicebridge/devices"
	"github.com/mobile-next/devicebridge/recording"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func testSecrets(env map[string]string) *Secrets {
	keyring.MockInit()
	return &Secrets{service: KeyringService, getenv: func(k string) string { return env[k] }}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const fullConfig = `
backend = cloud_rpc

[adb]
path = /opt/android/platform-tools/adb

[simulator]
companion_path = /usr/local/bin/idb_companion
idb_path = /usr/local/bin/idb
host = 10.0.0.5
port = 10882
start_timeout = 20s

[physical]
wda_url = http://localhost:8100
timeout = 15
auto_start_iproxy = false
auto_start_wda = true
wda_project_path = /src/WebDriverAgent
wda_startup_timeout = 2m

[cloud]
api_url = wss://cloud.example.com/rpc
adb_url = wss://cloud.example.com/adb
instance_id = inst-42
platform = ios

[farm]
hub_url = https://hub.example.com/wd/hub
username = alice
device_name = iPhone 15
platform_version = 17
app_url = bs://abc
project_name = demo
build_name = b1
session_name = s1

[recording]
max_duration = 600
segment_limit = 1m30s
output_dir = /tmp/recordings
ffmpeg_path = /usr/bin/ffmpeg

[server]
listen = 0.0.0.0:9000
cors = true
`

func TestLoad_AllSections(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig), testSecrets(nil))
	require.NoError(t, err)

	assert.Equal(t, devices.BackendCloudRPC, cfg.Backend)
	assert.Equal(t, "/opt/android/platform-tools/adb", cfg.ADB.Path)
	assert.Equal(t, Simulator{
		CompanionPath: "/usr/local/bin/idb_companion",
		IdbPath:       "/usr/local/bin/idb",
		Host:          "10.0.0.5",
		Port:          10882,
		StartTimeout:  20 * time.Second,
	}, cfg.Simulator)
	assert.Equal(t, Physical{
		WDAURL:            "http://localhost:8100",
		Timeout:           15 * time.Second,
		AutoStartIproxy:   false,
		AutoStartWDA:      true,
		WDAProjectPath:    "/src/WebDriverAgent",
		WDAStartupTimeout: 2 * time.Minute,
	}, cfg.Physical)
	assert.Equal(t, "inst-42", cfg.Cloud.InstanceID)
	assert.Equal(t, devices.PlatformIOS, cfg.Cloud.Platform)
	assert.Equal(t, "iPhone 15", cfg.Farm.DeviceName)
	assert.Equal(t, 600*time.Second, cfg.Recording.MaxDuration)
	assert.Equal(t, 90*time.Second, cfg.Recording.SegmentLimit)
	assert.Equal(t, "/usr/bin/ffmpeg", cfg.Recording.FFmpegPath)
	assert.Equal(t, Server{Listen: "0.0.0.0:9000", CORS: true}, cfg.Server)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.ini")
	cfg, err := Load(path, testSecrets(nil))
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.True(t, cfg.Physical.AutoStartIproxy)
	assert.True(t, cfg.Physical.AutoStartWDA)
	assert.Equal(t, recording.DefaultMaxDuration, cfg.Recording.MaxDuration)
	assert.Equal(t, recording.DefaultSegmentLimit, cfg.Recording.SegmentLimit)
	assert.Empty(t, cfg.Backend)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad port", "[simulator]\nport = abc\n", "port"},
		{"bad duration", "[physical]\ntimeout = soon\n", "timeout"},
		{"bad bool", "[server]\ncors = maybe\n", "cors"},
		{"bad backend", "backend = carrier_pigeon\n", "backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), testSecrets(nil))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("WDA_PROJECT_PATH", "/env/WebDriverAgent")
	secrets := testSecrets(map[string]string{
		"DEVICEBRIDGE_CLOUD_TOKEN":     "env-token",
		"DEVICEBRIDGE_FARM_ACCESS_KEY": "env-key",
	})
	require.NoError(t, keyring.Set(KeyringService, CloudTokenUser, "keyring-token"))

	cfg, err := Load(writeConfig(t, fullConfig), secrets)
	require.NoError(t, err)
	assert.Equal(t, "/env/WebDriverAgent", cfg.Physical.WDAProjectPath)
	assert.Equal(t, "env-token", cfg.Cloud.Token, "environment wins over keyring")
	assert.Equal(t, "env-key", cfg.Farm.AccessKey)
}

func TestLoad_KeyringSecrets(t *testing.T) {
	secrets := testSecrets(nil)
	require.NoError(t, secrets.Set(FarmAccessKeyUser, "stored-key"))

	cfg, err := Load(writeConfig(t, ""), secrets)
	require.NoError(t, err)
	assert.Equal(t, "stored-key", cfg.Farm.AccessKey)
	assert.Empty(t, cfg.Cloud.Token, "a missing keyring entry is not an error")
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "devicebridge", "config.ini"), DefaultPath())

	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "devicebridge", "config.ini"), DefaultPath())
}

func TestConfig_AdapterConfig(t *testing.T) {
	secrets := testSecrets(map[string]string{"DEVICEBRIDGE_CLOUD_TOKEN": "tok"})
	cfg, err := Load(writeConfig(t, fullConfig), secrets)
	require.NoError(t, err)

	ac := cfg.AdapterConfig()
	assert.Equal(t, devices.BackendCloudRPC, ac.Backend)
	assert.Equal(t, devices.PlatformIOS, ac.Platform, "cloud platform applies to the cloud backend")
	assert.Equal(t, "tok", ac.Cloud.Token)
	assert.Equal(t, "wss://cloud.example.com/rpc", ac.Cloud.APIURL)
	assert.Equal(t, "inst-42", ac.Cloud.InstanceID)
	assert.Equal(t, "10.0.0.5", ac.Simulator.Companion.Host)
	assert.Equal(t, 10882, ac.Simulator.Companion.Port)
	assert.Equal(t, "/usr/local/bin/idb", ac.Simulator.IdbPath)
	assert.Equal(t, "http://localhost:8100", ac.Physical.WDAURL)
	assert.False(t, ac.Physical.AutoStartIproxy)
	assert.Equal(t, "alice", ac.Farm.Username)
}

func TestConfig_RecordingOptions(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig), testSecrets(nil))
	require.NoError(t, err)

	opts := cfg.RecordingOptions(nil)
	assert.Equal(t, "/tmp/recordings", opts.OutputDir)
	assert.Equal(t, 600*time.Second, opts.MaxDuration)
	assert.Equal(t, 90*time.Second, opts.SegmentLimit)
	assert.NotNil(t, opts.Concatenator)
}

func TestSecrets(t *testing.T) {
	secrets := testSecrets(map[string]string{"DEVICEBRIDGE_FARM_ACCESS_KEY": "from-env"})

	assert.Equal(t, "", secrets.Source(CloudTokenUser))
	require.NoError(t, secrets.Set(CloudTokenUser, "abc"))
	assert.Equal(t, "keyring", secrets.Source(CloudTokenUser))
	assert.Equal(t, "env", secrets.Source(FarmAccessKeyUser))

	v, err := secrets.Lookup(CloudTokenUser)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, secrets.Delete(CloudTokenUser))
	require.NoError(t, secrets.Delete(CloudTokenUser), "deleting twice is fine")
	v, err = secrets.Lookup(CloudTokenUser)
	require.NoError(t, err)
	assert.Empty(t, v)

	assert.Error(t, secrets.Set(CloudTokenUser, ""))
	_, err = secrets.Lookup("password")
	assert.Error(t, err)
	assert.Error(t, secrets.Set("password", "x"))
}
