package commands

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mobile-next/devicebridge/utils"
)

// doctorTools are the external binaries the backends shell out to.
var doctorTools = []string{
	"adb",
	"ffmpeg",
	"idb",
	"idb_companion",
	"iproxy",
	"xcodebuild",
	"xcrun",
	"idevice_id",
	"ideviceinfo",
}

var lookPath = exec.LookPath

type ToolStatus struct {
	Name  string `json:"name"`
	Found bool   `json:"found"`
	Path  string `json:"path,omitempty"`
}

type DoctorInfo struct {
	Version     string       `json:"version"`
	OS          string       `json:"os"`
	OSVersion   string       `json:"os_version"`
	AndroidHome string       `json:"android_home"`
	ADBVersion  string       `json:"adb_version,omitempty"`
	XcodePath   string       `json:"xcode_path,omitempty"`
	Tools       []ToolStatus `json:"tools"`
}

func getAndroidSdkPath() string {
	for _, env := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		if sdkPath := os.Getenv(env); sdkPath != "" {
			if _, err := os.Stat(sdkPath); err == nil {
				return sdkPath
			}
		}
	}

	// default Android Studio location on macOS
	if homeDir, err := os.UserHomeDir(); err == nil {
		defaultPath := filepath.Join(homeDir, "Library", "Android", "sdk")
		if _, err := os.Stat(defaultPath); err == nil {
			return defaultPath
		}
	}

	return ""
}

// findTool prefers the SDK copy of adb over one on PATH.
func findTool(name string) ToolStatus {
	if name == "adb" {
		if sdk := getAndroidSdkPath(); sdk != "" {
			candidate := filepath.Join(sdk, "platform-tools", "adb")
			if runtime.GOOS == "windows" {
				candidate += ".exe"
			}
			if _, err := os.Stat(candidate); err == nil {
				return ToolStatus{Name: name, Found: true, Path: candidate}
			}
		}
	}

	path, err := lookPath(name)
	if err != nil {
		return ToolStatus{Name: name}
	}
	return ToolStatus{Name: name, Found: true, Path: path}
}

func getAdbVersion(ctx context.Context, runner utils.CommandRunner, adbPath string) string {
	output, err := runner.Run(ctx, adbPath, "version")
	if err != nil {
		return ""
	}

	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, "Android Debug Bridge version") {
			return strings.TrimSpace(line)
		}
	}
	return strings.TrimSpace(string(output))
}

func getXcodePath(ctx context.Context, runner utils.CommandRunner) string {
	output, err := runner.Run(ctx, "xcode-select", "-p")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

func getOSVersion(ctx context.Context, runner utils.CommandRunner) string {
	switch runtime.GOOS {
	case "darwin":
		output, err := runner.Run(ctx, "sw_vers", "-productVersion")
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(output))
	case "linux":
		data, err := os.ReadFile("/etc/os-release")
		if err != nil {
			return ""
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "PRETTY_NAME=") {
				return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
			}
		}
	}
	return ""
}

// DoctorCommand reports which tools are installed and where
func DoctorCommand(ctx context.Context, version string, runner utils.CommandRunner) *CommandResponse {
	if runner == nil {
		runner = utils.ExecRunner{}
	}

	info := DoctorInfo{
		Version:     version,
		OS:          runtime.GOOS,
		OSVersion:   getOSVersion(ctx, runner),
		AndroidHome: os.Getenv("ANDROID_HOME"),
	}

	for _, name := range doctorTools {
		status := findTool(name)
		info.Tools = append(info.Tools, status)
		if name == "adb" && status.Found {
			info.ADBVersion = getAdbVersion(ctx, runner, status.Path)
		}
	}

	if runtime.GOOS == "darwin" {
		info.XcodePath = getXcodePath(ctx, runner)
	}

	return NewSuccessResponse(info)
}
