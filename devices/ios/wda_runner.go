package ios

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mobile-next/devicebridge/utils"
)

const (
	// WDABundleID is the runner bundle installed by xcodebuild.
	WDABundleID = "com.facebook.WebDriverAgentRunner.xctrunner"
	// DefaultWDAPort is where WDA listens, on the device and locally through iproxy.
	DefaultWDAPort = 8100

	DefaultBuildTimeout = 120 * time.Second
	DefaultWaitTimeout  = 60 * time.Second
	DefaultPollInterval = 2 * time.Second

	serverStartedMarker = "ServerURLHere"
	buildFailedMarker   = "BUILD FAILED"
	outputPollInterval  = 500 * time.Millisecond
	serverSettleDelay   = 3 * time.Second
)

// FindWDAProject returns the first WebDriverAgent.xcodeproj that exists.
// envPath, usually WDA_PROJECT_PATH, is tried first.
func FindWDAProject(envPath string) string {
	var candidates []string
	if envPath != "" {
		candidates = append(candidates, envPath)
	}

	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates,
			filepath.Join(cwd, "WebDriverAgent", "WebDriverAgent.xcodeproj"),
			filepath.Join(cwd, "WebDriverAgent.xcodeproj"),
		)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, "WebDriverAgent", "WebDriverAgent.xcodeproj"),
			filepath.Join(home, ".appium", "node_modules", "appium-xcuitest-driver", "node_modules",
				"appium-webdriveragent", "WebDriverAgent.xcodeproj"),
			filepath.Join(home, "Developer", "WebDriverAgent", "WebDriverAgent.xcodeproj"),
			filepath.Join(home, "Projects", "WebDriverAgent", "WebDriverAgent.xcodeproj"),
		)
	}
	candidates = append(candidates,
		"/usr/local/lib/node_modules/appium/node_modules/appium-webdriveragent/WebDriverAgent.xcodeproj")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			utils.Verbose("Found WDA project at: %s", path)
			return path
		}
	}
	return ""
}

// WDASetupInstructions lists the manual steps that cannot be automated.
func WDASetupInstructions(udid string) string {
	short := udid
	if len(short) > 16 {
		short = short[:16] + "..."
	}
	return fmt.Sprintf(`WebDriverAgent Setup (device: %s)

1. Clone WebDriverAgent:
   git clone https://github.com/appium/WebDriverAgent.git

2. Configure code signing in Xcode:
   - Open WebDriverAgent.xcodeproj
   - Select WebDriverAgentLib target, then Signing & Capabilities
   - Set your Team and Bundle Identifier
   - Repeat for WebDriverAgentRunner target

Build and run are handled automatically after signing is configured.`, short)
}

// WDARunner builds WebDriverAgent and runs it on a device with xcodebuild.
type WDARunner struct {
	runner      utils.CommandRunner
	udid        string
	projectPath string
	timeout     time.Duration
}

func NewWDARunner(runner utils.CommandRunner, udid, projectPath string, timeout time.Duration) *WDARunner {
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	if timeout <= 0 {
		timeout = DefaultBuildTimeout
	}
	return &WDARunner{runner: runner, udid: udid, projectPath: projectPath, timeout: timeout}
}

// Start launches `xcodebuild test` and returns once the server start marker
// shows up in its output, or the build timeout passes with xcodebuild still
// running. A build failure or early exit returns an error.
func (r *WDARunner) Start(ctx context.Context) (utils.Process, error) {
	if _, err := lookPath("xcodebuild"); err != nil {
		return nil, fmt.Errorf("xcodebuild not found. Please install Xcode")
	}

	project := r.projectPath
	if project == "" {
		project = FindWDAProject(os.Getenv("WDA_PROJECT_PATH"))
	}
	if project == "" {
		return nil, fmt.Errorf("WebDriverAgent.xcodeproj not found.\nPlease clone it first:\n" +
			"  git clone https://github.com/appium/WebDriverAgent.git\nOr set WDA_PROJECT_PATH environment variable")
	}

	utils.Info("Building and running WDA from: %s (this may take a minute on first run)", project)

	process, err := r.runner.Start(context.Background(), "xcodebuild",
		"test",
		"-project", project,
		"-scheme", "WebDriverAgentRunner",
		"-destination", "id="+r.udid,
		"-allowProvisioningUpdates",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start xcodebuild: %w", err)
	}

	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(outputPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-process.Done():
			return nil, fmt.Errorf("WDA build failed:\n%s", tail(string(process.Output()), 1000))
		case <-ctx.Done():
			process.Stop(5 * time.Second)
			return nil, ctx.Err()
		case <-deadline.C:
			utils.Info("WDA process running (build may still be in progress)")
			return process, nil
		case <-ticker.C:
			output := string(process.Output())
			if strings.Contains(output, buildFailedMarker) {
				process.Stop(5 * time.Second)
				return nil, fmt.Errorf("WDA build failed:\n%s", tail(output, 1000))
			}
			if strings.Contains(output, serverStartedMarker) {
				utils.Info("WDA server starting on device...")
				select {
				case <-process.Done():
					return nil, fmt.Errorf("WDA exited right after start:\n%s", tail(string(process.Output()), 1000))
				case <-time.After(serverSettleDelay):
				}
				return process, nil
			}
		}
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// CheckWDARunning reports whether GET /status answers 200 with a WDA body.
func CheckWDARunning(ctx context.Context, baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/status", nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		utils.Verbose("WDA not responding at %s: %v", baseURL, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	_, hasValue := body["value"]
	_, hasSession := body["sessionId"]
	return hasValue || hasSession
}

// WaitForWDA polls CheckWDARunning until it succeeds or timeout passes.
func WaitForWDA(ctx context.Context, baseURL string, timeout, interval time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	utils.Info("Waiting for WDA at %s (unlock your device, password may be required) (timeout: %s)", baseURL, timeout)
	deadline := time.Now().Add(timeout)
	for {
		if CheckWDARunning(ctx, baseURL, 5*time.Second) {
			utils.Info("WDA is ready at %s", baseURL)
			return true
		}
		if time.Now().Add(interval).After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}

	utils.Error("Timeout waiting for WDA at %s", baseURL)
	return false
}

// PortFromURL extracts the port of a WDA URL, defaulting to 8100.
func PortFromURL(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return DefaultWDAPort
	}
	if port, err := strconv.Atoi(u.Port()); err == nil {
		return port
	}
	return DefaultWDAPort
}
