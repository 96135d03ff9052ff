package ios

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mobile-next/devicebridge/utils"
)

// lookPath is replaced in tests.
var lookPath = exec.LookPath

const iproxyStartDelay = 500 * time.Millisecond

// IproxyInstructions is shown when iproxy is not installed.
const IproxyInstructions = "iproxy not found. Install libimobiledevice:\n  brew install libimobiledevice"

// PortForwarder relays a local TCP port to a port on a USB device through iproxy.
type PortForwarder struct {
	runner     utils.CommandRunner
	udid       string
	localPort  int
	devicePort int

	mu      sync.Mutex
	process utils.Process
}

func NewPortForwarder(runner utils.CommandRunner, udid string, localPort, devicePort int) *PortForwarder {
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	return &PortForwarder{runner: runner, udid: udid, localPort: localPort, devicePort: devicePort}
}

// AlreadyRunning reports whether some iproxy is already serving the local port.
func (pf *PortForwarder) AlreadyRunning(ctx context.Context) bool {
	_, err := pf.runner.Run(ctx, "pgrep", "-f", fmt.Sprintf("iproxy.*%d", pf.localPort))
	return err == nil
}

// Start launches iproxy unless one is already forwarding the port. The
// returned bool reports whether this forwarder owns a process that Stop
// must terminate.
func (pf *PortForwarder) Start(ctx context.Context) (bool, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if pf.process != nil {
		return true, nil
	}

	if _, err := lookPath("iproxy"); err != nil {
		return false, fmt.Errorf("%s", IproxyInstructions)
	}

	if pf.AlreadyRunning(ctx) {
		utils.Info("iproxy already running on port %d", pf.localPort)
		return false, nil
	}

	args := []string{strconv.Itoa(pf.localPort), strconv.Itoa(pf.devicePort)}
	if pf.udid != "" {
		args = append(args, "-u", pf.udid)
	}

	process, err := pf.runner.Start(context.Background(), "iproxy", args...)
	if err != nil {
		return false, fmt.Errorf("failed to start iproxy: %w", err)
	}

	select {
	case <-process.Done():
		return false, fmt.Errorf("iproxy exited immediately: %s", strings.TrimSpace(string(process.Output())))
	case <-time.After(iproxyStartDelay):
	case <-ctx.Done():
		process.Stop(time.Second)
		return false, ctx.Err()
	}

	pf.process = process
	utils.Info("iproxy forwarding %d -> %d (PID: %d)", pf.localPort, pf.devicePort, process.Pid())
	return true, nil
}

// Stop terminates the iproxy process started by this forwarder, if any.
func (pf *PortForwarder) Stop(grace time.Duration) {
	pf.mu.Lock()
	process := pf.process
	pf.process = nil
	pf.mu.Unlock()

	if process == nil {
		return
	}
	utils.Verbose("Stopping iproxy with PID: %d", process.Pid())
	process.Stop(grace)
}

func (pf *PortForwarder) IsRunning() bool {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.process == nil {
		return false
	}
	select {
	case <-pf.process.Done():
		return false
	default:
		return true
	}
}

func (pf *PortForwarder) Ports() (localPort, devicePort int) {
	return pf.localPort, pf.devicePort
}
