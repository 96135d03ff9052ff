// Package companion drives iOS simulators through idb: an idb_companion
// process per simulator plus the idb command line client.
package companion

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mobile-next/devicebridge/utils"
)

const (
	DefaultPort         = 10882
	DefaultStartTimeout = 5 * time.Second
	portSearchAttempts  = 100
	readyPollInterval   = 250 * time.Millisecond
	stopGrace           = 5 * time.Second
)

// InstallInstructions is shown when idb_companion or idb is missing.
const InstallInstructions = "Please install fb-idb to use iOS simulators.\n" +
	"Installation guide: https://fbidb.io/docs/installation/\n" +
	"On macOS with Homebrew: brew install idb-companion"

// lookPath is replaced in tests.
var lookPath = exec.LookPath

type Options struct {
	// CompanionPath is the idb_companion binary. Defaults to PATH lookup.
	CompanionPath string
	// Host selects an externally managed companion. When empty a companion
	// is started on localhost and owned by this process.
	Host         string
	Port         int
	StartTimeout time.Duration
}

// Companion owns, or points at, the idb_companion serving one simulator.
type Companion struct {
	runner  utils.CommandRunner
	udid    string
	path    string
	host    string
	port    int
	managed bool
	timeout time.Duration

	mu      sync.Mutex
	process utils.Process
}

// New resolves the companion address. A managed companion gets the first
// free port from 10882 unless opts.Port is set.
func New(runner utils.CommandRunner, udid string, opts Options) (*Companion, error) {
	if runner == nil {
		runner = utils.ExecRunner{}
	}

	c := &Companion{
		runner:  runner,
		udid:    udid,
		path:    opts.CompanionPath,
		host:    opts.Host,
		port:    opts.Port,
		managed: opts.Host == "",
		timeout: opts.StartTimeout,
	}
	if c.path == "" {
		c.path = "idb_companion"
	}
	if c.timeout <= 0 {
		c.timeout = DefaultStartTimeout
	}

	if c.managed {
		c.host = "localhost"
		if c.port == 0 {
			port, err := utils.FindAvailablePort("127.0.0.1", DefaultPort, portSearchAttempts)
			if err != nil {
				return nil, err
			}
			c.port = port
		}
		utils.Verbose("Will manage companion for %s on port %d", udid, c.port)
	} else if c.port == 0 {
		c.port = DefaultPort
	}

	return c, nil
}

func (c *Companion) Host() string { return c.host }

func (c *Companion) Port() int { return c.port }

// Managed reports whether Stop terminates the companion process.
func (c *Companion) Managed() bool { return c.managed }

func (c *Companion) Address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Start launches idb_companion for a managed companion and waits, at most
// the start timeout, for its gRPC port. An external companion is only logged.
func (c *Companion) Start(ctx context.Context) error {
	if !c.managed {
		utils.Info("Using external idb_companion at %s", c.Address())
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.process != nil {
		utils.Warn("idb_companion already running for %s", c.udid)
		return nil
	}

	if _, err := lookPath(c.path); err != nil {
		return fmt.Errorf("%s not found: %w", c.path, err)
	}

	process, err := c.runner.Start(context.Background(), c.path, "--udid", c.udid, "--grpc-port", strconv.Itoa(c.port))
	if err != nil {
		return fmt.Errorf("failed to start idb_companion: %w", err)
	}

	if err := c.waitReady(ctx, process); err != nil {
		process.Stop(stopGrace)
		return err
	}

	c.process = process
	utils.Info("idb_companion started for %s on port %d (PID: %d)", c.udid, c.port, process.Pid())
	return nil
}

func (c *Companion) waitReady(ctx context.Context, process utils.Process) error {
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-process.Done():
			return fmt.Errorf("idb_companion failed to start: %s", strings.TrimSpace(string(process.Output())))
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			// the port probe is advisory; a live process after the window counts as started
			utils.Verbose("idb_companion port %d not confirmed after %s, continuing", c.port, c.timeout)
			return nil
		case <-ticker.C:
			if utils.IsPortListening("127.0.0.1", c.port, readyPollInterval) {
				return nil
			}
		}
	}
}

// Stop terminates a managed companion. Calling it again, or on an external
// companion, does nothing.
func (c *Companion) Stop() {
	if !c.managed {
		utils.Verbose("Not managing companion for %s, skipping companion cleanup", c.udid)
		return
	}

	c.mu.Lock()
	process := c.process
	c.process = nil
	c.mu.Unlock()

	if process == nil {
		return
	}
	utils.Info("Stopping idb_companion for %s", c.udid)
	process.Stop(stopGrace)
}

func (c *Companion) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.process == nil {
		return false
	}
	select {
	case <-c.process.Done():
		return false
	default:
		return true
	}
}
