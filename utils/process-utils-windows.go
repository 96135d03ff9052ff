//go:build windows

package utils

import (
	"os"
	"os/exec"
	"time"
)

// ConfigureDetachedProcAttr is a no-op on Windows since process groups
// work differently. Context cancellation handles process termination.
func ConfigureDetachedProcAttr(cmd *exec.Cmd) {
	// No-op on Windows
}

// StopProcessGroup kills p on Windows, where there is no graceful group signal.
func StopProcessGroup(p *os.Process, done <-chan struct{}, grace time.Duration) {
	if p == nil {
		return
	}
	_ = p.Kill()
	select {
	case <-done:
	case <-time.After(grace):
	}
}

func InterruptProcess(p *os.Process) error {
	return p.Kill()
}
