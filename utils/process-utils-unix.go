//go:build unix

package utils

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ConfigureDetachedProcAttr configures the command to run in a separate process group
// on Unix systems, allowing for proper cleanup when the parent process is terminated.
func ConfigureDetachedProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

// StopProcessGroup sends SIGTERM to the process group led by p, waits up to
// grace for done to close, then sends SIGKILL.
func StopProcessGroup(p *os.Process, done <-chan struct{}, grace time.Duration) {
	if p == nil {
		return
	}

	pgid := -p.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		// not a group leader, fall back to the single process
		_ = p.Signal(syscall.SIGTERM)
	}

	select {
	case <-done:
		return
	case <-time.After(grace):
	}

	Verbose("process %d did not exit within %s, killing", p.Pid, grace)
	if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil {
		_ = p.Kill()
	}
	<-done
}

// InterruptProcess asks p to finish gracefully, which lets recorders flush their output.
func InterruptProcess(p *os.Process) error {
	return p.Signal(syscall.SIGINT)
}
