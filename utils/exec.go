package utils

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// CommandRunner runs external tools. Everything that shells out goes through
// one of these so tests can substitute a fake.
type CommandRunner interface {
	// Run executes the command to completion and returns its combined output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// Start launches a long-running command in its own process group.
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

// Process is a handle to a command started by a CommandRunner.
type Process interface {
	Pid() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err returns the exit error after Done is closed.
	Err() error
	// Output returns everything the process wrote so far.
	Output() []byte
	// Stop sends SIGTERM to the process group and kills it after grace.
	Stop(grace time.Duration)
	// Interrupt sends SIGINT and kills the process after grace.
	Interrupt(grace time.Duration)
}

// ExecRunner runs commands on the host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	Verbose("Running: %s %s", name, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s %s failed: %w\n%s", name, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

func (ExecRunner) Start(ctx context.Context, name string, args ...string) (Process, error) {
	Verbose("Starting: %s %s", name, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, name, args...)
	ConfigureDetachedProcAttr(cmd)

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	cmd.Stdout = &p.out
	cmd.Stderr = &p.out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	out  syncBuffer

	mu  sync.Mutex
	err error
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *execProcess) Output() []byte {
	return p.out.Bytes()
}

func (p *execProcess) Stop(grace time.Duration) {
	select {
	case <-p.done:
		return
	default:
	}
	StopProcessGroup(p.cmd.Process, p.done, grace)
}

func (p *execProcess) Interrupt(grace time.Duration) {
	select {
	case <-p.done:
		return
	default:
	}

	if err := InterruptProcess(p.cmd.Process); err != nil {
		Verbose("failed to interrupt process %d: %v", p.Pid(), err)
	}

	select {
	case <-p.done:
	case <-time.After(grace):
		p.Stop(grace)
	}
}

// syncBuffer is a bytes.Buffer safe for the writer goroutines of exec.Cmd.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
