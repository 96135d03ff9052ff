package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mobile-next/devicebridge/utils"
)

type fakeProcess struct {
	once        sync.Once
	done        chan struct{}
	mu          sync.Mutex
	interrupted bool
	onInterrupt func()
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{done: make(chan struct{})}
}

func (p *fakeProcess) Pid() int              { return 42 }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) Err() error            { return nil }
func (p *fakeProcess) Output() []byte        { return nil }

func (p *fakeProcess) exit() { p.once.Do(func() { close(p.done) }) }

func (p *fakeProcess) Stop(time.Duration) { p.exit() }

func (p *fakeProcess) Interrupt(time.Duration) {
	p.mu.Lock()
	p.interrupted = true
	hook := p.onInterrupt
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	p.exit()
}

func (p *fakeProcess) wasInterrupted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupted
}

// fakeAndroid keeps "device files" in memory. Each screenrecord writes
// "segment-N" to its path.
type fakeAndroid struct {
	id string

	mu        sync.Mutex
	files     map[string]string
	procs     []*fakeProcess
	removed   []string
	stopCalls int
	pullErrs  map[string]error
	// startFailsFrom makes the Nth and later starts fail (0 disables)
	startFailsFrom int
}

func newFakeAndroid(id string) *fakeAndroid {
	return &fakeAndroid{id: id, files: map[string]string{}, pullErrs: map[string]error{}}
}

func (d *fakeAndroid) ID() string { return d.id }

func (d *fakeAndroid) StartScreenRecord(ctx context.Context, devicePath string, limit time.Duration) (utils.Process, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.procs)
	if d.startFailsFrom > 0 && n+1 >= d.startFailsFrom {
		return nil, errors.New("screenrecord: device offline")
	}
	p := newFakeProcess()
	d.procs = append(d.procs, p)
	d.files[devicePath] = fmt.Sprintf("segment-%d", n)
	return p, nil
}

func (d *fakeAndroid) StopScreenRecord(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopCalls++
	for _, p := range d.procs {
		p.exit()
	}
	return nil
}

func (d *fakeAndroid) PullFile(ctx context.Context, remote, local string) error {
	d.mu.Lock()
	data, ok := d.files[remote]
	err := d.pullErrs[remote]
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("remote object '%s' does not exist", remote)
	}
	return os.WriteFile(local, []byte(data), 0o644)
}

func (d *fakeAndroid) RemoveFile(ctx context.Context, remote string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, remote)
	d.removed = append(d.removed, remote)
	return nil
}

func (d *fakeAndroid) process(i int) *fakeProcess {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.procs) {
		return nil
	}
	return d.procs[i]
}

func (d *fakeAndroid) started() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.procs)
}

// fakeSimulator writes its capture file when interrupted, like idb does.
type fakeSimulator struct {
	id        string
	writeFile bool
	startErr  error

	mu   sync.Mutex
	proc *fakeProcess
}

func (s *fakeSimulator) ID() string { return s.id }

func (s *fakeSimulator) StartVideoCapture(ctx context.Context, path string) (utils.Process, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	p := newFakeProcess()
	if s.writeFile {
		p.onInterrupt = func() { _ = os.WriteFile(path, []byte("mp4"), 0o644) }
	}
	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()
	return p, nil
}

func (s *fakeSimulator) process() *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// joinConcatenator writes the segments' contents back to back.
type joinConcatenator struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (c *joinConcatenator) Concat(ctx context.Context, segments []string, output string) error {
	c.mu.Lock()
	c.calls = append(c.calls, append([]string(nil), segments...))
	c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	var b strings.Builder
	for _, s := range segments {
		data, err := os.ReadFile(s)
		if err != nil {
			return err
		}
		b.Write(data)
	}
	return os.WriteFile(output, []byte(b.String()), 0o644)
}

type unsupportedDevice struct{}

func (unsupportedDevice) ID() string { return "farm-1" }

// fakeRunner answers every command with success and records the call.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	onRun func(name string, args []string) error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	hook := f.onRun
	f.mu.Unlock()
	if hook != nil {
		return nil, hook(name, args)
	}
	return nil, nil
}

func (f *fakeRunner) Start(ctx context.Context, name string, args ...string) (utils.Process, error) {
	return newFakeProcess(), nil
}
