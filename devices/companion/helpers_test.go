package companion

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mobile-next/devicebridge/utils"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	outputs map[string]string
	fails   map[string]bool
	process *fakeProcess
	// onRun lets a test produce side effects, like writing a screenshot file
	onRun func(args []string)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}, fails: map[string]bool{}}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	k := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, k)
	fail := f.fails[k]
	out := f.outputs[k]
	onRun := f.onRun
	f.mu.Unlock()

	if onRun != nil {
		onRun(args)
	}
	if fail {
		return nil, errors.New(k + " failed")
	}
	return []byte(out), nil
}

func (f *fakeRunner) Start(ctx context.Context, name string, args ...string) (utils.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, strings.Join(append([]string{name}, args...), " "))
	if f.process == nil {
		f.process = newFakeProcess("")
	}
	return f.process, nil
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeProcess struct {
	mu      sync.Mutex
	output  string
	done    chan struct{}
	once    sync.Once
	stopped bool
}

func newFakeProcess(output string) *fakeProcess {
	return &fakeProcess{output: output, done: make(chan struct{})}
}

func (p *fakeProcess) Pid() int              { return 7 }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) Err() error            { return nil }

func (p *fakeProcess) Output() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return []byte(p.output)
}

func (p *fakeProcess) exit() { p.once.Do(func() { close(p.done) }) }

func (p *fakeProcess) Stop(time.Duration) {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.exit()
}

func (p *fakeProcess) Interrupt(grace time.Duration) { p.Stop(grace) }

func (p *fakeProcess) wasStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func stubLookPath(t interface{ Cleanup(func()) }, found bool) {
	original := lookPath
	lookPath = func(file string) (string, error) {
		if found {
			return "/opt/homebrew/bin/" + file, nil
		}
		return "", os.ErrNotExist
	}
	t.Cleanup(func() { lookPath = original })
}
