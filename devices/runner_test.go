package devices

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mobile-next/devicebridge/utils"
)

// fakeRunner answers commands from a table keyed by "name arg1 arg2...".
// Unknown commands succeed with empty output unless strict is set.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	outputs map[string]string
	errors  map[string]error
	strict  bool
	started []*fakeProcess
	// onRun sees every Run before the table lookup
	onRun func(name string, args []string)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}, errors: map[string]error{}}
}

func (f *fakeRunner) key(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	hook := f.onRun
	f.mu.Unlock()
	if hook != nil {
		hook(name, args)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	k := f.key(name, args)
	f.calls = append(f.calls, k)
	if err, ok := f.errors[k]; ok {
		return nil, err
	}
	if out, ok := f.outputs[k]; ok {
		return []byte(out), nil
	}
	if f.strict {
		return nil, errors.New("unexpected command: " + k)
	}
	return nil, nil
}

func (f *fakeRunner) Start(ctx context.Context, name string, args ...string) (utils.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := f.key(name, args)
	f.calls = append(f.calls, k)
	if err, ok := f.errors[k]; ok {
		return nil, err
	}
	p := newFakeProcess()
	f.started = append(f.started, p)
	return p, nil
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// reset forgets the calls made so far.
func (f *fakeRunner) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeRunner) called(k string) bool {
	for _, c := range f.Calls() {
		if c == k {
			return true
		}
	}
	return false
}

type fakeProcess struct {
	once    sync.Once
	done    chan struct{}
	stopped bool
	mu      sync.Mutex
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{done: make(chan struct{})}
}

func (p *fakeProcess) Pid() int { return 4242 }

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Err() error { return nil }

func (p *fakeProcess) Output() []byte { return nil }

func (p *fakeProcess) exit() {
	p.once.Do(func() { close(p.done) })
}

func (p *fakeProcess) Stop(grace time.Duration) {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.exit()
}

func (p *fakeProcess) Interrupt(grace time.Duration) {
	p.Stop(grace)
}

func (p *fakeProcess) wasStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
