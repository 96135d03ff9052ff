// Package recording runs at most one screen recording per device. Android
// captures are cut into segments by screenrecord's time limit and stitched
// together on stop; simulator captures are one continuous file.
package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mobile-next/devicebridge/utils"
	"github.com/sirupsen/logrus"
)

var (
	ErrAlreadyRecording  = errors.New("already recording")
	ErrNoActiveRecording = errors.New("no active recording")
	ErrUnsupported       = errors.New("recording is not supported by this backend")
)

const (
	DefaultMaxDuration  = 900 * time.Second
	DefaultSegmentLimit = 180 * time.Second
	DefaultReadyDelay   = time.Second
	DefaultOverrun      = 5 * time.Second

	androidStopGrace = 5 * time.Second
	streamStopGrace  = 10 * time.Second
	supervisorWait   = 30 * time.Second
)

// SegmentRecorder is a device that records to its own storage with a
// per-process time limit.
type SegmentRecorder interface {
	ID() string
	StartScreenRecord(ctx context.Context, devicePath string, limit time.Duration) (utils.Process, error)
	StopScreenRecord(ctx context.Context) error
	PullFile(ctx context.Context, remote, local string) error
	RemoveFile(ctx context.Context, remote string) error
}

// StreamRecorder is a device whose capture process writes straight to a
// host file until interrupted.
type StreamRecorder interface {
	ID() string
	StartVideoCapture(ctx context.Context, path string) (utils.Process, error)
}

type Options struct {
	// OutputDir holds per-session working directories. Defaults to os.TempDir().
	OutputDir    string
	MaxDuration  time.Duration
	SegmentLimit time.Duration
	// ReadyDelay is the pause before pulling a segment that just ended.
	ReadyDelay time.Duration
	// SegmentOverrun is how long a segment may outlive SegmentLimit before
	// the supervisor interrupts it.
	SegmentOverrun time.Duration
	Concatenator   Concatenator
}

// Result describes a start or a finished stop.
type Result struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	Path     string        `json:"path,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Segments int           `json:"segments,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

type State string

const (
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
)

// Info is a snapshot of an active session.
type Info struct {
	SessionID string    `json:"sessionId"`
	DeviceID  string    `json:"deviceId"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"startedAt"`
	Segments  int       `json:"segments"`
	Errors    []string  `json:"errors,omitempty"`
}

type session interface {
	info() Info
	finalize(ctx context.Context) (*Result, error)
}

type entry struct {
	session session
	state   State
}

// Manager is the per-device session registry.
type Manager struct {
	opts Options
	log  *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewManager(opts Options) *Manager {
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.SegmentLimit <= 0 {
		opts.SegmentLimit = DefaultSegmentLimit
	}
	if opts.ReadyDelay <= 0 {
		opts.ReadyDelay = DefaultReadyDelay
	}
	if opts.SegmentOverrun <= 0 {
		opts.SegmentOverrun = DefaultOverrun
	}
	if opts.Concatenator == nil {
		opts.Concatenator = DefaultConcatenator("", nil)
	}
	return &Manager{
		opts:     opts,
		log:      utils.WithComponent("recording"),
		sessions: map[string]*entry{},
	}
}

// Start begins recording device. A zero maxDuration uses the configured
// default. A second Start for the same device is rejected until the first
// session has been stopped.
func (m *Manager) Start(ctx context.Context, device interface{ ID() string }, maxDuration time.Duration) (*Result, error) {
	if maxDuration <= 0 {
		maxDuration = m.opts.MaxDuration
	}
	id := device.ID()

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: recording already in progress for device %s", ErrAlreadyRecording, id)
	}
	// reserve the slot so concurrent starts cannot both succeed
	m.sessions[id] = &entry{state: StateRecording}
	m.mu.Unlock()

	s, result, err := m.start(ctx, device, maxDuration)
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		m.log.WithField("device", id).Errorf("failed to start recording: %v", err)
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id].session = s
	m.mu.Unlock()

	m.log.WithField("device", id).Info(result.Message)
	return result, nil
}

func (m *Manager) start(ctx context.Context, device interface{ ID() string }, maxDuration time.Duration) (session, *Result, error) {
	sessionID := uuid.NewString()
	workDir := filepath.Join(m.opts.OutputDir, "devicebridge-recording-"+sessionID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create recording directory: %w", err)
	}

	var (
		s      session
		result *Result
		err    error
	)
	switch rec := device.(type) {
	case SegmentRecorder:
		s, result, err = startSegmented(ctx, rec, sessionID, workDir, maxDuration, m.opts, m.log)
	case StreamRecorder:
		s, result, err = startStream(ctx, rec, sessionID, workDir, maxDuration, m.opts, m.log)
	default:
		err = ErrUnsupported
	}
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, nil, err
	}
	return s, result, nil
}

// Stop finalizes the device's session and removes it from the registry,
// whether finalizing succeeds or not.
func (m *Manager) Stop(ctx context.Context, deviceID string) (*Result, error) {
	m.mu.Lock()
	e, ok := m.sessions[deviceID]
	if !ok || e.session == nil || e.state != StateRecording {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w for device %s", ErrNoActiveRecording, deviceID)
	}
	e.state = StateFinalizing
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.sessions, deviceID)
		m.mu.Unlock()
	}()

	result, err := e.session.finalize(ctx)
	if err != nil {
		m.log.WithField("device", deviceID).Errorf("failed to stop recording: %v", err)
		return nil, err
	}
	m.log.WithField("device", deviceID).Info(result.Message)
	return result, nil
}

// Active reports whether deviceID has a session in any state.
func (m *Manager) Active(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[deviceID]
	return ok
}

func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	states := make([]State, 0, len(m.sessions))
	for _, e := range m.sessions {
		if e.session == nil {
			continue
		}
		entries = append(entries, e)
		states = append(states, e.state)
	}
	m.mu.Unlock()

	infos := make([]Info, 0, len(entries))
	for i, e := range entries {
		info := e.session.info()
		info.State = states[i]
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].DeviceID < infos[j].DeviceID })
	return infos
}

// StopAll finalizes every session, for use at shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	for _, info := range m.Sessions() {
		if info.State != StateRecording {
			continue
		}
		if _, err := m.Stop(ctx, info.DeviceID); err != nil {
			m.log.WithField("device", info.DeviceID).Warnf("recording not finalized: %v", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
