package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mobile-next/devicebridge/utils"
	"github.com/sirupsen/logrus"
)

const segmentDevicePathFormat = "/sdcard/screen_recording_%d.mp4"

// segmentedSession keeps screenrecord running back to back. The
// supervisor goroutine owns segment rotation; finalize cancels it before
// touching the device.
type segmentedSession struct {
	rec         SegmentRecorder
	id          string
	workDir     string
	started     time.Time
	maxDuration time.Duration
	opts        Options
	log         *logrus.Entry

	// procCtx outlives the caller of Start so the capture keeps running
	procCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	mu         sync.Mutex
	process    utils.Process
	devicePath string
	pending    bool
	index      int
	segments   []string
	errors     []string
}

func startSegmented(ctx context.Context, rec SegmentRecorder, sessionID, workDir string, maxDuration time.Duration, opts Options, log *logrus.Entry) (*segmentedSession, *Result, error) {
	superCtx, cancel := context.WithCancel(context.Background())
	s := &segmentedSession{
		rec:         rec,
		id:          sessionID,
		workDir:     workDir,
		started:     time.Now(),
		maxDuration: maxDuration,
		opts:        opts,
		log:         log.WithField("device", rec.ID()),
		procCtx:     context.WithoutCancel(ctx),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	if err := s.startSegment(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start recording: %w", err)
	}

	go s.supervise(superCtx)

	return s, &Result{
		Success: true,
		Message: fmt.Sprintf("Recording started (max %ds, auto-restarts every %ds).",
			int(maxDuration.Seconds()), int(opts.SegmentLimit.Seconds())),
	}, nil
}

func (s *segmentedSession) startSegment() error {
	s.mu.Lock()
	path := fmt.Sprintf(segmentDevicePathFormat, s.index)
	s.mu.Unlock()

	process, err := s.rec.StartScreenRecord(s.procCtx, path, s.opts.SegmentLimit)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.process = process
	s.devicePath = path
	s.pending = true
	s.mu.Unlock()
	return nil
}

func (s *segmentedSession) current() (utils.Process, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.process, s.index
}

func (s *segmentedSession) addError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.log.Warn(msg)
	s.mu.Lock()
	s.errors = append(s.errors, msg)
	s.mu.Unlock()
}

func (s *segmentedSession) supervise(ctx context.Context) {
	defer close(s.done)

	for {
		process, index := s.current()
		if process == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-process.Done():
		case <-time.After(s.opts.SegmentLimit + s.opts.SegmentOverrun):
			// the file is only complete once screenrecord has exited
			s.addError("Segment %d ran past its %s limit, interrupting it", index, s.opts.SegmentLimit)
			process.Interrupt(androidStopGrace)
			select {
			case <-process.Done():
			case <-ctx.Done():
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		if time.Since(s.started) >= s.maxDuration {
			s.log.Infof("maximum duration of %s reached", s.maxDuration)
			return
		}
		if err := sleepCtx(ctx, s.opts.ReadyDelay); err != nil {
			return
		}

		s.collect(index)

		// a stop that arrived during the pull keeps the device idle
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		s.index++
		s.mu.Unlock()

		if err := s.startSegment(); err != nil {
			s.addError("Failed to restart Android recording: %v", err)
			return
		}
		s.log.Infof("Auto-restarted Android recording (segment %d)", index+1)
	}
}

// collect pulls the current device file into the work directory. It is not
// tied to the supervisor context so a stop cannot abort a pull midway.
func (s *segmentedSession) collect(index int) {
	s.mu.Lock()
	remote := s.devicePath
	pending := s.pending
	s.pending = false
	s.mu.Unlock()

	if !pending {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	local := filepath.Join(s.workDir, fmt.Sprintf("segment_%d.mp4", index))
	if err := s.rec.PullFile(ctx, remote, local); err != nil {
		s.addError("Failed to pull segment %d: %v", index, err)
		return
	}
	if err := s.rec.RemoveFile(ctx, remote); err != nil {
		s.log.Debugf("failed to remove %s: %v", remote, err)
	}

	s.mu.Lock()
	s.segments = append(s.segments, local)
	s.mu.Unlock()
	s.log.Infof("Saved Android segment %d to %s", index, local)
}

func (s *segmentedSession) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		SessionID: s.id,
		DeviceID:  s.rec.ID(),
		StartedAt: s.started,
		Segments:  len(s.segments),
		Errors:    append([]string(nil), s.errors...),
	}
}

func (s *segmentedSession) finalize(ctx context.Context) (*Result, error) {
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(supervisorWait):
		s.log.Warn("recording supervisor did not exit in time")
	}

	process, index := s.current()

	if err := s.rec.StopScreenRecord(ctx); err != nil {
		s.log.Debugf("screenrecord stop failed: %v", err)
	}
	if process != nil {
		select {
		case <-process.Done():
		case <-time.After(androidStopGrace):
			process.Stop(androidStopGrace)
		}
	}
	if err := sleepCtx(ctx, s.opts.ReadyDelay); err != nil {
		return nil, err
	}

	s.collect(index)

	for i := 0; i <= index; i++ {
		_ = s.rec.RemoveFile(ctx, fmt.Sprintf(segmentDevicePathFormat, i))
	}

	s.mu.Lock()
	segments := append([]string(nil), s.segments...)
	warnings := append([]string(nil), s.errors...)
	s.mu.Unlock()

	duration := time.Since(s.started)
	if len(segments) == 0 {
		_ = os.RemoveAll(s.workDir)
		return nil, fmt.Errorf("no video segments were captured")
	}

	output := filepath.Join(s.workDir, "recording.mp4")
	if len(segments) == 1 {
		if err := os.Rename(segments[0], output); err != nil {
			return nil, fmt.Errorf("failed to move recording: %w", err)
		}
	} else if err := s.opts.Concatenator.Concat(ctx, segments, output); err != nil {
		s.log.Warnf("Concatenation failed, using last segment only: %v", err)
		warnings = append(warnings, fmt.Sprintf("concatenation failed: %v", err))
		output = segments[len(segments)-1]
	}
	removeExcept(segments, output)

	message := fmt.Sprintf("Recording stopped after %.1fs (%d segments)", duration.Seconds(), len(segments))
	if len(warnings) > 0 {
		message += ". Warnings during recording: " + strings.Join(warnings, "; ")
	}

	return &Result{
		Success:  true,
		Message:  message,
		Path:     output,
		Duration: duration,
		Segments: len(segments),
		Warnings: warnings,
	}, nil
}

func removeExcept(paths []string, keep string) {
	for _, p := range paths {
		if p == keep {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			utils.Verbose("failed to remove %s: %v", p, err)
		}
	}
}
