package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mobile-next/devicebridge/utils"
	"github.com/sirupsen/logrus"
)

// streamSession is one capture process writing to a host file.
type streamSession struct {
	rec     StreamRecorder
	id      string
	workDir string
	path    string
	started time.Time
	opts    Options
	log     *logrus.Entry

	limit *time.Timer

	mu      sync.Mutex
	process utils.Process
	expired bool
}

func startStream(ctx context.Context, rec StreamRecorder, sessionID, workDir string, maxDuration time.Duration, opts Options, log *logrus.Entry) (*streamSession, *Result, error) {
	s := &streamSession{
		rec:     rec,
		id:      sessionID,
		workDir: workDir,
		path:    filepath.Join(workDir, "recording.mp4"),
		started: time.Now(),
		opts:    opts,
		log:     log.WithField("device", rec.ID()),
	}

	process, err := rec.StartVideoCapture(context.WithoutCancel(ctx), s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start recording: %w", err)
	}
	s.process = process

	// the file stays on disk until Stop collects it
	s.limit = time.AfterFunc(maxDuration, func() {
		s.mu.Lock()
		s.expired = true
		s.mu.Unlock()
		s.log.Infof("maximum duration of %s reached, ending capture", maxDuration)
		process.Interrupt(streamStopGrace)
	})

	return s, &Result{
		Success: true,
		Message: fmt.Sprintf("Recording started (max %ds).", int(maxDuration.Seconds())),
	}, nil
}

func (s *streamSession) info() Info {
	return Info{SessionID: s.id, DeviceID: s.rec.ID(), StartedAt: s.started}
}

func (s *streamSession) finalize(ctx context.Context) (*Result, error) {
	s.limit.Stop()

	s.mu.Lock()
	process := s.process
	expired := s.expired
	s.mu.Unlock()

	// SIGINT lets the capture tool write the file trailer
	process.Interrupt(streamStopGrace)

	if err := sleepCtx(ctx, s.opts.ReadyDelay); err != nil {
		return nil, err
	}

	duration := time.Since(s.started)
	if _, err := os.Stat(s.path); err != nil {
		_ = os.RemoveAll(s.workDir)
		return nil, fmt.Errorf("recording stopped but video file not found")
	}

	message := fmt.Sprintf("Recording stopped after %.1fs", duration.Seconds())
	if expired {
		message += " (maximum duration reached earlier)"
	}
	return &Result{
		Success:  true,
		Message:  message,
		Path:     s.path,
		Duration: duration,
		Segments: 1,
	}, nil
}
