package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mobile-next/devicebridge/utils"
	mp4 "github.com/yapingcat/gomedia/go-mp4"
)

// Concatenator joins mp4 segments into output, in order.
type Concatenator interface {
	Concat(ctx context.Context, segments []string, output string) error
}

// FFmpegInstructions is shown when ffmpeg is missing.
func FFmpegInstructions(goos string) string {
	switch goos {
	case "darwin":
		return "brew install ffmpeg"
	case "windows":
		return "Download from https://www.ffmpeg.org/download.html"
	default:
		return "Install via your package manager (e.g., apt install ffmpeg, dnf install ffmpeg) " +
			"or download from https://www.ffmpeg.org/download.html"
	}
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// DefaultConcatenator stream-copies with ffmpeg when it is installed and
// falls back to remuxing in process.
func DefaultConcatenator(ffmpegPath string, runner utils.CommandRunner) Concatenator {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if _, err := lookPath(ffmpegPath); err != nil {
		utils.Verbose("ffmpeg not found, segments will be remuxed in process")
		return NativeConcatenator{}
	}
	return Fallback{FFmpegConcatenator{Path: ffmpegPath, Runner: runner}, NativeConcatenator{}}
}

// Fallback tries each concatenator until one succeeds.
type Fallback []Concatenator

func (f Fallback) Concat(ctx context.Context, segments []string, output string) error {
	var errs []error
	for _, c := range f {
		err := c.Concat(ctx, segments, output)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// FFmpegConcatenator uses the concat demuxer with stream copy.
type FFmpegConcatenator struct {
	Path   string
	Runner utils.CommandRunner
}

func (f FFmpegConcatenator) Concat(ctx context.Context, segments []string, output string) error {
	if len(segments) == 0 {
		return fmt.Errorf("no segments to concatenate")
	}
	path := f.Path
	if path == "" {
		path = "ffmpeg"
	}
	runner := f.Runner
	if runner == nil {
		runner = utils.ExecRunner{}
	}

	listFile := filepath.Join(filepath.Dir(output), "segments.txt")
	if err := os.WriteFile(listFile, []byte(concatList(segments)), 0o644); err != nil {
		return fmt.Errorf("failed to write segment list: %w", err)
	}
	defer os.Remove(listFile)

	if _, err := runner.Run(ctx, path, "-y", "-f", "concat", "-safe", "0", "-i", listFile, "-c", "copy", output); err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w", err)
	}
	if _, err := os.Stat(output); err != nil {
		return fmt.Errorf("ffmpeg did not produce %s", output)
	}
	return nil
}

// concatList renders the concat demuxer input, escaping single quotes.
func concatList(segments []string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(s, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// NativeConcatenator remuxes the H.264 video track of each segment into a
// single file, shifting timestamps so segments play back to back.
// screenrecord output has no audio track.
type NativeConcatenator struct{}

const defaultFrameGap = 33

func (NativeConcatenator) Concat(ctx context.Context, segments []string, output string) error {
	if len(segments) == 0 {
		return fmt.Errorf("no segments to concatenate")
	}

	out, err := os.Create(output)
	if err != nil {
		return err
	}

	muxer, err := mp4.CreateMp4Muxer(out)
	if err != nil {
		out.Close()
		return fmt.Errorf("failed to create mp4 muxer: %w", err)
	}

	r := &remuxer{muxer: muxer}
	for _, segment := range segments {
		if err := ctx.Err(); err != nil {
			out.Close()
			return err
		}
		if err := r.append(segment); err != nil {
			out.Close()
			_ = os.Remove(output)
			return fmt.Errorf("failed to remux %s: %w", filepath.Base(segment), err)
		}
	}

	if err := muxer.WriteTrailer(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finish %s: %w", output, err)
	}
	return out.Close()
}

type remuxer struct {
	muxer    *mp4.Movmuxer
	track    uint32
	hasTrack bool
	offset   uint64
}

func (r *remuxer) append(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	demuxer := mp4.CreateMp4Demuxer(f)
	tracks, err := demuxer.ReadHead()
	if err != nil {
		return err
	}

	video := -1
	for _, t := range tracks {
		if t.Cid == mp4.MP4_CODEC_H264 {
			video = t.TrackId
			break
		}
	}
	if video < 0 {
		return fmt.Errorf("no H.264 video track")
	}
	if !r.hasTrack {
		r.track = r.muxer.AddVideoTrack(mp4.MP4_CODEC_H264)
		r.hasTrack = true
	}

	var first, last, prev uint64
	gap := uint64(defaultFrameGap)
	seen := false
	for {
		pkt, err := demuxer.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if pkt.TrackId != video {
			continue
		}
		if !seen {
			first = pkt.Dts
			seen = true
		} else if pkt.Dts > prev {
			gap = pkt.Dts - prev
		}
		prev = pkt.Dts

		pts := pkt.Pts - first + r.offset
		dts := pkt.Dts - first + r.offset
		if err := r.muxer.Write(r.track, pkt.Data, pts, dts); err != nil {
			return err
		}
		if pts > last {
			last = pts
		}
	}
	if !seen {
		return fmt.Errorf("no video samples")
	}

	r.offset = last + gap
	return nil
}
