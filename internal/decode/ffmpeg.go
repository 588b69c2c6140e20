package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable wraps failures that mean the video cannot be used at all,
// as opposed to a single bad offset.
var ErrUnavailable = errors.New("video source unavailable")

// FFmpeg decodes single frames by seeking into the video with an ffmpeg
// subprocess. Each call spawns its own process, so concurrent calls are
// independent; the worker count is the only throttle.
type FFmpeg struct {
	video string
	log   *slog.Logger
}

func NewFFmpeg(videoPath string, logger *slog.Logger) (*FFmpeg, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &FFmpeg{video: videoPath, log: logger}, nil
}

// Duration probes the container with ffprobe.
func (f *FFmpeg) Duration(ctx context.Context) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		f.video,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe: %v", ErrUnavailable, err)
	}
	dur, err := ParseProbeDuration(string(output))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	f.log.Debug("probed video", "path", f.video, "duration", dur)
	return dur, nil
}

// ParseProbeDuration parses ffprobe's duration output, a float in seconds.
func ParseProbeDuration(s string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %v", strings.TrimSpace(s), err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative ffprobe duration %g", seconds)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Frame seeks to the offset and decodes exactly one frame. ffmpeg writes the
// frame as MJPEG to stdout; an empty stdout means the offset is past the end
// of the stream (container durations routinely overshoot the video track).
func (f *FFmpeg) Frame(ctx context.Context, offset time.Duration) (image.Image, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", fmt.Sprintf("%.3f", offset.Seconds()),
		"-i", f.video,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &FetchError{Offset: offset, Cause: fmt.Errorf("ffmpeg: %v: %s", err, lastLine(stderr.String()))}
	}
	output := stdout.Bytes()
	if len(output) == 0 {
		return nil, &FetchError{Offset: offset, Cause: errors.New("no frame at offset")}
	}
	img, err := jpeg.Decode(bytes.NewReader(output))
	if err != nil {
		return nil, &FetchError{Offset: offset, Cause: fmt.Errorf("decode frame: %v", err)}
	}
	return img, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
