package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Bulk runs a single ffmpeg pass that writes every sampled frame into the
// workspace, while a filesystem watcher tracks which frames have landed.
// Frame lookups block until their file is safely on disk: a frame file is
// complete once a later-numbered file exists or the ffmpeg process has
// exited, since ffmpeg writes the sequence strictly in order.
type Bulk struct {
	probe    *FFmpeg
	dir      string
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	highest int
	done    bool
	runErr  error
}

func NewBulk(probe *FFmpeg, dir string, interval time.Duration, logger *slog.Logger) *Bulk {
	b := &Bulk{probe: probe, dir: dir, interval: interval, log: logger}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *Bulk) Duration(ctx context.Context) (time.Duration, error) {
	return b.probe.Duration(ctx)
}

// Start launches the extraction pass and the workspace watcher. The select
// filter picks one frame per interval, numbered from 1.
func (b *Bulk) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("init frame watcher: %w", err)
	}
	if err := watcher.Add(b.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch workspace %s: %w", b.dir, err)
	}

	filter := fmt.Sprintf(`select=bitor(gte(t-prev_selected_t\,%g)\,isnan(prev_selected_t))`,
		b.interval.Seconds())
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", b.probe.video,
		"-vf", filter,
		"-vsync", "0",
		"f%09d.jpg",
	)
	cmd.Dir = b.dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		watcher.Close()
		return fmt.Errorf("%w: start ffmpeg: %v", ErrUnavailable, err)
	}
	b.log.Info("bulk extraction started", "dir", b.dir, "interval", b.interval)

	go func() {
		for ev := range watcher.Events {
			if !ev.Has(fsnotify.Create) {
				continue
			}
			n, ok := frameNumber(filepath.Base(ev.Name))
			if !ok {
				continue
			}
			b.mu.Lock()
			if n > b.highest {
				b.highest = n
				b.cond.Broadcast()
			}
			b.mu.Unlock()
		}
	}()

	go func() {
		err := cmd.Wait()
		watcher.Close()
		b.mu.Lock()
		if err != nil {
			b.runErr = fmt.Errorf("ffmpeg: %v: %s", err, lastLine(stderr.String()))
		}
		b.done = true
		b.cond.Broadcast()
		b.mu.Unlock()
		b.log.Debug("bulk extraction finished", "frames", b.highest, "err", err)
	}()
	return nil
}

// Frame waits for the file covering the offset and decodes it.
func (b *Bulk) Frame(ctx context.Context, offset time.Duration) (image.Image, error) {
	n := int(math.Round(float64(offset)/float64(b.interval))) + 1

	b.mu.Lock()
	for !b.done && b.highest <= n {
		b.cond.Wait()
	}
	runErr := b.runErr
	b.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(b.dir, fmt.Sprintf("f%09d.jpg", n)))
	if err != nil {
		if runErr != nil {
			return nil, &FetchError{Offset: offset, Cause: runErr}
		}
		return nil, &FetchError{Offset: offset, Cause: errors.New("no frame at offset")}
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &FetchError{Offset: offset, Cause: fmt.Errorf("decode frame: %v", err)}
	}
	return img, nil
}

func frameNumber(name string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(name, "f%d.jpg", &n); err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
