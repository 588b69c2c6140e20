// dash2gps extracts a time-ordered GPS track from dashcam footage by
// sampling frames, reading the telemetry overlay with OCR, and printing one
// "latitude,longitude" line per sample to stdout.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"log/slog"

	"github.com/lmittmann/tint"

	"github.com/bdougie/dash2gps/internal/config"
	"github.com/bdougie/dash2gps/internal/decode"
	"github.com/bdougie/dash2gps/internal/models"
	"github.com/bdougie/dash2gps/internal/ocr"
	"github.com/bdougie/dash2gps/internal/pipeline"
	"github.com/bdougie/dash2gps/internal/sampler"
	"github.com/bdougie/dash2gps/internal/storage"
	"github.com/bdougie/dash2gps/internal/workspace"
)

const usage = `Usage: dash2gps <video.mp4> [options]

Options:
  --interval <seconds>   sampling interval (default 10)
  --threads <N>          worker count (default 4)
  --crop <l,t,r,b>       overlay crop as frame fractions
  --config <file>        YAML config file
  --bulk                 extract all frames in one ffmpeg pass
  --db <dsn>             also record the track in Postgres
  --help                 show this help
`

func main() {
	// Configure logger
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: "15:04:05",
		}),
	)

	cfg, videoPath, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if videoPath == "" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, videoPath, logger); err != nil {
		logger.Error("run failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, videoPath string, logger *slog.Logger) error {
	ffmpeg, err := decode.NewFFmpeg(videoPath, logger)
	if err != nil {
		return err
	}
	duration, err := ffmpeg.Duration(ctx)
	if err != nil {
		return err
	}

	sched, err := sampler.NewSchedule(duration, cfg.IntervalDuration())
	if err != nil {
		return err
	}
	logger.Info("sampling video",
		"path", videoPath,
		"duration", duration,
		"interval", cfg.IntervalDuration(),
		"samples", sched.Count(),
		"workers", cfg.Workers,
	)

	var ws *workspace.Workspace
	if cfg.Bulk || cfg.OCR.Engine == config.EngineVision {
		if ws, err = workspace.New(); err != nil {
			return err
		}
		defer ws.Cleanup()
	}

	var source pipeline.Source = ffmpeg
	if cfg.Bulk {
		bulk := decode.NewBulk(ffmpeg, ws.Path, sched.Interval(), logger)
		if err := bulk.Start(ctx); err != nil {
			return err
		}
		source = bulk
	}

	var engine ocr.Engine
	switch cfg.OCR.Engine {
	case config.EngineVision:
		engine, err = ocr.NewVision(ctx, cfg.OCR, ws.Path, logger)
		if err != nil {
			return fmt.Errorf("init vision engine: %w", err)
		}
	default:
		engine = ocr.NewTesseract(cfg.OCR)
	}

	var store pipeline.TrackStore
	if cfg.PostgresDSN != "" {
		videoName := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
		trackStore, err := storage.Open(ctx, cfg.PostgresDSN, videoName)
		if err != nil {
			return err
		}
		defer trackStore.Close()
		store = trackStore
	}

	emitter := pipeline.NewEmitter(os.Stdout, cfg.Policy, store, logger)
	pipe := pipeline.New(source, engine, &cfg, logger)
	if err := pipe.Run(ctx, sched, func(unit models.WorkUnit) error {
		return emitter.Emit(ctx, unit)
	}); err != nil {
		return err
	}

	emitted, skipped := emitter.Summary()
	logger.Info("done", "emitted", emitted, "skipped", skipped)
	return nil
}

func parseArgs(args []string) (config.Config, string, error) {
	cfg := config.Default()
	videoPath := ""

	// Flags override the config file, so find --config first.
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			loaded, err := config.Load(args[i+1])
			if err != nil {
				return cfg, "", err
			}
			cfg = loaded
		}
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--help", "-h":
			fmt.Print(usage)
			os.Exit(0)
		case "--interval":
			if i+1 >= len(args) {
				return cfg, "", fmt.Errorf("--interval requires a value")
			}
			v, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil {
				return cfg, "", fmt.Errorf("bad --interval %q", args[i+1])
			}
			cfg.Interval = v
			i++
		case "--threads":
			if i+1 >= len(args) {
				return cfg, "", fmt.Errorf("--threads requires a value")
			}
			v, err := strconv.Atoi(args[i+1])
			if err != nil {
				return cfg, "", fmt.Errorf("bad --threads %q", args[i+1])
			}
			cfg.Workers = v
			i++
		case "--crop":
			if i+1 >= len(args) {
				return cfg, "", fmt.Errorf("--crop requires a value")
			}
			crop, err := config.ParseCrop(args[i+1])
			if err != nil {
				return cfg, "", err
			}
			cfg.Crop = crop
			i++
		case "--config":
			i++ // handled above
		case "--bulk":
			cfg.Bulk = true
		case "--db":
			if i+1 >= len(args) {
				return cfg, "", fmt.Errorf("--db requires a value")
			}
			cfg.PostgresDSN = args[i+1]
			i++
		default:
			if strings.HasPrefix(args[i], "-") {
				return cfg, "", fmt.Errorf("unknown flag %s", args[i])
			}
			if videoPath != "" {
				return cfg, "", fmt.Errorf("unexpected argument %q", args[i])
			}
			videoPath = args[i]
		}
	}
	return cfg, videoPath, nil
}
