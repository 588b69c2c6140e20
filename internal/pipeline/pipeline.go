// Package pipeline coordinates the sampling run: a bounded worker pool
// executes fetch → OCR → parse per sample, and a reorder buffer restores
// timestamp order before results reach the emitter. This is the only
// concurrency-aware part of the program.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/bdougie/dash2gps/internal/config"
	"github.com/bdougie/dash2gps/internal/decode"
	"github.com/bdougie/dash2gps/internal/models"
	"github.com/bdougie/dash2gps/internal/ocr"
	"github.com/bdougie/dash2gps/internal/parser"
	"github.com/bdougie/dash2gps/internal/sampler"
)

// Source is the slice of decode.FrameSource the pipeline needs.
type Source interface {
	Frame(ctx context.Context, offset time.Duration) (image.Image, error)
}

// EmitFunc receives completed units in strictly increasing index order,
// exactly once each. A non-nil return aborts the run.
type EmitFunc func(unit models.WorkUnit) error

type Pipeline struct {
	source  Source
	engine  ocr.Engine
	parser  *parser.Parser
	crop    config.Crop
	workers int
	minConf float64
	log     *slog.Logger
}

func New(source Source, engine ocr.Engine, cfg *config.Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		source:  source,
		engine:  engine,
		parser:  parser.New(cfg.Substitutions),
		crop:    cfg.Crop,
		workers: cfg.Workers,
		minConf: cfg.OCR.MinConfidence,
		log:     logger,
	}
}

// Run processes every timestamp in the schedule. Workers pull timestamps in
// index order and may finish in any order; completed units sit in a buffer
// keyed by index until every smaller index has been emitted, so the buffer
// never grows past the degree of out-of-order completion. When emit fails,
// the run context is cancelled and remaining completions are discarded.
func (p *Pipeline) Run(ctx context.Context, sched *sampler.Schedule, emit EmitFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan sampler.Timestamp)
	results := make(chan models.WorkUnit, p.workers)

	var wg sync.WaitGroup
	for range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ts := range jobs {
				results <- p.process(ctx, ts)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < sched.Count(); i++ {
			select {
			case jobs <- sched.At(i):
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int]models.WorkUnit)
	next := 0
	var emitErr error
	for unit := range results {
		if emitErr != nil {
			continue
		}
		pending[unit.Index] = unit
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if err := emit(ready); err != nil {
				emitErr = fmt.Errorf("sample %d at %v: %w", ready.Index, ready.Offset, err)
				cancel()
				break
			}
			next++
		}
	}
	if emitErr != nil {
		return emitErr
	}
	return context.Cause(ctx)
}

// process runs the fetch → OCR → parse chain for one sample. Failures are
// absorbed into the unit, never returned: one bad frame must not stop the
// rest of the run.
func (p *Pipeline) process(ctx context.Context, ts sampler.Timestamp) models.WorkUnit {
	unit := models.WorkUnit{Index: ts.Index, Offset: ts.Offset}

	frame, err := p.source.Frame(ctx, ts.Offset)
	if err != nil {
		unit.Err = err
		return unit
	}

	crop := decode.Prepare(frame, p.crop)
	result, err := p.engine.Recognize(ctx, crop)
	if err != nil {
		// OCR engine failures rank with fetch failures: the sample's input
		// could not be obtained. No retry; the same frame bytes would fail
		// the same way.
		unit.Err = &decode.FetchError{Offset: ts.Offset, Cause: err}
		return unit
	}
	p.log.Debug("ocr result",
		"index", ts.Index,
		"offset", ts.Offset,
		"confidence", result.Confidence,
		"text", result.Text,
	)

	if p.minConf > 0 && result.Confidence < p.minConf {
		unit.Err = &parser.ParseError{
			Reason: fmt.Sprintf("ocr confidence %.1f below threshold %.1f", result.Confidence, p.minConf),
			Raw:    result.Text,
		}
		return unit
	}

	coord, err := p.parser.Parse(result.Text)
	if err != nil {
		unit.Err = err
		return unit
	}
	unit.Coord = &coord
	return unit
}
