package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/dash2gps/internal/config"
	"github.com/bdougie/dash2gps/internal/decode"
	"github.com/bdougie/dash2gps/internal/models"
	"github.com/bdougie/dash2gps/internal/ocr"
	"github.com/bdougie/dash2gps/internal/parser"
	"github.com/bdougie/dash2gps/internal/sampler"
)

const testInterval = 10 * time.Second

// fakeSource produces a frame whose width encodes the sample index, so the
// fake engine can tell samples apart after crop preprocessing (which doubles
// the width).
type fakeSource struct {
	failAt map[int]bool
}

func (s *fakeSource) Frame(ctx context.Context, offset time.Duration) (image.Image, error) {
	idx := int(offset / testInterval)
	if s.failAt[idx] {
		return nil, &decode.FetchError{Offset: offset, Cause: errors.New("no frame at offset")}
	}
	return image.NewGray(image.Rect(0, 0, (idx+1)*10, 10)), nil
}

// fakeEngine maps sample index to canned OCR output, with an optional delay
// per index to force completion orderings.
type fakeEngine struct {
	text       func(idx int) string
	confidence float64
	delay      func(idx int) time.Duration
}

func (e *fakeEngine) Recognize(ctx context.Context, img image.Image) (ocr.Result, error) {
	idx := img.Bounds().Dx()/20 - 1
	if e.delay != nil {
		time.Sleep(e.delay(idx))
	}
	conf := e.confidence
	if conf == 0 {
		conf = 100
	}
	return ocr.Result{Text: e.text(idx), Confidence: conf}, nil
}

func testConfig(workers int) *config.Config {
	cfg := config.Default()
	cfg.Workers = workers
	cfg.Crop = config.Crop{Left: 0, Top: 0, Right: 1, Bottom: 1}
	return &cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func mustSchedule(t *testing.T, duration time.Duration) *sampler.Schedule {
	t.Helper()
	sched, err := sampler.NewSchedule(duration, testInterval)
	require.NoError(t, err)
	return sched
}

const goodLine = `N51°25 48” E0°19 20” 51MPH 12:42:29 06/06/2021`

func collectRun(t *testing.T, p *Pipeline, sched *sampler.Schedule) []models.WorkUnit {
	t.Helper()
	var units []models.WorkUnit
	err := p.Run(context.Background(), sched, func(u models.WorkUnit) error {
		units = append(units, u)
		return nil
	})
	require.NoError(t, err)
	return units
}

func TestRunEmitsInOrder(t *testing.T) {
	const samples = 12
	sched := mustSchedule(t, time.Duration(samples-1)*testInterval)
	require.Equal(t, samples, sched.Count())

	delays := map[string]func(idx int) time.Duration{
		"reverse completion": func(idx int) time.Duration {
			return time.Duration(samples-idx) * 5 * time.Millisecond
		},
		"random completion": func(idx int) time.Duration {
			return time.Duration(rand.Intn(20)) * time.Millisecond
		},
		"uniform completion": nil,
	}

	for name, delay := range delays {
		t.Run(name, func(t *testing.T) {
			engine := &fakeEngine{text: func(int) string { return goodLine }, delay: delay}
			p := New(&fakeSource{}, engine, testConfig(4), discardLogger())

			units := collectRun(t, p, sched)
			require.Len(t, units, samples)
			for i, u := range units {
				assert.Equal(t, i, u.Index)
				assert.False(t, u.Failed())
				assert.InDelta(t, 51.43, u.Coord.Lat, 1e-6)
			}
		})
	}
}

func TestRunSkipsUnparsableSample(t *testing.T) {
	sched := mustSchedule(t, 30*time.Second)

	engine := &fakeEngine{text: func(idx int) string {
		if idx == 2 {
			return "###"
		}
		return goodLine
	}}
	p := New(&fakeSource{}, engine, testConfig(4), discardLogger())

	units := collectRun(t, p, sched)
	require.Len(t, units, 4)
	for i, u := range units {
		assert.Equal(t, i, u.Index)
	}
	assert.True(t, units[2].Failed())
	var pe *parser.ParseError
	assert.ErrorAs(t, units[2].Err, &pe)
	for _, i := range []int{0, 1, 3} {
		assert.False(t, units[i].Failed())
	}
}

func TestRunContinuesPastFetchFailure(t *testing.T) {
	sched := mustSchedule(t, 30*time.Second)

	source := &fakeSource{failAt: map[int]bool{1: true}}
	engine := &fakeEngine{text: func(int) string { return goodLine }}
	p := New(source, engine, testConfig(2), discardLogger())

	units := collectRun(t, p, sched)
	require.Len(t, units, 4)
	var fe *decode.FetchError
	assert.ErrorAs(t, units[1].Err, &fe)
	for _, i := range []int{0, 2, 3} {
		assert.False(t, units[i].Failed())
	}
}

func TestRunLowConfidenceRejected(t *testing.T) {
	sched := mustSchedule(t, 0)

	engine := &fakeEngine{text: func(int) string { return goodLine }, confidence: 40}
	cfg := testConfig(1)
	cfg.OCR.MinConfidence = 60
	p := New(&fakeSource{}, engine, cfg, discardLogger())

	units := collectRun(t, p, sched)
	require.Len(t, units, 1)
	assert.True(t, units[0].Failed())
	var pe *parser.ParseError
	assert.ErrorAs(t, units[0].Err, &pe)
}

func TestRunAbortStopsEmission(t *testing.T) {
	const samples = 8
	sched := mustSchedule(t, time.Duration(samples-1)*testInterval)

	engine := &fakeEngine{text: func(idx int) string {
		if idx == 3 {
			return "###"
		}
		return goodLine
	}}
	p := New(&fakeSource{}, engine, testConfig(4), discardLogger())

	var emitted []int
	err := p.Run(context.Background(), sched, func(u models.WorkUnit) error {
		if u.Failed() {
			return u.Err
		}
		emitted = append(emitted, u.Index)
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, []int{0, 1, 2}, emitted)
}

func TestRunIdempotent(t *testing.T) {
	sched := mustSchedule(t, 50*time.Second)

	runOnce := func() string {
		engine := &fakeEngine{
			text: func(int) string { return goodLine },
			delay: func(int) time.Duration {
				return time.Duration(rand.Intn(10)) * time.Millisecond
			},
		}
		p := New(&fakeSource{}, engine, testConfig(3), discardLogger())
		var buf bytes.Buffer
		em := NewEmitter(&buf, config.PolicySkip, nil, discardLogger())
		err := p.Run(context.Background(), sched, func(u models.WorkUnit) error {
			return em.Emit(context.Background(), u)
		})
		require.NoError(t, err)
		return buf.String()
	}

	first := runOnce()
	second := runOnce()
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

// Full-pipeline scenario: 30s video at 10s interval, all overlays readable.
func TestScenarioAllSamplesParse(t *testing.T) {
	sched := mustSchedule(t, 30*time.Second)

	engine := &fakeEngine{text: func(int) string { return `51°25'46"N 0°19'25"E` }}
	p := New(&fakeSource{}, engine, testConfig(4), discardLogger())

	var buf bytes.Buffer
	em := NewEmitter(&buf, config.PolicyWarn, nil, discardLogger())
	err := p.Run(context.Background(), sched, func(u models.WorkUnit) error {
		return em.Emit(context.Background(), u)
	})
	require.NoError(t, err)

	want := "51.429444,0.323611\n51.429444,0.323611\n51.429444,0.323611\n51.429444,0.323611\n"
	assert.Equal(t, want, buf.String())
	emitted, skipped := em.Summary()
	assert.Equal(t, 4, emitted)
	assert.Equal(t, 0, skipped)
}

// One sample's OCR is garbage: its line is simply absent, no placeholder.
func TestScenarioGarbageSampleSkipped(t *testing.T) {
	sched := mustSchedule(t, 30*time.Second)

	engine := &fakeEngine{text: func(idx int) string {
		if idx == 1 {
			return "###"
		}
		return fmt.Sprintf(`N51°25 %d” E0°19 20”`, 40+idx)
	}}
	p := New(&fakeSource{}, engine, testConfig(4), discardLogger())

	var buf bytes.Buffer
	em := NewEmitter(&buf, config.PolicySkip, nil, discardLogger())
	err := p.Run(context.Background(), sched, func(u models.WorkUnit) error {
		return em.Emit(context.Background(), u)
	})
	require.NoError(t, err)

	want := "51.427778,0.322222\n51.428333,0.322222\n51.428611,0.322222\n"
	assert.Equal(t, want, buf.String())
	emitted, skipped := em.Summary()
	assert.Equal(t, 3, emitted)
	assert.Equal(t, 1, skipped)
}
