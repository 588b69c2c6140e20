package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bdougie/dash2gps/internal/config"
	"github.com/bdougie/dash2gps/internal/models"
)

// TrackStore persists emitted coordinates. Satisfied by storage.TrackStore.
type TrackStore interface {
	AddPoint(ctx context.Context, unit models.WorkUnit) error
}

// Emitter is the ordered output sink: one "latitude,longitude" line per
// successful sample. Failed units are handled by policy and never produce a
// partial line. Output formatting is fixed so identical runs are
// byte-identical.
type Emitter struct {
	w       io.Writer
	policy  string
	store   TrackStore
	log     *slog.Logger
	emitted int
	skipped int
}

// NewEmitter writes coordinate lines to w. store may be nil; when set, every
// emitted coordinate is also persisted.
func NewEmitter(w io.Writer, policy string, store TrackStore, logger *slog.Logger) *Emitter {
	return &Emitter{w: w, policy: policy, store: store, log: logger}
}

func (e *Emitter) Emit(ctx context.Context, unit models.WorkUnit) error {
	if unit.Failed() {
		switch e.policy {
		case config.PolicyAbort:
			return unit.Err
		case config.PolicyWarn:
			e.log.Warn("sample skipped",
				"index", unit.Index,
				"offset", unit.Offset,
				"err", unit.Err,
			)
		}
		e.skipped++
		return nil
	}

	if _, err := fmt.Fprintln(e.w, unit.Coord.String()); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if e.store != nil {
		if err := e.store.AddPoint(ctx, unit); err != nil {
			e.log.Warn("track point not persisted", "index", unit.Index, "err", err)
		}
	}
	e.emitted++
	return nil
}

// Summary reports how many samples produced output lines and how many were
// skipped.
func (e *Emitter) Summary() (emitted, skipped int) {
	return e.emitted, e.skipped
}
