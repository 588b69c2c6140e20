// Package decode is the boundary to the external frame-decoding service.
// Frames come out of ffmpeg either one at a time by seeking to a sample
// offset, or in a single pass over the whole video (bulk mode).
package decode

import (
	"context"
	"fmt"
	"image"
	"time"
)

// FrameSource hands out one raster frame per sample offset.
type FrameSource interface {
	// Duration reports the length of the video stream.
	Duration(ctx context.Context) (time.Duration, error)
	// Frame returns the decoded frame at or near the given offset. A
	// *FetchError means this one offset failed; the rest of the video is
	// still usable.
	Frame(ctx context.Context, offset time.Duration) (image.Image, error)
}

// FetchError marks a single sample whose frame could not be obtained, for
// example an offset past the end of the actual stream. Non-fatal to the run.
type FetchError struct {
	Offset time.Duration
	Cause  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch frame at %v: %v", e.Offset, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}
