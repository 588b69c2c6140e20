// Package ocr is the boundary to the character-recognition engines. Engines
// are black boxes: cropped raster in, raw text plus a quality signal out.
package ocr

import (
	"context"
	"image"
)

// Result is the raw recognition output for one cropped frame.
type Result struct {
	Text string
	// Confidence is the engine's mean word confidence on a 0-100 scale.
	// Engines that report no calibrated confidence return 100.
	Confidence float64
}

// Engine recognizes text in a prepared overlay image. Implementations must
// be safe for concurrent calls; each call is independent.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (Result, error)
}
