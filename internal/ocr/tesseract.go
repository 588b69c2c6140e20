package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"

	"github.com/bdougie/dash2gps/internal/config"
	"github.com/bdougie/dash2gps/internal/decode"
)

// Tesseract recognizes the overlay with a local Tesseract installation. A
// fresh gosseract client is created per call: clients are not safe for
// concurrent use, and the worker pool is the concurrency limit anyway.
type Tesseract struct {
	language  string
	whitelist string
}

func NewTesseract(cfg config.OCR) *Tesseract {
	return &Tesseract{language: cfg.Language, whitelist: cfg.Whitelist}
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.language != "" {
		if err := client.SetLanguage(t.language); err != nil {
			return Result{}, fmt.Errorf("set language %q: %w", t.language, err)
		}
	}
	if t.whitelist != "" {
		if err := client.SetWhitelist(t.whitelist); err != nil {
			return Result{}, fmt.Errorf("set whitelist: %w", err)
		}
	}
	// The overlay is one line of text across the crop.
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return Result{}, fmt.Errorf("set page segmentation: %w", err)
	}

	data, err := decode.EncodePNG(img)
	if err != nil {
		return Result{}, fmt.Errorf("encode crop: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return Result{}, fmt.Errorf("load crop: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return Result{}, fmt.Errorf("recognize: %w", err)
	}
	return Result{Text: text, Confidence: meanConfidence(client)}, nil
}

// meanConfidence averages per-word confidences. Tesseract exposes them
// through the bounding-box iterator; when that fails or the crop had no
// words, the text result stands on its own.
func meanConfidence(client *gosseract.Client) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 100
	}
	var sum float64
	for _, box := range boxes {
		sum += box.Confidence
	}
	return sum / float64(len(boxes))
}
