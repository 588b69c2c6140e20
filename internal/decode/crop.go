package decode

import (
	"bytes"
	"image"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/bdougie/dash2gps/internal/config"
)

// Tesseract reads small overlay glyphs much more reliably when they are
// upscaled; 2x is enough for typical 1080p dashcam footage.
const ocrScale = 2

// CropRect resolves fractional crop coordinates against a frame's bounds.
func CropRect(bounds image.Rectangle, c config.Crop) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	return image.Rect(
		bounds.Min.X+int(w*c.Left),
		bounds.Min.Y+int(h*c.Top),
		bounds.Min.X+int(math.Ceil(w*c.Right)),
		bounds.Min.Y+int(math.Ceil(h*c.Bottom)),
	)
}

// Prepare cuts the telemetry overlay out of a frame and conditions it for
// OCR: grayscale and an upscale in one Catmull-Rom resampling pass.
func Prepare(frame image.Image, c config.Crop) *image.Gray {
	src := CropRect(frame.Bounds(), c)
	dst := image.NewGray(image.Rect(0, 0, src.Dx()*ocrScale, src.Dy()*ocrScale))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), frame, src, xdraw.Src, nil)
	return dst
}

// EncodePNG serializes an image for engines that take raw file bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
