package images

import (
	"image"
	"math"

	"github.com/chewxy/math32"
)

// ScaleFactors returns the per-axis factors that map original image pixels
// onto the model input, i.e. resized / original.
//
// Arguments:
//   - resized: The model input size.
//   - original: The size of the frame before resizing.
//
// Returns:
//   - scaleW, scaleH: The factors, or 0 for an axis whose original size is not positive.
func ScaleFactors(resized, original image.Point) (scaleW, scaleH float32) {
	if original.X > 0 {
		scaleW = float32(resized.X) / float32(original.X)
	}
	if original.Y > 0 {
		scaleH = float32(resized.Y) / float32(original.Y)
	}
	return scaleW, scaleH
}

// OriginalSize recovers the original frame size from the model input size and
// the scale factors that produced it.
//
// Returns the zero point when either factor is not a positive finite number.
func OriginalSize(resized image.Point, scaleW, scaleH float32) image.Point {
	if !validScale(scaleW) || !validScale(scaleH) {
		return image.Point{}
	}
	return image.Point{
		X: int(math.Round(float64(float32(resized.X) / scaleW))),
		Y: int(math.Round(float64(float32(resized.Y) / scaleH))),
	}
}

// Rescale maps a box from model input space back to original image space.
//
// Coordinates are divided by the scale factors (original = resized / scale)
// and, when bounds is non-zero, clamped to [0, bounds.X-1] x [0, bounds.Y-1]
// so that decode overshoot near the frame edges never leaves the image.
//
// Arguments:
//   - box: The box in model input coordinates.
//   - scaleW: resized width / original width.
//   - scaleH: resized height / original height.
//   - bounds: The original image size, or the zero point to skip clamping.
//
// Returns:
//   - The box in original image coordinates.
//
// Example Usage:
// ```go
//
//	box := Rescale(Rect{X1: 100, Y1: 100, X2: 200, Y2: 200}, 2, 2, image.Point{X: 320, Y: 320})
//	// box == Rect{X1: 50, Y1: 50, X2: 100, Y2: 100}
//
// ```
func Rescale(box Rect, scaleW, scaleH float32, bounds image.Point) Rect {
	out := Rect{
		X1: box.X1 / scaleW,
		Y1: box.Y1 / scaleH,
		X2: box.X2 / scaleW,
		Y2: box.Y2 / scaleH,
	}
	if bounds.X <= 0 || bounds.Y <= 0 {
		return out
	}
	return out.Clip(0, 0, float32(bounds.X-1), float32(bounds.Y-1))
}

func validScale(s float32) bool {
	return s > 0 && !math32.IsInf(s, 0) && !math32.IsNaN(s)
}
