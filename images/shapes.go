// Package images - Box geometry for detection post-processing.
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Rect is an axis-aligned bounding box in pixel units.
type Rect struct {
	// X1,Y1 is the top-left corner, X2,Y2 the bottom-right corner.
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box, or 0 when it is inverted.
func (r Rect) Width() float32 {
	return max(r.X2-r.X1, 0)
}

// Height returns the vertical extent of the box, or 0 when it is inverted.
func (r Rect) Height() float32 {
	return max(r.Y2-r.Y1, 0)
}

// Area returns the area of the box. Inverted boxes have zero area.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Empty reports whether the box encloses no area.
func (r Rect) Empty() bool {
	return r.Area() <= 0
}

// Finite reports whether every coordinate is a finite number.
func (r Rect) Finite() bool {
	for _, v := range [4]float32{r.X1, r.Y1, r.X2, r.Y2} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Clip constrains the box to [minX, maxX] x [minY, maxY].
//
// The result always satisfies X1 <= X2 and Y1 <= Y2; a box lying entirely
// outside the bounds collapses onto the nearest edge with zero area.
//
// Arguments:
//   - minX, minY: The inclusive lower bounds.
//   - maxX, maxY: The inclusive upper bounds.
//
// Returns:
//   - The clipped box.
func (r Rect) Clip(minX, minY, maxX, maxY float32) Rect {
	out := Rect{
		X1: clamp(r.X1, minX, maxX),
		Y1: clamp(r.Y1, minY, maxY),
		X2: clamp(r.X2, minX, maxX),
		Y2: clamp(r.Y2, minY, maxY),
	}
	if out.X2 < out.X1 {
		out.X2 = out.X1
	}
	if out.Y2 < out.Y1 {
		out.Y2 = out.Y1
	}
	return out
}

// ToRectangle converts the box to an integer image.Rectangle.
//
// Coordinates are truncated towards zero, matching how the drawing code of
// the NPU demos converts float boxes to pixel positions.
func (r Rect) ToRectangle() image.Rectangle {
	return image.Rect(int(r.X1), int(r.Y1), int(r.X2), int(r.Y2)).Canon()
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f), (%.2f, %.2f)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// IoU is the area where the boxes overlap divided by the area they cover
// together, Area of Intersection / Area of Union.
//
//   - 1.0 means the boxes are identical.
//   - 0.0 means they do not overlap at all.
//
// The intersection corners are the maximum of the top-left corners and the
// minimum of the bottom-right corners. When the intersection has no width or
// height the result is 0. Degenerate inputs whose union has no area also
// yield 0 rather than a division by zero.
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0.
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//
//	iou := CalculateIoU(a, b) // intersection=25, union=175, iou=0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return min(interArea/unionArea, 1.0)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
