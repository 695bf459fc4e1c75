// Package images - Image geometry and loading utilities
package images

import (
	"fmt"
	"image"
)

// DegenerateIoU is the value CalculateIoU reports when two boxes have an
// empty union. It is larger than any usable IoU threshold, so a degenerate
// box is always suppressed by NMS.
const DegenerateIoU float32 = 100

// Rect is a lightweight bounding box.
type Rect struct {
	// X2,Y2 are inclusive pixel indices (unlike image.Rectangle).
	X1, Y1, X2, Y2 int
}

// Dx returns the width of the box in pixels, counting both edges.
func (r Rect) Dx() int {
	return r.X2 - r.X1 + 1
}

// Dy returns the height of the box in pixels, counting both edges.
func (r Rect) Dy() int {
	return r.Y2 - r.Y1 + 1
}

// Area returns Dx*Dy. It is not clamped: an inverted box has a zero or
// negative area.
func (r Rect) Area() int {
	return r.Dx() * r.Dy()
}

// Rectangle converts the box to an image.Rectangle with exclusive max
// coordinates, suitable for drawing.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2+1, r.Y2+1)
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// Coordinates are treated as inclusive pixel indices, so a box from 0 to 9
// covers ten pixels:
//
//	intersection = max(0, ix2-ix1+1) * max(0, iy2-iy1+1)
//	union        = area(r) + area(o) - intersection
//
// The result is symmetric in its arguments and equals 1 for a box compared
// with itself. When the union is zero (only possible for degenerate boxes)
// DegenerateIoU is returned instead of dividing by zero.
//
// Arguments:
//   - r: The first box.
//   - o: The other box.
//
// Returns:
//   - The IoU score, normally in [0, 1].
//
// Example:
//
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 9, Y2: 9}
//	b := Rect{X1: 5, Y1: 5, X2: 14, Y2: 14}
//	iou := CalculateIoU(a, b) // 25 / 175 ≈ 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interArea := max(0, ix2-ix1+1) * max(0, iy2-iy1+1)
	unionArea := r.Area() + o.Area() - interArea
	if unionArea == 0 {
		return DegenerateIoU
	}

	return float32(interArea) / float32(unionArea)
}
