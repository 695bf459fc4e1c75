package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		r1       Rect
		r2       Rect
		expected float32
	}{
		{
			name:     "Identical rectangles",
			r1:       Rect{0, 0, 99, 99},
			r2:       Rect{0, 0, 99, 99},
			expected: 1.0,
		},
		{
			name:     "No overlap",
			r1:       Rect{0, 0, 99, 99},
			r2:       Rect{200, 200, 299, 299},
			expected: 0.0,
		},
		{
			name:     "Adjacent edges",
			r1:       Rect{0, 0, 99, 99},
			r2:       Rect{100, 0, 199, 99},
			expected: 0.0,
		},
		{
			name:     "Shared edge column",
			r1:       Rect{0, 0, 9, 9},
			r2:       Rect{9, 0, 18, 9},
			expected: 10.0 / 190.0, // one shared 1x10 column
		},
		{
			name:     "Quarter overlap",
			r1:       Rect{0, 0, 9, 9},
			r2:       Rect{5, 5, 14, 14},
			expected: 25.0 / 175.0,
		},
		{
			name:     "One inside other",
			r1:       Rect{0, 0, 99, 99},
			r2:       Rect{25, 25, 74, 74},
			expected: 0.25,
		},
		{
			name:     "Single pixel with itself",
			r1:       Rect{3, 3, 3, 3},
			r2:       Rect{3, 3, 3, 3},
			expected: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.r1, tt.r2)
			assert.InDelta(t, tt.expected, result, 1e-6)

			// IoU(A, B) must equal IoU(B, A).
			assert.Equal(t, result, CalculateIoU(tt.r2, tt.r1))
		})
	}
}

// TestIoU_vs_ImageRectangle compares our implementation against image.Rectangle
// once the inclusive corners are converted to exclusive ones.
func TestIoU_vs_ImageRectangle(t *testing.T) {
	testCases := []struct {
		name string
		r1   Rect
		r2   Rect
	}{
		{"No overlap", Rect{0, 0, 100, 100}, Rect{200, 200, 300, 300}},
		{"Partial overlap", Rect{0, 0, 100, 100}, Rect{50, 50, 150, 150}},
		{"Full overlap", Rect{50, 50, 150, 150}, Rect{50, 50, 150, 150}},
		{"One inside other", Rect{0, 0, 100, 100}, Rect{25, 25, 75, 75}},
		{"Large boxes", Rect{0, 0, 1919, 1079}, Rect{960, 540, 1919, 1079}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			customResult := CalculateIoU(tc.r1, tc.r2)
			imageResult := imageRectangleIoU(tc.r1.Rectangle(), tc.r2.Rectangle())
			assert.InDelta(t, imageResult, customResult, 1e-4)
		})
	}
}

// imageRectangleIoU implements IoU using Go's standard library image.Rectangle
func imageRectangleIoU(r1, r2 image.Rectangle) float32 {
	intersect := r1.Intersect(r2)
	if intersect.Empty() {
		return 0.0
	}

	intersectArea := intersect.Dx() * intersect.Dy()
	union := r1.Dx()*r1.Dy() + r2.Dx()*r2.Dy() - intersectArea

	return float32(intersectArea) / float32(union)
}

// TestIoU_Degenerate covers boxes whose union is empty.
func TestIoU_Degenerate(t *testing.T) {
	inverted := Rect{X1: 0, Y1: 0, X2: -1, Y2: -1}

	assert.Equal(t, 0, inverted.Area())
	assert.Equal(t, DegenerateIoU, CalculateIoU(inverted, inverted))
	assert.Greater(t, CalculateIoU(inverted, inverted), float32(1))
}

// TestIoU_EdgeCases checks that valid but extreme boxes stay within [0, 1].
func TestIoU_EdgeCases(t *testing.T) {
	tests := []struct {
		name string
		r1   Rect
		r2   Rect
	}{
		{"Single pixel inside box", Rect{0, 0, 0, 0}, Rect{0, 0, 100, 100}},
		{"Single pixel outside box", Rect{0, 0, 100, 100}, Rect{150, 150, 150, 150}},
		{"Negative coordinates", Rect{-100, -100, 0, 0}, Rect{-50, -50, 50, 50}},
		{"Very large coordinates", Rect{0, 0, 29999, 29999}, Rect{15000, 15000, 29999, 29999}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.r1, tt.r2)
			assert.GreaterOrEqual(t, result, float32(0))
			assert.LessOrEqual(t, result, float32(1))
			assert.Equal(t, result, CalculateIoU(tt.r2, tt.r1))
		})
	}
}

func TestRectGeometry(t *testing.T) {
	r := Rect{X1: 10, Y1: 20, X2: 19, Y2: 24}

	assert.Equal(t, 10, r.Dx())
	assert.Equal(t, 5, r.Dy())
	assert.Equal(t, 50, r.Area())
	assert.Equal(t, image.Rect(10, 20, 20, 25), r.Rectangle())
	assert.Equal(t, "(10,20)-(19,24)", r.String())
}
