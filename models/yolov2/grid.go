package yolov2

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrShapeMismatch is returned when a raw prediction does not hold exactly
// G×G×B×C float32 values.
var ErrShapeMismatch = errors.New("raw prediction shape mismatch")

// Layout describes the logical [G, G, B, C] shape of a raw prediction.
type Layout struct {
	// GridSize is G, the number of cells per side.
	GridSize int
	// Boxes is B, the number of anchor slots per cell.
	Boxes int
	// Channels is C, the values per box: 4 coordinates, objectness, class logits.
	Channels int
}

// Len returns G×G×B×C.
func (l Layout) Len() int {
	return l.GridSize * l.GridSize * l.Boxes * l.Channels
}

// Candidates returns G×G×B, the number of boxes a decode emits.
func (l Layout) Candidates() int {
	return l.GridSize * l.GridSize * l.Boxes
}

// Shape returns the logical tensor shape.
func (l Layout) Shape() tensor.Shape {
	return tensor.Shape{l.GridSize, l.GridSize, l.Boxes, l.Channels}
}

// Index maps (row, col, box, channel) to the offset in the flat, row-major data.
func (l Layout) Index(row, col, box, channel int) int {
	return ((row*l.GridSize+col)*l.Boxes+box)*l.Channels + channel
}

// Grid is a read-only view of a raw prediction in [G, G, B, C] order.
type Grid struct {
	layout Layout
	data   []float32
}

// NewGrid validates raw against the layout and wraps its data. Any shape
// with exactly Len float32 elements is accepted, so a flat [G*G*B*C]
// tensor and a [G, G, B, C] one are read the same way.
//
// Arguments:
//   - raw: The raw prediction of the network.
//   - layout: The expected logical shape.
//
// Returns:
//   - The grid view.
//   - ErrShapeMismatch if raw is nil, not float32, or has the wrong size.
func NewGrid(raw *tensor.Dense, layout Layout) (*Grid, error) {
	if raw == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "raw prediction is nil")
	}
	if raw.Dtype() != tensor.Float32 {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected float32 data, got %v", raw.Dtype())
	}
	if raw.IsView() {
		materialized, ok := raw.Materialize().(*tensor.Dense)
		if !ok {
			return nil, errors.Wrap(ErrShapeMismatch, "cannot materialize raw prediction view")
		}
		raw = materialized
	}

	data, ok := raw.Data().([]float32)
	if !ok || len(data) != layout.Len() {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected %d values %v, got shape %v",
			layout.Len(), layout.Shape(), raw.Shape())
	}

	return &Grid{layout: layout, data: data}, nil
}

// Layout returns the grid layout.
func (g *Grid) Layout() Layout {
	return g.layout
}

// At returns one value of the prediction.
func (g *Grid) At(row, col, box, channel int) float32 {
	return g.data[g.layout.Index(row, col, box, channel)]
}

// Box returns the C values of one box record. The slice aliases the raw
// prediction and must not be modified.
func (g *Grid) Box(row, col, box int) []float32 {
	start := g.layout.Index(row, col, box, 0)
	return g.data[start : start+g.layout.Channels : start+g.layout.Channels]
}
