// Package yolov2 - Tiny YOLOv2 output decoding and postprocessing.
package yolov2

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/models"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// coordLimit bounds box corners before the integer conversion, which is
// undefined for values outside the int range (exp overflow yields +Inf).
const coordLimit = 1 << 30

// Decoder converts raw predictions into candidate boxes. It holds only
// immutable configuration and is safe for concurrent use.
type Decoder struct {
	layout   Layout
	anchors  model.Anchors
	cellSize float32
	classes  models.OutputClassSet
}

// NewDecoder validates cfg and prepares a decoder for its grid.
//
// Arguments:
//   - cfg: The model configuration.
//   - classes: The class catalog, one name per class logit.
//
// Returns:
//   - The decoder.
//   - model.ErrInvalidConfig if the configuration is inconsistent.
func NewDecoder(cfg model.Config, classes models.OutputClassSet) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if classes.Len() == 0 {
		return nil, errors.Wrap(model.ErrInvalidConfig, "class catalog is empty")
	}
	anchors, err := cfg.AnchorSet()
	if err != nil {
		return nil, err
	}

	return &Decoder{
		layout: Layout{
			GridSize: cfg.GridSize,
			Boxes:    len(anchors),
			Channels: model.BoxParams + classes.Len(),
		},
		anchors:  anchors,
		cellSize: cfg.CellPixelSize(),
		classes:  classes,
	}, nil
}

// Layout returns the raw prediction layout the decoder expects.
func (d *Decoder) Layout() Layout {
	return d.layout
}

// Classes returns the class catalog used for labels.
func (d *Decoder) Classes() models.OutputClassSet {
	return d.classes
}

// Decode converts every box record of raw into a candidate, in row-major
// cell order and then box order. It does not filter: the result always holds
// G×G×B candidates. Boxes are in pixels of the resized input.
//
// For a record (tx, ty, tw, th, tc, logits...) at row r, column c, box b:
//
//	center = ((c, r) + sigmoid(tx, ty)) × cell
//	size   = exp(tw, th) × anchor[b] × cell
//	score  = sigmoid(tc) × max(softmax(logits))
//
// Arguments:
//   - raw: The raw prediction, [G*G*B*C] or [G, G, B, C] float32.
//
// Returns:
//   - The candidates.
//   - ErrShapeMismatch if raw does not match the layout. No partial output is
//     produced.
func (d *Decoder) Decode(raw *tensor.Dense) ([]postprocess.Result, error) {
	grid, err := NewGrid(raw, d.layout)
	if err != nil {
		return nil, err
	}

	g := d.layout.GridSize
	numClasses := d.layout.Channels - model.BoxParams
	probs := make([]float32, numClasses)
	results := make([]postprocess.Result, 0, d.layout.Candidates())

	for row := 0; row < g; row++ {
		for col := 0; col < g; col++ {
			for b, anchor := range d.anchors {
				rec := grid.Box(row, col, b)
				tx, ty, tw, th, tc := rec[0], rec[1], rec[2], rec[3], rec[4]

				centerX := (float32(col) + sigmoid(tx)) * d.cellSize
				centerY := (float32(row) + sigmoid(ty)) * d.cellSize
				width := math32.Exp(tw) * anchor.W * d.cellSize
				height := math32.Exp(th) * anchor.H * d.cellSize
				confidence := sigmoid(tc)

				softmax(probs, rec[model.BoxParams:])
				best := argmax(probs)

				results = append(results, postprocess.Result{
					Box: images.Rect{
						X1: toPixel(centerX - width/2),
						Y1: toPixel(centerY - height/2),
						X2: toPixel(centerX + width/2),
						Y2: toPixel(centerY + height/2),
					},
					Score: confidence * probs[best],
					Class: best,
					Label: d.classes.Name(best),
				})
			}
		}
	}

	return results, nil
}

// toPixel truncates toward zero after bounding v to the int-safe range.
func toPixel(v float32) int {
	switch {
	case math32.IsNaN(v):
		return 0
	case v > coordLimit:
		return coordLimit
	case v < -coordLimit:
		return -coordLimit
	}
	return int(v)
}

// Decode builds a Decoder for cfg and decodes raw with it.
func Decode(raw *tensor.Dense, cfg *model.Config, classes models.OutputClassSet) ([]postprocess.Result, error) {
	if cfg == nil {
		return nil, errors.Wrap(model.ErrInvalidConfig, "config is nil")
	}
	d, err := NewDecoder(*cfg, classes)
	if err != nil {
		return nil, err
	}
	return d.Decode(raw)
}
