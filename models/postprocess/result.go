// Package postprocess - Postprocessing utilities for models.
package postprocess

import "github.com/nvr-ai/go-tinyyolo/images"

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result, in pixels of the resized input.
	Box images.Rect
	// The combined score of the result: objectness × best class probability.
	Score float32
	// The predicted class index of the result.
	Class int
	// The label of the predicted class.
	Label string
}

// Detection is the wire form of a Result.
type Detection struct {
	Left   int     `json:"left"`
	Top    int     `json:"top"`
	Right  int     `json:"right"`
	Bottom int     `json:"bottom"`
	Score  float32 `json:"score"`
	Label  string  `json:"label"`
}

// Detection returns the wire form of the result.
func (r Result) Detection() Detection {
	return Detection{
		Left:   r.Box.X1,
		Top:    r.Box.Y1,
		Right:  r.Box.X2,
		Bottom: r.Box.Y2,
		Score:  r.Score,
		Label:  r.Label,
	}
}

// Detections converts results to their wire form. The result is never nil so
// that an empty list encodes as [] rather than null.
func Detections(results []Result) []Detection {
	out := make([]Detection, 0, len(results))
	for _, r := range results {
		out = append(out, r.Detection())
	}
	return out
}
