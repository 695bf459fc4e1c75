// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"github.com/nvr-ai/go-tinyyolo/images"
)

// DefaultIoUThreshold is the overlap above which NMS suppresses a box.
const DefaultIoUThreshold float32 = 0.3

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `json:"iouThreshold" yaml:"iou_threshold"` // Overlap threshold for suppression.
	ClassAware   bool    `json:"classAware" yaml:"class_aware"`     // If true, suppress only within same class.
}

// ApplyGreedyNMS performs greedy Non-Maximum Suppression.
//
// Every candidate is compared with every detection kept so far and dropped as
// soon as one of them overlaps it by more than the threshold. The first
// detection is always kept and the kept detections preserve their input order.
// A pair with an empty union scores images.DegenerateIoU, so the lower-ranked
// box of such a pair is always suppressed.
//
// Arguments:
//   - detections: Slice of detections sorted by descending score.
//   - config: NMS configuration. nil means class-agnostic suppression at
//     DefaultIoUThreshold.
//
// Returns:
//   - Filtered slice of detections. If no detections are provided, returns nil.
func ApplyGreedyNMS(detections []Result, config *NMSConfig) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}

	if config == nil {
		config = &NMSConfig{IoUThreshold: DefaultIoUThreshold}
	}

	filtered := make([]Result, 0, n)
	filtered = append(filtered, detections[0])

	for _, candidate := range detections[1:] {
		if !suppressed(candidate, filtered, config) {
			filtered = append(filtered, candidate)
		}
	}

	return filtered
}

// suppressed reports whether any kept detection overlaps the candidate by more
// than the threshold.
func suppressed(candidate Result, kept []Result, config *NMSConfig) bool {
	for _, k := range kept {
		if config.ClassAware && k.Class != candidate.Class {
			continue
		}
		if images.CalculateIoU(candidate.Box, k.Box) > config.IoUThreshold {
			return true
		}
	}
	return false
}
