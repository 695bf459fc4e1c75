package postprocess

import "github.com/nvr-ai/go-tinyyolo/images"

// Rescale maps boxes from the resized input (fromW × fromH) to another
// resolution (toW × toH), clamping them to the target bounds. Inputs with a
// non-positive size are returned unchanged. Far corners are inclusive, so they
// are scaled as the end of their pixel and stepped back by one.
//
// Arguments:
//   - results: Detections in resized-input pixel coordinates.
//   - fromW, fromH: The resized input dimensions.
//   - toW, toH: The target dimensions, usually those of the source image.
//
// Returns:
//   - A new slice with scaled boxes.
func Rescale(results []Result, fromW, fromH, toW, toH int) []Result {
	out := make([]Result, len(results))
	copy(out, results)
	if fromW <= 0 || fromH <= 0 || toW <= 0 || toH <= 0 {
		return out
	}

	sx := float64(toW) / float64(fromW)
	sy := float64(toH) / float64(fromH)
	for i := range out {
		b := out[i].Box
		out[i].Box = images.Rect{
			X1: clamp(int(float64(b.X1)*sx), 0, toW-1),
			Y1: clamp(int(float64(b.Y1)*sy), 0, toH-1),
			X2: clamp(int(float64(b.X2+1)*sx)-1, 0, toW-1),
			Y2: clamp(int(float64(b.Y2+1)*sy)-1, 0, toH-1),
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
