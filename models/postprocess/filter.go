package postprocess

// Threshold keeps the results whose score is strictly greater than the
// threshold, in their original order. The input is not modified.
//
// Arguments:
//   - results: The candidate detections.
//   - threshold: The exclusive lower bound on Score.
//
// Returns:
//   - The surviving detections.
func Threshold(results []Result, threshold float32) []Result {
	kept := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Score > threshold {
			kept = append(kept, r)
		}
	}
	return kept
}
