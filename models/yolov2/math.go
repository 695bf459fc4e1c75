package yolov2

import "github.com/chewxy/math32"

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// softmax writes the normalized exponentials of v into dst, subtracting the
// maximum first so large logits do not overflow. dst and v must have the
// same length.
func softmax(dst, v []float32) {
	if len(v) == 0 {
		return
	}
	maxV := v[0]
	for _, x := range v[1:] {
		maxV = max(maxV, x)
	}

	var sum float32
	for i, x := range v {
		e := math32.Exp(x - maxV)
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
}

// argmax returns the index of the first maximum of v, or -1 when v is empty.
func argmax(v []float32) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}
