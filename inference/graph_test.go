package inference

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// newDoublingBackend builds a graph that doubles a [1, 2, 2, 3] input and
// flattens it.
func newDoublingBackend(t *testing.T) *GraphBackend {
	g := G.NewGraph()
	x := G.NewTensor(g, tensor.Float32, 4, G.WithShape(1, 2, 2, 3), G.WithName("x"))
	sum := G.Must(G.Add(x, x))
	out := G.Must(G.Reshape(sum, tensor.Shape{12}))

	b, err := NewGraphBackend(g, x, out)
	require.NoError(t, err)
	return b
}

func TestGraphBackendPredict(t *testing.T) {
	b := newDoublingBackend(t)
	defer b.Close()

	input := tensor.New(tensor.WithShape(1, 2, 2, 3), tensor.WithBacking(tensor.Range(tensor.Float32, 0, 12)))

	first, err := b.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{12}, first.Shape())
	assert.Equal(t, []float32{0, 2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 22}, first.Data())

	// A second run must not alias the first result.
	ones := tensor.New(tensor.WithShape(1, 2, 2, 3), tensor.WithBacking([]float32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}))
	second, err := b.Predict(context.Background(), ones)
	require.NoError(t, err)
	assert.Equal(t, float32(2), second.Data().([]float32)[0])
	assert.Equal(t, float32(22), first.Data().([]float32)[11])
}

func TestGraphBackendErrors(t *testing.T) {
	_, err := NewGraphBackend(nil, nil, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	b := newDoublingBackend(t)

	wrong := tensor.New(tensor.WithShape(1, 3, 3, 3), tensor.Of(tensor.Float32))
	_, err = b.Predict(context.Background(), wrong)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := tensor.New(tensor.WithShape(1, 2, 2, 3), tensor.Of(tensor.Float32))
	_, err = b.Predict(ctx, ok)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	_, err = b.Predict(context.Background(), ok)
	assert.ErrorIs(t, err, ErrClosed)
}
