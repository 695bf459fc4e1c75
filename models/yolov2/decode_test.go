package yolov2

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/models"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// rawPrediction is a mutable [13, 13, 5, 25] prediction for tests.
type rawPrediction []float32

func newRawPrediction() rawPrediction {
	return make(rawPrediction, vocLayout.Len())
}

func (p rawPrediction) set(row, col, box, channel int, v float32) {
	p[vocLayout.Index(row, col, box, channel)] = v
}

// fill sets one channel of every box record.
func (p rawPrediction) fill(channel int, v float32) {
	for i := channel; i < len(p); i += vocLayout.Channels {
		p[i] = v
	}
}

func (p rawPrediction) tensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(13, 13, 5, 25), tensor.WithBacking([]float32(p)))
}

func (p rawPrediction) flat() *tensor.Dense {
	return tensor.New(tensor.WithShape(len(p)), tensor.WithBacking([]float32(p)))
}

func expf(x float32) float32 {
	return math32.Exp(x)
}

func newVOCDecoder(t testing.TB) *Decoder {
	d, err := NewDecoder(model.DefaultConfig(), models.PascalVOCClasses)
	require.NoError(t, err)
	return d
}

func TestDecodeZeroPrediction(t *testing.T) {
	results, err := newVOCDecoder(t).Decode(newRawPrediction().tensor())
	require.NoError(t, err)
	require.Len(t, results, 845)

	for _, r := range results {
		// sigmoid(0) × uniform 1/20
		assert.InDelta(t, 0.025, r.Score, 1e-6)
		assert.Equal(t, 0, r.Class)
		assert.Equal(t, "aeroplane", r.Label)
	}
}

func TestDecodeGeometry(t *testing.T) {
	results, err := newVOCDecoder(t).Decode(newRawPrediction().tensor())
	require.NoError(t, err)

	// Row-major cells, then boxes: (row 2, col 3, box 1).
	r := results[(2*13+3)*5+1]
	// center (3.5, 2.5) cells, size 3.42 × 4.41 cells, 32 px per cell.
	assert.Equal(t, images.Rect{X1: 57, Y1: 9, X2: 166, Y2: 150}, r.Box)

	// Box 0 of the first cell extends past the top-left edge.
	assert.Equal(t, images.Rect{X1: -1, Y1: -3, X2: 33, Y2: 35}, results[0].Box)
}

func TestDecodeOffsetsAndClasses(t *testing.T) {
	raw := newRawPrediction()
	raw.set(4, 9, 3, 0, 2)    // tx
	raw.set(4, 9, 3, 1, -1)   // ty
	raw.set(4, 9, 3, 2, 0.5)  // tw
	raw.set(4, 9, 3, 3, -0.5) // th
	raw.set(4, 9, 3, 4, 3)    // tc
	raw.set(4, 9, 3, 5+11, 8) // dog

	results, err := newVOCDecoder(t).Decode(raw.tensor())
	require.NoError(t, err)

	r := results[(4*13+9)*5+3]
	assert.Equal(t, 11, r.Class)
	assert.Equal(t, "dog", r.Label)

	expectedProb := float32(1 / (1 + 19*expf(-8)))
	assert.InDelta(t, sigmoid(3)*expectedProb, r.Score, 1e-5)

	cx := (9 + sigmoid(2)) * 32
	cy := (4 + sigmoid(-1)) * 32
	w := expf(0.5) * 9.42 * 32
	h := expf(-0.5) * 5.11 * 32
	assert.Equal(t, int(cx-w/2), r.Box.X1)
	assert.Equal(t, int(cy-h/2), r.Box.Y1)
	assert.Equal(t, int(cx+w/2), r.Box.X2)
	assert.Equal(t, int(cy+h/2), r.Box.Y2)
}

func TestDecodeFlatAndShapedAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	raw := newRawPrediction()
	for i := range raw {
		raw[i] = rng.Float32()*6 - 3
	}

	d := newVOCDecoder(t)
	flat, err := d.Decode(raw.flat())
	require.NoError(t, err)
	shaped, err := d.Decode(raw.tensor())
	require.NoError(t, err)

	assert.Equal(t, flat, shaped)
	for _, r := range flat {
		assert.GreaterOrEqual(t, r.Score, float32(0))
		assert.LessOrEqual(t, r.Score, float32(1))
	}
}

func TestDecodeShapeMismatch(t *testing.T) {
	raw := tensor.New(tensor.WithShape(13, 13, 125+1), tensor.WithBacking(make([]float32, 13*13*126)))

	results, err := newVOCDecoder(t).Decode(raw)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Nil(t, results)
}

func TestDecodeOverflowIsBounded(t *testing.T) {
	raw := newRawPrediction()
	raw.set(0, 0, 0, 2, 200) // exp overflows to +Inf

	results, err := newVOCDecoder(t).Decode(raw.tensor())
	require.NoError(t, err)
	assert.Equal(t, -coordLimit, results[0].Box.X1)
	assert.Equal(t, coordLimit, results[0].Box.X2)
}

func TestDecodeFunction(t *testing.T) {
	cfg := model.DefaultConfig()
	results, err := Decode(newRawPrediction().flat(), &cfg, models.PascalVOCClasses)
	require.NoError(t, err)
	assert.Len(t, results, 845)

	_, err = Decode(newRawPrediction().flat(), nil, models.PascalVOCClasses)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	cfg.GridSize = 0
	_, err = Decode(newRawPrediction().flat(), &cfg, models.PascalVOCClasses)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}

func TestNewDecoderCustomClasses(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.ClassNames = []string{"cone", "barrel"}
	classes, err := cfg.ClassSet()
	require.NoError(t, err)

	d, err := NewDecoder(cfg, classes)
	require.NoError(t, err)
	assert.Equal(t, Layout{GridSize: 13, Boxes: 5, Channels: 7}, d.Layout())

	raw := tensor.New(tensor.WithShape(13*13*5*7), tensor.WithBacking(make([]float32, 13*13*5*7)))
	results, err := d.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "cone", results[0].Label)
	assert.InDelta(t, 0.25, results[0].Score, 1e-6)

	_, err = NewDecoder(cfg, models.OutputClassSet{})
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}

func BenchmarkDecode(b *testing.B) {
	rng := rand.New(rand.NewSource(42))
	raw := newRawPrediction()
	for i := range raw {
		raw[i] = rng.Float32()*4 - 2
	}
	input := raw.tensor()
	d := newVOCDecoder(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.Decode(input); err != nil {
			b.Fatal(err)
		}
	}
}
