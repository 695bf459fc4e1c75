package inference

import (
	"context"
	"testing"

	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/model/preprocess"
	"github.com/nvr-ai/go-tinyyolo/models/yolov2"
	"github.com/nvr-ai/go-tinyyolo/profiler"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorgonia.org/tensor"
)

func newTestEngine(t *testing.T, backend Backend, p *profiler.StageProfiler) *Engine {
	e, err := NewEngineBuilder().
		WithConfig(yolov2.TinyVOCConfig()).
		WithBackend(backend).
		WithProfiler(p).
		Build()
	require.NoError(t, err)
	return e
}

func TestEngineDetect(t *testing.T) {
	backend := &fakeBackend{raw: personPrediction()}
	e := newTestEngine(t, backend, nil)

	results, err := e.Detect(context.Background(), testImage(640, 480))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "person", results[0].Label)
	assert.Equal(t, images.Rect{X1: 190, Y1: 188, X2: 225, Y2: 227}, results[0].Box)

	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, tensor.Shape{1, 416, 416, 3}, backend.shape)
}

func TestEngineDetectScaled(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{raw: personPrediction()}, nil)

	results, err := e.DetectScaled(context.Background(), testImage(832, 832))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, images.Rect{X1: 380, Y1: 376, X2: 451, Y2: 455}, results[0].Box)
}

func TestEngineDetectTensor(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{}, nil)

	results, err := e.DetectTensor(personPrediction())
	require.NoError(t, err)
	assert.Len(t, results, 1)

	_, err = e.DetectTensor(tensor.New(tensor.WithShape(10), tensor.Of(tensor.Float32)))
	assert.ErrorIs(t, err, yolov2.ErrShapeMismatch)
}

func TestEngineDetectErrors(t *testing.T) {
	cause := errors.New("session lost")
	e := newTestEngine(t, &fakeBackend{err: cause}, nil)

	_, err := e.Detect(context.Background(), testImage(10, 10))
	assert.True(t, IsBackendError(err))
	assert.ErrorIs(t, err, cause)

	_, err = e.Detect(context.Background(), nil)
	assert.ErrorIs(t, err, preprocess.ErrInvalidInput)
	assert.False(t, IsBackendError(err))

	// A prediction of the wrong size is a shape error, not a backend error.
	short := &fakeBackend{raw: tensor.New(tensor.WithShape(845), tensor.Of(tensor.Float32))}
	e = newTestEngine(t, short, nil)
	_, err = e.Detect(context.Background(), testImage(10, 10))
	assert.ErrorIs(t, err, yolov2.ErrShapeMismatch)
	assert.False(t, IsBackendError(err))
}

func TestEngineDetectCancelled(t *testing.T) {
	backend := &fakeBackend{raw: personPrediction()}
	e := newTestEngine(t, backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := e.Detect(ctx, testImage(10, 10))
	assert.Nil(t, results)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsBackendError(err))
	assert.Zero(t, backend.calls)
}

func TestEngineProfiling(t *testing.T) {
	p := profiler.NewStageProfiler(10)
	e := newTestEngine(t, &fakeBackend{raw: personPrediction()}, p)

	_, err := e.Detect(context.Background(), testImage(100, 100))
	require.NoError(t, err)

	var names []string
	for _, op := range p.Stats().Operations {
		names = append(names, op.Name)
	}
	assert.ElementsMatch(t, []string{
		profiler.StagePreprocess,
		profiler.StageInference,
		profiler.StageDecode,
		profiler.StageThreshold,
		profiler.StageRank,
		profiler.StageNMS,
	}, names)
}

func TestEngineLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e, err := NewEngineBuilder().
		WithConfig(yolov2.TinyVOCConfig()).
		WithBackend(&fakeBackend{raw: personPrediction()}).
		WithLogger(zap.New(core)).
		Build()
	require.NoError(t, err)

	_, err = e.Detect(context.Background(), testImage(10, 10))
	require.NoError(t, err)
	require.Equal(t, 1, logs.FilterMessage("detection complete").Len())
	assert.Equal(t, int64(1), logs.FilterMessage("detection complete").All()[0].ContextMap()["detections"])
}

func TestEngineBuilder(t *testing.T) {
	backend := &fakeBackend{raw: personPrediction()}

	_, err := NewEngineBuilder().WithConfig(yolov2.TinyVOCConfig()).Build()
	assert.ErrorIs(t, err, ErrNotConfigured, "missing backend")

	_, err = NewEngineBuilder().WithBackend(backend).Build()
	assert.ErrorIs(t, err, ErrNotConfigured, "missing model")

	_, err = NewEngineBuilder().WithBackend(nil).Build()
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewEngineBuilder().WithClasses([]string{"cat"}).Build()
	assert.ErrorIs(t, err, ErrNotConfigured)

	bad := yolov2.TinyVOCConfig()
	bad.GridSize = 0
	b := NewEngineBuilder().WithConfig(bad).WithBackend(backend)
	assert.True(t, b.HasError())
	_, err = b.Build()
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	assert.Panics(t, func() { NewEngineBuilder().MustBuild() })

	m, err := yolov2.NewModel(yolov2.TinyCOCOConfig())
	require.NoError(t, err)
	e := NewEngineBuilder().WithModel(m).WithBackend(backend).MustBuild()
	assert.Equal(t, model.Family("coco"), e.Options().Family)
}

func TestEngineWithClasses(t *testing.T) {
	names := []string{"cat", "dog"}
	layout := yolov2.Layout{GridSize: 13, Boxes: 5, Channels: 7}
	data := make([]float32, layout.Len())
	for i := 4; i < len(data); i += layout.Channels {
		data[i] = -20
	}
	data[layout.Index(0, 0, 0, 4)] = 5
	data[layout.Index(0, 0, 0, 6)] = 10
	raw := tensor.New(tensor.WithShape(layout.Len()), tensor.WithBacking(data))

	e, err := NewEngineBuilder().
		WithConfig(yolov2.TinyVOCConfig()).
		WithClasses(names).
		WithBackend(&fakeBackend{raw: raw}).
		Build()
	require.NoError(t, err)

	results, err := e.Detect(context.Background(), testImage(10, 10))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "dog", results[0].Label)
}

func TestEngineClose(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend, nil)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, 1, backend.closed)
}

func TestEngineWithGraphBackend(t *testing.T) {
	g := newDoublingBackend(t)
	e, err := NewEngineBuilder().WithConfig(yolov2.TinyVOCConfig()).WithBackend(g).Build()
	require.NoError(t, err)
	defer e.Close()

	// The doubling graph expects a [1, 2, 2, 3] input, so the engine's
	// [1, 416, 416, 3] tensor is rejected by the backend.
	_, err = e.Detect(context.Background(), testImage(10, 10))
	assert.True(t, IsBackendError(err))
}

var _ Backend = (*GraphBackend)(nil)
var _ Backend = (*ONNXBackend)(nil)
var _ Backend = (*RemoteBackend)(nil)
