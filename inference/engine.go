package inference

import (
	"context"
	"image"
	"sync"

	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/nvr-ai/go-tinyyolo/models/yolov2"
	"github.com/nvr-ai/go-tinyyolo/profiler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Engine runs the complete detection pipeline: preprocess, backend,
// decode, threshold, rank and suppress.
type Engine struct {
	model    model.Model
	backend  Backend
	profiler *profiler.StageProfiler
	log      *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// EngineBuilder assembles an Engine with a fluent API.
type EngineBuilder struct {
	config   *model.Config
	model    model.Model
	backend  Backend
	profiler *profiler.StageProfiler
	log      *zap.Logger
	err      error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
//
// @example
// engine, err := inference.NewEngineBuilder().
//
//	WithConfig(yolov2.TinyVOCConfig()).
//	WithBackend(backend).
//	Build()
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{}
}

// WithConfig sets the model configuration. The YOLOv2 model is created in
// Build so that it picks up the profiler.
//
// Arguments:
//   - cfg: The model configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithConfig(cfg model.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if err := cfg.Validate(); err != nil {
		b.err = err
		return b
	}
	b.config = &cfg
	return b
}

// WithModel sets a ready-made model. It takes precedence over WithConfig.
//
// Arguments:
//   - m: The model.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(m model.Model) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if m == nil {
		b.err = errors.Wrap(ErrNotConfigured, "model is nil")
		return b
	}
	b.model = m
	return b
}

// WithClasses replaces the class names of the configured model.
//
// Arguments:
//   - names: The class names, one per class logit.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithClasses(names []string) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if b.config == nil {
		b.err = errors.Wrap(ErrNotConfigured, "WithClasses needs WithConfig first")
		return b
	}
	b.config.ClassNames = append([]string(nil), names...)
	if err := b.config.Validate(); err != nil {
		b.err = err
	}
	return b
}

// WithBackend sets the inference backend. The engine owns it and closes it.
func (b *EngineBuilder) WithBackend(backend Backend) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if backend == nil {
		b.err = errors.Wrap(ErrNotConfigured, "backend is nil")
		return b
	}
	b.backend = backend
	return b
}

// WithProfiler records stage timings in p.
func (b *EngineBuilder) WithProfiler(p *profiler.StageProfiler) *EngineBuilder {
	b.profiler = p
	return b
}

// WithLogger sets the engine logger. The default is a no-op logger.
func (b *EngineBuilder) WithLogger(log *zap.Logger) *EngineBuilder {
	b.log = log
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// Build builds the engine.
//
// Returns:
//   - *Engine: The engine.
//   - error: The first builder error, or ErrNotConfigured if the model or
//     backend is missing.
func (b *EngineBuilder) Build() (*Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.backend == nil {
		return nil, errors.Wrap(ErrNotConfigured, "backend not configured")
	}

	m := b.model
	if m == nil {
		if b.config == nil {
			return nil, errors.Wrap(ErrNotConfigured, "model not configured")
		}
		y, err := yolov2.NewModel(*b.config, yolov2.WithProfiler(b.profiler))
		if err != nil {
			return nil, err
		}
		m = y
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		model:    m,
		backend:  b.backend,
		profiler: b.profiler,
		log:      log,
	}, nil
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - *Engine: The engine.
func (b *EngineBuilder) MustBuild() *Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Options returns the model configuration.
func (e *Engine) Options() model.Config {
	return e.model.Options()
}

// Model returns the engine's model.
func (e *Engine) Model() model.Model {
	return e.model
}

// Detect runs the pipeline on img.
//
// Arguments:
//   - ctx: Cancels the backend call.
//   - img: The image to run detection on.
//
// Returns:
//   - The detections in pixels of the resized model input, best first.
//   - An error wrapping preprocess.ErrInvalidInput for unusable images, a
//     *BackendError when the backend fails, or yolov2.ErrShapeMismatch when
//     its output does not fit the grid.
func (e *Engine) Detect(ctx context.Context, img image.Image) ([]postprocess.Result, error) {
	input, err := e.model.PreProcess(img)
	if err != nil {
		return nil, err
	}

	stop := e.profiler.StartOperation(profiler.StageInference)
	raw, err := e.backend.Predict(ctx, input)
	stop()
	if err != nil {
		e.log.Debug("backend failed", zap.Error(err))
		return nil, &BackendError{Err: err}
	}

	return e.DetectTensor(raw)
}

// DetectScaled runs Detect and maps the boxes onto img's own resolution.
func (e *Engine) DetectScaled(ctx context.Context, img image.Image) ([]postprocess.Result, error) {
	results, err := e.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	opts := e.model.Options()
	b := img.Bounds()
	return postprocess.Rescale(results, opts.InputWidth, opts.InputHeight, b.Dx(), b.Dy()), nil
}

// DetectTensor runs only the postprocess stages on a raw prediction.
func (e *Engine) DetectTensor(raw *tensor.Dense) ([]postprocess.Result, error) {
	results, err := e.model.PostProcess(raw)
	if err != nil {
		return nil, err
	}
	e.log.Debug("detection complete", zap.Int("detections", len(results)))
	return results, nil
}

// Close closes the backend. Further calls return the first result.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.backend.Close()
	})
	return e.closeErr
}
