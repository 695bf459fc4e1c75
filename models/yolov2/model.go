package yolov2

import (
	"image"

	"github.com/nvr-ai/go-tinyyolo/models"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/model/preprocess"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/nvr-ai/go-tinyyolo/profiler"
	"gorgonia.org/tensor"
)

// Metric names recorded per PostProcess call.
const (
	MetricCandidates  = "candidates"
	MetricThresholded = "thresholded"
	MetricDetections  = "detections"
)

// YOLOv2 is the instance of a YOLOv2-style grid detector.
type YOLOv2 struct {
	options      model.Config
	decoder      *Decoder
	preprocessor *preprocess.Preprocessor
	profiler     *profiler.StageProfiler
}

var _ model.Model = (*YOLOv2)(nil)

// Option customizes a YOLOv2 model.
type Option func(*YOLOv2)

// WithProfiler records stage timings and candidate counts in p.
func WithProfiler(p *profiler.StageProfiler) Option {
	return func(m *YOLOv2) {
		m.profiler = p
	}
}

// NewModel creates a new model.
//
// Arguments:
//   - cfg: The model configuration. It is validated and copied.
//   - opts: Optional settings.
//
// Returns:
//   - The model.
//   - model.ErrInvalidConfig if the configuration is inconsistent.
func NewModel(cfg model.Config, opts ...Option) (*YOLOv2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	classes, err := cfg.ClassSet()
	if err != nil {
		return nil, err
	}
	decoder, err := NewDecoder(cfg, classes)
	if err != nil {
		return nil, err
	}
	pre, err := preprocess.NewPreprocessor(cfg.InputWidth, cfg.InputHeight)
	if err != nil {
		return nil, err
	}

	m := &YOLOv2{
		options:      cloneConfig(cfg),
		decoder:      decoder,
		preprocessor: pre,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Options returns a copy of the model configuration.
func (m *YOLOv2) Options() model.Config {
	return cloneConfig(m.options)
}

// Classes returns the class catalog.
func (m *YOLOv2) Classes() models.OutputClassSet {
	return m.decoder.Classes()
}

// Layout returns the raw prediction layout.
func (m *YOLOv2) Layout() Layout {
	return m.decoder.Layout()
}

// InputShape returns the [1, H, W, 3] input tensor shape.
func (m *YOLOv2) InputShape() tensor.Shape {
	return m.preprocessor.Shape()
}

// PreProcess resizes img to the input size and converts it to a tensor.
func (m *YOLOv2) PreProcess(img image.Image) (*tensor.Dense, error) {
	defer m.profiler.StartOperation(profiler.StagePreprocess)()
	return m.preprocessor.Preprocess(img)
}

// PostProcess decodes raw, drops candidates at or below the score
// threshold, ranks the rest by score and applies greedy NMS.
//
// Arguments:
//   - raw: The raw prediction of the network.
//
// Returns:
//   - The detections, highest score first. Nil when nothing survives.
//   - ErrShapeMismatch if raw does not match the layout.
func (m *YOLOv2) PostProcess(raw *tensor.Dense) ([]postprocess.Result, error) {
	stop := m.profiler.StartOperation(profiler.StageDecode)
	candidates, err := m.decoder.Decode(raw)
	stop()
	if err != nil {
		return nil, err
	}
	m.profiler.RecordMetric(MetricCandidates, float64(len(candidates)))

	stop = m.profiler.StartOperation(profiler.StageThreshold)
	kept := postprocess.Threshold(candidates, m.options.ScoreThreshold)
	stop()
	m.profiler.RecordMetric(MetricThresholded, float64(len(kept)))

	stop = m.profiler.StartOperation(profiler.StageRank)
	ranked := postprocess.Rank(kept)
	stop()

	stop = m.profiler.StartOperation(profiler.StageNMS)
	detections := postprocess.ApplyGreedyNMS(ranked, m.options.NMSConfig())
	stop()
	m.profiler.RecordMetric(MetricDetections, float64(len(detections)))

	return detections, nil
}

func cloneConfig(cfg model.Config) model.Config {
	cfg.Anchors = append([]float32(nil), cfg.Anchors...)
	cfg.ClassNames = append([]string(nil), cfg.ClassNames...)
	cfg.Inputs = append([]string(nil), cfg.Inputs...)
	cfg.Outputs = append([]string(nil), cfg.Outputs...)
	return cfg
}
