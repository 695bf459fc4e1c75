package config

import (
	"github.com/nvr-ai/go-tinyyolo/inference"
	"github.com/nvr-ai/go-tinyyolo/profiler"
	"go.uber.org/zap"
)

// NewProfiler returns a stage profiler when profiling is enabled, nil
// otherwise. A nil profiler records nothing.
func (c Config) NewProfiler() *profiler.StageProfiler {
	if !c.Profiling.Enabled {
		return nil
	}
	return profiler.NewStageProfiler(c.Profiling.Samples)
}

// BuildEngine creates the configured backend and an engine around it.
//
// Arguments:
//   - log: The engine logger.
//   - p: An optional profiler.
//
// Returns:
//   - *inference.Engine: The engine. Closing it closes the backend.
//   - error: An error if the backend or model cannot be created.
func (c Config) BuildEngine(log *zap.Logger, p *profiler.StageProfiler) (*inference.Engine, error) {
	backend, err := inference.NewBackend(c.Backend, c.Model)
	if err != nil {
		return nil, err
	}

	engine, err := inference.NewEngineBuilder().
		WithConfig(c.Model).
		WithBackend(backend).
		WithProfiler(p).
		WithLogger(log).
		Build()
	if err != nil {
		backend.Close()
		return nil, err
	}

	log.Info("engine ready",
		zap.String("model", string(c.Model.Name)),
		zap.String("family", string(c.Model.Family)),
		zap.String("backend", string(c.Backend.Type)),
		zap.Float32("score_threshold", c.Model.ScoreThreshold),
		zap.Float32("iou_threshold", c.Model.IoUThreshold),
	)
	return engine, nil
}
