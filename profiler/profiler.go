// Package profiler - Per-stage timing and counters for the detection pipeline.
package profiler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stage names recorded by the detection pipeline.
const (
	StagePreprocess = "preprocess"
	StageInference  = "inference"
	StageDecode     = "decode"
	StageThreshold  = "threshold"
	StageRank       = "rank"
	StageNMS        = "nms"
)

// StageProfiler tracks operation timings and custom metrics.
//
// All methods are safe for concurrent use and are no-ops on a nil receiver, so
// callers can hold an optional *StageProfiler without guarding each call.
type StageProfiler struct {
	mu         sync.RWMutex
	maxSamples int
	startTime  time.Time

	operations map[string]*TimeTracker
	metrics    map[string]*MetricTracker

	// Periodic reporting
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// MetricTracker tracks statistics for a custom metric.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// OperationStats is a snapshot of one operation's timings over the retained window.
type OperationStats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// MetricStats is a snapshot of one metric over the retained window.
type MetricStats struct {
	Name  string  `json:"name"`
	Count int64   `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Stats is a point-in-time view of the profiler.
type Stats struct {
	Uptime     time.Duration    `json:"uptime"`
	Operations []OperationStats `json:"operations"`
	Metrics    []MetricStats    `json:"metrics"`
}

// NewStageProfiler creates a profiler that keeps the last maxSamples values
// per operation (600 when maxSamples <= 0).
//
// Arguments:
// - maxSamples: The size of the sliding window per operation and metric.
//
// Returns:
// - A configured StageProfiler instance.
func NewStageProfiler(maxSamples int) *StageProfiler {
	if maxSamples <= 0 {
		maxSamples = 600
	}
	return &StageProfiler{
		maxSamples: maxSamples,
		startTime:  time.Now(),
		operations: make(map[string]*TimeTracker),
		metrics:    make(map[string]*MetricTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (sp *StageProfiler) StartOperation(name string) func() {
	if sp == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		sp.Record(name, time.Since(start))
	}
}

// Record adds a completed operation duration.
func (sp *StageProfiler) Record(name string, duration time.Duration) {
	if sp == nil {
		return
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()

	tracker, exists := sp.operations[name]
	if !exists {
		tracker = &TimeTracker{
			durations: make([]time.Duration, 0, sp.maxSamples),
			minTime:   duration,
			maxTime:   duration,
		}
		sp.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > sp.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++

	tracker.minTime = min(tracker.minTime, duration)
	tracker.maxTime = max(tracker.maxTime, duration)
}

// RecordMetric records a custom metric value, such as a candidate count.
//
// Arguments:
// - name: The name of the metric
// - value: The metric value to record
func (sp *StageProfiler) RecordMetric(name string, value float64) {
	if sp == nil {
		return
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()

	tracker, exists := sp.metrics[name]
	if !exists {
		tracker = &MetricTracker{
			values: make([]float64, 0, sp.maxSamples),
			min:    value,
			max:    value,
		}
		sp.metrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > sp.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.count++

	tracker.min = min(tracker.min, value)
	tracker.max = max(tracker.max, value)
}

// Stats returns a snapshot of all operations and metrics, sorted by name.
func (sp *StageProfiler) Stats() Stats {
	if sp == nil {
		return Stats{}
	}
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	stats := Stats{Uptime: time.Since(sp.startTime)}
	for name, tracker := range sp.operations {
		if len(tracker.durations) == 0 {
			continue
		}
		stats.Operations = append(stats.Operations, OperationStats{
			Name:  name,
			Count: tracker.count,
			Avg:   tracker.totalTime / time.Duration(len(tracker.durations)),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
		})
	}
	for name, tracker := range sp.metrics {
		if len(tracker.values) == 0 {
			continue
		}
		stats.Metrics = append(stats.Metrics, MetricStats{
			Name:  name,
			Count: tracker.count,
			Avg:   tracker.sum / float64(len(tracker.values)),
			Min:   tracker.min,
			Max:   tracker.max,
		})
	}

	sort.Slice(stats.Operations, func(i, j int) bool { return stats.Operations[i].Name < stats.Operations[j].Name })
	sort.Slice(stats.Metrics, func(i, j int) bool { return stats.Metrics[i].Name < stats.Metrics[j].Name })
	return stats
}

// Report logs the current statistics at info level.
func (sp *StageProfiler) Report(log *zap.Logger) {
	if sp == nil || log == nil {
		return
	}
	stats := sp.Stats()
	for _, op := range stats.Operations {
		log.Info("operation timing",
			zap.String("operation", op.Name),
			zap.Int64("count", op.Count),
			zap.Duration("avg", op.Avg.Truncate(time.Microsecond)),
			zap.Duration("min", op.Min.Truncate(time.Microsecond)),
			zap.Duration("max", op.Max.Truncate(time.Microsecond)),
		)
	}
	for _, m := range stats.Metrics {
		log.Info("metric",
			zap.String("metric", m.Name),
			zap.Int64("count", m.Count),
			zap.Float64("avg", m.Avg),
			zap.Float64("min", m.Min),
			zap.Float64("max", m.Max),
		)
	}
}

// Start emits a Report every interval until Stop is called or ctx is done.
// Calling Start on a running profiler does nothing.
func (sp *StageProfiler) Start(ctx context.Context, interval time.Duration, log *zap.Logger) {
	if sp == nil || interval <= 0 {
		return
	}
	sp.mu.Lock()
	if sp.cancel != nil {
		sp.mu.Unlock()
		return
	}
	ctx, sp.cancel = context.WithCancel(ctx)
	sp.mu.Unlock()

	sp.wg.Add(1)
	go func() {
		defer sp.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sp.Report(log)
			}
		}
	}()
}

// Stop ends periodic reporting and waits for the reporter to exit.
func (sp *StageProfiler) Stop() {
	if sp == nil {
		return
	}
	sp.mu.Lock()
	cancel := sp.cancel
	sp.cancel = nil
	sp.mu.Unlock()

	if cancel != nil {
		cancel()
		sp.wg.Wait()
	}
}

// Reset clears all recorded values.
func (sp *StageProfiler) Reset() {
	if sp == nil {
		return
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sp.startTime = time.Now()
	sp.operations = make(map[string]*TimeTracker)
	sp.metrics = make(map[string]*MetricTracker)
}
