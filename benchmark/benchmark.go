// Package benchmark - Runs detection scenarios and records throughput.
package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/nvr-ai/go-tinyyolo/profiler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Resolution represents source frame dimensions for a scenario.
type Resolution struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Name   string `json:"name"`
}

// CommonResolutions are typical camera frame sizes.
var CommonResolutions = []Resolution{
	{Width: 416, Height: 416, Name: "416x416"},
	{Width: 640, Height: 480, Name: "640x480"},
	{Width: 1280, Height: 720, Name: "1280x720"},
	{Width: 1920, Height: 1080, Name: "1920x1080"},
}

// Scenario defines a specific benchmark run.
type Scenario struct {
	Name       string     `json:"name"`
	Resolution Resolution `json:"resolution"`
	Iterations int        `json:"iterations"`
	WarmupRuns int        `json:"warmup_runs"`
}

// Detector runs detection on a frame. *inference.Engine implements it.
type Detector interface {
	DetectScaled(ctx context.Context, img image.Image) ([]postprocess.Result, error)
}

// PerformanceMetrics captures the outcome of one scenario.
type PerformanceMetrics struct {
	Scenario        Scenario       `json:"scenario"`
	Timestamp       time.Time      `json:"timestamp"`
	TotalDuration   time.Duration  `json:"total_duration"`
	FramesPerSecond float64        `json:"frames_per_second"`
	Latency         LatencyMetrics `json:"latency"`
	Stages          profiler.Stats `json:"stages"`
	MemoryStats     MemoryMetrics  `json:"memory_stats"`
	DetectionCount  int            `json:"detection_count"`
	ErrorRate       float64        `json:"error_rate"`
}

// LatencyMetrics summarizes per-frame latency.
type LatencyMetrics struct {
	Min time.Duration `json:"min"`
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
	Max time.Duration `json:"max"`
}

// MemoryMetrics captures memory usage statistics.
type MemoryMetrics struct {
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	NumGC           uint32 `json:"num_gc"`
}

// Suite manages and executes benchmark scenarios.
type Suite struct {
	detector  Detector
	profiler  *profiler.StageProfiler
	outputDir string
	log       *zap.Logger

	mu        sync.RWMutex
	scenarios []Scenario
	images    []image.Image
	results   []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - detector: The detector under test.
//   - p: The profiler the detector records into, or nil. It is reset before
//     each scenario.
//   - outputDir: Where SaveResults writes its files.
//   - log: The logger for progress messages.
//
// Returns:
//   - *Suite: The suite.
func NewSuite(detector Detector, p *profiler.StageProfiler, outputDir string, log *zap.Logger) *Suite {
	if log == nil {
		log = zap.NewNop()
	}
	return &Suite{
		detector:  detector,
		profiler:  p,
		outputDir: outputDir,
		log:       log,
	}
}

// AddScenario adds a scenario to the suite.
func (s *Suite) AddScenario(scenario Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios = append(s.scenarios, scenario)
}

// AddImages adds source frames. They are resized to each scenario's
// resolution before the run.
func (s *Suite) AddImages(imgs ...image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, imgs...)
}

// RunScenario executes a single scenario.
func (s *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if scenario.Iterations <= 0 {
		return nil, errors.Errorf("scenario %s: iterations must be positive", scenario.Name)
	}

	s.mu.RLock()
	sources := s.images
	s.mu.RUnlock()
	if len(sources) == 0 {
		return nil, errors.Errorf("scenario %s: no images", scenario.Name)
	}

	frames := make([]image.Image, len(sources))
	for i, img := range sources {
		frames[i] = img
		if r := scenario.Resolution; r.Width > 0 && r.Height > 0 {
			frames[i] = imaging.Resize(img, r.Width, r.Height, imaging.Linear)
		}
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		_, _ = s.detector.DetectScaled(ctx, frames[i%len(frames)])
	}
	s.profiler.Reset()

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	latencies := make([]time.Duration, 0, scenario.Iterations)
	detections, failures := 0, 0
	start := time.Now()

	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frameStart := time.Now()
		results, err := s.detector.DetectScaled(ctx, frames[i%len(frames)])
		latencies = append(latencies, time.Since(frameStart))
		if err != nil {
			failures++
			continue
		}
		detections += len(results)
	}

	total := time.Since(start)

	var endMem runtime.MemStats
	runtime.ReadMemStats(&endMem)

	return &PerformanceMetrics{
		Scenario:        scenario,
		Timestamp:       start,
		TotalDuration:   total,
		FramesPerSecond: float64(scenario.Iterations) / total.Seconds(),
		Latency:         summarize(latencies),
		Stages:          s.profiler.Stats(),
		MemoryStats: MemoryMetrics{
			TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
			HeapAllocBytes:  endMem.HeapAlloc,
			NumGC:           endMem.NumGC - startMem.NumGC,
		},
		DetectionCount: detections,
		ErrorRate:      float64(failures) / float64(scenario.Iterations),
	}, nil
}

// RunAllScenarios executes all configured scenarios in order. A failing
// scenario is logged and skipped.
func (s *Suite) RunAllScenarios(ctx context.Context) error {
	s.mu.RLock()
	scenarios := append([]Scenario(nil), s.scenarios...)
	s.mu.RUnlock()

	for _, scenario := range scenarios {
		metrics, err := s.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.log.Warn("scenario failed", zap.String("scenario", scenario.Name), zap.Error(err))
			continue
		}

		s.mu.Lock()
		s.results = append(s.results, *metrics)
		s.mu.Unlock()

		s.log.Info("scenario completed",
			zap.String("scenario", scenario.Name),
			zap.Float64("fps", metrics.FramesPerSecond),
			zap.Duration("p95", metrics.Latency.P95),
			zap.Float64("error_rate", metrics.ErrorRate),
		)
	}
	return nil
}

// Results returns all recorded results.
func (s *Suite) Results() []PerformanceMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PerformanceMetrics(nil), s.results...)
}

// SaveResults writes the results as JSON and a CSV summary and returns the
// two paths.
func (s *Suite) SaveResults() (string, string, error) {
	results := s.Results()

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "create output directory")
	}

	stamp := time.Now().Format("2006-01-02_15-04-05")
	jsonPath := filepath.Join(s.outputDir, fmt.Sprintf("benchmark_results_%s.json", stamp))
	csvPath := filepath.Join(s.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", stamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", "", errors.Wrap(err, "marshal results")
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", errors.Wrap(err, "write results")
	}
	if err := writeSummaryCSV(csvPath, results); err != nil {
		return "", "", errors.Wrap(err, "write summary")
	}
	return jsonPath, csvPath, nil
}

func writeSummaryCSV(path string, results []PerformanceMetrics) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"scenario", "resolution", "fps", "p50_ms", "p95_ms", "detections", "error_rate"})
	for _, r := range results {
		_ = w.Write([]string{
			r.Scenario.Name,
			r.Scenario.Resolution.Name,
			strconv.FormatFloat(r.FramesPerSecond, 'f', 2, 64),
			strconv.FormatFloat(float64(r.Latency.P50.Microseconds())/1000, 'f', 3, 64),
			strconv.FormatFloat(float64(r.Latency.P95.Microseconds())/1000, 'f', 3, 64),
			strconv.Itoa(r.DetectionCount),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		})
	}
	w.Flush()
	return w.Error()
}

// summarize computes nearest-rank percentiles.
func summarize(latencies []time.Duration) LatencyMetrics {
	if len(latencies) == 0 {
		return LatencyMetrics{}
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := func(p float64) time.Duration {
		idx := int(p*float64(len(sorted))+0.5) - 1
		idx = max(0, min(idx, len(sorted)-1))
		return sorted[idx]
	}
	return LatencyMetrics{
		Min: sorted[0],
		P50: rank(0.50),
		P95: rank(0.95),
		P99: rank(0.99),
		Max: sorted[len(sorted)-1],
	}
}
