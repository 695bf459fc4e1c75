package benchmark

import (
	"context"
	"encoding/json"
	"image"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/nvr-ai/go-tinyyolo/profiler"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingDetector returns two detections and fails every failEvery-th call.
type countingDetector struct {
	mu        sync.Mutex
	calls     int
	failEvery int
	sizes     map[image.Point]int
	profiler  *profiler.StageProfiler
}

func (d *countingDetector) DetectScaled(_ context.Context, img image.Image) ([]postprocess.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.sizes == nil {
		d.sizes = make(map[image.Point]int)
	}
	d.sizes[img.Bounds().Size()]++
	d.profiler.Record(profiler.StageNMS, time.Microsecond)

	if d.failEvery > 0 && d.calls%d.failEvery == 0 {
		return nil, errors.New("backend unavailable")
	}
	return []postprocess.Result{
		{Box: images.Rect{X2: 10, Y2: 10}, Score: 0.9, Label: "person"},
		{Box: images.Rect{X1: 20, X2: 30, Y2: 10}, Score: 0.8, Label: "dog"},
	}, nil
}

func TestRunScenario(t *testing.T) {
	p := profiler.NewStageProfiler(100)
	det := &countingDetector{failEvery: 4, profiler: p}
	suite := NewSuite(det, p, t.TempDir(), nil)
	suite.AddImages(image.NewRGBA(image.Rect(0, 0, 100, 80)))

	metrics, err := suite.RunScenario(context.Background(), Scenario{
		Name:       "vga",
		Resolution: Resolution{Width: 640, Height: 480, Name: "640x480"},
		Iterations: 8,
		WarmupRuns: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, 10, det.calls)
	assert.Equal(t, 10, det.sizes[image.Pt(640, 480)])
	// Calls 4 and 8 fail; the warmup calls are 1 and 2, so the scenario
	// sees failures on calls 4 and 8 only.
	assert.Equal(t, 0.25, metrics.ErrorRate)
	assert.Equal(t, 12, metrics.DetectionCount)
	assert.Greater(t, metrics.FramesPerSecond, 0.0)
	assert.LessOrEqual(t, metrics.Latency.Min, metrics.Latency.P50)
	assert.LessOrEqual(t, metrics.Latency.P50, metrics.Latency.P95)
	assert.LessOrEqual(t, metrics.Latency.P95, metrics.Latency.Max)

	require.Len(t, metrics.Stages.Operations, 1)
	assert.Equal(t, int64(8), metrics.Stages.Operations[0].Count, "warmup samples are discarded")
}

func TestRunScenarioErrors(t *testing.T) {
	suite := NewSuite(&countingDetector{}, nil, t.TempDir(), nil)

	_, err := suite.RunScenario(context.Background(), Scenario{Name: "empty", Iterations: 1})
	assert.Error(t, err)

	suite.AddImages(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	_, err = suite.RunScenario(context.Background(), Scenario{Name: "zero"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = suite.RunScenario(ctx, Scenario{Name: "cancelled", Iterations: 5})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAllAndSave(t *testing.T) {
	dir := t.TempDir()
	suite := NewSuite(&countingDetector{}, nil, dir, nil)
	suite.AddImages(image.NewRGBA(image.Rect(0, 0, 32, 32)))
	suite.AddScenario(Scenario{Name: "native", Iterations: 3})
	suite.AddScenario(Scenario{Name: "broken"})
	suite.AddScenario(Scenario{Name: "720p", Resolution: CommonResolutions[2], Iterations: 2})

	require.NoError(t, suite.RunAllScenarios(context.Background()))
	results := suite.Results()
	require.Len(t, results, 2)
	assert.Equal(t, "native", results[0].Scenario.Name)
	assert.Equal(t, "720p", results[1].Scenario.Name)

	jsonPath, csvPath, err := suite.SaveResults()
	require.NoError(t, err)

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var saved []PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Len(t, saved, 2)

	summary, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(summary)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "scenario,resolution,fps"))
	assert.True(t, strings.HasPrefix(lines[2], "720p,1280x720,"))
}

func TestSummarize(t *testing.T) {
	var latencies []time.Duration
	for i := 100; i >= 1; i-- {
		latencies = append(latencies, time.Duration(i)*time.Millisecond)
	}

	got := summarize(latencies)
	assert.Equal(t, time.Millisecond, got.Min)
	assert.Equal(t, 50*time.Millisecond, got.P50)
	assert.Equal(t, 95*time.Millisecond, got.P95)
	assert.Equal(t, 99*time.Millisecond, got.P99)
	assert.Equal(t, 100*time.Millisecond, got.Max)
	assert.Equal(t, LatencyMetrics{}, summarize(nil))
}
