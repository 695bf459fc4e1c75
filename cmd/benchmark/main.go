// Command benchmark measures detection throughput over a set of images.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/nvr-ai/go-tinyyolo/benchmark"
	"github.com/nvr-ai/go-tinyyolo/config"
	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/inference"
	"github.com/nvr-ai/go-tinyyolo/logger"
	"github.com/nvr-ai/go-tinyyolo/profiler"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath string
		modelPath  string
		dir        string
		outputDir  string
		iterations int
		warmup     int
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&modelPath, "model", "", "Path to the ONNX model file")
	flag.StringVar(&dir, "dir", "", "Directory of test images")
	flag.StringVar(&outputDir, "output", "benchmark_results", "Output directory for results")
	flag.IntVar(&iterations, "iterations", 100, "Iterations per scenario")
	flag.IntVar(&warmup, "warmup", 10, "Warmup runs per scenario")
	flag.Parse()

	if err := run(configPath, modelPath, dir, outputDir, iterations, warmup); err != nil {
		fmt.Fprintln(os.Stderr, "benchmark:", err)
		os.Exit(1)
	}
}

func run(configPath, modelPath, dir, outputDir string, iterations, warmup int) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if modelPath != "" {
		cfg.Backend.Type = inference.BackendONNX
		cfg.Backend.ONNX.ModelPath = modelPath
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("benchmark")

	files, err := images.LoadDirectory(dir)
	if err != nil {
		return err
	}

	p := profiler.NewStageProfiler(iterations)
	engine, err := cfg.BuildEngine(log, p)
	if err != nil {
		return err
	}
	defer engine.Close()

	suite := benchmark.NewSuite(engine, p, outputDir, log)
	for _, f := range files {
		suite.AddImages(f.Image)
	}
	for _, r := range benchmark.CommonResolutions {
		suite.AddScenario(benchmark.Scenario{
			Name:       string(cfg.Model.Name) + "-" + r.Name,
			Resolution: r,
			Iterations: iterations,
			WarmupRuns: warmup,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := suite.RunAllScenarios(ctx); err != nil {
		return err
	}
	jsonPath, csvPath, err := suite.SaveResults()
	if err != nil {
		return err
	}
	log.Info("results saved", zap.String("results", jsonPath), zap.String("summary", csvPath))
	return nil
}
