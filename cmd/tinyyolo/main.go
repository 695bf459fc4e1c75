// Command tinyyolo runs Tiny YOLOv2 detection on image files.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-tinyyolo/config"
	"github.com/nvr-ai/go-tinyyolo/images"
	"github.com/nvr-ai/go-tinyyolo/inference"
	"github.com/nvr-ai/go-tinyyolo/logger"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/nvr-ai/go-tinyyolo/models/yolov2"
	"github.com/nvr-ai/go-tinyyolo/render"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Output is the JSON line printed per image.
type Output struct {
	Path       string                  `json:"path"`
	Width      int                     `json:"width"`
	Height     int                     `json:"height"`
	Detections []postprocess.Detection `json:"detections"`
	Error      string                  `json:"error,omitempty"`
}

func main() {
	var (
		configPath string
		preset     string
		modelPath  string
		imagePath  string
		dir        string
		outputDir  string
		score      float64
		iou        float64
		draw       bool
		logLevel   string
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&preset, "preset", "", fmt.Sprintf("Model preset %v", yolov2.PresetNames()))
	flag.StringVar(&modelPath, "model", "", "Path to the ONNX model file")
	flag.StringVar(&imagePath, "image", "", "Path to an image file")
	flag.StringVar(&dir, "dir", "", "Directory of images to process")
	flag.StringVar(&outputDir, "output", "detections", "Output directory for drawn images")
	flag.Float64Var(&score, "score", -1, "Score threshold override (0-1)")
	flag.Float64Var(&iou, "iou", -1, "IoU threshold override (0-1)")
	flag.BoolVar(&draw, "draw", false, "Draw detections and write them to -output")
	flag.StringVar(&logLevel, "log-level", "", "Log level override")
	flag.Parse()

	if err := run(configPath, preset, modelPath, imagePath, dir, outputDir, score, iou, draw, logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "tinyyolo:", err)
		os.Exit(1)
	}
}

func run(configPath, preset, modelPath, imagePath, dir, outputDir string, score, iou float64, draw bool, logLevel string) error {
	if (imagePath == "") == (dir == "") {
		return errors.New("exactly one of -image or -dir is required")
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if preset != "" {
		m, err := yolov2.PresetConfig(preset)
		if err != nil {
			return err
		}
		cfg.Preset, cfg.Model = preset, m
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
		cfg.Backend.Type = inference.BackendONNX
		cfg.Backend.ONNX.ModelPath = modelPath
	}
	if score >= 0 {
		cfg.Model.ScoreThreshold = float32(score)
	}
	if iou >= 0 {
		cfg.Model.IoUThreshold = float32(iou)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Model.Validate(); err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("tinyyolo")

	p := cfg.NewProfiler()
	engine, err := cfg.BuildEngine(log, p)
	if err != nil {
		return err
	}
	defer engine.Close()

	var files []images.ImageFile
	if imagePath != "" {
		img, err := images.LoadFile(imagePath)
		if err != nil {
			return err
		}
		files = append(files, images.ImageFile{Path: imagePath, Image: img})
	} else if files, err = images.LoadDirectory(dir); err != nil {
		return err
	}

	if draw {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return errors.Wrapf(err, "create output directory %s", outputDir)
		}
	}

	classes, err := cfg.Model.ClassSet()
	if err != nil {
		return err
	}

	ctx := context.Background()
	enc := json.NewEncoder(os.Stdout)
	for _, f := range files {
		b := f.Image.Bounds()
		out := Output{Path: f.Path, Width: b.Dx(), Height: b.Dy()}

		results, err := engine.DetectScaled(ctx, f.Image)
		if err != nil {
			log.Warn("detection failed", zap.String("path", f.Path), zap.Error(err))
			out.Error = err.Error()
		}
		out.Detections = postprocess.Detections(results)

		if draw && err == nil {
			dst := filepath.Join(outputDir, filepath.Base(f.Path))
			if err := render.WriteFile(dst, f.Image, results, classes); err != nil {
				log.Warn("failed to write drawn image", zap.String("path", dst), zap.Error(err))
			}
		}
		if err := enc.Encode(out); err != nil {
			return errors.Wrap(err, "write output")
		}
	}

	p.Report(log)
	return nil
}
