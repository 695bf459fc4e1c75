// Command webcam runs detection on a capture device and shows the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"github.com/nvr-ai/go-tinyyolo/config"
	"github.com/nvr-ai/go-tinyyolo/inference"
	"github.com/nvr-ai/go-tinyyolo/logger"
	"github.com/nvr-ai/go-tinyyolo/render"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func main() {
	var (
		configPath string
		modelPath  string
		deviceID   int
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&modelPath, "model", "", "Path to the ONNX model file")
	flag.IntVar(&deviceID, "device", 0, "Video capture device id")
	flag.Parse()

	if err := run(configPath, modelPath, deviceID); err != nil {
		fmt.Fprintln(os.Stderr, "webcam:", err)
		os.Exit(1)
	}
}

func run(configPath, modelPath string, deviceID int) error {
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
	log := logger.Named("webcam")

	engine, err := cfg.BuildEngine(log, cfg.NewProfiler())
	if err != nil {
		return err
	}
	defer engine.Close()

	classes, err := cfg.Model.ClassSet()
	if err != nil {
		return err
	}

	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return errors.Wrapf(err, "open capture device %d", deviceID)
	}
	defer webcam.Close()

	window := gocv.NewWindow("Tiny YOLOv2")
	defer window.Close()

	img := gocv.NewMat()
	defer img.Close()

	white := color.RGBA{R: 255, G: 255, B: 255, A: 0}

	// FPS tracking variables
	fps := 0.0
	frameCount := 0
	lastTime := time.Now()

	log.Info("reading capture device", zap.Int("device", deviceID))
	ctx := context.Background()
	for {
		if ok := webcam.Read(&img); !ok {
			return errors.Errorf("cannot read device %d", deviceID)
		}
		if img.Empty() {
			continue
		}

		frameCount++
		if elapsed := time.Since(lastTime).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = time.Now()
		}

		frame, err := img.ToImage()
		if err != nil {
			log.Warn("frame conversion failed", zap.Error(err))
			continue
		}

		results, err := engine.DetectScaled(ctx, frame)
		if err != nil {
			log.Warn("detection failed", zap.Error(err))
			continue
		}
		log.Debug("frame", zap.Int("detections", len(results)), zap.Float64("fps", fps))

		render.Draw(&img, results, classes)
		gocv.PutText(&img, fmt.Sprintf("FPS: %.1f", fps), image.Pt(10, 30), gocv.FontHersheyPlain, 1.2, white, 2)

		window.IMShow(img)
		if window.WaitKey(1) == 27 {
			return nil
		}
	}
}
