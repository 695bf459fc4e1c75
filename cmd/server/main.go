// Command server serves the detection HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/nvr-ai/go-tinyyolo/config"
	"github.com/nvr-ai/go-tinyyolo/inference"
	"github.com/nvr-ai/go-tinyyolo/logger"
	"github.com/nvr-ai/go-tinyyolo/server"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath string
		modelPath  string
		remoteURL  string
		addr       string
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&modelPath, "model", "", "Path to the ONNX model file")
	flag.StringVar(&remoteURL, "remote", "", "URL of a remote inference server")
	flag.StringVar(&addr, "addr", "", "Listen address override")
	flag.Parse()

	if err := run(configPath, modelPath, remoteURL, addr); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run(configPath, modelPath, remoteURL, addr string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	switch {
	case modelPath != "" && remoteURL != "":
		return errors.New("-model and -remote are mutually exclusive")
	case modelPath != "":
		cfg.Backend.Type = inference.BackendONNX
		cfg.Backend.ONNX.ModelPath = modelPath
	case remoteURL != "":
		cfg.Backend.Type = inference.BackendRemote
		cfg.Backend.Remote.URL = remoteURL
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("server")

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := cfg.NewProfiler()
	p.Start(ctx, cfg.Profiling.Interval, log)
	defer p.Stop()

	engine, err := cfg.BuildEngine(log, p)
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := server.New(engine,
		server.WithLogger(log),
		server.WithProfiler(p),
		server.WithMaxImageBytes(cfg.Server.MaxImageBytes),
	)
	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	return nil
}
