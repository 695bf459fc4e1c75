// Package config - Process configuration for the detection commands.
package config

import (
	"os"
	"time"

	"github.com/nvr-ai/go-tinyyolo/inference"
	"github.com/nvr-ai/go-tinyyolo/logger"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/nvr-ai/go-tinyyolo/models/yolov2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration file.
//
// @example
//
//	preset: tiny-yolov2-voc
//	model:
//	  score_threshold: 0.4
//	backend:
//	  type: onnx
//	  onnx:
//	    model_path: tinyyolov2-8.onnx
//	    input_name: image
//	    output_name: grid
//	    channels_first: true
//	server:
//	  addr: ":8080"
type Config struct {
	// Preset selects the base model configuration that Model is applied to.
	Preset    string                  `yaml:"preset"`
	Model     model.Config            `yaml:"model"`
	Backend   inference.BackendConfig `yaml:"backend"`
	Server    Server                  `yaml:"server"`
	Logging   logger.Options          `yaml:"logging"`
	Profiling Profiling               `yaml:"profiling"`
}

// Server configures the HTTP API.
type Server struct {
	Addr          string `yaml:"addr"`
	MaxImageBytes int64  `yaml:"max_image_bytes"`
}

// Profiling configures periodic stage timing reports.
type Profiling struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Samples  int           `yaml:"samples"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Preset:  yolov2.PresetTinyVOC,
		Model:   yolov2.TinyVOCConfig(),
		Backend: inference.BackendConfig{Type: inference.BackendONNX},
		Server: Server{
			Addr:          ":8080",
			MaxImageBytes: 16 << 20,
		},
		Logging: logger.Options{Level: "info"},
		Profiling: Profiling{
			Interval: time.Minute,
			Samples:  600,
		},
	}
}

// Load reads a YAML file. See Parse.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default. When the document names a preset,
// its model section is applied on top of that preset instead.
func Parse(data []byte) (Config, error) {
	var head struct {
		Preset string `yaml:"preset"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}

	cfg := Default()
	if head.Preset != "" {
		base, err := yolov2.PresetConfig(head.Preset)
		if err != nil {
			return Config{}, err
		}
		cfg.Preset = head.Preset
		cfg.Model = base
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := cfg.Model.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
