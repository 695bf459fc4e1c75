package yolov2

import (
	"sort"

	"github.com/nvr-ai/go-tinyyolo/models"
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/pkg/errors"
)

// ErrUnknownPreset is returned by NewModelFromPreset for unregistered names.
var ErrUnknownPreset = errors.New("unknown model preset")

// Preset names.
const (
	PresetTinyVOC  = "tiny-yolov2-voc"
	PresetTinyCOCO = "tiny-yolov2-coco"
	PresetVOC      = "yolov2-voc"
)

var presets = map[string]func() model.Config{
	PresetTinyVOC:  TinyVOCConfig,
	PresetTinyCOCO: TinyCOCOConfig,
	PresetVOC:      VOCConfig,
}

// TinyVOCConfig is Tiny YOLOv2 trained on Pascal VOC: 416×416 input, 13×13
// grid, 5 anchors, 20 classes.
func TinyVOCConfig() model.Config {
	return model.DefaultConfig()
}

// TinyCOCOConfig is Tiny YOLOv2 trained on COCO (80 classes, 85 channels per box).
func TinyCOCOConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.Family = models.ModelFamilyCOCO
	cfg.Anchors = []float32{0.57273, 0.677385, 1.87446, 2.06253, 3.33843, 5.47434, 7.88282, 3.52778, 9.77052, 9.16828}
	return cfg
}

// VOCConfig is the full YOLOv2 trained on Pascal VOC.
func VOCConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.Name = model.ModelNameYOLOv2
	cfg.Anchors = []float32{1.3221, 1.73145, 3.19275, 4.00944, 5.05587, 8.09892, 9.47112, 4.84053, 11.2364, 10.0071}
	return cfg
}

// PresetNames lists the registered presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PresetConfig returns the configuration registered under name.
func PresetConfig(name string) (model.Config, error) {
	preset, ok := presets[name]
	if !ok {
		return model.Config{}, errors.Wrapf(ErrUnknownPreset, "%q (have %v)", name, PresetNames())
	}
	return preset(), nil
}

// NewModelFromPreset creates a model from a registered preset.
//
// Arguments:
//   - name: The preset name, e.g. PresetTinyVOC.
//   - path: The weights path stored in the configuration.
//   - opts: Optional model settings.
//
// Returns:
//   - The configured model.
//   - ErrUnknownPreset if the name is not registered.
//
// Example:
//
//	m, err := NewModelFromPreset(PresetTinyVOC, "models/tinyyolov2-8.onnx")
//	if err != nil {
//	    log.Fatalf("create model: %v", err)
//	}
func NewModelFromPreset(name, path string, opts ...Option) (*YOLOv2, error) {
	cfg, err := PresetConfig(name)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return NewModel(cfg, opts...)
}
