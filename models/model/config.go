package model

import (
	"os"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-tinyyolo/models"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration is inconsistent.
var ErrInvalidConfig = errors.New("invalid model config")

// DefaultAnchors are the Tiny YOLOv2 VOC anchor priors as (w, h) pairs in
// grid-cell units.
var DefaultAnchors = []float32{1.08, 1.19, 3.42, 4.41, 6.63, 11.38, 9.42, 5.11, 16.62, 10.52}

const (
	// DefaultInputSize is the square input resolution of Tiny YOLOv2.
	DefaultInputSize = 416
	// DefaultGridSize is the number of cells per side of the output grid.
	DefaultGridSize = 13
	// DefaultScoreThreshold is the combined score a detection must exceed.
	DefaultScoreThreshold float32 = 0.3
	// DefaultIoUThreshold is the overlap above which NMS suppresses a box.
	DefaultIoUThreshold = postprocess.DefaultIoUThreshold
	// BoxParams is the number of regression values ahead of the class
	// logits in each box record: tx, ty, tw, th and the objectness logit.
	BoxParams = 5
)

// Anchor is a (width, height) prior in grid-cell units.
type Anchor struct {
	W float32
	H float32
}

// Anchors is the ordered set of priors, one per box slot in a cell.
type Anchors []Anchor

// Config is the full, immutable configuration of a grid detector.
type Config struct {
	// Name of the model.
	Name Name `json:"name" yaml:"name"`
	// Family selects the built-in class catalog when ClassNames is empty.
	Family Family `json:"family" yaml:"family"`
	// Path to the model weights, used by the inference backends.
	Path string `json:"path" yaml:"path"`
	// InputWidth is the resize target width in pixels.
	InputWidth int `json:"inputWidth" yaml:"input_width"`
	// InputHeight is the resize target height in pixels.
	InputHeight int `json:"inputHeight" yaml:"input_height"`
	// GridSize is the number of cells per side (G).
	GridSize int `json:"gridSize" yaml:"grid_size"`
	// Anchors holds 2×B floats: w0, h0, w1, h1, ...
	Anchors []float32 `json:"anchors" yaml:"anchors"`
	// ClassNames overrides the catalog of Family when set.
	ClassNames []string `json:"classNames,omitempty" yaml:"class_names,omitempty"`
	// ScoreThreshold is the strict lower bound on the combined score.
	ScoreThreshold float32 `json:"scoreThreshold" yaml:"score_threshold"`
	// IoUThreshold is the overlap above which a lower-ranked box is suppressed.
	IoUThreshold float32 `json:"iouThreshold" yaml:"iou_threshold"`
	// ClassAware restricts suppression to boxes of the same class.
	ClassAware bool `json:"classAware" yaml:"class_aware"`
	// Inputs are the input tensor names of the network.
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	// Outputs are the output tensor names of the network.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// DefaultConfig returns the Tiny YOLOv2 VOC configuration.
func DefaultConfig() Config {
	anchors := make([]float32, len(DefaultAnchors))
	copy(anchors, DefaultAnchors)

	return Config{
		Name:           ModelNameTinyYOLOv2,
		Family:         models.ModelFamilyVOC,
		InputWidth:     DefaultInputSize,
		InputHeight:    DefaultInputSize,
		GridSize:       DefaultGridSize,
		Anchors:        anchors,
		ScoreThreshold: DefaultScoreThreshold,
		IoUThreshold:   DefaultIoUThreshold,
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
//
// Arguments:
//   - path: The path to the YAML file.
//
// Returns:
//   - The validated configuration.
//   - An error if the file cannot be read, parsed or validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	return cfg, nil
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
// Keys missing from the document keep their default values.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the grid, anchors, thresholds and classes agree.
func (c Config) Validate() error {
	if c.GridSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "grid size must be positive, got %d", c.GridSize)
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "input size must be positive, got %dx%d", c.InputWidth, c.InputHeight)
	}
	if c.InputWidth%c.GridSize != 0 || c.InputHeight%c.GridSize != 0 {
		return errors.Wrapf(ErrInvalidConfig, "input size %dx%d is not a multiple of grid size %d",
			c.InputWidth, c.InputHeight, c.GridSize)
	}
	if c.InputWidth != c.InputHeight {
		return errors.Wrapf(ErrInvalidConfig, "grid cells must be square, got %dx%d input", c.InputWidth, c.InputHeight)
	}
	if _, err := c.AnchorSet(); err != nil {
		return err
	}
	if err := checkThreshold("score threshold", c.ScoreThreshold); err != nil {
		return err
	}
	if err := checkThreshold("iou threshold", c.IoUThreshold); err != nil {
		return err
	}
	if _, err := c.ClassSet(); err != nil {
		return err
	}
	return nil
}

func checkThreshold(name string, v float32) error {
	if math32.IsNaN(v) || v < 0 || v > 1 {
		return errors.Wrapf(ErrInvalidConfig, "%s must be in [0, 1], got %v", name, v)
	}
	return nil
}

// AnchorSet pairs the flat anchor list into (w, h) priors.
func (c Config) AnchorSet() (Anchors, error) {
	if len(c.Anchors) == 0 || len(c.Anchors)%2 != 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "anchors must hold (w, h) pairs, got %d values", len(c.Anchors))
	}
	anchors := make(Anchors, len(c.Anchors)/2)
	for i := range anchors {
		w, h := c.Anchors[2*i], c.Anchors[2*i+1]
		if !(w > 0) || !(h > 0) || math32.IsInf(w, 0) || math32.IsInf(h, 0) {
			return nil, errors.Wrapf(ErrInvalidConfig, "anchor %d must be positive, got (%v, %v)", i, w, h)
		}
		anchors[i] = Anchor{W: w, H: h}
	}
	return anchors, nil
}

// BoxesPerCell returns B, the number of anchor slots per cell.
func (c Config) BoxesPerCell() int {
	return len(c.Anchors) / 2
}

// CellPixelSize returns the side of one grid cell in input pixels.
func (c Config) CellPixelSize() float32 {
	if c.GridSize == 0 {
		return 0
	}
	return float32(c.InputHeight) / float32(c.GridSize)
}

// ClassSet resolves the class catalog: ClassNames when given, otherwise the
// built-in set of Family (VOC when Family is empty).
func (c Config) ClassSet() (models.OutputClassSet, error) {
	if len(c.ClassNames) > 0 {
		style := c.Family
		if style == "" {
			style = models.ModelFamilyCustom
		}
		return models.NewOutputClassSet(style, c.ClassNames), nil
	}

	family := c.Family
	if family == "" {
		family = models.ModelFamilyVOC
	}
	set, err := models.DefaultClassManager.Get(family)
	if err != nil {
		return models.OutputClassSet{}, errors.Wrapf(ErrInvalidConfig, "no class names for family %q", family)
	}
	return set, nil
}

// Channels returns C, the number of values per box record.
func (c Config) Channels() (int, error) {
	set, err := c.ClassSet()
	if err != nil {
		return 0, err
	}
	return BoxParams + set.Len(), nil
}

// NMSConfig returns the suppression parameters of the configuration.
func (c Config) NMSConfig() *postprocess.NMSConfig {
	return &postprocess.NMSConfig{
		IoUThreshold: c.IoUThreshold,
		ClassAware:   c.ClassAware,
	}
}
