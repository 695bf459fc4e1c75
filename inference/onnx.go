package inference

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// SharedLibraryEnv overrides the onnxruntime shared library location.
const SharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var ortMu sync.Mutex

// ONNXConfig configures an ONNXBackend.
type ONNXConfig struct {
	// ModelPath is the path to the .onnx file.
	ModelPath string `json:"modelPath" yaml:"model_path"`
	// SharedLibraryPath is the onnxruntime library. Empty uses SharedLibraryPath().
	SharedLibraryPath string `json:"sharedLibraryPath" yaml:"shared_library_path"`
	// InputName and OutputName are the graph tensor names.
	InputName  string `json:"inputName" yaml:"input_name"`
	OutputName string `json:"outputName" yaml:"output_name"`
	// InputShape is the shape the network expects, normally [1, H, W, 3].
	InputShape []int64 `json:"inputShape" yaml:"input_shape"`
	// OutputShape is the shape the network produces.
	OutputShape []int64 `json:"outputShape" yaml:"output_shape"`
	// ChannelsFirst transposes inputs to NCHW before the run and outputs from
	// [1, B*C, G, G] back to [G, G, B*C] after it.
	ChannelsFirst bool `json:"channelsFirst" yaml:"channels_first"`
	// IntraOpThreads and InterOpThreads size the onnxruntime thread pools.
	// Zero uses the runtime default.
	IntraOpThreads int `json:"intraOpThreads" yaml:"intra_op_threads"`
	InterOpThreads int `json:"interOpThreads" yaml:"inter_op_threads"`
}

// Validate checks that the paths, names and shapes are set.
func (c ONNXConfig) Validate() error {
	switch {
	case c.ModelPath == "":
		return errors.Wrap(ErrNotConfigured, "onnx model path is empty")
	case c.InputName == "" || c.OutputName == "":
		return errors.Wrap(ErrNotConfigured, "onnx input and output names are required")
	case len(c.InputShape) != 4:
		return errors.Wrapf(ErrNotConfigured, "onnx input shape must have 4 dimensions, got %v", c.InputShape)
	case len(c.OutputShape) == 0:
		return errors.Wrap(ErrNotConfigured, "onnx output shape is empty")
	case c.ChannelsFirst && len(c.OutputShape) != 4:
		return errors.Wrapf(ErrNotConfigured, "channels-first output must have 4 dimensions, got %v", c.OutputShape)
	}
	for _, d := range append(append([]int64{}, c.InputShape...), c.OutputShape...) {
		if d <= 0 {
			return errors.Wrapf(ErrNotConfigured, "onnx shapes must be positive, got %v and %v", c.InputShape, c.OutputShape)
		}
	}
	return nil
}

// SharedLibraryPath returns the onnxruntime library for the current platform,
// or the value of ONNXRUNTIME_SHARED_LIBRARY_PATH when set.
func SharedLibraryPath() string {
	if path := os.Getenv(SharedLibraryEnv); path != "" {
		return path
	}
	dir := "third_party"
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(dir, "onnxruntime.dll")
	case "darwin":
		return filepath.Join(dir, "libonnxruntime.dylib")
	default:
		if runtime.GOARCH == "arm64" {
			return filepath.Join(dir, "onnxruntime_arm64.so")
		}
		return filepath.Join(dir, "onnxruntime.so")
	}
}

// initRuntime loads the shared library once per process.
func initRuntime(libPath string) error {
	ortMu.Lock()
	defer ortMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		libPath = SharedLibraryPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	return errors.Wrap(ort.InitializeEnvironment(), "initialize onnxruntime environment")
}

// ONNXBackend runs a model with onnxruntime using preallocated tensors.
type ONNXBackend struct {
	mu      sync.Mutex
	config  ONNXConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNXBackend loads the model and binds its input and output tensors.
//
// Arguments:
//   - config: The backend configuration.
//
// Returns:
//   - The backend. Close releases the native resources.
//   - An error if the runtime cannot be loaded or the session fails.
func NewONNXBackend(config ONNXConfig) (*ONNXBackend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := initRuntime(config.SharedLibraryPath); err != nil {
		return nil, err
	}

	inputShape := config.InputShape
	if config.ChannelsFirst {
		// NHWC -> NCHW
		inputShape = []int64{inputShape[0], inputShape[3], inputShape[1], inputShape[2]}
	}
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape...))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(config.OutputShape...))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "set intra-op threads")
	}
	if err := options.SetInterOpNumThreads(config.InterOpThreads); err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "set inter-op threads")
	}

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "set graph optimization level")
	}

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{config.InputName},
		[]string{config.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "create onnxruntime session for %s", config.ModelPath)
	}

	return &ONNXBackend{
		config:  config,
		session: session,
		input:   input,
		output:  output,
	}, nil
}

// Predict copies input into the bound tensor, runs the session and returns a
// copy of the output.
func (b *ONNXBackend) Predict(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkInput(input, int64Shape(b.config.InputShape)); err != nil {
		return nil, err
	}

	data := input.Data().([]float32)
	if b.config.ChannelsFirst {
		transposed, err := transpose(input, 0, 3, 1, 2)
		if err != nil {
			return nil, errors.Wrap(err, "transpose input to NCHW")
		}
		data = transposed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil, ErrClosed
	}

	copy(b.input.GetData(), data)
	if err := b.session.Run(); err != nil {
		return nil, errors.Wrap(err, "run onnxruntime session")
	}

	out := make([]float32, len(b.output.GetData()))
	copy(out, b.output.GetData())
	raw := tensor.New(tensor.WithShape(int64Shape(b.config.OutputShape)...), tensor.WithBacking(out))

	if b.config.ChannelsFirst {
		// [1, B*C, G, G] -> [1, G, G, B*C]
		back, err := transpose(raw, 0, 2, 3, 1)
		if err != nil {
			return nil, errors.Wrap(err, "transpose output to NHWC")
		}
		s := b.config.OutputShape
		raw = tensor.New(tensor.WithShape(int(s[0]), int(s[2]), int(s[3]), int(s[1])), tensor.WithBacking(back))
	}
	return raw, nil
}

// Close destroys the session and its tensors.
func (b *ONNXBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	err := b.session.Destroy()
	b.input.Destroy()
	b.output.Destroy()
	b.session, b.input, b.output = nil, nil, nil
	return errors.Wrap(err, "destroy onnxruntime session")
}

// transpose permutes the axes of a float32 tensor and returns the
// rearranged data. The source tensor is not modified.
func transpose(t *tensor.Dense, axes ...int) ([]float32, error) {
	clone := t.Clone().(*tensor.Dense)
	if err := clone.T(axes...); err != nil {
		return nil, err
	}
	if err := clone.Transpose(); err != nil {
		return nil, err
	}
	return clone.Data().([]float32), nil
}

func int64Shape(dims []int64) tensor.Shape {
	shape := make(tensor.Shape, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
	}
	return shape
}
