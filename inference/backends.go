package inference

import (
	"github.com/nvr-ai/go-tinyyolo/models/model"
	"github.com/pkg/errors"
)

// BackendType names a Backend implementation.
type BackendType string

const (
	// BackendONNX runs the model in-process with onnxruntime.
	BackendONNX BackendType = "onnx"
	// BackendRemote posts each frame to an HTTP inference server.
	BackendRemote BackendType = "remote"
)

// Backends is a list of the backends NewBackend can create. A GraphBackend
// needs a graph built in code, so it has no BackendType.
var Backends = []BackendType{BackendONNX, BackendRemote}

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Type   BackendType  `json:"type" yaml:"type"`
	ONNX   ONNXConfig   `json:"onnx" yaml:"onnx"`
	Remote RemoteConfig `json:"remote" yaml:"remote"`
}

// NewBackend creates the backend named by cfg.Type. Shapes left empty are
// derived from the model configuration.
//
// Arguments:
//   - cfg: The backend configuration.
//   - m: The model configuration the backend serves.
//
// Returns:
//   - The backend.
//   - An error if the type is unknown or the backend cannot start.
func NewBackend(cfg BackendConfig, m model.Config) (Backend, error) {
	channels, err := m.Channels()
	if err != nil {
		return nil, err
	}
	g := m.GridSize
	boxes := m.BoxesPerCell()

	switch cfg.Type {
	case BackendONNX:
		onnx := cfg.ONNX
		if onnx.ModelPath == "" {
			onnx.ModelPath = m.Path
		}
		if onnx.InputName == "" && len(m.Inputs) > 0 {
			onnx.InputName = m.Inputs[0]
		}
		if onnx.OutputName == "" && len(m.Outputs) > 0 {
			onnx.OutputName = m.Outputs[0]
		}
		if len(onnx.InputShape) == 0 {
			onnx.InputShape = []int64{1, int64(m.InputHeight), int64(m.InputWidth), 3}
		}
		if len(onnx.OutputShape) == 0 {
			if onnx.ChannelsFirst {
				onnx.OutputShape = []int64{1, int64(boxes * channels), int64(g), int64(g)}
			} else {
				onnx.OutputShape = []int64{1, int64(g), int64(g), int64(boxes * channels)}
			}
		}
		return NewONNXBackend(onnx)
	case BackendRemote:
		remote := cfg.Remote
		if len(remote.OutputShape) == 0 {
			remote.OutputShape = []int{g, g, boxes, channels}
		}
		return NewRemoteBackend(remote)
	default:
		return nil, errors.Wrapf(ErrNotConfigured, "unknown backend type %q", cfg.Type)
	}
}
