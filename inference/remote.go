package inference

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DefaultRemoteTimeout bounds a single remote prediction.
const DefaultRemoteTimeout = 10 * time.Second

// RemoteConfig configures a RemoteBackend.
type RemoteConfig struct {
	// URL is the prediction endpoint. It receives a POST per frame.
	URL string `json:"url" yaml:"url"`
	// Timeout is the total request timeout. Zero uses DefaultRemoteTimeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// Headers are added to every request, e.g. an Authorization token.
	Headers map[string]string `json:"headers" yaml:"headers"`
	// OutputShape is the shape of the returned tensor.
	OutputShape []int `json:"outputShape" yaml:"output_shape"`
}

// TensorPayload is the JSON body exchanged with a remote inference server.
type TensorPayload struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// RemoteBackend forwards the input tensor to an HTTP inference server and
// reads the raw prediction back.
type RemoteBackend struct {
	config RemoteConfig
	client *resty.Client
	shape  tensor.Shape
}

// NewRemoteBackend creates a backend for the server at config.URL.
//
// Arguments:
//   - config: The endpoint configuration.
//
// Returns:
//   - The backend.
//   - ErrNotConfigured if the URL or output shape is missing.
func NewRemoteBackend(config RemoteConfig) (*RemoteBackend, error) {
	if config.URL == "" {
		return nil, errors.Wrap(ErrNotConfigured, "remote url is empty")
	}
	if len(config.OutputShape) == 0 {
		return nil, errors.Wrap(ErrNotConfigured, "remote output shape is empty")
	}
	shape := tensor.Shape(append([]int(nil), config.OutputShape...))
	for _, d := range shape {
		if d <= 0 {
			return nil, errors.Wrapf(ErrNotConfigured, "invalid remote output shape %v", shape)
		}
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRemoteTimeout
	}

	client := resty.New().SetTimeout(config.Timeout)
	for k, v := range config.Headers {
		client.SetHeader(k, v)
	}

	return &RemoteBackend{config: config, client: client, shape: shape}, nil
}

// Predict posts the input and returns the prediction as a tensor of the
// configured output shape.
func (b *RemoteBackend) Predict(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	if err := checkInput(input, nil); err != nil {
		return nil, err
	}

	var result TensorPayload
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(TensorPayload{Shape: input.Shape().Clone(), Data: input.Data().([]float32)}).
		SetResult(&result).
		Post(b.config.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "post to %s", b.config.URL)
	}
	if resp.IsError() {
		return nil, errors.Errorf("remote server returned %s: %s", resp.Status(), resp.String())
	}

	if len(result.Data) != b.shape.TotalSize() {
		return nil, errors.Errorf("remote server returned %d values, want %d for shape %v",
			len(result.Data), b.shape.TotalSize(), b.shape)
	}
	return tensor.New(tensor.WithShape(b.shape.Clone()...), tensor.WithBacking(result.Data)), nil
}

// Close releases idle connections.
func (b *RemoteBackend) Close() error {
	b.client.GetClient().CloseIdleConnections()
	return nil
}
