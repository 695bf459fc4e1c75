package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GraphBackend runs a gorgonia expression graph. The input node is bound to
// each request with Let and the value of the output node is returned.
//
// It is for callers that build their own *G.ExprGraph in Go, for example a
// network assembled from Darknet weights. NewBackend does not create it;
// pass it to EngineBuilder.WithBackend instead.
type GraphBackend struct {
	mu      sync.Mutex
	graph   *G.ExprGraph
	input   *G.Node
	output  *G.Node
	machine G.VM
}

// NewGraphBackend compiles g into a tape machine.
//
// Arguments:
//   - g: The expression graph holding the network.
//   - input: The node that receives the [1, H, W, 3] input.
//   - output: The node holding the raw prediction.
//
// Returns:
//   - The backend.
//   - ErrNotConfigured if any argument is nil.
func NewGraphBackend(g *G.ExprGraph, input, output *G.Node) (*GraphBackend, error) {
	if g == nil || input == nil || output == nil {
		return nil, errors.Wrap(ErrNotConfigured, "graph backend needs a graph, an input and an output node")
	}
	return &GraphBackend{
		graph:   g,
		input:   input,
		output:  output,
		machine: G.NewTapeMachine(g),
	}, nil
}

// Predict runs the graph on input. Calls are serialized because the graph
// holds its values in place.
func (b *GraphBackend) Predict(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkInput(input, b.input.Shape()); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.machine == nil {
		return nil, ErrClosed
	}
	defer b.machine.Reset()

	if err := G.Let(b.input, input); err != nil {
		return nil, errors.Wrap(err, "bind graph input")
	}
	if err := b.machine.RunAll(); err != nil {
		return nil, errors.Wrap(err, "run graph")
	}

	out, ok := b.output.Value().(*tensor.Dense)
	if !ok {
		return nil, errors.Errorf("graph output is %T, not a dense tensor", b.output.Value())
	}
	// The graph reuses its buffers on the next run.
	return out.Clone().(*tensor.Dense), nil
}

// Close releases the tape machine.
func (b *GraphBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.machine == nil {
		return nil
	}
	err := b.machine.Close()
	b.machine = nil
	return errors.Wrap(err, "close graph machine")
}
