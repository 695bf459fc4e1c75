// Package preprocess - Turns decoded images into detector input tensors.
package preprocess

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrInvalidInput is returned for nil or zero-sized images.
var ErrInvalidInput = errors.New("invalid input image")

// Channels is the number of color channels in the tensor (RGB).
const Channels = 3

// Preprocessor resizes images to a fixed input size and converts them to a
// batched NHWC float32 tensor with values in [0, 1].
type Preprocessor struct {
	width  int
	height int
	interp resize.InterpolationFunction
}

// NewPreprocessor creates a new preprocessor for the given target size.
//
// Arguments:
// - width: The target width of the model input.
// - height: The target height of the model input.
//
// Returns:
// - A configured Preprocessor instance.
// - error if the target size is not positive.
//
// @example
// preprocessor, err := NewPreprocessor(416, 416)
func NewPreprocessor(width, height int) (*Preprocessor, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid target size %dx%d", width, height)
	}
	return &Preprocessor{
		width:  width,
		height: height,
		interp: resize.Bicubic,
	}, nil
}

// Size returns the target width and height.
func (p *Preprocessor) Size() (int, int) {
	return p.width, p.height
}

// Shape returns the shape of the tensors produced by Preprocess.
func (p *Preprocessor) Shape() tensor.Shape {
	return tensor.Shape{1, p.height, p.width, Channels}
}

// Preprocess performs all necessary preprocessing steps on the input image.
//
// Arguments:
// - img: The input image to preprocess.
//
// Returns:
// - A float32 tensor of shape [1, height, width, 3] in RGB order.
// - ErrInvalidInput if the image is nil or has no pixels.
//
// @example
// input, err := preprocessor.Preprocess(img)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
func (p *Preprocessor) Preprocess(img image.Image) (*tensor.Dense, error) {
	if img == nil {
		return nil, errors.Wrap(ErrInvalidInput, "image is nil")
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, errors.Wrapf(ErrInvalidInput, "invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	resized := resize.Resize(uint(p.width), uint(p.height), img, p.interp)

	return tensor.New(
		tensor.WithShape(p.Shape()...),
		tensor.WithBacking(p.imageToTensor(resized)),
	), nil
}

// Preprocess resizes img to targetHeight × targetWidth with a bicubic filter
// and returns it as a [1, H, W, 3] tensor scaled to [0, 1].
func Preprocess(img image.Image, targetHeight, targetWidth int) (*tensor.Dense, error) {
	p, err := NewPreprocessor(targetWidth, targetHeight)
	if err != nil {
		return nil, err
	}
	return p.Preprocess(img)
}

// imageToTensor converts an image to HWC float32 data scaled to [0, 1].
func (p *Preprocessor) imageToTensor(img image.Image) []float32 {
	bounds := img.Bounds()
	data := make([]float32, p.width*p.height*Channels)

	if rgba, ok := img.(*image.RGBA); ok {
		idx := 0
		for y := 0; y < p.height; y++ {
			row := rgba.Pix[y*rgba.Stride:]
			for x := 0; x < p.width; x++ {
				px := row[x*4:]
				data[idx] = float32(px[0]) / 255
				data[idx+1] = float32(px[1]) / 255
				data[idx+2] = float32(px[2]) / 255
				idx += Channels
			}
		}
		return data
	}

	idx := 0
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			data[idx] = float32(uint8(r>>8)) / 255
			data[idx+1] = float32(uint8(g>>8)) / 255
			data[idx+2] = float32(uint8(b>>8)) / 255
			idx += Channels
		}
	}
	return data
}
