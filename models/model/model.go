// Package model - Model configuration and the contract every detector implements.
package model

import (
	"image"

	"github.com/nvr-ai/go-tinyyolo/models"
	"github.com/nvr-ai/go-tinyyolo/models/postprocess"
	"gorgonia.org/tensor"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameTinyYOLOv2 is the name of the Tiny YOLOv2 model.
	ModelNameTinyYOLOv2 Name = "tiny-yolov2"
	// ModelNameYOLOv2 is the name of the full YOLOv2 model.
	ModelNameYOLOv2 Name = "yolov2"
)

// Family aliases the class family so configs can name it without importing models.
type Family = models.ModelFamily

// Model is a detector with a fixed configuration.
type Model interface {
	// Options returns the validated configuration of the model.
	Options() Config
	// PreProcess turns an image into the input tensor of the network.
	PreProcess(img image.Image) (*tensor.Dense, error)
	// PostProcess turns the raw network output into ranked, de-duplicated detections.
	PostProcess(raw *tensor.Dense) ([]postprocess.Result, error)
}
