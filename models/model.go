// Package models - Definitions for model output class styles and sets.
package models

// ModelFamily identifies the dataset a detector was trained on, which fixes
// the order of its class outputs.
type ModelFamily string

const (
	// ModelFamilyVOC is the Pascal VOC family: 20 classes, no background.
	ModelFamilyVOC ModelFamily = "voc"
	// ModelFamilyCOCO is the COCO family as YOLO emits it: 80 classes, no background.
	ModelFamilyCOCO ModelFamily = "coco"
	// ModelFamilyCustom is a label list supplied through configuration.
	ModelFamilyCustom ModelFamily = "custom"
)
