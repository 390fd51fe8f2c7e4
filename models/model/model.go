// Package model - Definitions for the pill detector models and their output layouts.
package model

import (
	"github.com/nvr-ai/go-pillcheck/models/postprocess"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyYOLOv5 is the YOLOv5 family the pill models are trained with.
	ModelFamilyYOLOv5 Family = "yolov5"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNamePillCount is the counting model: 9 class scores per row.
	ModelNamePillCount Name = "pill-count"
	// ModelNamePillSearch is the identification model: 11 class scores per row.
	ModelNamePillSearch Name = "pill-search"
	// ModelNamePillBoxes is a box-only export with no class scores.
	ModelNamePillBoxes Name = "pill-boxes"
)

// DefaultRows is the number of candidate rows a 640x640 YOLOv5 model emits.
const DefaultRows = 25200

// DefaultInputSize is the edge length of the square model input, in pixels.
const DefaultInputSize = 640

// Preset describes a shipped model: how its output is laid out and how its output is
// meant to be post-processed.
type Preset struct {
	Name      Name               `json:"name" yaml:"name"`
	Family    Family             `json:"family" yaml:"family"`
	Path      string             `json:"path" yaml:"path"`
	InputSize int                `json:"input_size" yaml:"input_size"`
	Rows      int                `json:"rows" yaml:"rows"`
	Layout    postprocess.Layout `json:"layout" yaml:"layout"`
	Mode      postprocess.Mode   `json:"mode" yaml:"mode"`
	Policy    postprocess.Policy `json:"policy" yaml:"policy"`
	Classes   []string           `json:"classes" yaml:"classes"`
	Inputs    []string           `json:"inputs" yaml:"inputs"`
	Outputs   []string           `json:"outputs" yaml:"outputs"`
}

// InputShape returns the NHWC input tensor shape.
func (p Preset) InputShape() []int64 {
	return []int64{1, int64(p.InputSize), int64(p.InputSize), 3}
}

// OutputShape returns the [1, N, W] output tensor shape.
func (p Preset) OutputShape() []int64 {
	return []int64{1, int64(p.Rows), int64(p.Layout.RowWidth())}
}

// OutputLen returns the number of floats in one output tensor.
func (p Preset) OutputLen() int {
	return p.Rows * p.Layout.RowWidth()
}
