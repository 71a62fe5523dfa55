// Package model - Shared model identifiers, call parameters and interfaces.
package model

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-rknn/models/postprocess"
	"github.com/nvr-ai/go-rknn/models/quant"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyCOCO is the COCO model family.
	ModelFamilyCOCO Family = "coco"
	// ModelFamilyYOLO is the YOLO model family.
	ModelFamilyYOLO Family = "yolo"
	// ModelFamilyVOC is the Pascal VOC model family.
	ModelFamilyVOC Family = "voc"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOv5 is the name of the three-scale anchor-based YOLOv5 head.
	ModelNameYOLOv5 Name = "yolov5"
)

// Params are the per-call inputs of post-processing that are not part of
// the model configuration.
type Params struct {
	// InputWidth and InputHeight are the model input size in pixels.
	InputWidth  int `json:"input_width" yaml:"input_width" mapstructure:"input_width"`
	InputHeight int `json:"input_height" yaml:"input_height" mapstructure:"input_height"`
	// ConfThreshold is the minimum objectness x class score to keep a box.
	ConfThreshold float32 `json:"conf_threshold" yaml:"conf_threshold" mapstructure:"conf_threshold"`
	// NMSThreshold is the IoU above which a lower scoring box of the same
	// class is suppressed.
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold" mapstructure:"nms_threshold"`
	// ScaleW and ScaleH are resized / original for each axis.
	ScaleW float32 `json:"scale_w" yaml:"scale_w" mapstructure:"scale_w"`
	ScaleH float32 `json:"scale_h" yaml:"scale_h" mapstructure:"scale_h"`
}

// Validate checks that the parameters can drive a decode.
//
// Returns:
//   - An error wrapping quant.ErrConfiguration describing the first invalid field.
func (p Params) Validate() error {
	if p.InputWidth <= 0 || p.InputHeight <= 0 {
		return errors.Wrapf(quant.ErrConfiguration, "input size %dx%d must be positive", p.InputWidth, p.InputHeight)
	}
	if !finite(p.ConfThreshold) || !finite(p.NMSThreshold) {
		return errors.Wrap(quant.ErrConfiguration, "thresholds must be finite")
	}
	if !(p.ScaleW > 0) || !(p.ScaleH > 0) || !finite(p.ScaleW) || !finite(p.ScaleH) {
		return errors.Wrapf(quant.ErrConfiguration, "scale factors %v x %v must be positive", p.ScaleW, p.ScaleH)
	}
	return nil
}

// Model turns the raw outputs of one inference call into detections.
type Model interface {
	// Name returns the model identifier.
	Name() Name
	// PostProcess decodes, filters, suppresses and rescales one frame.
	PostProcess(outputs []*quant.Tensor, params Params) (postprocess.DetectionSet, error)
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}
