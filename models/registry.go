// Package models - registry for models.
package models

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-rknn/models/model"
	"github.com/nvr-ai/go-rknn/models/quant"
	"github.com/nvr-ai/go-rknn/models/yolov5"
)

// NewModelArgs selects a model and carries its options.
type NewModelArgs struct {
	// Name picks the decoder.
	Name model.Name
	// YOLOv5 configures the yolov5 decoder.
	YOLOv5 yolov5.Options
}

// NewModel creates a new detection model instance based on the specified model name.
//
// The registry is the single place that maps a configured name to a
// constructor, so callers can hold a model.Model without knowing the head.
//
// Arguments:
//   - args: The model name and its options.
//
// Returns:
//   - model.Model: A configured model.
//   - error: An error wrapping quant.ErrConfiguration if the name is unknown
//     or the options are invalid.
//
// Example:
//
//	m, err := models.NewModel(models.NewModelArgs{
//	    Name:   model.ModelNameYOLOv5,
//	    YOLOv5: yolov5.DefaultOptions(),
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create detection model: %v", err)
//	}
func NewModel(args NewModelArgs) (model.Model, error) {
	switch args.Name {
	case model.ModelNameYOLOv5:
		m, err := yolov5.NewModel(args.YOLOv5)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errors.Wrapf(quant.ErrConfiguration, "unsupported model name: %q", args.Name)
	}
}
