package config

import (
	"github.com/spf13/viper"

	"github.com/nvr-ai/go-rknn/models/model"
	"github.com/nvr-ai/go-rknn/models/postprocess"
	"github.com/nvr-ai/go-rknn/models/quant"
	"github.com/nvr-ai/go-rknn/models/yolov5"
)

// setDefaults sets default values for the configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("model", string(model.ModelNameYOLOv5))

	v.SetDefault("input.width", 640)
	v.SetDefault("input.height", 640)

	v.SetDefault("thresholds.confidence", yolov5.DefaultConfThreshold)
	v.SetDefault("thresholds.nms", yolov5.DefaultNMSThreshold)

	v.SetDefault("output.layout", string(quant.LayoutNHWC))
	v.SetDefault("output.activation", string(quant.ActivationSigmoid))
	v.SetDefault("output.precision", string(model.PrecisionINT8))
	v.SetDefault("output.max_detections", postprocess.DefaultMaxDetections)

	v.SetDefault("nms_workers", 0)
	v.SetDefault("objectness_floor", true)
	v.SetDefault("labels_path", "")
}
