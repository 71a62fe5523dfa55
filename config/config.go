// Package config - YAML and environment configuration for the decoder.
package config

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/nvr-ai/go-rknn/metrics"
	"github.com/nvr-ai/go-rknn/models/model"
	"github.com/nvr-ai/go-rknn/models/quant"
	"github.com/nvr-ai/go-rknn/models/yolov5"
	"github.com/nvr-ai/go-rknn/util"
)

// EnvPrefix prefixes environment overrides, e.g. RKNN_THRESHOLDS_CONFIDENCE.
const EnvPrefix = "RKNN"

// Settings is the decoder configuration.
type Settings struct {
	// Model selects the decoder from the registry.
	Model string `mapstructure:"model" yaml:"model"`

	Input struct {
		Width  int `mapstructure:"width" yaml:"width"`
		Height int `mapstructure:"height" yaml:"height"`
	} `mapstructure:"input" yaml:"input"`

	Thresholds struct {
		Confidence float32 `mapstructure:"confidence" yaml:"confidence"`
		NMS        float32 `mapstructure:"nms" yaml:"nms"`
	} `mapstructure:"thresholds" yaml:"thresholds"`

	Output struct {
		Layout        string `mapstructure:"layout" yaml:"layout"`
		Activation    string `mapstructure:"activation" yaml:"activation"`
		Precision     string `mapstructure:"precision" yaml:"precision"`
		MaxDetections int    `mapstructure:"max_detections" yaml:"max_detections"`
	} `mapstructure:"output" yaml:"output"`

	NMSWorkers      int  `mapstructure:"nms_workers" yaml:"nms_workers"`
	ObjectnessFloor bool `mapstructure:"objectness_floor" yaml:"objectness_floor"`

	// LabelsPath is a label file with one class name per line. Empty means
	// the 80 COCO classes.
	LabelsPath string `mapstructure:"labels_path" yaml:"labels_path"`

	// Scales overrides the stride and anchor table. Empty means the YOLOv5
	// COCO anchors.
	Scales []yolov5.Scale `mapstructure:"scales" yaml:"scales"`
}

// Load reads the configuration file and environment variables into Settings.
//
// Arguments:
//   - path: A YAML file. Empty loads defaults and environment overrides only.
//
// Returns:
//   - *Settings: The validated settings.
//   - error: Error if reading, unmarshaling or validation fails.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "error reading config file %s", path)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config into struct")
	}

	if err := settings.Validate(); err != nil {
		return nil, errors.Wrap(err, "error validating settings")
	}

	return settings, nil
}

// Validate checks values that would otherwise only fail on the first frame.
func (s *Settings) Validate() error {
	if model.Name(s.Model) != model.ModelNameYOLOv5 {
		return errors.Wrapf(quant.ErrConfiguration, "unsupported model %q", s.Model)
	}
	if s.Input.Width <= 0 || s.Input.Height <= 0 {
		return errors.Wrapf(quant.ErrConfiguration, "input size %dx%d must be positive", s.Input.Width, s.Input.Height)
	}
	if s.Thresholds.Confidence < 0 || s.Thresholds.Confidence > 1 {
		return errors.Wrapf(quant.ErrConfiguration, "confidence threshold %v must be within [0, 1]", s.Thresholds.Confidence)
	}
	if s.Thresholds.NMS < 0 || s.Thresholds.NMS > 1 {
		return errors.Wrapf(quant.ErrConfiguration, "nms threshold %v must be within [0, 1]", s.Thresholds.NMS)
	}
	if !quant.Layout(s.Output.Layout).Valid() {
		return errors.Wrapf(quant.ErrConfiguration, "unknown layout %q", s.Output.Layout)
	}
	if !quant.Activation(s.Output.Activation).Valid() {
		return errors.Wrapf(quant.ErrConfiguration, "unknown activation %q", s.Output.Activation)
	}
	if !model.Precision(s.Output.Precision).Valid() {
		return errors.Wrapf(quant.ErrConfiguration, "unknown precision %q", s.Output.Precision)
	}
	if s.Output.MaxDetections < 0 {
		return errors.Wrapf(quant.ErrConfiguration, "max detections %d must not be negative", s.Output.MaxDetections)
	}
	if s.NMSWorkers < 0 {
		return errors.Wrapf(quant.ErrConfiguration, "nms workers %d must not be negative", s.NMSWorkers)
	}
	for _, scale := range s.Scales {
		if scale.Stride <= 0 || s.Input.Width%scale.Stride != 0 || s.Input.Height%scale.Stride != 0 {
			return errors.Wrapf(quant.ErrConfiguration, "stride %d does not divide input %dx%d",
				scale.Stride, s.Input.Width, s.Input.Height)
		}
	}
	return nil
}

// Options converts the settings into decoder options, loading the label
// file if one is configured.
//
// Arguments:
//   - logger: The logger handed to the model. Nil means slog.Default().
//   - recorder: The metrics recorder. Nil means no metrics.
//
// Returns:
//   - yolov5.Options: The options, ready for yolov5.NewModel.
//   - error: Error if the label file cannot be loaded.
func (s *Settings) Options(logger *slog.Logger, recorder metrics.Recorder) (yolov5.Options, error) {
	opts := yolov5.DefaultOptions()
	if len(s.Scales) > 0 {
		opts.Scales = s.Scales
	}
	if s.LabelsPath != "" {
		names, err := util.LoadLabels(s.LabelsPath)
		if err != nil {
			return yolov5.Options{}, err
		}
		classes, err := model.NewOutputClassSet(model.ModelFamilyYOLO, names)
		if err != nil {
			return yolov5.Options{}, err
		}
		opts.Classes = classes
	}
	opts.Layout = quant.Layout(s.Output.Layout)
	opts.Activation = quant.Activation(s.Output.Activation)
	if s.Output.MaxDetections > 0 {
		opts.MaxDetections = s.Output.MaxDetections
	}
	if s.NMSWorkers > 0 {
		opts.NMSWorkers = s.NMSWorkers
	}
	opts.ObjectnessFloor = s.ObjectnessFloor
	opts.Logger = logger
	opts.Recorder = recorder
	return opts, nil
}

// Params returns per-call parameters for a frame resized by the given
// factors (resized / original).
func (s *Settings) Params(scaleW, scaleH float32) model.Params {
	return model.Params{
		InputWidth:    s.Input.Width,
		InputHeight:   s.Input.Height,
		ConfThreshold: s.Thresholds.Confidence,
		NMSThreshold:  s.Thresholds.NMS,
		ScaleW:        scaleW,
		ScaleH:        scaleH,
	}
}

// Precision returns the element type of the output tensors.
func (s *Settings) Precision() model.Precision {
	return model.Precision(s.Output.Precision)
}
