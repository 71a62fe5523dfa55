// Package yolov5 - YOLOv5 three-scale anchor-based detection head.
package yolov5

import (
	"log/slog"
	"runtime"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-rknn/metrics"
	"github.com/nvr-ai/go-rknn/models/model"
	"github.com/nvr-ai/go-rknn/models/postprocess"
	"github.com/nvr-ai/go-rknn/models/quant"
)

// Anchor is a reference box size in model input pixels.
type Anchor struct {
	Width  float32 `json:"width" yaml:"width" mapstructure:"width"`
	Height float32 `json:"height" yaml:"height" mapstructure:"height"`
}

// Scale describes one detection head output.
type Scale struct {
	// Stride is the number of input pixels covered by one grid cell.
	Stride int `json:"stride" yaml:"stride" mapstructure:"stride"`
	// Anchors are the reference boxes predicted at every cell of this scale.
	Anchors []Anchor `json:"anchors" yaml:"anchors" mapstructure:"anchors"`
}

// COCOScales returns the anchor table of the YOLOv5 COCO export used by the
// RKNN model zoo:
//   - Stride 8: (10x13), (16x30), (33x23)
//   - Stride 16: (30x61), (62x45), (59x119)
//   - Stride 32: (116x90), (156x198), (373x326)
func COCOScales() []Scale {
	return []Scale{
		{Stride: 8, Anchors: []Anchor{{10, 13}, {16, 30}, {33, 23}}},
		{Stride: 16, Anchors: []Anchor{{30, 61}, {62, 45}, {59, 119}}},
		{Stride: 32, Anchors: []Anchor{{116, 90}, {156, 198}, {373, 326}}},
	}
}

// Default thresholds of the RKNN YOLOv5 demo.
const (
	DefaultConfThreshold float32 = 0.25
	DefaultNMSThreshold  float32 = 0.45
)

// Options is the options for the YOLOv5 model.
type Options struct {
	// Scales ordered small, medium, large objects (ascending stride).
	Scales []Scale
	// Classes resolves class indices to labels. Defaults to the 80 COCO classes.
	Classes *model.OutputClassSet
	// NumClasses is the number of class channels per anchor. Defaults to Classes.Len().
	NumClasses int
	// Layout is the memory order of the output tensors.
	Layout quant.Layout
	// Activation is applied to every decoded channel.
	Activation quant.Activation
	// MaxDetections caps the detections returned per frame.
	MaxDetections int
	// NMSWorkers bounds how many classes are suppressed in parallel.
	NMSWorkers int
	// ObjectnessFloor skips anchors whose objectness is below the confidence
	// threshold before decoding their class scores and geometry.
	ObjectnessFloor bool
	// Logger receives debug summaries. Defaults to slog.Default().
	Logger *slog.Logger
	// Recorder receives pipeline metrics. Defaults to metrics.NopRecorder.
	Recorder metrics.Recorder
}

// DefaultOptions returns options for a COCO-trained YOLOv5 export with an
// NHWC int8 head and un-activated outputs.
func DefaultOptions() Options {
	return Options{
		Scales:          COCOScales(),
		Classes:         model.YOLOClasses,
		Layout:          quant.LayoutNHWC,
		Activation:      quant.ActivationSigmoid,
		MaxDetections:   postprocess.DefaultMaxDetections,
		NMSWorkers:      runtime.GOMAXPROCS(0),
		ObjectnessFloor: true,
	}
}

// DefaultParams returns the demo thresholds for a square input with no
// resizing. Callers set ScaleW/ScaleH from their own resize step.
func DefaultParams(inputWidth, inputHeight int) model.Params {
	return model.Params{
		InputWidth:    inputWidth,
		InputHeight:   inputHeight,
		ConfThreshold: DefaultConfThreshold,
		NMSThreshold:  DefaultNMSThreshold,
		ScaleW:        1,
		ScaleH:        1,
	}
}

// YOLOv5 is the instance of the YOLOv5 model.
type YOLOv5 struct {
	options Options
	logger  *slog.Logger
}

var _ model.Model = (*YOLOv5)(nil)

// NewModel creates a new model.
//
// Zero-valued fields fall back to DefaultOptions; everything else is
// validated.
//
// Arguments:
//   - opts: The model options.
//
// Returns:
//   - The model.
//   - An error wrapping quant.ErrConfiguration if the options are invalid.
func NewModel(opts Options) (*YOLOv5, error) {
	defaults := DefaultOptions()
	if len(opts.Scales) == 0 {
		opts.Scales = defaults.Scales
	}
	if opts.Classes == nil {
		opts.Classes = defaults.Classes
	}
	if opts.NumClasses == 0 {
		opts.NumClasses = opts.Classes.Len()
	}
	if opts.Layout == "" {
		opts.Layout = defaults.Layout
	}
	if opts.Activation == "" {
		opts.Activation = defaults.Activation
	}
	if opts.MaxDetections == 0 {
		opts.MaxDetections = defaults.MaxDetections
	}
	if opts.NMSWorkers == 0 {
		opts.NMSWorkers = defaults.NMSWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NopRecorder{}
	}

	if err := opts.validate(); err != nil {
		return nil, err
	}

	return &YOLOv5{
		options: opts,
		logger:  opts.Logger.With("module", "yolov5"),
	}, nil
}

func (o Options) validate() error {
	if o.NumClasses <= 0 {
		return errors.Wrapf(quant.ErrConfiguration, "class count %d must be positive", o.NumClasses)
	}
	if !o.Layout.Valid() {
		return errors.Wrapf(quant.ErrConfiguration, "unknown layout %q", o.Layout)
	}
	if !o.Activation.Valid() {
		return errors.Wrapf(quant.ErrConfiguration, "unknown activation %q", o.Activation)
	}
	if o.MaxDetections < 0 {
		return errors.Wrapf(quant.ErrConfiguration, "max detections %d must not be negative", o.MaxDetections)
	}
	for i, s := range o.Scales {
		if s.Stride <= 0 {
			return errors.Wrapf(quant.ErrConfiguration, "scale %d: stride %d must be positive", i, s.Stride)
		}
		if len(s.Anchors) == 0 {
			return errors.Wrapf(quant.ErrConfiguration, "scale %d: no anchors", i)
		}
		for j, a := range s.Anchors {
			if !(a.Width > 0) || !(a.Height > 0) {
				return errors.Wrapf(quant.ErrConfiguration, "scale %d: anchor %d has non-positive size %vx%v",
					i, j, a.Width, a.Height)
			}
		}
	}
	return nil
}

// Name returns the model identifier.
func (m *YOLOv5) Name() model.Name {
	return model.ModelNameYOLOv5
}

// Options returns the options for the YOLOv5 model.
//
// Returns:
//   - The options after defaults were applied.
func (m *YOLOv5) Options() Options {
	return m.options
}
