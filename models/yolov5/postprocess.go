// Package yolov5 - postprocess YOLOv5 model outputs.
package yolov5

import (
	"image"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-rknn/images"
	"github.com/nvr-ai/go-rknn/metrics"
	"github.com/nvr-ai/go-rknn/models/model"
	"github.com/nvr-ai/go-rknn/models/postprocess"
	"github.com/nvr-ai/go-rknn/models/quant"
)

// DecodeDetections decodes the three head outputs of one frame into
// detections in original image coordinates.
//
// It is a convenience wrapper around NewModel and PostProcess for callers
// that do not keep a model around.
//
// Arguments:
//   - small, medium, large: The head outputs ordered by ascending stride.
//   - params: Input size, thresholds and scale factors for this frame.
//   - opts: Model options; zero-valued fields use DefaultOptions.
//
// Returns:
//   - The detection set.
//   - An error wrapping quant.ErrConfiguration if anything does not line up.
func DecodeDetections(small, medium, large *quant.Tensor, params model.Params, opts Options) (postprocess.DetectionSet, error) {
	m, err := NewModel(opts)
	if err != nil {
		return postprocess.DetectionSet{}, err
	}
	return m.PostProcess([]*quant.Tensor{small, medium, large}, params)
}

// PostProcess postprocesses the outputs of the YOLOv5 model.
//
// The pipeline is decode (all scales in parallel, concatenated small to
// large) -> confidence filter -> per-class NMS -> rescale to the original
// image -> label -> cap at MaxDetections. The tensors are only read.
//
// Arguments:
//   - outputs: One tensor per configured scale, ordered like Options.Scales.
//   - params: Input size, thresholds and scale factors for this frame.
//
// Returns:
//   - The detection set. Overflow past MaxDetections is reported in Truncated.
//   - An error wrapping quant.ErrConfiguration; no partial result is returned.
func (m *YOLOv5) PostProcess(outputs []*quant.Tensor, params model.Params) (postprocess.DetectionSet, error) {
	rec := m.options.Recorder

	set, err := m.postProcess(outputs, params)
	if err != nil {
		rec.RecordFrame("error")
		rec.RecordError("postprocess", errorType(err))
		m.logger.Error("post-processing failed", "error", err)
		return postprocess.DetectionSet{}, err
	}

	rec.RecordFrame("success")
	return set, nil
}

func (m *YOLOv5) postProcess(outputs []*quant.Tensor, params model.Params) (postprocess.DetectionSet, error) {
	if err := params.Validate(); err != nil {
		return postprocess.DetectionSet{}, err
	}
	if len(outputs) != len(m.options.Scales) {
		return postprocess.DetectionSet{}, errors.Wrapf(quant.ErrConfiguration,
			"got %d output tensors, model has %d scales", len(outputs), len(m.options.Scales))
	}

	candidates, err := m.decode(outputs, params)
	if err != nil {
		return postprocess.DetectionSet{}, err
	}

	filtered := postprocess.FilterByConfidence(candidates, params.ConfThreshold)
	kept := postprocess.ApplyNMS(filtered, &postprocess.NMSConfig{
		IoUThreshold: params.NMSThreshold,
		NumWorkers:   m.options.NMSWorkers,
	})

	bounds := images.OriginalSize(image.Point{X: params.InputWidth, Y: params.InputHeight}, params.ScaleW, params.ScaleH)
	rescale := func(box images.Rect) images.Rect {
		return images.Rescale(box, params.ScaleW, params.ScaleH, bounds)
	}
	set := postprocess.ToDetections(kept, m.options.Classes.Name, rescale, m.options.MaxDetections)

	rec := m.options.Recorder
	rec.RecordCandidates(metrics.StageDecoded, len(candidates))
	rec.RecordCandidates(metrics.StageConfident, len(filtered))
	rec.RecordCandidates(metrics.StageSuppressed, len(kept))
	for _, d := range set.Detections {
		rec.RecordDetection(d.Label)
	}
	rec.RecordTruncated(set.Truncated)

	m.logger.Debug("frame post-processed",
		"decoded", len(candidates),
		"confident", len(filtered),
		"kept", len(kept),
		"detections", set.Len())
	if set.Truncated > 0 {
		m.logger.Warn("detections truncated",
			"capacity", m.options.MaxDetections,
			"dropped", set.Truncated)
	}

	return set, nil
}

// decode runs DecodeScale for every output concurrently and concatenates the
// results in scale order, renumbering Order across scales.
func (m *YOLOv5) decode(outputs []*quant.Tensor, params model.Params) ([]postprocess.Candidate, error) {
	cfg := DecodeConfig{
		Layout:     m.options.Layout,
		Activation: m.options.Activation,
		NumClasses: m.options.NumClasses,
	}
	if m.options.ObjectnessFloor {
		cfg.ObjectnessFloor = max(params.ConfThreshold, 0)
	}

	perScale := make([][]postprocess.Candidate, len(outputs))
	var eg errgroup.Group
	for i, out := range outputs {
		eg.Go(func() error {
			candidates, err := DecodeScale(out, m.options.Scales[i], params.InputWidth, params.InputHeight, cfg)
			if err != nil {
				return errors.Wrapf(err, "decode output %d", i)
			}
			perScale[i] = candidates
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, c := range perScale {
		total += len(c)
	}
	merged := make([]postprocess.Candidate, 0, total)
	for _, c := range perScale {
		for _, cand := range c {
			cand.Order = len(merged)
			merged = append(merged, cand)
		}
	}
	return merged, nil
}

func errorType(err error) string {
	if errors.Is(err, quant.ErrConfiguration) {
		return "configuration"
	}
	return "unknown"
}
