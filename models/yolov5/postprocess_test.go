package yolov5

import (
	"io"
	"log/slog"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nvr-ai/go-rknn/images"
	"github.com/nvr-ai/go-rknn/metrics"
	"github.com/nvr-ai/go-rknn/models/model"
	"github.com/nvr-ai/go-rknn/models/quant"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// frame is a 256x256 input with one anchor on the two small scales and a
// 100x100 / 100x90 anchor pair on the stride 32 scale.
type frame struct {
	small, medium, large *head
}

func newFrame() *frame {
	return &frame{
		small:  newHead(quant.LayoutNHWC, 32, 32, 1, 2, 0),
		medium: newHead(quant.LayoutNHWC, 16, 16, 1, 2, 0),
		large:  newHead(quant.LayoutNHWC, 8, 8, 2, 2, 0),
	}
}

func (f *frame) outputs(t *testing.T) []*quant.Tensor {
	return []*quant.Tensor{f.small.tensor(t, fused), f.medium.tensor(t, fused), f.large.tensor(t, fused)}
}

func frameOptions(t *testing.T) Options {
	t.Helper()
	classes, err := model.NewOutputClassSet(model.ModelFamilyYOLO, []string{"person", "car"})
	require.NoError(t, err)
	return Options{
		Scales: []Scale{
			{Stride: 8, Anchors: []Anchor{{10, 13}}},
			{Stride: 16, Anchors: []Anchor{{30, 61}}},
			{Stride: 32, Anchors: []Anchor{{100, 100}, {100, 90}}},
		},
		Classes:    classes,
		Activation: quant.ActivationNone,
		Logger:     quiet,
	}
}

func TestPostProcessRescalesToOriginal(t *testing.T) {
	f := newFrame()
	// Decodes to (100, 100, 200, 200) in the 256x256 input.
	f.large.predict(4, 4, 0, 19, 19, 16, 16, 32, 1, 32)

	params := DefaultParams(256, 256)
	params.ScaleW, params.ScaleH = 2, 2

	m, err := NewModel(frameOptions(t))
	require.NoError(t, err)

	set, err := m.PostProcess(f.outputs(t), params)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.Zero(t, set.Truncated)

	d := set.Detections[0]
	assert.Equal(t, images.Rect{X1: 50, Y1: 50, X2: 100, Y2: 100}, d.Box)
	assert.Equal(t, 1, d.Class)
	assert.Equal(t, "car", d.Label)
	assert.Equal(t, float32(1), d.Score)
}

func TestPostProcessClampsToOriginalImage(t *testing.T) {
	f := newFrame()
	// cx = (1.5 - 0.5 + 7) * 32 = 256, so the box is clipped at the input edge.
	f.large.predict(7, 7, 0, 24, 24, 16, 16, 32, 0, 32)

	params := DefaultParams(256, 256)
	params.ScaleW, params.ScaleH = 0.5, 0.5

	set, err := DecodeDetections(f.small.tensor(t, fused), f.medium.tensor(t, fused), f.large.tensor(t, fused),
		params, frameOptions(t))
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	// The original image is 512x512.
	assert.Equal(t, images.Rect{X1: 412, Y1: 412, X2: 511, Y2: 511}, set.Detections[0].Box)
}

func TestPostProcessSuppressesSameClass(t *testing.T) {
	f := newFrame()
	// Same cell, same class: (100, 100, 200, 200) and (100, 105, 200, 195),
	// IoU 0.9.
	f.large.predict(4, 4, 0, 19, 19, 16, 16, 32, 0, 32)
	f.large.predict(4, 4, 1, 19, 19, 16, 16, 26, 0, 32)

	m, err := NewModel(frameOptions(t))
	require.NoError(t, err)

	set, err := m.PostProcess(f.outputs(t), DefaultParams(256, 256))
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.Equal(t, float32(1), set.Detections[0].Score)
	assert.Equal(t, images.Rect{X1: 100, Y1: 100, X2: 200, Y2: 200}, set.Detections[0].Box)
}

func TestPostProcessKeepsOverlappingDifferentClasses(t *testing.T) {
	f := newFrame()
	f.large.predict(4, 4, 0, 19, 19, 16, 16, 26, 1, 32)
	f.large.predict(4, 4, 1, 19, 19, 16, 16, 32, 0, 32)

	m, err := NewModel(frameOptions(t))
	require.NoError(t, err)

	set, err := m.PostProcess(f.outputs(t), DefaultParams(256, 256))
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	assert.Equal(t, "person", set.Detections[0].Label)
	assert.Equal(t, images.Rect{X1: 100, Y1: 105, X2: 200, Y2: 195}, set.Detections[0].Box)
	assert.Equal(t, "car", set.Detections[1].Label)
	assert.Equal(t, float32(26)/32, set.Detections[1].Score)
}

func TestPostProcessTruncatesAndRecords(t *testing.T) {
	f := newFrame()
	f.large.predict(1, 1, 0, 19, 19, 16, 16, 32, 0, 32)
	f.large.predict(4, 4, 0, 19, 19, 16, 16, 30, 0, 32)
	f.large.predict(6, 6, 0, 19, 19, 16, 16, 28, 0, 32)

	rec := metrics.NewTestRecorder()
	opts := frameOptions(t)
	opts.MaxDetections = 2
	opts.Recorder = rec

	m, err := NewModel(opts)
	require.NoError(t, err)

	set, err := m.PostProcess(f.outputs(t), DefaultParams(256, 256))
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())
	assert.Equal(t, 1, set.Truncated)

	// Highest scores survive the cap.
	assert.Equal(t, float32(1), set.Detections[0].Score)
	assert.Equal(t, float32(30)/32, set.Detections[1].Score)

	assert.Equal(t, 1, rec.Frames("success"))
	assert.Equal(t, 3, rec.Candidates(metrics.StageDecoded))
	assert.Equal(t, 3, rec.Candidates(metrics.StageConfident))
	assert.Equal(t, 3, rec.Candidates(metrics.StageSuppressed))
	assert.Equal(t, 2, rec.Detections("person"))
	assert.Equal(t, 1, rec.Truncated())
}

func TestPostProcessConfidenceThreshold(t *testing.T) {
	f := newFrame()
	f.large.predict(2, 2, 0, 16, 16, 16, 16, 16, 0, 16)

	m, err := NewModel(frameOptions(t))
	require.NoError(t, err)

	// Score is 0.5 * 0.5.
	params := DefaultParams(256, 256)
	params.ConfThreshold = 0.25
	set, err := m.PostProcess(f.outputs(t), params)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())

	params.ConfThreshold = 0.26
	set, err = m.PostProcess(f.outputs(t), params)
	require.NoError(t, err)
	assert.Zero(t, set.Len())
}

func TestPostProcessAllZero(t *testing.T) {
	zeroOutputs := func(t *testing.T) []*quant.Tensor {
		var out []*quant.Tensor
		for _, s := range COCOScales() {
			grid := 64 / s.Stride
			h := newHead(quant.LayoutNHWC, grid, grid, len(s.Anchors), 80, 0)
			out = append(out, h.tensor(t, quant.Calibration{ZeroPoint: 0, Scale: 0.5}))
		}
		return out
	}

	t.Run("fused activation is always empty", func(t *testing.T) {
		m, err := NewModel(Options{Activation: quant.ActivationNone, Logger: quiet})
		require.NoError(t, err)

		for _, threshold := range []float32{0, 0.25, 0.9} {
			params := DefaultParams(64, 64)
			params.ConfThreshold = threshold
			set, err := m.PostProcess(zeroOutputs(t), params)
			require.NoError(t, err)
			assert.Zero(t, set.Len(), "threshold %v", threshold)
			assert.Zero(t, set.Truncated)
		}
	})

	t.Run("sigmoid scores a quarter", func(t *testing.T) {
		m, err := NewModel(Options{Logger: quiet})
		require.NoError(t, err)

		params := DefaultParams(64, 64)
		params.ConfThreshold = 0.3
		set, err := m.PostProcess(zeroOutputs(t), params)
		require.NoError(t, err)
		assert.Zero(t, set.Len())

		params.ConfThreshold = 0.25
		set, err = m.PostProcess(zeroOutputs(t), params)
		require.NoError(t, err)
		assert.NotZero(t, set.Len())
		assert.LessOrEqual(t, set.Len(), 128)
		for _, d := range set.Detections {
			assert.Equal(t, float32(0.25), d.Score)
			assert.Equal(t, "person", d.Label)
		}
	})
}

func TestPostProcessObjectnessFloorMatchesUnfloored(t *testing.T) {
	f := newFrame()
	f.large.predict(1, 1, 0, 19, 19, 16, 16, 32, 0, 32)
	f.large.predict(4, 4, 1, 19, 19, 16, 16, 12, 1, 32)
	f.medium.predict(3, 3, 0, 16, 16, 16, 16, 20, 1, 30)
	// Scores 0.125 and is skipped by the floor.
	f.small.predict(10, 10, 0, 16, 16, 16, 16, 4, 0, 32)

	floored := frameOptions(t)
	floored.ObjectnessFloor = true
	unfloored := frameOptions(t)

	mf, err := NewModel(floored)
	require.NoError(t, err)
	mu, err := NewModel(unfloored)
	require.NoError(t, err)

	params := DefaultParams(256, 256)
	a, err := mf.PostProcess(f.outputs(t), params)
	require.NoError(t, err)
	b, err := mu.PostProcess(f.outputs(t), params)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 3, a.Len())
}

func TestPostProcessErrors(t *testing.T) {
	f := newFrame()
	bad := newHead(quant.LayoutNHWC, 15, 16, 1, 2, 0)

	tests := []struct {
		name    string
		outputs func(t *testing.T) []*quant.Tensor
		params  model.Params
		msg     string
	}{
		{
			name:    "missing output",
			outputs: func(t *testing.T) []*quant.Tensor { return f.outputs(t)[:2] },
			params:  DefaultParams(256, 256),
			msg:     "got 2 output tensors",
		},
		{
			name: "misshapen medium scale",
			outputs: func(t *testing.T) []*quant.Tensor {
				out := f.outputs(t)
				out[1] = bad.tensor(t, fused)
				return out
			},
			params: DefaultParams(256, 256),
			msg:    "decode output 1",
		},
		{
			name:    "input size does not match the grids",
			outputs: func(t *testing.T) []*quant.Tensor { return f.outputs(t) },
			params:  DefaultParams(320, 320),
			msg:     "does not match",
		},
		{
			name:    "zero scale factor",
			outputs: func(t *testing.T) []*quant.Tensor { return f.outputs(t) },
			params:  model.Params{InputWidth: 256, InputHeight: 256, ConfThreshold: 0.25, NMSThreshold: 0.45},
			msg:     "scale factors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := metrics.NewTestRecorder()
			opts := frameOptions(t)
			opts.Recorder = rec
			m, err := NewModel(opts)
			require.NoError(t, err)

			set, err := m.PostProcess(tt.outputs(t), tt.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, quant.ErrConfiguration), "got %v", err)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Zero(t, set.Len())

			assert.Equal(t, 1, rec.Frames("error"))
			assert.Equal(t, 1, rec.Errors("postprocess", "configuration"))
		})
	}
}

func TestNewModelDefaults(t *testing.T) {
	m, err := NewModel(Options{})
	require.NoError(t, err)

	opts := m.Options()
	assert.Equal(t, model.ModelNameYOLOv5, m.Name())
	assert.Len(t, opts.Scales, 3)
	assert.Equal(t, 80, opts.NumClasses)
	assert.Equal(t, quant.LayoutNHWC, opts.Layout)
	assert.Equal(t, quant.ActivationSigmoid, opts.Activation)
	assert.Equal(t, 128, opts.MaxDetections)
	assert.Positive(t, opts.NMSWorkers)
	assert.NotNil(t, opts.Recorder)
}

func TestNewModelValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "unknown layout", opts: Options{Layout: "nwhc"}},
		{name: "unknown activation", opts: Options{Activation: "relu"}},
		{name: "negative class count", opts: Options{NumClasses: -1}},
		{name: "negative capacity", opts: Options{MaxDetections: -5}},
		{name: "zero stride", opts: Options{Scales: []Scale{{Stride: 0, Anchors: []Anchor{{1, 1}}}}}},
		{name: "no anchors", opts: Options{Scales: []Scale{{Stride: 8}}}},
		{name: "empty anchor", opts: Options{Scales: []Scale{{Stride: 8, Anchors: []Anchor{{0, 4}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModel(tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, quant.ErrConfiguration))
		})
	}
}
