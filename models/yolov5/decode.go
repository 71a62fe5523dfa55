package yolov5

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-rknn/images"
	"github.com/nvr-ai/go-rknn/models/postprocess"
	"github.com/nvr-ai/go-rknn/models/quant"
)

// Channel offsets within one anchor's prediction.
const (
	channelX = iota
	channelY
	channelW
	channelH
	channelObjectness
	channelClasses
)

// DecodeConfig controls how one scale is decoded.
type DecodeConfig struct {
	// Layout is the memory order of the tensor.
	Layout quant.Layout
	// Activation is applied to every channel.
	Activation quant.Activation
	// NumClasses is the number of class channels per anchor.
	NumClasses int
	// ObjectnessFloor skips anchors whose objectness probability is below
	// it. Zero disables the floor.
	ObjectnessFloor float32
}

// DecodeScale turns one detection head output into candidates in model
// input coordinates.
//
// Every cell of the rows x cols grid (rows = inputHeight / stride) and every
// anchor of the scale is visited in row, column, anchor order:
//
//	cx = (a(tx)*2 - 0.5 + col) * stride
//	cy = (a(ty)*2 - 0.5 + row) * stride
//	w  = (a(tw)*2)^2 * anchor.Width
//	h  = (a(th)*2)^2 * anchor.Height
//
// where a is the configured activation. The class with the highest score
// wins (lowest index on ties) and the candidate score is objectness times
// that class score. Boxes are clipped to the input frame; candidates with a
// non-finite or negative score, or with no area after clipping, are dropped.
// Confidence thresholding is left to the caller.
//
// Arguments:
//   - t: The quantized output tensor for this scale. It is only read.
//   - scale: The stride and anchors of this scale.
//   - inputWidth, inputHeight: The model input size in pixels.
//   - cfg: Layout, activation and class count.
//
// Returns:
//   - Candidates with Order numbered from 0 in decode order.
//   - An error wrapping quant.ErrConfiguration if the tensor shape does not match.
func DecodeScale(
	t *quant.Tensor,
	scale Scale,
	inputWidth, inputHeight int,
	cfg DecodeConfig,
) ([]postprocess.Candidate, error) {
	if t == nil {
		return nil, errors.Wrap(quant.ErrConfiguration, "missing output tensor")
	}
	if scale.Stride <= 0 {
		return nil, errors.Wrapf(quant.ErrConfiguration, "stride %d must be positive", scale.Stride)
	}

	rows := inputHeight / scale.Stride
	cols := inputWidth / scale.Stride
	grid, err := t.Grid(cfg.Layout, rows, cols, len(scale.Anchors), channelClasses+cfg.NumClasses)
	if err != nil {
		return nil, errors.Wrapf(err, "stride %d", scale.Stride)
	}

	act := cfg.Activation
	stride := float32(scale.Stride)
	frameW := float32(inputWidth)
	frameH := float32(inputHeight)

	candidates := make([]postprocess.Candidate, 0)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			for a, anchor := range scale.Anchors {
				// score <= objectness, so anchors below the floor cannot pass
				// a confidence threshold at or above it.
				objectness := act.Probability(grid.At(row, col, a, channelObjectness))
				if objectness < cfg.ObjectnessFloor {
					continue
				}

				// Activations are monotonic, so the argmax can be taken on
				// dequantized values and only the winner activated.
				bestClass := 0
				bestRaw := grid.At(row, col, a, channelClasses)
				for k := 1; k < cfg.NumClasses; k++ {
					if v := grid.At(row, col, a, channelClasses+k); v > bestRaw {
						bestClass = k
						bestRaw = v
					}
				}

				score := objectness * act.Probability(bestRaw)
				if math32.IsNaN(score) || math32.IsInf(score, 0) || score < 0 {
					continue
				}

				tx := act.Apply(grid.At(row, col, a, channelX))
				ty := act.Apply(grid.At(row, col, a, channelY))
				tw := act.Apply(grid.At(row, col, a, channelW))
				th := act.Apply(grid.At(row, col, a, channelH))

				cx := (tx*2 - 0.5 + float32(col)) * stride
				cy := (ty*2 - 0.5 + float32(row)) * stride
				w := (tw * 2) * (tw * 2) * anchor.Width
				h := (th * 2) * (th * 2) * anchor.Height

				box := images.Rect{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2}
				if !box.Finite() {
					continue
				}
				box = box.Clip(0, 0, frameW, frameH)
				if box.Empty() {
					continue
				}

				candidates = append(candidates, postprocess.Candidate{
					Box:   box,
					Class: bestClass,
					Score: score,
					Order: len(candidates),
				})
			}
		}
	}

	return candidates, nil
}
