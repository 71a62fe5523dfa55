// Package quant - Affine quantization helpers for NPU output tensors.
package quant

import (
	"github.com/chewxy/math32"
)

// Calibration holds the per-tensor affine quantization parameters reported by
// the NPU runtime for one output tensor.
type Calibration struct {
	// ZeroPoint is the integer that represents real value 0.
	ZeroPoint int32 `json:"zero_point" yaml:"zero_point" mapstructure:"zero_point"`
	// Scale is the real-valued step between adjacent integers.
	Scale float32 `json:"scale" yaml:"scale" mapstructure:"scale"`
}

// Dequantize converts a raw tensor element to its real value.
func (c Calibration) Dequantize(raw int32) float32 {
	return Dequantize(raw, c.ZeroPoint, c.Scale)
}

// Quantize converts a real value into the int8 domain of this calibration.
func (c Calibration) Quantize(v float32) int8 {
	return int8(Quantize(v, c.ZeroPoint, c.Scale, -128, 127))
}

// Dequantize computes (raw - zeroPoint) * scale.
//
// The subtraction is done in integer arithmetic and the product in float32,
// which is the exact mapping the RKNN toolchain uses when it exports an
// affine asymmetric tensor. No rounding is applied.
//
// Arguments:
//   - raw: The quantized element, widened to int32.
//   - zeroPoint: The tensor zero point.
//   - scale: The tensor scale.
//
// Returns:
//   - The dequantized value.
func Dequantize(raw, zeroPoint int32, scale float32) float32 {
	return float32(raw-zeroPoint) * scale
}

// Quantize maps a real value back into the integer domain, clipped to
// [lo, hi]. The fractional part is truncated towards zero.
//
// Arguments:
//   - v: The real value.
//   - zeroPoint: The tensor zero point.
//   - scale: The tensor scale. A non-positive scale yields zeroPoint clipped to range.
//   - lo, hi: The representable range of the target integer type.
//
// Returns:
//   - The quantized value.
func Quantize(v float32, zeroPoint int32, scale float32, lo, hi int32) int32 {
	if scale <= 0 || math32.IsNaN(v) {
		return min(max(zeroPoint, lo), hi)
	}
	q := v/scale + float32(zeroPoint)
	if q <= float32(lo) {
		return lo
	}
	if q >= float32(hi) {
		return hi
	}
	return int32(q)
}

// Activation describes how raw decoded channels are turned into
// probabilities and box offsets.
type Activation string

const (
	// ActivationSigmoid applies the logistic function to every channel.
	// This is the default for exports that leave the head un-activated.
	ActivationSigmoid Activation = "sigmoid"
	// ActivationNone uses dequantized channels as-is, for exports that fuse
	// the sigmoid into the graph before quantization.
	ActivationNone Activation = "none"
)

// Valid reports whether the activation is known.
func (a Activation) Valid() bool {
	return a == ActivationSigmoid || a == ActivationNone
}

// Apply runs the activation on a single value.
func (a Activation) Apply(x float32) float32 {
	if a == ActivationNone {
		return x
	}
	return Sigmoid(x)
}

// Probability runs the activation and clamps the result to [0, 1].
func (a Activation) Probability(x float32) float32 {
	p := a.Apply(x)
	switch {
	case math32.IsNaN(p):
		return p
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Sigmoid computes 1 / (1 + exp(-x)).
func Sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// Logit is the inverse of Sigmoid. Values at or beyond the [0, 1] bounds map
// to -Inf and +Inf.
func Logit(p float32) float32 {
	if p <= 0 {
		return math32.Inf(-1)
	}
	if p >= 1 {
		return math32.Inf(1)
	}
	return -math32.Log(1/p - 1)
}
