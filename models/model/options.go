package model

// Precision is the element type of a quantized output tensor as reported by
// the NPU runtime.
type Precision string

const (
	// PrecisionINT8 is the signed 8-bit affine type used by most RKNN exports.
	PrecisionINT8 Precision = "int8"
	// PrecisionUINT8 is the unsigned 8-bit affine type.
	PrecisionUINT8 Precision = "uint8"
)

// Valid reports whether the precision is supported.
func (p Precision) Valid() bool {
	return p == PrecisionINT8 || p == PrecisionUINT8
}
