package quant

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrConfiguration is returned when a tensor does not have the layout the
// decoder was configured for. Decoding a misshapen tensor would produce
// meaningless geometry, so callers must treat it as fatal for the frame.
var ErrConfiguration = errors.New("tensor configuration mismatch")

// Layout is the memory order of a detection head output.
type Layout string

const (
	// LayoutNHWC stores each grid cell contiguously:
	// [rows, cols, anchors*(5+classes)].
	LayoutNHWC Layout = "nhwc"
	// LayoutNCHW stores each channel plane contiguously:
	// [anchors*(5+classes), rows, cols]. This is what RKNN returns when the
	// output is left in its native format.
	LayoutNCHW Layout = "nchw"
)

// Valid reports whether the layout is known.
func (l Layout) Valid() bool {
	return l == LayoutNHWC || l == LayoutNCHW
}

// Tensor is a read-only quantized output tensor with its calibration.
type Tensor struct {
	dense *tensor.Dense
	calib Calibration
	i8    []int8
	u8    []uint8
}

// New wraps a dense int8 or uint8 tensor.
//
// Arguments:
//   - dense: The tensor produced by the inference backend. It is borrowed, not copied.
//   - calib: The zero point and scale reported for this output.
//
// Returns:
//   - The wrapped tensor.
//   - An error wrapping ErrConfiguration if the dtype is unsupported.
func New(dense *tensor.Dense, calib Calibration) (*Tensor, error) {
	if dense == nil {
		return nil, errors.Wrap(ErrConfiguration, "tensor is nil")
	}
	if calib.Scale <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "scale must be positive, got %v", calib.Scale)
	}

	t := &Tensor{dense: dense, calib: calib}
	switch dense.Dtype() {
	case tensor.Int8:
		data, ok := dense.Data().([]int8)
		if !ok {
			return nil, errors.Wrap(ErrConfiguration, "int8 tensor has no backing slice")
		}
		t.i8 = data
	case tensor.Uint8:
		data, ok := dense.Data().([]uint8)
		if !ok {
			return nil, errors.Wrap(ErrConfiguration, "uint8 tensor has no backing slice")
		}
		t.u8 = data
	default:
		return nil, errors.Wrapf(ErrConfiguration, "unsupported dtype %v", dense.Dtype())
	}
	return t, nil
}

// FromInt8 builds a tensor over an existing int8 buffer.
func FromInt8(data []int8, calib Calibration, shape ...int) (*Tensor, error) {
	if err := checkBacking(len(data), shape); err != nil {
		return nil, err
	}
	return New(tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), calib)
}

// FromUint8 builds a tensor over an existing uint8 buffer.
func FromUint8(data []uint8, calib Calibration, shape ...int) (*Tensor, error) {
	if err := checkBacking(len(data), shape); err != nil {
		return nil, err
	}
	return New(tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), calib)
}

func checkBacking(n int, shape []int) error {
	if len(shape) == 0 {
		return errors.Wrap(ErrConfiguration, "shape is required")
	}
	if want := tensor.Shape(shape).TotalSize(); want != n {
		return errors.Wrapf(ErrConfiguration, "buffer has %d elements, shape %v needs %d", n, shape, want)
	}
	// Single-element dense tensors are scalars and expose no backing slice.
	if n < 2 {
		return errors.Wrapf(ErrConfiguration, "buffer has %d elements", n)
	}
	return nil
}

// Calibration returns the quantization parameters of the tensor.
func (t *Tensor) Calibration() Calibration {
	return t.calib
}

// Shape returns the tensor shape as reported by the backend.
func (t *Tensor) Shape() tensor.Shape {
	return t.dense.Shape()
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	if t.i8 != nil {
		return len(t.i8)
	}
	return len(t.u8)
}

// Raw returns element i widened to int32.
func (t *Tensor) Raw(i int) int32 {
	if t.i8 != nil {
		return int32(t.i8[i])
	}
	return int32(t.u8[i])
}

// Value returns element i dequantized.
func (t *Tensor) Value(i int) float32 {
	return t.calib.Dequantize(t.Raw(i))
}

// Grid is a validated view of a detection head output as
// rows x cols x anchors x channels.
type Grid struct {
	t        *Tensor
	layout   Layout
	Rows     int
	Cols     int
	Anchors  int
	Channels int
}

// Grid validates the tensor against the expected head geometry and returns
// an accessor for it.
//
// Leading batch dimensions of size 1 are ignored. For LayoutNHWC both
// [rows, cols, anchors*channels] and [rows, cols, anchors, channels] are
// accepted; for LayoutNCHW both [anchors*channels, rows, cols] and
// [anchors, channels, rows, cols].
//
// Arguments:
//   - layout: The memory order of the tensor.
//   - rows, cols: The grid size for this detection scale.
//   - anchors: The number of anchors per grid cell.
//   - channels: 5 + number of classes.
//
// Returns:
//   - The grid view.
//   - An error wrapping ErrConfiguration when the shape does not match.
func (t *Tensor) Grid(layout Layout, rows, cols, anchors, channels int) (Grid, error) {
	if !layout.Valid() {
		return Grid{}, errors.Wrapf(ErrConfiguration, "unknown layout %q", layout)
	}
	if rows <= 0 || cols <= 0 || anchors <= 0 || channels <= 5 {
		return Grid{}, errors.Wrapf(ErrConfiguration,
			"invalid grid %dx%d with %d anchors of %d channels", rows, cols, anchors, channels)
	}

	var want [][]int
	switch layout {
	case LayoutNHWC:
		want = [][]int{
			{rows, cols, anchors * channels},
			{rows, cols, anchors, channels},
		}
	case LayoutNCHW:
		want = [][]int{
			{anchors * channels, rows, cols},
			{anchors, channels, rows, cols},
		}
	}

	shape := []int(t.Shape())
	if !matchesAny(shape, want) || t.Len() != rows*cols*anchors*channels {
		return Grid{}, errors.Wrapf(ErrConfiguration,
			"shape %v does not match %s grid %dx%d with %d anchors of %d channels",
			shape, layout, rows, cols, anchors, channels)
	}

	return Grid{
		t:        t,
		layout:   layout,
		Rows:     rows,
		Cols:     cols,
		Anchors:  anchors,
		Channels: channels,
	}, nil
}

// Index returns the flat element index of a channel for a cell and anchor.
func (g Grid) Index(row, col, anchor, channel int) int {
	if g.layout == LayoutNCHW {
		plane := anchor*g.Channels + channel
		return (plane*g.Rows+row)*g.Cols + col
	}
	return ((row*g.Cols+col)*g.Anchors+anchor)*g.Channels + channel
}

// At returns the dequantized value of a channel for a cell and anchor.
func (g Grid) At(row, col, anchor, channel int) float32 {
	return g.t.Value(g.Index(row, col, anchor, channel))
}

// Raw returns the raw quantized value of a channel for a cell and anchor.
func (g Grid) Raw(row, col, anchor, channel int) int32 {
	return g.t.Raw(g.Index(row, col, anchor, channel))
}

func matchesAny(shape []int, candidates [][]int) bool {
	for _, want := range candidates {
		s := shape
		for len(s) > len(want) && s[0] == 1 {
			s = s[1:]
		}
		if equalDims(s, want) {
			return true
		}
	}
	return false
}

func equalDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
