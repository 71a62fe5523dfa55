package images

import (
	"image"
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		r1       Rect
		r2       Rect
		expected float32
		epsilon  float32
	}{
		{
			name:     "Identical rectangles",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{0, 0, 100, 100},
			expected: 1.0,
			epsilon:  0.001,
		},
		{
			name:     "No overlap",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{200, 200, 300, 300},
			expected: 0.0,
			epsilon:  0.001,
		},
		{
			name:     "Touching edges",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{100, 0, 200, 100},
			expected: 0.0,
			epsilon:  0.001,
		},
		{
			name:     "Half overlap",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{50, 50, 150, 150},
			expected: 0.142857, // intersection=2500, union=17500
			epsilon:  0.001,
		},
		{
			name:     "One inside other",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{25, 25, 75, 75},
			expected: 0.25,
			epsilon:  0.001,
		},
		{
			name:     "Sub-pixel boxes",
			r1:       Rect{0.5, 0.5, 1.5, 1.5},
			r2:       Rect{1.0, 0.5, 2.0, 1.5},
			expected: 1.0 / 3.0, // intersection=0.5, union=1.5
			epsilon:  0.001,
		},
		{
			name:     "Zero area against itself",
			r1:       Rect{10, 10, 10, 10},
			r2:       Rect{10, 10, 10, 10},
			expected: 0.0,
			epsilon:  0.0,
		},
		{
			name:     "Zero area inside a box",
			r1:       Rect{10, 10, 10, 50},
			r2:       Rect{0, 0, 100, 100},
			expected: 0.0,
			epsilon:  0.0,
		},
		{
			name:     "Inverted box",
			r1:       Rect{100, 100, 0, 0},
			r2:       Rect{0, 0, 100, 100},
			expected: 0.0,
			epsilon:  0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.r1, tt.r2)
			if math.Abs(float64(result-tt.expected)) > float64(tt.epsilon) {
				t.Errorf("IoU() = %v, expected %v (±%v)", result, tt.expected, tt.epsilon)
			}

			// IoU(A, B) must equal IoU(B, A).
			reverse := CalculateIoU(tt.r2, tt.r1)
			if result != reverse {
				t.Errorf("IoU not symmetric: IoU(A,B)=%v != IoU(B,A)=%v", result, reverse)
			}
			assert.False(t, math32.IsNaN(result))
		})
	}
}

func TestIoU_SelfIsOne(t *testing.T) {
	boxes := []Rect{
		{0, 0, 1, 1},
		{12.25, 3.5, 640, 480},
		{-20, -20, 20, 20},
		{100, 100, 200, 200},
	}
	for _, b := range boxes {
		assert.Equal(t, float32(1), CalculateIoU(b, b), "box %v", b)
	}
}

func TestRectClip(t *testing.T) {
	tests := []struct {
		name string
		in   Rect
		want Rect
	}{
		{"inside", Rect{10, 20, 30, 40}, Rect{10, 20, 30, 40}},
		{"overshoot", Rect{-5, -10, 700, 500}, Rect{0, 0, 640, 480}},
		{"left of frame", Rect{-50, 10, -10, 20}, Rect{0, 10, 0, 20}},
		{"inverted", Rect{30, 40, 10, 20}, Rect{30, 40, 30, 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Clip(0, 0, 640, 480)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got.X1, got.X2)
			assert.LessOrEqual(t, got.Y1, got.Y2)
		})
	}
}

func TestRectAreaAndFinite(t *testing.T) {
	assert.Equal(t, float32(200), Rect{0, 0, 10, 20}.Area())
	assert.Equal(t, float32(0), Rect{10, 0, 0, 20}.Area())
	assert.True(t, Rect{10, 10, 10, 20}.Empty())
	assert.True(t, Rect{0, 0, 1, 1}.Finite())
	assert.False(t, Rect{0, 0, math32.Inf(1), 1}.Finite())
	assert.False(t, Rect{math32.NaN(), 0, 1, 1}.Finite())
}

func TestRectToRectangle(t *testing.T) {
	r := Rect{X1: 100.7, Y1: 100.2, X2: 200.9, Y2: 300.5}
	assert.Equal(t, image.Rect(100, 100, 200, 300), r.ToRectangle())
}
