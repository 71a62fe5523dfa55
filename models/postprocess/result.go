// Package postprocess - Postprocessing utilities for models.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-rknn/images"
)

// DefaultMaxDetections bounds the number of detections returned for a frame.
const DefaultMaxDetections = 128

// Candidate is a decoded box that has not yet been filtered or suppressed.
type Candidate struct {
	// The bounding box in model input coordinates.
	Box images.Rect
	// The predicted class index.
	Class int
	// Objectness multiplied by the class score, in [0, 1].
	Score float32
	// Position in decode order, used to break score ties deterministically.
	Order int
}

// Detection is a final result in original image coordinates.
type Detection struct {
	// The bounding box in original image pixels.
	Box images.Rect `json:"box" yaml:"box"`
	// The predicted class index.
	Class int `json:"class" yaml:"class"`
	// The class name resolved from the label table.
	Label string `json:"label" yaml:"label"`
	// The confidence score of the detection.
	Score float32 `json:"score" yaml:"score"`
}

func (d Detection) String() string {
	return fmt.Sprintf("%s @ %s %f", d.Label, d.Box, d.Score)
}

// DetectionSet is the bounded, ordered output of one frame.
//
// Order is suppression survival order: classes ascending, and within a class
// descending score. It is not globally sorted by score.
type DetectionSet struct {
	// Detections kept, at most the configured capacity.
	Detections []Detection `json:"detections" yaml:"detections"`
	// Truncated counts survivors dropped because the capacity was reached.
	Truncated int `json:"truncated" yaml:"truncated"`
}

// Len returns the number of detections in the set.
func (s DetectionSet) Len() int {
	return len(s.Detections)
}

// Labeler resolves a class index to a display name.
type Labeler func(class int) string

// ToDetections rescales suppressed candidates into original image space,
// resolves their labels, and caps the result at capacity.
//
// Candidates past capacity are dropped silently, keeping the first entries
// in the order given. A non-positive capacity means DefaultMaxDetections.
//
// Arguments:
//   - candidates: Suppressed candidates in survival order.
//   - label: Resolves class indices to names.
//   - rescale: Maps a model input box to original image space.
//   - capacity: The maximum number of detections to return.
//
// Returns:
//   - The detection set.
func ToDetections(
	candidates []Candidate,
	label Labeler,
	rescale func(images.Rect) images.Rect,
	capacity int,
) DetectionSet {
	if capacity <= 0 {
		capacity = DefaultMaxDetections
	}

	n := min(len(candidates), capacity)
	set := DetectionSet{
		Detections: make([]Detection, 0, n),
		Truncated:  len(candidates) - n,
	}
	for _, c := range candidates[:n] {
		set.Detections = append(set.Detections, Detection{
			Box:   rescale(c.Box),
			Class: c.Class,
			Label: label(c.Class),
			Score: c.Score,
		})
	}
	return set
}
