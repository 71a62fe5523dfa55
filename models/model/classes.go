package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet is a fixed class-index-to-name table for one model export.
// It is built once and never mutated afterwards.
type OutputClassSet struct {
	// Class set identifier.
	Style Family
	// Classes ordered by index, starting at 0.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewOutputClassSet builds a class set from names ordered by class index.
//
// Arguments:
//   - style: The family the labels belong to.
//   - names: One name per class; the position is the class index.
//
// Returns:
//   - The class set.
//   - An error if names is empty or contains duplicates.
func NewOutputClassSet(style Family, names []string) (*OutputClassSet, error) {
	if len(names) == 0 {
		return nil, errors.New("class set requires at least one name")
	}

	set := &OutputClassSet{
		Style:     style,
		Classes:   make([]OutputClass, len(names)),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if prev, ok := set.nameToIdx[name]; ok {
			return nil, errors.Errorf("duplicate class name %q at %d and %d", name, prev, i)
		}
		set.Classes[i] = OutputClass{Index: i, Name: name}
		set.nameToIdx[name] = i
	}
	return set, nil
}

// Len returns the number of classes.
func (s *OutputClassSet) Len() int {
	return len(s.Classes)
}

// Name returns the label for idx. Indices outside the table resolve to
// "class_<idx>" so that a model with more outputs than labels still reports
// something readable.
func (s *OutputClassSet) Name(idx int) string {
	if idx >= 0 && idx < len(s.Classes) {
		return s.Classes[idx].Name
	}
	return fmt.Sprintf("class_%d", idx)
}

// Index returns the class index for name.
func (s *OutputClassSet) Index(name string) (int, error) {
	if s.nameToIdx == nil {
		s.buildNameIndexMap()
	}
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found in style %q", name, s.Style)
	}
	return idx, nil
}

func (s *OutputClassSet) buildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// cocoNames are the 80 COCO labels in the order YOLO exports index them.
var cocoNames = []string{
	"person", "bicycle", "car", "motorbike", "aeroplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "sofa", "pottedplant", "bed", "diningtable", "toilet", "tvmonitor", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// YOLOClasses is the 80 COCO classes (no background).
// YOLO models index directly into this zero-based list.
var YOLOClasses = func() *OutputClassSet {
	set, err := NewOutputClassSet(ModelFamilyYOLO, cocoNames)
	if err != nil {
		panic(err)
	}
	return set
}()
