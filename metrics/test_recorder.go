package metrics

import "sync"

// TestRecorder is an in-memory implementation of the Recorder interface.
// It captures all recorded metrics for verification in tests.
type TestRecorder struct {
	mu         sync.RWMutex
	frames     map[string]int
	candidates map[string]int
	detections map[string]int
	truncated  int
	errors     map[string]map[string]int // operation -> errorType -> count
}

var _ Recorder = (*TestRecorder)(nil)

// NewTestRecorder creates a new test recorder instance.
func NewTestRecorder() *TestRecorder {
	return &TestRecorder{
		frames:     make(map[string]int),
		candidates: make(map[string]int),
		detections: make(map[string]int),
		errors:     make(map[string]map[string]int),
	}
}

// RecordFrame implements Recorder.
func (r *TestRecorder) RecordFrame(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[status]++
}

// RecordCandidates implements Recorder.
func (r *TestRecorder) RecordCandidates(stage string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates[stage] += count
}

// RecordDetection implements Recorder.
func (r *TestRecorder) RecordDetection(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detections[label]++
}

// RecordTruncated implements Recorder.
func (r *TestRecorder) RecordTruncated(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.truncated += count
}

// RecordError implements Recorder.
func (r *TestRecorder) RecordError(operation, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.errors[operation] == nil {
		r.errors[operation] = make(map[string]int)
	}
	r.errors[operation][errorType]++
}

// Frames returns the number of frames recorded with status.
func (r *TestRecorder) Frames(status string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frames[status]
}

// Candidates returns the total recorded for a stage.
func (r *TestRecorder) Candidates(stage string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.candidates[stage]
}

// Detections returns the number of detections recorded for label.
func (r *TestRecorder) Detections(label string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.detections[label]
}

// Truncated returns the total number of truncated detections.
func (r *TestRecorder) Truncated() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.truncated
}

// Errors returns the count of a specific operation and error type.
func (r *TestRecorder) Errors(operation, errorType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errors[operation][errorType]
}
