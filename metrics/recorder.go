// Package metrics provides Prometheus metrics for detection post-processing.
package metrics

// Stage names reported through RecordCandidates.
const (
	StageDecoded    = "decoded"
	StageConfident  = "confident"
	StageSuppressed = "kept_after_nms"
)

// Recorder defines a minimal interface for recording post-processing metrics.
// Components depend on this abstraction rather than on concrete Prometheus
// collectors so tests can substitute their own implementation.
type Recorder interface {
	// RecordFrame records one post-processing call and its outcome
	// ("success" or "error").
	RecordFrame(status string)

	// RecordCandidates records how many candidates left a pipeline stage.
	RecordCandidates(stage string, count int)

	// RecordDetection records one emitted detection by label.
	RecordDetection(label string)

	// RecordTruncated records detections dropped because the output
	// capacity was reached.
	RecordTruncated(count int)

	// RecordError records an error occurrence with its type.
	// The operation parameter describes where the error occurred.
	RecordError(operation, errorType string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

// RecordFrame implements Recorder.
func (NopRecorder) RecordFrame(string) {}

// RecordCandidates implements Recorder.
func (NopRecorder) RecordCandidates(string, int) {}

// RecordDetection implements Recorder.
func (NopRecorder) RecordDetection(string) {}

// RecordTruncated implements Recorder.
func (NopRecorder) RecordTruncated(int) {}

// RecordError implements Recorder.
func (NopRecorder) RecordError(string, string) {}
