package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// PostprocessMetrics contains all Prometheus metrics related to decoding
// detection head outputs.
type PostprocessMetrics struct {
	FramesTotal     *prometheus.CounterVec
	CandidatesTotal *prometheus.CounterVec
	DetectionsTotal *prometheus.CounterVec
	TruncatedTotal  prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

var _ Recorder = (*PostprocessMetrics)(nil)

// NewPostprocessMetrics creates the metrics and registers them.
//
// Arguments:
//   - registry: The registry to register the collectors with.
//
// Returns:
//   - The metrics.
//   - An error if registration fails, e.g. when registered twice.
func NewPostprocessMetrics(registry prometheus.Registerer) (*PostprocessMetrics, error) {
	m := &PostprocessMetrics{
		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rknn_postprocess_frames_total",
				Help: "Total number of frames post-processed, partitioned by status.",
			},
			[]string{"status"},
		),
		CandidatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rknn_postprocess_candidates_total",
				Help: "Total number of candidate boxes leaving each pipeline stage.",
			},
			[]string{"stage"},
		),
		DetectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rknn_postprocess_detections_total",
				Help: "Total number of detections emitted, partitioned by label.",
			},
			[]string{"label"},
		),
		TruncatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rknn_postprocess_detections_truncated_total",
				Help: "Total number of detections dropped because the per-frame capacity was reached.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rknn_postprocess_errors_total",
				Help: "Total number of post-processing errors.",
			},
			[]string{"operation", "error_type"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.FramesTotal, m.CandidatesTotal, m.DetectionsTotal, m.TruncatedTotal, m.ErrorsTotal,
	} {
		if err := registry.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register post-processing metrics")
		}
	}
	return m, nil
}

// RecordFrame implements Recorder.
func (m *PostprocessMetrics) RecordFrame(status string) {
	m.FramesTotal.WithLabelValues(status).Inc()
}

// RecordCandidates implements Recorder.
func (m *PostprocessMetrics) RecordCandidates(stage string, count int) {
	m.CandidatesTotal.WithLabelValues(stage).Add(float64(count))
}

// RecordDetection implements Recorder.
func (m *PostprocessMetrics) RecordDetection(label string) {
	m.DetectionsTotal.WithLabelValues(label).Inc()
}

// RecordTruncated implements Recorder.
func (m *PostprocessMetrics) RecordTruncated(count int) {
	if count > 0 {
		m.TruncatedTotal.Add(float64(count))
	}
}

// RecordError implements Recorder.
func (m *PostprocessMetrics) RecordError(operation, errorType string) {
	m.ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}
