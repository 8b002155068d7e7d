package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed scenario analyses.
	OutcomeSuccess = "success"
	// OutcomeError labels analyses that aborted (missing data, bad input).
	OutcomeError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evcorr",
			Name:      "analyses_total",
			Help:      "Total number of scenario analyses, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "evcorr",
			Name:      "analysis_seconds",
			Help:      "Scenario analysis latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	alignmentCoverage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "evcorr",
			Name:      "alignment_coverage",
			Help:      "Fraction of non-null aligned cells per scenario and layer.",
		},
		[]string{"scenario", "layer"},
	)

	lowConfidenceDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evcorr",
			Name:      "low_confidence_detections_total",
			Help:      "Attack-start detections that fell back to a low-confidence value.",
		},
		[]string{"scenario", "layer"},
	)
)

// Register attaches evcorr collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		alignmentCoverage,
		lowConfidenceDetections,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records a scenario analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// SetAlignmentCoverage publishes the coverage of one aligned layer.
func SetAlignmentCoverage(scenario, layer string, coverage float64) {
	alignmentCoverage.WithLabelValues(scenario, layer).Set(coverage)
}

// CountLowConfidenceDetection counts a fallback detection.
func CountLowConfidenceDetection(scenario, layer string) {
	lowConfidenceDetections.WithLabelValues(scenario, layer).Inc()
}
