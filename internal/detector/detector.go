// Package detector locates attack-start timestamps in per-layer metric
// series by comparing sliding-window means against a benign baseline.
package detector

import (
	"log/slog"
	"math"

	"github.com/gridsec/evcorr/internal/models"
	"github.com/gridsec/evcorr/internal/utils"
)

// Params tunes the sliding-window detection.
type Params struct {
	// WindowSize is the candidate window width in seconds.
	WindowSize float64
	// ConfirmationSize is the longer confirmation window width in seconds.
	// It rejects single-sample spikes: a start is accepted only when the
	// confirmation mean also exceeds the threshold.
	ConfirmationSize float64
	// Sigmas multiplies the baseline standard deviation: threshold = mean + Sigmas*stddev.
	Sigmas float64
}

// DefaultParams mirrors the operating values used on the CICEVSE2024
// captures: 5s window, 10s confirmation, 2-sigma threshold.
func DefaultParams() Params {
	return Params{WindowSize: 5, ConfirmationSize: 10, Sigmas: 2}
}

// AttackStartDetector scans a candidate series for the earliest sustained
// anomalous elevation over a benign baseline.
type AttackStartDetector struct {
	params Params
	logger *slog.Logger
}

// New constructs a detector; zero-valued params fall back to defaults.
func New(params Params, logger *slog.Logger) *AttackStartDetector {
	def := DefaultParams()
	if params.WindowSize <= 0 {
		params.WindowSize = def.WindowSize
	}
	if params.ConfirmationSize <= 0 {
		params.ConfirmationSize = def.ConfirmationSize
	}
	if params.Sigmas <= 0 {
		params.Sigmas = def.Sigmas
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AttackStartDetector{params: params, logger: logger}
}

// Detect returns the earliest confirmed attack start in the series.
//
// Detection failure (no confirmed window) is a normal outcome: the result
// is Undetected with the series' first timestamp as a low-confidence
// fallback. An empty series is the only error case.
func (d *AttackStartDetector) Detect(series models.MetricSeries, baseline models.Baseline) (models.Detection, error) {
	if series.Empty() {
		return models.Detection{}, utils.ErrNoData
	}

	threshold := baseline.Threshold(d.params.Sigmas)
	samples := series.Samples

	for i := range samples {
		start := samples[i].Offset
		mean, n := windowMean(samples, start, start+d.params.WindowSize)
		if n == 0 || mean <= threshold {
			continue
		}
		confirmMean, cn := windowMean(samples, start, start+d.params.ConfirmationSize)
		if cn == 0 || confirmMean <= threshold {
			continue
		}
		return models.Detection{
			Layer:      series.Layer,
			Outcome:    models.OutcomeDetected,
			Timestamp:  start,
			Value:      samples[i].Value,
			Threshold:  threshold,
			Confidence: models.ConfidenceHigh,
			Method:     models.MethodSlidingWindow,
		}, nil
	}

	d.logger.Debug("no confirmed attack window",
		slog.String("layer", string(series.Layer)),
		slog.Float64("threshold", threshold))

	return models.Detection{
		Layer:      series.Layer,
		Outcome:    models.OutcomeUndetected,
		Timestamp:  samples[0].Offset,
		Value:      samples[0].Value,
		Threshold:  threshold,
		Confidence: models.ConfidenceLow,
		Method:     models.MethodFirstTimestamp,
	}, nil
}

// DetectThresholdCrossing returns the first sample strictly above the
// threshold without requiring confirmation. Used for the power layer,
// whose meter polls too sparsely for windowed means; the result carries
// medium confidence when a crossing exists.
func (d *AttackStartDetector) DetectThresholdCrossing(series models.MetricSeries, baseline models.Baseline) (models.Detection, error) {
	if series.Empty() {
		return models.Detection{}, utils.ErrNoData
	}

	threshold := baseline.Threshold(d.params.Sigmas)
	for _, sample := range series.Samples {
		if sample.Value > threshold {
			return models.Detection{
				Layer:      series.Layer,
				Outcome:    models.OutcomeDetected,
				Timestamp:  sample.Offset,
				Value:      sample.Value,
				Threshold:  threshold,
				Confidence: models.ConfidenceMedium,
				Method:     models.MethodThresholdCrossing,
			}, nil
		}
	}

	first := series.Samples[0]
	return models.Detection{
		Layer:      series.Layer,
		Outcome:    models.OutcomeUndetected,
		Timestamp:  first.Offset,
		Value:      first.Value,
		Threshold:  threshold,
		Confidence: models.ConfidenceLow,
		Method:     models.MethodFirstTimestamp,
	}, nil
}

// FirstSampleStart treats the first sample as the attack start. Attack
// captures on the network layer contain no benign traffic, so the first
// packet is the onset by construction.
func FirstSampleStart(series models.MetricSeries) (models.Detection, error) {
	if series.Empty() {
		return models.Detection{}, utils.ErrNoData
	}
	first := series.Samples[0]
	return models.Detection{
		Layer:      series.Layer,
		Outcome:    models.OutcomeDetected,
		Timestamp:  first.Offset,
		Value:      first.Value,
		Confidence: models.ConfidenceHigh,
		Method:     models.MethodFirstPacket,
	}, nil
}

// BaselineFromSeries computes benign statistics (mean, sample stddev) from
// a known-benign series.
func BaselineFromSeries(series models.MetricSeries) (models.Baseline, error) {
	if series.Empty() {
		return models.Baseline{}, utils.ErrNoData
	}

	n := len(series.Samples)
	mean := 0.0
	for _, s := range series.Samples {
		mean += s.Value
	}
	mean /= float64(n)

	variance := 0.0
	for _, s := range series.Samples {
		diff := s.Value - mean
		variance += diff * diff
	}
	if n > 1 {
		variance /= float64(n - 1)
	} else {
		variance = 0
	}

	return models.Baseline{Mean: mean, StdDev: math.Sqrt(variance), N: n}, nil
}

// windowMean averages samples with offset in [start, end), returning the
// count of contributing samples.
func windowMean(samples []models.Sample, start, end float64) (float64, int) {
	sum := 0.0
	n := 0
	for _, s := range samples {
		if s.Offset >= start && s.Offset < end {
			sum += s.Value
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
