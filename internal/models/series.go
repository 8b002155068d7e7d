package models

import "sort"

// Layer identifies one of the monitored telemetry sources.
type Layer string

const (
	LayerNetwork Layer = "network"
	LayerHost    Layer = "host"
	LayerPower   Layer = "power"
)

// Sample is a single measurement: seconds since capture start plus the
// aggregated metric value for that instant.
type Sample struct {
	Offset float64
	Value  float64
}

// MetricSeries is the ordered per-layer measurement sequence. Offsets are
// non-decreasing after construction; duplicates are legal and are averaged
// when the series is resampled onto the per-second grid.
type MetricSeries struct {
	Layer   Layer
	Samples []Sample
}

// NewMetricSeries sorts the samples by offset and wraps them in a series.
// The input slice is not retained.
func NewMetricSeries(layer Layer, samples []Sample) MetricSeries {
	sorted := append([]Sample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})
	return MetricSeries{Layer: layer, Samples: sorted}
}

// Empty reports whether the series holds no samples.
func (s MetricSeries) Empty() bool {
	return len(s.Samples) == 0
}

// Rebase returns a copy of the series with origin subtracted from every
// offset, producing attack-relative time.
func (s MetricSeries) Rebase(origin float64) MetricSeries {
	rebased := make([]Sample, len(s.Samples))
	for i, sample := range s.Samples {
		rebased[i] = Sample{Offset: sample.Offset - origin, Value: sample.Value}
	}
	return MetricSeries{Layer: s.Layer, Samples: rebased}
}

// Baseline captures benign-period statistics used to derive detection
// thresholds. It is always computed from a known-benign subset, never from
// the candidate series itself.
type Baseline struct {
	Mean   float64
	StdDev float64
	N      int
}

// Threshold returns mean + k*stddev. With a zero stddev the threshold
// degenerates to the mean and any elevation triggers; that is documented
// behaviour, not an error.
func (b Baseline) Threshold(sigmas float64) float64 {
	return b.Mean + sigmas*b.StdDev
}

// Scenario describes one attack capture to analyse.
type Scenario struct {
	Name       string
	HasNetwork bool
}

// Layers lists the layers participating in the scenario. Host-originated
// attacks (cryptojacking) carry no network capture.
func (s Scenario) Layers() []Layer {
	if s.HasNetwork {
		return []Layer{LayerNetwork, LayerHost, LayerPower}
	}
	return []Layer{LayerHost, LayerPower}
}

// LayerPairs enumerates the ordered layer pairs to correlate, following the
// propagation direction network -> host -> power.
func (s Scenario) LayerPairs() [][2]Layer {
	if s.HasNetwork {
		return [][2]Layer{
			{LayerNetwork, LayerHost},
			{LayerHost, LayerPower},
			{LayerNetwork, LayerPower},
		}
	}
	return [][2]Layer{{LayerHost, LayerPower}}
}
