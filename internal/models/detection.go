package models

// Outcome distinguishes a confirmed detection from a fallback so callers
// cannot mistake a degraded value for a confident one.
type Outcome string

const (
	OutcomeDetected   Outcome = "detected"
	OutcomeUndetected Outcome = "undetected"
)

// Confidence qualifies a derived attack-start timestamp.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Detection method labels, kept sidecar-compatible.
const (
	MethodSlidingWindow     = "sliding_window_2sigma"
	MethodThresholdCrossing = "threshold_crossing"
	MethodFirstPacket       = "first_packet_timestamp"
	MethodFirstTimestamp    = "first_timestamp_fallback"
	MethodSidecar           = "sidecar_override"
)

// Detection is the tagged attack-start result for one (scenario, layer).
// Timestamp is always populated: on Undetected it holds the fallback value
// and Confidence is low.
type Detection struct {
	Layer      Layer      `json:"-"`
	Outcome    Outcome    `json:"outcome"`
	Timestamp  float64    `json:"timestamp"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Confidence Confidence `json:"confidence"`
	Method     string     `json:"method"`
}

// Confirmed reports whether the detector accepted a window rather than
// falling back.
func (d Detection) Confirmed() bool {
	return d.Outcome == OutcomeDetected
}
