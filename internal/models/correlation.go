package models

import (
	"fmt"
	"strings"
	"time"
)

// LagCorrelation is one row of the lag scan table.
type LagCorrelation struct {
	Lag         int     `json:"lag"`
	R           float64 `json:"r"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
	NSamples    int     `json:"n_samples"`
}

// Void reports whether the entry is statistically void (fewer than the
// minimum paired samples survived the shift).
func (l LagCorrelation) Void() bool {
	return l.NSamples == 0 || (l.R == 0 && l.PValue == 1)
}

// PairResult is the stable correlation output contract for one layer pair.
//
// Sign convention, applied uniformly: a negative optimal lag means LayerA
// leads LayerB; positive means LayerB leads LayerA; zero is synchronous.
type PairResult struct {
	LayerA          Layer            `json:"-"`
	LayerB          Layer            `json:"-"`
	LagCorrelations []LagCorrelation `json:"lag_correlations"`
	OptimalLag      int              `json:"optimal_lag"`
	OptimalR        float64          `json:"optimal_r"`
	OptimalP        float64          `json:"optimal_p"`
	Interpretation  string           `json:"interpretation"`
}

// PairKey names the pair the way the output artifacts do, e.g. "net_host".
func (p PairResult) PairKey() string {
	return shortLayer(p.LayerA) + "_" + shortLayer(p.LayerB)
}

func shortLayer(l Layer) string {
	if l == LayerNetwork {
		return "net"
	}
	return string(l)
}

// InterpretLag renders the human-readable reading of an optimal lag under
// the fixed sign convention.
func InterpretLag(lag int, a, b Layer) string {
	upperA := strings.ToUpper(string(a))
	upperB := strings.ToUpper(string(b))
	switch {
	case lag < 0:
		return fmt.Sprintf("%s leads %s by %d seconds", upperA, upperB, -lag)
	case lag > 0:
		return fmt.Sprintf("%s leads %s by %d seconds", upperB, upperA, lag)
	default:
		return fmt.Sprintf("%s and %s are synchronous (no lag)", upperA, upperB)
	}
}

// PhaseProfile characterises one attack phase of an aligned layer.
type PhaseProfile struct {
	Phase      string  `json:"phase"`
	StartSec   int     `json:"start_sec"`
	EndSec     int     `json:"end_sec"`
	Mean       float64 `json:"mean"`
	Peak       float64 `json:"peak"`
	TrendSlope float64 `json:"trend_slope"`
	NSamples   int     `json:"n_samples"`
}

// LayerEvolution aggregates the phase profiles of one layer plus the second
// at which the signal plateaus, when one exists.
type LayerEvolution struct {
	Layer        Layer          `json:"-"`
	Phases       []PhaseProfile `json:"phases"`
	PlateauOnset int            `json:"plateau_onset_sec"`
	HasPlateau   bool           `json:"has_plateau"`
}

// IncidentReport is the complete per-scenario analysis output.
type IncidentReport struct {
	RunID      string                   `json:"run_id"`
	Scenario   string                   `json:"scenario"`
	HasNetwork bool                     `json:"has_network"`
	Detections map[Layer]Detection      `json:"detections"`
	Coverage   map[Layer]float64        `json:"coverage"`
	LowLayers  []Layer                  `json:"low_coverage_layers"`
	Pairs      []PairResult             `json:"-"`
	Evolution  map[Layer]LayerEvolution `json:"-"`
	CreatedAt  time.Time                `json:"created_at"`
}

// Pair returns the result for the (a, b) layer pair, if present.
func (r IncidentReport) Pair(a, b Layer) (PairResult, bool) {
	for _, p := range r.Pairs {
		if p.LayerA == a && p.LayerB == b {
			return p, true
		}
	}
	return PairResult{}, false
}
