package engine

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/gridsec/evcorr/internal/models"
)

// Attack phases, expressed in attack-relative seconds.
var phases = []struct {
	name  string
	start int
	end   int
}{
	{"initiation", 0, 10},
	{"peak", 10, 30},
	{"sustained", 30, 60},
}

const (
	plateauWindow    = 5
	plateauThreshold = 0.05
)

// CharacterizeEvolution profiles how an aligned layer progresses through
// the initiation, peak and sustained phases, and finds the second where
// the signal plateaus (rolling stddev drops below threshold), if any.
func CharacterizeEvolution(timeline models.AlignedTimeline) models.LayerEvolution {
	evo := models.LayerEvolution{Layer: timeline.Layer}

	for _, phase := range phases {
		evo.Phases = append(evo.Phases, profilePhase(timeline, phase.name, phase.start, phase.end))
	}

	if onset, ok := plateauOnset(timeline); ok {
		evo.PlateauOnset = onset
		evo.HasPlateau = true
	}
	return evo
}

// profilePhase computes mean, peak and the OLS trend slope over the valid
// cells with second in [start, end).
func profilePhase(timeline models.AlignedTimeline, name string, start, end int) models.PhaseProfile {
	profile := models.PhaseProfile{Phase: name, StartSec: start, EndSec: end}

	xs := make([]float64, 0, end-start)
	ys := make([]float64, 0, end-start)
	peak := math.Inf(-1)

	for _, cell := range timeline.Cells {
		if cell.Second < start || cell.Second >= end || !cell.Valid {
			continue
		}
		xs = append(xs, float64(cell.Second))
		ys = append(ys, cell.Value)
		if cell.Value > peak {
			peak = cell.Value
		}
	}

	profile.NSamples = len(ys)
	if len(ys) == 0 {
		return profile
	}

	profile.Mean = stat.Mean(ys, nil)
	profile.Peak = peak
	if len(ys) >= 2 {
		_, slope := stat.LinearRegression(xs, ys, nil, false)
		if !math.IsNaN(slope) {
			profile.TrendSlope = slope
		}
	}
	return profile
}

// plateauOnset returns the first second whose trailing window of valid
// values has stddev below the plateau threshold.
func plateauOnset(timeline models.AlignedTimeline) (int, bool) {
	values, valid := timeline.Values()

	for i := plateauWindow - 1; i < len(values); i++ {
		window := make([]float64, 0, plateauWindow)
		for j := i - plateauWindow + 1; j <= i; j++ {
			if valid[j] {
				window = append(window, values[j])
			}
		}
		if len(window) < 2 {
			continue
		}
		if stat.StdDev(window, nil) < plateauThreshold {
			return timeline.Cells[i].Second, true
		}
	}
	return 0, false
}
