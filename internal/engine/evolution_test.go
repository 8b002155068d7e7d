package engine

import (
	"math"
	"testing"

	"github.com/gridsec/evcorr/internal/models"
)

func timelineOf(layer models.Layer, values []float64) models.AlignedTimeline {
	cells := make([]models.Cell, len(values))
	for i, v := range values {
		cells[i] = models.Cell{Second: i, Value: v, Valid: true}
	}
	return models.AlignedTimeline{Layer: layer, Tolerance: 2.5, Cells: cells}
}

func TestCharacterizeEvolutionPhases(t *testing.T) {
	// Ramp 0..9 during initiation, flat 50 afterwards.
	values := make([]float64, 61)
	for i := range values {
		if i < 10 {
			values[i] = float64(i)
		} else {
			values[i] = 50
		}
	}
	evo := CharacterizeEvolution(timelineOf(models.LayerHost, values))

	if len(evo.Phases) != 3 {
		t.Fatalf("expected 3 phases, got %d", len(evo.Phases))
	}

	initiation := evo.Phases[0]
	if initiation.Phase != "initiation" || initiation.StartSec != 0 || initiation.EndSec != 10 {
		t.Fatalf("unexpected initiation bounds: %+v", initiation)
	}
	if math.Abs(initiation.Mean-4.5) > 1e-9 {
		t.Fatalf("initiation mean: expected 4.5, got %f", initiation.Mean)
	}
	if math.Abs(initiation.TrendSlope-1) > 1e-9 {
		t.Fatalf("initiation slope: expected 1, got %f", initiation.TrendSlope)
	}
	if initiation.Peak != 9 || initiation.NSamples != 10 {
		t.Fatalf("initiation peak/samples off: %+v", initiation)
	}

	peak := evo.Phases[1]
	if peak.Phase != "peak" || peak.Mean != 50 || peak.TrendSlope != 0 {
		t.Fatalf("unexpected peak profile: %+v", peak)
	}

	if !evo.HasPlateau {
		t.Fatalf("flat tail must register a plateau")
	}
	if evo.PlateauOnset != 14 {
		t.Fatalf("expected plateau onset at second 14, got %d", evo.PlateauOnset)
	}
}

func TestCharacterizeEvolutionNoPlateau(t *testing.T) {
	values := make([]float64, 61)
	for i := range values {
		values[i] = float64(i) // stddev of any 5-wide window stays well above threshold
	}
	evo := CharacterizeEvolution(timelineOf(models.LayerPower, values))
	if evo.HasPlateau {
		t.Fatalf("monotone ramp must not register a plateau, got onset %d", evo.PlateauOnset)
	}
}

func TestCharacterizeEvolutionSparsePhases(t *testing.T) {
	// Valid cells only in the peak phase.
	timeline := models.AlignedTimeline{Layer: models.LayerHost, Cells: make([]models.Cell, 61)}
	for i := range timeline.Cells {
		timeline.Cells[i] = models.Cell{Second: i}
	}
	for sec := 12; sec < 20; sec++ {
		timeline.Cells[sec].Valid = true
		timeline.Cells[sec].Value = 30
	}

	evo := CharacterizeEvolution(timeline)
	if evo.Phases[0].NSamples != 0 || evo.Phases[0].Mean != 0 {
		t.Fatalf("empty initiation should be a zero profile: %+v", evo.Phases[0])
	}
	if evo.Phases[1].NSamples != 8 || evo.Phases[1].Mean != 30 {
		t.Fatalf("peak phase off: %+v", evo.Phases[1])
	}
	if evo.Phases[2].NSamples != 0 {
		t.Fatalf("sustained phase should be empty: %+v", evo.Phases[2])
	}
}
