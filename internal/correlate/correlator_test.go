package correlate

import (
	"math"
	"testing"

	"github.com/gridsec/evcorr/internal/models"
)

// timelineFrom wraps values into a fully valid aligned timeline.
func timelineFrom(layer models.Layer, values []float64) models.AlignedTimeline {
	cells := make([]models.Cell, len(values))
	for i, v := range values {
		cells[i] = models.Cell{Second: i, Value: v, Valid: true}
	}
	return models.AlignedTimeline{Layer: layer, Tolerance: 2.5, Cells: cells}
}

// rampPair builds a leader signal and the same signal delayed by shift
// seconds. The leader is a noiseless non-monotonic curve so the only
// perfect match is at the true shift.
func rampPair(shift int, length int) (leader, follower []float64) {
	signal := func(t int) float64 {
		return math.Sin(float64(t)*0.7) + 0.3*float64(t)
	}
	leader = make([]float64, length)
	follower = make([]float64, length)
	for t := 0; t < length; t++ {
		leader[t] = signal(t)
		follower[t] = signal(t - shift)
	}
	return leader, follower
}

func TestCorrelateRecoversLeadLag(t *testing.T) {
	const shift = 4
	leaderVals, followerVals := rampPair(shift, 61)
	a := timelineFrom(models.LayerNetwork, leaderVals)
	b := timelineFrom(models.LayerHost, followerVals)

	corr := New(DefaultParams())

	// a leads b: the optimal lag is negative.
	result, err := corr.Correlate(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OptimalLag != -shift {
		t.Fatalf("expected optimal lag %d, got %d", -shift, result.OptimalLag)
	}
	if result.OptimalR < 0.999 {
		t.Fatalf("expected r near 1 at the true shift, got %f", result.OptimalR)
	}
	if result.OptimalP > 1e-6 {
		t.Fatalf("expected vanishing p-value, got %g", result.OptimalP)
	}
	if result.Interpretation != "NETWORK leads HOST by 4 seconds" {
		t.Fatalf("unexpected interpretation %q", result.Interpretation)
	}

	// Reversed arguments flip the sign.
	reversed, err := corr.Correlate(b, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reversed.OptimalLag != shift {
		t.Fatalf("expected optimal lag %d when reversed, got %d", shift, reversed.OptimalLag)
	}
	if reversed.Interpretation != "NETWORK leads HOST by 4 seconds" {
		t.Fatalf("unexpected reversed interpretation %q", reversed.Interpretation)
	}
}

func TestCorrelateSynchronous(t *testing.T) {
	vals, _ := rampPair(0, 61)
	a := timelineFrom(models.LayerHost, vals)
	b := timelineFrom(models.LayerPower, vals)

	result, err := New(DefaultParams()).Correlate(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OptimalLag != 0 {
		t.Fatalf("identical signals must be synchronous, got lag %d", result.OptimalLag)
	}
	if result.Interpretation != "HOST and POWER are synchronous (no lag)" {
		t.Fatalf("unexpected interpretation %q", result.Interpretation)
	}
}

func TestCorrelateTableShape(t *testing.T) {
	vals, _ := rampPair(0, 30)
	a := timelineFrom(models.LayerHost, vals)
	b := timelineFrom(models.LayerPower, vals)

	result, err := New(Params{MaxLag: 5, MinSamples: 3}).Correlate(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.LagCorrelations) != 11 {
		t.Fatalf("expected 11 lag entries for max lag 5, got %d", len(result.LagCorrelations))
	}
	for i, entry := range result.LagCorrelations {
		if entry.Lag != i-5 {
			t.Fatalf("entry %d has lag %d, expected %d", i, entry.Lag, i-5)
		}
	}
}

func TestCorrelateVoidBelowMinSamples(t *testing.T) {
	// Only 3 valid positions: any shift leaves fewer than 3 pairs.
	cells := func(layer models.Layer) models.AlignedTimeline {
		timeline := models.AlignedTimeline{Layer: layer, Cells: make([]models.Cell, 20)}
		for i := range timeline.Cells {
			timeline.Cells[i] = models.Cell{Second: i}
		}
		for _, sec := range []int{2, 9, 16} {
			timeline.Cells[sec].Valid = true
			timeline.Cells[sec].Value = float64(sec)
		}
		return timeline
	}
	a := cells(models.LayerHost)
	b := cells(models.LayerPower)

	result, err := New(DefaultParams()).Correlate(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, entry := range result.LagCorrelations {
		if entry.Lag == 0 {
			continue
		}
		if !entry.Void() {
			t.Fatalf("lag %d has %d pairs and must be void", entry.Lag, entry.NSamples)
		}
		if entry.R != 0 || entry.PValue != 1 || entry.Significant {
			t.Fatalf("void entry carries non-void statistics: %+v", entry)
		}
	}
}

func TestCorrelateLengthMismatch(t *testing.T) {
	a := timelineFrom(models.LayerHost, make([]float64, 10))
	b := timelineFrom(models.LayerPower, make([]float64, 12))
	if _, err := New(DefaultParams()).Correlate(a, b); err == nil {
		t.Fatalf("expected error for mismatched timeline lengths")
	}
}

func TestCorrelateConstantSeriesVoid(t *testing.T) {
	constant := make([]float64, 30)
	for i := range constant {
		constant[i] = 5
	}
	varying, _ := rampPair(0, 30)
	a := timelineFrom(models.LayerHost, constant)
	b := timelineFrom(models.LayerPower, varying)

	result, err := New(DefaultParams()).Correlate(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, entry := range result.LagCorrelations {
		if !entry.Void() {
			t.Fatalf("zero-variance input must produce void entries, got %+v", entry)
		}
	}
}

func TestSelectOptimalPrefersSmallestLag(t *testing.T) {
	table := []models.LagCorrelation{
		{Lag: -3, R: 0.9, PValue: 0.01, NSamples: 20},
		{Lag: -1, R: 0.9, PValue: 0.01, NSamples: 22},
		{Lag: 0, R: 0.5, PValue: 0.2, NSamples: 23},
		{Lag: 2, R: -0.9, PValue: 0.01, NSamples: 21},
	}
	best := selectOptimal(table)
	if best.Lag != -1 {
		t.Fatalf("tie on |r| must prefer smallest |lag|, got %d", best.Lag)
	}
}

func TestTwoTailedPValue(t *testing.T) {
	if p := twoTailedPValue(0, 30); math.Abs(p-1) > 1e-9 {
		t.Fatalf("r=0 should give p=1, got %f", p)
	}
	if p := twoTailedPValue(1, 30); p != 0 {
		t.Fatalf("perfect correlation should give p=0, got %f", p)
	}
	if p := twoTailedPValue(0.9, 2); p != 1 {
		t.Fatalf("n<=2 should give p=1, got %f", p)
	}
	// Known value: r=0.6, n=20 gives p around 0.0052.
	p := twoTailedPValue(0.6, 20)
	if p < 0.004 || p > 0.007 {
		t.Fatalf("p for r=0.6,n=20 out of range: %f", p)
	}
}
