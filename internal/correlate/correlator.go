// Package correlate estimates cross-layer propagation delay via an
// exhaustive integer lag scan with Pearson correlation at each shift.
package correlate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gridsec/evcorr/internal/models"
)

// Alpha is the two-tailed significance level for the per-lag p-values.
const Alpha = 0.05

// Params tunes the lag scan.
type Params struct {
	// MaxLag bounds the scan to [-MaxLag, +MaxLag] seconds.
	MaxLag int
	// MinSamples is the minimum paired points required for a lag to carry
	// a real correlation; below it the entry is statistically void.
	MinSamples int
}

// DefaultParams scans +-10s with the conventional 3-point minimum.
func DefaultParams() Params {
	return Params{MaxLag: 10, MinSamples: 3}
}

// LaggedCorrelator scans integer lags between two aligned timelines.
//
// Sign convention, fixed once and applied everywhere: for Correlate(a, b),
// a negative optimal lag means a leads b, positive means b leads a, zero is
// synchronous. Optimal is the lag maximising |r|; ties prefer the smallest
// |lag| (synchronous explanations over distant ones).
type LaggedCorrelator struct {
	params Params
}

// New constructs a correlator; zero-valued params fall back to defaults.
func New(params Params) *LaggedCorrelator {
	def := DefaultParams()
	if params.MaxLag <= 0 {
		params.MaxLag = def.MaxLag
	}
	if params.MinSamples < 3 {
		params.MinSamples = def.MinSamples
	}
	return &LaggedCorrelator{params: params}
}

// Correlate computes the full per-lag table and the optimal entry for the
// pair (a, b). The timelines must share the same relative-second index.
func (c *LaggedCorrelator) Correlate(a, b models.AlignedTimeline) (models.PairResult, error) {
	if len(a.Cells) != len(b.Cells) {
		return models.PairResult{}, fmt.Errorf("timeline length mismatch: %s has %d cells, %s has %d",
			a.Layer, len(a.Cells), b.Layer, len(b.Cells))
	}

	aVals, aValid := a.Values()
	bVals, bValid := b.Values()

	table := make([]models.LagCorrelation, 0, 2*c.params.MaxLag+1)
	for lag := -c.params.MaxLag; lag <= c.params.MaxLag; lag++ {
		table = append(table, c.correlateAtLag(aVals, aValid, bVals, bValid, lag))
	}

	optimal := selectOptimal(table)
	return models.PairResult{
		LayerA:          a.Layer,
		LayerB:          b.Layer,
		LagCorrelations: table,
		OptimalLag:      optimal.Lag,
		OptimalR:        optimal.R,
		OptimalP:        optimal.PValue,
		Interpretation:  models.InterpretLag(optimal.Lag, a.Layer, b.Layer),
	}, nil
}

// correlateAtLag shifts b against a by lag seconds, drops positions where
// either cell is invalid and computes Pearson r with its two-tailed
// p-value. Fewer than MinSamples surviving pairs yields a void entry,
// which is an expected outcome at extreme lags, not an error.
func (c *LaggedCorrelator) correlateAtLag(aVals []float64, aValid []bool, bVals []float64, bValid []bool, lag int) models.LagCorrelation {
	n := len(aVals)
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)

	// lag < 0 pairs a[i] with b[i+|lag|] (a leads b); lag > 0 pairs
	// a[i+lag] with b[i].
	for i := 0; i < n; i++ {
		j := i - lag
		if j < 0 || j >= n {
			continue
		}
		if !aValid[i] || !bValid[j] {
			continue
		}
		xs = append(xs, aVals[i])
		ys = append(ys, bVals[j])
	}

	if len(xs) < c.params.MinSamples {
		return voidEntry(lag, len(xs))
	}

	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		// Zero variance on either side; no correlation is computable.
		return voidEntry(lag, len(xs))
	}

	p := twoTailedPValue(r, len(xs))
	return models.LagCorrelation{
		Lag:         lag,
		R:           r,
		PValue:      p,
		Significant: p < Alpha,
		NSamples:    len(xs),
	}
}

func voidEntry(lag, n int) models.LagCorrelation {
	return models.LagCorrelation{Lag: lag, R: 0, PValue: 1, Significant: false, NSamples: n}
}

// twoTailedPValue converts r into the two-tailed p-value of the t statistic
// with n-2 degrees of freedom.
func twoTailedPValue(r float64, n int) float64 {
	if n <= 2 {
		return 1
	}
	denom := 1 - r*r
	if denom <= 0 {
		// Perfect correlation.
		return 0
	}
	t := math.Abs(r) * math.Sqrt(float64(n-2)/denom)
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	p := 2 * dist.Survival(t)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// selectOptimal picks the entry maximising |r|, breaking ties by smallest
// |lag| and then by scan order. A naive first-maximum scan would make the
// choice an implementation accident; the tie-break is deliberate policy.
func selectOptimal(table []models.LagCorrelation) models.LagCorrelation {
	if len(table) == 0 {
		return voidEntry(0, 0)
	}
	best := table[0]
	for _, entry := range table[1:] {
		absR := math.Abs(entry.R)
		bestR := math.Abs(best.R)
		if absR > bestR {
			best = entry
			continue
		}
		if absR == bestR && abs(entry.Lag) < abs(best.Lag) {
			best = entry
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
