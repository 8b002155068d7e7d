package engine

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/gridsec/evcorr/internal/models"
)

// PropagationPattern summarises how a layer pair behaved across multiple
// analysed incidents: the typical propagation lag and how consistently the
// correlation was significant.
type PropagationPattern struct {
	Pair        string   `json:"pair"`
	Incidents   int      `json:"incidents"`
	MeanLag     float64  `json:"mean_lag"`
	LagStdDev   float64  `json:"lag_stddev"`
	MinLag      int      `json:"min_lag"`
	MaxLag      int      `json:"max_lag"`
	MeanAbsR    float64  `json:"mean_abs_r"`
	Consistency float64  `json:"consistency"`
	Scenarios   []string `json:"scenarios"`
}

// AggregatePatterns mines cross-incident propagation patterns from a batch
// of reports. Consistency is the fraction of incidents whose optimal lag
// was statistically significant.
func AggregatePatterns(reports []models.IncidentReport) []PropagationPattern {
	if len(reports) == 0 {
		return nil
	}

	type pairAgg struct {
		lags        []float64
		absRs       []float64
		significant int
		minLag      int
		maxLag      int
		scenarios   []string
	}

	byPair := make(map[string]*pairAgg)
	for _, report := range reports {
		for _, pair := range report.Pairs {
			key := pair.PairKey()
			agg, ok := byPair[key]
			if !ok {
				agg = &pairAgg{minLag: pair.OptimalLag, maxLag: pair.OptimalLag}
				byPair[key] = agg
			}
			agg.lags = append(agg.lags, float64(pair.OptimalLag))
			agg.absRs = append(agg.absRs, math.Abs(pair.OptimalR))
			if pair.OptimalP < 0.05 {
				agg.significant++
			}
			if pair.OptimalLag < agg.minLag {
				agg.minLag = pair.OptimalLag
			}
			if pair.OptimalLag > agg.maxLag {
				agg.maxLag = pair.OptimalLag
			}
			agg.scenarios = append(agg.scenarios, report.Scenario)
		}
	}

	patterns := make([]PropagationPattern, 0, len(byPair))
	for key, agg := range byPair {
		n := len(agg.lags)
		pattern := PropagationPattern{
			Pair:        key,
			Incidents:   n,
			MeanLag:     stat.Mean(agg.lags, nil),
			MinLag:      agg.minLag,
			MaxLag:      agg.maxLag,
			MeanAbsR:    stat.Mean(agg.absRs, nil),
			Consistency: float64(agg.significant) / float64(n),
			Scenarios:   agg.scenarios,
		}
		if n > 1 {
			pattern.LagStdDev = stat.StdDev(agg.lags, nil)
		}
		patterns = append(patterns, pattern)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Incidents != patterns[j].Incidents {
			return patterns[i].Incidents > patterns[j].Incidents
		}
		return patterns[i].Pair < patterns[j].Pair
	})
	return patterns
}
