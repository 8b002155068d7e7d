// Package align re-bases per-layer series to attack-relative time and
// resamples them onto a shared integer-second grid using a symmetric
// tolerance window.
package align

import (
	"github.com/gridsec/evcorr/internal/models"
	"github.com/gridsec/evcorr/internal/utils"
)

// Params tunes the alignment grid.
type Params struct {
	// Tolerance is the symmetric pooling radius in seconds: samples with
	// relative time in [t-Tolerance, t+Tolerance) are averaged onto second t.
	Tolerance float64
	// RangeStart and RangeEnd bound the relative-second grid, inclusive.
	RangeStart int
	RangeEnd   int
}

// DefaultParams matches the CICEVSE2024 operating point: +-2.5s pooling
// over the first minute after attack start.
func DefaultParams() Params {
	return Params{Tolerance: 2.5, RangeStart: 0, RangeEnd: 60}
}

// TemporalAligner produces AlignedTimelines sharing one relative-second
// index. The source layers are irregularly and independently sampled, so
// exact timestamp matching would discard almost all data; pooling inside a
// tolerance window trades temporal precision for coverage.
type TemporalAligner struct {
	params Params
}

// New constructs an aligner; zero-valued params fall back to defaults.
func New(params Params) *TemporalAligner {
	def := DefaultParams()
	if params.Tolerance <= 0 {
		params.Tolerance = def.Tolerance
	}
	if params.RangeEnd <= params.RangeStart {
		params.RangeStart = def.RangeStart
		params.RangeEnd = def.RangeEnd
	}
	return &TemporalAligner{params: params}
}

// Align re-bases the series to attack-relative time and buckets it onto
// the grid. Seconds with no sample inside the window yield invalid cells;
// values are never invented here. Filling is a separate, explicit
// post-step (ForwardFill, ZeroFill). Output is deterministic for a given
// input and tolerance.
func (a *TemporalAligner) Align(series models.MetricSeries, start models.Detection) (models.AlignedTimeline, error) {
	if series.Empty() {
		return models.AlignedTimeline{}, utils.ErrNoData
	}

	rebased := series.Rebase(start.Timestamp)
	cells := make([]models.Cell, 0, a.params.RangeEnd-a.params.RangeStart+1)

	for t := a.params.RangeStart; t <= a.params.RangeEnd; t++ {
		lo := float64(t) - a.params.Tolerance
		hi := float64(t) + a.params.Tolerance

		sum := 0.0
		n := 0
		for _, s := range rebased.Samples {
			if s.Offset >= lo && s.Offset < hi {
				sum += s.Value
				n++
			}
		}

		cell := models.Cell{Second: t}
		if n > 0 {
			cell.Value = sum / float64(n)
			cell.Valid = true
		}
		cells = append(cells, cell)
	}

	return models.AlignedTimeline{
		Layer:     series.Layer,
		Tolerance: a.params.Tolerance,
		Cells:     cells,
	}, nil
}

// ForwardFill copies the last valid value into subsequent invalid cells,
// up to maxGap seconds per gap. Host telemetry ticks can stall briefly
// under load; carrying the last reading over a short gap is acceptable
// there, while longer gaps stay invalid.
func ForwardFill(timeline models.AlignedTimeline, maxGap int) models.AlignedTimeline {
	filled := cloneTimeline(timeline)
	lastValid := -1
	for i := range filled.Cells {
		if filled.Cells[i].Valid {
			lastValid = i
			continue
		}
		if lastValid >= 0 && maxGap > 0 && i-lastValid <= maxGap {
			filled.Cells[i].Value = filled.Cells[lastValid].Value
			filled.Cells[i].Valid = true
		}
	}
	return filled
}

// ZeroFill marks every invalid cell as zero. On the network layer the
// absence of traffic in a window genuinely means zero flow by domain
// convention, unlike host or power where absence means "not observed".
func ZeroFill(timeline models.AlignedTimeline) models.AlignedTimeline {
	filled := cloneTimeline(timeline)
	for i := range filled.Cells {
		if !filled.Cells[i].Valid {
			filled.Cells[i].Value = 0
			filled.Cells[i].Valid = true
		}
	}
	return filled
}

func cloneTimeline(t models.AlignedTimeline) models.AlignedTimeline {
	out := t
	out.Cells = append([]models.Cell(nil), t.Cells...)
	return out
}
