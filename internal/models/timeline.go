package models

// Cell is one per-second slot of an aligned timeline. Valid is false when
// no source sample fell inside the tolerance window of that second; the
// value of an invalid cell is meaningless and must not be read.
type Cell struct {
	Second int
	Value  float64
	Valid  bool
}

// AlignedTimeline is a layer's series re-based to attack-relative time and
// resampled onto a shared integer-second grid.
type AlignedTimeline struct {
	Layer     Layer
	Tolerance float64
	Cells     []Cell
}

// Coverage returns the fraction of valid cells in [0,1].
func (t AlignedTimeline) Coverage() float64 {
	if len(t.Cells) == 0 {
		return 0
	}
	valid := 0
	for _, c := range t.Cells {
		if c.Valid {
			valid++
		}
	}
	return float64(valid) / float64(len(t.Cells))
}

// LowCoverage flags timelines with more than half of their cells invalid.
// Such an alignment is unreliable and must be surfaced, not silently used.
func (t AlignedTimeline) LowCoverage() bool {
	return t.Coverage() < 0.5
}

// Values exposes the cell values as a parallel slice pair for numeric code:
// values[i] is meaningful only when valid[i] is true.
func (t AlignedTimeline) Values() (values []float64, valid []bool) {
	values = make([]float64, len(t.Cells))
	valid = make([]bool, len(t.Cells))
	for i, c := range t.Cells {
		values[i] = c.Value
		valid[i] = c.Valid
	}
	return values, valid
}
