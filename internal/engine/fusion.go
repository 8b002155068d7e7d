package engine

import (
	"github.com/gridsec/evcorr/internal/align"
	"github.com/gridsec/evcorr/internal/models"
)

// FusedRow is one per-second row of the multi-layer feature dataset.
type FusedRow struct {
	Second   int
	Values   map[models.Layer]float64
	Complete bool
}

// FusedDataset merges the aligned layers of one scenario onto a single
// per-second table for downstream feature work.
type FusedDataset struct {
	Scenario string
	Layers   []models.Layer
	Rows     []FusedRow
}

// BuildFused constructs the fused dataset from the aligned timelines,
// applying the per-layer fill policies first: host telemetry is
// forward-filled across short stalls (up to maxGap seconds), absent
// network traffic means zero flow, and power cells are never invented.
// A row is complete only when every participating layer has a valid cell.
func BuildFused(scenario models.Scenario, timelines map[models.Layer]models.AlignedTimeline, maxGap int) FusedDataset {
	layers := scenario.Layers()

	filled := make(map[models.Layer]models.AlignedTimeline, len(layers))
	for _, layer := range layers {
		timeline := timelines[layer]
		switch layer {
		case models.LayerHost:
			timeline = align.ForwardFill(timeline, maxGap)
		case models.LayerNetwork:
			timeline = align.ZeroFill(timeline)
		}
		filled[layer] = timeline
	}

	length := 0
	for _, timeline := range filled {
		if len(timeline.Cells) > length {
			length = len(timeline.Cells)
		}
	}

	dataset := FusedDataset{Scenario: scenario.Name, Layers: layers}
	for i := 0; i < length; i++ {
		row := FusedRow{Values: make(map[models.Layer]float64, len(layers)), Complete: true}
		for _, layer := range layers {
			cells := filled[layer].Cells
			if i < len(cells) {
				row.Second = cells[i].Second
			}
			if i >= len(cells) || !cells[i].Valid {
				row.Complete = false
				continue
			}
			row.Values[layer] = cells[i].Value
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	return dataset
}
