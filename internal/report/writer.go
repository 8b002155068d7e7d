// Package report writes the JSON and CSV artifacts of an analysis run.
// Artifacts are idempotent-by-overwrite: re-running a scenario replaces its
// outputs.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gridsec/evcorr/internal/engine"
	"github.com/gridsec/evcorr/internal/models"
)

// Writer persists analysis artifacts under one output directory. It is an
// engine.ReportSink, safe for concurrent scenario completions.
type Writer struct {
	dir string

	mu     sync.Mutex
	starts map[string]map[string]startEntry
}

type startEntry struct {
	Timestamp  float64 `json:"timestamp"`
	Confidence string  `json:"confidence"`
	Method     string  `json:"method"`
}

// NewWriter constructs a Writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return &Writer{dir: dir, starts: make(map[string]map[string]startEntry)}, nil
}

// Consume writes every artifact for one completed scenario analysis.
func (w *Writer) Consume(ctx context.Context, analysis engine.Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	report := analysis.Report

	if err := w.writeCorrelations(report); err != nil {
		return err
	}
	if err := w.writeAlignmentSummary(report); err != nil {
		return err
	}
	if err := w.writeFused(analysis.Fused); err != nil {
		return err
	}
	return w.writeAttackStarts(report)
}

// WritePatterns persists the cross-incident propagation summary.
func (w *Writer) WritePatterns(patterns []engine.PropagationPattern) error {
	return w.writeJSON("propagation_patterns.json", patterns)
}

// writeCorrelations emits the stable per-pair contract:
// {"lag_correlations": [...], "optimal_lag", "optimal_r", "optimal_p",
// "interpretation"} keyed by pair name.
func (w *Writer) writeCorrelations(report models.IncidentReport) error {
	payload := make(map[string]models.PairResult, len(report.Pairs))
	for _, pair := range report.Pairs {
		payload[pair.PairKey()] = pair
	}
	return w.writeJSON(report.Scenario+"_correlations.json", payload)
}

func (w *Writer) writeAlignmentSummary(report models.IncidentReport) error {
	type layerSummary struct {
		Coverage    float64 `json:"coverage"`
		LowCoverage bool    `json:"low_coverage"`
	}
	summary := struct {
		Scenario string                  `json:"scenario"`
		RunID    string                  `json:"run_id"`
		Layers   map[string]layerSummary `json:"layers"`
	}{
		Scenario: report.Scenario,
		RunID:    report.RunID,
		Layers:   make(map[string]layerSummary, len(report.Coverage)),
	}
	for layer, cov := range report.Coverage {
		summary.Layers[string(layer)] = layerSummary{
			Coverage:    cov,
			LowCoverage: cov < 0.5,
		}
	}
	return w.writeJSON(report.Scenario+"_alignment.json", summary)
}

// writeAttackStarts maintains the combined sidecar-format file across
// scenario completions.
func (w *Writer) writeAttackStarts(report models.IncidentReport) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	layers := make(map[string]startEntry, len(report.Detections))
	for layer, det := range report.Detections {
		layers[string(layer)] = startEntry{
			Timestamp:  det.Timestamp,
			Confidence: string(det.Confidence),
			Method:     det.Method,
		}
	}
	w.starts[report.Scenario] = layers
	return w.writeJSON("attack_start_points.json", w.starts)
}

// writeFused emits the per-second multi-layer dataset as CSV. Incomplete
// rows keep empty cells for the missing layers.
func (w *Writer) writeFused(fused engine.FusedDataset) error {
	if fused.Scenario == "" {
		return nil
	}
	path := filepath.Join(w.dir, fused.Scenario+"_fused.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	header := []string{"time_rel"}
	for _, layer := range fused.Layers {
		header = append(header, string(layer)+"_intensity")
	}
	header = append(header, "complete")
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	for _, row := range fused.Rows {
		record := []string{strconv.Itoa(row.Second)}
		for _, layer := range fused.Layers {
			if v, ok := row.Values[layer]; ok {
				record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		record = append(record, strconv.FormatBool(row.Complete))
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (w *Writer) writeJSON(name string, payload interface{}) error {
	path := filepath.Join(w.dir, name)
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
