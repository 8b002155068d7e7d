// Package ingest loads per-layer capture files and attack-start sidecars.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gridsec/evcorr/internal/models"
	"github.com/gridsec/evcorr/internal/utils"
)

// LayerSource names the file and columns backing one layer of a scenario.
// Column selection is explicit configuration; the loader applies no
// dataset-specific guessing.
type LayerSource struct {
	Path        string
	TimeColumn  string
	TimeUnit    utils.TimeUnit
	ValueColumn []string
}

// CSVLoader reads capture CSVs into MetricSeries.
type CSVLoader struct {
	logger *slog.Logger
}

// NewCSVLoader constructs a loader.
func NewCSVLoader(logger *slog.Logger) *CSVLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVLoader{logger: logger}
}

// LoadSeries reads src and returns the layer's metric series: per row, the
// mean of the configured value columns becomes the sample value. A missing
// file or column aborts the unit with a MissingDataError; rows with
// unparseable numerics are skipped and counted.
func (l *CSVLoader) LoadSeries(scenario string, layer models.Layer, src LayerSource) (models.MetricSeries, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return models.MetricSeries{}, &utils.MissingDataError{
			Scenario: scenario, Layer: string(layer), Path: src.Path, Err: err,
		}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return models.MetricSeries{}, &utils.MissingDataError{
			Scenario: scenario, Layer: string(layer), Path: src.Path,
			Err: fmt.Errorf("read header: %w", err),
		}
	}

	timeIdx, err := columnIndex(header, src.TimeColumn)
	if err != nil {
		return models.MetricSeries{}, &utils.MissingDataError{
			Scenario: scenario, Layer: string(layer), Path: src.Path,
			Column: src.TimeColumn, Err: err,
		}
	}

	valueIdx := make([]int, 0, len(src.ValueColumn))
	for _, col := range src.ValueColumn {
		idx, err := columnIndex(header, col)
		if err != nil {
			return models.MetricSeries{}, &utils.MissingDataError{
				Scenario: scenario, Layer: string(layer), Path: src.Path,
				Column: col, Err: err,
			}
		}
		valueIdx = append(valueIdx, idx)
	}
	if len(valueIdx) == 0 {
		return models.MetricSeries{}, &utils.MissingDataError{
			Scenario: scenario, Layer: string(layer), Path: src.Path,
			Err: fmt.Errorf("no value columns configured"),
		}
	}

	unit := src.TimeUnit
	if unit == "" {
		unit = utils.UnitSeconds
	}

	samples := make([]models.Sample, 0, 1024)
	skipped := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.MetricSeries{}, fmt.Errorf("read %s: %w", src.Path, err)
		}

		offset, err := utils.ParseOffset(fieldAt(record, timeIdx), unit)
		if err != nil {
			skipped++
			continue
		}

		sum := 0.0
		n := 0
		for _, idx := range valueIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(fieldAt(record, idx)), 64)
			if err != nil {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			skipped++
			continue
		}

		samples = append(samples, models.Sample{Offset: offset, Value: sum / float64(n)})
	}

	if skipped > 0 {
		l.logger.Warn("skipped malformed rows",
			slog.String("scenario", scenario),
			slog.String("layer", string(layer)),
			slog.String("path", src.Path),
			slog.Int("rows", skipped))
	}

	return models.NewMetricSeries(layer, samples), nil
}

func columnIndex(header []string, name string) (int, error) {
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %q not found", name)
}

func fieldAt(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}
