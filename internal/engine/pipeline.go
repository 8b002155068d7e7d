// Package engine orchestrates the per-scenario analysis flow: load, detect,
// align, correlate, characterise, persist.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gridsec/evcorr/internal/align"
	"github.com/gridsec/evcorr/internal/config"
	"github.com/gridsec/evcorr/internal/correlate"
	"github.com/gridsec/evcorr/internal/detector"
	"github.com/gridsec/evcorr/internal/ingest"
	"github.com/gridsec/evcorr/internal/metrics"
	"github.com/gridsec/evcorr/internal/models"
	"github.com/gridsec/evcorr/internal/utils"
)

// SeriesLoader abstracts capture ingestion so tests can feed synthetic
// series without touching the filesystem.
type SeriesLoader interface {
	LoadSeries(scenario string, layer models.Layer, src ingest.LayerSource) (models.MetricSeries, error)
}

// Analysis bundles everything one scenario run produces.
type Analysis struct {
	Report    models.IncidentReport
	Timelines map[models.Layer]models.AlignedTimeline
	Fused     FusedDataset
}

// Pipeline runs the full investigation for one scenario. Each invocation is
// pure apart from logging and metrics, so independent scenarios may run
// concurrently.
type Pipeline struct {
	logger     *slog.Logger
	loader     SeriesLoader
	detector   *detector.AttackStartDetector
	aligner    *align.TemporalAligner
	correlator *correlate.LaggedCorrelator
	sidecar    ingest.Sidecar
	fillMaxGap int
}

// NewPipeline constructs a pipeline; nil collaborators fall back to
// defaults where one exists.
func NewPipeline(
	logger *slog.Logger,
	loader SeriesLoader,
	det *detector.AttackStartDetector,
	aligner *align.TemporalAligner,
	correlator *correlate.LaggedCorrelator,
	sidecar ingest.Sidecar,
	fillMaxGap int,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if det == nil {
		det = detector.New(detector.DefaultParams(), logger)
	}
	if aligner == nil {
		aligner = align.New(align.DefaultParams())
	}
	if correlator == nil {
		correlator = correlate.New(correlate.DefaultParams())
	}
	if fillMaxGap <= 0 {
		fillMaxGap = 5
	}
	return &Pipeline{
		logger:     logger,
		loader:     loader,
		detector:   det,
		aligner:    aligner,
		correlator: correlator,
		sidecar:    sidecar,
		fillMaxGap: fillMaxGap,
	}
}

// Analyze executes the flow for one configured scenario. Failures are
// attributable: every error names the scenario and the layer or pair that
// produced it.
func (p *Pipeline) Analyze(ctx context.Context, scenCfg config.ScenarioConfig) (Analysis, error) {
	if p.loader == nil {
		return Analysis{}, fmt.Errorf("series loader not configured")
	}

	scenario := models.Scenario{Name: scenCfg.Name, HasNetwork: scenCfg.HasNetwork}
	logger := utils.ScenarioLogger(p.logger, scenario.Name)

	series := make(map[models.Layer]models.MetricSeries, 3)
	for _, layer := range scenario.Layers() {
		if err := ctx.Err(); err != nil {
			return Analysis{}, err
		}
		src, ok := scenCfg.Layers[string(layer)]
		if !ok {
			return Analysis{}, &utils.MissingDataError{Scenario: scenario.Name, Layer: string(layer)}
		}
		loaded, err := p.loader.LoadSeries(scenario.Name, layer, layerSource(src))
		if err != nil {
			return Analysis{}, err
		}
		if loaded.Empty() {
			return Analysis{}, &utils.MissingDataError{
				Scenario: scenario.Name, Layer: string(layer), Path: src.Path,
				Err: utils.ErrNoData,
			}
		}
		series[layer] = loaded
	}

	detections := make(map[models.Layer]models.Detection, len(series))
	for _, layer := range scenario.Layers() {
		det, err := p.detectStart(scenario, scenCfg, layer, series[layer])
		if err != nil {
			return Analysis{}, fmt.Errorf("scenario %q layer %q: %w", scenario.Name, layer, err)
		}
		if det.Confidence == models.ConfidenceLow {
			metrics.CountLowConfidenceDetection(scenario.Name, string(layer))
			logger.Warn("attack start fell back to low confidence",
				slog.String("layer", string(layer)),
				slog.String("method", det.Method))
		} else {
			logger.Info("attack start",
				slog.String("layer", string(layer)),
				slog.Float64("timestamp", det.Timestamp),
				slog.String("confidence", string(det.Confidence)))
		}
		detections[layer] = det
	}

	timelines := make(map[models.Layer]models.AlignedTimeline, len(series))
	coverage := make(map[models.Layer]float64, len(series))
	var lowLayers []models.Layer
	for _, layer := range scenario.Layers() {
		if err := ctx.Err(); err != nil {
			return Analysis{}, err
		}
		timeline, err := p.aligner.Align(series[layer], detections[layer])
		if err != nil {
			return Analysis{}, fmt.Errorf("scenario %q layer %q: align: %w", scenario.Name, layer, err)
		}
		cov := timeline.Coverage()
		coverage[layer] = cov
		metrics.SetAlignmentCoverage(scenario.Name, string(layer), cov)
		if timeline.LowCoverage() {
			lowLayers = append(lowLayers, layer)
			logger.Warn("alignment coverage below 50%, result unreliable",
				slog.String("layer", string(layer)),
				slog.Float64("coverage", cov))
		}
		timelines[layer] = timeline
	}

	// Correlation runs on the raw aligned cells; filling only applies to
	// the fused dataset so invented values never influence the lag scan.
	pairs := make([]models.PairResult, 0, 3)
	for _, pair := range scenario.LayerPairs() {
		result, err := p.correlator.Correlate(timelines[pair[0]], timelines[pair[1]])
		if err != nil {
			return Analysis{}, fmt.Errorf("scenario %q pair %s-%s: %w", scenario.Name, pair[0], pair[1], err)
		}
		logger.Info("lag scan complete",
			slog.String("pair", result.PairKey()),
			slog.Int("optimal_lag", result.OptimalLag),
			slog.Float64("optimal_r", result.OptimalR))
		pairs = append(pairs, result)
	}

	evolution := make(map[models.Layer]models.LayerEvolution, len(timelines))
	for layer, timeline := range timelines {
		evolution[layer] = CharacterizeEvolution(timeline)
	}

	fused := BuildFused(scenario, timelines, p.fillMaxGap)

	report := models.IncidentReport{
		RunID:      uuid.NewString(),
		Scenario:   scenario.Name,
		HasNetwork: scenario.HasNetwork,
		Detections: detections,
		Coverage:   coverage,
		LowLayers:  lowLayers,
		Pairs:      pairs,
		Evolution:  evolution,
		CreatedAt:  time.Now().UTC(),
	}

	return Analysis{Report: report, Timelines: timelines, Fused: fused}, nil
}

// detectStart picks the per-layer detection strategy: sidecar overrides
// win, the network layer takes its first packet, the power layer uses a
// plain threshold crossing, and the host layer runs the full windowed
// detector.
func (p *Pipeline) detectStart(scenario models.Scenario, scenCfg config.ScenarioConfig, layer models.Layer, s models.MetricSeries) (models.Detection, error) {
	if det, ok := p.sidecar.Lookup(scenario.Name, layer); ok {
		return det, nil
	}

	switch layer {
	case models.LayerNetwork:
		return detector.FirstSampleStart(s)
	case models.LayerPower:
		baseline, err := p.baselineFor(scenario.Name, scenCfg, layer)
		if err != nil {
			return models.Detection{}, err
		}
		return p.detector.DetectThresholdCrossing(s, baseline)
	default:
		baseline, err := p.baselineFor(scenario.Name, scenCfg, layer)
		if err != nil {
			return models.Detection{}, err
		}
		return p.detector.Detect(s, baseline)
	}
}

// baselineFor resolves benign statistics for a layer: explicit mean/stddev
// from config, or computed from a configured benign capture. The baseline
// is never taken from the candidate series itself.
func (p *Pipeline) baselineFor(scenario string, scenCfg config.ScenarioConfig, layer models.Layer) (models.Baseline, error) {
	bc, ok := scenCfg.Baselines[string(layer)]
	if !ok {
		return models.Baseline{}, &utils.MissingDataError{
			Scenario: scenario, Layer: string(layer),
			Err: fmt.Errorf("no benign baseline configured"),
		}
	}
	if bc.Mean != nil && bc.StdDev != nil {
		return models.Baseline{Mean: *bc.Mean, StdDev: *bc.StdDev}, nil
	}

	benign, err := p.loader.LoadSeries(scenario, layer, layerSource(*bc.Source))
	if err != nil {
		return models.Baseline{}, err
	}
	baseline, err := detector.BaselineFromSeries(benign)
	if err != nil {
		return models.Baseline{}, &utils.MissingDataError{
			Scenario: scenario, Layer: string(layer), Path: bc.Source.Path, Err: err,
		}
	}
	return baseline, nil
}

func layerSource(cfg config.LayerSourceConfig) ingest.LayerSource {
	return ingest.LayerSource{
		Path:        cfg.Path,
		TimeColumn:  cfg.TimeColumn,
		TimeUnit:    utils.TimeUnit(cfg.TimeUnit),
		ValueColumn: cfg.ValueColumns,
	}
}
