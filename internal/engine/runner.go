package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gridsec/evcorr/internal/config"
	"github.com/gridsec/evcorr/internal/metrics"
	"github.com/gridsec/evcorr/internal/models"
	"github.com/gridsec/evcorr/internal/utils"
)

// ReportSink receives completed analyses; implementations persist them or
// write artifacts.
type ReportSink interface {
	Consume(ctx context.Context, analysis Analysis) error
}

// Outcome is the per-scenario result of a run: either an analysis or the
// error that aborted it. One failing scenario never takes down siblings.
type Outcome struct {
	Scenario string
	Analysis Analysis
	Err      error
}

// Runner executes independent scenario analyses across a worker pool.
// Each analysis is side-effect-free apart from its own sink output, so no
// locking is needed beyond the result collection.
type Runner struct {
	logger    *slog.Logger
	pipeline  *Pipeline
	sinks     []ReportSink
	workers   int
	latencies *utils.LatencyTracker
}

// NewRunner constructs a Runner over the given pipeline and sinks.
func NewRunner(logger *slog.Logger, pipeline *Pipeline, workers int, sinks ...ReportSink) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		logger:    logger,
		pipeline:  pipeline,
		sinks:     sinks,
		workers:   workers,
		latencies: utils.NewLatencyTracker(256),
	}
}

// Run analyses every configured scenario and returns one Outcome each, in
// input order.
func (r *Runner) Run(ctx context.Context, scenarios []config.ScenarioConfig) []Outcome {
	outcomes := make([]Outcome, len(scenarios))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = r.runOne(ctx, scenarios[idx])
			}
		}()
	}

	for idx := range scenarios {
		select {
		case jobs <- idx:
		case <-ctx.Done():
			outcomes[idx] = Outcome{Scenario: scenarios[idx].Name, Err: ctx.Err()}
		}
	}
	close(jobs)
	wg.Wait()

	if count := r.latencies.Count(); count > 0 {
		r.logger.Info("analysis latency",
			slog.Duration("p95", r.latencies.Percentile(95)),
			slog.Int("scenarios", count))
	}
	return outcomes
}

// Reports extracts the successful reports from a set of outcomes.
func Reports(outcomes []Outcome) []models.IncidentReport {
	reports := make([]models.IncidentReport, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil {
			reports = append(reports, o.Analysis.Report)
		}
	}
	return reports
}

func (r *Runner) runOne(ctx context.Context, scenCfg config.ScenarioConfig) Outcome {
	start := time.Now()
	analysis, err := r.pipeline.Analyze(ctx, scenCfg)
	duration := time.Since(start)

	if err != nil {
		metrics.ObserveAnalysis(duration, metrics.OutcomeError)
		r.logger.Error("scenario analysis failed",
			slog.String("scenario", scenCfg.Name),
			slog.Any("error", err))
		return Outcome{Scenario: scenCfg.Name, Err: err}
	}

	r.latencies.Observe(duration)
	metrics.ObserveAnalysis(duration, metrics.OutcomeSuccess)

	for _, sink := range r.sinks {
		if err := sink.Consume(ctx, analysis); err != nil {
			r.logger.Warn("report sink failed",
				slog.String("scenario", scenCfg.Name),
				slog.Any("error", err))
		}
	}

	return Outcome{Scenario: scenCfg.Name, Analysis: analysis}
}
