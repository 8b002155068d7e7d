package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridsec/evcorr/internal/align"
	"github.com/gridsec/evcorr/internal/config"
	"github.com/gridsec/evcorr/internal/correlate"
	"github.com/gridsec/evcorr/internal/detector"
	"github.com/gridsec/evcorr/internal/engine"
	"github.com/gridsec/evcorr/internal/ingest"
	"github.com/gridsec/evcorr/internal/metrics"
	"github.com/gridsec/evcorr/internal/models"
	"github.com/gridsec/evcorr/internal/repo"
	"github.com/gridsec/evcorr/internal/report"
	"github.com/gridsec/evcorr/internal/utils"
	"github.com/gridsec/evcorr/internal/watch"
)

// storeSink persists completed reports through the configured store.
type storeSink struct {
	store repo.Store
}

func (s storeSink) Consume(ctx context.Context, analysis engine.Analysis) error {
	return s.store.SaveReport(ctx, analysis.Report)
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting evcorr", slog.Int("scenarios", len(cfg.Scenarios)))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var store repo.Store = repo.NoopStore{}
	if cfg.Store.Enabled {
		sqliteStore, err := repo.OpenSQLite(cfg.Store.Path)
		if err != nil {
			logger.Error("failed to open result store", slog.String("path", cfg.Store.Path), slog.Any("error", err))
			os.Exit(1)
		}
		store = sqliteStore
	}
	defer store.Close()

	var sidecar ingest.Sidecar
	if cfg.Sidecar.Path != "" {
		sidecar, err = ingest.LoadSidecar(cfg.Sidecar.Path)
		if err != nil {
			logger.Error("failed to load attack-start sidecar", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("attack starts pinned from sidecar", slog.String("path", cfg.Sidecar.Path))
	}

	writer, err := report.NewWriter(cfg.Output.Dir)
	if err != nil {
		logger.Error("failed to prepare output directory", slog.Any("error", err))
		os.Exit(1)
	}

	pipeline := engine.NewPipeline(
		logger,
		ingest.NewCSVLoader(logger),
		detectorFromConfig(cfg, logger),
		alignerFromConfig(cfg),
		correlatorFromConfig(cfg),
		sidecar,
		cfg.Analysis.ForwardFillMaxGap,
	)
	runner := engine.NewRunner(logger, pipeline, cfg.Analysis.Workers, writer, storeSink{store: store})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Metrics.Address,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Metrics.Address))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	outcomes := runner.Run(ctx, cfg.Scenarios)
	failed := 0
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
		}
	}
	writePatterns(ctx, logger, writer, store, outcomes)

	if cfg.Watch.Enabled {
		watcher := watch.New(logger, cfg.Scenarios, cfg.Watch.Debounce, func(names []string) {
			subset := scenarioSubset(cfg.Scenarios, names)
			rerun := runner.Run(ctx, subset)
			writePatterns(ctx, logger, writer, store, rerun)
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watcher exited", slog.Any("error", err))
				stop()
			}
		}()
		<-ctx.Done()
		logger.Info("shutdown signal received")
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancel()
	}

	if failed > 0 && !cfg.Watch.Enabled {
		logger.Error("run finished with failures", slog.Int("failed", failed), slog.Int("total", len(outcomes)))
		os.Exit(1)
	}
	logger.Info("evcorr finished", slog.Int("scenarios", len(outcomes)))
}

// writePatterns mines propagation patterns over this run's reports plus
// stored history and writes the summary artifact.
func writePatterns(ctx context.Context, logger *slog.Logger, writer *report.Writer, store repo.Store, outcomes []engine.Outcome) {
	reports := engine.Reports(outcomes)
	history, err := store.ListReports(ctx, "", 200)
	if err != nil {
		logger.Warn("could not load report history", slog.Any("error", err))
	} else {
		reports = append(reports, dedupeReports(history, reports)...)
	}
	if len(reports) == 0 {
		return
	}
	if err := writer.WritePatterns(engine.AggregatePatterns(reports)); err != nil {
		logger.Warn("could not write propagation patterns", slog.Any("error", err))
	}
}

// dedupeReports drops history entries already present in the current batch.
func dedupeReports(history, current []models.IncidentReport) []models.IncidentReport {
	seen := make(map[string]struct{}, len(current))
	for _, r := range current {
		seen[r.RunID] = struct{}{}
	}
	out := make([]models.IncidentReport, 0, len(history))
	for _, r := range history {
		if _, ok := seen[r.RunID]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

func detectorFromConfig(cfg *config.Config, logger *slog.Logger) *detector.AttackStartDetector {
	return detector.New(detector.Params{
		WindowSize:       cfg.Analysis.WindowSize,
		ConfirmationSize: cfg.Analysis.ConfirmationSize,
		Sigmas:           cfg.Analysis.Sigmas,
	}, logger)
}

func alignerFromConfig(cfg *config.Config) *align.TemporalAligner {
	return align.New(align.Params{
		Tolerance:  cfg.Analysis.Tolerance,
		RangeStart: cfg.Analysis.RangeStart,
		RangeEnd:   cfg.Analysis.RangeEnd,
	})
}

func correlatorFromConfig(cfg *config.Config) *correlate.LaggedCorrelator {
	return correlate.New(correlate.Params{
		MaxLag:     cfg.Analysis.MaxLag,
		MinSamples: cfg.Analysis.MinSamples,
	})
}

func scenarioSubset(all []config.ScenarioConfig, names []string) []config.ScenarioConfig {
	want := make(map[string]struct{}, len(names))
	for _, name := range names {
		want[name] = struct{}{}
	}
	subset := make([]config.ScenarioConfig, 0, len(names))
	for _, scen := range all {
		if _, ok := want[scen.Name]; ok {
			subset = append(subset, scen)
		}
	}
	return subset
}
