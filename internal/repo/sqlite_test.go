package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridsec/evcorr/internal/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "evcorr.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleReport(runID, scenario string, createdAt time.Time) models.IncidentReport {
	return models.IncidentReport{
		RunID:      runID,
		Scenario:   scenario,
		HasNetwork: true,
		Detections: map[models.Layer]models.Detection{
			models.LayerHost: {
				Layer:      models.LayerHost,
				Outcome:    models.OutcomeDetected,
				Timestamp:  14.5,
				Confidence: models.ConfidenceHigh,
				Method:     models.MethodSlidingWindow,
			},
		},
		Coverage:  map[models.Layer]float64{models.LayerHost: 0.92, models.LayerPower: 0.4},
		LowLayers: []models.Layer{models.LayerPower},
		Pairs: []models.PairResult{{
			LayerA:     models.LayerNetwork,
			LayerB:     models.LayerHost,
			OptimalLag: -4,
			OptimalR:   0.91,
			OptimalP:   0.002,
			LagCorrelations: []models.LagCorrelation{
				{Lag: -4, R: 0.91, PValue: 0.002, Significant: true, NSamples: 42},
				{Lag: 0, R: 0.3, PValue: 0.2, NSamples: 50},
			},
			Interpretation: "NETWORK leads HOST by 4 seconds",
		}},
		CreatedAt: createdAt,
	}
}

func TestSaveAndListReports(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	report := sampleReport("run-1", "dos", time.Now().UTC())
	if err := store.SaveReport(ctx, report); err != nil {
		t.Fatalf("save report: %v", err)
	}

	listed, err := store.ListReports(ctx, "", 10)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 report, got %d", len(listed))
	}

	got := listed[0]
	if got.RunID != "run-1" || got.Scenario != "dos" || !got.HasNetwork {
		t.Fatalf("report identity lost: %+v", got)
	}
	det := got.Detections[models.LayerHost]
	if det.Timestamp != 14.5 || det.Method != models.MethodSlidingWindow {
		t.Fatalf("detection lost in roundtrip: %+v", det)
	}
	if got.Coverage[models.LayerHost] != 0.92 {
		t.Fatalf("coverage lost: %+v", got.Coverage)
	}
	if len(got.LowLayers) != 1 || got.LowLayers[0] != models.LayerPower {
		t.Fatalf("low coverage layers lost: %+v", got.LowLayers)
	}

	if len(got.Pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(got.Pairs))
	}
	pair := got.Pairs[0]
	if pair.LayerA != models.LayerNetwork || pair.LayerB != models.LayerHost {
		t.Fatalf("pair layers lost: %+v", pair)
	}
	if pair.OptimalLag != -4 || pair.OptimalR != 0.91 {
		t.Fatalf("optimal stats lost: %+v", pair)
	}
	if len(pair.LagCorrelations) != 2 || !pair.LagCorrelations[0].Significant {
		t.Fatalf("lag table lost: %+v", pair.LagCorrelations)
	}
}

func TestListReportsScenarioFilterAndOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, name := range []string{"dos", "dos", "cryptojacking"} {
		report := sampleReport("run-"+name+string(rune('a'+i)), name, base.Add(time.Duration(i)*time.Minute))
		if err := store.SaveReport(ctx, report); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	dosOnly, err := store.ListReports(ctx, "dos", 10)
	if err != nil {
		t.Fatalf("list dos: %v", err)
	}
	if len(dosOnly) != 2 {
		t.Fatalf("expected 2 dos reports, got %d", len(dosOnly))
	}
	for _, r := range dosOnly {
		if r.Scenario != "dos" {
			t.Fatalf("filter leaked scenario %q", r.Scenario)
		}
	}

	all, err := store.ListReports(ctx, "", 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(all))
	}
	// Newest first.
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("reports out of order: %v then %v", all[i-1].CreatedAt, all[i].CreatedAt)
		}
	}

	limited, err := store.ListReports(ctx, "", 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Scenario != "cryptojacking" {
		t.Fatalf("limit should return only the newest report: %+v", limited)
	}
}

func TestSaveReportDuplicateRunID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	report := sampleReport("run-1", "dos", time.Now().UTC())
	if err := store.SaveReport(ctx, report); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.SaveReport(ctx, report); err == nil {
		t.Fatalf("duplicate run id must be rejected")
	}
}

func TestNoopStore(t *testing.T) {
	var store Store = NoopStore{}
	ctx := context.Background()

	if err := store.SaveReport(ctx, models.IncidentReport{RunID: "x"}); err != nil {
		t.Fatalf("noop save: %v", err)
	}
	reports, err := store.ListReports(ctx, "", 10)
	if err != nil {
		t.Fatalf("noop list: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("noop store should hold nothing, got %d", len(reports))
	}
	if err := store.Close(); err != nil {
		t.Fatalf("noop close: %v", err)
	}
}
