package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/gridsec/evcorr/internal/config"
)

// recordingSink collects the scenarios whose analyses reached it.
type recordingSink struct {
	mu        sync.Mutex
	scenarios []string
	fail      bool
}

func (s *recordingSink) Consume(ctx context.Context, analysis Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios = append(s.scenarios, analysis.Report.Scenario)
	if s.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func runnerFixture(t *testing.T) (*fakeLoader, []config.ScenarioConfig) {
	t.Helper()
	loader, base := threeLayerFixture()

	second := base
	second.Name = "icmp-flood"

	broken := base
	broken.Name = "broken"
	broken.Layers = map[string]config.LayerSourceConfig{
		"network": {Path: "missing.csv", TimeColumn: "t", ValueColumns: []string{"v"}},
		"host":    base.Layers["host"],
		"power":   base.Layers["power"],
	}

	return loader, []config.ScenarioConfig{base, second, broken}
}

func TestRunnerIsolatesFailures(t *testing.T) {
	loader, scenarios := runnerFixture(t)
	sink := &recordingSink{}
	pipeline := NewPipeline(nil, loader, nil, nil, nil, nil, 5)
	runner := NewRunner(nil, pipeline, 2, sink)

	outcomes := runner.Run(context.Background(), scenarios)

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	// Outcomes keep input order regardless of worker scheduling.
	for i, scen := range scenarios {
		if outcomes[i].Scenario != scen.Name {
			t.Fatalf("outcome %d is %q, expected %q", i, outcomes[i].Scenario, scen.Name)
		}
	}
	if outcomes[0].Err != nil || outcomes[1].Err != nil {
		t.Fatalf("healthy scenarios failed: %v / %v", outcomes[0].Err, outcomes[1].Err)
	}
	if outcomes[2].Err == nil {
		t.Fatalf("broken scenario should fail")
	}

	sink.mu.Lock()
	reached := len(sink.scenarios)
	sink.mu.Unlock()
	if reached != 2 {
		t.Fatalf("sink should see the 2 successful analyses, saw %d", reached)
	}

	reports := Reports(outcomes)
	if len(reports) != 2 {
		t.Fatalf("Reports should drop failures, got %d", len(reports))
	}
}

func TestRunnerSinkErrorDoesNotFailOutcome(t *testing.T) {
	loader, base := threeLayerFixture()
	sink := &recordingSink{fail: true}
	pipeline := NewPipeline(nil, loader, nil, nil, nil, nil, 5)
	runner := NewRunner(nil, pipeline, 1, sink)

	outcomes := runner.Run(context.Background(), []config.ScenarioConfig{base})
	if outcomes[0].Err != nil {
		t.Fatalf("sink failure must not fail the analysis: %v", outcomes[0].Err)
	}
}

func TestRunnerCancelledContext(t *testing.T) {
	loader, scenarios := runnerFixture(t)
	pipeline := NewPipeline(nil, loader, nil, nil, nil, nil, 5)
	runner := NewRunner(nil, pipeline, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := runner.Run(ctx, scenarios)
	for i, outcome := range outcomes {
		if outcome.Err == nil {
			t.Fatalf("outcome %d should carry a cancellation error", i)
		}
	}
}
