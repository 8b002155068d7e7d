// Package repo persists incident reports so propagation patterns can be
// mined across runs.
package repo

import (
	"context"

	"github.com/gridsec/evcorr/internal/models"
)

// Store defines the persistence operations the engine requires.
type Store interface {
	SaveReport(ctx context.Context, report models.IncidentReport) error
	ListReports(ctx context.Context, scenario string, limit int) ([]models.IncidentReport, error)
	Close() error
}

// NoopStore implements Store without persisting anything, keeping the
// pipeline usable when the store is disabled.
type NoopStore struct{}

// SaveReport discards the report.
func (NoopStore) SaveReport(context.Context, models.IncidentReport) error { return nil }

// ListReports always returns an empty history.
func (NoopStore) ListReports(context.Context, string, int) ([]models.IncidentReport, error) {
	return nil, nil
}

// Close is a no-op.
func (NoopStore) Close() error { return nil }
