package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gridsec/evcorr/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id       TEXT PRIMARY KEY,
    scenario     TEXT NOT NULL,
    has_network  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,
    detections   TEXT NOT NULL,
    coverage     TEXT NOT NULL,
    low_layers   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario, created_at);

CREATE TABLE IF NOT EXISTS pair_results (
    run_id          TEXT NOT NULL REFERENCES runs(run_id),
    pair            TEXT NOT NULL,
    layer_a         TEXT NOT NULL,
    layer_b         TEXT NOT NULL,
    optimal_lag     INTEGER NOT NULL,
    optimal_r       REAL NOT NULL,
    optimal_p       REAL NOT NULL,
    interpretation  TEXT NOT NULL,
    lag_table       TEXT NOT NULL,
    PRIMARY KEY (run_id, pair)
);
`

// SQLiteStore persists reports in a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveReport writes the run row and its pair results in one transaction.
func (s *SQLiteStore) SaveReport(ctx context.Context, report models.IncidentReport) error {
	detections, err := json.Marshal(report.Detections)
	if err != nil {
		return fmt.Errorf("encode detections: %w", err)
	}
	coverage, err := json.Marshal(report.Coverage)
	if err != nil {
		return fmt.Errorf("encode coverage: %w", err)
	}
	lowLayers, err := json.Marshal(report.LowLayers)
	if err != nil {
		return fmt.Errorf("encode low coverage layers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, scenario, has_network, created_at, detections, coverage, low_layers)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Scenario, boolToInt(report.HasNetwork),
		report.CreatedAt.UnixNano(), string(detections), string(coverage), string(lowLayers),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", report.RunID, err)
	}

	for _, pair := range report.Pairs {
		table, err := json.Marshal(pair.LagCorrelations)
		if err != nil {
			return fmt.Errorf("encode lag table for %s: %w", pair.PairKey(), err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pair_results (run_id, pair, layer_a, layer_b, optimal_lag, optimal_r, optimal_p, interpretation, lag_table)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, pair.PairKey(), string(pair.LayerA), string(pair.LayerB),
			pair.OptimalLag, pair.OptimalR, pair.OptimalP, pair.Interpretation, string(table),
		); err != nil {
			return fmt.Errorf("insert pair %s: %w", pair.PairKey(), err)
		}
	}

	return tx.Commit()
}

// ListReports returns the most recent reports, optionally filtered by
// scenario, newest first.
func (s *SQLiteStore) ListReports(ctx context.Context, scenario string, limit int) ([]models.IncidentReport, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT run_id, scenario, has_network, created_at, detections, coverage, low_layers
		FROM runs`
	args := []interface{}{}
	if scenario != "" {
		query += ` WHERE scenario = ?`
		args = append(args, scenario)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	reports := make([]models.IncidentReport, 0, limit)
	for rows.Next() {
		var (
			report     models.IncidentReport
			hasNetwork int
			createdAt  int64
			detections string
			coverage   string
			lowLayers  string
		)
		if err := rows.Scan(&report.RunID, &report.Scenario, &hasNetwork, &createdAt, &detections, &coverage, &lowLayers); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		report.HasNetwork = hasNetwork != 0
		report.CreatedAt = time.Unix(0, createdAt).UTC()
		if err := json.Unmarshal([]byte(detections), &report.Detections); err != nil {
			return nil, fmt.Errorf("decode detections for %s: %w", report.RunID, err)
		}
		if err := json.Unmarshal([]byte(coverage), &report.Coverage); err != nil {
			return nil, fmt.Errorf("decode coverage for %s: %w", report.RunID, err)
		}
		if err := json.Unmarshal([]byte(lowLayers), &report.LowLayers); err != nil {
			return nil, fmt.Errorf("decode low coverage layers for %s: %w", report.RunID, err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for i := range reports {
		pairs, err := s.loadPairs(ctx, reports[i].RunID)
		if err != nil {
			return nil, err
		}
		reports[i].Pairs = pairs
	}
	return reports, nil
}

func (s *SQLiteStore) loadPairs(ctx context.Context, runID string) ([]models.PairResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT layer_a, layer_b, optimal_lag, optimal_r, optimal_p, interpretation, lag_table
		FROM pair_results WHERE run_id = ? ORDER BY pair`, runID)
	if err != nil {
		return nil, fmt.Errorf("query pairs for %s: %w", runID, err)
	}
	defer rows.Close()

	var pairs []models.PairResult
	for rows.Next() {
		var (
			pair     models.PairResult
			layerA   string
			layerB   string
			lagTable string
		)
		if err := rows.Scan(&layerA, &layerB, &pair.OptimalLag, &pair.OptimalR, &pair.OptimalP, &pair.Interpretation, &lagTable); err != nil {
			return nil, fmt.Errorf("scan pair for %s: %w", runID, err)
		}
		pair.LayerA = models.Layer(layerA)
		pair.LayerB = models.Layer(layerB)
		if err := json.Unmarshal([]byte(lagTable), &pair.LagCorrelations); err != nil {
			return nil, fmt.Errorf("decode lag table for %s: %w", runID, err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
