package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gridsec/evcorr/internal/models"
	"github.com/gridsec/evcorr/internal/utils"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadSeries(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "host.csv", "time,cpu_user,cpu_system\n0.0,10,2\n1.5,20,4\n3.0,30,6\n")

	loader := NewCSVLoader(nil)
	series, err := loader.LoadSeries("dos", models.LayerHost, LayerSource{
		Path:        path,
		TimeColumn:  "time",
		ValueColumn: []string{"cpu_user", "cpu_system"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(series.Samples))
	}
	// Value columns are averaged per row.
	if series.Samples[0].Value != 6 {
		t.Fatalf("expected mean of cpu columns 6, got %f", series.Samples[0].Value)
	}
	if series.Samples[1].Offset != 1.5 {
		t.Fatalf("expected offset 1.5, got %f", series.Samples[1].Offset)
	}
	if series.Layer != models.LayerHost {
		t.Fatalf("series misattributed to %s", series.Layer)
	}
}

func TestLoadSeriesMillis(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "net.csv", "bidirectional_first_seen_ms,bidirectional_packets\n1500,10\n2750,20\n")

	loader := NewCSVLoader(nil)
	series, err := loader.LoadSeries("dos", models.LayerNetwork, LayerSource{
		Path:        path,
		TimeColumn:  "bidirectional_first_seen_ms",
		TimeUnit:    utils.UnitMillis,
		ValueColumn: []string{"bidirectional_packets"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if series.Samples[0].Offset != 1.5 || series.Samples[1].Offset != 2.75 {
		t.Fatalf("millisecond conversion off: %+v", series.Samples)
	}
}

func TestLoadSeriesSortsByOffset(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "unsorted.csv", "time,v\n5,50\n1,10\n3,30\n")

	loader := NewCSVLoader(nil)
	series, err := loader.LoadSeries("dos", models.LayerPower, LayerSource{
		Path: path, TimeColumn: "time", ValueColumn: []string{"v"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(series.Samples); i++ {
		if series.Samples[i].Offset < series.Samples[i-1].Offset {
			t.Fatalf("samples not sorted: %+v", series.Samples)
		}
	}
}

func TestLoadSeriesSkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dirty.csv", "time,v\n0,1\nnot-a-number,2\n2,oops\n3,4\n")

	loader := NewCSVLoader(nil)
	series, err := loader.LoadSeries("dos", models.LayerHost, LayerSource{
		Path: path, TimeColumn: "time", ValueColumn: []string{"v"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series.Samples) != 2 {
		t.Fatalf("expected 2 clean samples, got %d", len(series.Samples))
	}
}

func TestLoadSeriesMissingFile(t *testing.T) {
	loader := NewCSVLoader(nil)
	_, err := loader.LoadSeries("dos", models.LayerHost, LayerSource{
		Path: filepath.Join(t.TempDir(), "absent.csv"), TimeColumn: "time", ValueColumn: []string{"v"},
	})
	if !utils.IsMissingData(err) {
		t.Fatalf("expected MissingDataError, got %v", err)
	}
}

func TestLoadSeriesMissingColumn(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "host.csv", "time,cpu\n0,1\n")

	loader := NewCSVLoader(nil)
	_, err := loader.LoadSeries("dos", models.LayerHost, LayerSource{
		Path: path, TimeColumn: "time", ValueColumn: []string{"memory"},
	})
	if !utils.IsMissingData(err) {
		t.Fatalf("expected MissingDataError for absent column, got %v", err)
	}
}

func TestLoadSeriesColumnMatchIsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "host.csv", "Time,CPU\n0,1\n")

	loader := NewCSVLoader(nil)
	series, err := loader.LoadSeries("dos", models.LayerHost, LayerSource{
		Path: path, TimeColumn: "time", ValueColumn: []string{"cpu"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series.Samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(series.Samples))
	}
}
