package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gridsec/evcorr/internal/models"
)

// Sidecar holds previously detected attack-start points: scenario name to
// layer name to detection. It matches the attack_start_points.json layout
// produced by earlier analysis runs, so results can be pinned or replayed.
type Sidecar map[string]map[string]SidecarEntry

// SidecarEntry is one pinned attack start.
type SidecarEntry struct {
	Timestamp  float64 `json:"timestamp"`
	Confidence string  `json:"confidence"`
	Method     string  `json:"method"`
}

// sidecarSchema rejects malformed sidecars before any timestamp is trusted.
const sidecarSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "additionalProperties": {
      "type": "object",
      "required": ["timestamp", "confidence", "method"],
      "properties": {
        "timestamp": {"type": "number"},
        "confidence": {"type": "string", "enum": ["high", "medium", "low"]},
        "method": {"type": "string", "minLength": 1}
      }
    }
  }
}`

var compiledSidecarSchema = jsonschema.MustCompileString("sidecar.json", sidecarSchema)

// LoadSidecar reads and validates an attack-start sidecar file. A sidecar
// that fails schema validation aborts loading with a clear message rather
// than silently contributing bogus zero points.
func LoadSidecar(path string) (Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sidecar %s: %w", path, err)
	}

	var raw interface{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse sidecar %s: %w", path, err)
	}
	if err := compiledSidecarSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("sidecar %s failed validation: %w", path, err)
	}

	var sidecar Sidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return nil, fmt.Errorf("decode sidecar %s: %w", path, err)
	}
	return sidecar, nil
}

// Lookup returns the pinned detection for (scenario, layer), tagged with
// the sidecar-override method so downstream consumers can tell a replayed
// start from a freshly detected one.
func (s Sidecar) Lookup(scenario string, layer models.Layer) (models.Detection, bool) {
	layers, ok := s[scenario]
	if !ok {
		return models.Detection{}, false
	}
	entry, ok := layers[string(layer)]
	if !ok {
		return models.Detection{}, false
	}
	return models.Detection{
		Layer:      layer,
		Outcome:    models.OutcomeDetected,
		Timestamp:  entry.Timestamp,
		Confidence: models.Confidence(entry.Confidence),
		Method:     models.MethodSidecar,
	}, true
}
