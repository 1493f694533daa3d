package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/vault"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// snapshotSchema validates an exported observation document before any
// field is read, so malformed feeds fail loudly at the boundary instead of
// surfacing as zero values mid-replay.
const snapshotSchema = `{
  "type": "object",
  "required": ["snapshots"],
  "properties": {
    "snapshots": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["timestamp", "vaults"],
        "properties": {
          "timestamp": {"type": ["string", "integer"]},
          "vaults": {
            "type": "object",
            "additionalProperties": {
              "type": "object",
              "required": ["yield_rate", "utilization", "capacity", "risk_score"],
              "properties": {
                "yield_rate": {"type": "number"},
                "utilization": {"type": "number", "minimum": 0, "maximum": 1},
                "capacity": {"type": "number", "minimum": 0},
                "risk_score": {"type": "number"},
                "available": {"type": "boolean"}
              }
            }
          },
          "flow": {
            "type": "object",
            "properties": {
              "deposit": {"type": "number", "minimum": 0},
              "withdrawal": {"type": "number", "minimum": 0}
            }
          }
        }
      }
    }
  }
}`

var compiledSnapshotSchema = jsonschema.MustCompileString("snapshot.json", snapshotSchema)

// LoadJSONFile parses an observation export. The document is schema-checked
// as a whole, then walked with gjson.
func LoadJSONFile(path string) ([]vault.ObservationSnapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseJSON(raw)
}

func ParseJSON(raw []byte) ([]vault.ObservationSnapshot, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if err := compiledSnapshotSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	var snaps []vault.ObservationSnapshot
	var walkErr error
	gjson.GetBytes(raw, "snapshots").ForEach(func(_, item gjson.Result) bool {
		snap, err := parseSnapshot(item)
		if err != nil {
			walkErr = err
			return false
		}
		snaps = append(snaps, snap)
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("document contains no snapshots")
	}
	return snaps, nil
}

func parseSnapshot(item gjson.Result) (vault.ObservationSnapshot, error) {
	ts, err := parseJSONTimestamp(item.Get("timestamp"))
	if err != nil {
		return vault.ObservationSnapshot{}, err
	}
	snap := vault.ObservationSnapshot{
		Timestamp: ts,
		Vaults:    make(map[string]vault.VaultObservation),
	}
	item.Get("vaults").ForEach(func(key, v gjson.Result) bool {
		obs := vault.VaultObservation{
			VaultID:     key.String(),
			Timestamp:   ts,
			YieldRate:   v.Get("yield_rate").Float(),
			Utilization: v.Get("utilization").Float(),
			Capacity:    v.Get("capacity").Float(),
			RiskScore:   v.Get("risk_score").Float(),
			Available:   true,
		}
		if av := v.Get("available"); av.Exists() {
			obs.Available = av.Bool()
		}
		snap.Vaults[key.String()] = obs
		return true
	})
	if flow := item.Get("flow"); flow.Exists() {
		snap.Flow = vault.FlowEvent{
			Deposit:    flow.Get("deposit").Float(),
			Withdrawal: flow.Get("withdrawal").Float(),
		}
	}
	return snap, nil
}

func parseJSONTimestamp(v gjson.Result) (time.Time, error) {
	switch v.Type {
	case gjson.Number:
		return time.UnixMilli(v.Int()).UTC(), nil
	case gjson.String:
		return parseTimestamp(strings.TrimSpace(v.String()))
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp value %q", v.Raw)
	}
}

// NewJSONSourceFactory materializes the file once and hands out cursors.
func NewJSONSourceFactory(path string) (SourceFactory, error) {
	snaps, err := LoadJSONFile(path)
	if err != nil {
		return nil, err
	}
	return func() (ObservationSource, error) {
		return NewSliceSource(snaps), nil
	}, nil
}
