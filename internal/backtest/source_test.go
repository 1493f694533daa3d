package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadCSVDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alpha.csv", `timestamp,yield_rate,utilization,capacity,risk_score
2024-01-01,0.08,0.5,50000,0.1
2024-01-02,0.09,0.55,50000,0.1
2024-01-03,0.07,0.6,50000,0.1
`)
	writeFile(t, dir, "beta.csv", `timestamp,yield_rate,utilization,capacity,risk_score
2024-01-01,0.05,0.3,80000,0
2024-01-03,0.06,0.35,80000,0
`)
	writeFile(t, dir, "flows.csv", `timestamp,deposit,withdrawal
2024-01-02,1000,0
`)

	snaps, err := LoadCSVDir(dir)
	assert.NoError(t, err)
	assert.Len(t, snaps, 3)

	assert.True(t, snaps[0].Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	alpha, ok := snaps[0].Lookup("alpha")
	assert.True(t, ok)
	assert.Equal(t, 0.08, alpha.YieldRate)
	beta, ok := snaps[0].Lookup("beta")
	assert.True(t, ok)
	assert.Equal(t, 80000.0, beta.Capacity)

	// beta has no row on the 2nd; it shows up as unavailable, not missing
	_, ok = snaps[1].Lookup("beta")
	assert.False(t, ok)
	assert.Contains(t, snaps[1].Vaults, "beta")
	assert.InDelta(t, 1000.0, snaps[1].Flow.Deposit, 1e-9)

	for _, snap := range snaps {
		assert.NoError(t, snap.Validate())
	}
}

func TestLoadCSVDir_ClipsToCommonRange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alpha.csv", `timestamp,yield_rate,utilization,capacity,risk_score
2024-01-01,0.08,0.5,50000,0
2024-01-02,0.08,0.5,50000,0
2024-01-03,0.08,0.5,50000,0
2024-01-04,0.08,0.5,50000,0
`)
	writeFile(t, dir, "beta.csv", `timestamp,yield_rate,utilization,capacity,risk_score
2024-01-02,0.05,0.3,80000,0
2024-01-03,0.05,0.3,80000,0
`)

	snaps, err := LoadCSVDir(dir)
	assert.NoError(t, err)
	// the joined series only spans the range both vaults cover
	assert.Len(t, snaps, 2)
	assert.True(t, snaps[0].Timestamp.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, snaps[1].Timestamp.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))
}

func TestLoadCSVDir_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alpha.csv", `timestamp,yield_rate,utilization
2024-01-01,0.08,0.5
`)
	_, err := LoadCSVDir(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "capacity")
}

func TestLoadCSVDir_Empty(t *testing.T) {
	_, err := LoadCSVDir(t.TempDir())
	assert.Error(t, err)
}

func TestParseTimestampFormats(t *testing.T) {
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	got, err := parseTimestamp("2024-01-02")
	assert.NoError(t, err)
	assert.True(t, got.Equal(want))

	got, err = parseTimestamp("2024-01-02T00:00:00Z")
	assert.NoError(t, err)
	assert.True(t, got.Equal(want))

	got, err = parseTimestamp("1704153600000")
	assert.NoError(t, err)
	assert.True(t, got.Equal(want))

	_, err = parseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestParseJSON(t *testing.T) {
	raw := []byte(`{
	  "snapshots": [
	    {
	      "timestamp": "2024-01-01T00:00:00Z",
	      "vaults": {
	        "alpha": {"yield_rate": 0.08, "utilization": 0.5, "capacity": 50000, "risk_score": 0.1}
	      }
	    },
	    {
	      "timestamp": "2024-01-02T00:00:00Z",
	      "vaults": {
	        "alpha": {"yield_rate": 0.09, "utilization": 0.55, "capacity": 50000, "risk_score": 0.1}
	      },
	      "flow": {"deposit": 500}
	    }
	  ]
	}`)

	snaps, err := ParseJSON(raw)
	assert.NoError(t, err)
	assert.Len(t, snaps, 2)

	alpha, ok := snaps[0].Lookup("alpha")
	assert.True(t, ok)
	assert.Equal(t, 0.08, alpha.YieldRate)
	assert.InDelta(t, 500.0, snaps[1].Flow.Deposit, 1e-9)
	for _, snap := range snaps {
		assert.NoError(t, snap.Validate())
	}
}

func TestParseJSON_SchemaRejectsBadFields(t *testing.T) {
	// utilization above 1 violates the schema before any snapshot is built
	raw := []byte(`{
	  "snapshots": [
	    {
	      "timestamp": "2024-01-01T00:00:00Z",
	      "vaults": {
	        "alpha": {"yield_rate": 0.08, "utilization": 1.5, "capacity": 50000, "risk_score": 0}
	      }
	    }
	  ]
	}`)
	_, err := ParseJSON(raw)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "schema")

	_, err = ParseJSON([]byte(`{"snapshots": "nope"}`))
	assert.Error(t, err)

	_, err = ParseJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestGenerateSynthetic(t *testing.T) {
	cfg := SyntheticConfig{Seed: 7, Vaults: 3, Steps: 40}
	snaps := GenerateSynthetic(cfg)
	assert.Len(t, snaps, 40)

	for i, snap := range snaps {
		assert.NoError(t, snap.Validate())
		assert.Len(t, snap.Vaults, 3)
		if i > 0 {
			assert.True(t, snap.Timestamp.After(snaps[i-1].Timestamp))
		}
	}

	// same seed, same series
	again := GenerateSynthetic(cfg)
	assert.Equal(t, snaps, again)

	other := GenerateSynthetic(SyntheticConfig{Seed: 8, Vaults: 3, Steps: 40})
	assert.NotEqual(t, snaps, other)
}

func TestSliceSourceAndDrain(t *testing.T) {
	snaps := healthySnaps(4)
	src := NewSliceSource(snaps)

	out, err := Drain(src)
	assert.NoError(t, err)
	assert.Equal(t, snaps, out)

	// exhausted cursor stays exhausted
	_, ok, err := src.Next()
	assert.NoError(t, err)
	assert.False(t, ok)
}
