package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrecisionRounding(t *testing.T) {
	// amounts round down, costs round up
	assert.Equal(t, 1.234567, FloorAmount(1.2345679))
	assert.Equal(t, 1.234568, CeilCost(1.2345671))
	assert.Equal(t, 8.0, CeilCost(8.0))
	assert.Equal(t, 0.0, FloorAmount(0.0000009))
}

func TestPortfolioState(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPortfolioState(ts, 1000)
	p.Deposits["beta"] = 3000
	p.Deposits["alpha"] = 1000
	p.Deposits["dusty"] = Dust / 2

	assert.InDelta(t, 5000.0, p.TotalEquity(), 1e-6)
	assert.InDelta(t, 0.6, p.DepositedFraction("beta"), 1e-9)
	assert.Equal(t, []string{"alpha", "beta"}, p.HeldVaults())

	clone := p.Clone()
	clone.Deposits["alpha"] = 0
	assert.InDelta(t, 1000.0, p.Deposits["alpha"], 1e-9)
}

func TestSnapshotValidate(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	good := ObservationSnapshot{
		Timestamp: ts,
		Vaults: map[string]VaultObservation{
			"alpha": {VaultID: "alpha", Timestamp: ts, YieldRate: 0.05, Utilization: 0.5, Capacity: 1000, Available: true},
		},
	}
	assert.NoError(t, good.Validate())

	empty := ObservationSnapshot{Timestamp: ts}
	assert.Error(t, empty.Validate())

	mismatch := good
	mismatch.Vaults = map[string]VaultObservation{
		"alpha": {VaultID: "beta", Timestamp: ts, Available: true},
	}
	assert.Error(t, mismatch.Validate())

	badUtil := good
	badUtil.Vaults = map[string]VaultObservation{
		"alpha": {VaultID: "alpha", Timestamp: ts, Utilization: 1.2, Available: true},
	}
	assert.Error(t, badUtil.Validate())

	bothFlows := good
	bothFlows.Flow = FlowEvent{Deposit: 1, Withdrawal: 1}
	assert.Error(t, bothFlows.Validate())
}

func TestAllocationTargetValidate(t *testing.T) {
	assert.NoError(t, AllocationTarget{"a": 0.6, "b": 0.4}.Validate())
	assert.Error(t, AllocationTarget{"a": -0.1}.Validate())
	assert.Error(t, AllocationTarget{"a": 0.7, "b": 0.5}.Validate())
	assert.InDelta(t, 1.0, AllocationTarget{"a": 0.6, "b": 0.4}.TotalWeight(), 1e-9)
	assert.Equal(t, []string{"a", "b"}, AllocationTarget{"b": 0.4, "a": 0.6}.VaultIDs())
}
