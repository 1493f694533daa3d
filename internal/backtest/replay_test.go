package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/allocation"
	"github.com/Logarithm-Labs/curator-agent/internal/rebalance"
	"github.com/Logarithm-Labs/curator-agent/internal/vault"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func baseRunConfig() RunConfig {
	return RunConfig{
		StartingCapital: 10000,
		Engine: allocation.Config{
			DefaultMaxWeight:   0.8,
			MaxUtilization:     0.95,
			RebalanceThreshold: 0.02,
		},
		Costs:            rebalance.CostModel{FeeRate: 0.001},
		DecisionInterval: 1,
	}
}

func obsAt(ts time.Time, id string, yield, util, capacity float64) vault.VaultObservation {
	return vault.VaultObservation{
		VaultID:     id,
		Timestamp:   ts,
		YieldRate:   yield,
		Utilization: util,
		Capacity:    capacity,
		Available:   true,
	}
}

func snapAt(ts time.Time, observations ...vault.VaultObservation) vault.ObservationSnapshot {
	vaults := make(map[string]vault.VaultObservation, len(observations))
	for _, o := range observations {
		vaults[o.VaultID] = o
	}
	return vault.ObservationSnapshot{Timestamp: ts, Vaults: vaults}
}

func TestReplay_SingleStepAllocation(t *testing.T) {
	src := NewSliceSource([]vault.ObservationSnapshot{
		snapAt(t0,
			obsAt(t0, "alpha", 0.10, 0.50, 1e9),
			obsAt(t0, "beta", 0.05, 0.50, 1e9),
		),
	})

	records, stats, err := Replay(context.Background(), src, baseRunConfig())
	assert.NoError(t, err)
	assert.Len(t, records, 1)

	rec := records[0]
	assert.True(t, rec.Decided)
	assert.Len(t, rec.Trades, 1)
	// 80% of 10000 goes to the best vault, fee 0.1% on the 8000 move
	assert.InDelta(t, 8000.0, rec.Holdings["alpha"], 1e-9)
	assert.NotContains(t, rec.Holdings, "beta")
	assert.InDelta(t, 8.0, rec.Fees, 1e-9)
	assert.InDelta(t, 1992.0, rec.Cash, 1e-9)
	assert.InDelta(t, 9992.0, rec.TotalEquity, 1e-9)
	assert.InDelta(t, -0.0008, rec.PeriodReturn, 1e-9)

	assert.Equal(t, 1, stats.Steps)
	assert.Equal(t, 1, stats.Decisions)
	assert.Equal(t, 1, stats.Trades)
	assert.InDelta(t, 9992.0, stats.FinalEquity, 1e-9)
	assert.InDelta(t, -8.0, stats.Profit, 1e-9)
	assert.InDelta(t, 8.0, stats.TotalFees, 1e-9)
}

func TestReplay_SteadyStateDoesNotChurn(t *testing.T) {
	// Once the portfolio sits at target, yield drift inside the threshold
	// band must not trigger trades on later steps.
	t1 := t0.Add(24 * time.Hour)
	src := NewSliceSource([]vault.ObservationSnapshot{
		snapAt(t0, obsAt(t0, "alpha", 0.0876, 0.50, 1e9)),
		snapAt(t1, obsAt(t1, "alpha", 0.0876, 0.50, 1e9)),
	})

	records, stats, err := Replay(context.Background(), src, baseRunConfig())
	assert.NoError(t, err)
	assert.Len(t, records, 2)

	assert.True(t, records[1].Decided)
	assert.Empty(t, records[1].Trades)
	// one day of accrual on the 8000 position
	assert.InDelta(t, 8000*(1+0.0876/365), records[1].Holdings["alpha"], 1e-3)
	assert.Greater(t, records[1].PeriodReturn, 0.0)
	assert.Greater(t, records[1].TotalEquity, records[0].TotalEquity)
	assert.Equal(t, 2, stats.Decisions)
	assert.Equal(t, 1, stats.Trades)
}

func TestReplay_MissingObservationHaltsAndKeepsRecords(t *testing.T) {
	// A data gap for a held vault aborts the run, but every record written
	// before the gap survives.
	t1 := t0.Add(24 * time.Hour)
	down := vault.VaultObservation{VaultID: "alpha", Timestamp: t1}
	src := NewSliceSource([]vault.ObservationSnapshot{
		snapAt(t0, obsAt(t0, "alpha", 0.10, 0.50, 1e9)),
		snapAt(t1, down),
	})

	records, stats, err := Replay(context.Background(), src, baseRunConfig())
	var missing *vault.MissingObservationError
	assert.ErrorAs(t, err, &missing)
	assert.Equal(t, "alpha", missing.VaultID)
	assert.Len(t, records, 1)
	assert.InDelta(t, 8000.0, records[0].Holdings["alpha"], 1e-9)
	assert.Equal(t, 1, stats.Steps)
}

func TestReplay_OutOfOrderSnapshotRejected(t *testing.T) {
	src := NewSliceSource([]vault.ObservationSnapshot{
		snapAt(t0, obsAt(t0, "alpha", 0.10, 0.50, 1e9)),
		snapAt(t0, obsAt(t0, "alpha", 0.10, 0.50, 1e9)),
	})

	records, _, err := Replay(context.Background(), src, baseRunConfig())
	var outOfOrder *vault.OutOfOrderObservationError
	assert.ErrorAs(t, err, &outOfOrder)
	assert.Len(t, records, 1)
}

func TestReplay_WarmupAndCadence(t *testing.T) {
	cfg := baseRunConfig()
	cfg.WarmupSteps = 1
	cfg.DecisionInterval = 2

	snaps := make([]vault.ObservationSnapshot, 0, 5)
	for i := 0; i < 5; i++ {
		ts := t0.Add(time.Duration(i) * 24 * time.Hour)
		snaps = append(snaps, snapAt(ts, obsAt(ts, "alpha", 0.10, 0.50, 1e9)))
	}
	records, stats, err := Replay(context.Background(), NewSliceSource(snaps), cfg)
	assert.NoError(t, err)
	assert.Len(t, records, 5)

	decided := make([]bool, 0, 5)
	for _, rec := range records {
		decided = append(decided, rec.Decided)
	}
	// warmup skips step 1, then every second step decides
	assert.Equal(t, []bool{false, true, false, true, false}, decided)
	assert.Equal(t, 2, stats.Decisions)
}

func TestReplay_ExternalFlowsMoveBaselineNotReturns(t *testing.T) {
	cfg := baseRunConfig()
	cfg.WarmupSteps = 100 // no decisions, cash only

	t1 := t0.Add(24 * time.Hour)
	t2 := t1.Add(24 * time.Hour)
	depositSnap := snapAt(t1, obsAt(t1, "alpha", 0.10, 0.50, 1e9))
	depositSnap.Flow = vault.FlowEvent{Deposit: 1000}
	withdrawSnap := snapAt(t2, obsAt(t2, "alpha", 0.10, 0.50, 1e9))
	withdrawSnap.Flow = vault.FlowEvent{Withdrawal: 400}

	records, stats, err := Replay(context.Background(), NewSliceSource([]vault.ObservationSnapshot{
		snapAt(t0, obsAt(t0, "alpha", 0.10, 0.50, 1e9)),
		depositSnap,
		withdrawSnap,
	}), cfg)
	assert.NoError(t, err)
	assert.Len(t, records, 3)

	assert.InDelta(t, 11000.0, records[1].TotalEquity, 1e-9)
	assert.InDelta(t, 0.0, records[1].PeriodReturn, 1e-9)
	assert.InDelta(t, 0.0, records[1].CumulativeReturn, 1e-9)
	assert.InDelta(t, 10600.0, records[2].TotalEquity, 1e-9)
	assert.InDelta(t, 0.0, records[2].CumulativeReturn, 1e-9)
	assert.InDelta(t, 0.0, stats.Profit, 1e-9)
}

func TestReplay_WithdrawalClippedToCash(t *testing.T) {
	cfg := baseRunConfig()
	cfg.WarmupSteps = 100

	t1 := t0.Add(24 * time.Hour)
	over := snapAt(t1, obsAt(t1, "alpha", 0.10, 0.50, 1e9))
	over.Flow = vault.FlowEvent{Withdrawal: 50000}

	records, _, err := Replay(context.Background(), NewSliceSource([]vault.ObservationSnapshot{
		snapAt(t0, obsAt(t0, "alpha", 0.10, 0.50, 1e9)),
		over,
	}), cfg)
	assert.NoError(t, err)
	assert.InDelta(t, 0.0, records[1].TotalEquity, 1e-9)
}

func TestReplay_InvalidConfigRejectedBeforeFirstStep(t *testing.T) {
	cfg := baseRunConfig()
	cfg.StartingCapital = 0

	src := NewSliceSource([]vault.ObservationSnapshot{
		snapAt(t0, obsAt(t0, "alpha", 0.10, 0.50, 1e9)),
	})
	records, _, err := Replay(context.Background(), src, cfg)
	var invalid *vault.InvalidConfigError
	assert.ErrorAs(t, err, &invalid)
	assert.Empty(t, records)
}

func TestReplay_EmptySource(t *testing.T) {
	records, stats, err := Replay(context.Background(), NewSliceSource(nil), baseRunConfig())
	assert.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, stats.Steps)
}

func TestRunRequest_Apply(t *testing.T) {
	base := baseRunConfig()
	req := RunRequest{Label: "tweak", FeeRate: 0.002, DecisionInterval: 4}
	cfg := req.Apply(base)
	assert.Equal(t, "tweak", cfg.Label)
	assert.Equal(t, 0.002, cfg.Costs.FeeRate)
	assert.Equal(t, 4, cfg.DecisionInterval)
	// untouched fields keep the base values
	assert.Equal(t, base.StartingCapital, cfg.StartingCapital)
	assert.Equal(t, base.Engine.RebalanceThreshold, cfg.Engine.RebalanceThreshold)
}
