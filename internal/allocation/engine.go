// Package allocation implements the meta vault's decision engine: a pure,
// deterministic mapping from (portfolio state, observation snapshot, config)
// to a target allocation. It performs no I/O and never touches the cash
// book-keeping; applying the target is the rebalance executor's job.
package allocation

import (
	"fmt"
	"math"

	"github.com/Logarithm-Labs/curator-agent/internal/vault"
)

// Decide produces the target allocation for one timestep.
//
// Policy: vaults are ranked by risk-adjusted expected yield and filled
// greedily. A vault absorbs weight up to the smallest of its max-weight cap,
// its remaining capacity, and the unallocated budget. Capacity exhaustion and
// the utilization ceiling are physical limits, so the leftover spills to the
// next-ranked vault; the max-weight cap is the policy's risk budget, so once
// the preferred vault has absorbed its full cap the remainder is held as cash
// rather than chasing lower-scoring yield. Non-positive scores allocate
// nothing. Weight changes inside the rebalance threshold keep the current
// deposited fraction, suppressing churn from noise-level signal moves.
func Decide(state vault.PortfolioState, snap vault.ObservationSnapshot, cfg Config) (vault.AllocationTarget, error) {
	equity := state.TotalEquity()
	if equity < 0 {
		return nil, fmt.Errorf("portfolio equity is negative (%.6f)", equity)
	}
	if err := cfg.Validate(snap.VaultIDs()); err != nil {
		return nil, err
	}
	for _, id := range state.HeldVaults() {
		if _, ok := snap.Lookup(id); !ok {
			return nil, &vault.MissingObservationError{VaultID: id, Timestamp: snap.Timestamp}
		}
	}

	ranked := rankVaults(state, snap, cfg)
	target := make(vault.AllocationTarget, len(ranked))
	remaining := 1.0
	budgetSpent := false

	for _, cand := range ranked {
		capW := cfg.CapFor(cand.id)
		candidate := 0.0
		switch {
		case cand.score <= 0 || budgetSpent:
			// sell down, subject to hysteresis below
		case !cand.eligible:
			// too full for new money; keep the existing position at most
			candidate = math.Min(math.Min(cand.held, capW), remaining)
		default:
			capC := math.Inf(1)
			if equity > 0 {
				capC = cand.obs.Capacity / equity
			}
			candidate = math.Min(math.Min(capW, capC), remaining)
			if capW <= capC && capW <= remaining {
				// the risk budget, not capacity, stopped this vault:
				// the residual belongs in cash, not further down the ranking
				budgetSpent = true
			}
		}

		w := candidate
		if math.Abs(candidate-cand.held) <= cfg.RebalanceThreshold {
			w = math.Min(cand.held, remaining)
		}
		if w > vault.Dust {
			target[cand.id] = w
			remaining -= w
		}
		if remaining <= vault.Dust {
			remaining = 0
		}
	}
	return target, nil
}
