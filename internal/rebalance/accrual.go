package rebalance

import (
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/vault"
)

const hoursPerYear = 365 * 24

// AccrueYield grows each held position by its vault's observed yield rate,
// pro-rated to the elapsed interval, and returns the successor state. A held
// vault with no usable observation is a fatal data gap, same as at decision
// time.
func AccrueYield(state vault.PortfolioState, snap vault.ObservationSnapshot, elapsed time.Duration) (vault.PortfolioState, error) {
	next := state.Clone()
	if elapsed <= 0 {
		return next, nil
	}
	yearFraction := elapsed.Hours() / hoursPerYear
	for _, id := range state.HeldVaults() {
		obs, ok := snap.Lookup(id)
		if !ok {
			return vault.PortfolioState{}, &vault.MissingObservationError{VaultID: id, Timestamp: snap.Timestamp}
		}
		next.Deposits[id] = vault.FloorAmount(next.Deposits[id] * (1 + obs.YieldRate*yearFraction))
	}
	return next, nil
}

// ApplyFlow settles an external meta vault flow against cash before the
// step's decision: deposits add to cash, withdrawals take what cash can
// cover (the remainder stays owed upstream, outside this model). The second
// return is the net amount actually applied, which can be smaller in
// magnitude than the requested withdrawal.
func ApplyFlow(state vault.PortfolioState, flow vault.FlowEvent) (vault.PortfolioState, float64) {
	if flow.IsZero() {
		return state, 0
	}
	next := state.Clone()
	net := 0.0
	if flow.Deposit > 0 {
		next.Cash += flow.Deposit
		net += flow.Deposit
	}
	if flow.Withdrawal > 0 {
		out := flow.Withdrawal
		if out > next.Cash {
			out = next.Cash
		}
		next.Cash -= out
		net -= out
	}
	return next, net
}
