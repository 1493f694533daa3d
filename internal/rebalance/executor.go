// Package rebalance turns a target allocation into executed trades against a
// portfolio state, charging fees and utilization-dependent slippage. It also
// carries the per-step yield accrual, the only other operation that moves
// vault balances.
package rebalance

import (
	"sort"

	"github.com/Logarithm-Labs/curator-agent/internal/vault"
)

// Apply rebalances state toward target under the given cost model, returning
// the successor state and one TradeRecord per executed move. The input state
// is never mutated.
//
// Desired amounts are fractions of pre-trade equity. Withdrawals run before
// deposits so freed cash funds the buys within the same step; deposits are
// additionally clipped to the vault's remaining capacity and to the cash the
// portfolio can actually spend after costs, with any unexecuted residual left
// in cash. The post-apply invariant is
//
//	sum(deposits) + cash == pre-trade equity - fees - slippage
//
// and a negative cash balance is surfaced as a fatal NegativeCashError rather
// than clamped, since it can only mean a modeling bug upstream.
func Apply(state vault.PortfolioState, target vault.AllocationTarget, snap vault.ObservationSnapshot, model CostModel) (vault.PortfolioState, []vault.TradeRecord, error) {
	if err := target.Validate(); err != nil {
		return vault.PortfolioState{}, nil, err
	}
	equity := state.TotalEquity()
	next := state.Clone()
	next.Timestamp = snap.Timestamp

	type move struct {
		id    string
		delta float64
		obs   vault.VaultObservation
	}
	var withdrawals, deposits []move
	for _, id := range unionIDs(state, target) {
		desired := vault.FloorAmount(target.Weight(id) * equity)
		delta := desired - next.Deposits[id]
		// flooring the desired amount can land one ledger quantum under the
		// current deposit; moves within two quanta are not real trades
		if delta > -2*vault.Dust && delta < 2*vault.Dust {
			continue
		}
		obs, ok := snap.Lookup(id)
		if !ok {
			return vault.PortfolioState{}, nil, &vault.MissingObservationError{VaultID: id, Timestamp: snap.Timestamp}
		}
		if delta < 0 {
			withdrawals = append(withdrawals, move{id: id, delta: delta, obs: obs})
		} else {
			deposits = append(deposits, move{id: id, delta: delta, obs: obs})
		}
	}
	sort.Slice(withdrawals, func(i, j int) bool { return withdrawals[i].id < withdrawals[j].id })
	sort.Slice(deposits, func(i, j int) bool { return deposits[i].id < deposits[j].id })

	trades := make([]vault.TradeRecord, 0, len(withdrawals)+len(deposits))

	for _, m := range withdrawals {
		amount := -m.delta
		if amount > next.Deposits[m.id] {
			amount = next.Deposits[m.id]
		}
		fee := vault.CeilCost(amount * model.FeeRate)
		slip := vault.CeilCost(amount * model.Slippage.Rate(m.obs.Utilization))
		next.Deposits[m.id] -= amount
		if next.Deposits[m.id] < vault.Dust {
			delete(next.Deposits, m.id)
		}
		next.Cash += amount - fee - slip
		trades = append(trades, vault.TradeRecord{
			VaultID: m.id, Timestamp: snap.Timestamp, Delta: -amount, Fee: fee, Slippage: slip,
		})
	}

	for _, m := range deposits {
		slipRate := model.Slippage.Rate(m.obs.Utilization)
		amount := m.delta
		if room := m.obs.Capacity - next.Deposits[m.id]; amount > room {
			amount = room
		}
		// the deposit and its own costs both come out of cash; each cost
		// rounds up, so leave one quantum of headroom per cost leg
		if afford := next.Cash/(1+model.FeeRate+slipRate) - 2*vault.Dust; amount > afford {
			amount = afford
		}
		amount = vault.FloorAmount(amount)
		if amount <= vault.Dust {
			continue
		}
		fee := vault.CeilCost(amount * model.FeeRate)
		slip := vault.CeilCost(amount * slipRate)
		next.Deposits[m.id] += amount
		next.Cash -= amount + fee + slip
		trades = append(trades, vault.TradeRecord{
			VaultID: m.id, Timestamp: snap.Timestamp, Delta: amount, Fee: fee, Slippage: slip,
		})
	}

	if next.Cash < -vault.Dust {
		return vault.PortfolioState{}, nil, &vault.NegativeCashError{
			Timestamp: snap.Timestamp, Cash: next.Cash, State: next,
		}
	}
	if next.Cash < 0 {
		next.Cash = 0
	}
	return next, trades, nil
}

func unionIDs(state vault.PortfolioState, target vault.AllocationTarget) []string {
	seen := make(map[string]struct{}, len(state.Deposits)+len(target))
	ids := make([]string, 0, len(state.Deposits)+len(target))
	for id := range state.Deposits {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for id := range target {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
